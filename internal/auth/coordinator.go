package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gatewayd-labs/auth-gateway/internal/config"
	"github.com/gatewayd-labs/auth-gateway/internal/events"
	"github.com/gatewayd-labs/auth-gateway/internal/observability"
	apperrors "github.com/gatewayd-labs/auth-gateway/pkg/util"
)

// Validator validates a raw bearer token.
type Validator interface {
	Validate(ctx context.Context, raw string) Outcome
}

// CoordinatorDependencies bundles the collaborators of the coordinator.
type CoordinatorDependencies struct {
	Validator Validator
	Sessions  *SessionManager
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Events    events.Dispatcher
}

// SchemeCoordinator picks the authentication scheme for each request:
// the configured login, logout and session routes use the session cookie,
// everything else it guards uses the bearer token.
type SchemeCoordinator struct {
	validator   Validator
	sessions    *SessionManager
	logger      *zap.Logger
	metrics     *observability.Metrics
	events      events.Dispatcher
	loginPath   string
	logoutPath  string
	sessionPath string
}

// NewSchemeCoordinator constructs the coordinator.
func NewSchemeCoordinator(cfg config.SessionConfig, deps CoordinatorDependencies) *SchemeCoordinator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemeCoordinator{
		validator:   deps.Validator,
		sessions:    deps.Sessions,
		logger:      logger,
		metrics:     deps.Metrics,
		events:      deps.Events,
		loginPath:   normalizePath(cfg.LoginPath),
		logoutPath:  normalizePath(cfg.LogoutPath),
		sessionPath: normalizePath(cfg.SessionPath),
	}
}

// SchemeFor classifies a request path.
func (sc *SchemeCoordinator) SchemeFor(path string) Scheme {
	switch normalizePath(path) {
	case sc.loginPath, sc.logoutPath, sc.sessionPath:
		return SchemeCookie
	default:
		return SchemeBearer
	}
}

// Handle authenticates the request with exactly one scheme.
func (sc *SchemeCoordinator) Handle(c *fiber.Ctx) error {
	if sc.SchemeFor(c.Path()) == SchemeCookie {
		return sc.handleCookie(c)
	}
	return sc.handleBearer(c)
}

func (sc *SchemeCoordinator) handleBearer(c *fiber.Ctx) error {
	ctx := c.UserContext()
	outcome := sc.validator.Validate(ctx, bearerToken(c.Get(fiber.HeaderAuthorization)))
	if err := ctx.Err(); err != nil {
		sc.logger.Warn("bearer validation abandoned", zap.String("path", c.Path()), zap.Error(err))
		return apperrors.NewRequestCancelled(err)
	}

	sc.metrics.RecordOutcome(outcome.Kind.String())
	if outcome.Valid() {
		attachIdentity(c, IdentityFromClaims(outcome.Claims))
		return c.Next()
	}

	cl := Classify(outcome)
	if ce := sc.logger.Check(cl.Severity, "bearer authentication failed"); ce != nil {
		ce.Write(
			zap.String("outcome", cl.Kind.String()),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(outcome.Err),
		)
	}
	sc.publish(ctx, events.Event{
		Type:       events.EventBearerRejected,
		Outcome:    cl.Kind.String(),
		Path:       c.Path(),
		RemoteAddr: c.IP(),
	})
	return WriteFailure(c, cl)
}

func (sc *SchemeCoordinator) handleCookie(c *fiber.Ctx) error {
	path := normalizePath(c.Path())
	if path == sc.loginPath {
		return c.Next()
	}

	identity, err := sc.sessions.Current(c)
	if err != nil {
		return apperrors.NewServiceUnavailable("session store unavailable", err)
	}
	if err := c.UserContext().Err(); err != nil {
		return apperrors.NewRequestCancelled(err)
	}
	if identity != nil {
		attachIdentity(c, identity)
		return c.Next()
	}
	if path == sc.logoutPath {
		return c.Next()
	}
	return sc.sessions.RedirectToLogin(c)
}

func (sc *SchemeCoordinator) publish(ctx context.Context, event events.Event) {
	if sc.events == nil {
		return
	}
	if err := sc.events.Publish(ctx, event); err != nil {
		sc.logger.Warn("audit event dropped", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

// bearerToken extracts the credential from an Authorization header.
// Anything that is not a Bearer credential yields the empty token.
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// normalizePath folds case and trailing slashes the way fiber's default
// router does, so the scheme choice agrees with the route that runs.
func normalizePath(path string) string {
	path = strings.ToLower(path)
	if len(path) > 1 {
		return strings.TrimRight(path, "/")
	}
	return path
}
