package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gatewayd-labs/auth-gateway/internal/config"
	"github.com/gatewayd-labs/auth-gateway/internal/events"
	"github.com/gatewayd-labs/auth-gateway/internal/observability"
	apperrors "github.com/gatewayd-labs/auth-gateway/pkg/util"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (d *recordingDispatcher) Publish(_ context.Context, e events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, e)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) published() []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]events.Event(nil), d.events...)
}

type harness struct {
	app        *fiber.App
	sessions   *SessionManager
	logs       *observer.ObservedLogs
	metrics    *observability.Metrics
	dispatcher *recordingDispatcher
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		CookieName:      "gateway_session",
		LifetimeMinutes: 60,
		LoginPath:       "/account/login",
		LogoutPath:      "/account/logout",
		SessionPath:     "/account/session",
	}
}

func newHarness(t *testing.T, before ...fiber.Handler) *harness {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	cfg := testSessionConfig()
	h := &harness{
		sessions:   NewSessionManager(cfg, nil),
		logs:       logs,
		metrics:    observability.NewMetrics(),
		dispatcher: &recordingDispatcher{},
	}
	coordinator := NewSchemeCoordinator(cfg, CoordinatorDependencies{
		Validator: newTestValidator(t),
		Sessions:  h.sessions,
		Logger:    zap.New(core),
		Metrics:   h.metrics,
		Events:    h.dispatcher,
	})

	h.app = fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{"error": fiber.Map{"code": de.Code}})
		},
	})
	for _, handler := range before {
		h.app.Use(handler)
	}

	gated := h.app.Group("", coordinator.Handle)
	gated.Get("/api/v1/me", identityEcho)
	gated.Get("/account/session", identityEcho)
	gated.Post("/account/login", func(c *fiber.Ctx) error {
		identity, err := h.sessions.Start(c, "user-42")
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"subject": identity.Subject, "scheme": identity.Scheme})
	})
	gated.Post("/account/logout", func(c *fiber.Ctx) error {
		if err := h.sessions.End(c); err != nil {
			return err
		}
		return c.SendStatus(http.StatusNoContent)
	})
	return h
}

func identityEcho(c *fiber.Ctx) error {
	identity, ok := IdentityFromCtx(c)
	if !ok {
		return fiber.NewError(http.StatusInternalServerError, "identity missing")
	}
	fromCtx, ok := IdentityFromContext(c.UserContext())
	if !ok || fromCtx != identity {
		return fiber.NewError(http.StatusInternalServerError, "identity missing from user context")
	}
	return c.JSON(fiber.Map{"subject": identity.Subject, "scheme": identity.Scheme})
}

func (h *harness) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, string(body)
}

func bearerRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	return req
}

func TestCoordinator_SchemeFor(t *testing.T) {
	sc := NewSchemeCoordinator(testSessionConfig(), CoordinatorDependencies{})

	assert.Equal(t, SchemeCookie, sc.SchemeFor("/account/login"))
	assert.Equal(t, SchemeCookie, sc.SchemeFor("/account/logout/"))
	assert.Equal(t, SchemeCookie, sc.SchemeFor("/account/session"))
	assert.Equal(t, SchemeBearer, sc.SchemeFor("/api/v1/me"))
	assert.Equal(t, SchemeBearer, sc.SchemeFor("/account/login/extra"))
	assert.Equal(t, SchemeBearer, sc.SchemeFor("/"))
	assert.Equal(t, SchemeCookie, sc.SchemeFor("/Account/Login"))
	assert.Equal(t, SchemeCookie, sc.SchemeFor("/ACCOUNT/SESSION/"))
}

func TestCoordinator_MixedCaseLoginUsesCookieScheme(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, httptest.NewRequest(http.MethodPost, "/Account/Login", nil))

	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.JSONEq(t, `{"subject":"user-42","scheme":"cookie"}`, body)
	assert.Equal(t, 0, h.logs.FilterMessage("bearer authentication failed").Len())
}

func TestCoordinator_BearerValid(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, bearerRequest(validToken(t)))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"subject":"user-42","scheme":"bearer"}`, body)
	assert.Empty(t, resp.Header.Get(HeaderTokenExpired))
	assert.Empty(t, resp.Header.Get(HeaderInvalidToken))
	assert.Equal(t, int64(1), h.metrics.Snapshot().Outcomes["valid"])
	assert.Empty(t, h.dispatcher.published())
}

func TestCoordinator_BearerFailures(t *testing.T) {
	tests := []struct {
		name     string
		req      *http.Request
		wantFlag string
		wantBody string
		wantKind OutcomeKind
	}{
		{"expired", bearerRequest(expiredToken(t)), HeaderTokenExpired, `{"error":"Expired Token"}`, OutcomeExpired},
		{"tampered", bearerRequest(tamper(validToken(t))), HeaderInvalidToken, `{"error":"Invalid Token"}`, OutcomeInvalidSignature},
		{"malformed", bearerRequest("abc.def"), "", `{"error":"Unauthorized Access or Invalid Token!"}`, OutcomeMalformed},
		{"five garbage segments", bearerRequest("a.b.c.d.e"), "", `{"error":"Unauthorized Access or Invalid Token!"}`, OutcomeMalformed},
		{"five empty segments", bearerRequest("...."), "", `{"error":"Unauthorized Access or Invalid Token!"}`, OutcomeMalformed},
		{"missing header", bearerRequest(""), "", `{"error":"Unauthorized Access or Invalid Token!"}`, OutcomeMalformed},
		{"basic scheme", func() *http.Request {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			req.Header.Set(fiber.HeaderAuthorization, "Basic dXNlcjpwYXNz")
			return req
		}(), "", `{"error":"Unauthorized Access or Invalid Token!"}`, OutcomeMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			resp, body := h.do(t, tt.req)

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, fiber.MIMEApplicationJSON, resp.Header.Get(fiber.HeaderContentType))
			assert.JSONEq(t, tt.wantBody, body)
			if tt.wantFlag != "" {
				assert.Equal(t, "true", resp.Header.Get(tt.wantFlag))
			}
			for _, flag := range []string{HeaderTokenExpired, HeaderInvalidToken} {
				if flag != tt.wantFlag {
					assert.Empty(t, resp.Header.Get(flag))
				}
			}

			entries := h.logs.FilterMessage("bearer authentication failed").All()
			require.Len(t, entries, 1)
			assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
			assert.Equal(t, tt.wantKind.String(), entries[0].ContextMap()["outcome"])

			published := h.dispatcher.published()
			require.Len(t, published, 1)
			assert.Equal(t, events.EventBearerRejected, published[0].Type)
			assert.Equal(t, tt.wantKind.String(), published[0].Outcome)
			assert.Equal(t, int64(1), h.metrics.Snapshot().Outcomes[tt.wantKind.String()])
		})
	}
}

func TestCoordinator_DroppedAuditEventDoesNotChangeOutcome(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.err = events.ErrQueueFull

	resp, body := h.do(t, bearerRequest(expiredToken(t)))

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Expired Token"}`, body)
	assert.Equal(t, 1, h.logs.FilterMessage("audit event dropped").Len())
}

func TestCoordinator_ConcurrentRequestsKeepTheirOwnOutcome(t *testing.T) {
	h := newHarness(t)

	type want struct {
		status int
		flag   string
	}
	cases := []struct {
		token string
		want  want
	}{
		{validToken(t), want{http.StatusOK, ""}},
		{expiredToken(t), want{http.StatusUnauthorized, HeaderTokenExpired}},
		{tamper(validToken(t)), want{http.StatusUnauthorized, HeaderInvalidToken}},
		{"nope", want{http.StatusUnauthorized, ""}},
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for _, tc := range cases {
			wg.Add(1)
			go func(token string, w want) {
				defer wg.Done()
				resp, err := h.app.Test(bearerRequest(token), -1)
				if !assert.NoError(t, err) {
					return
				}
				defer resp.Body.Close()
				assert.Equal(t, w.status, resp.StatusCode)
				for _, flag := range []string{HeaderTokenExpired, HeaderInvalidToken} {
					if flag == w.flag {
						assert.Equal(t, "true", resp.Header.Get(flag))
					} else {
						assert.Empty(t, resp.Header.Get(flag))
					}
				}
			}(tc.token, tc.want)
		}
	}
	wg.Wait()

	outcomes := h.metrics.Snapshot().Outcomes
	assert.Equal(t, int64(10), outcomes["valid"])
	assert.Equal(t, int64(10), outcomes["expired"])
	assert.Equal(t, int64(10), outcomes["invalid_signature"])
	assert.Equal(t, int64(10), outcomes["malformed"])
}

func TestCoordinator_CancelledRequestAttachesNothing(t *testing.T) {
	cancelled := func(c *fiber.Ctx) error {
		ctx, cancel := context.WithCancel(c.UserContext())
		cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
	h := newHarness(t, cancelled)

	resp, body := h.do(t, bearerRequest(validToken(t)))

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.JSONEq(t, `{"error":{"code":"REQUEST_CANCELLED"}}`, body)
	assert.Empty(t, h.dispatcher.published())
	assert.Equal(t, 0, h.logs.FilterMessage("bearer authentication failed").Len())
}

func TestCoordinator_SessionRouteWithoutCookieRedirectsToLogin(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/account/session", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+validToken(t))
	resp, _ := h.do(t, req)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/account/login?next=%2Faccount%2Fsession", resp.Header.Get(fiber.HeaderLocation))
	assert.Empty(t, resp.Header.Get(HeaderTokenExpired))
	assert.Empty(t, resp.Header.Get(HeaderInvalidToken))
	assert.Equal(t, 0, h.logs.FilterMessage("bearer authentication failed").Len())
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "gateway_session" {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

func TestCoordinator_LoginSessionLogout(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, httptest.NewRequest(http.MethodPost, "/account/login", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	cookie := sessionCookie(t, resp)
	assert.True(t, cookie.HttpOnly)
	assert.NotEmpty(t, cookie.Value)
	assert.Equal(t, "/account", cookie.Path)
	assert.Contains(t, resp.Header.Get(fiber.HeaderSetCookie), "path=/account;")

	req := httptest.NewRequest(http.MethodGet, "/account/session", nil)
	req.AddCookie(cookie)
	resp, body = h.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.JSONEq(t, `{"subject":"user-42","scheme":"cookie"}`, body)

	// A session cookie is never accepted in place of a bearer token.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.AddCookie(cookie)
	resp, body = h.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Unauthorized Access or Invalid Token!"}`, body)

	req = httptest.NewRequest(http.MethodPost, "/account/logout", nil)
	req.AddCookie(cookie)
	resp, _ = h.do(t, req)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/account/session", nil)
	req.AddCookie(cookie)
	resp, _ = h.do(t, req)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestCoordinator_LogoutWithoutSession(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.do(t, httptest.NewRequest(http.MethodPost, "/account/logout", nil))

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestCoordinator_SessionExpiresAfterLifetime(t *testing.T) {
	h := newHarness(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	h.sessions.now = func() time.Time { return now }

	resp, _ := h.do(t, httptest.NewRequest(http.MethodPost, "/account/login", nil))
	cookie := sessionCookie(t, resp)

	check := func(at time.Time) int {
		h.sessions.now = func() time.Time { return at }
		req := httptest.NewRequest(http.MethodGet, "/account/session", nil)
		req.AddCookie(cookie)
		resp, _ := h.do(t, req)
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, check(now.Add(59*time.Minute)))
	assert.Equal(t, http.StatusFound, check(now.Add(60*time.Minute)))
	assert.Equal(t, http.StatusFound, check(now.Add(30*time.Minute)), "expired session must stay destroyed")
}

func TestCoordinator_BearerIdentityFields(t *testing.T) {
	issued := time.Now().Add(-time.Minute).Truncate(time.Second)
	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{
		Subject:   "user-7",
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(expires),
	})

	var identity *Identity
	app := fiber.New()
	sc := NewSchemeCoordinator(testSessionConfig(), CoordinatorDependencies{Validator: newTestValidator(t)})
	app.Get("/x", sc.Handle, func(c *fiber.Ctx) error {
		identity, _ = IdentityFromCtx(c)
		return c.SendStatus(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(fiber.HeaderAuthorization, "bearer "+token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NotNil(t, identity)
	assert.Equal(t, "user-7", identity.Subject)
	assert.True(t, identity.IssuedAt.Equal(issued))
	assert.True(t, identity.ExpiresAt.Equal(expires))
	assert.Equal(t, SchemeBearer, identity.Scheme)
	assert.Empty(t, identity.SessionID)
}
