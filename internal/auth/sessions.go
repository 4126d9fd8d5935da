package auth

import (
	"fmt"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"

	"github.com/gatewayd-labs/auth-gateway/internal/config"
)

// Session data keys
const (
	sessionKeySubject  = "sub"
	sessionKeyIssuedAt = "iat"
)

// SessionManager issues and consumes session cookies for the interactive routes.
type SessionManager struct {
	store     *session.Store
	lifetime  time.Duration
	loginPath string
	now       func() time.Time
}

// NewSessionManager creates a cookie session manager over storage.
// A nil storage falls back to fiber's in-memory storage.
func NewSessionManager(cfg config.SessionConfig, storage fiber.Storage) *SessionManager {
	lifetime := cfg.Lifetime()
	store := session.New(session.Config{
		Expiration:     lifetime,
		Storage:        storage,
		KeyLookup:      "cookie:" + cfg.CookieName,
		CookiePath:     cfg.CookiePath(),
		CookieSecure:   cfg.SecureCookies,
		CookieHTTPOnly: true,
		CookieSameSite: fiber.CookieSameSiteStrictMode,
		KeyGenerator:   uuid.NewString,
	})

	return &SessionManager{
		store:     store,
		lifetime:  lifetime,
		loginPath: cfg.LoginPath,
		now:       time.Now,
	}
}

// Start binds a new session to subject and writes the cookie.
// The session id is regenerated to prevent fixation.
func (m *SessionManager) Start(c *fiber.Ctx, subject string) (*Identity, error) {
	sess, err := m.store.Get(c)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if err := sess.Regenerate(); err != nil {
		return nil, fmt.Errorf("regenerate session: %w", err)
	}

	issuedAt := m.now()
	sess.Set(sessionKeySubject, subject)
	sess.Set(sessionKeyIssuedAt, issuedAt.Unix())
	sess.SetExpiry(m.lifetime)
	if err := sess.Save(); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	return &Identity{
		Subject:   subject,
		IssuedAt:  time.Unix(issuedAt.Unix(), 0),
		ExpiresAt: time.Unix(issuedAt.Unix(), 0).Add(m.lifetime),
		Scheme:    SchemeCookie,
		SessionID: sess.ID(),
	}, nil
}

// Current returns the identity bound to the request's session, or nil when
// there is no session or its lifetime has elapsed. Elapsed sessions are destroyed.
func (m *SessionManager) Current(c *fiber.Ctx) (*Identity, error) {
	sess, err := m.store.Get(c)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Fresh() {
		return nil, nil
	}

	subject, _ := sess.Get(sessionKeySubject).(string)
	issuedUnix, _ := sess.Get(sessionKeyIssuedAt).(int64)
	if subject == "" || issuedUnix == 0 {
		return nil, nil
	}

	issuedAt := time.Unix(issuedUnix, 0)
	expiresAt := issuedAt.Add(m.lifetime)
	if !m.now().Before(expiresAt) {
		if err := sess.Destroy(); err != nil {
			return nil, fmt.Errorf("destroy expired session: %w", err)
		}
		return nil, nil
	}

	return &Identity{
		Subject:   subject,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Scheme:    SchemeCookie,
		SessionID: sess.ID(),
	}, nil
}

// End destroys the request's session and expires the cookie.
func (m *SessionManager) End(c *fiber.Ctx) error {
	sess, err := m.store.Get(c)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess.Fresh() {
		return nil
	}
	return sess.Destroy()
}

// RedirectToLogin sends the caller to the login path, remembering where it was going.
func (m *SessionManager) RedirectToLogin(c *fiber.Ctx) error {
	return c.Redirect(m.loginPath+"?next="+url.QueryEscape(c.Path()), fiber.StatusFound)
}
