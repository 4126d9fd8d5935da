package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatewayd-labs/auth-gateway/internal/auth"
	"github.com/gatewayd-labs/auth-gateway/internal/domain"
	"github.com/gatewayd-labs/auth-gateway/internal/events"
	"github.com/gatewayd-labs/auth-gateway/internal/repository"
)

// ErrInvalidCredentials covers unknown usernames, inactive accounts and wrong passwords alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// RequestMeta carries request details recorded with audit events.
type RequestMeta struct {
	Path       string
	RemoteAddr string
}

// SessionService verifies login credentials and records session lifecycle events.
type SessionService struct {
	accounts repository.AccountRepository
	events   events.Dispatcher
	logger   *zap.Logger

	dummyOnce sync.Once
	dummyHash string
}

// SessionDependencies encapsulates collaborators for the session service.
type SessionDependencies struct {
	AccountRepo repository.AccountRepository
	Events      events.Dispatcher
	Logger      *zap.Logger
}

// NewSessionService builds the service.
func NewSessionService(deps SessionDependencies) *SessionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		accounts: deps.AccountRepo,
		events:   deps.Events,
		logger:   logger,
	}
}

// Authenticate checks a username and password against the credential store.
func (s *SessionService) Authenticate(ctx context.Context, username, password string, meta RequestMeta) (*domain.Account, error) {
	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lookup account: %w", err)
		}
		// Unknown users still pay for a bcrypt comparison.
		_ = auth.ComparePassword(s.fallbackHash(), password)
		s.loginFailed(ctx, username, "unknown_account", meta)
		return nil, ErrInvalidCredentials
	}

	if err := auth.ComparePassword(account.PasswordHash, password); err != nil {
		s.loginFailed(ctx, username, "wrong_password", meta)
		return nil, ErrInvalidCredentials
	}
	if !account.Active {
		s.loginFailed(ctx, username, "inactive_account", meta)
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// SessionStarted records a newly issued session.
func (s *SessionService) SessionStarted(ctx context.Context, identity *auth.Identity, meta RequestMeta) {
	s.publish(ctx, events.Event{
		Type:       events.EventSessionStarted,
		Subject:    identity.Subject,
		Path:       meta.Path,
		RemoteAddr: meta.RemoteAddr,
	})
}

// SessionEnded records a logout; identity is nil when no session was present.
func (s *SessionService) SessionEnded(ctx context.Context, identity *auth.Identity, meta RequestMeta) {
	event := events.Event{
		Type:       events.EventSessionEnded,
		Path:       meta.Path,
		RemoteAddr: meta.RemoteAddr,
	}
	if identity != nil {
		event.Subject = identity.Subject
	}
	s.publish(ctx, event)
}

func (s *SessionService) loginFailed(ctx context.Context, username, reason string, meta RequestMeta) {
	s.logger.Warn("login failed", zap.String("username", username), zap.String("reason", reason))
	s.publish(ctx, events.Event{
		Type:       events.EventLoginFailed,
		Subject:    username,
		Outcome:    reason,
		Path:       meta.Path,
		RemoteAddr: meta.RemoteAddr,
	})
}

func (s *SessionService) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("audit event dropped", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func (s *SessionService) fallbackHash() string {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("gateway-unknown-account"), bcrypt.DefaultCost)
		if err == nil {
			s.dummyHash = string(hash)
		}
	})
	return s.dummyHash
}
