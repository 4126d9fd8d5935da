package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gatewayd-labs/auth-gateway/internal/api/dto"
	"github.com/gatewayd-labs/auth-gateway/internal/auth"
	"github.com/gatewayd-labs/auth-gateway/internal/service"
	apperrors "github.com/gatewayd-labs/auth-gateway/pkg/util"
)

// SessionHandler exposes the interactive login, logout and session endpoints.
type SessionHandler struct {
	sessions *auth.SessionManager
	service  *service.SessionService
}

// NewSessionHandler constructs handler.
func NewSessionHandler(sessions *auth.SessionManager, sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions, service: sessionService}
}

// Login handles POST /account/login.
func (h *SessionHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return apperrors.NewValidationError("username and password required", nil)
	}

	meta := requestMeta(c)
	account, err := h.service.Authenticate(c.UserContext(), req.Username, req.Password, meta)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return apperrors.NewUnauthorized("invalid credentials")
		}
		return apperrors.NewServiceUnavailable("credential store unavailable", err)
	}

	identity, err := h.sessions.Start(c, account.ID)
	if err != nil {
		return apperrors.NewServiceUnavailable("session store unavailable", err)
	}
	h.service.SessionStarted(c.UserContext(), identity, meta)

	return c.JSON(fiber.Map{"data": identityResponse(identity)})
}

// Logout handles POST /account/logout. Logging out without a session succeeds.
func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	identity, _ := auth.IdentityFromCtx(c)
	if err := h.sessions.End(c); err != nil {
		return apperrors.NewServiceUnavailable("session store unavailable", err)
	}
	h.service.SessionEnded(c.UserContext(), identity, requestMeta(c))
	return c.SendStatus(http.StatusNoContent)
}

// Current handles GET /account/session.
func (h *SessionHandler) Current(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromCtx(c)
	if !ok {
		return apperrors.NewUnauthorized("no active session")
	}
	return c.JSON(fiber.Map{"data": identityResponse(identity)})
}

func requestMeta(c *fiber.Ctx) service.RequestMeta {
	return service.RequestMeta{Path: c.Path(), RemoteAddr: c.IP()}
}

func identityResponse(identity *auth.Identity) dto.IdentityResponse {
	resp := dto.IdentityResponse{
		Subject:   identity.Subject,
		Scheme:    string(identity.Scheme),
		ExpiresAt: identity.ExpiresAt,
	}
	if !identity.IssuedAt.IsZero() {
		issuedAt := identity.IssuedAt
		resp.IssuedAt = &issuedAt
	}
	return resp
}
