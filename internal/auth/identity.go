package auth

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const identityKey = "auth_identity"

type identityCtxKey struct{}

// Scheme names the authentication scheme that handled a request.
type Scheme string

const (
	SchemeBearer Scheme = "bearer"
	SchemeCookie Scheme = "cookie"
)

// Identity represents the authenticated caller for the lifetime of one request.
type Identity struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Scheme    Scheme
	SessionID string
}

// IdentityFromClaims builds a bearer identity from validated claims.
func IdentityFromClaims(claims *Claims) *Identity {
	identity := &Identity{Subject: claims.Subject, Scheme: SchemeBearer}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity
}

func attachIdentity(c *fiber.Ctx, identity *Identity) {
	c.Locals(identityKey, identity)
	c.SetUserContext(context.WithValue(c.UserContext(), identityCtxKey{}, identity))
}

// IdentityFromCtx retrieves the identity attached to a fiber request.
func IdentityFromCtx(c *fiber.Ctx) (*Identity, bool) {
	val := c.Locals(identityKey)
	if val == nil {
		return nil, false
	}
	identity, ok := val.(*Identity)
	return identity, ok
}

// IdentityFromContext retrieves the identity from a request's user context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityCtxKey{}).(*Identity)
	return identity, ok
}
