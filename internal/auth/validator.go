package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/gatewayd-labs/auth-gateway/internal/config"
)

// ErrMissingSigningSecret is returned when a validator is built without a secret.
var ErrMissingSigningSecret = errors.New("signing secret is required")

var errDecryptionKeyMissing = errors.New("encrypted token presented but no decryption key is configured")

var (
	allowedAlgs = []string{
		jwt.SigningMethodHS256.Alg(),
		jwt.SigningMethodHS384.Alg(),
		jwt.SigningMethodHS512.Alg(),
	}
	allowedContentEncryption = []jose.ContentEncryption{jose.A128GCM, jose.A192GCM, jose.A256GCM}
)

// ValidatorOptions configures bearer token validation.
// Issuer and audience checks are off unless their toggle is set.
type ValidatorOptions struct {
	Secret           []byte
	ValidateIssuer   bool
	Issuer           string
	ValidateAudience bool
	Audience         string
	Leeway           time.Duration
	DecryptionKey    []byte
	Now              func() time.Time
}

// OptionsFromConfig maps the auth configuration onto validator options.
func OptionsFromConfig(cfg config.AuthConfig) ValidatorOptions {
	opts := ValidatorOptions{
		Secret:           []byte(cfg.JWTSecret),
		ValidateIssuer:   cfg.ValidateIssuer,
		Issuer:           cfg.ValidIssuer,
		ValidateAudience: cfg.ValidateAudience,
		Audience:         cfg.ValidAudience,
		Leeway:           cfg.ClockSkew(),
	}
	if cfg.DecryptionKey != "" {
		opts.DecryptionKey = []byte(cfg.DecryptionKey)
	}
	return opts
}

// TokenValidator verifies bearer tokens against the configured signing secret.
// It holds no mutable state and is safe for concurrent use.
type TokenValidator struct {
	secret        []byte
	decryptionKey []byte
	leeway        time.Duration
	now           func() time.Time
	parser        *jwt.Parser
}

// NewTokenValidator builds a validator; the secret is copied and never mutated.
func NewTokenValidator(opts ValidatorOptions) (*TokenValidator, error) {
	if len(opts.Secret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	if opts.ValidateIssuer && opts.Issuer == "" {
		return nil, errors.New("issuer validation enabled without an issuer")
	}
	if opts.ValidateAudience && opts.Audience == "" {
		return nil, errors.New("audience validation enabled without an audience")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(allowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(opts.Leeway),
		jwt.WithTimeFunc(now),
	}
	if opts.ValidateIssuer {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.ValidateAudience {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
	}

	v := &TokenValidator{
		secret: append([]byte(nil), opts.Secret...),
		leeway: opts.Leeway,
		now:    now,
		parser: jwt.NewParser(parserOpts...),
	}
	if len(opts.DecryptionKey) > 0 {
		v.decryptionKey = append([]byte(nil), opts.DecryptionKey...)
	}
	return v, nil
}

// Validate produces exactly one Outcome for the presented token.
//
// Failure precedence when several faults apply: Malformed, Expired,
// InvalidSignature, InvalidIssuer, DecryptionFailed, Unclassified. An expired
// token with a bad signature is therefore reported as Expired.
func (v *TokenValidator) Validate(ctx context.Context, raw string) Outcome {
	if err := ctx.Err(); err != nil {
		return failed(OutcomeUnclassified, err)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return failed(OutcomeMalformed, jwt.ErrTokenMalformed)
	}

	if strings.Count(raw, ".") == 4 {
		object, err := jose.ParseEncrypted(raw, []jose.KeyAlgorithm{jose.DIRECT}, allowedContentEncryption)
		if err != nil {
			return failed(OutcomeMalformed, fmt.Errorf("%w: %v", jwt.ErrTokenMalformed, err))
		}
		plaintext, err := v.decrypt(object)
		if err != nil {
			return failed(OutcomeDecryptionFailed, err)
		}
		raw = plaintext
	}

	outcome := v.validateSigned(raw)
	if err := ctx.Err(); err != nil {
		return failed(OutcomeUnclassified, err)
	}
	return outcome
}

func (v *TokenValidator) validateSigned(raw string) Outcome {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(raw, claims, v.keyFunc)
	if err == nil && token.Valid {
		return valid(claims)
	}
	if err == nil {
		err = errors.New("token not marked valid")
	}

	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return failed(OutcomeMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired), v.expired(claims):
		return failed(OutcomeExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return failed(OutcomeInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		return failed(OutcomeInvalidIssuer, err)
	default:
		return failed(OutcomeUnclassified, err)
	}
}

func (v *TokenValidator) keyFunc(_ *jwt.Token) (any, error) {
	return v.secret, nil
}

// expired checks the unverified exp claim so an expired token is reported as
// such even when its signature does not verify.
func (v *TokenValidator) expired(claims *Claims) bool {
	if claims == nil || claims.ExpiresAt == nil {
		return false
	}
	return !v.now().Before(claims.ExpiresAt.Add(v.leeway))
}

// decrypt opens a parsed JWE. Only a structurally valid JWE reaches this
// point; anything that does not parse is reported as malformed.
func (v *TokenValidator) decrypt(object *jose.JSONWebEncryption) (string, error) {
	if v.decryptionKey == nil {
		return "", errDecryptionKeyMissing
	}
	plaintext, err := object.Decrypt(v.decryptionKey)
	if err != nil {
		return "", fmt.Errorf("decrypt token: %w", err)
	}
	return string(plaintext), nil
}
