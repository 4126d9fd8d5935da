package auth

import (
	jwt "github.com/golang-jwt/jwt/v5"
)

// OutcomeKind enumerates the mutually exclusive results of a validation attempt.
type OutcomeKind int

const (
	OutcomeValid OutcomeKind = iota
	OutcomeExpired
	OutcomeInvalidSignature
	OutcomeInvalidIssuer
	OutcomeDecryptionFailed
	OutcomeMalformed
	OutcomeUnclassified
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeValid:
		return "valid"
	case OutcomeExpired:
		return "expired"
	case OutcomeInvalidSignature:
		return "invalid_signature"
	case OutcomeInvalidIssuer:
		return "invalid_issuer"
	case OutcomeDecryptionFailed:
		return "decryption_failed"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unclassified"
	}
}

// Claims describes the JWT payload accepted by the gateway.
type Claims struct {
	jwt.RegisteredClaims
}

// Outcome is the result of validating one bearer token.
// Claims is set only when Kind is OutcomeValid; Err carries the cause of a
// failure and is meant for logs, never for response bodies.
type Outcome struct {
	Kind   OutcomeKind
	Claims *Claims
	Err    error
}

// Valid reports whether the token was accepted.
func (o Outcome) Valid() bool {
	return o.Kind == OutcomeValid && o.Claims != nil
}

func valid(claims *Claims) Outcome {
	return Outcome{Kind: OutcomeValid, Claims: claims}
}

func failed(kind OutcomeKind, err error) Outcome {
	return Outcome{Kind: kind, Err: err}
}
