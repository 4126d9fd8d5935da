package dto

import "time"

// LoginRequest payload for interactive login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// IdentityResponse describes the authenticated caller.
type IdentityResponse struct {
	Subject   string     `json:"subject"`
	Scheme    string     `json:"scheme"`
	IssuedAt  *time.Time `json:"issued_at,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
}
