package domain

import "time"

// AuthEvent is a persisted audit record of an authentication decision.
type AuthEvent struct {
	ID         string
	Type       string
	Subject    *string
	Outcome    *string
	Path       string
	RemoteAddr *string
	OccurredAt time.Time
}
