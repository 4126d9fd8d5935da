package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventBearerRejected EventType = "bearer_rejected"
	EventSessionStarted EventType = "session_started"
	EventSessionEnded   EventType = "session_ended"
	EventLoginFailed    EventType = "login_failed"
)

// AllEventTypes lists every event the gateway emits.
var AllEventTypes = []EventType{
	EventBearerRejected,
	EventSessionStarted,
	EventSessionEnded,
	EventLoginFailed,
}

// Event represents an authentication event emitted by the gateway.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Subject    string    `json:"subject,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Path       string    `json:"path"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
