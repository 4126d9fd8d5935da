package domain

import "time"

// Account is a login identity read from the credential store.
type Account struct {
	ID           string
	Username     string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
