package types

import "time"

// UserSession is the revocable server-side record created on every login.
// It is independent of the signed token handed to the client.
type UserSession struct {
	// ID is the surrogate key of the session row.
	ID int64 `json:"id" db:"id"`

	// UserID identifies the owner of the session.
	UserID int64 `json:"user_id" db:"user_id"`

	// SessionID is an opaque unique token (UUIDv4).
	SessionID string `json:"session_id" db:"session_id"`

	// CreatedAt is the time the session was opened.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// ExpiresAt is the time after which the session is no longer valid.
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	// IsActive is cleared on logout.
	IsActive bool `json:"is_active" db:"is_active"`
}

// Valid reports whether the session is active and unexpired at now.
func (s UserSession) Valid(now time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(now)
}
