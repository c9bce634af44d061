package models

import (
	"time"
)

// AccessCode represents a credential issued for a lock, optionally tied to a
// booking. Terminal codes are never deleted; they are kept for audit.
type AccessCode struct {
	ID              string     `json:"id"`
	LockID          string     `json:"lock_id"`
	BookingID       *string    `json:"booking_id,omitempty"`
	UserID          string     `json:"user_id"`
	Code            string     `json:"code"`
	Type            string     `json:"type"`
	ValidFrom       time.Time  `json:"valid_from"`
	ValidUntil      *time.Time `json:"valid_until,omitempty"`
	Status          string     `json:"status"`
	ExternalCodeID  *string    `json:"external_code_id,omitempty"`
	Notified        bool       `json:"notified"`
	NotifiedAt      *time.Time `json:"notified_at,omitempty"`
	CleanupAttempts int        `json:"cleanup_attempts"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Access code type constants
const (
	CodeTypeTemporary = "temporary"
	CodeTypePermanent = "permanent"
)

// Access code status constants. Expired and revoked are terminal.
const (
	CodeStatusPending = "pending"
	CodeStatusActive  = "active"
	CodeStatusExpired = "expired"
	CodeStatusRevoked = "revoked"
)

// Terminal returns true if the code is in a state no transition leaves.
func (c *AccessCode) Terminal() bool {
	return c.Status == CodeStatusExpired || c.Status == CodeStatusRevoked
}

// ValidAt returns true if the code's validity window covers the given time.
// Permanent codes with no end date are valid from their start indefinitely.
func (c *AccessCode) ValidAt(now time.Time) bool {
	if now.Before(c.ValidFrom) {
		return false
	}
	return c.ValidUntil == nil || now.Before(*c.ValidUntil)
}
