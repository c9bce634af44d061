package models

import (
	"time"
)

// LockActivity is an append-only audit record of a lock event. Rows are
// written alongside every state-changing operation and never updated.
type LockActivity struct {
	ID           string    `json:"id"`
	LockID       string    `json:"lock_id"`
	AccessCodeID *string   `json:"access_code_id,omitempty"`
	UserID       *string   `json:"user_id,omitempty"`
	EventType    string    `json:"event_type"`
	AccessMethod *string   `json:"access_method,omitempty"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

// Activity event type constants
const (
	EventCodeCreated = "code_created"
	EventCodeDeleted = "code_deleted"
	EventLock        = "lock"
	EventUnlock      = "unlock"
	EventCodeUsed    = "code_used"
)

// Access method constants
const (
	AccessMethodRemote = "remote"
	AccessMethodCode   = "code"
	AccessMethodApp    = "app"
)
