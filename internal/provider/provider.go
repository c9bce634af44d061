// Package provider defines the lock vendor capability contract and its
// implementations. Adapters execute vendor-side operations only; they never
// mutate local state, so vendor behavior differences cannot leak into the
// ledger's invariants.
package provider

import (
	"context"
	"time"

	"github.com/rental-lock-access/backend/internal/storage/models"
)

// CodeResult is the vendor-side confirmation of a created or updated code.
type CodeResult struct {
	ExternalID string
	ValidFrom  time.Time
	ValidUntil time.Time
}

// LockStatus is the vendor-reported health of a single lock.
type LockStatus struct {
	BatteryLevel *int
	Status       string // coarse: "ok" or "error"
	ErrorMessage string
}

// ActivityEntry is one vendor-reported lock event. Entries are surfaced to
// callers as-is and are not merged into the local activity log.
type ActivityEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	EventType   string    `json:"event_type"`
	Code        string    `json:"code,omitempty"`
	Description string    `json:"description,omitempty"`
}

// SyncResult summarizes an adapter-side code reconciliation.
type SyncResult struct {
	CodesReported int
	Detail        string
}

// Adapter is the capability set every lock vendor integration implements.
// Every method may fail on network or vendor conditions; failures surface as
// errors and callers own all local state transitions.
type Adapter interface {
	// Name returns the registry key for this adapter.
	Name() string

	// TestConnection returns true iff a lightweight probe against the vendor
	// succeeds with the given opaque credential bundle.
	TestConnection(ctx context.Context, credentials string) bool

	// CreateAccessCode creates the code on the vendor side and returns the
	// vendor identifier with the echoed validity window.
	CreateAccessCode(ctx context.Context, lock *models.Lock, code *models.AccessCode) (*CodeResult, error)

	// UpdateAccessCode pushes changed code attributes to the vendor side.
	UpdateAccessCode(ctx context.Context, lock *models.Lock, code *models.AccessCode) (*CodeResult, error)

	// DeleteAccessCode removes the vendor-side entry. It must be safe to call
	// when the entry no longer exists.
	DeleteAccessCode(ctx context.Context, lock *models.Lock, code *models.AccessCode) (bool, error)

	// GetLockStatus reads battery level and coarse status.
	GetLockStatus(ctx context.Context, lock *models.Lock) (*LockStatus, error)

	// Lock engages the bolt remotely.
	Lock(ctx context.Context, lock *models.Lock) (bool, error)

	// Unlock disengages the bolt remotely.
	Unlock(ctx context.Context, lock *models.Lock) (bool, error)

	// GetActivityLogs returns vendor-reported events, optionally bounded by time.
	GetActivityLogs(ctx context.Context, lock *models.Lock, from, to *time.Time) ([]ActivityEntry, error)

	// SyncAccessCodes asks the vendor to reconcile its code table and reports
	// an adapter-specific summary.
	SyncAccessCodes(ctx context.Context, lock *models.Lock) (*SyncResult, error)
}
