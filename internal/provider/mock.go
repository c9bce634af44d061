package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rental-lock-access/backend/internal/storage/models"
)

// MockAdapter is a deterministic adapter for exercising the orchestration
// service without live vendor calls. Every operation succeeds after a short
// simulated latency.
type MockAdapter struct {
	name    string
	latency time.Duration

	mu      sync.Mutex
	battery int
	codes   map[string]string // external id -> code value
	calls   map[string]int
}

// NewMockAdapter creates a mock adapter registered under the given name.
func NewMockAdapter(name string) *MockAdapter {
	return &MockAdapter{
		name:    name,
		latency: 50 * time.Millisecond,
		battery: 85,
		codes:   make(map[string]string),
		calls:   make(map[string]int),
	}
}

// SetBatteryLevel overrides the battery level reported by GetLockStatus.
func (a *MockAdapter) SetBatteryLevel(level int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.battery = level
}

// SetLatency overrides the simulated per-call latency.
func (a *MockAdapter) SetLatency(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latency = d
}

// Calls returns how many times the named operation was invoked.
func (a *MockAdapter) Calls(op string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[op]
}

// simulate records the call and sleeps for the simulated latency, honoring
// context cancellation the way a real network call would.
func (a *MockAdapter) simulate(ctx context.Context, op string) error {
	a.mu.Lock()
	a.calls[op]++
	latency := a.latency
	a.mu.Unlock()

	select {
	case <-time.After(latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name returns the registry key for this adapter.
func (a *MockAdapter) Name() string {
	return a.name
}

// TestConnection always succeeds.
func (a *MockAdapter) TestConnection(ctx context.Context, credentials string) bool {
	return a.simulate(ctx, "test_connection") == nil
}

// CreateAccessCode records the code and returns a synthetic vendor identifier.
func (a *MockAdapter) CreateAccessCode(ctx context.Context, lock *models.Lock, code *models.AccessCode) (*CodeResult, error) {
	if err := a.simulate(ctx, "create_access_code"); err != nil {
		return nil, err
	}

	externalID := fmt.Sprintf("mock-%s", code.ID)

	a.mu.Lock()
	a.codes[externalID] = code.Code
	a.mu.Unlock()

	result := &CodeResult{ExternalID: externalID, ValidFrom: code.ValidFrom}
	if code.ValidUntil != nil {
		result.ValidUntil = *code.ValidUntil
	}
	return result, nil
}

// UpdateAccessCode echoes the updated window.
func (a *MockAdapter) UpdateAccessCode(ctx context.Context, lock *models.Lock, code *models.AccessCode) (*CodeResult, error) {
	if err := a.simulate(ctx, "update_access_code"); err != nil {
		return nil, err
	}
	if code.ExternalCodeID == nil {
		return nil, fmt.Errorf("code %s has no vendor-side identifier", code.ID)
	}

	a.mu.Lock()
	a.codes[*code.ExternalCodeID] = code.Code
	a.mu.Unlock()

	result := &CodeResult{ExternalID: *code.ExternalCodeID, ValidFrom: code.ValidFrom}
	if code.ValidUntil != nil {
		result.ValidUntil = *code.ValidUntil
	}
	return result, nil
}

// DeleteAccessCode removes the recorded code; deleting an unknown entry succeeds.
func (a *MockAdapter) DeleteAccessCode(ctx context.Context, lock *models.Lock, code *models.AccessCode) (bool, error) {
	if err := a.simulate(ctx, "delete_access_code"); err != nil {
		return false, err
	}

	if code.ExternalCodeID != nil {
		a.mu.Lock()
		delete(a.codes, *code.ExternalCodeID)
		a.mu.Unlock()
	}

	return true, nil
}

// GetLockStatus reports the configured battery level and an ok status.
func (a *MockAdapter) GetLockStatus(ctx context.Context, lock *models.Lock) (*LockStatus, error) {
	if err := a.simulate(ctx, "get_lock_status"); err != nil {
		return nil, err
	}

	a.mu.Lock()
	battery := a.battery
	a.mu.Unlock()

	return &LockStatus{BatteryLevel: &battery, Status: "ok"}, nil
}

// Lock always succeeds.
func (a *MockAdapter) Lock(ctx context.Context, lock *models.Lock) (bool, error) {
	if err := a.simulate(ctx, "lock"); err != nil {
		return false, err
	}
	return true, nil
}

// Unlock always succeeds.
func (a *MockAdapter) Unlock(ctx context.Context, lock *models.Lock) (bool, error) {
	if err := a.simulate(ctx, "unlock"); err != nil {
		return false, err
	}
	return true, nil
}

// GetActivityLogs returns an empty event list.
func (a *MockAdapter) GetActivityLogs(ctx context.Context, lock *models.Lock, from, to *time.Time) ([]ActivityEntry, error) {
	if err := a.simulate(ctx, "get_activity_logs"); err != nil {
		return nil, err
	}
	return []ActivityEntry{}, nil
}

// SyncAccessCodes reports the number of codes held on the vendor side.
func (a *MockAdapter) SyncAccessCodes(ctx context.Context, lock *models.Lock) (*SyncResult, error) {
	if err := a.simulate(ctx, "sync_access_codes"); err != nil {
		return nil, err
	}

	a.mu.Lock()
	count := len(a.codes)
	a.mu.Unlock()

	return &SyncResult{CodesReported: count, Detail: "mock reconciliation"}, nil
}
