package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rental-lock-access/backend/internal/storage/models"
)

func newMockForTest() *MockAdapter {
	a := NewMockAdapter("mock")
	a.SetLatency(0)
	return a
}

func testLock() *models.Lock {
	return &models.Lock{ID: "lock-1", ProviderName: "mock", Status: models.LockStatusActive}
}

func TestMockCreateAndDelete(t *testing.T) {
	a := newMockForTest()
	ctx := context.Background()
	lock := testLock()

	code := &models.AccessCode{ID: "code-1", LockID: lock.ID, Code: "123456"}
	result, err := a.CreateAccessCode(ctx, lock, code)
	require.NoError(t, err)
	assert.Equal(t, "mock-code-1", result.ExternalID)

	sync, err := a.SyncAccessCodes(ctx, lock)
	require.NoError(t, err)
	assert.Equal(t, 1, sync.CodesReported)

	code.ExternalCodeID = &result.ExternalID
	ok, err := a.DeleteAccessCode(ctx, lock, code)
	require.NoError(t, err)
	assert.True(t, ok)

	sync, err = a.SyncAccessCodes(ctx, lock)
	require.NoError(t, err)
	assert.Equal(t, 0, sync.CodesReported)
}

func TestMockDeleteUnknownCodeSucceeds(t *testing.T) {
	a := newMockForTest()

	extID := "never-created"
	code := &models.AccessCode{ID: "code-1", ExternalCodeID: &extID}

	ok, err := a.DeleteAccessCode(context.Background(), testLock(), code)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMockStatusAndCalls(t *testing.T) {
	a := newMockForTest()
	a.SetBatteryLevel(42)

	status, err := a.GetLockStatus(context.Background(), testLock())
	require.NoError(t, err)
	require.NotNil(t, status.BatteryLevel)
	assert.Equal(t, 42, *status.BatteryLevel)
	assert.Equal(t, "ok", status.Status)

	assert.Equal(t, 1, a.Calls("get_lock_status"))
	assert.Equal(t, 0, a.Calls("lock"))
}

func TestMockHonorsContextCancellation(t *testing.T) {
	a := NewMockAdapter("mock")
	a.SetLatency(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.GetLockStatus(ctx, testLock())
	assert.ErrorIs(t, err, context.Canceled)
}
