package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rental-lock-access/backend/internal/storage/models"
)

// LockRepository provides data access for locks.
type LockRepository struct {
	BaseRepository
}

// NewLockRepository creates a new lock repository.
func NewLockRepository(db *DB) *LockRepository {
	return &LockRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const lockColumns = `id, property_id, name, provider_name, credentials, status,
	battery_level, last_synced_at, error_message, auto_generate_codes, created_at, updated_at`

// Create inserts a new lock.
func (r *LockRepository) Create(ctx context.Context, lock *models.Lock) error {
	if lock.ID == "" {
		lock.ID = GenerateID()
	}
	lock.CreatedAt = r.Now()
	lock.UpdatedAt = r.Now()

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO locks (
			id, property_id, name, provider_name, credentials, status,
			battery_level, last_synced_at, error_message, auto_generate_codes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		lock.ID, lock.PropertyID, lock.Name, lock.ProviderName, lock.Credentials, lock.Status,
		lock.BatteryLevel, lock.LastSyncedAt, lock.ErrorMessage, lock.AutoGenerateCodes,
		lock.CreatedAt, lock.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("inserting lock: %w", err)
	}

	return nil
}

// GetByID retrieves a lock by its ID.
func (r *LockRepository) GetByID(ctx context.Context, id string) (*models.Lock, error) {
	lock := &models.Lock{}

	err := r.DB().QueryRowContext(ctx, `
		SELECT `+lockColumns+` FROM locks WHERE id = ?
	`, id).Scan(
		&lock.ID, &lock.PropertyID, &lock.Name, &lock.ProviderName, &lock.Credentials, &lock.Status,
		&lock.BatteryLevel, &lock.LastSyncedAt, &lock.ErrorMessage, &lock.AutoGenerateCodes,
		&lock.CreatedAt, &lock.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying lock: %w", err)
	}

	return lock, nil
}

// FindProvisionTarget retrieves the lock that automatic provisioning should
// target for a property: active, auto-generate enabled, lowest id as the
// deterministic tie-break when a property has several locks.
func (r *LockRepository) FindProvisionTarget(ctx context.Context, propertyID string) (*models.Lock, error) {
	lock := &models.Lock{}

	err := r.DB().QueryRowContext(ctx, `
		SELECT `+lockColumns+` FROM locks
		WHERE property_id = ? AND status = ? AND auto_generate_codes = 1
		ORDER BY id
		LIMIT 1
	`, propertyID, models.LockStatusActive).Scan(
		&lock.ID, &lock.PropertyID, &lock.Name, &lock.ProviderName, &lock.Credentials, &lock.Status,
		&lock.BatteryLevel, &lock.LastSyncedAt, &lock.ErrorMessage, &lock.AutoGenerateCodes,
		&lock.CreatedAt, &lock.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying provision target: %w", err)
	}

	return lock, nil
}

// List retrieves all locks.
func (r *LockRepository) List(ctx context.Context) ([]models.Lock, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+lockColumns+` FROM locks ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying locks: %w", err)
	}
	defer rows.Close()

	return r.scanLocks(rows)
}

// ListByStatus retrieves all locks with the given status.
func (r *LockRepository) ListByStatus(ctx context.Context, status string) ([]models.Lock, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+lockColumns+` FROM locks WHERE status = ? ORDER BY name
	`, status)
	if err != nil {
		return nil, fmt.Errorf("querying locks by status: %w", err)
	}
	defer rows.Close()

	return r.scanLocks(rows)
}

func (r *LockRepository) scanLocks(rows *sql.Rows) ([]models.Lock, error) {
	var locks []models.Lock
	for rows.Next() {
		var lock models.Lock
		if err := rows.Scan(
			&lock.ID, &lock.PropertyID, &lock.Name, &lock.ProviderName, &lock.Credentials, &lock.Status,
			&lock.BatteryLevel, &lock.LastSyncedAt, &lock.ErrorMessage, &lock.AutoGenerateCodes,
			&lock.CreatedAt, &lock.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning lock: %w", err)
		}
		locks = append(locks, lock)
	}
	return locks, rows.Err()
}

// UpdateHealth records the result of a provider status sync: coarse status,
// battery level and error message, plus the sync timestamp.
func (r *LockRepository) UpdateHealth(ctx context.Context, id, status string, batteryLevel *int, errorMessage *string) error {
	now := time.Now().UTC()

	_, err := r.DB().ExecContext(ctx, `
		UPDATE locks SET
			status = ?, battery_level = ?, error_message = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ?
	`, status, batteryLevel, errorMessage, now, now, id)

	if err != nil {
		return fmt.Errorf("updating lock health: %w", err)
	}

	return nil
}
