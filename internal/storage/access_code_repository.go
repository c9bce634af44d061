package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rental-lock-access/backend/internal/storage/models"
)

// ErrDuplicateCode is returned when a code value collides with a live code on
// the same lock. The partial unique index enforces this under concurrency.
var ErrDuplicateCode = fmt.Errorf("access code already in use on this lock")

// AccessCodeRepository provides data access for the access-code ledger.
type AccessCodeRepository struct {
	BaseRepository
}

// NewAccessCodeRepository creates a new access code repository.
func NewAccessCodeRepository(db *DB) *AccessCodeRepository {
	return &AccessCodeRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const accessCodeColumns = `id, lock_id, booking_id, user_id, code, type, valid_from, valid_until,
	status, external_code_id, notified, notified_at, cleanup_attempts, created_at, updated_at`

// Create inserts a new access code. A collision with a live code on the same
// lock surfaces as ErrDuplicateCode.
func (r *AccessCodeRepository) Create(ctx context.Context, code *models.AccessCode) error {
	if code.ID == "" {
		code.ID = GenerateID()
	}
	code.CreatedAt = r.Now()
	code.UpdatedAt = r.Now()

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO access_codes (
			id, lock_id, booking_id, user_id, code, type, valid_from, valid_until,
			status, external_code_id, notified, notified_at, cleanup_attempts, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		code.ID, code.LockID, code.BookingID, code.UserID, code.Code, code.Type,
		code.ValidFrom, code.ValidUntil, code.Status, code.ExternalCodeID,
		code.Notified, code.NotifiedAt, code.CleanupAttempts, code.CreatedAt, code.UpdatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateCode
		}
		return fmt.Errorf("inserting access code: %w", err)
	}

	return nil
}

// GetByID retrieves an access code by its ID.
func (r *AccessCodeRepository) GetByID(ctx context.Context, id string) (*models.AccessCode, error) {
	code := &models.AccessCode{}

	err := r.DB().QueryRowContext(ctx, `
		SELECT `+accessCodeColumns+` FROM access_codes WHERE id = ?
	`, id).Scan(
		&code.ID, &code.LockID, &code.BookingID, &code.UserID, &code.Code, &code.Type,
		&code.ValidFrom, &code.ValidUntil, &code.Status, &code.ExternalCodeID,
		&code.Notified, &code.NotifiedAt, &code.CleanupAttempts, &code.CreatedAt, &code.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying access code: %w", err)
	}

	return code, nil
}

// FindLiveByBookingAndLock retrieves the non-terminal code already issued for
// a booking on a lock, if any. Used as the provisioning idempotency guard.
func (r *AccessCodeRepository) FindLiveByBookingAndLock(ctx context.Context, bookingID, lockID string) (*models.AccessCode, error) {
	code := &models.AccessCode{}

	err := r.DB().QueryRowContext(ctx, `
		SELECT `+accessCodeColumns+` FROM access_codes
		WHERE booking_id = ? AND lock_id = ? AND status IN (?, ?)
		LIMIT 1
	`, bookingID, lockID, models.CodeStatusPending, models.CodeStatusActive).Scan(
		&code.ID, &code.LockID, &code.BookingID, &code.UserID, &code.Code, &code.Type,
		&code.ValidFrom, &code.ValidUntil, &code.Status, &code.ExternalCodeID,
		&code.Notified, &code.NotifiedAt, &code.CleanupAttempts, &code.CreatedAt, &code.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying live code for booking: %w", err)
	}

	return code, nil
}

// CodeInUse reports whether a code value is held by a non-terminal code on the lock.
func (r *AccessCodeRepository) CodeInUse(ctx context.Context, lockID, code string) (bool, error) {
	var count int
	err := r.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM access_codes
		WHERE lock_id = ? AND code = ? AND status IN (?, ?)
	`, lockID, code, models.CodeStatusPending, models.CodeStatusActive).Scan(&count)

	if err != nil {
		return false, fmt.Errorf("checking code use: %w", err)
	}

	return count > 0, nil
}

// List retrieves access codes matching the optional lock, booking and user filters.
func (r *AccessCodeRepository) List(ctx context.Context, lockID, bookingID, userID, status string) ([]models.AccessCode, error) {
	query := `SELECT ` + accessCodeColumns + ` FROM access_codes WHERE 1=1`
	var args []any

	if lockID != "" {
		query += " AND lock_id = ?"
		args = append(args, lockID)
	}
	if bookingID != "" {
		query += " AND booking_id = ?"
		args = append(args, bookingID)
	}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY valid_from DESC"

	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying access codes: %w", err)
	}
	defer rows.Close()

	return r.scanCodes(rows)
}

// ListExpirable retrieves active codes whose validity window ended before now.
func (r *AccessCodeRepository) ListExpirable(ctx context.Context, now time.Time) ([]models.AccessCode, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+accessCodeColumns+` FROM access_codes
		WHERE status = ? AND valid_until IS NOT NULL AND valid_until < ?
		ORDER BY valid_until
	`, models.CodeStatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("querying expirable codes: %w", err)
	}
	defer rows.Close()

	return r.scanCodes(rows)
}

// ListCleanable retrieves expired codes that still have a vendor-side entry
// to remove and have not exhausted the cleanup retry budget.
func (r *AccessCodeRepository) ListCleanable(ctx context.Context, maxAttempts int) ([]models.AccessCode, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+accessCodeColumns+` FROM access_codes
		WHERE status = ? AND external_code_id IS NOT NULL AND cleanup_attempts < ?
		ORDER BY valid_until
	`, models.CodeStatusExpired, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("querying cleanable codes: %w", err)
	}
	defer rows.Close()

	return r.scanCodes(rows)
}

func (r *AccessCodeRepository) scanCodes(rows *sql.Rows) ([]models.AccessCode, error) {
	var codes []models.AccessCode
	for rows.Next() {
		var code models.AccessCode
		if err := rows.Scan(
			&code.ID, &code.LockID, &code.BookingID, &code.UserID, &code.Code, &code.Type,
			&code.ValidFrom, &code.ValidUntil, &code.Status, &code.ExternalCodeID,
			&code.Notified, &code.NotifiedAt, &code.CleanupAttempts, &code.CreatedAt, &code.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning access code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// Update updates an existing access code.
func (r *AccessCodeRepository) Update(ctx context.Context, code *models.AccessCode) error {
	code.UpdatedAt = r.Now()

	result, err := r.DB().ExecContext(ctx, `
		UPDATE access_codes SET
			code = ?, valid_from = ?, valid_until = ?, status = ?, external_code_id = ?,
			notified = ?, notified_at = ?, cleanup_attempts = ?, updated_at = ?
		WHERE id = ?
	`,
		code.Code, code.ValidFrom, code.ValidUntil, code.Status, code.ExternalCodeID,
		code.Notified, code.NotifiedAt, code.CleanupAttempts, code.UpdatedAt, code.ID,
	)

	if err != nil {
		return fmt.Errorf("updating access code: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("access code not found: %s", code.ID)
	}

	return nil
}
