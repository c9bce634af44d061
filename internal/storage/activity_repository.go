package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rental-lock-access/backend/internal/storage/models"
)

// ActivityRepository provides append-only access to the lock activity log.
// Records are never updated or deleted.
type ActivityRepository struct {
	BaseRepository
}

// NewActivityRepository creates a new activity repository.
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Append inserts a new activity record.
func (r *ActivityRepository) Append(ctx context.Context, activity *models.LockActivity) error {
	if activity.ID == "" {
		activity.ID = GenerateID()
	}
	activity.CreatedAt = r.Now()

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO lock_activities (
			id, lock_id, access_code_id, user_id, event_type, access_method, description, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		activity.ID, activity.LockID, activity.AccessCodeID, activity.UserID,
		activity.EventType, activity.AccessMethod, activity.Description, activity.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}

	return nil
}

// ListByLock retrieves the most recent activity for a lock, newest first.
func (r *ActivityRepository) ListByLock(ctx context.Context, lockID string, limit int) ([]models.LockActivity, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, lock_id, access_code_id, user_id, event_type, access_method, description, created_at
		FROM lock_activities
		WHERE lock_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, lockID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying activities: %w", err)
	}
	defer rows.Close()

	return r.scanActivities(rows)
}

func (r *ActivityRepository) scanActivities(rows *sql.Rows) ([]models.LockActivity, error) {
	var activities []models.LockActivity
	for rows.Next() {
		var a models.LockActivity
		if err := rows.Scan(
			&a.ID, &a.LockID, &a.AccessCodeID, &a.UserID,
			&a.EventType, &a.AccessMethod, &a.Description, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}
