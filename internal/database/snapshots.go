package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/flowstate/internal/models"
)

// ErrSnapshotNotFound is returned when a user has no persisted tracker state
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotRepository persists each user's tracker export payload
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save upserts the snapshot for payload.UserID
func (r *SnapshotRepository) Save(ctx context.Context, payload *models.ExportPayload) error {
	if payload.UserID == "" {
		return fmt.Errorf("snapshot user_id cannot be empty")
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot payload: %w", err)
	}

	now := r.db.timeArg(time.Now())
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tracker_snapshots (user_id, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
	`, payload.UserID, string(payloadJSON), now, now)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetByUserID retrieves a user's snapshot. Returns ErrSnapshotNotFound when none exists.
func (r *SnapshotRepository) GetByUserID(ctx context.Context, userID string) (*models.Snapshot, error) {
	var payloadJSON []byte
	var createdAt, updatedAt timestamp

	snapshot := &models.Snapshot{}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, payload, created_at, updated_at
		FROM tracker_snapshots
		WHERE user_id = $1
	`, userID).Scan(&snapshot.UserID, &payloadJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if err := json.Unmarshal(payloadJSON, &snapshot.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot payload: %w", err)
	}
	snapshot.CreatedAt = createdAt.Time
	snapshot.UpdatedAt = updatedAt.Time
	return snapshot, nil
}

// LoadSnapshot returns the stored payload, or nil when the user has none
func (r *SnapshotRepository) LoadSnapshot(ctx context.Context, userID string) (*models.ExportPayload, error) {
	snapshot, err := r.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot.Payload, nil
}

// Delete removes a user's snapshot. Deleting a missing snapshot is not an error.
func (r *SnapshotRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tracker_snapshots WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// ListUserIDs returns every user with a stored snapshot, sorted
func (r *SnapshotRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM tracker_snapshots ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot user: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list snapshot users: %w", err)
	}
	return ids, nil
}
