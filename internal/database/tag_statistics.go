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

// ErrTagStatisticsNotFound is returned when no rollup row exists for a user
var ErrTagStatisticsNotFound = errors.New("tag statistics not found")

// TagStatisticsRepository handles tag statistics database operations
type TagStatisticsRepository struct {
	db *DB
}

// NewTagStatisticsRepository creates a new tag statistics repository
func NewTagStatisticsRepository(db *DB) *TagStatisticsRepository {
	return &TagStatisticsRepository{db: db}
}

// GetByUserID retrieves tag statistics by user ID
func (r *TagStatisticsRepository) GetByUserID(ctx context.Context, userID string) (*models.TagStatistics, error) {
	stats := &models.TagStatistics{}
	var analyticsJSON []byte
	var lastAnalyzedAt, createdAt, updatedAt timestamp

	query := `
		SELECT user_id, analytics, tainted, last_analyzed_at, analysis_version, created_at, updated_at
		FROM tag_statistics
		WHERE user_id = $1
	`

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&stats.UserID,
		&analyticsJSON,
		&stats.Tainted,
		&lastAnalyzedAt,
		&stats.AnalysisVersion,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w for user %s", ErrTagStatisticsNotFound, userID)
		}
		return nil, fmt.Errorf("failed to get tag statistics: %w", err)
	}

	if len(analyticsJSON) > 0 {
		if err := json.Unmarshal(analyticsJSON, &stats.Analytics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal analytics: %w", err)
		}
	}

	stats.LastAnalyzedAt = lastAnalyzedAt.ptr()
	stats.CreatedAt = createdAt.Time
	stats.UpdatedAt = updatedAt.Time
	return stats, nil
}

// GetByUserIDOrCreate retrieves tag statistics or creates a tainted placeholder row
func (r *TagStatisticsRepository) GetByUserIDOrCreate(ctx context.Context, userID string) (*models.TagStatistics, error) {
	stats, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return stats, nil
	}
	if !errors.Is(err, ErrTagStatisticsNotFound) {
		return nil, err
	}

	// A row created between the read and the insert is kept as is
	if _, err := r.insertTainted(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to create tag statistics: %w", err)
	}

	return r.GetByUserID(ctx, userID)
}

// UpdateStatistics stores a fresh rollup if the stored version still matches stats.AnalysisVersion.
// Returns false on a version conflict.
func (r *TagStatisticsRepository) UpdateStatistics(ctx context.Context, stats *models.TagStatistics) (bool, error) {
	query := `
		UPDATE tag_statistics
		SET analytics = $1, tainted = $2, last_analyzed_at = $3, analysis_version = analysis_version + 1, updated_at = $4
		WHERE user_id = $5 AND analysis_version = $6
		RETURNING analysis_version, created_at, updated_at
	`

	analyticsJSON, err := json.Marshal(stats.Analytics)
	if err != nil {
		return false, fmt.Errorf("failed to marshal analytics: %w", err)
	}

	now := time.Now().UTC()
	analyzedAt := now
	if stats.LastAnalyzedAt != nil {
		analyzedAt = *stats.LastAnalyzedAt
	}

	var newVersion int
	var createdAt, updatedAt timestamp
	err = r.db.QueryRowContext(ctx, query,
		string(analyticsJSON),
		false,
		r.db.timeArg(analyzedAt),
		r.db.timeArg(now),
		stats.UserID,
		stats.AnalysisVersion,
	).Scan(&newVersion, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to update tag statistics: %w", err)
	}

	stats.AnalysisVersion = newVersion
	stats.Tainted = false
	stats.LastAnalyzedAt = &analyzedAt
	stats.CreatedAt = createdAt.Time
	stats.UpdatedAt = updatedAt.Time
	return true, nil
}

// MarkTainted flags a user's rollup as stale, creating the row if needed, and bumps
// analysis_version so an in-flight rollup computed from older state loses its version check.
// Returns true only on a clean-to-tainted transition (including row creation).
func (r *TagStatisticsRepository) MarkTainted(ctx context.Context, userID string) (bool, error) {
	now := r.db.timeArg(time.Now())

	var resultID string
	err := r.db.QueryRowContext(ctx, `
		UPDATE tag_statistics
		SET tainted = $1, analysis_version = analysis_version + 1, updated_at = $2
		WHERE user_id = $3 AND tainted = $4
		RETURNING user_id
	`, true, now, userID, false).Scan(&resultID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to mark tainted: %w", err)
	}

	inserted, err := r.insertTainted(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to create tainted statistics: %w", err)
	}
	if inserted {
		return true, nil
	}

	// Already tainted
	if _, err := r.db.ExecContext(ctx, `
		UPDATE tag_statistics
		SET analysis_version = analysis_version + 1, updated_at = $1
		WHERE user_id = $2
	`, now, userID); err != nil {
		return false, fmt.Errorf("failed to bump analysis version: %w", err)
	}
	return false, nil
}

// insertTainted creates a tainted version-0 row unless one exists. Reports whether it inserted.
func (r *TagStatisticsRepository) insertTainted(ctx context.Context, userID string) (bool, error) {
	now := r.db.timeArg(time.Now())
	var resultID string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO tag_statistics (user_id, analytics, tainted, analysis_version, created_at, updated_at)
		VALUES ($1, '{}', $2, 0, $3, $3)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING user_id
	`, userID, true, now).Scan(&resultID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes a user's rollup
func (r *TagStatisticsRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tag_statistics WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete tag statistics: %w", err)
	}
	return nil
}
