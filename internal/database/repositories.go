package database

import (
	"context"

	"github.com/benvon/flowstate/internal/models"
)

// SnapshotRepositoryInterface defines snapshot persistence used by handlers, the worker and the CLI
type SnapshotRepositoryInterface interface {
	Save(ctx context.Context, payload *models.ExportPayload) error
	GetByUserID(ctx context.Context, userID string) (*models.Snapshot, error)
	LoadSnapshot(ctx context.Context, userID string) (*models.ExportPayload, error)
	Delete(ctx context.Context, userID string) error
	ListUserIDs(ctx context.Context) ([]string, error)
}

// TagStatisticsRepositoryInterface defines the interface for tag statistics repository operations
type TagStatisticsRepositoryInterface interface {
	GetByUserID(ctx context.Context, userID string) (*models.TagStatistics, error)
	GetByUserIDOrCreate(ctx context.Context, userID string) (*models.TagStatistics, error)
	UpdateStatistics(ctx context.Context, stats *models.TagStatistics) (bool, error)
	MarkTainted(ctx context.Context, userID string) (bool, error)
	Delete(ctx context.Context, userID string) error
}

// Ensure concrete types implement the interfaces
var (
	_ SnapshotRepositoryInterface      = (*SnapshotRepository)(nil)
	_ TagStatisticsRepositoryInterface = (*TagStatisticsRepository)(nil)
)
