package handlers

import (
	"context"
	"sync"
	"time"

	logpkg "github.com/benvon/flowstate/internal/logger"
	"github.com/benvon/flowstate/internal/models"
	"github.com/benvon/flowstate/internal/queue"
	"github.com/benvon/flowstate/internal/tracker"
	"go.uber.org/zap"
)

// SnapshotWriter persists and removes a user's tracker snapshot
type SnapshotWriter interface {
	Save(ctx context.Context, payload *models.ExportPayload) error
	Delete(ctx context.Context, userID string) error
}

// TagStatisticsStore is the part of the rollup repository handlers touch
type TagStatisticsStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.TagStatistics, error)
	MarkTainted(ctx context.Context, userID string) (bool, error)
	Delete(ctx context.Context, userID string) error
}

// StateSync writes a tracker's state through to the database after each mutation and
// schedules a tag rollup when the stored one goes stale. Failures are logged; the
// in-memory tracker stays authoritative and the next mutation retries the write.
type StateSync struct {
	snapshots SnapshotWriter
	tagStats  TagStatisticsStore
	enqueuer  queue.Enqueuer
	debounce  time.Duration
	logger    *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// StateSyncOption configures a StateSync
type StateSyncOption func(*StateSync)

// WithTagStatistics marks the user's rollup stale after every write
func WithTagStatistics(repo TagStatisticsStore) StateSyncOption {
	return func(s *StateSync) {
		s.tagStats = repo
	}
}

// WithJobQueue enqueues a tag_analysis job, delayed by debounce, when a rollup goes stale
func WithJobQueue(enqueuer queue.Enqueuer, debounce time.Duration) StateSyncOption {
	return func(s *StateSync) {
		s.enqueuer = enqueuer
		s.debounce = debounce
	}
}

// NewStateSync creates a StateSync. A nil snapshots writer disables persistence.
func NewStateSync(snapshots SnapshotWriter, logger *zap.Logger, opts ...StateSyncOption) *StateSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &StateSync{
		snapshots: snapshots,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// userLock serializes writes per user so the last snapshot saved is the newest export
func (s *StateSync) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// Persist saves t's current state and invalidates its tag rollup
func (s *StateSync) Persist(ctx context.Context, t *tracker.Tracker) {
	if s == nil {
		return
	}
	userField := zap.String("user_id", logpkg.SanitizeUserID(t.UserID))

	if s.snapshots != nil {
		l := s.userLock(t.UserID)
		l.Lock()
		payload := t.Export()
		err := s.snapshots.Save(ctx, &payload)
		l.Unlock()
		if err != nil {
			s.logger.Error("failed_to_save_snapshot", userField, zap.Error(err))
			return
		}
	}

	s.invalidate(ctx, t.UserID)
}

// Forget removes a user's persisted snapshot and rollup, then runs clearMemory under the
// same per-user lock. clearMemory is skipped when a delete fails so memory and storage stay in step.
func (s *StateSync) Forget(ctx context.Context, userID string, clearMemory func()) error {
	if s == nil {
		if clearMemory != nil {
			clearMemory()
		}
		return nil
	}
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx, userID); err != nil {
			return err
		}
	}
	if s.tagStats != nil {
		if err := s.tagStats.Delete(ctx, userID); err != nil {
			return err
		}
	}
	if clearMemory != nil {
		clearMemory()
	}
	return nil
}

func (s *StateSync) invalidate(ctx context.Context, userID string) {
	if s.tagStats == nil {
		return
	}
	userField := zap.String("user_id", logpkg.SanitizeUserID(userID))

	transitioned, err := s.tagStats.MarkTainted(ctx, userID)
	if err != nil {
		// The job still runs so the rollup can recover
		s.logger.Warn("failed_to_mark_tag_statistics_tainted", userField, zap.Error(err))
		transitioned = true
	}
	if !transitioned {
		// A job is already pending for the earlier change
		return
	}
	if s.enqueuer == nil {
		s.logger.Debug("job_queue_not_available", userField)
		return
	}

	job := queue.NewDelayedJob(queue.JobTypeTagAnalysis, userID, s.debounce)
	if err := s.enqueuer.Enqueue(ctx, job); err != nil {
		s.logger.Error("failed_to_enqueue_tag_analysis_job", userField, zap.Error(err))
		return
	}
	s.logger.Debug("enqueued_tag_analysis_job",
		userField,
		zap.Duration("debounce_delay", s.debounce),
	)
}
