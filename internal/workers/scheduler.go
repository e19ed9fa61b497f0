package workers

import (
	"context"
	"fmt"
	"time"

	logpkg "github.com/benvon/flowstate/internal/logger"
	"github.com/benvon/flowstate/internal/queue"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// UserLister lists users that have persisted tracker state
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// refreshJobTTL lets scheduled refreshes expire rather than pile up behind a stalled worker
const refreshJobTTL = 24 * time.Hour

// RefreshScheduler enqueues a tag analysis job for every user on a cron schedule,
// so rolling-window analytics stay current without new activity
type RefreshScheduler struct {
	jobQueue queue.Enqueuer
	users    UserLister
	logger   *zap.Logger
}

// NewRefreshScheduler creates a new refresh scheduler
func NewRefreshScheduler(jobQueue queue.Enqueuer, users UserLister, logger *zap.Logger) *RefreshScheduler {
	return &RefreshScheduler{
		jobQueue: jobQueue,
		users:    users,
		logger:   logger,
	}
}

// Schedule registers ScheduleRefreshJobs on c using a cron spec (e.g. "@every 6h", "0 */6 * * *")
func (s *RefreshScheduler) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		if err := s.ScheduleRefreshJobs(ctx); err != nil {
			s.logger.Error("failed_to_schedule_refresh_jobs", zap.Error(err))
		}
	})
	if err != nil {
		return 0, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return id, nil
}

// ScheduleRefreshJobs enqueues one tag analysis job per known user
func (s *RefreshScheduler) ScheduleRefreshJobs(ctx context.Context) error {
	userIDs, err := s.users.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	enqueued := 0
	for _, userID := range userIDs {
		job := queue.NewJob(queue.JobTypeTagAnalysis, userID)
		notAfter := job.CreatedAt.Add(refreshJobTTL)
		job.NotAfter = &notAfter

		if err := s.jobQueue.Enqueue(ctx, job); err != nil {
			s.logger.Warn("failed_to_enqueue_refresh_job",
				zap.String("user_id", logpkg.SanitizeUserID(userID)),
				zap.Error(err),
			)
			continue
		}
		enqueued++
	}

	s.logger.Info("scheduled_refresh_jobs",
		zap.Int("user_count", len(userIDs)),
		zap.Int("enqueued", enqueued),
	)
	return nil
}
