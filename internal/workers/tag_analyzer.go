package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/flowstate/internal/database"
	logpkg "github.com/benvon/flowstate/internal/logger"
	"github.com/benvon/flowstate/internal/models"
	"github.com/benvon/flowstate/internal/queue"
	"github.com/benvon/flowstate/internal/telemetry"
	"github.com/benvon/flowstate/internal/tracker"
	"go.uber.org/zap"
)

// TagAnalyzer processes tag analysis jobs, rebuilding each user's stored analytics rollup
// from their persisted tracker snapshot
type TagAnalyzer struct {
	snapshots     tracker.SnapshotLoader
	tagStatsRepo  database.TagStatisticsRepositoryInterface
	enqueuer      queue.Enqueuer
	clock         tracker.Clock
	timeframeDays int
	debounce      time.Duration
	logger        *zap.Logger
	registry      map[queue.JobType]processorEntry
}

// TagAnalyzerOption configures a TagAnalyzer
type TagAnalyzerOption func(*TagAnalyzer)

// WithAnalyzerClock overrides the time source used for the analytics window
func WithAnalyzerClock(clock tracker.Clock) TagAnalyzerOption {
	return func(a *TagAnalyzer) { a.clock = clock }
}

// WithConflictDebounce sets the delay for the follow-up job enqueued after a version conflict
func WithConflictDebounce(d time.Duration) TagAnalyzerOption {
	return func(a *TagAnalyzer) { a.debounce = d }
}

// NewTagAnalyzer creates a new tag analyzer and registers the tag_analysis processor.
// enqueuer may be nil, in which case failed jobs are dead-lettered immediately.
func NewTagAnalyzer(
	snapshots tracker.SnapshotLoader,
	tagStatsRepo database.TagStatisticsRepositoryInterface,
	enqueuer queue.Enqueuer,
	timeframeDays int,
	logger *zap.Logger,
	opts ...TagAnalyzerOption,
) *TagAnalyzer {
	a := &TagAnalyzer{
		snapshots:     snapshots,
		tagStatsRepo:  tagStatsRepo,
		enqueuer:      enqueuer,
		clock:         tracker.SystemClock{},
		timeframeDays: timeframeDays,
		logger:        logger,
		registry:      make(map[queue.JobType]processorEntry),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.RegisterProcessor(queue.JobTypeTagAnalysis, a.ProcessTagAnalysisJob, true)
	return a
}

// RegisterProcessor registers a processor for a job type.
func (a *TagAnalyzer) RegisterProcessor(typ queue.JobType, proc JobProcessor, retry bool) {
	a.registry[typ] = processorEntry{proc: proc, retry: retry}
}

// ProcessTagAnalysisJob recomputes tag analytics for job.UserID and stores them
func (a *TagAnalyzer) ProcessTagAnalysisJob(ctx context.Context, job *queue.Job) (err error) {
	if job.UserID == "" {
		return fmt.Errorf("user_id is required for tag analysis job")
	}
	userID := logpkg.SanitizeUserID(job.UserID)
	ctx, span := telemetry.StartJobSpan(ctx, string(job.Type), job.ID.String(), userID)
	defer func() { telemetry.EndSpan(span, err) }()

	a.logger.Info("processing_tag_analysis_job",
		zap.String("job_id", job.ID.String()),
		zap.String("user_id", userID),
	)

	// Read the version before the snapshot so a concurrent mutation invalidates this run
	stats, err := a.tagStatsRepo.GetByUserIDOrCreate(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("failed to get or create tag statistics: %w", err)
	}

	analytics, err := a.analyze(ctx, job.UserID)
	if err != nil {
		return err
	}

	stats.Analytics = analytics
	now := a.clock.Now()
	stats.LastAnalyzedAt = &now
	updated, err := a.tagStatsRepo.UpdateStatistics(ctx, stats)
	if err != nil {
		return fmt.Errorf("failed to update tag statistics: %w", err)
	}
	if !updated {
		a.logger.Debug("tag_statistics_version_conflict", zap.String("user_id", userID))
		return a.enqueueFollowUp(ctx, job.UserID)
	}

	a.logger.Info("successfully_analyzed_tags",
		zap.String("user_id", userID),
		zap.Int("total_entries", analytics.TotalEntries),
		zap.Int("main_tags", len(analytics.MainTagAnalysis)),
		zap.Int("analysis_version", stats.AnalysisVersion),
	)
	a.logTagBreakdownIfDebug(userID, analytics)
	return nil
}

// analyze rebuilds a throwaway store from the user's snapshot and runs tag analytics over it
func (a *TagAnalyzer) analyze(ctx context.Context, userID string) (models.TagAnalytics, error) {
	payload, err := a.snapshots.LoadSnapshot(ctx, userID)
	if err != nil {
		return models.TagAnalytics{}, fmt.Errorf("failed to load snapshot: %w", err)
	}

	store := tracker.NewStore()
	if payload != nil {
		if err := store.Import(*payload); err != nil {
			return models.TagAnalytics{}, fmt.Errorf("failed to import snapshot: %w", err)
		}
	}

	analytics, err := tracker.NewAnalytics(store).TagAnalytics(a.clock.Now(), a.timeframeDays)
	if err != nil {
		return models.TagAnalytics{}, fmt.Errorf("failed to compute tag analytics: %w", err)
	}
	return analytics, nil
}

func (a *TagAnalyzer) enqueueFollowUp(ctx context.Context, userID string) error {
	if a.enqueuer == nil {
		return nil
	}
	if err := a.enqueuer.Enqueue(ctx, queue.NewDelayedJob(queue.JobTypeTagAnalysis, userID, a.debounce)); err != nil {
		return fmt.Errorf("failed to enqueue follow-up analysis: %w", err)
	}
	return nil
}

func (a *TagAnalyzer) logTagBreakdownIfDebug(userID string, analytics models.TagAnalytics) {
	if len(analytics.MainTagAnalysis) == 0 || !a.logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	tagList := make([]string, 0, len(analytics.MainTagAnalysis))
	for _, m := range analytics.MainTagAnalysis {
		tagList = append(tagList, m.MainTag)
	}
	a.logger.Debug("tag_breakdown",
		zap.String("user_id", userID),
		zap.Strings("tags", tagList),
	)
}

// ProcessJob processes a job based on its type using the processor registry.
func (a *TagAnalyzer) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()
	if job.IsExpired() {
		a.logger.Debug("dropping_expired_job", zap.String("job_id", job.ID.String()))
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack expired job: %w", ackErr)
		}
		return nil
	}

	if err := waitUntilReady(ctx, job); err != nil {
		if nackErr := msg.Nack(true); nackErr != nil {
			a.logger.Warn("failed_to_requeue_job", zap.Error(nackErr))
		}
		return err
	}

	ent, ok := a.registry[job.Type]
	if !ok {
		if nackErr := msg.Nack(false); nackErr != nil {
			a.logger.Error("failed_to_nack_unknown_job_type",
				zap.String("job_id", job.ID.String()),
				zap.String("job_type", string(job.Type)),
				zap.String("error", logpkg.SanitizeError(nackErr)),
			)
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}

	if err := ent.proc(ctx, job); err != nil {
		if ent.retry {
			return handleJobError(ctx, a.enqueuer, msg, err, a.logger)
		}
		if nackErr := msg.Nack(false); nackErr != nil {
			a.logger.Warn("failed_to_nack_job", zap.Error(nackErr))
		}
		return fmt.Errorf("%s job failed: %w", job.Type, err)
	}
	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack %s job: %w", job.Type, ackErr)
	}
	return nil
}
