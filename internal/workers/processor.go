package workers

import (
	"context"
	"fmt"
	"time"

	logpkg "github.com/benvon/flowstate/internal/logger"
	"github.com/benvon/flowstate/internal/queue"
	"go.uber.org/zap"
)

// JobProcessor handles one job type
type JobProcessor func(ctx context.Context, job *queue.Job) error

type processorEntry struct {
	proc JobProcessor
	// retry re-enqueues failed jobs with backoff before dead-lettering them
	retry bool
}

const baseRetryDelay = 5 * time.Second

// retryDelay doubles per attempt: 5s, 10s, 20s...
func retryDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 10 {
		retryCount = 10
	}
	return baseRetryDelay << retryCount
}

// waitUntilReady blocks until the job's NotBefore has passed or ctx is done
func waitUntilReady(ctx context.Context, job *queue.Job) error {
	if job.NotBefore == nil {
		return nil
	}
	wait := time.Until(*job.NotBefore)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// handleJobError re-enqueues a failed job with backoff while retries remain, else dead-letters it
func handleJobError(ctx context.Context, enqueuer queue.Enqueuer, msg queue.MessageInterface, err error, logger *zap.Logger) error {
	job := msg.GetJob()
	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.String("user_id", logpkg.SanitizeUserID(job.UserID)),
		zap.Int("retry_count", job.RetryCount),
		zap.String("error", logpkg.SanitizeError(err)),
	}

	if job.CanRetry() && enqueuer != nil {
		notBefore := time.Now().Add(retryDelay(job.RetryCount))
		retry := *job
		retry.RetryCount++
		retry.NotBefore = &notBefore

		if enqueueErr := enqueuer.Enqueue(ctx, &retry); enqueueErr != nil {
			logger.Warn("failed_to_reenqueue_job", append(fields, zap.Error(enqueueErr))...)
			if nackErr := msg.Nack(true); nackErr != nil {
				logger.Warn("failed_to_nack_job", zap.Error(nackErr))
			}
			return fmt.Errorf("job failed, re-enqueue failed: %w", err)
		}
		if ackErr := msg.Ack(); ackErr != nil {
			logger.Warn("failed_to_ack_retried_job", zap.Error(ackErr))
		}
		logger.Warn("job_failed_will_retry", append(fields, zap.Time("not_before", notBefore))...)
		return fmt.Errorf("job failed (will retry): %w", err)
	}

	logger.Error("job_failed_sending_to_dlq", fields...)
	if nackErr := msg.Nack(false); nackErr != nil {
		logger.Warn("failed_to_nack_job_to_dlq", zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (max retries): %w", err)
}
