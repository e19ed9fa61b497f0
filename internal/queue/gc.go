package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const gcTimeout = 2 * time.Minute

// GarbageCollector runs periodic DLQ purges, removing messages older than retention.
type GarbageCollector struct {
	dlqPurger DLQPurger
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
}

// NewGarbageCollector creates a new garbage collector. purger is used to purge DLQ messages
// older than retention; pass a RabbitMQ queue (implements DLQPurger) or another implementation.
func NewGarbageCollector(purger DLQPurger, interval, retention time.Duration, logger *zap.Logger) *GarbageCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GarbageCollector{
		dlqPurger: purger,
		interval:  interval,
		retention: retention,
		logger:    logger,
	}
}

// Schedule registers the purge on c every interval. ctx bounds each run.
func (gc *GarbageCollector) Schedule(ctx context.Context, c *cron.Cron) (cron.EntryID, error) {
	if gc.interval <= 0 {
		return 0, fmt.Errorf("DLQ GC interval must be positive, got %v", gc.interval)
	}
	id, err := c.AddFunc(fmt.Sprintf("@every %s", gc.interval), func() {
		if err := gc.Collect(ctx); err != nil {
			gc.logger.Error("dlq_gc_failed", zap.Error(err))
		}
	})
	if err != nil {
		return 0, fmt.Errorf("failed to schedule DLQ GC: %w", err)
	}
	return id, nil
}

// Collect purges DLQ messages older than retention.
func (gc *GarbageCollector) Collect(ctx context.Context) error {
	if gc.dlqPurger == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, gcTimeout)
	defer cancel()
	n, err := gc.dlqPurger.PurgeOlderThan(ctx, gc.retention)
	if err != nil {
		return fmt.Errorf("DLQ purge: %w", err)
	}
	if n > 0 {
		gc.logger.Info("dlq_gc_purged",
			zap.Int("count", n),
			zap.Duration("retention", gc.retention),
		)
	}
	return nil
}
