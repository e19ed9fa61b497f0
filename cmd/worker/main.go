package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/flowstate/internal/config"
	"github.com/benvon/flowstate/internal/database"
	"github.com/benvon/flowstate/internal/logger"
	"github.com/benvon/flowstate/internal/queue"
	"github.com/benvon/flowstate/internal/telemetry"
	"github.com/benvon/flowstate/internal/workers"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.RequireRabbitMQ(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag
	zapLogger, err := logger.New("worker", debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("database_driver", cfg.DatabaseDriver),
		zap.Int("timeframe_days", cfg.TagAnalysisTimeframeDays),
		zap.String("refresh_schedule", cfg.TagRefreshSchedule),
	)

	if cfg.OTELEnabled && cfg.OTELEndpoint != "" {
		tp, err := telemetry.InitTracer(context.Background(), telemetry.ServiceWorker, cfg.OTELEndpoint)
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	db, err := database.New(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	if err := db.EnsureSchema(context.Background()); err != nil {
		zapLogger.Fatal("failed_to_apply_schema", zap.Error(err))
	}
	zapLogger.Info("connected_to_database")

	snapshotRepo := database.NewSnapshotRepository(db)
	tagStatsRepo := database.NewTagStatisticsRepository(db)

	jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq", zap.Int("prefetch", cfg.RabbitMQPrefetch))

	analyzer := workers.NewTagAnalyzer(
		snapshotRepo,
		tagStatsRepo,
		jobQueue,
		cfg.TagAnalysisTimeframeDays,
		zapLogger,
		workers.WithConflictDebounce(cfg.TagAnalysisDebounce),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := cron.New()
	refresh := workers.NewRefreshScheduler(jobQueue, snapshotRepo, zapLogger)
	if _, err := refresh.Schedule(ctx, scheduler, cfg.TagRefreshSchedule); err != nil {
		zapLogger.Fatal("failed_to_schedule_tag_refresh", zap.Error(err))
	}
	dlqGC := queue.NewGarbageCollector(jobQueue, cfg.DLQGCInterval, cfg.DLQRetention, zapLogger)
	if _, err := dlqGC.Schedule(ctx, scheduler); err != nil {
		zapLogger.Fatal("failed_to_schedule_dlq_gc", zap.Error(err))
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming", zap.Error(err))
	}
	zapLogger.Info("worker_started")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range msgChan {
			if err := analyzer.ProcessJob(ctx, msg); err != nil {
				zapLogger.Error("failed_to_process_job",
					zap.Error(err),
					zap.String("job_id", msg.GetJob().ID.String()),
					zap.String("job_type", string(msg.GetJob().Type)),
				)
			}
		}
	}()

	go func() {
		for err := range errChan {
			zapLogger.Error("queue_error", zap.Error(err))
			// A dead delivery channel leaves nothing to consume
			sigChan <- syscall.SIGTERM
		}
	}()

	<-sigChan
	zapLogger.Info("worker_shutting_down")
	cancel()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		zapLogger.Warn("worker_shutdown_timed_out")
	}
	zapLogger.Info("worker_stopped")
}
