package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/flowstate/internal/config"
	"github.com/benvon/flowstate/internal/database"
	"github.com/benvon/flowstate/internal/handlers"
	"github.com/benvon/flowstate/internal/logger"
	"github.com/benvon/flowstate/internal/middleware"
	"github.com/benvon/flowstate/internal/queue"
	"github.com/benvon/flowstate/internal/telemetry"
	"github.com/benvon/flowstate/internal/tracker"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

const reloadInterval = time.Minute

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag
	zapLogger, err := logger.New("server", debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.String("version", version),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("database_driver", cfg.DatabaseDriver),
		zap.Bool("queue_enabled", cfg.QueueEnabled()),
		zap.Bool("rate_limit_enabled", cfg.RateLimitEnabled),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	tracingEnabled := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else if tp, err := telemetry.InitTracer(context.Background(), telemetry.ServiceAPI, cfg.OTELEndpoint); err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracingEnabled = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
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
	corsConfigRepo := database.NewCorsConfigRepository(db)
	ratelimitConfigRepo := database.NewRatelimitConfigRepository(db)

	healthChecks := map[string]handlers.HealthCheckable{"database": db}

	syncOpts := []handlers.StateSyncOption{handlers.WithTagStatistics(tagStatsRepo)}
	if cfg.QueueEnabled() {
		jobQueue := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
		defer func() {
			if err := jobQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
		syncOpts = append(syncOpts, handlers.WithJobQueue(jobQueue, cfg.TagAnalysisDebounce))
		healthChecks["rabbitmq"] = jobQueue
	} else {
		zapLogger.Warn("job_queue_not_configured_tag_statistics_will_not_refresh")
	}

	registry := tracker.NewRegistry(tracker.WithSnapshotLoader(snapshotRepo))
	stateSync := handlers.NewStateSync(snapshotRepo, zapLogger, syncOpts...)

	sessionHandler := handlers.NewSessionHandler(registry, stateSync, zapLogger)
	analyticsHandler := handlers.NewAnalyticsHandler(registry, tagStatsRepo, zapLogger)
	dataHandler := handlers.NewDataHandler(registry, stateSync, zapLogger)

	reloadCtx, reloadCancel := context.WithCancel(context.Background())
	defer reloadCancel()

	var rateLimitReloader *middleware.RateLimitReloader
	if cfg.RateLimitEnabled {
		redisClient, err := middleware.NewRedisClient(reloadCtx, cfg.RedisURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		zapLogger.Info("connected_to_redis")

		rateLimitReloader, err = middleware.NewRateLimitReloader(redisClient, ratelimitConfigRepo, cfg.DefaultRateLimit, zapLogger, reloadInterval)
		if err != nil {
			zapLogger.Fatal("failed_to_create_rate_limit_reloader", zap.Error(err))
		}
		healthChecks["redis"] = handlers.CheckFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	healthChecker := handlers.NewHealthChecker(healthChecks)
	corsReloader := middleware.NewCORSReloader(corsConfigRepo, cfg.FrontendURL, zapLogger, reloadInterval)

	r := mux.NewRouter()

	// Registered first runs outermost
	if tracingEnabled {
		r.Use(otelmux.Middleware(telemetry.ServiceAPI))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(corsReloader.Middleware())
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/health", handlers.Liveness).Methods(http.MethodGet)
	r.HandleFunc("/version", handlers.VersionHandler(version)).Methods(http.MethodGet)

	userRouter := handlers.RegisterUserRoutes(r, sessionHandler, analyticsHandler, dataHandler, zapLogger)
	if rateLimitReloader != nil {
		userRouter.Use(rateLimitReloader.Middleware())
	}

	// CORS middleware has already answered preflights by the time this runs
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      middleware.DefaultRequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go corsReloader.Start(reloadCtx)
	if rateLimitReloader != nil {
		go rateLimitReloader.Start(reloadCtx)
	}

	go func() {
		zapLogger.Info("server_listening", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	reloadCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited", zap.Int("tracked_users", len(registry.UserIDs())))
}

// connectRabbitMQ dials with exponential backoff so the server survives broker startup delays
func connectRabbitMQ(url string, zapLogger *zap.Logger) *queue.RabbitMQQueue {
	const maxRetries = 10
	const initialDelay = 2 * time.Second
	const maxDelay = 30 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		q, err := queue.NewRabbitMQQueue(url, zapLogger)
		if err == nil {
			zapLogger.Info("connected_to_rabbitmq")
			return q
		}
		lastErr = err

		delay := initialDelay * time.Duration(1<<uint(attempt))
		if delay > maxDelay {
			delay = maxDelay
		}
		zapLogger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)
		time.Sleep(delay)
	}

	zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries",
		zap.Int("max_retries", maxRetries),
		zap.Error(lastErr),
	)
	return nil
}
