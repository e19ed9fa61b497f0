package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/benvon/flowstate/internal/config"
	"github.com/benvon/flowstate/internal/database"
	"github.com/benvon/flowstate/internal/middleware"
	"github.com/benvon/flowstate/internal/queue"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewCheckCmd creates the check command
func NewCheckCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check connectivity to configured dependencies",
		Long:  "Connect to the database and, when configured, Redis and RabbitMQ. Exits non-zero if any check fails.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			out := cmd.OutOrStdout()
			failed := 0
			report := func(name string, err error) {
				if err != nil {
					failed++
					fmt.Fprintf(out, "✗ %s: %v\n", name, err)
					return
				}
				fmt.Fprintf(out, "✓ %s\n", name)
			}

			report("database ("+cfg.DatabaseDriver+")", checkDatabase(ctx, cfg))
			if cfg.RateLimitEnabled {
				report("redis", checkRedis(ctx, cfg))
			} else {
				skip(out, "redis", "RATE_LIMIT_ENABLED is false")
			}
			if cfg.QueueEnabled() {
				report("rabbitmq", checkRabbitMQ(ctx, cfg))
			} else {
				skip(out, "rabbitmq", "RABBITMQ_URL is unset")
			}

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Overall timeout for all checks")
	return cmd
}

func skip(out io.Writer, name, reason string) {
	fmt.Fprintf(out, "- %s: skipped (%s)\n", name, reason)
}

func checkDatabase(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return db.HealthCheck(ctx)
}

func checkRedis(ctx context.Context, cfg *config.Config) error {
	client, err := middleware.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	return client.Close()
}

func checkRabbitMQ(ctx context.Context, cfg *config.Config) error {
	q, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL, zap.NewNop())
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()
	return q.HealthCheck(ctx)
}
