package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"app/internal/config"
	"app/internal/logger"
	"app/internal/pubsub"
	"app/internal/repository"
	"app/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// The sweeper renews or expires due subscriptions and promotes pending
// downgrades. It is deployed as a single instance; running two copies
// concurrently risks double-extending a renewal.
func main() {
	once := flag.Bool("once", false, "Run a single sweep and exit")
	flag.Parse()

	logger := logger.New()

	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DBConnectionString)
	if err != nil {
		logger.Fatal().Msgf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Msgf("Failed to ping DB: %v", err)
	}
	logger.Info().Msg("Database connection established")

	var events *pubsub.Events
	if cfg.GCPProjectID != "" {
		publisher, err := pubsub.NewPublisher(ctx, cfg)
		if err != nil {
			logger.Fatal().Msgf("Failed to create Pub/Sub publisher: %v", err)
		}
		events = pubsub.NewEvents(publisher, cfg, logger)
	}

	subSvc := service.NewSubscriptionService(repository.NewSubscriptionRepo(pool), events, logger)

	sweep := func() {
		stats, err := subSvc.ProcessExpiredSubscriptions(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("sweep failed")
			return
		}
		logger.Info().
			Int("renewed", stats.Renewed).
			Int("expired", stats.Expired).
			Int("failed", stats.Failed).
			Msg("sweep complete")
	}

	sweep()
	if *once {
		return
	}

	interval := time.Duration(cfg.SweepIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info().Dur("interval", interval).Msg("sweeper running")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutdown signal received, exiting...")
			return
		case <-ticker.C:
			sweep()
		}
	}
}
