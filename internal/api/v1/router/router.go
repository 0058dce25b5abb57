package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"app/internal/api/v1/handler"
	"app/internal/config"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/pubsub"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// New wires the repositories, services, handlers and middleware into a
// ready-to-serve http.Handler. The returned pool must be closed by the
// caller on shutdown.
func New(cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, error) {
	logger.Info().Str("environment", cfg.Environment).Msg("initializing router")

	// Open DB connection (connection pooling)
	dsn := cfg.DBConnectionString
	// Local development usually talks to a plain Postgres without TLS.
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		dsn += separator + "sslmode=disable"
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error().Err(err).Msg("invalid database connection string")
		return nil, nil, err
	}
	poolCfg.MaxConns = 25
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create connection pool")
		return nil, nil, err
	}
	if err := pool.Ping(context.Background()); err != nil {
		logger.Error().Err(err).Msg("failed to ping database")
		pool.Close()
		return nil, nil, err
	}
	logger.Info().Msg("database connection successful")

	validate := validator.New(validator.WithRequiredStructEnabled())

	// Eventing is optional: without a GCP project the services run with a nil
	// events sink and skip publishing.
	var events *pubsub.Events
	if cfg.GCPProjectID != "" {
		publisher, err := pubsub.NewPublisher(context.Background(), cfg)
		if err != nil {
			logger.Error().Err(err).Msg("failed to create Pub/Sub publisher")
			pool.Close()
			return nil, nil, err
		}
		events = pubsub.NewEvents(publisher, cfg, logger)
	} else {
		logger.Warn().Msg("GCP_PROJECT_ID not set, eventing disabled")
	}

	// Repositories & services & handlers
	subRepo := repository.NewSubscriptionRepo(pool)
	quotaRepo := repository.NewQuotaRepo(pool)
	alertRepo := repository.NewAlertRepo(pool)
	operationRepo := repository.NewOperationRepo(pool)
	blacklistRepo := repository.NewBlacklistRepo(pool)
	cooldownRepo := repository.NewCooldownRepo(pool)

	subSvc := service.NewSubscriptionService(subRepo, events, logger)
	quotaSvc := service.NewQuotaService(
		quotaRepo,
		alertRepo,
		subRepo,
		events,
		cfg.QuotaFailOpen,
		time.Duration(cfg.AlertSuppressionHours)*time.Hour,
		logger,
	)
	rateLimitSvc := service.NewRateLimitService(operationRepo, service.DefaultRateLimitConfig(), logger)
	cooldownSvc := service.NewCooldownService(cooldownRepo, logger)
	abuseSvc := service.NewAbuseService(operationRepo, logger)
	blacklistSvc := service.NewBlacklistService(blacklistRepo, logger)

	quotaHandler := handler.NewQuotaHandler(quotaSvc, validate, logger)
	subHandler := handler.NewSubscriptionHandler(subSvc, validate, logger)
	protectionHandler := handler.NewProtectionHandler(cooldownSvc, validate, logger)
	adminHandler := handler.NewAdminHandler(blacklistSvc, abuseSvc, subSvc, validate, logger)

	// Middleware
	authMw := middleware.Auth(cfg.JWTSecret, logger)
	guard := middleware.NewGuard(
		blacklistSvc,
		rateLimitSvc,
		abuseSvc,
		cfg.AbuseSampleRate,
		cfg.AbuseScanWindowMinutes,
		cfg.AbuseAutoBanMinutes,
		logger,
	)

	// API v1 subrouter mounted under /v1
	apiV1Mux := http.NewServeMux()
	quotaHandler.RegisterRoutes(apiV1Mux, authMw, guard.Protect(model.OpVideoProcess))
	subHandler.RegisterRoutes(apiV1Mux, authMw, guard.Protect(model.OpPlanChange))
	protectionHandler.RegisterRoutes(apiV1Mux, authMw)
	adminHandler.RegisterRoutes(apiV1Mux, authMw)

	mux := http.NewServeMux()
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.RequestLogger(logger)(c.Handler(mux)), pool, nil
}
