/**
 * @description
 * Entry point for the settlement service. Wires configuration, the PostgreSQL pool,
 * optional Redis and RabbitMQ connections, the ledger audit job and the HTTP server.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/jackc/pgx/v5: PostgreSQL driver and pool.
 * - github.com/redis/go-redis/v9: Shared rate limiting across replicas.
 */
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/vendor-manager/settlement-service/internal/api"
	"github.com/vendor-manager/settlement-service/internal/app"
	"github.com/vendor-manager/settlement-service/internal/clock"
	"github.com/vendor-manager/settlement-service/internal/config"
	"github.com/vendor-manager/settlement-service/internal/store"
	"github.com/vendor-manager/settlement-service/internal/store/migrations"
	"github.com/vendor-manager/settlement-service/pkg/logging"
	"github.com/vendor-manager/settlement-service/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development.
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("failed to load configuration", "component", "bootstrap", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		logger.Debug("no .env file found, using environment variables", "component", "bootstrap")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "component", "bootstrap", "error", err)
		os.Exit(1)
	}
	pgConfig.MaxConns = cfg.DBMaxConns
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute
	pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		logger.Error("unable to connect to database", "component", "bootstrap", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()

	if err := dbpool.Ping(ctx); err != nil {
		logger.Error("database ping failed", "component", "bootstrap", "error", err)
		os.Exit(1)
	}
	if err := migrations.Apply(ctx, dbpool); err != nil {
		logger.Error("failed to apply migrations", "component", "bootstrap", "error", err)
		os.Exit(1)
	}
	logger.Info("database connection established", "component", "bootstrap")

	repository := store.NewPostgresRepository(dbpool)

	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	if cfg.RabbitMQURL != "" {
		if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger); err == nil {
			publisher = producer
			defer producer.Close()
		} else {
			logger.Warn("failed to connect to RabbitMQ, using fallback publisher", "component", "bootstrap", "error", err)
		}
	}

	service := app.NewService(repository, publisher, clock.NewSystem(), app.Options{
		EventsExchange:     cfg.EventsExchange,
		DepositCapPercent:  cfg.DepositCapPercent,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})

	var limiter app.RateLimiter = app.NewLocalRateLimiter()
	if cfg.RedisURL != "" {
		if redisClient := connectRedis(cfg.RedisURL, logger); redisClient != nil {
			defer redisClient.Close()
			limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
		}
	}
	service.SetRateLimiter(limiter)

	scheduler := app.NewScheduler(service.AuditLedgerJob, cfg.LedgerAuditSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start ledger audit scheduler", "component", "bootstrap", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(service, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		InternalAPIKey: cfg.InternalAPIKey,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "component", "bootstrap", "addr", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, gracefully shutting down", "component", "bootstrap")
	case err := <-serverErr:
		logger.Error("server failed", "component", "bootstrap", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "component", "bootstrap", "error", err)
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("ledger audit still running at shutdown", "component", "bootstrap")
	}

	logger.Info("server stopped", "component", "bootstrap")
}

// connectRedis returns nil when Redis is unusable, leaving rate limiting in-process.
func connectRedis(rawURL string, logger *slog.Logger) *redis.Client {
	options, err := redis.ParseURL(rawURL)
	if err != nil {
		logger.Warn("redis url parse failed; using in-process rate limiting", "component", "bootstrap", "error", err)
		return nil
	}

	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; using in-process rate limiting", "component", "bootstrap", "error", err)
		client.Close()
		return nil
	}

	logger.Info("redis connected", "component", "bootstrap")
	return client
}
