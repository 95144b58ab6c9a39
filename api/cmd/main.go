package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/herverfred/mission-center/internal/application/activity"
	"github.com/herverfred/mission-center/internal/application/mission"
	"github.com/herverfred/mission-center/internal/config"
	"github.com/herverfred/mission-center/internal/infrastructure/postgres"
	"github.com/herverfred/mission-center/internal/infrastructure/rabbitmq"
	"github.com/herverfred/mission-center/internal/infrastructure/redis"
	"github.com/herverfred/mission-center/internal/pkg/logger"
	"github.com/herverfred/mission-center/internal/transport/rest"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}

	logger.Init()
	log := logger.Logger.With().
		Str("service", "mission-center").
		Str("env", cfg.AppEnv).
		Logger()

	// Root ctx with signal cancellation
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	dbPool, err := pgxpool.New(rootCtx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres pool create failed")
	}
	defer dbPool.Close()

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		defer cancel()

		if err := dbPool.Ping(pingCtx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		log.Info().Msg("postgres connected")
	}

	repo := postgres.New(dbPool)
	repo.SetOutboxMaxRetries(cfg.OutboxMaxRetries)

	{
		schemaCtx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
		defer cancel()

		if err := repo.EnsureSchema(schemaCtx); err != nil {
			log.Fatal().Err(err).Msg("schema migration failed")
		}
		log.Info().Msg("schema ensured")
	}

	// ---- Redis ----
	keeper := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		defer cancel()

		if err := keeper.Client.Ping(pingCtx).Err(); err != nil {
			// Dedup and the init lock need redis; do not start without it.
			log.Fatal().Err(err).Msg("redis ping failed")
		}
		log.Info().Msg("redis connected")
	}

	// ---- RabbitMQ publisher ----
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange, repo)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbitmq connect failed")
	}
	defer func() { _ = pub.Close() }()
	log.Info().Str("exchange", cfg.RabbitExchange).Msg("rabbitmq connected")

	// ---- Application services ----
	missionSvc := mission.NewService(repo, keeper, mission.SystemClock, cfg.ProgressCacheTTL)
	initializer := mission.NewInitializer(repo, keeper, mission.SystemClock)
	distributor := mission.NewDistributor(repo, missionSvc, mission.SystemClock)
	activitySvc := activity.NewService(repo, pub, mission.SystemClock)

	// ---- MQ consumers ----
	router := rabbitmq.NewRouter(keeper, initializer, missionSvc, distributor, repo, pub, repo)
	consumer := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitExchange, router)
	if err := consumer.Start(rootCtx); err != nil {
		log.Fatal().Err(err).Msg("consumer start failed")
	}
	defer func() { _ = consumer.Close() }()

	// ---- Outbox sweeper ----
	if cfg.OutboxEnabled {
		repo.StartOutboxSweeper(rootCtx, pub, postgres.SweeperConfig{
			Every:      cfg.OutboxSweepEvery,
			RetryDelay: cfg.OutboxRetryDelay,
		})
		log.Info().Msg("outbox sweeper started")
	}

	// ---- HTTP server ----
	httpHandler := rest.NewRouter(rest.RouterDeps{
		Handler: rest.NewHandler(activitySvc, missionSvc, distributor),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("shutdown complete")
}
