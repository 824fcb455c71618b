package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentarena/boost-ledger/internal/awards"
	"github.com/agentarena/boost-ledger/internal/boost"
	"github.com/agentarena/boost-ledger/internal/competitions"
	"github.com/agentarena/boost-ledger/internal/cron"
	"github.com/agentarena/boost-ledger/internal/stakes"
	"github.com/agentarena/boost-ledger/pkg/config"
	"github.com/agentarena/boost-ledger/pkg/db"
	"github.com/agentarena/boost-ledger/pkg/logger"
	"github.com/agentarena/boost-ledger/pkg/metrics"
	"github.com/agentarena/boost-ledger/pkg/migrate"
	"github.com/agentarena/boost-ledger/pkg/outbox"
	"github.com/agentarena/boost-ledger/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "award-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "award-worker"

	logg = logger.New(logger.Options{
		ServiceName: "award-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)
	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)

	boostService, err := boost.NewService(
		boost.NewRepository(dbClient.DB()),
		dbClient,
		outboxService,
		nil,
		ledgerMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create boost service", err)
		os.Exit(1)
	}

	stakeService, err := stakes.NewService(stakes.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create stakes service", err)
		os.Exit(1)
	}

	competitionService, err := competitions.NewService(competitions.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create competitions service", err)
		os.Exit(1)
	}

	awardService, err := awards.NewService(
		stakeService,
		boostService,
		dbClient,
		outboxService,
		awards.DefaultMultiplier,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create awards service", err)
		os.Exit(1)
	}

	stakeAwardJob, err := cron.NewStakeAwardJob(cron.StakeAwardJobParams{
		Logger:       logg,
		Competitions: competitionService,
		Awards:       awardService,
		BatchSize:    cfg.Awards.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stake award job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Awards.SweepLockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(stakeAwardJob, retentionJob),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Awards.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting award worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "award worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "award worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("award-worker:%s", env)
}
