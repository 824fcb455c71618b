package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentarena/boost-ledger/api/routes"
	"github.com/agentarena/boost-ledger/internal/boost"
	"github.com/agentarena/boost-ledger/internal/competitions"
	"github.com/agentarena/boost-ledger/pkg/config"
	"github.com/agentarena/boost-ledger/pkg/db"
	"github.com/agentarena/boost-ledger/pkg/logger"
	"github.com/agentarena/boost-ledger/pkg/metrics"
	"github.com/agentarena/boost-ledger/pkg/migrate"
	"github.com/agentarena/boost-ledger/pkg/outbox"
	"github.com/agentarena/boost-ledger/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	totalsCache := boost.NewTotalsCache(redisClient, cfg.Boost.AgentTotalsCacheTTL, logg)
	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)

	boostService, err := boost.NewService(
		boost.NewRepository(dbClient.DB()),
		dbClient,
		outboxService,
		totalsCache,
		ledgerMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create boost service", err)
		os.Exit(1)
	}

	competitionService, err := competitions.NewService(competitions.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create competitions service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, boostService, competitionService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
