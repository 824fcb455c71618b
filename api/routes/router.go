package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentarena/boost-ledger/api/controllers"
	"github.com/agentarena/boost-ledger/api/middleware"
	"github.com/agentarena/boost-ledger/internal/boost"
	"github.com/agentarena/boost-ledger/internal/competitions"
	"github.com/agentarena/boost-ledger/pkg/config"
	"github.com/agentarena/boost-ledger/pkg/db"
	"github.com/agentarena/boost-ledger/pkg/logger"
	"github.com/agentarena/boost-ledger/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	boostService boost.Service,
	competitionService competitions.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	var redisP redis.Pinger
	var limiter middleware.RateLimiterStore
	if redisClient != nil {
		redisP = redisClient
		limiter = redisClient
	}

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	spendPolicy := middleware.NewRateLimitPolicy(
		"boost",
		cfg.RateLimit.Window,
		cfg.RateLimit.IPLimit,
		cfg.RateLimit.WalletLimit,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/boost", func(r chi.Router) {
			r.Get("/balance", controllers.BoostBalance(boostService, logg))
			r.Get("/me", controllers.UserBoosts(boostService, logg))
			r.Get("/seasons/competitions", controllers.SeasonBoostedCompetitions(boostService, logg))
			r.With(middleware.RateLimit(spendPolicy, limiter, logg)).
				Post("/increase", controllers.BoostIncrease(boostService, logg))
			r.With(middleware.RateLimit(spendPolicy, limiter, logg)).
				Post("/agents/{agentId}", controllers.BoostAgent(boostService, competitionService, logg))
		})

		r.Get("/competitions/{competitionId}/agent-totals", controllers.AgentBoostTotals(boostService, logg))
	})

	return r
}
