package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ddokjang/plan-service/config"
	"github.com/ddokjang/plan-service/internal/catalog"
	"github.com/ddokjang/plan-service/internal/database"
	"github.com/ddokjang/plan-service/internal/handlers"
	httpx "github.com/ddokjang/plan-service/internal/http"
	"github.com/ddokjang/plan-service/internal/http/ratelimit"
	"github.com/ddokjang/plan-service/internal/jobs"
	"github.com/ddokjang/plan-service/internal/matching"
	"github.com/ddokjang/plan-service/internal/middleware"
	"github.com/ddokjang/plan-service/internal/planner"
	"github.com/ddokjang/plan-service/internal/providers"
	"github.com/ddokjang/plan-service/internal/resilience"
	"github.com/ddokjang/plan-service/internal/sweepers"
	"github.com/ddokjang/plan-service/internal/telemetry"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)
	log.Logger = *logger

	logger.Info().Msg("Starting plan service")

	ctx := context.Background()

	shutdownTelemetry := telemetry.MustInit(ctx, telemetry.GetConfigFromEnv())
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()

	dbURL := config.GetDatabaseURL()
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL not set")
	}

	if err := database.Connect(
		ctx,
		dbURL,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
		cfg.Database.MaxConnLifetime,
		cfg.Database.MaxConnIdleTime,
	); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	logger.Info().Msg("Database connected")

	repo := catalog.NewRepository(database.Pool())

	budget := resilience.NewBudget(repo, resilience.BudgetConfig{
		MonthlyLimit:  cfg.Budget.MonthlyLimit,
		WarningRatio:  cfg.Budget.WarningRatio,
		CriticalRatio: cfg.Budget.CriticalRatio,
	})
	breakerCfg := resilience.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
		HalfOpenProbes:   cfg.Breaker.HalfOpenProbes,
	}

	placeCache := resilience.NewCache("place")
	routeCache := resilience.NewCache("route")
	weatherCache := resilience.NewCache("weather")
	shoppingCache := resilience.NewCache("shopping")
	caches := []*resilience.Cache{placeCache, routeCache, weatherCache, shoppingCache}

	client := httpx.NewClient(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		MaxRetries:        cfg.RateLimit.MaxRetries,
		InitialBackoffMs:  cfg.RateLimit.InitialBackoffMs,
		MaxBackoffMs:      cfg.RateLimit.MaxBackoffMs,
	})

	placeCfg := providers.DefaultPlaceConfig()
	placeCfg.ClientID = cfg.Providers.NaverClientID
	placeCfg.ClientSecret = cfg.Providers.NaverClientSecret
	placeCfg.CacheTTL = cfg.Cache.PlaceTTL
	place := providers.NewPlaceProvider(placeCfg, client, placeCache, budget, repo, breakerCfg)

	routingCfg := providers.DefaultRoutingConfig()
	routingCfg.ClientID = cfg.Providers.NCPClientID
	routingCfg.ClientSecret = cfg.Providers.NCPClientSecret
	routingCfg.CacheTTL = cfg.Cache.RouteTTL
	routing := providers.NewRoutingProvider(routingCfg, client, routeCache, budget, repo, breakerCfg)

	weatherCfg := providers.DefaultWeatherConfig()
	weatherCfg.ServiceKey = cfg.Providers.KMAServiceKey
	weatherCfg.CacheTTL = cfg.Cache.WeatherTTL
	weather := providers.NewWeatherProvider(weatherCfg, client, weatherCache, budget, repo, breakerCfg)

	shoppingCfg := providers.DefaultShoppingConfig()
	shoppingCfg.ClientID = cfg.Providers.NaverClientID
	shoppingCfg.ClientSecret = cfg.Providers.NaverClientSecret
	shoppingCfg.CacheTTL = cfg.Cache.ShoppingTTL
	shopping := providers.NewShoppingProvider(shoppingCfg, client, shoppingCache, budget, repo, breakerCfg)

	for name, configured := range map[string]bool{
		"place":    place.Configured(),
		"routing":  routing.Configured(),
		"weather":  weather.Configured(),
		"shopping": shopping.Configured(),
	} {
		if !configured {
			logger.Warn().Str("provider", name).Msg("Provider credentials not set, running degraded")
		}
	}

	matcher := matching.NewMatcher(repo, matching.DefaultConfig())
	resolver := planner.NewResolver(repo, place, routing, planner.DefaultResolverConfig())

	evalCfg := planner.DefaultEvaluatorConfig()
	evaluator := planner.NewEvaluator(repo, evalCfg)

	rankCfg := planner.DefaultRankingConfig()
	rankCfg.MinCoverage = cfg.Plan.MinCoverage
	rankCfg.RelaxedCoverage = cfg.Plan.RelaxedCoverage
	rankCfg.PriceWeight = cfg.Plan.PriceWeight
	rankCfg.TravelWeight = cfg.Plan.TravelWeight
	rankCfg.CoverageWeight = cfg.Plan.CoverageWeight
	ranker := planner.NewRanker(rankCfg)

	svcCfg := planner.DefaultServiceConfig()
	svcCfg.RequestTimeout = cfg.Plan.RequestTimeout
	svcCfg.MaxBasketItems = cfg.Plan.MaxBasketItems
	svcCfg.OnlineConcurrency = cfg.Plan.OnlineConcurrency
	if len(cfg.Plan.AllowedDomains) > 0 {
		svcCfg.AllowedDomains = cfg.Plan.AllowedDomains
	}

	planService := planner.NewService(
		matcher, resolver, evaluator, ranker,
		repo, weather, shopping, repo, repo,
		svcCfg, evalCfg,
	)

	breakers := map[string]*resilience.Breaker{
		"place":    place.Breaker(),
		"routing":  routing.Breaker(),
		"weather":  weather.Breaker(),
		"shopping": shopping.Breaker(),
	}

	handlers.InitPlanService(planService)
	handlers.InitAdmin(budget, caches, breakers)
	handlers.InitIngest(repo)

	cacheSweeper := sweepers.NewCacheSweeper(caches, logger, cfg.Cache.SweepInterval)
	go cacheSweeper.Start(ctx)

	retentionSweeper := sweepers.NewRetentionSweeper(jobs.DefaultCleanupConfig(), logger, 24*time.Hour)
	go retentionSweeper.Start(ctx)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.RateLimitMiddleware())
	{
		v1.POST("/plans", handlers.GeneratePlans)
		v1.POST("/plans/select", handlers.SelectPlan)
	}

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuthMiddleware())
	internal.Use(middleware.ServiceRateLimitMiddleware(50, 100))
	{
		internal.GET("/health", handlers.HealthCheck)
		internal.GET("/budget", handlers.BudgetStatus)
		internal.GET("/breakers", handlers.BreakerStates)
		internal.POST("/breakers/:provider/reset", handlers.ResetBreaker)
		internal.POST("/caches/sweep", handlers.SweepCaches)
		internal.POST("/ingest/xlsx", handlers.IngestSnapshots)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	cacheSweeper.Stop()
	retentionSweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", "plan-service").Logger()
	return &logger
}
