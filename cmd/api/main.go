package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"dashguard/internal/api"
	"dashguard/internal/api/handlers"
	"dashguard/internal/config"
	"dashguard/internal/dashboard"
	"dashguard/internal/domain/services"
	"dashguard/internal/grpc/probe"
	"dashguard/internal/infrastructure/cache"
	"dashguard/internal/infrastructure/geoip"
	"dashguard/internal/sources"
	"dashguard/internal/streaming"
	"dashguard/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "dashguard",
		Short: "Serve the threat intelligence dashboard API",
		Long: `Start the dashboard HTTP and gRPC servers. The feed is loaded on start
and refreshed on the configured interval until SIGINT or SIGTERM.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			serve(cfg)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("DASHGUARD_CONFIG"),
		"path to config file (env DASHGUARD_CONFIG)")
	return root
}

func serve(cfg *config.Config) {
	// Initialize logger
	log := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		TimeFormat: cfg.Logger.TimeFormat,
	})
	logger.SetGlobal(log)

	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Msg("starting dashguard")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize infrastructure
	redisCache := initRedis(ctx, cfg, log)
	defer func() {
		if redisCache != nil {
			redisCache.Close()
		}
	}()

	enricher, err := geoip.Open(cfg.Feed.GeoIPDatabase, log)
	if err != nil {
		log.Warn().Err(err).Msg("geoip database unavailable, threats keep their feed locations")
	}
	defer enricher.Close()

	// Initialize streaming infrastructure
	var natsPublisher *streaming.NATSPublisher
	if cfg.NATS.Enabled {
		natsPublisher, err = streaming.NewNATSPublisher(ctx, cfg.NATS, log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, continuing with local events only")
			natsPublisher = nil
		} else {
			log.Info().Str("url", cfg.NATS.URL).Msg("connected to NATS")
		}
	}

	eventBus := streaming.NewEventBus(natsPublisher, log)
	defer eventBus.Close()
	log.Info().Bool("nats_enabled", natsPublisher != nil).Msg("event bus initialized")

	wsHub := streaming.NewWebSocketHub(streaming.NewUpgrader(cfg.Map.WebSocketOrigins), cfg.Map.WebSocketBuffer, log)
	go wsHub.Run(ctx)

	// Live change feed clients follow the bus, including feed loads relayed from other instances
	busEvents, unsubscribe := eventBus.Subscribe(nil)
	defer unsubscribe()
	go wsHub.Consume(ctx, busEvents)
	go func() {
		if err := eventBus.Relay(ctx); err != nil {
			log.Warn().Err(err).Msg("feed events from other instances are unavailable")
		}
	}()

	eventPublisher := streaming.NewEventBusPublisher(eventBus)

	// Feed loader
	registry := sources.NewDefaultRegistry(cfg.Feed.Config, log)
	loader, err := registry.Get(cfg.Feed.Loader)
	if err != nil {
		log.Fatal().Err(err).Strs("available", registry.Slugs()).Msg("unknown feed loader")
	}

	// Initialize services
	normalizer := services.NewNormalizer(log)
	aggregator := services.NewAggregator(cfg.Feed, loader, normalizer, enricher, redisCache, log)
	aggregator.SetEventPublisher(eventPublisher)

	statsService := services.NewStatsService(redisCache, cfg.Dashboard.StatsCacheTTL, log)

	workspaces, err := dashboard.NewManager(cfg.Dashboard, dashboard.MapConfigFrom(cfg.Map), statsService, eventPublisher, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create workspace manager")
	}
	defer workspaces.Close()
	aggregator.AddSink(workspaces)

	// Initialize handlers
	h := handlers.NewHandlers(handlers.Dependencies{
		Config:     *cfg,
		Workspaces: workspaces,
		Aggregator: aggregator,
		Cache:      redisCache,
		EventBus:   eventBus,
		WSHub:      wsHub,
		Logger:     log,
	})

	// Create router
	router := api.NewRouter(*cfg, h, redisCache, log)

	// Start HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gRPC listener")
	}

	grpcServer := grpc.NewServer()
	healthChecker := probe.NewHealthChecker(aggregator, redisCache, log)
	healthChecker.Register(grpcServer)
	go healthChecker.Run(ctx)

	go func() {
		log.Info().
			Str("addr", grpcListener.Addr().String()).
			Msg("starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Fatal().Err(err).Msg("gRPC server failed")
		}
	}()

	// Start the feed
	go func() {
		if err := aggregator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("aggregator stopped with error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	// Cancel context to stop background services
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	grpcServer.GracefulStop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("shutdown complete")
}

// initRedis connects to Redis when enabled. Failure degrades to running
// without the shared cache.
func initRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) *cache.RedisCache {
	if !cfg.Redis.Enabled {
		log.Info().Msg("redis disabled, stats caching and rate limiting are off")
		return nil
	}

	redisCache, err := cache.NewRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to Redis, continuing without cache")
		return nil
	}
	return redisCache
}
