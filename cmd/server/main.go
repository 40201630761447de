package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobby-s-dev/wsenergy/internal/api"
	"github.com/bobby-s-dev/wsenergy/internal/config"
	"github.com/bobby-s-dev/wsenergy/internal/observability"
	"github.com/bobby-s-dev/wsenergy/internal/scheduler"
	"github.com/bobby-s-dev/wsenergy/internal/services"
	"github.com/bobby-s-dev/wsenergy/pkg/client"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	level := observability.ParseLogLevel(os.Getenv("LOG_LEVEL"))
	logger, err := observability.NewLogger(level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	logger.Info("Starting WSEnergy API")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	// LOG_LEVEL may come from .env, which is only read by LoadConfig
	level.SetLevel(observability.ParseLogLevel(cfg.Server.LogLevel).Level())

	clientConfig := client.ClientConfig{
		Timeout:        cfg.Upstream.Timeout,
		MaxRetries:     cfg.Retry.MaxRetries,
		RetryDelay:     cfg.Retry.Delay,
		Multiplier:     cfg.Retry.Multiplier,
		Threshold:      cfg.CircuitBreaker.Threshold,
		BreakerTimeout: cfg.CircuitBreaker.Timeout,
	}
	weatherClient := client.NewOpenWeatherClient(cfg.OpenWeather.BaseURL, cfg.OpenWeather.APIKey, cfg.OpenWeather.CityIDs, clientConfig, logger)
	rteClient := client.NewRTEClient(cfg.RTE.BaseURL, cfg.RTE.AccountToken, clientConfig, logger)

	cache, stopCache := newCache(cfg, logger)
	defer stopCache()

	gateway := services.NewGateway(weatherClient, rteClient, cache, cfg.Cache.Duration, logger)

	// Authenticate before serving anything that depends on the token
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), cfg.Upstream.StartupTimeout)
	if _, err := rteClient.Token(startupCtx); err != nil {
		cancelStartup()
		logger.Fatal("Failed to acquire RTE access token", zap.Error(err))
	}

	// Warm the cache; reads fetch on demand if this fails
	if err := gateway.Refresh(startupCtx); err != nil {
		logger.Warn("Initial upstream refresh failed, serving on demand", zap.Error(err))
	}
	cancelStartup()

	// Initialize scheduler
	refreshScheduler := scheduler.NewScheduler(gateway, cfg.Scheduler.Schedule, cfg.Scheduler.Timeout, logger)
	if err := refreshScheduler.Start(); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		JSONEncoder:           json.Marshal,
		ErrorHandler:          api.ErrorHandler,
		DisableStartupMessage: true,
	})

	// Setup handlers and routes
	handler := api.NewHandler(gateway, refreshScheduler, cfg.Server.RequestTimeout, logger)
	api.SetupRoutes(app, handler, logger)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info("WSEnergy API listening", zap.String("address", addr))

		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop scheduler
	refreshScheduler.Stop()

	// Shutdown Fiber app
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func newCache(cfg *config.Config, logger *zap.Logger) (services.PayloadCache, func()) {
	if cfg.Cache.Backend == config.CacheBackendMemcached {
		cache := services.NewMemcachedCache(cfg.Cache.MemcachedServers, 0)
		if err := cache.Ping(); err != nil {
			logger.Warn("Memcached unreachable, reads will go upstream until it recovers",
				zap.String("servers", cfg.Cache.MemcachedServers),
				zap.Error(err))
		}
		logger.Info("Using memcached payload cache", zap.String("servers", cfg.Cache.MemcachedServers))
		return cache, func() { cache.Close() }
	}

	cache := services.NewMemoryCache(cfg.Cache.MaxSize, logger)
	logger.Info("Using in-memory payload cache", zap.Int("max_size", cfg.Cache.MaxSize))
	return cache, cache.Stop
}
