package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ha1tch/socnet/pkg/cache"
	"github.com/ha1tch/socnet/pkg/config"
	"github.com/ha1tch/socnet/pkg/dataset"
	"github.com/ha1tch/socnet/pkg/metrics"
	"github.com/ha1tch/socnet/pkg/server"
	"github.com/ha1tch/socnet/pkg/storage"
	"github.com/ha1tch/socnet/pkg/validation"
	"github.com/rs/zerolog"
)

func main() {
	// Load configuration
	cfg := config.Default()
	config.LoadFromEnv(cfg)

	// Setup logger
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Logger().
		Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(level)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	printBanner(cfg)

	// Initialize storage
	store, err := storage.NewStore(cfg.StorageType, map[string]interface{}{
		"db_path": cfg.DBPath,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer store.Close()

	if infoProvider, ok := store.(storage.InfoProvider); ok {
		info := infoProvider.Info()
		logger.Info().
			Str("type", info.Type).
			Str("version", info.Version).
			Str("path", info.Path).
			Msg("Storage initialized")
	}

	cacheInstance := newCache(cfg, logger)
	defer cacheInstance.Close()

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector("socnet")
	}

	svc := dataset.NewService(store, cacheInstance, time.Duration(cfg.CacheTTL)*time.Second, collector, logger)
	srv := server.New(cfg, svc, validation.New(), collector, logger)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info().Msg("Shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Shutdown did not complete")
		}
	}()

	logger.Info().Msg("Server ready to accept requests")
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server stopped")
}

// newCache picks the configured cache, falling back to memory when Redis
// is unreachable
func newCache(cfg *config.Config, logger zerolog.Logger) cache.Cache {
	ttl := time.Duration(cfg.CacheTTL) * time.Second

	switch cfg.CacheType {
	case "redis":
		redisCache, err := cache.NewRedisCache(cfg.RedisHost, cfg.RedisPort, ttl)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to connect to Redis, falling back to memory cache")
			return cache.NewMemoryCache(cfg.CacheSize, ttl)
		}
		logger.Info().Msg("Using Redis cache")
		return redisCache
	case "none":
		logger.Info().Msg("Cache disabled")
		return cache.NoopCache{}
	default:
		logger.Info().Msg("Using in-memory cache")
		return cache.NewMemoryCache(cfg.CacheSize, ttl)
	}
}

func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("//////////////////////////// socnet " + config.Version + " /////////////////////////////")
	fmt.Println("----------------------------------------------------------------------")
	fmt.Println("Server Configuration:")
	fmt.Printf("  Host: %s\n", cfg.Host)
	fmt.Printf("  Port: %d\n", cfg.Port)
	fmt.Printf("  Environment: %s\n", cfg.Environment)
	if !cfg.IsDevelopment() {
		fmt.Printf("  CORS origins: %v\n", cfg.CORSOrigins)
	}
	fmt.Println()
	fmt.Println("Storage Configuration:")
	fmt.Printf("  Type: %s\n", cfg.StorageType)
	if cfg.StorageType == "sqlite" {
		fmt.Printf("  Path: %s\n", cfg.DBPath)
	}
	fmt.Println()
	fmt.Println("Cache Configuration:")
	fmt.Printf("  Type: %s\n", cfg.CacheType)
	fmt.Printf("  TTL: %d seconds\n", cfg.CacheTTL)
	if cfg.CacheType == "redis" {
		fmt.Printf("  Redis: %s:%d\n", cfg.RedisHost, cfg.RedisPort)
	}
	fmt.Println()
	fmt.Println("Other Configuration:")
	fmt.Printf("  Max upload size: %d bytes\n", cfg.MaxUploadSize)
	fmt.Printf("  Metrics: %v\n", cfg.MetricsEnabled)
	fmt.Println("----------------------------------------------------------------------")
	fmt.Println()
}
