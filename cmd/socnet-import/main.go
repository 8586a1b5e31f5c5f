package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ha1tch/socnet/pkg/cache"
	"github.com/ha1tch/socnet/pkg/config"
	"github.com/ha1tch/socnet/pkg/dataset"
	"github.com/ha1tch/socnet/pkg/storage"
	"github.com/ha1tch/socnet/pkg/validation"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: socnet-import <name> <file.txt>")
		fmt.Println("Example: socnet-import facebook ./facebook_combined.txt")
		fmt.Println("The target database is taken from DB_PATH (default socnet.db)")
		os.Exit(1)
	}

	cfg := config.Default()
	config.LoadFromEnv(cfg)

	if err := importFile(cfg, os.Args[1], os.Args[2]); err != nil {
		log.Fatal(err)
	}
}

func importFile(cfg *config.Config, name, path string) error {
	ctx := context.Background()

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot read source file: %w", err)
	}

	req, err := validation.New().ValidateUpload(validation.UploadRequest{
		Name:     name,
		FileName: info.Name(),
		Size:     info.Size(),
	})
	if err != nil {
		return err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read source file: %w", err)
	}

	fmt.Printf("Opening %s store...\n", cfg.StorageType)
	store, err := storage.NewStore(cfg.StorageType, map[string]interface{}{
		"db_path": cfg.DBPath,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	level := zerolog.WarnLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger().Level(level)

	// A shared Redis cache is invalidated so a running server lists the
	// import right away. A server's in-process memory cache cannot be
	// reached from here.
	var shared cache.Cache
	if cfg.CacheType == "redis" {
		redisCache, err := cache.NewRedisCache(cfg.RedisHost, cfg.RedisPort, time.Duration(cfg.CacheTTL)*time.Second)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, running servers may list stale datasets until the cache expires")
		} else {
			defer redisCache.Close()
			shared = redisCache
		}
	}

	svc := dataset.NewService(store, shared, time.Duration(cfg.CacheTTL)*time.Second, nil, logger)

	fmt.Printf("Importing %s as %q...\n", path, req.Name)
	started := time.Now()
	created, err := svc.Create(ctx, req.Name, content)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	stats, err := svc.Statistics(ctx, created.ID)
	if err != nil {
		return fmt.Errorf("imported dataset %d but failed to compute statistics: %w", created.ID, err)
	}

	fmt.Println()
	fmt.Println("Import completed successfully!")
	fmt.Printf("  Dataset ID: %d\n", created.ID)
	fmt.Printf("  Users: %d\n", stats.TotalUsers)
	fmt.Printf("  Average friends per user: %.4f\n", stats.AverageFriendsPerUser)
	fmt.Printf("  Took: %s\n", time.Since(started).Round(time.Millisecond))
	return nil
}
