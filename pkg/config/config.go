package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const Version = "0.3.0"

// Config holds application configuration
type Config struct {
	// Server configuration
	Host        string
	Port        int
	Environment string // "development" allows any CORS origin

	// Storage configuration
	StorageType string // "sqlite" or "memory"
	DBPath      string // SQLite database path

	// Cache configuration
	CacheType string // "memory", "redis" or "none"
	CacheTTL  int    // seconds
	CacheSize int
	RedisHost string
	RedisPort int

	// HTTP configuration
	CORSOrigins    []string
	MaxUploadSize  int64 // bytes
	MetricsEnabled bool

	// Debug
	Debug bool
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Host:           "0.0.0.0",
		Port:           5001,
		Environment:    "production",
		StorageType:    "sqlite",
		DBPath:         "socnet.db",
		CacheType:      "memory",
		CacheTTL:       300,
		CacheSize:      1024,
		RedisHost:      "localhost",
		RedisPort:      6379,
		CORSOrigins:    []string{"http://localhost:3000"},
		MaxUploadSize:  64 << 20, // 64MB
		MetricsEnabled: true,
		Debug:          false,
	}
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(cfg *Config) {
	if val := os.Getenv("HOST"); val != "" {
		cfg.Host = val
	}
	if val := os.Getenv("PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Port = port
		}
	}
	if val := os.Getenv("ENVIRONMENT"); val != "" {
		cfg.Environment = strings.ToLower(val)
	}
	if val := os.Getenv("STORAGE_TYPE"); val != "" {
		cfg.StorageType = val
	}
	if val := os.Getenv("DB_PATH"); val != "" {
		cfg.DBPath = val
	}
	if val := os.Getenv("CACHE_TYPE"); val != "" {
		cfg.CacheType = val
	}
	if val := os.Getenv("CACHE_TTL"); val != "" {
		if ttl, err := strconv.Atoi(val); err == nil {
			cfg.CacheTTL = ttl
		}
	}
	if val := os.Getenv("CACHE_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			cfg.CacheSize = size
		}
	}
	if val := os.Getenv("REDIS_HOST"); val != "" {
		cfg.RedisHost = val
	}
	if val := os.Getenv("REDIS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.RedisPort = port
		}
	}
	if val := os.Getenv("CORS_ORIGINS"); val != "" {
		cfg.CORSOrigins = splitList(val)
	}
	if val := os.Getenv("MAX_UPLOAD_SIZE"); val != "" {
		if size, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.MaxUploadSize = size
		}
	}
	if val := os.Getenv("METRICS_ENABLED"); val != "" {
		cfg.MetricsEnabled = parseBool(val)
	}
	if val := os.Getenv("DEBUG"); val != "" {
		cfg.Debug = parseBool(val)
	}
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	switch c.StorageType {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("invalid storage type: %s", c.StorageType)
	}
	switch c.CacheType {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("invalid cache type: %s", c.CacheType)
	}
	if c.CacheType == "memory" && c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive, got %d", c.CacheSize)
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", c.MaxUploadSize)
	}
	return nil
}

// IsDevelopment reports whether the permissive CORS policy applies
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func parseBool(val string) bool {
	val = strings.ToLower(val)
	return val == "true" || val == "1" || val == "yes"
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
