package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	// Database Configuration
	DatabaseDriver string // "postgres" or "sqlite"
	DatabaseUrl    string

	// Result cache
	CacheBackend  string // "sql" or "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
	CacheTimeout  time.Duration

	// Quota enforcement
	QuotaCheckTimeout time.Duration
	QuotaFailOpen     bool // Allow requests when the counter store is down
	PromptCooldown    time.Duration

	// Identity provider tokens
	AuthJWTSecret string
	AuthIssuer    string
	AuthAudience  string

	// Embedding and similarity search service
	EmbeddingProvider       string // "http" or "mock"
	EmbeddingURL            string
	EmbeddingAPIKey         string
	EmbeddingModel          string
	EmbeddingMaxRetries     int
	EmbeddingRetryBaseDelay time.Duration
	EmbeddingRequestTimeout time.Duration
	EmbeddingRequestsPerSec float64
	EmbeddingBurst          int

	// Background work
	SchedulerEnabled   bool
	CacheSweepInterval time.Duration

	// Per-client request throttle on /api
	RateLimitRPS   float64
	RateLimitBurst int

	// Admin endpoint authentication
	AdminUsername string
	AdminPassword string

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		DatabaseDriver: getEnv("DATABASE_DRIVER", DriverPostgres),

		// Cache defaults to the SQL store so a single node needs nothing else
		CacheBackend:  getEnv("CACHE_BACKEND", "sql"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvDuration("CACHE_TTL", time.Hour),
		CacheTimeout:  getEnvDuration("CACHE_LOOKUP_TIMEOUT", 500*time.Millisecond),

		QuotaCheckTimeout: getEnvDuration("QUOTA_CHECK_TIMEOUT", 2*time.Second),
		QuotaFailOpen:     getEnvBool("QUOTA_FAIL_OPEN", false),
		PromptCooldown:    getEnvDuration("PROMPT_COOLDOWN", 24*time.Hour),

		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		AuthIssuer:    getEnv("AUTH_ISSUER", ""),
		AuthAudience:  getEnv("AUTH_AUDIENCE", ""),

		// Embedding defaults
		EmbeddingProvider:       getEnv("EMBEDDING_PROVIDER", "mock"),
		EmbeddingURL:            getEnv("EMBEDDING_URL", ""),
		EmbeddingAPIKey:         getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModel:          getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingMaxRetries:     getEnvInt("EMBEDDING_MAX_RETRIES", 3),
		EmbeddingRetryBaseDelay: getEnvDuration("EMBEDDING_RETRY_BASE_DELAY", 200*time.Millisecond),
		EmbeddingRequestTimeout: getEnvDuration("EMBEDDING_REQUEST_TIMEOUT", 10*time.Second),
		EmbeddingRequestsPerSec: getEnvFloat("EMBEDDING_RPS", 0),
		EmbeddingBurst:          getEnvInt("EMBEDDING_BURST", 5),

		SchedulerEnabled:   getEnvBool("SCHEDULER_ENABLED", true),
		CacheSweepInterval: getEnvDuration("CACHE_SWEEP_INTERVAL", 10*time.Minute),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),

		AdminUsername: getEnv("ADMIN_USERNAME", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AuthJWTSecret == "" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET is required")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.DatabaseDriver != DriverPostgres && cfg.DatabaseDriver != DriverSQLite {
		return fmt.Errorf("DATABASE_DRIVER must be either 'postgres' or 'sqlite', got: %s", cfg.DatabaseDriver)
	}

	// Validate cache configuration
	switch cfg.CacheBackend {
	case "sql":
	case "redis":
		if cfg.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when CACHE_BACKEND is 'redis'")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be either 'sql' or 'redis', got: %s", cfg.CacheBackend)
	}
	if cfg.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got: %s", cfg.CacheTTL)
	}
	if cfg.CacheTimeout <= 0 {
		return fmt.Errorf("CACHE_LOOKUP_TIMEOUT must be positive, got: %s", cfg.CacheTimeout)
	}

	if cfg.QuotaCheckTimeout <= 0 {
		return fmt.Errorf("QUOTA_CHECK_TIMEOUT must be positive, got: %s", cfg.QuotaCheckTimeout)
	}

	// Validate embedding provider configuration
	if cfg.EmbeddingProvider == "http" {
		if cfg.EmbeddingURL == "" {
			return fmt.Errorf("EMBEDDING_URL is required when EMBEDDING_PROVIDER is 'http'")
		}
	} else if cfg.EmbeddingProvider != "mock" {
		return fmt.Errorf("EMBEDDING_PROVIDER must be either 'http' or 'mock', got: %s", cfg.EmbeddingProvider)
	}

	// Admin credentials are mandatory in production
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		if cfg.Env == "production" {
			return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD are required in production")
		}
	}

	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
