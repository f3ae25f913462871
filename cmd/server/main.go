package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/regdesk/internal"
	"github.com/DukeRupert/regdesk/internal/auth"
	"github.com/DukeRupert/regdesk/internal/cache"
	"github.com/DukeRupert/regdesk/internal/domain"
	"github.com/DukeRupert/regdesk/internal/embedding"
	"github.com/DukeRupert/regdesk/internal/embedding/httpclient"
	"github.com/DukeRupert/regdesk/internal/embedding/mock"
	"github.com/DukeRupert/regdesk/internal/handler"
	"github.com/DukeRupert/regdesk/internal/metrics"
	"github.com/DukeRupert/regdesk/internal/middleware"
	"github.com/DukeRupert/regdesk/internal/repository"
	"github.com/DukeRupert/regdesk/internal/scheduler"
	"github.com/DukeRupert/regdesk/internal/search"
	"github.com/DukeRupert/regdesk/internal/service"
	"github.com/DukeRupert/regdesk/internal/worker"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// upstream is the embedding and similarity search client.
type upstream interface {
	embedding.Embedder
	embedding.Searcher
}

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := internal.OpenDB(ctx, cfg.DatabaseDriver, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	// Run migrations
	if err := internal.RunMigrations(db.DB, cfg.DatabaseDriver); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready", "driver", cfg.DatabaseDriver)

	// Initialize repository
	repo := repository.New(db)

	// Result cache
	healthChecks := map[string]handler.HealthCheck{
		"database": db.PingContext,
	}
	cacheStore, closeCache, err := newCacheStore(ctx, cfg, db, healthChecks)
	if err != nil {
		return err
	}
	defer closeCache()
	resultCache := cache.New(cacheStore, logger, cfg.CacheTTL).WithTimeout(cfg.CacheTimeout)
	logger.Info("Result cache ready", "backend", cfg.CacheBackend, "ttl", cfg.CacheTTL)

	// Embedding and similarity search
	client, err := newUpstream(cfg, logger)
	if err != nil {
		return fmt.Errorf("embedding client initialization failed: %w", err)
	}
	searchService := search.NewService(resultCache, client, client, logger)

	// Initialize services
	usageStore := service.NewUsageStore(db, logger)
	prompts := service.NewPromptTracker(repo, logger, cfg.PromptCooldown)
	quotas := service.NewQuotaManager(usageStore, prompts, logger, cfg.QuotaCheckTimeout)

	// Daily reset scheduler
	resets := scheduler.New(usageStore, repo, logger)
	if cfg.SchedulerEnabled {
		resets.Start()
	} else {
		logger.Info("Quota reset scheduler disabled")
	}

	// Cache sweeper
	workerConfig := worker.DefaultConfig()
	workerConfig.Interval = cfg.CacheSweepInterval
	sweeper, err := worker.New(workerConfig, logger)
	if err != nil {
		return fmt.Errorf("worker initialization failed: %w", err)
	}
	sweeper.Register(worker.NewCacheSweepTask(resultCache))
	sweeper.Start(ctx)

	// Initialize middleware
	isSecure := cfg.Env != "development"
	verifier, err := auth.NewTokenVerifier(auth.VerifierConfig{
		Secret:   []byte(cfg.AuthJWTSecret),
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
	}, repo, logger)
	if err != nil {
		return fmt.Errorf("token verifier initialization failed: %w", err)
	}
	authMw := middleware.NewAuthMiddleware(verifier, logger)
	quotaMw := middleware.NewQuotaMiddleware(quotas, logger, cfg.QuotaFailOpen)
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute, logger)
	rateLimitMw := middleware.NewRateLimitMiddleware(limiter, logger)
	adminAuth := middleware.NewBasicAuthMiddleware("regdesk admin", cfg.AdminUsername, cfg.AdminPassword)
	metricsAuth := middleware.NewBasicAuthMiddleware("metrics", cfg.MetricsUsername, cfg.MetricsPassword)

	if cfg.QuotaFailOpen {
		logger.Warn("Quota enforcement fails open: requests are allowed while the counter store is down")
	}

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	handler.NewHealthHandler(healthChecks, logger).RegisterRoutes(mux)

	// Metrics endpoint
	if !metricsAuth.Enabled() {
		logger.Warn("METRICS_USERNAME/METRICS_PASSWORD not set; /metrics is unprotected")
	}
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	requireUser := middleware.Stack(rateLimitMw.Limit, authMw.Authenticate)
	enforceSearch := middleware.Stack(requireUser, quotaMw.Enforce(domain.QuotaTypeSearch))
	checkSearch := middleware.Stack(requireUser, quotaMw.Check(domain.QuotaTypeSearch))

	handler.NewSearchHandler(searchService, logger).RegisterRoutes(mux, enforceSearch, checkSearch)
	handler.NewQuotaHandler(quotas, logger).RegisterRoutes(mux, requireUser)
	handler.NewPromptHandler(prompts, logger).RegisterRoutes(mux, requireUser)

	// Admin routes are only mounted when credentials are configured
	if adminAuth.Enabled() {
		requireAdmin := middleware.Stack(rateLimitMw.Limit, adminAuth.Handler)
		handler.NewAdminHandler(resets, resultCache, repo, logger).RegisterRoutes(mux, requireAdmin)
	} else {
		logger.Warn("ADMIN_USERNAME/ADMIN_PASSWORD not set; admin routes disabled")
	}

	// Global middleware
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	root := middleware.Stack(securityMw.Handler, loggingMw.Handler, metrics.Middleware)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	resets.Stop()
	sweeper.Stop()
	limiter.Stop()
	if err := quotas.Drain(shutdownCtx); err != nil {
		logger.Warn("Pending upgrade prompts not written", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newCacheStore builds the configured cache store and registers its health
// check. The returned func releases the store's connections.
func newCacheStore(ctx context.Context, cfg *internal.Config, db *sqlx.DB, checks map[string]handler.HealthCheck) (cache.Store, func(), error) {
	if cfg.CacheBackend != "redis" {
		return cache.NewSQLStore(db), func() {}, nil
	}

	client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	checks["cache"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	return cache.NewRedisStore(client, "regdesk:cache:"), func() { client.Close() }, nil
}

func newUpstream(cfg *internal.Config, logger *slog.Logger) (upstream, error) {
	if cfg.EmbeddingProvider == "mock" {
		logger.Warn("Using mock embedding provider")
		return mock.New(logger), nil
	}

	client, err := httpclient.New(httpclient.Config{
		BaseURL: cfg.EmbeddingURL,
		APIKey:  cfg.EmbeddingAPIKey,
		Model:   cfg.EmbeddingModel,
		ProviderConfig: embedding.ProviderConfig{
			MaxRetries:     cfg.EmbeddingMaxRetries,
			RetryBaseDelay: cfg.EmbeddingRetryBaseDelay,
			RequestTimeout: cfg.EmbeddingRequestTimeout,
			RequestsPerSec: cfg.EmbeddingRequestsPerSec,
			Burst:          cfg.EmbeddingBurst,
		},
	}, logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
