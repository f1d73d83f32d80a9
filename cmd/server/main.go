package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/govai/console/internal"
	"github.com/govai/console/internal/ai"
	"github.com/govai/console/internal/ai/anthropic"
	"github.com/govai/console/internal/ai/gemini"
	"github.com/govai/console/internal/ai/mock"
	"github.com/govai/console/internal/ai/openai"
	"github.com/govai/console/internal/billing"
	"github.com/govai/console/internal/cache"
	"github.com/govai/console/internal/handler"
	"github.com/govai/console/internal/jobs"
	"github.com/govai/console/internal/metrics"
	"github.com/govai/console/internal/middleware"
	"github.com/govai/console/internal/report"
	"github.com/govai/console/internal/repository"
	"github.com/govai/console/internal/service"
	"github.com/govai/console/internal/storage"
	"github.com/govai/console/internal/worker"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

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
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	store := repository.NewStore(db)

	// Plan cache
	var planCache cache.PlanCache = cache.NopPlanCache{}
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer client.Close()
		planCache = cache.NewRedisPlanCache(client, cfg.PlanCacheTTL)
		logger.Info("Plan cache enabled", "ttl", cfg.PlanCacheTTL)
	}

	// AI providers
	chat, embedder, aliases, closeAI, err := newAIProviders(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("AI provider initialization failed: %w", err)
	}
	defer closeAI()

	if err := report.SetLicenseKey(cfg.UniofficeLicenseKey); err != nil {
		return err
	}

	// Initialize services
	planService := service.NewPlanService(store, planCache, logger)
	promptService := service.NewPromptService(store, logger)
	costService, err := service.NewCostService(store, planService, service.CostConfig{ModelAliases: aliases}, logger)
	if err != nil {
		return fmt.Errorf("cost service initialization failed: %w", err)
	}
	quotaService := service.NewQuotaService(store, planService, costService, worker.NewQueue(store), service.QuotaConfig{
		WriteRetries:   cfg.UsageWriteRetries,
		WriteBackoff:   cfg.UsageWriteBackoff,
		ReservationTTL: cfg.ReservationTTL,
	}, logger)

	fileStorage, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	var billingService billing.Service
	if cfg.StripeSecretKey != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.PriceConfig{
			StandardPriceID:   cfg.StripeStandardPriceID,
			ProPriceID:        cfg.StripeProPriceID,
			EnterprisePriceID: cfg.StripeEnterprisePriceID,
		})
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("Stripe billing disabled (STRIPE_SECRET_KEY not set)")
	}

	// Background worker
	var jobWorker *worker.Worker
	if cfg.WorkerEnabled {
		workerCfg := worker.DefaultConfig()
		workerCfg.Concurrency = cfg.WorkerConcurrency
		workerCfg.PollInterval = cfg.WorkerPollInterval
		workerCfg.JobTimeout = cfg.WorkerJobTimeout
		workerCfg.SweepInterval = cfg.SweepInterval

		jobWorker, err = worker.New(store, workerCfg, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		jobWorker.Register(jobs.NewRecordUsageHandler(quotaService, logger))
		jobWorker.Register(jobs.NewSweepReservationsHandler(quotaService, logger))
	}

	// Initialize middleware
	isSecure := cfg.Env != "development"
	authMw := middleware.NewAuthMiddleware([]byte(cfg.JWTSecret), planService, logger)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure, cfg.AllowedOrigins...)
	tenantLimiter := middleware.NewRateLimiter(cfg.TenantRateLimit, cfg.TenantRateWindow, logger)
	rateLimitMw := middleware.NewRateLimitMiddleware(tenantLimiter, middleware.TenantKey, logger)
	metricsAuth := middleware.NewOperatorAuth(cfg.MetricsUsername, cfg.MetricsPassword, authMw, logger)

	tenant := middleware.Stack(authMw.RequireUser, authMw.RequireTenant, rateLimitMw.Limit)
	admin := middleware.Stack(authMw.RequireUser, authMw.RequireAdmin)

	// Initialize handlers
	meter := handler.NewMeter(quotaService, costService, promptService, chat, logger)
	healthHandler := handler.NewHealthHandler(db, logger)
	chatHandler := handler.NewChatHandler(meter, costService, embedder, logger)
	documentHandler := handler.NewDocumentHandler(meter, quotaService, logger)
	fileHandler := handler.NewFileHandler(quotaService, fileStorage, cfg.MaxUploadSize, logger)
	usageHandler := handler.NewUsageHandler(quotaService, planService, costService, logger)
	adminHandler := handler.NewAdminHandler(planService, quotaService, promptService, logger)
	billingHandler := handler.NewBillingHandler(billingService, planService, cfg.BaseURL, logger)
	webhookHandler := handler.NewWebhookHandler(billingService, planService, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	healthHandler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	// Local uploads are served directly in development.
	if cfg.StorageProvider == "local" {
		mux.Handle("GET /files/", http.StripPrefix("/files/", http.FileServer(http.Dir(cfg.LocalStoragePath))))
	}

	// Public: Stripe authenticates by signature.
	webhookHandler.RegisterRoutes(mux)

	chatHandler.RegisterRoutes(mux, tenant)
	documentHandler.RegisterRoutes(mux, tenant)
	fileHandler.RegisterRoutes(mux, tenant)
	usageHandler.RegisterRoutes(mux, tenant)
	billingHandler.RegisterRoutes(mux, tenant)
	adminHandler.RegisterRoutes(mux, admin)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		handler.NotFoundResponse(w, r, logger)
	})

	// Global middleware (outermost first)
	root := middleware.Stack(
		loggingMw.Handler,
		metrics.Middleware,
		securityMw.Handler,
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.AIRequestTimeout + 30*time.Second,
	}

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if jobWorker != nil {
		jobWorker.Start(workerCtx)
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env, "ai_provider", cfg.AIProvider)
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
	if jobWorker != nil {
		jobWorker.Stop()
	}
	tenantLimiter.Stop()

	logger.Info("Graceful shutdown complete")
	return nil
}

// newAIProviders builds the chat router and the embedding provider. Every
// provider with a key gets a model-prefix route; AI_PROVIDER picks the
// fallback and the model aliases.
func newAIProviders(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (ai.ChatProvider, ai.EmbeddingProvider, map[string]string, func(), error) {
	providerCfg := ai.ProviderConfig{
		MaxRetries:     cfg.AIMaxRetries,
		RetryBaseDelay: cfg.AIRetryBaseDelay,
		RequestTimeout: cfg.AIRequestTimeout,
	}
	closeFn := func() {}

	var (
		openaiProvider    *openai.Provider
		geminiProvider    *gemini.Provider
		anthropicProvider *anthropic.Provider
		err               error
	)

	if cfg.OpenAIAPIKey != "" {
		openaiProvider, err = openai.New(openai.Config{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL, ProviderConfig: providerCfg}, logger)
		if err != nil {
			return nil, nil, nil, closeFn, err
		}
	}
	if cfg.GeminiAPIKey != "" {
		geminiProvider, err = gemini.New(ctx, gemini.Config{APIKey: cfg.GeminiAPIKey, ProviderConfig: providerCfg}, logger)
		if err != nil {
			return nil, nil, nil, closeFn, err
		}
		closeFn = func() {
			if err := geminiProvider.Close(); err != nil {
				logger.Warn("failed to close gemini client", "error", err)
			}
		}
	}
	if cfg.AnthropicAPIKey != "" {
		anthropicProvider, err = anthropic.New(anthropic.Config{APIKey: cfg.AnthropicAPIKey, ProviderConfig: providerCfg}, logger)
		if err != nil {
			return nil, nil, nil, closeFn, err
		}
	}

	var (
		fallback ai.ChatProvider
		embedder ai.EmbeddingProvider
		aliases  map[string]string
	)
	switch cfg.AIProvider {
	case "openai":
		fallback, embedder = openaiProvider, openaiProvider
	case "gemini":
		fallback, embedder, aliases = geminiProvider, geminiProvider, service.GeminiAliases
	case "anthropic":
		fallback, aliases = anthropicProvider, service.AnthropicAliases
	default:
		m := mock.New(logger)
		fallback, embedder = m, m
	}

	// Anthropic has no embeddings API.
	if embedder == nil {
		switch {
		case openaiProvider != nil:
			embedder = openaiProvider
		case geminiProvider != nil:
			embedder = geminiProvider
		default:
			return nil, nil, nil, closeFn, fmt.Errorf("embeddings need OPENAI_API_KEY or GEMINI_API_KEY when AI_PROVIDER is %q", cfg.AIProvider)
		}
	}

	router := ai.NewRouter(fallback)
	if openaiProvider != nil {
		router.Handle("gpt-", openaiProvider)
		router.Handle("o1", openaiProvider)
	}
	if geminiProvider != nil {
		router.Handle("gemini-", geminiProvider)
	}
	if anthropicProvider != nil {
		router.Handle("claude-", anthropicProvider)
	}

	logger.Info("AI providers ready",
		"fallback", fallback.Name(),
		"openai", openaiProvider != nil,
		"gemini", geminiProvider != nil,
		"anthropic", anthropicProvider != nil,
	)
	return router, embedder, aliases, closeFn, nil
}

func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageProvider {
	case "s3", "r2":
		return storage.NewS3Storage(storage.S3Config{
			AccountID:       cfg.S3AccountID,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			BucketName:      cfg.S3BucketName,
			Region:          cfg.S3Region,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
	default:
		return storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
