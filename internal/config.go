package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Application base URL (for billing redirects)
	BaseURL string

	// Browser origins allowed to call the API
	AllowedOrigins []string

	// Tenant authentication: HS256 secret shared with the identity provider
	JWTSecret string

	// Plan cache. Empty disables caching.
	RedisURL     string
	PlanCacheTTL time.Duration

	// Storage Configuration
	StorageProvider string // "local" or "s3"
	MaxUploadSize   int64

	// Local Storage (development)
	LocalStoragePath string
	LocalStorageURL  string

	// S3-compatible storage (R2 when S3_ENDPOINT is empty)
	S3AccountID       string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3BucketName      string
	S3Region          string
	S3UsePathStyle    bool

	// Quota enforcement
	UsageWriteRetries int
	UsageWriteBackoff time.Duration
	ReservationTTL    time.Duration
	SweepInterval     time.Duration
	TenantRateLimit   int
	TenantRateWindow  time.Duration

	// Worker Configuration
	WorkerEnabled      bool
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerJobTimeout   time.Duration

	// AI Provider Configuration
	AIProvider       string // "openai", "gemini", "anthropic" or "mock"
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	GeminiAPIKey     string
	AnthropicAPIKey  string
	AIMaxRetries     int
	AIRetryBaseDelay time.Duration
	AIRequestTimeout time.Duration

	// Stripe Billing Configuration
	// Billing routes answer 503 when the secret key is empty.
	StripeSecretKey         string
	StripeWebhookSecret     string
	StripeStandardPriceID   string
	StripeProPriceID        string
	StripeEnterprisePriceID string

	// unioffice metered key for Word export
	UniofficeLicenseKey string

	// Metrics endpoint authentication
	// Scrape credentials for /metrics. Admin bearer tokens are accepted too.
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

		BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),

		JWTSecret: getEnv("SUPABASE_JWT_SECRET", ""),

		RedisURL:     getEnv("REDIS_URL", ""),
		PlanCacheTTL: getEnvDuration("PLAN_CACHE_TTL", 5*time.Minute),

		// Storage defaults to local filesystem for development
		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		MaxUploadSize:    int64(getEnvInt("MAX_UPLOAD_SIZE_MB", 50)) << 20,
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/files"),

		S3AccountID:       getEnv("S3_ACCOUNT_ID", ""),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3BucketName:      getEnv("S3_BUCKET_NAME", ""),
		S3Region:          getEnv("S3_REGION", "auto"),
		S3UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", false),

		UsageWriteRetries: getEnvInt("USAGE_WRITE_RETRIES", 3),
		UsageWriteBackoff: getEnvDuration("USAGE_WRITE_BACKOFF", 50*time.Millisecond),
		ReservationTTL:    getEnvDuration("RESERVATION_TTL", 10*time.Minute),
		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", time.Minute),
		TenantRateLimit:   getEnvInt("TENANT_RATE_LIMIT", 120),
		TenantRateWindow:  getEnvDuration("TENANT_RATE_WINDOW", time.Minute),

		// Worker defaults
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		WorkerJobTimeout:   getEnvDuration("WORKER_JOB_TIMEOUT", time.Minute),

		// AI provider defaults
		AIProvider:       getEnv("AI_PROVIDER", "mock"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AIMaxRetries:     getEnvInt("AI_MAX_RETRIES", 3),
		AIRetryBaseDelay: getEnvDuration("AI_RETRY_BASE_DELAY", 1*time.Second),
		AIRequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 60*time.Second),

		StripeSecretKey:         getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:     getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeStandardPriceID:   getEnv("STRIPE_STANDARD_PRICE_ID", ""),
		StripeProPriceID:        getEnv("STRIPE_PRO_PRICE_ID", ""),
		StripeEnterprisePriceID: getEnv("STRIPE_ENTERPRISE_PRICE_ID", ""),

		UniofficeLicenseKey: getEnv("UNIOFFICE_LICENSE_KEY", ""),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	// Validate storage configuration
	switch cfg.StorageProvider {
	case "local":
	case "s3", "r2":
		if cfg.S3AccountID == "" && cfg.S3Endpoint == "" {
			return fmt.Errorf("S3_ACCOUNT_ID or S3_ENDPOINT is required when STORAGE_PROVIDER is '%s'", cfg.StorageProvider)
		}
		if cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "" {
			return fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required when STORAGE_PROVIDER is '%s'", cfg.StorageProvider)
		}
		if cfg.S3BucketName == "" {
			return fmt.Errorf("S3_BUCKET_NAME is required when STORAGE_PROVIDER is '%s'", cfg.StorageProvider)
		}
	default:
		return fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 's3', got: %s", cfg.StorageProvider)
	}
	if cfg.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE_MB must be positive")
	}

	// Validate AI provider configuration
	switch cfg.AIProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is 'openai'")
		}
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER is 'gemini'")
		}
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is 'anthropic'")
		}
	case "mock":
		if cfg.Env == "production" {
			return fmt.Errorf("AI_PROVIDER 'mock' is not allowed in production")
		}
	default:
		return fmt.Errorf("AI_PROVIDER must be one of 'openai', 'gemini', 'anthropic' or 'mock', got: %s", cfg.AIProvider)
	}

	if cfg.UsageWriteRetries < 1 {
		return fmt.Errorf("USAGE_WRITE_RETRIES must be at least 1")
	}
	if cfg.ReservationTTL < time.Second {
		return fmt.Errorf("RESERVATION_TTL must be at least 1s, got %v", cfg.ReservationTTL)
	}
	if cfg.StripeSecretKey != "" && cfg.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
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

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
