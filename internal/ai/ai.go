package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/govai/console/internal/metrics"
)

// ChatProvider generates text completions
type ChatProvider interface {
	// Name identifies the provider in logs and metrics
	Name() string

	// Complete runs a single chat completion
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}

// EmbeddingProvider turns text into vectors
type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResult, error)
}

// Role of a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest contains parameters for a chat completion
type CompletionRequest struct {
	Model     string    // Model identifier chosen by the router
	System    string    // Optional system prompt
	Messages  []Message // Conversation, oldest first
	MaxTokens int       // Maximum output tokens (0 = provider default)
}

// CompletionResult is a chat completion and its usage
type CompletionResult struct {
	Content string
	Usage   UsageInfo
}

// EmbeddingRequest contains parameters for an embedding call
type EmbeddingRequest struct {
	Model string
	Input []string
}

// EmbeddingResult holds one vector per input
type EmbeddingResult struct {
	Vectors [][]float32
	Usage   UsageInfo
}

// UsageInfo tracks API usage for billing and monitoring
type UsageInfo struct {
	Model        string        // AI model used
	InputTokens  int64         // Tokens in the request
	OutputTokens int64         // Tokens in the response
	Duration     time.Duration // Request duration
}

// ProviderConfig contains common configuration for AI providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// WithDefaults fills zero values.
func (c ProviderConfig) WithDefaults() ProviderConfig {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = 1 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 60 * time.Second
	}
	return c
}

// Error codes for AI provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIInvalidRequest indicates the provider rejected the request
	EAIInvalidRequest = errors.New("invalid ai request")

	// EAIContentPolicy indicates the prompt or output violates content policy
	EAIContentPolicy = errors.New("content violates provider policy")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")

	// EAINoProvider indicates no provider serves the requested model
	EAINoProvider = errors.New("no ai provider for model")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}

// Retry runs fn with exponential backoff while it returns retryable
// errors, for at most cfg.MaxRetries calls.
func Retry(ctx context.Context, cfg ProviderConfig, onRetry func(attempt int, delay time.Duration, err error), fn func() error) error {
	maxCalls := cfg.MaxRetries
	if maxCalls < 1 {
		maxCalls = 1
	}
	base := cfg.RetryBaseDelay
	if base <= 0 {
		base = time.Millisecond
	}

	var (
		attempt int
		lastErr error
	)
	inner := retry.WithMaxRetries(uint64(maxCalls-1), retry.NewExponential(base))
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		delay, stop := inner.Next()
		if !stop && onRetry != nil {
			onRetry(attempt, delay, lastErr)
		}
		return delay, stop
	})

	return retry.Do(ctx, backoff, func(context.Context) error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// =============================================================================
// Router
// =============================================================================

type route struct {
	prefix   string
	provider ChatProvider
}

// Router dispatches completions to a provider by model name prefix.
type Router struct {
	routes   []route
	fallback ChatProvider
}

// NewRouter creates a Router. fallback serves models no route matches and may be nil.
func NewRouter(fallback ChatProvider) *Router {
	return &Router{fallback: fallback}
}

// Handle routes models starting with prefix to provider.
func (r *Router) Handle(prefix string, provider ChatProvider) {
	r.routes = append(r.routes, route{prefix: prefix, provider: provider})
	// Longest prefix wins
	sort.SliceStable(r.routes, func(i, j int) bool {
		return len(r.routes[i].prefix) > len(r.routes[j].prefix)
	})
}

// Provider returns the provider for model.
func (r *Router) Provider(model string) (ChatProvider, error) {
	for _, rt := range r.routes {
		if strings.HasPrefix(model, rt.prefix) {
			return rt.provider, nil
		}
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w %q", EAINoProvider, model)
}

// Name implements ChatProvider.
func (r *Router) Name() string {
	return "router"
}

// Complete implements ChatProvider.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	p, err := r.Provider(req.Model)
	if err != nil {
		return nil, err
	}

	result, err := p.Complete(ctx, req)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.AIAPICalls.WithLabelValues(p.Name(), status).Inc()
	return result, err
}
