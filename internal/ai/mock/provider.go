package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/govai/console/internal/ai"
)

// EmbeddingDimensions is the vector size returned by Embed.
const EmbeddingDimensions = 1536

// Provider is a mock AI provider for testing and development
type Provider struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable responses for testing
	CompleteResponse *ai.CompletionResult
	CompleteError    error
	EmbedError       error

	// Call tracking for testing
	CompleteCalls int
	EmbedCalls    int
	LastRequest   ai.CompletionRequest
}

// New creates a new mock AI provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Name implements ai.ChatProvider
func (p *Provider) Name() string {
	return "mock"
}

// Complete returns a canned reply that echoes the last user message
func (p *Provider) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CompleteCalls++
	p.LastRequest = req

	// If a custom response or error is set, use it
	if p.CompleteError != nil {
		return nil, p.CompleteError
	}
	if p.CompleteResponse != nil {
		return p.CompleteResponse, nil
	}

	var last string
	var input int64
	if req.System != "" {
		input += estimateTokens(req.System)
	}
	for _, m := range req.Messages {
		input += estimateTokens(m.Content)
		if m.Role == ai.RoleUser {
			last = m.Content
		}
	}

	content := fmt.Sprintf("[mock:%s] %s", req.Model, last)
	p.logger.Debug("mock completion", "model", req.Model, "messages", len(req.Messages))

	return &ai.CompletionResult{
		Content: content,
		Usage: ai.UsageInfo{
			Model:        req.Model,
			InputTokens:  input,
			OutputTokens: estimateTokens(content),
			Duration:     5 * time.Millisecond,
		},
	}, nil
}

// Embed returns deterministic pseudo-vectors derived from each input
func (p *Provider) Embed(ctx context.Context, req ai.EmbeddingRequest) (*ai.EmbeddingResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.EmbedCalls++
	if p.EmbedError != nil {
		return nil, p.EmbedError
	}

	result := &ai.EmbeddingResult{
		Vectors: make([][]float32, 0, len(req.Input)),
		Usage:   ai.UsageInfo{Model: req.Model, Duration: time.Millisecond},
	}
	for _, text := range req.Input {
		result.Vectors = append(result.Vectors, vector(text))
		result.Usage.InputTokens += estimateTokens(text)
	}
	return result, nil
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CompleteCalls = 0
	p.EmbedCalls = 0
	p.CompleteResponse = nil
	p.CompleteError = nil
	p.EmbedError = nil
	p.LastRequest = ai.CompletionRequest{}
}

// estimateTokens approximates one token per four characters, minimum one.
func estimateTokens(s string) int64 {
	n := int64(len(strings.TrimSpace(s)) / 4)
	if n < 1 {
		return 1
	}
	return n
}

func vector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	v := make([]float32, EmbeddingDimensions)
	for i := range v {
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		v[i] = float32(seed%2000)/1000 - 1
	}
	return v
}
