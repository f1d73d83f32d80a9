package ai_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/govai/console/internal/ai"
	"github.com/govai/console/internal/ai/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRouter_LongestPrefixWins(t *testing.T) {
	fallback := mock.New(testLogger())
	gpt := mock.New(testLogger())
	o1 := mock.New(testLogger())

	r := ai.NewRouter(fallback)
	r.Handle("gpt-", gpt)
	r.Handle("gpt-4o-mini", o1)

	tests := []struct {
		model string
		want  *mock.Provider
	}{
		{"gpt-4o", gpt},
		{"gpt-4o-mini", o1},
		{"gemini-2.0-flash", fallback},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			p, err := r.Provider(tt.model)
			require.NoError(t, err)
			assert.Same(t, tt.want, p)
		})
	}
}

func TestRouter_NoProvider(t *testing.T) {
	r := ai.NewRouter(nil)
	r.Handle("gpt-", mock.New(testLogger()))

	_, err := r.Complete(context.Background(), ai.CompletionRequest{Model: "claude-3-5-haiku-20241022"})
	assert.True(t, errors.Is(err, ai.EAINoProvider))
}

func TestRouter_Complete(t *testing.T) {
	p := mock.New(testLogger())
	r := ai.NewRouter(p)

	result, err := r.Complete(context.Background(), ai.CompletionRequest{
		Model:    "gpt-4o-mini",
		Messages: []ai.Message{{Role: ai.RoleUser, Content: "what is the weather"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "[mock:gpt-4o-mini] what is the weather", result.Content)
	assert.Equal(t, 1, p.CompleteCalls)
	assert.Positive(t, result.Usage.InputTokens)
	assert.Positive(t, result.Usage.OutputTokens)
}

func TestRetry(t *testing.T) {
	cfg := ai.ProviderConfig{MaxRetries: 3, RetryBaseDelay: time.Millisecond}

	t.Run("retries transient errors", func(t *testing.T) {
		calls := 0
		var retries []int
		err := ai.Retry(context.Background(), cfg,
			func(attempt int, delay time.Duration, err error) { retries = append(retries, attempt) },
			func() error {
				calls++
				if calls < 3 {
					return ai.EAIRateLimit
				}
				return nil
			})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{1, 2}, retries)
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		calls := 0
		err := ai.Retry(context.Background(), cfg, nil, func() error {
			calls++
			return ai.EAIInvalidRequest
		})
		assert.True(t, errors.Is(err, ai.EAIInvalidRequest))
		assert.Equal(t, 1, calls)
	})

	t.Run("returns last error after max retries", func(t *testing.T) {
		calls := 0
		err := ai.Retry(context.Background(), cfg, nil, func() error {
			calls++
			return ai.EAIUnavailable
		})
		assert.True(t, errors.Is(err, ai.EAIUnavailable))
		assert.Equal(t, 3, calls)
	})

	t.Run("delays grow exponentially", func(t *testing.T) {
		var delays []time.Duration
		_ = ai.Retry(context.Background(), cfg,
			func(_ int, delay time.Duration, _ error) { delays = append(delays, delay) },
			func() error { return ai.EAITimeout })
		assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
	})

	t.Run("honors cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := ai.Retry(ctx, ai.ProviderConfig{MaxRetries: 3, RetryBaseDelay: time.Hour}, nil, func() error {
			return ai.EAITimeout
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, ai.IsRetryable(ai.WrapError("x", ai.EAIRateLimit)))
	assert.True(t, ai.IsRetryable(ai.EAITimeout))
	assert.False(t, ai.IsRetryable(ai.EAIUnauthorized))
	assert.False(t, ai.IsRetryable(errors.New("other")))
}

func TestMockEmbed(t *testing.T) {
	p := mock.New(testLogger())

	result, err := p.Embed(context.Background(), ai.EmbeddingRequest{Input: []string{"alpha", "beta", "alpha"}})
	require.NoError(t, err)

	require.Len(t, result.Vectors, 3)
	assert.Len(t, result.Vectors[0], mock.EmbeddingDimensions)
	assert.Equal(t, result.Vectors[0], result.Vectors[2])
	assert.NotEqual(t, result.Vectors[0], result.Vectors[1])

	p.EmbedError = ai.EAIUnavailable
	_, err = p.Embed(context.Background(), ai.EmbeddingRequest{Input: []string{"x"}})
	assert.ErrorIs(t, err, ai.EAIUnavailable)

	p.Reset()
	assert.Zero(t, p.EmbedCalls)
}
