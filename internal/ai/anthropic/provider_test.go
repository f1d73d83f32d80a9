package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/govai/console/internal/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, url string) *Provider {
	t.Helper()
	p, err := New(Config{
		APIKey:  "test-key",
		BaseURL: url,
		ProviderConfig: ai.ProviderConfig{
			MaxRetries:     3,
			RetryBaseDelay: time.Millisecond,
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return p
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestComplete(t *testing.T) {
	var got apiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hello"},{"type":"text","text":" there"}],"usage":{"input_tokens":12,"output_tokens":3}}`))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	result, err := p.Complete(context.Background(), ai.CompletionRequest{
		Model: "claude-3-5-haiku-20241022",
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: "Be brief."},
			{Role: ai.RoleUser, Content: "Hi"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello there", result.Content)
	assert.Equal(t, int64(12), result.Usage.InputTokens)
	assert.Equal(t, int64(3), result.Usage.OutputTokens)
	assert.Equal(t, "claude-3-5-haiku-20241022", result.Usage.Model)

	assert.Equal(t, "Be brief.", got.System)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
}

func TestComplete_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}],"usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	result, err := p.Complete(context.Background(), ai.CompletionRequest{
		Model:    "claude-3-5-haiku-20241022",
		Messages: []ai.Message{{Role: ai.RoleUser, Content: "Hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Content)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestComplete_DoesNotRetryAuthErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	_, err := p.Complete(context.Background(), ai.CompletionRequest{
		Model:    "claude-3-5-haiku-20241022",
		Messages: []ai.Message{{Role: ai.RoleUser, Content: "Hi"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ai.EAIUnauthorized))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ai.EAIUnauthorized},
		{http.StatusTooManyRequests, ai.EAIRateLimit},
		{http.StatusRequestTimeout, ai.EAITimeout},
		{http.StatusBadRequest, ai.EAIInvalidRequest},
		{http.StatusBadGateway, ai.EAIUnavailable},
		{529, ai.EAIUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := mapHTTPError(tt.status, []byte(`{"error":{"message":"nope"}}`))
			assert.True(t, errors.Is(err, tt.want))
		})
	}
}
