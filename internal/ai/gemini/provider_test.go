package gemini

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/govai/console/internal/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestSplitMessages(t *testing.T) {
	history, last, system, err := splitMessages(ai.CompletionRequest{
		System: "Be brief.",
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: "Answer in Japanese."},
			{Role: ai.RoleUser, Content: "Hi"},
			{Role: ai.RoleAssistant, Content: "Hello"},
			{Role: ai.RoleUser, Content: "How are you?"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Be brief.\n\nAnswer in Japanese.", system)
	assert.Equal(t, "How are you?", last)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, genai.Text("Hello"), history[1].Parts[0])
}

func TestSplitMessages_RequiresTrailingUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		messages []ai.Message
	}{
		{"empty", nil},
		{"only system", []ai.Message{{Role: ai.RoleSystem, Content: "x"}}},
		{"ends with assistant", []ai.Message{
			{Role: ai.RoleUser, Content: "x"},
			{Role: ai.RoleAssistant, Content: "y"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := splitMessages(ai.CompletionRequest{Messages: tt.messages})
			assert.True(t, errors.Is(err, ai.EAIInvalidRequest))
		})
	}
}

func TestMapError(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"rate limit", &googleapi.Error{Code: http.StatusTooManyRequests}, ai.EAIRateLimit},
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden}, ai.EAIUnauthorized},
		{"bad request", &googleapi.Error{Code: http.StatusBadRequest, Message: "bad"}, ai.EAIInvalidRequest},
		{"unavailable", &googleapi.Error{Code: http.StatusServiceUnavailable}, ai.EAIUnavailable},
		{"blocked", &genai.BlockedError{}, ai.EAIContentPolicy},
		{"network", errors.New("connection reset"), ai.EAIUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(mapError(ctx, tt.err), tt.want))
		})
	}

	assert.NoError(t, mapError(ctx, nil))
}
