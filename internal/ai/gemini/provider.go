// Package gemini implements the chat and embedding providers on Google's
// Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/govai/console/internal/ai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DefaultEmbeddingModel is used when the request names no model.
const DefaultEmbeddingModel = "text-embedding-004"

// Config contains configuration for the Gemini provider
type Config struct {
	APIKey         string
	ProviderConfig ai.ProviderConfig
}

// Provider implements ai.ChatProvider and ai.EmbeddingProvider
type Provider struct {
	client *genai.Client
	config Config
	logger *slog.Logger
}

// New creates a new Gemini provider. Callers must Close it.
func New(ctx context.Context, config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	config.ProviderConfig = config.ProviderConfig.WithDefaults()

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Provider{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Close releases the underlying client
func (p *Provider) Close() error {
	return p.client.Close()
}

// Name implements ai.ChatProvider
func (p *Provider) Name() string {
	return "gemini"
}

// Complete runs a chat completion. Earlier turns become chat history and
// the final user message is sent.
func (p *Provider) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResult, error) {
	startTime := time.Now()

	history, last, system, err := splitMessages(req)
	if err != nil {
		return nil, ai.WrapError("complete", err)
	}

	model := p.client.GenerativeModel(req.Model)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	var resp *genai.GenerateContentResponse
	err = ai.Retry(ctx, p.config.ProviderConfig, p.logRetry, func() error {
		cs := model.StartChat()
		cs.History = history
		var err error
		resp, err = cs.SendMessage(ctx, genai.Text(last))
		return mapError(ctx, err)
	})
	if err != nil {
		return nil, ai.WrapError("generate content", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ai.WrapError("parse response", fmt.Errorf("no content"))
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	usage := ai.UsageInfo{
		Model:    req.Model,
		Duration: time.Since(startTime),
	}
	if resp.UsageMetadata != nil {
		usage.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}

	return &ai.CompletionResult{Content: text.String(), Usage: usage}, nil
}

// Embed creates one embedding per input
func (p *Provider) Embed(ctx context.Context, req ai.EmbeddingRequest) (*ai.EmbeddingResult, error) {
	startTime := time.Now()

	if len(req.Input) == 0 {
		return nil, ai.WrapError("embed", fmt.Errorf("%w: input is required", ai.EAIInvalidRequest))
	}
	name := req.Model
	// The router prices embeddings under the OpenAI model name.
	if name == "" || strings.HasPrefix(name, "text-embedding-3") {
		name = DefaultEmbeddingModel
	}

	em := p.client.EmbeddingModel(name)
	batch := em.NewBatch()
	var tokens int64
	for _, text := range req.Input {
		batch.AddContent(genai.Text(text))
		tokens += int64(len(text) / 4)
	}

	var resp *genai.BatchEmbedContentsResponse
	err := ai.Retry(ctx, p.config.ProviderConfig, p.logRetry, func() error {
		var err error
		resp, err = em.BatchEmbedContents(ctx, batch)
		return mapError(ctx, err)
	})
	if err != nil {
		return nil, ai.WrapError("embeddings", err)
	}

	vectors := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		vectors = append(vectors, e.Values)
	}

	// The batch endpoint reports no token usage
	return &ai.EmbeddingResult{
		Vectors: vectors,
		Usage: ai.UsageInfo{
			Model:       name,
			InputTokens: tokens,
			Duration:    time.Since(startTime),
		},
	}, nil
}

func (p *Provider) logRetry(attempt int, delay time.Duration, err error) {
	p.logger.Info("Retrying AI request", "provider", p.Name(), "attempt", attempt, "delay", delay, "error", err)
}

// splitMessages converts the conversation to Gemini history plus the final
// user turn.
func splitMessages(req ai.CompletionRequest) ([]*genai.Content, string, string, error) {
	system := req.System
	var turns []ai.Message
	for _, m := range req.Messages {
		if m.Role == ai.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		turns = append(turns, m)
	}

	if len(turns) == 0 || turns[len(turns)-1].Role != ai.RoleUser {
		return nil, "", "", fmt.Errorf("%w: conversation must end with a user message", ai.EAIInvalidRequest)
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, m := range turns[:len(turns)-1] {
		role := "user"
		if m.Role == ai.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return history, turns[len(turns)-1].Content, system, nil
}

// mapError maps client errors to provider errors
func mapError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return ai.EAIContentPolicy
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return ai.EAIUnauthorized
		case http.StatusTooManyRequests:
			return ai.EAIRateLimit
		case http.StatusBadRequest:
			return fmt.Errorf("%w: %s", ai.EAIInvalidRequest, gerr.Message)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return ai.EAITimeout
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
			return ai.EAIUnavailable
		default:
			return fmt.Errorf("API error (status %d): %s", gerr.Code, gerr.Message)
		}
	}

	if ctx.Err() != nil {
		return ai.EAITimeout
	}
	return fmt.Errorf("%w: %v", ai.EAIUnavailable, err)
}
