// Package openai implements the chat and embedding providers on the
// OpenAI API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/govai/console/internal/ai"
	"github.com/sashabaranov/go-openai"
)

// Config contains configuration for the OpenAI provider
type Config struct {
	APIKey         string
	BaseURL        string // Optional, for proxies and tests
	ProviderConfig ai.ProviderConfig
}

// Provider implements ai.ChatProvider and ai.EmbeddingProvider
type Provider struct {
	client *openai.Client
	config Config
	logger *slog.Logger
}

// New creates a new OpenAI provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	config.ProviderConfig = config.ProviderConfig.WithDefaults()

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: config.ProviderConfig.RequestTimeout}

	return &Provider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger,
	}, nil
}

// Name implements ai.ChatProvider
func (p *Provider) Name() string {
	return "openai"
}

// Complete runs a chat completion
func (p *Provider) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResult, error) {
	startTime := time.Now()

	if len(req.Messages) == 0 {
		return nil, ai.WrapError("complete", fmt.Errorf("%w: at least one message is required", ai.EAIInvalidRequest))
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1),
	}
	// Reasoning models reject max_tokens
	if req.MaxTokens > 0 {
		if strings.HasPrefix(req.Model, "o1") {
			chatReq.MaxCompletionTokens = req.MaxTokens
		} else {
			chatReq.MaxTokens = req.MaxTokens
		}
	}
	if req.System != "" {
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	var resp openai.ChatCompletionResponse
	err := ai.Retry(ctx, p.config.ProviderConfig, p.logRetry, func() error {
		var err error
		resp, err = p.client.CreateChatCompletion(ctx, chatReq)
		return mapError(ctx, err)
	})
	if err != nil {
		return nil, ai.WrapError("chat completion", err)
	}

	if len(resp.Choices) == 0 {
		return nil, ai.WrapError("parse response", fmt.Errorf("no choices in response"))
	}
	if resp.Choices[0].FinishReason == openai.FinishReasonContentFilter {
		return nil, ai.WrapError("chat completion", ai.EAIContentPolicy)
	}

	return &ai.CompletionResult{
		Content: resp.Choices[0].Message.Content,
		Usage: ai.UsageInfo{
			Model:        req.Model,
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
			Duration:     time.Since(startTime),
		},
	}, nil
}

// Embed creates one embedding per input
func (p *Provider) Embed(ctx context.Context, req ai.EmbeddingRequest) (*ai.EmbeddingResult, error) {
	startTime := time.Now()

	if len(req.Input) == 0 {
		return nil, ai.WrapError("embed", fmt.Errorf("%w: input is required", ai.EAIInvalidRequest))
	}

	model := openai.EmbeddingModel(req.Model)
	if model == "" {
		model = openai.SmallEmbedding3
	}

	var resp openai.EmbeddingResponse
	err := ai.Retry(ctx, p.config.ProviderConfig, p.logRetry, func() error {
		var err error
		resp, err = p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: req.Input,
			Model: model,
		})
		return mapError(ctx, err)
	})
	if err != nil {
		return nil, ai.WrapError("embeddings", err)
	}

	vectors := make([][]float32, len(req.Input))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}

	return &ai.EmbeddingResult{
		Vectors: vectors,
		Usage: ai.UsageInfo{
			Model:       string(model),
			InputTokens: int64(resp.Usage.PromptTokens),
			Duration:    time.Since(startTime),
		},
	}, nil
}

func (p *Provider) logRetry(attempt int, delay time.Duration, err error) {
	p.logger.Info("Retrying AI request", "provider", p.Name(), "attempt", attempt, "delay", delay, "error", err)
}

// mapError maps client errors to provider errors
func mapError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return mapStatus(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return mapStatus(reqErr.HTTPStatusCode, reqErr.Error())
	}

	if ctx.Err() != nil {
		return ai.EAITimeout
	}
	// Network errors are typically retryable
	return fmt.Errorf("%w: %v", ai.EAIUnavailable, err)
}

func mapStatus(statusCode int, message string) error {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.EAIUnauthorized
	case http.StatusTooManyRequests:
		return ai.EAIRateLimit
	case http.StatusRequestTimeout:
		return ai.EAITimeout
	case http.StatusBadRequest:
		if strings.Contains(message, "content_policy") || strings.Contains(message, "safety") {
			return ai.EAIContentPolicy
		}
		return fmt.Errorf("%w: %s", ai.EAIInvalidRequest, message)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ai.EAIUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, message)
	}
}
