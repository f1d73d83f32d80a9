package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/govai/console/internal/ai"
)

const (
	// APIBaseURL is the base URL for the Anthropic API
	APIBaseURL = "https://api.anthropic.com/v1/messages"

	// APIVersion is the Anthropic API version
	APIVersion = "2023-06-01"

	// DefaultMaxTokens is used when the request sets no limit
	DefaultMaxTokens = 4096
)

// Config contains configuration for the Anthropic provider
type Config struct {
	APIKey         string
	BaseURL        string // Overrides APIBaseURL, used in tests
	ProviderConfig ai.ProviderConfig
}

// Provider implements ai.ChatProvider using Anthropic's Messages API
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new Anthropic AI provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = APIBaseURL
	}
	config.ProviderConfig = config.ProviderConfig.WithDefaults()

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.ProviderConfig.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// Name implements ai.ChatProvider
func (p *Provider) Name() string {
	return "anthropic"
}

// Complete runs a chat completion against Claude
func (p *Provider) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResult, error) {
	startTime := time.Now()

	if len(req.Messages) == 0 {
		return nil, ai.WrapError("complete", fmt.Errorf("%w: at least one message is required", ai.EAIInvalidRequest))
	}

	body, err := p.buildRequestBody(req)
	if err != nil {
		return nil, ai.WrapError("build request", err)
	}

	var resp *apiResponse
	err = ai.Retry(ctx, p.config.ProviderConfig,
		func(attempt int, delay time.Duration, err error) {
			p.logger.Info("Retrying AI request", "provider", p.Name(), "attempt", attempt, "delay", delay, "error", err)
		},
		func() error {
			var err error
			resp, err = p.executeRequest(ctx, body)
			return err
		})
	if err != nil {
		return nil, ai.WrapError("execute request", err)
	}

	var text strings.Builder
	for _, content := range resp.Content {
		if content.Type == "text" {
			text.WriteString(content.Text)
		}
	}
	if text.Len() == 0 {
		return nil, ai.WrapError("parse response", fmt.Errorf("no text content in response"))
	}

	return &ai.CompletionResult{
		Content: text.String(),
		Usage: ai.UsageInfo{
			Model:        req.Model,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			Duration:     time.Since(startTime),
		},
	}, nil
}

// buildRequestBody marshals the Messages API request
func (p *Provider) buildRequestBody(req ai.CompletionRequest) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	reqBody := apiRequest{
		Model:     req.Model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  make([]apiMessage, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		// The Messages API takes the system prompt as a top-level field
		if m.Role == ai.RoleSystem {
			if reqBody.System != "" {
				reqBody.System += "\n\n"
			}
			reqBody.System += m.Content
			continue
		}
		reqBody.Messages = append(reqBody.Messages, apiMessage{
			Role:    string(m.Role),
			Content: []apiContent{{Type: "text", Text: m.Content}},
		})
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return bodyBytes, nil
}

// executeRequest executes a single HTTP request
func (p *Provider) executeRequest(ctx context.Context, body []byte) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", p.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", APIVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ai.EAITimeout
		}
		// Network errors are typically retryable
		return nil, ai.EAIUnavailable
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(resp.StatusCode, bodyBytes)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &apiResp, nil
}

// mapHTTPError maps HTTP status codes to provider errors
func mapHTTPError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.EAIUnauthorized
	case http.StatusTooManyRequests:
		return ai.EAIRateLimit
	case http.StatusRequestTimeout:
		return ai.EAITimeout
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ai.EAIInvalidRequest, errResp.Error.Message)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout, 529:
		return ai.EAIUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, errResp.Error.Message)
	}
}

// API request/response types

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
}

type apiContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []apiContentOutput `json:"content"`
	Model   string             `json:"model"`
	Usage   apiUsage           `json:"usage"`
}

type apiContentOutput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type apiErrorResponse struct {
	Type  string   `json:"type"`
	Error apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
