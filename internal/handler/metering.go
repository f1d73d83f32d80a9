package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/govai/console/internal/ai"
	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/service"
)

// maxJSONBody caps request bodies for the JSON endpoints.
const maxJSONBody = 1 << 20

// decodeJSON decodes a size-limited JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	const op = "handler.decode"

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return domain.Errorf(domain.ETOOLARGE, op, "Request body is too large")
		case errors.Is(err, io.EOF):
			return domain.Invalid(op, "Request body is required")
		}
		return domain.Invalid(op, "Request body is not valid JSON")
	}
	return nil
}

// =============================================================================
// Metered AI Calls
// =============================================================================

// Meter runs AI calls under the quota and cost guards: build the plan's
// system prompt, reserve the quota unit, check the spend ceiling, call the
// model, then commit and track spend. A failure before the call completes
// releases the reservation.
type Meter struct {
	quota   service.QuotaService
	costs   service.CostService
	prompts service.PromptService
	chat    ai.ChatProvider
	logger  *slog.Logger
}

// NewMeter creates a new Meter.
func NewMeter(quota service.QuotaService, costs service.CostService, prompts service.PromptService, chat ai.ChatProvider, logger *slog.Logger) *Meter {
	return &Meter{
		quota:   quota,
		costs:   costs,
		prompts: prompts,
		chat:    chat,
		logger:  logger,
	}
}

// MeteredCompletion describes one quota-guarded completion. Request.System
// holds task instructions; they are appended after the plan's system prompt.
type MeteredCompletion struct {
	Organization *domain.Organization
	UserID       string
	Metric       domain.Metric
	Feature      string
	Task         domain.TaskComplexity
	Request      ai.CompletionRequest
	Metadata     map[string]any
}

// MeteredResult is a completion and the model that produced it.
type MeteredResult struct {
	Content      string  `json:"content"`
	Model        string  `json:"model"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Complete runs a metered completion.
func (m *Meter) Complete(ctx context.Context, job MeteredCompletion) (*MeteredResult, error) {
	const op = "meter.complete"
	org := job.Organization

	system, err := m.prompts.BuildSystemPrompt(ctx, org.PlanID)
	if err != nil {
		return nil, err
	}
	if extra := strings.TrimSpace(job.Request.System); extra != "" {
		system += "\n\n" + extra
	}

	res, err := m.quota.Reserve(ctx, org.ID, org.PlanID, job.Metric, 1)
	if err != nil {
		return nil, err
	}
	release := func() {
		if err := m.quota.Release(context.WithoutCancel(ctx), res); err != nil {
			m.logger.Error("failed to release reservation",
				"organization_id", org.ID,
				"reservation_id", res.ID,
				"error", err,
			)
		}
	}

	model := m.costs.SelectModel(org.PlanID, job.Task)
	if _, err := m.costs.CheckCostLimit(ctx, org.ID, model); err != nil {
		release()
		return nil, err
	}

	req := job.Request
	req.System = system
	req.Model = model
	result, err := m.chat.Complete(ctx, req)
	if err != nil {
		release()
		return nil, aiError(op, err)
	}

	// The model call happened; the work is recorded even if the client left.
	bg := context.WithoutCancel(ctx)
	if err := m.quota.Commit(bg, res, 1); err != nil {
		m.logger.Error("failed to commit usage after completion",
			"organization_id", org.ID,
			"metric", job.Metric,
			"error", err,
		)
	}

	out := &MeteredResult{
		Content:      result.Content,
		Model:        model,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
	}
	entry, err := m.costs.TrackSpend(bg, service.TrackSpendParams{
		OrganizationID: org.ID,
		UserID:         job.UserID,
		FeatureName:    job.Feature,
		Model:          model,
		InputTokens:    result.Usage.InputTokens,
		OutputTokens:   result.Usage.OutputTokens,
		Metadata:       job.Metadata,
	})
	if err != nil {
		m.logger.Error("failed to track spend",
			"organization_id", org.ID,
			"model", model,
			"error", err,
		)
	} else {
		out.CostUSD = entry.EstimatedCostUSD
	}

	return out, nil
}

// aiError maps provider errors onto domain errors.
func aiError(op string, err error) error {
	switch {
	case errors.Is(err, ai.EAINoProvider), errors.Is(err, ai.EAIUnauthorized):
		return domain.Configuration(err, op, "AI provider is not configured")
	case errors.Is(err, ai.EAIContentPolicy):
		return domain.Invalid(op, "The request was blocked by the AI provider's content policy")
	case errors.Is(err, ai.EAIInvalidRequest):
		return domain.Invalid(op, "The AI provider rejected the request")
	}
	return domain.Unavailable(err, op, "The AI service is temporarily unavailable")
}
