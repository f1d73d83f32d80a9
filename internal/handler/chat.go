package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/govai/console/internal/ai"
	"github.com/govai/console/internal/auth"
	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/service"
)

// maxChatMessages bounds the conversation a client may send.
const maxChatMessages = 100

// ChatHandler serves the assistant chat and embedding endpoints.
//
// Routes handled:
//   - POST /api/chat        -> Chat
//   - POST /api/embeddings  -> Embed
type ChatHandler struct {
	meter  *Meter
	costs  service.CostService
	embed  ai.EmbeddingProvider
	logger *slog.Logger
}

// NewChatHandler creates a new ChatHandler. embed may be nil, which
// disables the embeddings endpoint.
func NewChatHandler(meter *Meter, costs service.CostService, embed ai.EmbeddingProvider, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		meter:  meter,
		costs:  costs,
		embed:  embed,
		logger: logger,
	}
}

// RegisterRoutes registers chat routes behind the tenant middleware.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, tenant func(http.Handler) http.Handler) {
	mux.Handle("POST /api/chat", tenant(http.HandlerFunc(h.Chat)))
	mux.Handle("POST /api/embeddings", tenant(http.HandlerFunc(h.Embed)))
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	// System adds instructions after the plan's system prompt.
	System   string       `json:"system"`
	Messages []ai.Message `json:"messages"`
	Task     string       `json:"task"`
}

func (req *ChatRequest) validate() (domain.TaskComplexity, error) {
	const op = "chat.validate"

	var ve *domain.ValidationError
	add := func(field, msg string) {
		if ve == nil {
			ve = domain.NewValidationError(op, field, msg)
			return
		}
		ve.Fields[field] = msg
	}

	if len(req.Messages) == 0 {
		add("messages", "at least one message is required")
	} else if len(req.Messages) > maxChatMessages {
		add("messages", "too many messages")
	} else {
		last := req.Messages[len(req.Messages)-1]
		if last.Role != ai.RoleUser || strings.TrimSpace(last.Content) == "" {
			add("messages", "the last message must be a non-empty user message")
		}
		for _, m := range req.Messages {
			if m.Role != ai.RoleUser && m.Role != ai.RoleAssistant && m.Role != ai.RoleSystem {
				add("messages", "unknown message role")
				break
			}
		}
	}

	task := domain.TaskSimple
	if req.Task != "" {
		task = domain.TaskComplexity(req.Task)
		if !task.IsValid() || task == domain.TaskEmbedding {
			add("task", "must be simple, complex or reasoning")
		}
	}

	if ve != nil {
		return "", ve
	}
	return task, nil
}

// Chat answers a conversation. Each call consumes one chat message.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	org := auth.GetOrganization(r.Context())
	principal := auth.GetPrincipal(r.Context())
	if org == nil || principal == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	task, err := req.validate()
	if err != nil {
		ValidationErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.meter.Complete(r.Context(), MeteredCompletion{
		Organization: org,
		UserID:       principal.UserID,
		Metric:       domain.MetricChatMessage,
		Feature:      "chat",
		Task:         task,
		Request: ai.CompletionRequest{
			System:   req.System,
			Messages: req.Messages,
		},
		Metadata: map[string]any{"task": string(task), "messages": len(req.Messages)},
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// EmbedRequest is the body of POST /api/embeddings.
type EmbedRequest struct {
	Input []string `json:"input"`
}

// EmbedResponse is the body returned by POST /api/embeddings.
type EmbedResponse struct {
	Model   string      `json:"model"`
	Vectors [][]float32 `json:"vectors"`
}

// Embed vectorizes text for retrieval. Embeddings draw on the spend
// ceiling only; they consume no chat or document quota.
func (h *ChatHandler) Embed(w http.ResponseWriter, r *http.Request) {
	const op = "chat.embed"

	org := auth.GetOrganization(r.Context())
	principal := auth.GetPrincipal(r.Context())
	if org == nil || principal == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if h.embed == nil {
		ErrorResponse(w, r, h.logger, domain.Configuration(nil, op, "embedding provider is not configured"))
		return
	}

	var req EmbedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if len(req.Input) == 0 || len(req.Input) > 256 {
		ValidationErrorResponse(w, r, h.logger, domain.NewValidationError(op, "input", "between 1 and 256 texts are required"))
		return
	}

	model := h.costs.SelectModel(org.PlanID, domain.TaskEmbedding)
	if _, err := h.costs.CheckCostLimit(r.Context(), org.ID, model); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.embed.Embed(r.Context(), ai.EmbeddingRequest{Model: model, Input: req.Input})
	if err != nil {
		ErrorResponse(w, r, h.logger, aiError(op, err))
		return
	}

	if _, err := h.costs.TrackSpend(r.Context(), service.TrackSpendParams{
		OrganizationID: org.ID,
		UserID:         principal.UserID,
		FeatureName:    "embedding",
		Model:          model,
		InputTokens:    result.Usage.InputTokens,
		Metadata:       map[string]any{"inputs": len(req.Input)},
	}); err != nil {
		h.logger.Error("failed to track embedding spend", "organization_id", org.ID, "error", err)
	}

	writeJSON(w, http.StatusOK, EmbedResponse{Model: model, Vectors: result.Vectors})
}
