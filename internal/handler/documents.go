package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/govai/console/internal/ai"
	"github.com/govai/console/internal/auth"
	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/report"
	"github.com/govai/console/internal/service"
)

// Document output formats.
const (
	FormatMarkdown = string(report.FormatMarkdown)
	FormatWord     = string(report.FormatDOCX)
)

// DocumentHandler generates administrative documents.
//
// Routes handled:
//   - POST /api/documents/generate -> Generate
type DocumentHandler struct {
	meter  *Meter
	quota  service.QuotaService
	logger *slog.Logger
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(meter *Meter, quota service.QuotaService, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		meter:  meter,
		quota:  quota,
		logger: logger,
	}
}

// RegisterRoutes registers document routes behind the tenant middleware.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux, tenant func(http.Handler) http.Handler) {
	mux.Handle("POST /api/documents/generate", tenant(http.HandlerFunc(h.Generate)))
}

// GenerateRequest is the body of POST /api/documents/generate.
type GenerateRequest struct {
	Title    string `json:"title"`
	Prompt   string `json:"prompt"`
	Advanced bool   `json:"advanced"`
	Format   string `json:"format"`
}

// GenerateResponse is returned by POST /api/documents/generate.
type GenerateResponse struct {
	Title  string `json:"title"`
	Format string `json:"format"`
	MeteredResult
}

func (req *GenerateRequest) validate() error {
	const op = "documents.validate"

	var ve *domain.ValidationError
	add := func(field, msg string) {
		if ve == nil {
			ve = domain.NewValidationError(op, field, msg)
			return
		}
		ve.Fields[field] = msg
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || len(req.Title) > 200 {
		add("title", "must be between 1 and 200 characters")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		add("prompt", "is required")
	} else if len(req.Prompt) > 20000 {
		add("prompt", "must be at most 20000 characters")
	}
	if req.Format == "" {
		req.Format = FormatMarkdown
	}
	if req.Format != FormatMarkdown && req.Format != FormatWord {
		add("format", "must be markdown or docx")
	}

	if ve != nil {
		return ve
	}
	return nil
}

// Generate drafts a document. Advanced generation and Word output are plan
// features; each call consumes one document generation.
func (h *DocumentHandler) Generate(w http.ResponseWriter, r *http.Request) {
	org := auth.GetOrganization(r.Context())
	principal := auth.GetPrincipal(r.Context())
	if org == nil || principal == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req GenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if err := req.validate(); err != nil {
		ValidationErrorResponse(w, r, h.logger, err)
		return
	}

	var features []string
	if req.Advanced {
		features = append(features, domain.FeatureDocGenAdvanced)
	}
	if req.Format == FormatWord {
		features = append(features, domain.FeatureDownloadWord)
	}
	for _, f := range features {
		if err := h.quota.Guard(r.Context(), org.ID, org.PlanID, domain.Metric(f), 0); err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
	}

	task := domain.TaskSimple
	if req.Advanced {
		task = domain.TaskComplex
	}

	result, err := h.meter.Complete(r.Context(), MeteredCompletion{
		Organization: org,
		UserID:       principal.UserID,
		Metric:       domain.MetricDocGen,
		Feature:      "doc_gen",
		Task:         task,
		Request: ai.CompletionRequest{
			System:   documentSystemPrompt(req.Format),
			Messages: []ai.Message{{Role: ai.RoleUser, Content: fmt.Sprintf("Title: %s\n\n%s", req.Title, req.Prompt)}},
		},
		Metadata: map[string]any{"advanced": req.Advanced, "format": req.Format},
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if req.Format == FormatWord {
		h.writeWord(w, r, &report.Document{
			Title:        req.Title,
			Organization: org.Name,
			Author:       principal.Email,
			Model:        result.Model,
			GeneratedAt:  time.Now(),
			Body:         result.Content,
		}, result)
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponse{
		Title:         req.Title,
		Format:        req.Format,
		MeteredResult: *result,
	})
}

// writeWord streams the draft as a .docx attachment. Usage is already
// recorded, so a render failure still counts as a generation.
func (h *DocumentHandler) writeWord(w http.ResponseWriter, r *http.Request, doc *report.Document, result *MeteredResult) {
	gen := report.NewDOCXGenerator()

	var buf bytes.Buffer
	if _, err := gen.Generate(r.Context(), doc, &buf); err != nil {
		InternalErrorResponse(w, r, h.logger, fmt.Errorf("render docx: %w", err))
		return
	}

	w.Header().Set("Content-Type", gen.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "document.docx"))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Model-Used", result.Model)
	w.Header().Set("X-Estimated-Cost-USD", strconv.FormatFloat(result.CostUSD, 'f', 6, 64))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("failed to write docx response", "error", err)
	}
}

func documentSystemPrompt(format string) string {
	prompt := "You draft documents for Japanese local government staff. " +
		"Write in formal Japanese unless the request is in another language. " +
		"Return the document body only."
	if format == FormatWord {
		prompt += " Structure the output with headings suitable for conversion to a Word document."
	}
	return prompt
}
