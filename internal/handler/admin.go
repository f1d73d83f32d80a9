package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/govai/console/internal/auth"
	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/service"
)

// AdminHandler handles plan administration.
//
// Routes handled:
//   - GET /admin/plans                        -> ListPlans
//   - PUT /admin/plans/{id}                   -> UpsertPlan
//   - GET /admin/usage?plan=                  -> PlanUsage
//   - GET /admin/organizations/{id}/usage     -> OrganizationUsage
//   - GET /admin/organizations/{id}/history   -> OrganizationHistory
//   - PUT /admin/organizations/{id}/plan      -> SetOrganizationPlan
//   - GET /admin/prompt-modules               -> ListPromptModules
//   - PUT /admin/prompt-modules/{slug}        -> UpsertPromptModule
//   - GET /admin/prompt-modules/preview?plan= -> PreviewSystemPrompt
type AdminHandler struct {
	plans   service.PlanService
	quota   service.QuotaService
	prompts service.PromptService
	logger  *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(plans service.PlanService, quota service.QuotaService, prompts service.PromptService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		plans:   plans,
		quota:   quota,
		prompts: prompts,
		logger:  logger,
	}
}

// RegisterRoutes registers admin routes with the provided middleware.
func (h *AdminHandler) RegisterRoutes(
	mux *http.ServeMux,
	requireAdmin func(http.Handler) http.Handler,
) {
	mux.Handle("GET /admin/plans", requireAdmin(http.HandlerFunc(h.ListPlans)))
	mux.Handle("PUT /admin/plans/{id}", requireAdmin(http.HandlerFunc(h.UpsertPlan)))
	mux.Handle("GET /admin/usage", requireAdmin(http.HandlerFunc(h.PlanUsage)))
	mux.Handle("GET /admin/organizations/{id}/usage", requireAdmin(http.HandlerFunc(h.OrganizationUsage)))
	mux.Handle("GET /admin/organizations/{id}/history", requireAdmin(http.HandlerFunc(h.OrganizationHistory)))
	mux.Handle("PUT /admin/organizations/{id}/plan", requireAdmin(http.HandlerFunc(h.SetOrganizationPlan)))
	mux.Handle("GET /admin/prompt-modules", requireAdmin(http.HandlerFunc(h.ListPromptModules)))
	mux.Handle("GET /admin/prompt-modules/preview", requireAdmin(http.HandlerFunc(h.PreviewSystemPrompt)))
	mux.Handle("PUT /admin/prompt-modules/{slug}", requireAdmin(http.HandlerFunc(h.UpsertPromptModule)))
}

// PlanBody is the wire form of a plan's limits.
type PlanBody struct {
	PlanID                domain.PlanID   `json:"plan_id"`
	DisplayName           string          `json:"display_name"`
	MonthlyChatLimit      int64           `json:"monthly_chat_limit"`
	MonthlyDocGenLimit    int64           `json:"monthly_doc_gen_limit"`
	StorageLimitMB        int64           `json:"storage_limit_mb"`
	MaxUsers              int64           `json:"max_users"`
	Features              map[string]bool `json:"features"`
	MaxMonthlyCostUSD     *float64        `json:"max_monthly_cost_usd,omitempty"`
	ReasoningMonthlyLimit *int64          `json:"reasoning_monthly_limit,omitempty"`
}

func toPlanBody(p *domain.PlanLimit) PlanBody {
	return PlanBody{
		PlanID:                p.PlanID,
		DisplayName:           planDisplayName(p),
		MonthlyChatLimit:      p.MonthlyChatLimit,
		MonthlyDocGenLimit:    p.MonthlyDocGenLimit,
		StorageLimitMB:        p.StorageLimitMB,
		MaxUsers:              p.MaxUsers,
		Features:              p.Features,
		MaxMonthlyCostUSD:     p.MaxMonthlyCostUSD,
		ReasoningMonthlyLimit: p.ReasoningMonthlyLimit,
	}
}

// ListPlans returns every plan's limits.
func (h *AdminHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.ListPlans(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]PlanBody, 0, len(plans))
	for _, p := range plans {
		out = append(out, toPlanBody(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": out})
}

// UpsertPlan creates or replaces a plan's limits.
func (h *AdminHandler) UpsertPlan(w http.ResponseWriter, r *http.Request) {
	planID, err := domain.ParsePlanID(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var body PlanBody
	if err := decodeJSON(w, r, &body); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if body.PlanID != "" && body.PlanID != planID {
		ValidationErrorResponse(w, r, h.logger, domain.NewValidationError("admin.upsert_plan", "plan_id", "does not match the URL"))
		return
	}

	saved, err := h.plans.UpsertPlan(r.Context(), &domain.PlanLimit{
		PlanID:                planID,
		DisplayName:           body.DisplayName,
		MonthlyChatLimit:      body.MonthlyChatLimit,
		MonthlyDocGenLimit:    body.MonthlyDocGenLimit,
		StorageLimitMB:        body.StorageLimitMB,
		MaxUsers:              body.MaxUsers,
		Features:              body.Features,
		MaxMonthlyCostUSD:     body.MaxMonthlyCostUSD,
		ReasoningMonthlyLimit: body.ReasoningMonthlyLimit,
	})
	if err != nil {
		ValidationErrorResponse(w, r, h.logger, err)
		return
	}

	p := auth.GetPrincipal(r.Context())
	h.logger.Info("plan limits updated", "plan_id", planID, "by", p.UserID)
	writeJSON(w, http.StatusOK, toPlanBody(saved))
}

// OrganizationUsage returns any organization's usage summary.
func (h *AdminHandler) OrganizationUsage(w http.ResponseWriter, r *http.Request) {
	summary, err := h.quota.GetUsageSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// PlanUsage lists current-period usage for every organization on a plan.
func (h *AdminHandler) PlanUsage(w http.ResponseWriter, r *http.Request) {
	planID, err := domain.ParsePlanID(r.URL.Query().Get("plan"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	usage, err := h.quota.ListPlanUsage(r.Context(), planID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plan_id":       planID,
		"organizations": usage,
	})
}

// OrganizationHistory returns past months of usage, newest first. The
// months query parameter defaults to 6.
func (h *AdminHandler) OrganizationHistory(w http.ResponseWriter, r *http.Request) {
	months := 6
	if v := r.URL.Query().Get("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			ValidationErrorResponse(w, r, h.logger,
				domain.NewValidationError("admin.organization_history", "months", "must be a number"))
			return
		}
		months = n
	}

	history, err := h.quota.GetUsageHistory(r.Context(), r.PathValue("id"), months)
	if err != nil {
		ValidationErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"organization_id": r.PathValue("id"),
		"history":         history,
	})
}

// SetPlanRequest is the body of PUT /admin/organizations/{id}/plan.
type SetPlanRequest struct {
	PlanID string `json:"plan_id"`
}

// SetOrganizationPlan moves an organization to another plan. The change
// applies to the next quota check.
func (h *AdminHandler) SetOrganizationPlan(w http.ResponseWriter, r *http.Request) {
	var req SetPlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	planID, err := domain.ParsePlanID(req.PlanID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	org, err := h.plans.SetOrganizationPlan(r.Context(), r.PathValue("id"), planID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	p := auth.GetPrincipal(r.Context())
	h.logger.Info("organization plan set by admin",
		"organization_id", org.ID,
		"plan_id", org.PlanID,
		"by", p.UserID,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"organization_id": org.ID,
		"plan_id":         org.PlanID,
	})
}

// ListPromptModules returns every system prompt module.
func (h *AdminHandler) ListPromptModules(w http.ResponseWriter, r *http.Request) {
	modules, err := h.prompts.ListModules(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"modules": modules})
}

// PromptModuleBody is the body of PUT /admin/prompt-modules/{slug}.
type PromptModuleBody struct {
	Content           string `json:"content"`
	RequiredPlanLevel int    `json:"required_plan_level"`
	Active            *bool  `json:"is_active"`
}

// UpsertPromptModule creates or replaces a prompt module. Modules are
// active unless is_active is false.
func (h *AdminHandler) UpsertPromptModule(w http.ResponseWriter, r *http.Request) {
	var body PromptModuleBody
	if err := decodeJSON(w, r, &body); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	active := body.Active == nil || *body.Active

	saved, err := h.prompts.UpsertModule(r.Context(), &domain.PromptModule{
		Slug:              r.PathValue("slug"),
		Content:           body.Content,
		RequiredPlanLevel: body.RequiredPlanLevel,
		Active:            active,
	})
	if err != nil {
		ValidationErrorResponse(w, r, h.logger, err)
		return
	}

	p := auth.GetPrincipal(r.Context())
	h.logger.Info("prompt module updated", "slug", saved.Slug, "by", p.UserID)
	writeJSON(w, http.StatusOK, saved)
}

// PreviewSystemPrompt returns the system prompt a plan's organizations get.
func (h *AdminHandler) PreviewSystemPrompt(w http.ResponseWriter, r *http.Request) {
	planID, err := domain.ParsePlanID(r.URL.Query().Get("plan"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	prompt, err := h.prompts.BuildSystemPrompt(r.Context(), planID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plan_id": planID,
		"prompt":  prompt,
	})
}
