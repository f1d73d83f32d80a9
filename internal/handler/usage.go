package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/govai/console/internal/auth"
	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/service"
)

// UsageHandler reports the organization's usage for the current period.
//
// Routes handled:
//   - GET /api/usage        -> Summary
//   - GET /api/usage/spend  -> Spend
type UsageHandler struct {
	quota  service.QuotaService
	plans  service.PlanService
	costs  service.CostService
	logger *slog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(quota service.QuotaService, plans service.PlanService, costs service.CostService, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		quota:  quota,
		plans:  plans,
		costs:  costs,
		logger: logger,
	}
}

// RegisterRoutes registers usage routes behind the tenant middleware.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, tenant func(http.Handler) http.Handler) {
	mux.Handle("GET /api/usage", tenant(http.HandlerFunc(h.Summary)))
	mux.Handle("GET /api/usage/spend", tenant(http.HandlerFunc(h.Spend)))
}

// UsageResponse is the body of GET /api/usage.
type UsageResponse struct {
	*domain.UsageSummary
	PlanName string          `json:"plan_name"`
	CostJPY  string          `json:"cost_jpy"`
	Features map[string]bool `json:"features"`
}

// Summary returns usage, limits and spend for the current month.
func (h *UsageHandler) Summary(w http.ResponseWriter, r *http.Request) {
	org := auth.GetOrganization(r.Context())
	if org == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	summary, err := h.quota.GetUsageSummary(r.Context(), org.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	plan, err := h.plans.GetPlan(r.Context(), summary.PlanID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	features := plan.Features
	if features == nil {
		features = map[string]bool{}
	}
	writeJSON(w, http.StatusOK, UsageResponse{
		UsageSummary: summary,
		PlanName:     planDisplayName(plan),
		CostJPY:      domain.FormatCostJPY(summary.Cost.CurrentCostUSD),
		Features:     features,
	})
}

// Spend lists this month's model calls, newest first.
func (h *UsageHandler) Spend(w http.ResponseWriter, r *http.Request) {
	org := auth.GetOrganization(r.Context())
	if org == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			ValidationErrorResponse(w, r, h.logger, domain.NewValidationError("usage.spend", "limit", "must be a positive integer"))
			return
		}
		limit = n
	}

	logs, err := h.costs.ListSpend(r.Context(), org.ID, limit)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if logs == nil {
		logs = []*domain.UsageLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": logs})
}
