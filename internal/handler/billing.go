package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/govai/console/internal/auth"
	"github.com/govai/console/internal/billing"
	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/service"
)

// BillingHandler starts Stripe Checkout and Customer Portal sessions.
//
// Routes handled:
//   - POST /api/billing/checkout -> CreateCheckout
//   - POST /api/billing/portal   -> OpenPortal
type BillingHandler struct {
	billing billing.Service
	plans   service.PlanService
	baseURL string
	logger  *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured (development mode).
func NewBillingHandler(billingService billing.Service, plans service.PlanService, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing: billingService,
		plans:   plans,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// RegisterRoutes registers billing routes behind the tenant middleware.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, tenant func(http.Handler) http.Handler) {
	mux.Handle("POST /api/billing/checkout", tenant(http.HandlerFunc(h.CreateCheckout)))
	mux.Handle("POST /api/billing/portal", tenant(http.HandlerFunc(h.OpenPortal)))
}

// CheckoutRequest is the body of POST /api/billing/checkout.
type CheckoutRequest struct {
	PlanID string `json:"plan_id"`
}

// CreateCheckout returns a Stripe Checkout URL for upgrading to a paid plan.
// The plan changes when the subscription webhook arrives.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "billing.checkout"

	org := auth.GetOrganization(r.Context())
	principal := auth.GetPrincipal(r.Context())
	if org == nil || principal == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(nil, op, "Billing is not configured"))
		return
	}

	var req CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	planID, err := domain.ParsePlanID(req.PlanID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	priceID, ok := h.billing.PriceForPlan(planID)
	if !ok {
		ValidationErrorResponse(w, r, h.logger, domain.NewValidationError(op, "plan_id", "plan is not sold through checkout"))
		return
	}

	customerID := org.StripeCustomerID
	if customerID == "" {
		customerID, err = h.billing.CreateCustomer(principal.Email, org.Name, org.ID)
		if err != nil {
			ErrorResponse(w, r, h.logger, domain.Unavailable(err, op, "Billing is temporarily unavailable"))
			return
		}
		if err := h.plans.LinkStripeCustomer(r.Context(), org.ID, customerID); err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
	}

	url, err := h.billing.CreateCheckoutSession(customerID, priceID, org.ID,
		h.baseURL+"/billing/success", h.baseURL+"/billing")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(err, op, "Billing is temporarily unavailable"))
		return
	}

	h.logger.Info("checkout session created",
		"organization_id", org.ID,
		"plan_id", planID,
		"user_id", principal.UserID,
	)
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// OpenPortal returns a Stripe Customer Portal URL for managing the subscription.
func (h *BillingHandler) OpenPortal(w http.ResponseWriter, r *http.Request) {
	const op = "billing.portal"

	org := auth.GetOrganization(r.Context())
	if org == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(nil, op, "Billing is not configured"))
		return
	}
	if org.StripeCustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "This organization has no billing account"))
		return
	}

	url, err := h.billing.CreatePortalSession(org.StripeCustomerID, h.baseURL+"/billing")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(err, op, "Billing is temporarily unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
