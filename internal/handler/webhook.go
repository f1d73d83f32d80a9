package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/govai/console/internal/billing"
	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/service"
	"github.com/stripe/stripe-go/v79"
)

// WebhookHandler handles incoming webhook events from Stripe.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no auth middleware) because Stripe calls it directly.
// Authentication is via the Stripe webhook signature verification.
type WebhookHandler struct {
	billing billing.Service
	plans   service.PlanService
	logger  *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, plans service.PlanService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing: billingService,
		plans:   plans,
		logger:  logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC, with no auth middleware.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook processes incoming Stripe webhook events.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Read body (limit to 64KB)
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Verify signature
	signature := r.Header.Get("Stripe-Signature")
	event, err := h.billing.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	// Webhooks outlive the request; Stripe retries on non-2xx.
	ctx := context.WithoutCancel(r.Context())

	switch event.Type {
	case "checkout.session.completed":
		err = h.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		err = h.handleSubscriptionChanged(ctx, event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	if err != nil {
		h.logger.Error("webhook processing failed", "type", event.Type, "id", event.ID, "error", err)
		if domain.ErrorCode(err) != domain.ENOTFOUND {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// handleCheckoutCompleted links the Stripe customer to the organization
// named in the session's client reference.
func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return domain.Invalid("webhook.checkout", "malformed checkout session")
	}

	if session.Customer == nil || session.ClientReferenceID == "" {
		h.logger.Warn("checkout session missing customer or organization", "session_id", session.ID)
		return nil
	}

	return h.plans.LinkStripeCustomer(ctx, session.ClientReferenceID, session.Customer.ID)
}

// handleSubscriptionChanged moves the organization onto the subscribed plan,
// or back to free when the subscription ends.
func (h *WebhookHandler) handleSubscriptionChanged(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return domain.Invalid("webhook.subscription", "malformed subscription")
	}

	if sub.Customer == nil {
		h.logger.Warn("subscription event missing customer", "subscription_id", sub.ID)
		return nil
	}

	purchased := domain.PlanFree
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		plan, ok := h.billing.PlanForPriceID(sub.Items.Data[0].Price.ID)
		if !ok {
			h.logger.Warn("subscription for unknown price",
				"subscription_id", sub.ID,
				"price_id", sub.Items.Data[0].Price.ID,
			)
			return nil
		}
		purchased = plan
	}

	status := sub.Status
	if event.Type == "customer.subscription.deleted" {
		status = stripe.SubscriptionStatusCanceled
	}
	planID, orgStatus := billing.SubscriptionPlan(status, purchased)

	org, err := h.plans.ApplySubscription(ctx, sub.Customer.ID, planID, orgStatus)
	if err != nil {
		return err
	}

	h.logger.Info("subscription event processed",
		"organization_id", org.ID,
		"type", event.Type,
		"plan_id", planID,
		"status", orgStatus,
	)
	return nil
}
