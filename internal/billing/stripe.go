// Package billing provides Stripe billing integration for plan subscriptions.
package billing

import (
	"fmt"

	"github.com/govai/console/internal/domain"
	"github.com/stripe/stripe-go/v79"
	billingportalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Service defines the interface for billing operations.
type Service interface {
	// CreateCustomer creates a Stripe customer for an organization.
	CreateCustomer(email, name, orgID string) (string, error)

	// CreateCheckoutSession creates a Stripe Checkout session for subscribing.
	// Returns the checkout URL to redirect the user to.
	CreateCheckoutSession(customerID, priceID, orgID, successURL, cancelURL string) (string, error)

	// CreatePortalSession creates a Stripe Customer Portal session.
	// Returns the portal URL to redirect the user to.
	CreatePortalSession(customerID, returnURL string) (string, error)

	// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// PlanForPriceID returns the plan sold under a Stripe price ID.
	PlanForPriceID(priceID string) (domain.PlanID, bool)

	// PriceForPlan returns the Stripe price ID for a plan.
	PriceForPlan(plan domain.PlanID) (string, bool)
}

// PriceConfig holds the Stripe price IDs for each paid plan.
type PriceConfig struct {
	StandardPriceID   string
	ProPriceID        string
	EnterprisePriceID string
}

// planPrices returns the configured price IDs keyed by plan.
func (p PriceConfig) planPrices() map[domain.PlanID]string {
	m := make(map[domain.PlanID]string, 3)
	if p.StandardPriceID != "" {
		m[domain.PlanStandard] = p.StandardPriceID
	}
	if p.ProPriceID != "" {
		m[domain.PlanPro] = p.ProPriceID
	}
	if p.EnterprisePriceID != "" {
		m[domain.PlanEnterprise] = p.EnterprisePriceID
	}
	return m
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	planToPrice   map[domain.PlanID]string
	priceToPlan   map[string]domain.PlanID
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey is used to authenticate Stripe API calls.
// The webhookSecret is used to verify incoming webhook signatures.
// The prices configure which Stripe price IDs map to which plans.
func NewStripeService(secretKey, webhookSecret string, prices PriceConfig) Service {
	stripe.Key = secretKey

	planToPrice := prices.planPrices()
	priceToPlan := make(map[string]domain.PlanID, len(planToPrice))
	for plan, price := range planToPrice {
		priceToPlan[price] = plan
	}

	return &stripeService{
		webhookSecret: webhookSecret,
		planToPrice:   planToPrice,
		priceToPlan:   priceToPlan,
	}
}

func (s *stripeService) CreateCustomer(email, name, orgID string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.AddMetadata("organization_id", orgID)
	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (s *stripeService) CreateCheckoutSession(customerID, priceID, orgID, successURL, cancelURL string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(orgID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) CreatePortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := billingportalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

func (s *stripeService) PlanForPriceID(priceID string) (domain.PlanID, bool) {
	plan, ok := s.priceToPlan[priceID]
	return plan, ok
}

func (s *stripeService) PriceForPlan(plan domain.PlanID) (string, bool) {
	price, ok := s.planToPrice[plan]
	return price, ok
}

// SubscriptionPlan resolves the plan an organization should be on for a
// subscription in the given state. Active, trialing and past_due
// subscriptions keep the purchased plan; anything else drops to free.
func SubscriptionPlan(status stripe.SubscriptionStatus, purchased domain.PlanID) (domain.PlanID, string) {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return purchased, domain.SubscriptionActive
	case stripe.SubscriptionStatusPastDue:
		return purchased, domain.SubscriptionPastDue
	}
	return domain.PlanFree, domain.SubscriptionCanceled
}
