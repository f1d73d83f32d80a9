package billing

import (
	"testing"

	"github.com/govai/console/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

func TestStripeService_PriceMapping(t *testing.T) {
	svc := NewStripeService("sk_test_x", "whsec_x", PriceConfig{
		StandardPriceID: "price_std",
		ProPriceID:      "price_pro",
	})

	plan, ok := svc.PlanForPriceID("price_pro")
	require.True(t, ok)
	assert.Equal(t, domain.PlanPro, plan)

	_, ok = svc.PlanForPriceID("price_unknown")
	assert.False(t, ok)

	price, ok := svc.PriceForPlan(domain.PlanStandard)
	require.True(t, ok)
	assert.Equal(t, "price_std", price)

	_, ok = svc.PriceForPlan(domain.PlanEnterprise)
	assert.False(t, ok, "unconfigured price should not map")

	_, ok = svc.PriceForPlan(domain.PlanFree)
	assert.False(t, ok)
}

func TestStripeService_VerifyWebhookSignature_Rejects(t *testing.T) {
	svc := NewStripeService("sk_test_x", "whsec_x", PriceConfig{})
	_, err := svc.VerifyWebhookSignature([]byte(`{"id":"evt_1"}`), "t=1,v1=bad")
	assert.Error(t, err)
}

func TestSubscriptionPlan(t *testing.T) {
	tests := []struct {
		status     stripe.SubscriptionStatus
		wantPlan   domain.PlanID
		wantStatus string
	}{
		{stripe.SubscriptionStatusActive, domain.PlanPro, domain.SubscriptionActive},
		{stripe.SubscriptionStatusTrialing, domain.PlanPro, domain.SubscriptionActive},
		{stripe.SubscriptionStatusPastDue, domain.PlanPro, domain.SubscriptionPastDue},
		{stripe.SubscriptionStatusCanceled, domain.PlanFree, domain.SubscriptionCanceled},
		{stripe.SubscriptionStatusUnpaid, domain.PlanFree, domain.SubscriptionCanceled},
		{stripe.SubscriptionStatusIncompleteExpired, domain.PlanFree, domain.SubscriptionCanceled},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			plan, status := SubscriptionPlan(tt.status, domain.PlanPro)
			assert.Equal(t, tt.wantPlan, plan)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}
