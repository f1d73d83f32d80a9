package service

import (
	"context"
	"sync"
	"testing"

	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/repository/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingCache is an in-memory PlanCache that counts calls.
type countingCache struct {
	mu          sync.Mutex
	plans       map[domain.PlanID]*domain.PlanLimit
	hits        int
	invalidated []domain.PlanID
}

func newCountingCache() *countingCache {
	return &countingCache{plans: map[domain.PlanID]*domain.PlanLimit{}}
}

func (c *countingCache) Get(ctx context.Context, planID domain.PlanID) (*domain.PlanLimit, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.plans[planID]
	if ok {
		c.hits++
	}
	return p, ok, nil
}

func (c *countingCache) Set(ctx context.Context, plan *domain.PlanLimit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plans[plan.PlanID] = plan
	return nil
}

func (c *countingCache) Invalidate(ctx context.Context, planID domain.PlanID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.plans, planID)
	c.invalidated = append(c.invalidated, planID)
	return nil
}

func TestPlanService_ReadThroughCache(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	c := newCountingCache()
	svc := NewPlanService(store, c, testLogger())

	_, err := svc.UpsertPlan(ctx, testPlans()[0])
	require.NoError(t, err)
	assert.Equal(t, []domain.PlanID{domain.PlanFree}, c.invalidated)

	first, err := svc.GetPlan(ctx, domain.PlanFree)
	require.NoError(t, err)
	assert.Equal(t, 0, c.hits)

	second, err := svc.GetPlan(ctx, domain.PlanFree)
	require.NoError(t, err)
	assert.Equal(t, 1, c.hits)
	assert.Equal(t, first.MonthlyChatLimit, second.MonthlyChatLimit)

	updated := testPlans()[0]
	updated.MonthlyChatLimit = 75
	_, err = svc.UpsertPlan(ctx, updated)
	require.NoError(t, err)

	third, err := svc.GetPlan(ctx, domain.PlanFree)
	require.NoError(t, err)
	assert.Equal(t, int64(75), third.MonthlyChatLimit)
}

func TestPlanService_GetPlanNotFound(t *testing.T) {
	svc := NewPlanService(memstore.New(), nil, testLogger())

	_, err := svc.GetPlan(context.Background(), domain.PlanPro)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestPlanService_UpsertPlanValidates(t *testing.T) {
	svc := NewPlanService(memstore.New(), nil, testLogger())

	_, err := svc.UpsertPlan(context.Background(), &domain.PlanLimit{
		PlanID:           domain.PlanFree,
		MonthlyChatLimit: -5,
	})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestPlanService_UpsertPlanRoundTripsFeatures(t *testing.T) {
	ctx := context.Background()
	svc := NewPlanService(memstore.New(), nil, testLogger())

	reasoning := int64(7)
	in := testPlans()[2]
	in.ReasoningMonthlyLimit = &reasoning
	_, err := svc.UpsertPlan(ctx, in)
	require.NoError(t, err)

	got, err := svc.GetPlan(ctx, domain.PlanPro)
	require.NoError(t, err)
	assert.True(t, got.HasFeature(domain.FeatureDocGenAdvanced))
	require.NotNil(t, got.ReasoningMonthlyLimit)
	assert.Equal(t, int64(7), *got.ReasoningMonthlyLimit)
	assert.Nil(t, got.MaxMonthlyCostUSD)
	assert.Equal(t, "pro", got.DisplayName)
}

func TestPlanService_SetOrganizationPlanAppliesImmediately(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)
	ctx := context.Background()
	env.record(t, domain.CounterChat, 50)

	d, err := env.quota.CheckUsage(ctx, testOrg, domain.PlanFree, domain.MetricChatMessage, 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	org, err := env.plans.SetOrganizationPlan(ctx, testOrg, domain.PlanStandard)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanStandard, org.PlanID)

	d, err = env.quota.CheckUsage(ctx, testOrg, org.PlanID, domain.MetricChatMessage, 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 50.0, d.Current)
}

func TestPlanService_SetOrganizationPlanErrors(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)
	ctx := context.Background()

	_, err := env.plans.SetOrganizationPlan(ctx, testOrg, domain.PlanID("gold"))
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	_, err = env.plans.SetOrganizationPlan(ctx, "org_missing", domain.PlanPro)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestPlanService_ApplySubscription(t *testing.T) {
	env := newTestEnv(t, domain.PlanFree)
	ctx := context.Background()

	require.NoError(t, env.plans.LinkStripeCustomer(ctx, testOrg, "cus_123"))

	org, err := env.plans.ApplySubscription(ctx, "cus_123", domain.PlanPro, domain.SubscriptionActive)
	require.NoError(t, err)
	assert.Equal(t, testOrg, org.ID)
	assert.Equal(t, domain.PlanPro, org.PlanID)

	_, err = env.plans.ApplySubscription(ctx, "cus_unknown", domain.PlanPro, domain.SubscriptionActive)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}
