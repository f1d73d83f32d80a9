package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/repository/memstore"
	"github.com/stretchr/testify/require"
)

const testOrg = "org_test"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testPlans mirrors the seeded plan limits.
func testPlans() []*domain.PlanLimit {
	return []*domain.PlanLimit{
		{
			PlanID: domain.PlanFree, MonthlyChatLimit: 50, MonthlyDocGenLimit: 10,
			StorageLimitMB: 100, MaxUsers: 3,
			Features: map[string]bool{domain.FeatureDocGenAdvanced: false},
		},
		{
			PlanID: domain.PlanStandard, MonthlyChatLimit: 500, MonthlyDocGenLimit: 100,
			StorageLimitMB: 1000, MaxUsers: 10,
			Features: map[string]bool{domain.FeatureDocGenAdvanced: false, domain.FeatureDownloadWord: true},
		},
		{
			PlanID: domain.PlanPro, MonthlyChatLimit: domain.Unlimited, MonthlyDocGenLimit: 500,
			StorageLimitMB: 10000, MaxUsers: 30,
			Features: map[string]bool{domain.FeatureDocGenAdvanced: true, domain.FeatureDownloadWord: true},
		},
		{
			PlanID: domain.PlanEnterprise, MonthlyChatLimit: domain.Unlimited, MonthlyDocGenLimit: domain.Unlimited,
			StorageLimitMB: domain.Unlimited, MaxUsers: 1000,
			Features: map[string]bool{domain.FeatureDocGenAdvanced: true, domain.FeatureAuditLogs: true},
		},
	}
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeQueue records usage replays.
type fakeQueue struct {
	mu      sync.Mutex
	entries []queuedUsage
	err     error
}

type queuedUsage struct {
	orgID   string
	counter domain.Counter
	amount  float64
	period  time.Time
}

func (q *fakeQueue) EnqueueRecordUsage(ctx context.Context, orgID string, counter domain.Counter, amount float64, period time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.entries = append(q.entries, queuedUsage{orgID, counter, amount, period})
	return nil
}

func (q *fakeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

type testEnv struct {
	store *memstore.Store
	clock *fakeClock
	queue *fakeQueue
	plans PlanService
	costs CostService
	quota QuotaService
}

// newTestEnv builds services over an in-memory store seeded with the
// default plans and one organization on planID.
func newTestEnv(t *testing.T, planID domain.PlanID) *testEnv {
	t.Helper()

	ctx := context.Background()
	logger := testLogger()
	store := memstore.New()
	clock := newFakeClock(time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC))
	store.SetNow(clock.Now)

	plans := NewPlanService(store, nil, logger)
	for _, p := range testPlans() {
		_, err := plans.UpsertPlan(ctx, p)
		require.NoError(t, err)
	}
	_, err := plans.CreateOrganization(ctx, testOrg, "Test Org", planID)
	require.NoError(t, err)

	costs, err := NewCostService(store, plans, CostConfig{}, logger)
	require.NoError(t, err)
	costs.(*costService).now = clock.Now

	queue := &fakeQueue{}
	quota := NewQuotaService(store, plans, costs, queue, QuotaConfig{
		WriteRetries:   2,
		WriteBackoff:   time.Millisecond,
		ReservationTTL: 10 * time.Minute,
	}, logger)
	quota.(*quotaService).now = clock.Now

	return &testEnv{
		store: store,
		clock: clock,
		queue: queue,
		plans: plans,
		costs: costs,
		quota: quota,
	}
}

// record adds usage in the current period, failing the test on error.
func (e *testEnv) record(t *testing.T, counter domain.Counter, amount float64) {
	t.Helper()
	_, err := e.quota.RecordUsage(context.Background(), testOrg, counter, amount)
	require.NoError(t, err)
}

func (e *testEnv) usage(t *testing.T) *domain.UsageRecord {
	t.Helper()
	r, err := e.quota.GetUsage(context.Background(), testOrg, e.clock.Now())
	require.NoError(t, err)
	return r
}
