package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/repository/memstore"
	"github.com/govai/console/internal/service"
	"github.com/govai/console/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuota(t *testing.T) (service.QuotaService, *memstore.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()

	plans := service.NewPlanService(store, nil, logger)
	_, err := plans.UpsertPlan(context.Background(), &domain.PlanLimit{
		PlanID: domain.PlanFree, MonthlyChatLimit: 50, MonthlyDocGenLimit: 10, StorageLimitMB: 100, MaxUsers: 3,
	})
	require.NoError(t, err)
	_, err = plans.CreateOrganization(context.Background(), "org_1", "Org", domain.PlanFree)
	require.NoError(t, err)

	cfg := service.DefaultQuotaConfig()
	cfg.ReservationTTL = -time.Minute // reservations are born expired
	return service.NewQuotaService(store, plans, nil, nil, cfg, logger), store
}

func TestRecordUsageHandler(t *testing.T) {
	quota, _ := newQuota(t)
	h := NewRecordUsageHandler(quota, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	assert.Equal(t, worker.JobTypeRecordUsage, h.Type())

	payload, err := json.Marshal(worker.RecordUsagePayload{
		OrganizationID: "org_1",
		Counter:        domain.CounterDocGen,
		Amount:         2,
		Period:         "2025-01-01",
	})
	require.NoError(t, err)
	require.NoError(t, h.Handle(ctx, payload))

	rec, err := quota.GetUsage(ctx, "org_1", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.DocGenCount)
}

func TestRecordUsageHandler_PermanentErrors(t *testing.T) {
	quota, _ := newQuota(t)
	h := NewRecordUsageHandler(quota, slog.New(slog.NewTextHandler(io.Discard, nil)))

	tests := []struct {
		name    string
		payload string
	}{
		{"malformed json", `{`},
		{"bad period", `{"organization_id":"org_1","counter":"chat","amount":1,"period":"soon"}`},
		{"unknown counter", `{"organization_id":"org_1","counter":"tokens","amount":1,"period":"2025-01"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Handle(context.Background(), []byte(tt.payload))
			require.Error(t, err)
			assert.True(t, worker.IsPermanent(err))
		})
	}
}

func TestSweepReservationsHandler(t *testing.T) {
	quota, store := newQuota(t)
	h := NewSweepReservationsHandler(quota, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := quota.Reserve(ctx, "org_1", domain.PlanFree, domain.MetricChatMessage, 1)
		require.NoError(t, err)
	}
	require.Equal(t, 5, store.Reservations())

	require.NoError(t, h.Handle(ctx, []byte(`{"batch_size":2}`)))
	assert.Equal(t, 0, store.Reservations())

	rec, err := quota.GetUsage(ctx, "org_1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.ChatReserved)
}
