package worker

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/repository/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "valid default config",
			config:  DefaultConfig(),
			wantErr: false,
		},
		{
			name: "concurrency too low",
			config: Config{
				Concurrency:       0,
				PollInterval:      5 * time.Second,
				JobTimeout:        5 * time.Minute,
				ShutdownTimeout:   30 * time.Second,
				StaleJobThreshold: 10 * time.Minute,
			},
			wantErr: true,
		},
		{
			name: "concurrency too high",
			config: Config{
				Concurrency:       101,
				PollInterval:      5 * time.Second,
				JobTimeout:        5 * time.Minute,
				ShutdownTimeout:   30 * time.Second,
				StaleJobThreshold: 10 * time.Minute,
			},
			wantErr: true,
		},
		{
			name: "poll interval too short",
			config: Config{
				Concurrency:       2,
				PollInterval:      500 * time.Millisecond,
				JobTimeout:        5 * time.Minute,
				ShutdownTimeout:   30 * time.Second,
				StaleJobThreshold: 10 * time.Minute,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "permanent error",
			err:  NewPermanentError(context.Canceled),
			want: true,
		},
		{
			name: "regular error",
			err:  context.Canceled,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Errorf("IsPermanent() = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Job Processing Tests
// =============================================================================

type stubHandler struct {
	jobType string
	err     error
	calls   int
	payload []byte
}

func (h *stubHandler) Type() string { return h.jobType }

func (h *stubHandler) Handle(ctx context.Context, payload []byte) error {
	h.calls++
	h.payload = payload
	return h.err
}

func newTestWorker(t *testing.T) (*Worker, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	w, err := New(store, DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return w, store
}

func TestProcessNextJob_NoJobs(t *testing.T) {
	w, _ := newTestWorker(t)

	err := w.processNextJob(context.Background(), w.logger)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestProcessNextJob_Completes(t *testing.T) {
	w, store := newTestWorker(t)
	h := &stubHandler{jobType: JobTypeRecordUsage}
	w.Register(h)

	ctx := context.Background()
	_, err := EnqueueRecordUsage(ctx, store, "org_1", domain.CounterChat, 2,
		time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC), WithDelay(-time.Second))
	require.NoError(t, err)

	require.NoError(t, w.processNextJob(ctx, w.logger))
	assert.Equal(t, 1, h.calls)
	assert.JSONEq(t, `{"organization_id":"org_1","counter":"chat","amount":2,"period":"2025-03-01"}`, string(h.payload))

	jobs := store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "completed", jobs[0].Status)
	assert.Equal(t, int32(PriorityHigh), jobs[0].Priority)
}

func TestProcessNextJob_RetryableFailureReschedules(t *testing.T) {
	w, store := newTestWorker(t)
	w.Register(&stubHandler{jobType: JobTypeRecordUsage, err: errors.New("db down")})

	ctx := context.Background()
	_, err := EnqueueRecordUsage(ctx, store, "org_1", domain.CounterChat, 1, time.Now(), WithDelay(-time.Second))
	require.NoError(t, err)

	require.Error(t, w.processNextJob(ctx, w.logger))

	jobs := store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "pending", jobs[0].Status)
	assert.Equal(t, int32(1), jobs[0].Attempts)
	assert.True(t, jobs[0].ScheduledAt.After(time.Now()))
}

func TestProcessNextJob_PermanentFailure(t *testing.T) {
	w, store := newTestWorker(t)
	w.Register(&stubHandler{jobType: JobTypeRecordUsage, err: NewPermanentError(errors.New("bad payload"))})

	ctx := context.Background()
	_, err := EnqueueRecordUsage(ctx, store, "org_1", domain.CounterChat, 1, time.Now(), WithDelay(-time.Second))
	require.NoError(t, err)

	require.Error(t, w.processNextJob(ctx, w.logger))

	jobs := store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "failed", jobs[0].Status)
	assert.Equal(t, "bad payload", jobs[0].ErrorMessage.String)
}

func TestProcessNextJob_UnknownTypeIsPermanent(t *testing.T) {
	w, store := newTestWorker(t)

	ctx := context.Background()
	_, err := EnqueueJob(ctx, store, "mystery", map[string]string{}, WithDelay(-time.Second))
	require.NoError(t, err)

	require.Error(t, w.processNextJob(ctx, w.logger))
	assert.Equal(t, "failed", store.Jobs()[0].Status)
}

func TestQueue_EnqueueRecordUsage(t *testing.T) {
	store := memstore.New()
	q := NewQueue(store)

	err := q.EnqueueRecordUsage(context.Background(), "org_1", domain.CounterStorage, 12.5,
		time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	jobs := store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, JobTypeRecordUsage, jobs[0].JobType)
	assert.Equal(t, int32(10), jobs[0].MaxAttempts)
}

// =============================================================================
// Sweep Scheduling Tests
// =============================================================================

func TestScheduleSweep_SkipsWhilePending(t *testing.T) {
	w, store := newTestWorker(t)
	ctx := context.Background()

	enqueued, err := w.scheduleSweep(ctx)
	require.NoError(t, err)
	assert.True(t, enqueued)

	enqueued, err = w.scheduleSweep(ctx)
	require.NoError(t, err)
	assert.False(t, enqueued, "second sweep should wait for the first")

	jobs := store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, JobTypeSweepReservations, jobs[0].JobType)
	assert.Equal(t, int32(PriorityLow), jobs[0].Priority)
	assert.JSONEq(t, `{"batch_size":500}`, string(jobs[0].Payload))
}

func TestConfig_ValidateSweep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepInterval = 0
	assert.NoError(t, cfg.Validate(), "zero disables scheduling")

	cfg.SweepInterval = 100 * time.Millisecond
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SweepBatchSize = -1
	assert.Error(t, cfg.Validate())
}
