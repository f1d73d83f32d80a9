package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/repository"
)

// Job type constants - these must match the JobHandler.Type() values
const (
	JobTypeRecordUsage       = "record_usage"
	JobTypeSweepReservations = "sweep_reservations"
)

// Priority constants for job scheduling
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// RecordUsagePayload is the payload for replaying a failed ledger write.
type RecordUsagePayload struct {
	OrganizationID string         `json:"organization_id"`
	Counter        domain.Counter `json:"counter"`
	Amount         float64        `json:"amount"`
	// Period is the YYYY-MM-01 period the usage belongs to.
	Period string `json:"period"`
}

// SweepReservationsPayload is the payload for reservation sweeps.
type SweepReservationsPayload struct {
	BatchSize int `json:"batch_size"`
}

// Enqueuer is the subset of the repository needed to enqueue jobs.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, arg repository.EnqueueJobParams) (repository.Job, error)
}

// EnqueueOption is a functional option for customizing job enqueue parameters.
type EnqueueOption func(*repository.EnqueueJobParams)

// WithPriority sets the job priority.
func WithPriority(priority int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.Priority = priority
	}
}

// WithMaxAttempts sets the maximum number of retry attempts.
func WithMaxAttempts(attempts int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.MaxAttempts = attempts
	}
}

// WithDelay schedules the job to run after a delay.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = time.Now().Add(delay)
	}
}

// EnqueueJob is a generic helper for enqueuing jobs with custom options.
func EnqueueJob(
	ctx context.Context,
	q Enqueuer,
	jobType string,
	payload interface{},
	opts ...EnqueueOption,
) (repository.Job, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     payloadJSON,
		Priority:    PriorityNormal,
		MaxAttempts: 3,
		ScheduledAt: time.Now(),
	}

	for _, opt := range opts {
		opt(&params)
	}

	job, err := q.EnqueueJob(ctx, params)
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue job: %w", err)
	}

	return job, nil
}

// EnqueueRecordUsage enqueues a replay of a ledger increment that could not
// be written inline. These run at high priority with extra attempts since
// each one is unbilled usage.
func EnqueueRecordUsage(
	ctx context.Context,
	q Enqueuer,
	orgID string,
	counter domain.Counter,
	amount float64,
	period time.Time,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payload := RecordUsagePayload{
		OrganizationID: orgID,
		Counter:        counter,
		Amount:         amount,
		Period:         domain.PeriodKey(period),
	}

	opts = append([]EnqueueOption{WithPriority(PriorityHigh), WithMaxAttempts(10)}, opts...)
	return EnqueueJob(ctx, q, JobTypeRecordUsage, payload, opts...)
}

// EnqueueSweepReservations enqueues a sweep of expired reservations.
func EnqueueSweepReservations(
	ctx context.Context,
	q Enqueuer,
	batchSize int,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payload := SweepReservationsPayload{BatchSize: batchSize}

	opts = append([]EnqueueOption{WithPriority(PriorityLow), WithMaxAttempts(1)}, opts...)
	return EnqueueJob(ctx, q, JobTypeSweepReservations, payload, opts...)
}

// Queue adapts an Enqueuer to the usage replay queue used by the quota service.
type Queue struct {
	q Enqueuer
}

// NewQueue creates a Queue.
func NewQueue(q Enqueuer) *Queue {
	return &Queue{q: q}
}

// EnqueueRecordUsage implements service.UsageRetryQueue.
func (q *Queue) EnqueueRecordUsage(ctx context.Context, orgID string, counter domain.Counter, amount float64, period time.Time) error {
	_, err := EnqueueRecordUsage(ctx, q.q, orgID, counter, amount, period)
	return err
}
