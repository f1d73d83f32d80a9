// Package service contains the business logic layer.
//
// This file implements the quota guard and the usage recorder: plan-based
// allow/deny decisions and the atomic writes that maintain the usage ledger.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/metrics"
	"github.com/govai/console/internal/repository"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaService enforces plan limits against the usage ledger.
type QuotaService interface {
	// CheckUsage decides whether incoming units of metric fit within the
	// plan's limit for the current period. A denial is returned as a
	// Decision, not an error. It never writes to the ledger.
	CheckUsage(ctx context.Context, orgID string, planID domain.PlanID, metric domain.Metric, incoming float64) (domain.Decision, error)

	// Guard is CheckUsage returning QuotaExceededError or
	// FeatureNotAvailableError on denial.
	Guard(ctx context.Context, orgID string, planID domain.PlanID, metric domain.Metric, incoming float64) error

	// RecordUsage adds amount to one counter of the current period with a
	// single upsert. Every call adds; it is not idempotent.
	RecordUsage(ctx context.Context, orgID string, counter domain.Counter, amount float64) (*domain.UsageRecord, error)

	// ApplyUsage is RecordUsage for an explicit period, without retries.
	// Used to replay writes that failed inline.
	ApplyUsage(ctx context.Context, orgID string, counter domain.Counter, amount float64, period time.Time) (*domain.UsageRecord, error)

	// Consume increments the counter only if the result stays within the
	// plan's limit, as one conditional statement.
	Consume(ctx context.Context, orgID string, planID domain.PlanID, metric domain.Metric, amount float64) (*domain.UsageRecord, error)

	// Reserve holds amount of capacity until Commit or Release.
	Reserve(ctx context.Context, orgID string, planID domain.PlanID, metric domain.Metric, amount float64) (*domain.Reservation, error)

	// Commit converts a reservation into recorded usage of actual units.
	Commit(ctx context.Context, res *domain.Reservation, actual float64) error

	// Release returns a reservation's capacity. Releasing twice is a no-op.
	Release(ctx context.Context, res *domain.Reservation) error

	// SweepExpiredReservations releases up to limit reservations past their TTL.
	SweepExpiredReservations(ctx context.Context, limit int) (int, error)

	// GetUsage returns the ledger row for a period; absent rows are zero.
	GetUsage(ctx context.Context, orgID string, period time.Time) (*domain.UsageRecord, error)

	// GetUsageSummary returns usage, limits and spend for the current period.
	GetUsageSummary(ctx context.Context, orgID string) (*domain.UsageSummary, error)

	// GetUsageHistory returns up to months periods of usage, newest first.
	// Months with no activity are omitted.
	GetUsageHistory(ctx context.Context, orgID string, months int) ([]domain.PeriodUsage, error)

	// ListPlanUsage returns current-period usage for every organization on
	// planID. Organizations with no activity this month report zeros.
	ListPlanUsage(ctx context.Context, planID domain.PlanID) ([]domain.PeriodUsage, error)
}

// UsageRetryQueue persists ledger writes that failed inline so they can be
// re-applied later.
type UsageRetryQueue interface {
	EnqueueRecordUsage(ctx context.Context, orgID string, counter domain.Counter, amount float64, period time.Time) error
}

// QuotaConfig tunes ledger writes and reservations.
type QuotaConfig struct {
	// WriteRetries is the number of retries after a failed ledger write.
	WriteRetries int
	// WriteBackoff is the delay before the first retry; it doubles each time.
	WriteBackoff time.Duration
	// ReservationTTL bounds how long unreleased capacity stays held.
	ReservationTTL time.Duration
}

// DefaultQuotaConfig returns the defaults used when env vars are unset.
func DefaultQuotaConfig() QuotaConfig {
	return QuotaConfig{
		WriteRetries:   3,
		WriteBackoff:   100 * time.Millisecond,
		ReservationTTL: 10 * time.Minute,
	}
}

// =============================================================================
// Implementation
// =============================================================================

type quotaService struct {
	store  repository.Store
	plans  PlanService
	costs  CostService
	queue  UsageRetryQueue
	config QuotaConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewQuotaService creates a new QuotaService. costs and queue may be nil.
func NewQuotaService(store repository.Store, plans PlanService, costs CostService, queue UsageRetryQueue, config QuotaConfig, logger *slog.Logger) QuotaService {
	return &quotaService{
		store:  store,
		plans:  plans,
		costs:  costs,
		queue:  queue,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// =============================================================================
// Quota Guard
// =============================================================================

func (s *quotaService) CheckUsage(ctx context.Context, orgID string, planID domain.PlanID, metric domain.Metric, incoming float64) (domain.Decision, error) {
	const op = "quota.check_usage"

	if orgID == "" {
		return domain.Decision{}, domain.Invalid(op, "organization ID is required")
	}
	if incoming < 0 || math.IsNaN(incoming) {
		return domain.Decision{}, domain.Invalid(op, "incoming amount must be non-negative")
	}

	plan, err := s.loadPlan(ctx, op, planID)
	if err != nil {
		return domain.Decision{}, err
	}

	counter, numeric := metric.Counter()
	if !numeric {
		d := domain.Decision{
			Allowed: plan.HasFeature(string(metric)),
			Metric:  metric,
		}
		if !d.Allowed {
			d.Reason = domain.FeatureDeniedMessage(string(metric))
			s.logger.Info("feature not available",
				"organization_id", orgID,
				"plan_id", planID,
				"feature", metric,
			)
		}
		metrics.QuotaDecision(string(metric), d.Allowed)
		return d, nil
	}

	limit, _ := plan.LimitFor(metric)
	d := domain.Decision{
		Allowed:   true,
		Metric:    metric,
		Requested: incoming,
		Limit:     limit,
	}
	if limit == domain.Unlimited {
		metrics.QuotaDecision(string(metric), true)
		return d, nil
	}

	record, err := s.GetUsage(ctx, orgID, s.now())
	if err != nil {
		return domain.Decision{}, err
	}

	d.Current = record.Used(counter) + record.Reserved(counter)
	d.Allowed = d.Current+incoming <= float64(limit)
	if !d.Allowed {
		d.Reason = domain.DenialMessage(metric, d.Current, incoming, limit)
		s.logger.Info("quota exceeded",
			"organization_id", orgID,
			"plan_id", planID,
			"metric", metric,
			"current", d.Current,
			"incoming", incoming,
			"limit", limit,
		)
	}

	metrics.QuotaDecision(string(metric), d.Allowed)
	return d, nil
}

func (s *quotaService) Guard(ctx context.Context, orgID string, planID domain.PlanID, metric domain.Metric, incoming float64) error {
	const op = "quota.guard"

	d, err := s.CheckUsage(ctx, orgID, planID, metric, incoming)
	if err != nil {
		return err
	}
	return d.Err(op, planID)
}

// loadPlan resolves a plan. A missing plan is a configuration error and
// never an implicit allow.
func (s *quotaService) loadPlan(ctx context.Context, op string, planID domain.PlanID) (*domain.PlanLimit, error) {
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			s.logger.Error("plan limits missing", "plan_id", planID)
			return nil, domain.Configuration(err, op, fmt.Sprintf("no limits configured for plan %q", planID))
		}
		return nil, err
	}
	return plan, nil
}

// =============================================================================
// Usage Recorder
// =============================================================================

func (s *quotaService) RecordUsage(ctx context.Context, orgID string, counter domain.Counter, amount float64) (*domain.UsageRecord, error) {
	const op = "quota.record_usage"

	if err := validateRecord(op, orgID, counter, amount); err != nil {
		return nil, err
	}

	period := domain.PeriodStart(s.now())

	var row repository.OrganizationUsage
	err := s.withWriteRetry(ctx, counter, func() error {
		var err error
		row, err = s.store.IncrementUsage(ctx, repository.IncrementUsageParams{
			OrganizationID: orgID,
			PeriodMonth:    period,
			Counter:        string(counter),
			Amount:         amount,
		})
		return err
	})
	if err != nil {
		return nil, s.writeFailed(ctx, op, orgID, counter, amount, period, err)
	}

	metrics.UsageRecorded(string(counter), amount)
	return toUsageRecord(row), nil
}

func (s *quotaService) ApplyUsage(ctx context.Context, orgID string, counter domain.Counter, amount float64, period time.Time) (*domain.UsageRecord, error) {
	const op = "quota.apply_usage"

	if err := validateRecord(op, orgID, counter, amount); err != nil {
		return nil, err
	}

	row, err := s.store.IncrementUsage(ctx, repository.IncrementUsageParams{
		OrganizationID: orgID,
		PeriodMonth:    domain.PeriodStart(period),
		Counter:        string(counter),
		Amount:         amount,
	})
	if err != nil {
		return nil, domain.StorageWrite(err, op, counter)
	}

	metrics.UsageRecorded(string(counter), amount)
	return toUsageRecord(row), nil
}

func (s *quotaService) Consume(ctx context.Context, orgID string, planID domain.PlanID, metric domain.Metric, amount float64) (*domain.UsageRecord, error) {
	const op = "quota.consume"

	counter, limit, err := s.prepareLimited(ctx, op, orgID, planID, metric, amount)
	if err != nil {
		return nil, err
	}

	period := domain.PeriodStart(s.now())
	row, err := s.store.ConsumeUsage(ctx, repository.ConsumeUsageParams{
		OrganizationID: orgID,
		PeriodMonth:    period,
		Counter:        string(counter),
		Amount:         amount,
		LimitValue:     limit,
	})
	if errors.Is(err, sql.ErrNoRows) {
		metrics.QuotaDecision(string(metric), false)
		return nil, s.exceeded(ctx, op, orgID, planID, metric, amount, limit)
	}
	if err != nil {
		return nil, domain.StorageWrite(err, op, counter)
	}

	metrics.QuotaDecision(string(metric), true)
	metrics.UsageRecorded(string(counter), amount)
	return toUsageRecord(row), nil
}

// =============================================================================
// Reservations
// =============================================================================

// errReservationDenied signals a failed conditional reserve inside a transaction.
var errReservationDenied = errors.New("reservation denied")

func (s *quotaService) Reserve(ctx context.Context, orgID string, planID domain.PlanID, metric domain.Metric, amount float64) (*domain.Reservation, error) {
	const op = "quota.reserve"

	counter, limit, err := s.prepareLimited(ctx, op, orgID, planID, metric, amount)
	if err != nil {
		return nil, err
	}

	now := s.now()
	period := domain.PeriodStart(now)

	var created repository.UsageReservation
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		_, err := q.ReserveUsage(ctx, repository.ReserveUsageParams{
			OrganizationID: orgID,
			PeriodMonth:    period,
			Counter:        string(counter),
			Amount:         amount,
			LimitValue:     limit,
		})
		if errors.Is(err, sql.ErrNoRows) {
			return errReservationDenied
		}
		if err != nil {
			return fmt.Errorf("reserve usage: %w", err)
		}

		created, err = q.CreateUsageReservation(ctx, repository.CreateUsageReservationParams{
			ID:             uuid.New(),
			OrganizationID: orgID,
			PeriodMonth:    period,
			Counter:        string(counter),
			Amount:         amount,
			ExpiresAt:      now.Add(s.config.ReservationTTL),
		})
		if err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}
		return nil
	})
	if errors.Is(err, errReservationDenied) {
		metrics.QuotaDecision(string(metric), false)
		metrics.Reservation(string(counter), "denied")
		return nil, s.exceeded(ctx, op, orgID, planID, metric, amount, limit)
	}
	if err != nil {
		return nil, domain.StorageWrite(err, op, counter)
	}

	metrics.QuotaDecision(string(metric), true)
	metrics.Reservation(string(counter), "reserved")
	s.logger.Debug("usage reserved",
		"organization_id", orgID,
		"reservation_id", created.ID,
		"counter", counter,
		"amount", amount,
	)
	return toReservation(created), nil
}

func (s *quotaService) Commit(ctx context.Context, res *domain.Reservation, actual float64) error {
	const op = "quota.commit"

	if res == nil {
		return domain.Invalid(op, "reservation is required")
	}
	if actual < 0 || math.IsNaN(actual) {
		return domain.Invalid(op, "actual amount must be non-negative")
	}
	if actual > res.Amount {
		return domain.Invalid(op, fmt.Sprintf("actual amount %s exceeds reserved %s",
			domain.FormatAmount(actual), domain.FormatAmount(res.Amount)))
	}

	err := s.withWriteRetry(ctx, res.Counter, func() error {
		return s.store.ExecTx(ctx, func(q repository.Querier) error {
			held, err := q.DeleteUsageReservation(ctx, res.ID)
			if errors.Is(err, sql.ErrNoRows) {
				// Swept before commit; its hold is gone, so record the work directly.
				s.logger.Warn("committing expired reservation",
					"organization_id", res.OrganizationID,
					"reservation_id", res.ID,
				)
				_, err = q.IncrementUsage(ctx, repository.IncrementUsageParams{
					OrganizationID: res.OrganizationID,
					PeriodMonth:    res.PeriodMonth,
					Counter:        string(res.Counter),
					Amount:         actual,
				})
				return err
			}
			if err != nil {
				return err
			}

			_, err = q.SettleReservedUsage(ctx, repository.SettleReservedUsageParams{
				OrganizationID: held.OrganizationID,
				PeriodMonth:    held.PeriodMonth,
				Counter:        held.Counter,
				Reserved:       held.Amount,
				Used:           actual,
			})
			return err
		})
	})
	if err != nil {
		return s.writeFailed(ctx, op, res.OrganizationID, res.Counter, actual, res.PeriodMonth, err)
	}

	metrics.Reservation(string(res.Counter), "committed")
	metrics.UsageRecorded(string(res.Counter), actual)
	return nil
}

func (s *quotaService) Release(ctx context.Context, res *domain.Reservation) error {
	const op = "quota.release"

	if res == nil {
		return nil
	}

	released, err := s.releaseReservation(ctx, res.ID)
	if err != nil {
		s.logger.Error("failed to release reservation",
			"organization_id", res.OrganizationID,
			"reservation_id", res.ID,
			"error", err,
		)
		return domain.StorageWrite(err, op, res.Counter)
	}
	if released {
		metrics.Reservation(string(res.Counter), "released")
	}
	return nil
}

// releaseReservation deletes a reservation and returns its hold. It reports
// false if the reservation no longer exists.
func (s *quotaService) releaseReservation(ctx context.Context, id uuid.UUID) (bool, error) {
	released := false
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		held, err := q.DeleteUsageReservation(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		_, err = q.SettleReservedUsage(ctx, repository.SettleReservedUsageParams{
			OrganizationID: held.OrganizationID,
			PeriodMonth:    held.PeriodMonth,
			Counter:        held.Counter,
			Reserved:       held.Amount,
			Used:           0,
		})
		if err != nil {
			return err
		}
		released = true
		return nil
	})
	return released, err
}

func (s *quotaService) SweepExpiredReservations(ctx context.Context, limit int) (int, error) {
	const op = "quota.sweep_reservations"

	if limit <= 0 {
		limit = 100
	}

	expired, err := s.store.ListExpiredReservations(ctx, repository.ListExpiredReservationsParams{
		Before: s.now(),
		Limit:  int32(limit),
	})
	if err != nil {
		return 0, domain.Internal(err, op, "failed to list expired reservations")
	}

	swept := 0
	for _, r := range expired {
		released, err := s.releaseReservation(ctx, r.ID)
		if err != nil {
			return swept, domain.Internal(err, op, "failed to release expired reservation")
		}
		if released {
			swept++
			metrics.Reservation(r.Counter, "expired")
		}
	}

	if swept > 0 {
		s.logger.Info("expired reservations released", "count", swept)
	}
	return swept, nil
}

// =============================================================================
// Reads
// =============================================================================

func (s *quotaService) GetUsage(ctx context.Context, orgID string, period time.Time) (*domain.UsageRecord, error) {
	const op = "quota.get_usage"

	start := domain.PeriodStart(period)
	row, err := s.store.GetOrganizationUsage(ctx, repository.GetOrganizationUsageParams{
		OrganizationID: orgID,
		PeriodMonth:    start,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.UsageRecord{OrganizationID: orgID, PeriodMonth: start}, nil
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load usage")
	}
	return toUsageRecord(row), nil
}

func (s *quotaService) GetUsageSummary(ctx context.Context, orgID string) (*domain.UsageSummary, error) {
	const op = "quota.get_usage_summary"

	org, err := s.plans.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	plan, err := s.loadPlan(ctx, op, org.PlanID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	record, err := s.GetUsage(ctx, orgID, now)
	if err != nil {
		return nil, err
	}

	summary := &domain.UsageSummary{
		OrganizationID: orgID,
		PlanID:         plan.PlanID,
		Period:         domain.PeriodKey(now),
	}
	for _, m := range []domain.Metric{domain.MetricChatMessage, domain.MetricDocGen, domain.MetricStorageMB} {
		counter, _ := m.Counter()
		limit, _ := plan.LimitFor(m)
		summary.Metrics = append(summary.Metrics,
			domain.NewMetricUsage(m, record.Used(counter), record.Reserved(counter), limit))
	}

	if s.costs != nil {
		status, err := s.costs.Status(ctx, orgID, plan)
		if err != nil {
			return nil, err
		}
		summary.Cost = status
	}

	active, err := s.store.CountActiveReservations(ctx, orgID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to count reservations")
	}
	summary.ActiveReservations = active

	return summary, nil
}

func (s *quotaService) GetUsageHistory(ctx context.Context, orgID string, months int) ([]domain.PeriodUsage, error) {
	const op = "quota.get_usage_history"

	if months < 1 || months > domain.MaxHistoryMonths {
		return nil, domain.NewValidationError(op, "months", fmt.Sprintf("must be between 1 and %d", domain.MaxHistoryMonths))
	}
	if _, err := s.plans.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}

	rows, err := s.store.ListUsageHistory(ctx, repository.ListUsageHistoryParams{
		OrganizationID: orgID,
		Limit:          int32(months),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load usage history")
	}

	history := make([]domain.PeriodUsage, 0, len(rows))
	for _, row := range rows {
		history = append(history, toPeriodUsage(row))
	}
	return history, nil
}

func (s *quotaService) ListPlanUsage(ctx context.Context, planID domain.PlanID) ([]domain.PeriodUsage, error) {
	const op = "quota.list_plan_usage"

	if _, err := s.plans.GetPlan(ctx, planID); err != nil {
		return nil, err
	}

	orgs, err := s.store.ListOrganizationsByPlan(ctx, string(planID))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list organizations")
	}
	if len(orgs) == 0 {
		return []domain.PeriodUsage{}, nil
	}

	ids := make([]string, len(orgs))
	for i, o := range orgs {
		ids[i] = o.ID
	}
	period := domain.PeriodStart(s.now())
	rows, err := s.store.ListUsageForOrganizations(ctx, repository.ListUsageForOrganizationsParams{
		OrganizationIds: ids,
		PeriodMonth:     period,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load usage")
	}
	byOrg := make(map[string]repository.OrganizationUsage, len(rows))
	for _, row := range rows {
		byOrg[row.OrganizationID] = row
	}

	out := make([]domain.PeriodUsage, 0, len(orgs))
	for _, o := range orgs {
		u := domain.PeriodUsage{OrganizationID: o.ID, Period: domain.PeriodKey(period)}
		if row, ok := byOrg[o.ID]; ok {
			u = toPeriodUsage(row)
		}
		u.Name = o.Name
		u.PlanID = domain.PlanID(o.PlanID)
		out = append(out, u)
	}
	return out, nil
}

// =============================================================================
// Helpers
// =============================================================================

func validateRecord(op, orgID string, counter domain.Counter, amount float64) error {
	if orgID == "" {
		return domain.Invalid(op, "organization ID is required")
	}
	if !counter.IsValid() {
		return domain.Invalid(op, fmt.Sprintf("unknown usage counter %q", counter))
	}
	return validateAmount(op, counter, amount)
}

// validateAmount rejects negative amounts and fractional counts.
func validateAmount(op string, counter domain.Counter, amount float64) error {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return domain.Invalid(op, "amount must be a non-negative number")
	}
	if counter != domain.CounterStorage && amount != math.Trunc(amount) {
		return domain.Invalid(op, fmt.Sprintf("%s amount must be a whole number", counter))
	}
	return nil
}

// prepareLimited validates a limit-aware write and resolves the counter and limit.
func (s *quotaService) prepareLimited(ctx context.Context, op, orgID string, planID domain.PlanID, metric domain.Metric, amount float64) (domain.Counter, int64, error) {
	if orgID == "" {
		return "", 0, domain.Invalid(op, "organization ID is required")
	}
	counter, ok := metric.Counter()
	if !ok {
		return "", 0, domain.Invalid(op, fmt.Sprintf("metric %q is not a usage counter", metric))
	}
	if err := validateAmount(op, counter, amount); err != nil {
		return "", 0, err
	}

	plan, err := s.loadPlan(ctx, op, planID)
	if err != nil {
		return "", 0, err
	}
	limit, _ := plan.LimitFor(metric)
	return counter, limit, nil
}

// exceeded builds a QuotaExceededError from the latest ledger state.
func (s *quotaService) exceeded(ctx context.Context, op, orgID string, planID domain.PlanID, metric domain.Metric, amount float64, limit int64) error {
	var current float64
	if record, err := s.GetUsage(ctx, orgID, s.now()); err == nil {
		counter, _ := metric.Counter()
		current = record.Used(counter) + record.Reserved(counter)
	}

	s.logger.Info("quota exceeded",
		"organization_id", orgID,
		"plan_id", planID,
		"metric", metric,
		"current", current,
		"incoming", amount,
		"limit", limit,
	)
	return domain.QuotaExceeded(op, metric, current, amount, limit)
}

// withWriteRetry retries a ledger write with exponential backoff.
func (s *quotaService) withWriteRetry(ctx context.Context, counter domain.Counter, fn func() error) error {
	return retryWithBackoff(ctx, s.config.WriteRetries+1, s.config.WriteBackoff,
		func(attempt int, delay time.Duration, err error) {
			metrics.UsageWriteRetried(string(counter))
			s.logger.Warn("retrying usage write",
				"counter", counter,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}, fn)
}

// writeFailed logs and counts a ledger write that exhausted its retries,
// queues it for replay, and returns a StorageWrite error.
func (s *quotaService) writeFailed(ctx context.Context, op, orgID string, counter domain.Counter, amount float64, period time.Time, err error) error {
	metrics.UsageWriteFailed(string(counter))
	s.logger.Error("usage write failed",
		"organization_id", orgID,
		"counter", counter,
		"amount", amount,
		"period", domain.PeriodKey(period),
		"error", err,
	)

	if s.queue != nil && amount > 0 {
		if qerr := s.queue.EnqueueRecordUsage(context.WithoutCancel(ctx), orgID, counter, amount, period); qerr != nil {
			s.logger.Error("failed to queue usage replay",
				"organization_id", orgID,
				"counter", counter,
				"error", qerr,
			)
		}
	}

	return domain.StorageWrite(err, op, counter)
}
