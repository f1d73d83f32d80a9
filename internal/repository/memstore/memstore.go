// Package memstore provides an in-memory repository.Store for tests.
//
// Each query mirrors the semantics of its SQL counterpart, including the
// conditional upserts, so service-level tests can exercise quota races
// without a database.
package memstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/govai/console/internal/repository"
	"github.com/google/uuid"
)

// ErrInjected is returned by writes when a fault has been injected.
var ErrInjected = errors.New("memstore: injected write failure")

type usageKey struct {
	org    string
	period string
}

type data struct {
	plans        map[string]repository.PlanLimit
	orgs         map[string]repository.Organization
	usage        map[usageKey]repository.OrganizationUsage
	reservations map[uuid.UUID]repository.UsageReservation
	logs         []repository.UsageLog
	jobs         map[uuid.UUID]repository.Job
	prompts      map[string]repository.PromptModule
	nextLogID    int64
}

func newData() *data {
	return &data{
		plans:        map[string]repository.PlanLimit{},
		orgs:         map[string]repository.Organization{},
		usage:        map[usageKey]repository.OrganizationUsage{},
		reservations: map[uuid.UUID]repository.UsageReservation{},
		jobs:         map[uuid.UUID]repository.Job{},
		prompts:      map[string]repository.PromptModule{},
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.plans {
		c.plans[k] = v
	}
	for k, v := range d.orgs {
		c.orgs[k] = v
	}
	for k, v := range d.usage {
		c.usage[k] = v
	}
	for k, v := range d.reservations {
		c.reservations[k] = v
	}
	for k, v := range d.jobs {
		c.jobs[k] = v
	}
	for k, v := range d.prompts {
		c.prompts[k] = v
	}
	c.logs = append([]repository.UsageLog(nil), d.logs...)
	c.nextLogID = d.nextLogID
	return c
}

type faults struct {
	mu        sync.Mutex
	writeFail int
}

func (f *faults) take() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeFail > 0 {
		f.writeFail--
		return true
	}
	return false
}

// Store is an in-memory repository.Store. The zero value is not usable;
// use New.
type Store struct {
	mu     *sync.Mutex
	db     *data
	faults *faults
	inTx   bool
	now    func() time.Time
}

var _ repository.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		mu:     &sync.Mutex{},
		db:     newData(),
		faults: &faults{},
		now:    time.Now,
	}
}

// FailWrites makes the next n usage writes return ErrInjected.
func (s *Store) FailWrites(n int) {
	s.faults.mu.Lock()
	s.faults.writeFail = n
	s.faults.mu.Unlock()
}

// SetNow overrides the clock used for timestamps and job scheduling.
func (s *Store) SetNow(now func() time.Time) {
	s.now = now
}

// Reservations returns the number of outstanding reservations.
func (s *Store) Reservations() int {
	defer s.lock()()
	return len(s.db.reservations)
}

// Jobs returns all enqueued jobs.
func (s *Store) Jobs() []repository.Job {
	defer s.lock()()
	jobs := make([]repository.Job, 0, len(s.db.jobs))
	for _, j := range s.db.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.Before(jobs[k].CreatedAt) })
	return jobs
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// ExecTx runs fn against a copy of the data and keeps it only if fn succeeds.
func (s *Store) ExecTx(ctx context.Context, fn func(repository.Querier) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{mu: s.mu, db: s.db.clone(), faults: s.faults, inTx: true, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.db = tx.db
	return nil
}

// =============================================================================
// Plans
// =============================================================================

func (s *Store) GetPlanLimit(ctx context.Context, planID string) (repository.PlanLimit, error) {
	defer s.lock()()
	p, ok := s.db.plans[planID]
	if !ok {
		return repository.PlanLimit{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) ListPlanLimits(ctx context.Context) ([]repository.PlanLimit, error) {
	defer s.lock()()
	var plans []repository.PlanLimit
	for _, p := range s.db.plans {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, k int) bool { return plans[i].PlanID < plans[k].PlanID })
	return plans, nil
}

func (s *Store) UpsertPlanLimit(ctx context.Context, arg repository.UpsertPlanLimitParams) (repository.PlanLimit, error) {
	defer s.lock()()
	now := s.now()
	p, ok := s.db.plans[arg.PlanID]
	if !ok {
		p.CreatedAt = now
	}
	p.PlanID = arg.PlanID
	p.DisplayName = arg.DisplayName
	p.MonthlyChatLimit = arg.MonthlyChatLimit
	p.MonthlyDocGenLimit = arg.MonthlyDocGenLimit
	p.StorageLimitMb = arg.StorageLimitMb
	p.MaxUsers = arg.MaxUsers
	p.Features = append(json.RawMessage(nil), arg.Features...)
	p.MaxMonthlyCostUsd = arg.MaxMonthlyCostUsd
	p.ReasoningMonthlyLimit = arg.ReasoningMonthlyLimit
	p.UpdatedAt = now
	s.db.plans[arg.PlanID] = p
	return p, nil
}

// =============================================================================
// Organizations
// =============================================================================

func (s *Store) CreateOrganization(ctx context.Context, arg repository.CreateOrganizationParams) (repository.Organization, error) {
	defer s.lock()()
	if _, ok := s.db.orgs[arg.ID]; ok {
		return repository.Organization{}, errors.New("memstore: duplicate organization")
	}
	now := s.now()
	o := repository.Organization{
		ID:                 arg.ID,
		Name:               arg.Name,
		PlanID:             arg.PlanID,
		SubscriptionStatus: "active",
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.db.orgs[arg.ID] = o
	return o, nil
}

func (s *Store) GetOrganization(ctx context.Context, id string) (repository.Organization, error) {
	defer s.lock()()
	o, ok := s.db.orgs[id]
	if !ok {
		return repository.Organization{}, sql.ErrNoRows
	}
	return o, nil
}

func (s *Store) GetOrganizationByStripeCustomer(ctx context.Context, stripeCustomerID sql.NullString) (repository.Organization, error) {
	defer s.lock()()
	for _, o := range s.db.orgs {
		if o.StripeCustomerID.Valid && o.StripeCustomerID.String == stripeCustomerID.String {
			return o, nil
		}
	}
	return repository.Organization{}, sql.ErrNoRows
}

func (s *Store) ListOrganizationsByPlan(ctx context.Context, planID string) ([]repository.Organization, error) {
	defer s.lock()()
	var orgs []repository.Organization
	for _, o := range s.db.orgs {
		if o.PlanID == planID {
			orgs = append(orgs, o)
		}
	}
	sort.Slice(orgs, func(i, k int) bool { return orgs[i].ID < orgs[k].ID })
	return orgs, nil
}

func (s *Store) UpdateOrganizationPlan(ctx context.Context, arg repository.UpdateOrganizationPlanParams) (repository.Organization, error) {
	defer s.lock()()
	o, ok := s.db.orgs[arg.ID]
	if !ok {
		return repository.Organization{}, sql.ErrNoRows
	}
	o.PlanID = arg.PlanID
	o.UpdatedAt = s.now()
	s.db.orgs[arg.ID] = o
	return o, nil
}

func (s *Store) UpdateOrganizationStripeCustomer(ctx context.Context, arg repository.UpdateOrganizationStripeCustomerParams) error {
	defer s.lock()()
	o, ok := s.db.orgs[arg.ID]
	if !ok {
		return nil
	}
	o.StripeCustomerID = arg.StripeCustomerID
	o.UpdatedAt = s.now()
	s.db.orgs[arg.ID] = o
	return nil
}

func (s *Store) UpdateOrganizationSubscription(ctx context.Context, arg repository.UpdateOrganizationSubscriptionParams) (repository.Organization, error) {
	defer s.lock()()
	for id, o := range s.db.orgs {
		if o.StripeCustomerID.Valid && o.StripeCustomerID.String == arg.StripeCustomerID.String {
			o.PlanID = arg.PlanID
			o.SubscriptionStatus = arg.SubscriptionStatus
			o.UpdatedAt = s.now()
			s.db.orgs[id] = o
			return o, nil
		}
	}
	return repository.Organization{}, sql.ErrNoRows
}

// =============================================================================
// Usage ledger
// =============================================================================

func key(org string, period time.Time) usageKey {
	return usageKey{org: org, period: period.UTC().Format("2006-01-02")}
}

func (s *Store) row(org string, period time.Time) repository.OrganizationUsage {
	u, ok := s.db.usage[key(org, period)]
	if !ok {
		u = repository.OrganizationUsage{OrganizationID: org, PeriodMonth: period}
	}
	return u
}

func addUsed(u *repository.OrganizationUsage, counter string, amount float64) {
	switch counter {
	case "chat":
		u.ChatCount += int64(amount)
	case "doc_gen":
		u.DocGenCount += int64(amount)
	case "storage":
		u.StorageUsedMb += amount
	}
}

func addReserved(u *repository.OrganizationUsage, counter string, amount float64) {
	switch counter {
	case "chat":
		u.ChatReserved += int64(amount)
	case "doc_gen":
		u.DocGenReserved += int64(amount)
	case "storage":
		u.StorageReservedMb += amount
	}
}

func held(u repository.OrganizationUsage, counter string) float64 {
	switch counter {
	case "chat":
		return float64(u.ChatCount + u.ChatReserved)
	case "doc_gen":
		return float64(u.DocGenCount + u.DocGenReserved)
	default:
		return u.StorageUsedMb + u.StorageReservedMb
	}
}

func fits(u repository.OrganizationUsage, counter string, amount float64, limit int64) bool {
	return limit < 0 || held(u, counter)+amount <= float64(limit)
}

func (s *Store) GetOrganizationUsage(ctx context.Context, arg repository.GetOrganizationUsageParams) (repository.OrganizationUsage, error) {
	defer s.lock()()
	u, ok := s.db.usage[key(arg.OrganizationID, arg.PeriodMonth)]
	if !ok {
		return repository.OrganizationUsage{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) IncrementUsage(ctx context.Context, arg repository.IncrementUsageParams) (repository.OrganizationUsage, error) {
	defer s.lock()()
	if s.faults.take() {
		return repository.OrganizationUsage{}, ErrInjected
	}
	u := s.row(arg.OrganizationID, arg.PeriodMonth)
	addUsed(&u, arg.Counter, arg.Amount)
	u.UpdatedAt = s.now()
	s.db.usage[key(arg.OrganizationID, arg.PeriodMonth)] = u
	return u, nil
}

func (s *Store) ConsumeUsage(ctx context.Context, arg repository.ConsumeUsageParams) (repository.OrganizationUsage, error) {
	defer s.lock()()
	if s.faults.take() {
		return repository.OrganizationUsage{}, ErrInjected
	}
	u := s.row(arg.OrganizationID, arg.PeriodMonth)
	if !fits(u, arg.Counter, arg.Amount, arg.LimitValue) {
		return repository.OrganizationUsage{}, sql.ErrNoRows
	}
	addUsed(&u, arg.Counter, arg.Amount)
	u.UpdatedAt = s.now()
	s.db.usage[key(arg.OrganizationID, arg.PeriodMonth)] = u
	return u, nil
}

func (s *Store) ReserveUsage(ctx context.Context, arg repository.ReserveUsageParams) (repository.OrganizationUsage, error) {
	defer s.lock()()
	if s.faults.take() {
		return repository.OrganizationUsage{}, ErrInjected
	}
	u := s.row(arg.OrganizationID, arg.PeriodMonth)
	if !fits(u, arg.Counter, arg.Amount, arg.LimitValue) {
		return repository.OrganizationUsage{}, sql.ErrNoRows
	}
	addReserved(&u, arg.Counter, arg.Amount)
	u.UpdatedAt = s.now()
	s.db.usage[key(arg.OrganizationID, arg.PeriodMonth)] = u
	return u, nil
}

func (s *Store) SettleReservedUsage(ctx context.Context, arg repository.SettleReservedUsageParams) (repository.OrganizationUsage, error) {
	defer s.lock()()
	if s.faults.take() {
		return repository.OrganizationUsage{}, ErrInjected
	}
	k := key(arg.OrganizationID, arg.PeriodMonth)
	u, ok := s.db.usage[k]
	if !ok {
		return repository.OrganizationUsage{}, sql.ErrNoRows
	}
	addReserved(&u, arg.Counter, -arg.Reserved)
	if u.ChatReserved < 0 {
		u.ChatReserved = 0
	}
	if u.DocGenReserved < 0 {
		u.DocGenReserved = 0
	}
	if u.StorageReservedMb < 0 {
		u.StorageReservedMb = 0
	}
	addUsed(&u, arg.Counter, arg.Used)
	u.UpdatedAt = s.now()
	s.db.usage[k] = u
	return u, nil
}

func (s *Store) ListUsageForOrganizations(ctx context.Context, arg repository.ListUsageForOrganizationsParams) ([]repository.OrganizationUsage, error) {
	defer s.lock()()
	var rows []repository.OrganizationUsage
	for _, id := range arg.OrganizationIds {
		if u, ok := s.db.usage[key(id, arg.PeriodMonth)]; ok {
			rows = append(rows, u)
		}
	}
	sort.Slice(rows, func(i, k int) bool { return rows[i].OrganizationID < rows[k].OrganizationID })
	return rows, nil
}

func (s *Store) ListUsageHistory(ctx context.Context, arg repository.ListUsageHistoryParams) ([]repository.OrganizationUsage, error) {
	defer s.lock()()
	var rows []repository.OrganizationUsage
	for k, u := range s.db.usage {
		if k.org == arg.OrganizationID {
			rows = append(rows, u)
		}
	}
	sort.Slice(rows, func(i, k int) bool { return rows[i].PeriodMonth.After(rows[k].PeriodMonth) })
	if int(arg.Limit) < len(rows) {
		rows = rows[:arg.Limit]
	}
	return rows, nil
}

// =============================================================================
// Reservations
// =============================================================================

func (s *Store) CreateUsageReservation(ctx context.Context, arg repository.CreateUsageReservationParams) (repository.UsageReservation, error) {
	defer s.lock()()
	r := repository.UsageReservation{
		ID:             arg.ID,
		OrganizationID: arg.OrganizationID,
		PeriodMonth:    arg.PeriodMonth,
		Counter:        arg.Counter,
		Amount:         arg.Amount,
		ExpiresAt:      arg.ExpiresAt,
		CreatedAt:      s.now(),
	}
	s.db.reservations[arg.ID] = r
	return r, nil
}

func (s *Store) DeleteUsageReservation(ctx context.Context, id uuid.UUID) (repository.UsageReservation, error) {
	defer s.lock()()
	r, ok := s.db.reservations[id]
	if !ok {
		return repository.UsageReservation{}, sql.ErrNoRows
	}
	delete(s.db.reservations, id)
	return r, nil
}

func (s *Store) ListExpiredReservations(ctx context.Context, arg repository.ListExpiredReservationsParams) ([]repository.UsageReservation, error) {
	defer s.lock()()
	var rows []repository.UsageReservation
	for _, r := range s.db.reservations {
		if !r.ExpiresAt.After(arg.Before) {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, k int) bool { return rows[i].ExpiresAt.Before(rows[k].ExpiresAt) })
	if int(arg.Limit) < len(rows) {
		rows = rows[:arg.Limit]
	}
	return rows, nil
}

func (s *Store) CountActiveReservations(ctx context.Context, organizationID string) (int64, error) {
	defer s.lock()()
	now := s.now()
	var n int64
	for _, r := range s.db.reservations {
		if r.OrganizationID == organizationID && r.ExpiresAt.After(now) {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// Prompt modules
// =============================================================================

func (s *Store) ListPromptModules(ctx context.Context) ([]repository.PromptModule, error) {
	defer s.lock()()
	return s.sortedPrompts(func(repository.PromptModule) bool { return true }), nil
}

func (s *Store) ListActivePromptModules(ctx context.Context, requiredPlanLevel int32) ([]repository.PromptModule, error) {
	defer s.lock()()
	return s.sortedPrompts(func(m repository.PromptModule) bool {
		return m.IsActive && m.RequiredPlanLevel <= requiredPlanLevel
	}), nil
}

func (s *Store) sortedPrompts(keep func(repository.PromptModule) bool) []repository.PromptModule {
	var mods []repository.PromptModule
	for _, m := range s.db.prompts {
		if keep(m) {
			mods = append(mods, m)
		}
	}
	sort.Slice(mods, func(i, k int) bool {
		if mods[i].RequiredPlanLevel != mods[k].RequiredPlanLevel {
			return mods[i].RequiredPlanLevel < mods[k].RequiredPlanLevel
		}
		return mods[i].Slug < mods[k].Slug
	})
	return mods
}

func (s *Store) UpsertPromptModule(ctx context.Context, arg repository.UpsertPromptModuleParams) (repository.PromptModule, error) {
	defer s.lock()()
	m := repository.PromptModule{
		Slug:              arg.Slug,
		Content:           arg.Content,
		RequiredPlanLevel: arg.RequiredPlanLevel,
		IsActive:          arg.IsActive,
		UpdatedAt:         s.now(),
	}
	s.db.prompts[arg.Slug] = m
	return m, nil
}

// =============================================================================
// Usage logs
// =============================================================================

func (s *Store) CreateUsageLog(ctx context.Context, arg repository.CreateUsageLogParams) (repository.UsageLog, error) {
	defer s.lock()()
	if s.faults.take() {
		return repository.UsageLog{}, ErrInjected
	}
	s.db.nextLogID++
	l := repository.UsageLog{
		ID:               s.db.nextLogID,
		OrganizationID:   arg.OrganizationID,
		UserID:           arg.UserID,
		FeatureName:      arg.FeatureName,
		ModelUsed:        arg.ModelUsed,
		InputTokens:      arg.InputTokens,
		OutputTokens:     arg.OutputTokens,
		EstimatedCostUsd: arg.EstimatedCostUsd,
		Metadata:         arg.Metadata,
		CreatedAt:        s.now(),
	}
	s.db.logs = append(s.db.logs, l)
	return l, nil
}

// AddUsageLog inserts a log row with an explicit timestamp.
func (s *Store) AddUsageLog(l repository.UsageLog) {
	defer s.lock()()
	s.db.nextLogID++
	l.ID = s.db.nextLogID
	s.db.logs = append(s.db.logs, l)
}

func (s *Store) GetMonthlySpend(ctx context.Context, arg repository.GetMonthlySpendParams) (repository.GetMonthlySpendRow, error) {
	defer s.lock()()
	var row repository.GetMonthlySpendRow
	for _, l := range s.db.logs {
		if l.OrganizationID != arg.OrganizationID || l.CreatedAt.Before(arg.Since) {
			continue
		}
		row.TotalCostUsd += l.EstimatedCostUsd
		if isReasoning(l.ModelUsed) {
			row.ReasoningCalls++
		}
	}
	return row, nil
}

// isReasoning matches the LIKE filters of the spend query.
func isReasoning(model string) bool {
	return strings.HasPrefix(model, "o1") || strings.Contains(model, "thinking")
}

func (s *Store) ListUsageLogs(ctx context.Context, arg repository.ListUsageLogsParams) ([]repository.UsageLog, error) {
	defer s.lock()()
	var rows []repository.UsageLog
	for i := len(s.db.logs) - 1; i >= 0; i-- {
		l := s.db.logs[i]
		if l.OrganizationID == arg.OrganizationID && !l.CreatedAt.Before(arg.Since) {
			rows = append(rows, l)
		}
		if len(rows) == int(arg.Limit) {
			break
		}
	}
	return rows, nil
}

// =============================================================================
// Jobs
// =============================================================================

func (s *Store) EnqueueJob(ctx context.Context, arg repository.EnqueueJobParams) (repository.Job, error) {
	defer s.lock()()
	j := repository.Job{
		ID:          uuid.New(),
		JobType:     arg.JobType,
		Payload:     append(json.RawMessage(nil), arg.Payload...),
		Status:      "pending",
		Priority:    arg.Priority,
		MaxAttempts: arg.MaxAttempts,
		ScheduledAt: arg.ScheduledAt,
		CreatedAt:   s.now(),
	}
	s.db.jobs[j.ID] = j
	return j, nil
}

func (s *Store) DequeueJob(ctx context.Context) (repository.Job, error) {
	defer s.lock()()
	now := s.now()
	var best *repository.Job
	for _, j := range s.db.jobs {
		if j.Status != "pending" || j.ScheduledAt.After(now) {
			continue
		}
		if best == nil || j.Priority > best.Priority ||
			(j.Priority == best.Priority && j.CreatedAt.Before(best.CreatedAt)) {
			jj := j
			best = &jj
		}
	}
	if best == nil {
		return repository.Job{}, sql.ErrNoRows
	}
	return *best, nil
}

func (s *Store) CountPendingJobsByType(ctx context.Context, jobType string) (int64, error) {
	defer s.lock()()
	var n int64
	for _, j := range s.db.jobs {
		if j.JobType == jobType && (j.Status == "pending" || j.Status == "running") {
			n++
		}
	}
	return n, nil
}

func (s *Store) RecoverStaleJobs(ctx context.Context, thresholdSeconds float64) (int64, error) {
	defer s.lock()()
	cutoff := s.now().Add(-time.Duration(thresholdSeconds * float64(time.Second)))
	var n int64
	for id, j := range s.db.jobs {
		if j.Status == "running" && j.StartedAt.Valid && j.StartedAt.Time.Before(cutoff) {
			j.Status = "pending"
			j.StartedAt = sql.NullTime{}
			s.db.jobs[id] = j
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateJobStarted(ctx context.Context, id uuid.UUID) error {
	defer s.lock()()
	j := s.db.jobs[id]
	j.Status = "running"
	j.StartedAt = sql.NullTime{Time: s.now(), Valid: true}
	j.Attempts++
	s.db.jobs[id] = j
	return nil
}

func (s *Store) UpdateJobCompleted(ctx context.Context, id uuid.UUID) error {
	defer s.lock()()
	j := s.db.jobs[id]
	j.Status = "completed"
	j.CompletedAt = sql.NullTime{Time: s.now(), Valid: true}
	j.ErrorMessage = sql.NullString{}
	s.db.jobs[id] = j
	return nil
}

func (s *Store) UpdateJobFailed(ctx context.Context, arg repository.UpdateJobFailedParams) error {
	defer s.lock()()
	j := s.db.jobs[arg.ID]
	j.ErrorMessage = arg.ErrorMessage
	j.StartedAt = sql.NullTime{}
	if j.Attempts >= j.MaxAttempts {
		j.Status = "failed"
	} else {
		j.Status = "pending"
		j.ScheduledAt = s.now().Add(time.Duration(30*(1<<j.Attempts)) * time.Second)
	}
	s.db.jobs[arg.ID] = j
	return nil
}

func (s *Store) UpdateJobPermanentlyFailed(ctx context.Context, arg repository.UpdateJobPermanentlyFailedParams) error {
	defer s.lock()()
	j := s.db.jobs[arg.ID]
	j.Status = "failed"
	j.ErrorMessage = arg.ErrorMessage
	j.StartedAt = sql.NullTime{}
	s.db.jobs[arg.ID] = j
	return nil
}
