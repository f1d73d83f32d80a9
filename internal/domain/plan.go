package domain

import (
	"fmt"
	"time"
)

// PlanID identifies a subscription tier.
type PlanID string

const (
	PlanFree       PlanID = "free"
	PlanStandard   PlanID = "standard"
	PlanPro        PlanID = "pro"
	PlanEnterprise PlanID = "enterprise"
)

// AllPlans lists the plan tiers in ascending order.
var AllPlans = []PlanID{PlanFree, PlanStandard, PlanPro, PlanEnterprise}

// IsValid returns true if the plan ID is a known tier.
func (p PlanID) IsValid() bool {
	switch p {
	case PlanFree, PlanStandard, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// Level is the tier's position in AllPlans, 0 for free. Unknown tiers
// rank as free.
func (p PlanID) Level() int {
	for i, id := range AllPlans {
		if id == p {
			return i
		}
	}
	return 0
}

func (p PlanID) String() string {
	return string(p)
}

// ParsePlanID converts a string to a PlanID.
func ParsePlanID(s string) (PlanID, error) {
	p := PlanID(s)
	if !p.IsValid() {
		return "", Invalid("plan.parse", fmt.Sprintf("unknown plan %q", s))
	}
	return p, nil
}

// Unlimited is the sentinel limit value that disables a numeric ceiling.
const Unlimited int64 = -1

// Feature keys recognised by the console. Plans may carry additional keys;
// any key not present is treated as disabled.
const (
	FeatureDocGenAdvanced   = "doc_gen_advanced"
	FeatureDownloadWord     = "can_download_word"
	FeatureLongTermMemory   = "has_long_term_memory"
	FeatureRiskDetection    = "has_risk_detection"
	FeatureMagicLink        = "has_magic_link"
	FeatureCustomDomain     = "has_custom_domain"
	FeatureAuditLogs        = "has_audit_logs"
	FeatureDedicatedSupport = "is_dedicated_support"
)

// PlanLimit holds the ceilings and feature flags for a single plan tier.
type PlanLimit struct {
	PlanID             PlanID
	DisplayName        string
	MonthlyChatLimit   int64
	MonthlyDocGenLimit int64
	StorageLimitMB     int64
	MaxUsers           int64
	Features           map[string]bool

	// Cost Guard overrides. Nil means the tier default applies.
	MaxMonthlyCostUSD     *float64
	ReasoningMonthlyLimit *int64

	UpdatedAt time.Time
}

// HasFeature reports whether the flag is explicitly enabled.
func (p *PlanLimit) HasFeature(key string) bool {
	if p == nil || p.Features == nil {
		return false
	}
	return p.Features[key]
}

// LimitFor returns the ceiling for a numeric metric.
// The second return value is false for feature keys.
func (p *PlanLimit) LimitFor(m Metric) (int64, bool) {
	switch m {
	case MetricChatMessage:
		return p.MonthlyChatLimit, true
	case MetricDocGen:
		return p.MonthlyDocGenLimit, true
	case MetricStorageMB:
		return p.StorageLimitMB, true
	}
	return 0, false
}

// Validate checks the plan limit for administrative writes.
func (p *PlanLimit) Validate() error {
	const op = "plan.validate"

	var ve *ValidationError
	add := func(field, msg string) {
		if ve == nil {
			ve = NewValidationError(op, field, msg)
			return
		}
		ve.Fields[field] = msg
	}

	if !p.PlanID.IsValid() {
		add("plan_id", fmt.Sprintf("unknown plan %q", p.PlanID))
	}
	if p.MonthlyChatLimit < Unlimited {
		add("monthly_chat_limit", "must be -1 (unlimited) or a non-negative integer")
	}
	if p.MonthlyDocGenLimit < Unlimited {
		add("monthly_doc_gen_limit", "must be -1 (unlimited) or a non-negative integer")
	}
	if p.StorageLimitMB < Unlimited {
		add("storage_limit_mb", "must be -1 (unlimited) or a non-negative integer")
	}
	if p.MaxUsers < 0 {
		add("max_users", "must be a non-negative integer")
	}
	if p.MaxMonthlyCostUSD != nil && *p.MaxMonthlyCostUSD < 0 {
		add("max_monthly_cost_usd", "must be non-negative")
	}
	if p.ReasoningMonthlyLimit != nil && *p.ReasoningMonthlyLimit < 0 {
		add("reasoning_monthly_limit", "must be non-negative")
	}

	if ve != nil {
		return ve
	}
	return nil
}

// =============================================================================
// Metrics and counters
// =============================================================================

// Metric is the key passed to the quota guard. The three numeric metrics map
// onto ledger counters; every other value is a feature flag key.
type Metric string

const (
	MetricChatMessage Metric = "chat_message"
	MetricDocGen      Metric = "doc_gen"
	MetricStorageMB   Metric = "storage_mb"
)

// IsNumeric reports whether the metric is backed by a ledger counter.
func (m Metric) IsNumeric() bool {
	_, ok := m.Counter()
	return ok
}

// Counter returns the ledger counter backing a numeric metric.
func (m Metric) Counter() (Counter, bool) {
	switch m {
	case MetricChatMessage:
		return CounterChat, true
	case MetricDocGen:
		return CounterDocGen, true
	case MetricStorageMB:
		return CounterStorage, true
	}
	return "", false
}

func (m Metric) String() string {
	return string(m)
}

// Counter names a column of the usage ledger.
type Counter string

const (
	CounterChat    Counter = "chat"
	CounterDocGen  Counter = "doc_gen"
	CounterStorage Counter = "storage"
)

// IsValid returns true if the counter is a known ledger column.
func (c Counter) IsValid() bool {
	switch c {
	case CounterChat, CounterDocGen, CounterStorage:
		return true
	}
	return false
}

// Metric returns the quota metric guarding this counter.
func (c Counter) Metric() Metric {
	switch c {
	case CounterChat:
		return MetricChatMessage
	case CounterDocGen:
		return MetricDocGen
	case CounterStorage:
		return MetricStorageMB
	}
	return Metric(c)
}

func (c Counter) String() string {
	return string(c)
}

// ParseCounter converts a string to a Counter.
func ParseCounter(s string) (Counter, error) {
	c := Counter(s)
	if !c.IsValid() {
		return "", Invalid("usage.parse_counter", fmt.Sprintf("unknown usage counter %q", s))
	}
	return c, nil
}

// =============================================================================
// Organization
// =============================================================================

// Organization is the tenant and billing unit.
type Organization struct {
	ID                 string
	Name               string
	PlanID             PlanID
	StripeCustomerID   string
	SubscriptionStatus string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Subscription statuses mirrored from the payment processor.
const (
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)
