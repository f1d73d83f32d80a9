package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// PeriodLayout is the textual form of a period key (first day of the month).
const PeriodLayout = "2006-01-02"

// PeriodStart returns the first instant of t's calendar month in UTC.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodKey returns the YYYY-MM-01 key for t's calendar month.
func PeriodKey(t time.Time) string {
	return PeriodStart(t).Format(PeriodLayout)
}

// ParsePeriod parses a YYYY-MM-01 or YYYY-MM period key.
func ParsePeriod(s string) (time.Time, error) {
	for _, layout := range []string{PeriodLayout, "2006-01"} {
		if t, err := time.Parse(layout, s); err == nil {
			return PeriodStart(t), nil
		}
	}
	return time.Time{}, Invalid("usage.parse_period", fmt.Sprintf("invalid period %q, expected YYYY-MM", s))
}

// UsageRecord is one organization's ledger row for one calendar month.
// A missing row is equivalent to the zero value.
type UsageRecord struct {
	OrganizationID string
	PeriodMonth    time.Time

	ChatCount     int64
	DocGenCount   int64
	StorageUsedMB float64

	ChatReserved      int64
	DocGenReserved    int64
	StorageReservedMB float64

	UpdatedAt time.Time
}

// Used returns the committed amount for a counter.
func (r UsageRecord) Used(c Counter) float64 {
	switch c {
	case CounterChat:
		return float64(r.ChatCount)
	case CounterDocGen:
		return float64(r.DocGenCount)
	case CounterStorage:
		return r.StorageUsedMB
	}
	return 0
}

// Reserved returns the amount held by outstanding reservations for a counter.
func (r UsageRecord) Reserved(c Counter) float64 {
	switch c {
	case CounterChat:
		return float64(r.ChatReserved)
	case CounterDocGen:
		return float64(r.DocGenReserved)
	case CounterStorage:
		return r.StorageReservedMB
	}
	return 0
}

// Decision is the Quota Guard outcome. A denial is a value, not an error.
type Decision struct {
	Allowed   bool
	Metric    Metric
	Current   float64
	Requested float64
	Limit     int64
	Reason    string
}

// Err converts a denial into the matching typed error, or nil when allowed.
func (d Decision) Err(op string, planID PlanID) error {
	if d.Allowed {
		return nil
	}
	if !d.Metric.IsNumeric() {
		return FeatureNotAvailable(op, string(d.Metric), planID)
	}
	return QuotaExceeded(op, d.Metric, d.Current, d.Requested, d.Limit)
}

// Reservation is capacity held against a ledger counter until it is
// committed, released, or expires.
type Reservation struct {
	ID             uuid.UUID
	OrganizationID string
	PeriodMonth    time.Time
	Counter        Counter
	Amount         float64
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

// Expired reports whether the reservation's TTL has elapsed at now.
func (r *Reservation) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// MetricUsage summarises one numeric metric for the usage endpoint.
type MetricUsage struct {
	Metric      Metric  `json:"metric"`
	Used        float64 `json:"used"`
	Reserved    float64 `json:"reserved"`
	Limit       int64   `json:"limit"`
	Remaining   float64 `json:"remaining"`
	PercentUsed float64 `json:"percent_used"`
}

// NewMetricUsage computes remaining capacity and percent used.
// Remaining is -1 and PercentUsed is 0 for unlimited metrics.
func NewMetricUsage(m Metric, used, reserved float64, limit int64) MetricUsage {
	mu := MetricUsage{
		Metric:   m,
		Used:     used,
		Reserved: reserved,
		Limit:    limit,
	}
	if limit == Unlimited {
		mu.Remaining = -1
		return mu
	}
	mu.Remaining = float64(limit) - used - reserved
	if mu.Remaining < 0 {
		mu.Remaining = 0
	}
	if limit > 0 {
		mu.PercentUsed = used / float64(limit) * 100
	} else if used > 0 {
		mu.PercentUsed = 100
	}
	return mu
}

// UsageSummary is the tenant-facing view of the current period.
type UsageSummary struct {
	OrganizationID string        `json:"organization_id"`
	PlanID         PlanID        `json:"plan_id"`
	Period         string        `json:"period"`
	Metrics        []MetricUsage `json:"metrics"`
	Cost           CostStatus    `json:"cost"`

	// ActiveReservations counts holds not yet committed, released or expired.
	ActiveReservations int64 `json:"active_reservations"`
}

// PeriodUsage is one organization's committed usage for one month, as shown
// in admin reports and history.
type PeriodUsage struct {
	OrganizationID string  `json:"organization_id" yaml:"organization_id"`
	Name           string  `json:"name,omitempty" yaml:"name,omitempty"`
	PlanID         PlanID  `json:"plan_id,omitempty" yaml:"plan_id,omitempty"`
	Period         string  `json:"period" yaml:"period"`
	ChatCount      int64   `json:"chat_count" yaml:"chat_count"`
	DocGenCount    int64   `json:"doc_gen_count" yaml:"doc_gen_count"`
	StorageUsedMB  float64 `json:"storage_used_mb" yaml:"storage_used_mb"`
}

// MaxHistoryMonths bounds usage history queries.
const MaxHistoryMonths = 24

// =============================================================================
// Denial messages
// =============================================================================

// DenialMessage renders the user-facing reason for a numeric quota denial.
func DenialMessage(m Metric, current, requested float64, limit int64) string {
	switch m {
	case MetricChatMessage:
		return fmt.Sprintf("Monthly chat limit reached (%s/%d). Upgrade your plan.", FormatAmount(current), limit)
	case MetricDocGen:
		return fmt.Sprintf("Monthly document generation limit reached (%s/%d). Upgrade your plan.", FormatAmount(current), limit)
	case MetricStorageMB:
		return fmt.Sprintf("Storage limit reached (%sMB + %sMB > %dMB).", FormatAmount(current), FormatAmount(requested), limit)
	}
	return fmt.Sprintf("Monthly %s limit reached (%s/%d). Upgrade your plan.", m, FormatAmount(current), limit)
}

// FeatureDeniedMessage renders the user-facing reason for a disabled feature.
func FeatureDeniedMessage(feature string) string {
	return fmt.Sprintf("Feature '%s' is not available on your current plan.", feature)
}

// FormatAmount prints whole numbers without a fractional part.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
