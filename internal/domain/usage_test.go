package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodKey(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"mid month", time.Date(2025, 3, 17, 12, 30, 0, 0, time.UTC), "2025-03-01"},
		{"first instant", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "2025-01-01"},
		{"last instant", time.Date(2025, 1, 31, 23, 59, 59, 999, time.UTC), "2025-01-01"},
		// 2025-02-01 08:00 in Tokyo is still January in UTC
		{"non-UTC input", time.Date(2025, 2, 1, 8, 0, 0, 0, time.FixedZone("JST", 9*3600)), "2025-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PeriodKey(tt.in))
		})
	}
}

func TestParsePeriod(t *testing.T) {
	got, err := ParsePeriod("2025-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = ParsePeriod("2025-02-14")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-01", got.Format(PeriodLayout))

	_, err = ParsePeriod("February")
	assert.Equal(t, EINVALID, ErrorCode(err))
}

func TestUsageRecord_UsedAndReserved(t *testing.T) {
	r := UsageRecord{
		ChatCount:         4,
		DocGenCount:       2,
		StorageUsedMB:     12.5,
		ChatReserved:      1,
		StorageReservedMB: 3,
	}

	assert.Equal(t, 4.0, r.Used(CounterChat))
	assert.Equal(t, 2.0, r.Used(CounterDocGen))
	assert.Equal(t, 12.5, r.Used(CounterStorage))
	assert.Equal(t, 1.0, r.Reserved(CounterChat))
	assert.Equal(t, 0.0, r.Reserved(CounterDocGen))
	assert.Equal(t, 3.0, r.Reserved(CounterStorage))
	assert.Equal(t, 0.0, r.Used(Counter("bogus")))
}

func TestNewMetricUsage(t *testing.T) {
	tests := []struct {
		name          string
		used          float64
		reserved      float64
		limit         int64
		wantRemaining float64
		wantPercent   float64
	}{
		{"unlimited", 1000, 5, Unlimited, -1, 0},
		{"half used", 25, 0, 50, 25, 50},
		{"reservation counts against remaining", 25, 5, 50, 20, 50},
		{"over limit clamps remaining", 60, 0, 50, 0, 120},
		{"zero limit unused", 0, 0, 0, 0, 0},
		{"zero limit used", 1, 0, 0, 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mu := NewMetricUsage(MetricChatMessage, tt.used, tt.reserved, tt.limit)
			assert.Equal(t, tt.wantRemaining, mu.Remaining)
			assert.InDelta(t, tt.wantPercent, mu.PercentUsed, 1e-9)
		})
	}
}

func TestDenialMessage(t *testing.T) {
	assert.Equal(t,
		"Monthly chat limit reached (50/50). Upgrade your plan.",
		DenialMessage(MetricChatMessage, 50, 1, 50))
	assert.Equal(t,
		"Monthly document generation limit reached (10/10). Upgrade your plan.",
		DenialMessage(MetricDocGen, 10, 1, 10))
	assert.Equal(t,
		"Storage limit reached (98.5MB + 2MB > 100MB).",
		DenialMessage(MetricStorageMB, 98.5, 2, 100))
	assert.Equal(t,
		"Feature 'doc_gen_advanced' is not available on your current plan.",
		FeatureDeniedMessage(FeatureDocGenAdvanced))
}

func TestDecision_Err(t *testing.T) {
	allowed := Decision{Allowed: true, Metric: MetricChatMessage}
	assert.NoError(t, allowed.Err("quota.guard", PlanFree))

	denied := Decision{Metric: MetricChatMessage, Current: 50, Requested: 1, Limit: 50}
	err := denied.Err("quota.guard", PlanFree)
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, int64(50), qe.Limit)
	assert.Equal(t, EQUOTA, ErrorCode(err))
	assert.Contains(t, ErrorMessage(err), "50/50")

	feature := Decision{Metric: Metric(FeatureAuditLogs)}
	err = feature.Err("quota.guard", PlanStandard)
	var fe *FeatureNotAvailableError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, PlanStandard, fe.PlanID)
	assert.Equal(t, EFEATURE, ErrorCode(err))
}

func TestReservation_Expired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r := &Reservation{ExpiresAt: now}

	assert.True(t, r.Expired(now))
	assert.True(t, r.Expired(now.Add(time.Second)))
	assert.False(t, r.Expired(now.Add(-time.Second)))
}
