package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlanID(t *testing.T) {
	for _, p := range AllPlans {
		got, err := ParsePlanID(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := ParsePlanID("FREE")
	assert.Equal(t, EINVALID, ErrorCode(err))
}

func TestPlanID_Level(t *testing.T) {
	assert.Equal(t, 0, PlanFree.Level())
	assert.Equal(t, 1, PlanStandard.Level())
	assert.Equal(t, 2, PlanPro.Level())
	assert.Equal(t, 3, PlanEnterprise.Level())
	assert.Equal(t, 0, PlanID("platinum").Level())
}

func TestPlanLimit_LimitFor(t *testing.T) {
	p := &PlanLimit{MonthlyChatLimit: 50, MonthlyDocGenLimit: 10, StorageLimitMB: Unlimited}

	limit, ok := p.LimitFor(MetricChatMessage)
	assert.True(t, ok)
	assert.Equal(t, int64(50), limit)

	limit, ok = p.LimitFor(MetricDocGen)
	assert.True(t, ok)
	assert.Equal(t, int64(10), limit)

	limit, ok = p.LimitFor(MetricStorageMB)
	assert.True(t, ok)
	assert.Equal(t, Unlimited, limit)

	_, ok = p.LimitFor(Metric(FeatureAuditLogs))
	assert.False(t, ok)
}

func TestPlanLimit_HasFeature(t *testing.T) {
	p := &PlanLimit{Features: map[string]bool{
		FeatureDocGenAdvanced: true,
		FeatureAuditLogs:      false,
	}}

	assert.True(t, p.HasFeature(FeatureDocGenAdvanced))
	assert.False(t, p.HasFeature(FeatureAuditLogs))
	assert.False(t, p.HasFeature("missing"))
	assert.False(t, (&PlanLimit{}).HasFeature(FeatureDocGenAdvanced))

	var nilPlan *PlanLimit
	assert.False(t, nilPlan.HasFeature(FeatureDocGenAdvanced))
}

func TestPlanLimit_Validate(t *testing.T) {
	negCost := -1.0

	tests := []struct {
		name       string
		plan       PlanLimit
		wantFields []string
	}{
		{
			name: "valid unlimited",
			plan: PlanLimit{PlanID: PlanPro, MonthlyChatLimit: -1, MonthlyDocGenLimit: -1, StorageLimitMB: -1, MaxUsers: 5},
		},
		{
			name: "valid zero limits",
			plan: PlanLimit{PlanID: PlanFree},
		},
		{
			name:       "unknown plan",
			plan:       PlanLimit{PlanID: "gold"},
			wantFields: []string{"plan_id"},
		},
		{
			name:       "limits below sentinel",
			plan:       PlanLimit{PlanID: PlanFree, MonthlyChatLimit: -2, MonthlyDocGenLimit: -5, StorageLimitMB: -3, MaxUsers: -1},
			wantFields: []string{"monthly_chat_limit", "monthly_doc_gen_limit", "storage_limit_mb", "max_users"},
		},
		{
			name:       "negative cost override",
			plan:       PlanLimit{PlanID: PlanFree, MaxMonthlyCostUSD: &negCost},
			wantFields: []string{"max_monthly_cost_usd"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Len(t, ve.Fields, len(tt.wantFields))
			for _, f := range tt.wantFields {
				assert.Contains(t, ve.Fields, f)
			}
		})
	}
}

func TestMetricCounterMapping(t *testing.T) {
	tests := []struct {
		metric  Metric
		counter Counter
	}{
		{MetricChatMessage, CounterChat},
		{MetricDocGen, CounterDocGen},
		{MetricStorageMB, CounterStorage},
	}

	for _, tt := range tests {
		t.Run(string(tt.metric), func(t *testing.T) {
			c, ok := tt.metric.Counter()
			assert.True(t, ok)
			assert.Equal(t, tt.counter, c)
			assert.Equal(t, tt.metric, tt.counter.Metric())
			assert.True(t, tt.metric.IsNumeric())
		})
	}

	assert.False(t, Metric(FeatureDocGenAdvanced).IsNumeric())

	_, err := ParseCounter("tokens")
	assert.Equal(t, EINVALID, ErrorCode(err))
}
