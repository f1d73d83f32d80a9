package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// TaskComplexity drives model selection.
type TaskComplexity string

const (
	TaskSimple    TaskComplexity = "simple"
	TaskComplex   TaskComplexity = "complex"
	TaskEmbedding TaskComplexity = "embedding"
	TaskReasoning TaskComplexity = "reasoning"
)

// IsValid returns true if the task complexity is known.
func (t TaskComplexity) IsValid() bool {
	switch t {
	case TaskSimple, TaskComplex, TaskEmbedding, TaskReasoning:
		return true
	}
	return false
}

// Model identifiers with a known price.
const (
	ModelGPT4o            = "gpt-4o"
	ModelGPT4oMini        = "gpt-4o-mini"
	ModelEmbeddingSmall   = "text-embedding-3-small"
	ModelO1Preview        = "o1-preview"
	ModelGeminiFlash      = "gemini-2.0-flash"
	ModelGeminiFlashThink = "gemini-2.0-flash-thinking-exp"
	ModelClaudeHaiku      = "claude-3-5-haiku-20241022"
	ModelClaudeSonnet     = "claude-3-5-sonnet-20241022"
)

// ModelPrice is the USD price per one million tokens.
type ModelPrice struct {
	InputPerM  float64
	OutputPerM float64
}

// PriceTable maps model identifiers to prices.
type PriceTable map[string]ModelPrice

// DefaultPrices is the built-in price table.
var DefaultPrices = PriceTable{
	ModelGPT4o:            {InputPerM: 2.50, OutputPerM: 10.00},
	ModelGPT4oMini:        {InputPerM: 0.15, OutputPerM: 0.60},
	ModelEmbeddingSmall:   {InputPerM: 0.02, OutputPerM: 0},
	ModelO1Preview:        {InputPerM: 15.00, OutputPerM: 60.00},
	ModelGeminiFlash:      {InputPerM: 0.075, OutputPerM: 0.30},
	ModelGeminiFlashThink: {InputPerM: 0.10, OutputPerM: 0.40},
	ModelClaudeHaiku:      {InputPerM: 0.80, OutputPerM: 4.00},
	ModelClaudeSonnet:     {InputPerM: 3.00, OutputPerM: 15.00},
}

// Cost computes the USD cost of a call. Unknown models are a configuration
// error rather than being priced at some fallback rate.
func (pt PriceTable) Cost(model string, inputTokens, outputTokens int64) (float64, error) {
	const op = "cost.calculate"

	price, ok := pt[model]
	if !ok {
		return 0, Configuration(nil, op, fmt.Sprintf("no price configured for model %q", model))
	}
	if inputTokens < 0 || outputTokens < 0 {
		return 0, Invalid(op, "token counts must be non-negative")
	}
	in := float64(inputTokens) / 1_000_000 * price.InputPerM
	out := float64(outputTokens) / 1_000_000 * price.OutputPerM
	return in + out, nil
}

// Validate returns a configuration error naming every model missing a price.
func (pt PriceTable) Validate(models ...string) error {
	var missing []string
	for _, m := range models {
		if m == "" {
			continue
		}
		if _, ok := pt[m]; !ok {
			missing = append(missing, m)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return Configuration(nil, "cost.validate_prices",
		fmt.Sprintf("no price configured for models: %s", strings.Join(missing, ", ")))
}

// IsReasoningModel reports whether calls to model count against the
// reasoning sub-quota. Must agree with the usage_logs spend query.
func IsReasoningModel(model string) bool {
	return strings.HasPrefix(model, "o1") || strings.Contains(model, "thinking")
}

// SelectModel maps a plan tier and task to a model identifier.
func SelectModel(plan PlanID, task TaskComplexity) string {
	if task == TaskEmbedding {
		return ModelEmbeddingSmall
	}

	switch plan {
	case PlanPro, PlanEnterprise:
		switch task {
		case TaskReasoning:
			return ModelO1Preview
		case TaskComplex:
			return ModelGPT4o
		}
	}
	return ModelGPT4oMini
}

// CostLimits are the effective Cost Guard ceilings for a plan.
type CostLimits struct {
	MaxMonthlyCostUSD     float64
	ReasoningMonthlyLimit int64
}

var defaultCostLimits = map[PlanID]CostLimits{
	PlanFree:       {MaxMonthlyCostUSD: 1.0, ReasoningMonthlyLimit: 0},
	PlanStandard:   {MaxMonthlyCostUSD: 2.0, ReasoningMonthlyLimit: 0},
	PlanPro:        {MaxMonthlyCostUSD: 20.0, ReasoningMonthlyLimit: 50},
	PlanEnterprise: {MaxMonthlyCostUSD: 100.0, ReasoningMonthlyLimit: 500},
}

// DefaultCostLimits returns the tier defaults. Unknown plans get the free tier.
func DefaultCostLimits(plan PlanID) CostLimits {
	if l, ok := defaultCostLimits[plan]; ok {
		return l
	}
	return defaultCostLimits[PlanFree]
}

// EffectiveCostLimits applies the plan's overrides on top of the tier defaults.
func EffectiveCostLimits(p *PlanLimit) CostLimits {
	if p == nil {
		return DefaultCostLimits(PlanFree)
	}
	limits := DefaultCostLimits(p.PlanID)
	if p.MaxMonthlyCostUSD != nil {
		limits.MaxMonthlyCostUSD = *p.MaxMonthlyCostUSD
	}
	if p.ReasoningMonthlyLimit != nil {
		limits.ReasoningMonthlyLimit = *p.ReasoningMonthlyLimit
	}
	return limits
}

// CostStatus is the month-to-date spend snapshot returned by the Cost Guard.
type CostStatus struct {
	Allowed        bool    `json:"allowed"`
	CurrentCostUSD float64 `json:"current_cost_usd"`
	CostLimitUSD   float64 `json:"cost_limit_usd"`
	ReasoningCalls int64   `json:"reasoning_calls"`
	ReasoningLimit int64   `json:"reasoning_limit"`
	UsagePercent   float64 `json:"usage_percent"`
}

// UsageLog is one append-only spend record.
type UsageLog struct {
	ID               int64          `json:"id"`
	OrganizationID   string         `json:"organization_id"`
	UserID           string         `json:"user_id,omitempty"`
	FeatureName      string         `json:"feature_name"`
	ModelUsed        string         `json:"model_used"`
	InputTokens      int64          `json:"input_tokens"`
	OutputTokens     int64          `json:"output_tokens"`
	EstimatedCostUSD float64        `json:"estimated_cost_usd"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

var jpyPrinter = message.NewPrinter(language.Japanese)

// FormatCostJPY renders a USD amount as yen for Japanese-facing screens.
func FormatCostJPY(usd float64) string {
	if usd < 0.01 {
		return "<¥1"
	}
	return jpyPrinter.Sprintf("¥%d", int64(math.Ceil(usd*150)))
}
