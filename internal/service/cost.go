package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/metrics"
	"github.com/govai/console/internal/repository"
	"github.com/sqlc-dev/pqtype"
)

// =============================================================================
// Interface Definition
// =============================================================================

// CostService routes requests to models and enforces monthly AI spend ceilings.
type CostService interface {
	// SelectModel returns the model for a plan tier and task.
	SelectModel(planID domain.PlanID, task domain.TaskComplexity) string

	// CheckCostLimit returns LimitReachedError when the organization's
	// month-to-date spend, or its reasoning call count when model is a
	// reasoning model, has reached the plan's ceiling.
	CheckCostLimit(ctx context.Context, orgID, model string) (domain.CostStatus, error)

	// Status returns month-to-date spend against plan's ceilings.
	Status(ctx context.Context, orgID string, plan *domain.PlanLimit) (domain.CostStatus, error)

	// TrackSpend prices a model call and appends it to the usage log.
	TrackSpend(ctx context.Context, params TrackSpendParams) (*domain.UsageLog, error)

	// ListSpend returns the organization's usage log for the current month.
	ListSpend(ctx context.Context, orgID string, limit int) ([]*domain.UsageLog, error)
}

// TrackSpendParams describes one completed model call.
type TrackSpendParams struct {
	OrganizationID string
	UserID         string
	FeatureName    string
	Model          string
	InputTokens    int64
	OutputTokens   int64
	Metadata       map[string]any
}

// CostConfig configures model routing.
type CostConfig struct {
	// Prices is the model price table. Defaults to domain.DefaultPrices.
	Prices domain.PriceTable
	// ModelAliases rewrites routed models, e.g. to a different provider.
	ModelAliases map[string]string
}

// GeminiAliases routes every chat tier to the Gemini equivalents.
var GeminiAliases = map[string]string{
	domain.ModelGPT4oMini: domain.ModelGeminiFlash,
	domain.ModelGPT4o:     domain.ModelGeminiFlash,
	domain.ModelO1Preview: domain.ModelGeminiFlashThink,
}

// AnthropicAliases routes chat tiers to Claude models. Claude has no
// reasoning-tier model, so reasoning requests fall to the top chat model
// and do not count against the reasoning sub-quota.
var AnthropicAliases = map[string]string{
	domain.ModelGPT4oMini: domain.ModelClaudeHaiku,
	domain.ModelGPT4o:     domain.ModelClaudeSonnet,
	domain.ModelO1Preview: domain.ModelClaudeSonnet,
}

// =============================================================================
// Implementation
// =============================================================================

type costService struct {
	queries repository.Querier
	plans   PlanService
	prices  domain.PriceTable
	aliases map[string]string
	logger  *slog.Logger
	now     func() time.Time
}

// NewCostService creates a new CostService. It returns a configuration
// error if any model the router can select has no price.
func NewCostService(queries repository.Querier, plans PlanService, config CostConfig, logger *slog.Logger) (CostService, error) {
	prices := config.Prices
	if prices == nil {
		prices = domain.DefaultPrices
	}

	s := &costService{
		queries: queries,
		plans:   plans,
		prices:  prices,
		aliases: config.ModelAliases,
		logger:  logger,
		now:     time.Now,
	}

	if err := prices.Validate(s.routableModels()...); err != nil {
		return nil, err
	}
	return s, nil
}

// routableModels lists every model SelectModel can return.
func (s *costService) routableModels() []string {
	seen := map[string]bool{}
	var models []string
	for _, p := range domain.AllPlans {
		for _, t := range []domain.TaskComplexity{domain.TaskSimple, domain.TaskComplex, domain.TaskEmbedding, domain.TaskReasoning} {
			m := s.SelectModel(p, t)
			if !seen[m] {
				seen[m] = true
				models = append(models, m)
			}
		}
	}
	return models
}

func (s *costService) SelectModel(planID domain.PlanID, task domain.TaskComplexity) string {
	model := domain.SelectModel(planID, task)
	if alias, ok := s.aliases[model]; ok {
		return alias
	}
	return model
}

func (s *costService) CheckCostLimit(ctx context.Context, orgID, model string) (domain.CostStatus, error) {
	const op = "cost.check_limit"

	if orgID == "" {
		return domain.CostStatus{}, domain.Invalid(op, "organization ID is required")
	}

	org, err := s.plans.GetOrganization(ctx, orgID)
	if err != nil {
		return domain.CostStatus{}, err
	}
	plan, err := s.plans.GetPlan(ctx, org.PlanID)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			return domain.CostStatus{}, domain.Configuration(err, op, fmt.Sprintf("no limits configured for plan %q", org.PlanID))
		}
		return domain.CostStatus{}, err
	}

	status, err := s.Status(ctx, orgID, plan)
	if err != nil {
		return domain.CostStatus{}, err
	}

	if status.CurrentCostUSD >= status.CostLimitUSD {
		metrics.CostLimitDenials.WithLabelValues(string(domain.LimitKindCost)).Inc()
		s.logger.Info("cost limit reached",
			"organization_id", orgID,
			"plan_id", plan.PlanID,
			"current_usd", status.CurrentCostUSD,
			"limit_usd", status.CostLimitUSD,
		)
		return status, &domain.LimitReachedError{
			Op:      op,
			Kind:    domain.LimitKindCost,
			Current: status.CurrentCostUSD,
			Limit:   status.CostLimitUSD,
		}
	}

	if domain.IsReasoningModel(model) && status.ReasoningCalls >= status.ReasoningLimit {
		metrics.CostLimitDenials.WithLabelValues(string(domain.LimitKindReasoning)).Inc()
		s.logger.Info("reasoning limit reached",
			"organization_id", orgID,
			"plan_id", plan.PlanID,
			"model", model,
			"calls", status.ReasoningCalls,
			"limit", status.ReasoningLimit,
		)
		return status, &domain.LimitReachedError{
			Op:      op,
			Kind:    domain.LimitKindReasoning,
			Current: float64(status.ReasoningCalls),
			Limit:   float64(status.ReasoningLimit),
		}
	}

	return status, nil
}

func (s *costService) Status(ctx context.Context, orgID string, plan *domain.PlanLimit) (domain.CostStatus, error) {
	const op = "cost.status"

	spend, err := s.queries.GetMonthlySpend(ctx, repository.GetMonthlySpendParams{
		OrganizationID: orgID,
		Since:          domain.PeriodStart(s.now()),
	})
	if err != nil {
		return domain.CostStatus{}, domain.Internal(err, op, "failed to load monthly spend")
	}

	limits := domain.EffectiveCostLimits(plan)
	status := domain.CostStatus{
		CurrentCostUSD: spend.TotalCostUsd,
		CostLimitUSD:   limits.MaxMonthlyCostUSD,
		ReasoningCalls: spend.ReasoningCalls,
		ReasoningLimit: limits.ReasoningMonthlyLimit,
	}
	status.Allowed = status.CurrentCostUSD < status.CostLimitUSD
	if status.CostLimitUSD > 0 {
		status.UsagePercent = status.CurrentCostUSD / status.CostLimitUSD * 100
	}
	return status, nil
}

func (s *costService) TrackSpend(ctx context.Context, params TrackSpendParams) (*domain.UsageLog, error) {
	const op = "cost.track_spend"

	if params.OrganizationID == "" {
		return nil, domain.Invalid(op, "organization ID is required")
	}

	cost, err := s.prices.Cost(params.Model, params.InputTokens, params.OutputTokens)
	if err != nil {
		s.logger.Error("failed to price model call",
			"organization_id", params.OrganizationID,
			"model", params.Model,
			"error", err,
		)
		return nil, err
	}

	var metadata pqtype.NullRawMessage
	if len(params.Metadata) > 0 {
		data, err := json.Marshal(params.Metadata)
		if err != nil {
			return nil, domain.Invalid(op, "metadata must be JSON-serializable")
		}
		metadata = pqtype.NullRawMessage{RawMessage: data, Valid: true}
	}

	row, err := s.queries.CreateUsageLog(ctx, repository.CreateUsageLogParams{
		OrganizationID:   params.OrganizationID,
		UserID:           nullString(params.UserID),
		FeatureName:      params.FeatureName,
		ModelUsed:        params.Model,
		InputTokens:      params.InputTokens,
		OutputTokens:     params.OutputTokens,
		EstimatedCostUsd: cost,
		Metadata:         metadata,
	})
	if err != nil {
		s.logger.Error("failed to write usage log",
			"organization_id", params.OrganizationID,
			"model", params.Model,
			"cost_usd", cost,
			"error", err,
		)
		return nil, domain.Internal(err, op, "failed to record spend")
	}

	metrics.AISpend(params.Model, params.InputTokens, params.OutputTokens, cost)
	s.logger.Debug("spend tracked",
		"organization_id", params.OrganizationID,
		"feature", params.FeatureName,
		"model", params.Model,
		"cost_usd", cost,
	)
	return toUsageLog(row), nil
}

func (s *costService) ListSpend(ctx context.Context, orgID string, limit int) ([]*domain.UsageLog, error) {
	const op = "cost.list_spend"

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.queries.ListUsageLogs(ctx, repository.ListUsageLogsParams{
		OrganizationID: orgID,
		Since:          domain.PeriodStart(s.now()),
		Limit:          int32(limit),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list usage logs")
	}

	logs := make([]*domain.UsageLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, toUsageLog(row))
	}
	return logs, nil
}
