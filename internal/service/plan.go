package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/govai/console/internal/cache"
	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/metrics"
	"github.com/govai/console/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// PlanService manages plan limits and the organization-to-plan mapping.
type PlanService interface {
	// GetPlan returns a plan's limits, reading through the plan cache.
	GetPlan(ctx context.Context, planID domain.PlanID) (*domain.PlanLimit, error)

	// ListPlans returns all plans ordered by tier.
	ListPlans(ctx context.Context) ([]*domain.PlanLimit, error)

	// UpsertPlan validates and stores a plan, invalidating its cache entry.
	UpsertPlan(ctx context.Context, plan *domain.PlanLimit) (*domain.PlanLimit, error)

	// GetOrganization returns an organization by ID.
	GetOrganization(ctx context.Context, orgID string) (*domain.Organization, error)

	// CreateOrganization registers an organization on the given plan.
	CreateOrganization(ctx context.Context, orgID, name string, planID domain.PlanID) (*domain.Organization, error)

	// SetOrganizationPlan changes an organization's plan. Takes effect
	// for the next quota check; there is no proration.
	SetOrganizationPlan(ctx context.Context, orgID string, planID domain.PlanID) (*domain.Organization, error)

	// LinkStripeCustomer associates a Stripe customer with an organization.
	LinkStripeCustomer(ctx context.Context, orgID, customerID string) error

	// ApplySubscription sets the plan and subscription status of the
	// organization billed to customerID.
	ApplySubscription(ctx context.Context, customerID string, planID domain.PlanID, status string) (*domain.Organization, error)
}

// =============================================================================
// Implementation
// =============================================================================

type planService struct {
	queries repository.Querier
	cache   cache.PlanCache
	logger  *slog.Logger
}

// NewPlanService creates a new PlanService. A nil cache disables caching.
func NewPlanService(queries repository.Querier, planCache cache.PlanCache, logger *slog.Logger) PlanService {
	if planCache == nil {
		planCache = cache.NopPlanCache{}
	}
	return &planService{
		queries: queries,
		cache:   planCache,
		logger:  logger,
	}
}

func (s *planService) GetPlan(ctx context.Context, planID domain.PlanID) (*domain.PlanLimit, error) {
	const op = "plan.get"

	plan, ok, err := s.cache.Get(ctx, planID)
	switch {
	case err != nil:
		metrics.PlanCacheLookups.WithLabelValues("error").Inc()
		s.logger.Warn("plan cache read failed", "plan_id", planID, "error", err)
	case ok:
		metrics.PlanCacheLookups.WithLabelValues("hit").Inc()
		return plan, nil
	default:
		metrics.PlanCacheLookups.WithLabelValues("miss").Inc()
	}

	row, err := s.queries.GetPlanLimit(ctx, string(planID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "plan", string(planID))
		}
		return nil, domain.Internal(err, op, "failed to load plan")
	}

	plan, err = toPlanLimit(row)
	if err != nil {
		return nil, domain.Configuration(err, op, "plan features are malformed")
	}

	if err := s.cache.Set(ctx, plan); err != nil {
		s.logger.Warn("plan cache write failed", "plan_id", planID, "error", err)
	}

	return plan, nil
}

func (s *planService) ListPlans(ctx context.Context) ([]*domain.PlanLimit, error) {
	const op = "plan.list"

	rows, err := s.queries.ListPlanLimits(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list plans")
	}

	plans := make([]*domain.PlanLimit, 0, len(rows))
	for _, row := range rows {
		plan, err := toPlanLimit(row)
		if err != nil {
			return nil, domain.Configuration(err, op, "plan features are malformed")
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func (s *planService) UpsertPlan(ctx context.Context, plan *domain.PlanLimit) (*domain.PlanLimit, error) {
	const op = "plan.upsert"

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if plan.DisplayName == "" {
		plan.DisplayName = string(plan.PlanID)
	}

	params, err := toUpsertPlanLimitParams(plan)
	if err != nil {
		return nil, domain.Invalid(op, err.Error())
	}

	row, err := s.queries.UpsertPlanLimit(ctx, params)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to save plan")
	}

	if err := s.cache.Invalidate(ctx, plan.PlanID); err != nil {
		s.logger.Error("plan cache invalidation failed", "plan_id", plan.PlanID, "error", err)
	}

	s.logger.Info("plan limits updated",
		"plan_id", plan.PlanID,
		"chat_limit", plan.MonthlyChatLimit,
		"doc_gen_limit", plan.MonthlyDocGenLimit,
		"storage_limit_mb", plan.StorageLimitMB,
	)

	saved, err := toPlanLimit(row)
	if err != nil {
		return nil, domain.Configuration(err, op, "plan features are malformed")
	}
	return saved, nil
}

func (s *planService) GetOrganization(ctx context.Context, orgID string) (*domain.Organization, error) {
	const op = "plan.get_organization"

	if orgID == "" {
		return nil, domain.Invalid(op, "organization ID is required")
	}

	row, err := s.queries.GetOrganization(ctx, orgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "organization", orgID)
		}
		return nil, domain.Internal(err, op, "failed to load organization")
	}
	return toOrganization(row), nil
}

func (s *planService) CreateOrganization(ctx context.Context, orgID, name string, planID domain.PlanID) (*domain.Organization, error) {
	const op = "plan.create_organization"

	if orgID == "" {
		return nil, domain.Invalid(op, "organization ID is required")
	}
	if planID == "" {
		planID = domain.PlanFree
	}
	if !planID.IsValid() {
		return nil, domain.Invalid(op, "unknown plan")
	}

	row, err := s.queries.CreateOrganization(ctx, repository.CreateOrganizationParams{
		ID:     orgID,
		Name:   name,
		PlanID: string(planID),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to create organization")
	}
	return toOrganization(row), nil
}

func (s *planService) SetOrganizationPlan(ctx context.Context, orgID string, planID domain.PlanID) (*domain.Organization, error) {
	const op = "plan.set_organization_plan"

	if orgID == "" {
		return nil, domain.Invalid(op, "organization ID is required")
	}
	if !planID.IsValid() {
		return nil, domain.Invalid(op, "unknown plan")
	}

	row, err := s.queries.UpdateOrganizationPlan(ctx, repository.UpdateOrganizationPlanParams{
		ID:     orgID,
		PlanID: string(planID),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "organization", orgID)
		}
		return nil, domain.Internal(err, op, "failed to change plan")
	}

	s.logger.Info("organization plan changed", "organization_id", orgID, "plan_id", planID)
	return toOrganization(row), nil
}

func (s *planService) LinkStripeCustomer(ctx context.Context, orgID, customerID string) error {
	const op = "plan.link_stripe_customer"

	if orgID == "" || customerID == "" {
		return domain.Invalid(op, "organization ID and customer ID are required")
	}

	err := s.queries.UpdateOrganizationStripeCustomer(ctx, repository.UpdateOrganizationStripeCustomerParams{
		ID:               orgID,
		StripeCustomerID: nullString(customerID),
	})
	if err != nil {
		return domain.Internal(err, op, "failed to link customer")
	}
	return nil
}

func (s *planService) ApplySubscription(ctx context.Context, customerID string, planID domain.PlanID, status string) (*domain.Organization, error) {
	const op = "plan.apply_subscription"

	if customerID == "" {
		return nil, domain.Invalid(op, "customer ID is required")
	}
	if !planID.IsValid() {
		return nil, domain.Invalid(op, "unknown plan")
	}

	row, err := s.queries.UpdateOrganizationSubscription(ctx, repository.UpdateOrganizationSubscriptionParams{
		StripeCustomerID:   nullString(customerID),
		PlanID:             string(planID),
		SubscriptionStatus: status,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "organization", customerID)
		}
		return nil, domain.Internal(err, op, "failed to apply subscription")
	}

	s.logger.Info("subscription applied",
		"organization_id", row.ID,
		"plan_id", planID,
		"status", status,
	)
	return toOrganization(row), nil
}
