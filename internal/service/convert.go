package service

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/repository"
)

func toPlanLimit(row repository.PlanLimit) (*domain.PlanLimit, error) {
	features := map[string]bool{}
	if len(row.Features) > 0 {
		if err := json.Unmarshal(row.Features, &features); err != nil {
			return nil, fmt.Errorf("decode features for plan %s: %w", row.PlanID, err)
		}
	}

	plan := &domain.PlanLimit{
		PlanID:             domain.PlanID(row.PlanID),
		DisplayName:        row.DisplayName,
		MonthlyChatLimit:   row.MonthlyChatLimit,
		MonthlyDocGenLimit: row.MonthlyDocGenLimit,
		StorageLimitMB:     row.StorageLimitMb,
		MaxUsers:           row.MaxUsers,
		Features:           features,
		UpdatedAt:          row.UpdatedAt,
	}
	if row.MaxMonthlyCostUsd.Valid {
		v := row.MaxMonthlyCostUsd.Float64
		plan.MaxMonthlyCostUSD = &v
	}
	if row.ReasoningMonthlyLimit.Valid {
		v := row.ReasoningMonthlyLimit.Int64
		plan.ReasoningMonthlyLimit = &v
	}
	return plan, nil
}

func toUpsertPlanLimitParams(p *domain.PlanLimit) (repository.UpsertPlanLimitParams, error) {
	features := p.Features
	if features == nil {
		features = map[string]bool{}
	}
	data, err := json.Marshal(features)
	if err != nil {
		return repository.UpsertPlanLimitParams{}, fmt.Errorf("encode features: %w", err)
	}

	params := repository.UpsertPlanLimitParams{
		PlanID:             string(p.PlanID),
		DisplayName:        p.DisplayName,
		MonthlyChatLimit:   p.MonthlyChatLimit,
		MonthlyDocGenLimit: p.MonthlyDocGenLimit,
		StorageLimitMb:     p.StorageLimitMB,
		MaxUsers:           p.MaxUsers,
		Features:           data,
	}
	if p.MaxMonthlyCostUSD != nil {
		params.MaxMonthlyCostUsd = sql.NullFloat64{Float64: *p.MaxMonthlyCostUSD, Valid: true}
	}
	if p.ReasoningMonthlyLimit != nil {
		params.ReasoningMonthlyLimit = sql.NullInt64{Int64: *p.ReasoningMonthlyLimit, Valid: true}
	}
	return params, nil
}

func toOrganization(row repository.Organization) *domain.Organization {
	return &domain.Organization{
		ID:                 row.ID,
		Name:               row.Name,
		PlanID:             domain.PlanID(row.PlanID),
		StripeCustomerID:   row.StripeCustomerID.String,
		SubscriptionStatus: row.SubscriptionStatus,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
}

func toUsageRecord(row repository.OrganizationUsage) *domain.UsageRecord {
	return &domain.UsageRecord{
		OrganizationID:    row.OrganizationID,
		PeriodMonth:       domain.PeriodStart(row.PeriodMonth),
		ChatCount:         row.ChatCount,
		DocGenCount:       row.DocGenCount,
		StorageUsedMB:     row.StorageUsedMb,
		ChatReserved:      row.ChatReserved,
		DocGenReserved:    row.DocGenReserved,
		StorageReservedMB: row.StorageReservedMb,
		UpdatedAt:         row.UpdatedAt,
	}
}

func toPromptModule(row repository.PromptModule) *domain.PromptModule {
	return &domain.PromptModule{
		Slug:              row.Slug,
		Content:           row.Content,
		RequiredPlanLevel: int(row.RequiredPlanLevel),
		Active:            row.IsActive,
		UpdatedAt:         row.UpdatedAt,
	}
}

func toPeriodUsage(row repository.OrganizationUsage) domain.PeriodUsage {
	return domain.PeriodUsage{
		OrganizationID: row.OrganizationID,
		Period:         domain.PeriodKey(row.PeriodMonth),
		ChatCount:      row.ChatCount,
		DocGenCount:    row.DocGenCount,
		StorageUsedMB:  row.StorageUsedMb,
	}
}

func toReservation(row repository.UsageReservation) *domain.Reservation {
	return &domain.Reservation{
		ID:             row.ID,
		OrganizationID: row.OrganizationID,
		PeriodMonth:    domain.PeriodStart(row.PeriodMonth),
		Counter:        domain.Counter(row.Counter),
		Amount:         row.Amount,
		ExpiresAt:      row.ExpiresAt,
		CreatedAt:      row.CreatedAt,
	}
}

func toUsageLog(row repository.UsageLog) *domain.UsageLog {
	log := &domain.UsageLog{
		ID:               row.ID,
		OrganizationID:   row.OrganizationID,
		UserID:           row.UserID.String,
		FeatureName:      row.FeatureName,
		ModelUsed:        row.ModelUsed,
		InputTokens:      row.InputTokens,
		OutputTokens:     row.OutputTokens,
		EstimatedCostUSD: row.EstimatedCostUsd,
		CreatedAt:        row.CreatedAt,
	}
	if row.Metadata.Valid {
		_ = json.Unmarshal(row.Metadata.RawMessage, &log.Metadata)
	}
	return log
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
