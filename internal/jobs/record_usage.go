// Package jobs contains the background job handlers.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/service"
	"github.com/govai/console/internal/worker"
)

// RecordUsageHandler re-applies ledger increments whose inline write failed.
type RecordUsageHandler struct {
	quota  service.QuotaService
	logger *slog.Logger
}

// NewRecordUsageHandler creates a new handler for usage replay jobs.
func NewRecordUsageHandler(quota service.QuotaService, logger *slog.Logger) *RecordUsageHandler {
	return &RecordUsageHandler{
		quota:  quota,
		logger: logger,
	}
}

// Type returns the job type identifier.
func (h *RecordUsageHandler) Type() string {
	return worker.JobTypeRecordUsage
}

// Handle applies the increment to the period it was originally recorded in.
func (h *RecordUsageHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.RecordUsagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	period, err := domain.ParsePeriod(p.Period)
	if err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid period %q: %w", p.Period, err))
	}

	record, err := h.quota.ApplyUsage(ctx, p.OrganizationID, p.Counter, p.Amount, period)
	if err != nil {
		if domain.ErrorCode(err) == domain.EINVALID {
			return worker.NewPermanentError(err)
		}
		return fmt.Errorf("apply usage: %w", err)
	}

	h.logger.Info("Replayed usage write",
		"organization_id", p.OrganizationID,
		"counter", p.Counter,
		"amount", p.Amount,
		"period", p.Period,
		"total", record.Used(p.Counter),
	)
	return nil
}
