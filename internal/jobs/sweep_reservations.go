package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/govai/console/internal/service"
	"github.com/govai/console/internal/worker"
)

const defaultSweepBatch = 500

// SweepReservationsHandler releases reservations whose TTL has passed.
type SweepReservationsHandler struct {
	quota  service.QuotaService
	logger *slog.Logger
}

// NewSweepReservationsHandler creates a new handler for reservation sweeps.
func NewSweepReservationsHandler(quota service.QuotaService, logger *slog.Logger) *SweepReservationsHandler {
	return &SweepReservationsHandler{
		quota:  quota,
		logger: logger,
	}
}

// Type returns the job type identifier.
func (h *SweepReservationsHandler) Type() string {
	return worker.JobTypeSweepReservations
}

// Handle sweeps batches until no expired reservations remain.
func (h *SweepReservationsHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.SweepReservationsPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
		}
	}
	batch := p.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}

	total := 0
	for {
		n, err := h.quota.SweepExpiredReservations(ctx, batch)
		total += n
		if err != nil {
			return fmt.Errorf("sweep reservations: %w", err)
		}
		if n < batch {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	h.logger.Debug("Reservation sweep finished", "released", total)
	return nil
}
