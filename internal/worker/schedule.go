package worker

import (
	"context"
	"fmt"
	"time"
)

// runSweepScheduler enqueues a reservation sweep every SweepInterval.
func (w *Worker) runSweepScheduler(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.scheduleSweep(ctx); err != nil {
				w.logger.Error("Failed to schedule reservation sweep", "error", err)
			}
		}
	}
}

// scheduleSweep enqueues a sweep unless one is already pending or running,
// so a slow sweep never piles up behind itself. Reports whether it enqueued.
func (w *Worker) scheduleSweep(ctx context.Context) (bool, error) {
	pending, err := w.store.CountPendingJobsByType(ctx, JobTypeSweepReservations)
	if err != nil {
		return false, fmt.Errorf("count pending sweeps: %w", err)
	}
	if pending > 0 {
		return false, nil
	}

	if _, err := EnqueueSweepReservations(ctx, w.store, w.config.SweepBatchSize); err != nil {
		return false, err
	}
	return true, nil
}
