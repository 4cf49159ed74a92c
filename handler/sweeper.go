package handler

import (
	"context"
	"math/rand"
	"time"
)

// defaultSweepInterval is used unless WithTiming overrides it.
const defaultSweepInterval = 5 * time.Minute

// RunSweeper sleeps a random jitter in [0, sweepInterval) (so replicas do
// not sweep in lockstep), then calls registry.SweepStale every
// sweepInterval. A sweep failure is logged and ends the loop: an
// orchestrator is expected to restart the process.
func (h *Handler) RunSweeper(ctx context.Context) error {
	jitter := time.Duration(rand.Int63n(int64(h.sweepInterval))) //nolint:gosec

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
	}

	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := h.reg.SweepStale(ctx); err != nil {
				h.log.WithError(err).Warn("sweep_stale failed, stopping sweeper")
				return err
			}
		}
	}
}
