package orchestrator

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler wakes the runner on a fixed tick; the runner itself
// decides which webcams are due based on their probe frequency.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a scheduler that checks for due webcams every
// interval. Zero means one minute.
func NewScheduler(runner *Runner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   slog.Default().With("component", "scheduler"),
	}
}

// Run blocks until the context is canceled, probing due webcams on
// each tick. The first pass runs immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.runner.RunDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("Probe pass failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.runner.RunDue(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("Probe pass failed", "error", err)
			}
		}
	}
}
