package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrComplete is returned by Experiment.Tick when the session has reached a
// limit and should end.
var ErrComplete = errors.New("session complete")

// Experiment is the lifecycle of one behavioral experiment. Setup runs once,
// Tick once per loop iteration, Teardown once at the end even after a
// cancelled run.
type Experiment interface {
	Setup(ctx context.Context) error
	Tick(ctx context.Context) error
	Teardown(ctx context.Context) error
}

// Runner drives an Experiment from a single goroutine on a fixed-rate ticker.
type Runner struct {
	// Interval is the time between ticks.
	Interval time.Duration

	Logger *slog.Logger
}

// NewRunner creates a runner ticking every interval.
func NewRunner(interval time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{Interval: interval, Logger: logger}
}

// Run sets up exp, ticks it until ctx is cancelled or Tick returns
// ErrComplete, then tears it down. Other tick errors are logged and the loop
// continues. Teardown runs with a context that outlives ctx's cancellation
// so recorded data is still persisted.
func (r *Runner) Run(ctx context.Context, exp Experiment) error {
	if r.Interval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", r.Interval)
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := exp.Setup(ctx); err != nil {
		return fmt.Errorf("setting up session: %w", err)
	}

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	ticks := 0
loop:
	for {
		select {
		case <-ctx.Done():
			logger.Info("session interrupted", "ticks", ticks)
			break loop
		case <-ticker.C:
			ticks++
			err := exp.Tick(ctx)
			if errors.Is(err, ErrComplete) {
				logger.Info("session complete", "ticks", ticks)
				break loop
			}
			if err != nil {
				logger.Error("tick failed", "tick", ticks, "error", err)
			}
		}
	}

	if err := exp.Teardown(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("tearing down session: %w", err)
	}
	return nil
}
