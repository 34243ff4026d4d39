package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/kbukum/podflow/dag"
)

// ProgressFunc records a progress value for the running node. It returns an
// error once the node may no longer write, and the runner should stop.
type ProgressFunc func(progress int) error

// Runner performs a node's PROCESSING phase.
type Runner interface {
	Run(ctx context.Context, node dag.Node, report ProgressFunc) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, node dag.Node, report ProgressFunc) error

func (f RunnerFunc) Run(ctx context.Context, node dag.Node, report ProgressFunc) error {
	return f(ctx, node, report)
}

// SimulatedRunner reports 0, then advances progress by Step every Interval
// until 100.
type SimulatedRunner struct {
	Step     int
	Interval time.Duration
	// FailAt makes a node fail instead of reporting the given progress.
	// Read-only once a run has started.
	FailAt map[string]int
}

// NewSimulatedRunner returns a runner paced by cfg.
func NewSimulatedRunner(cfg Config) *SimulatedRunner {
	return &SimulatedRunner{Step: cfg.ProgressStep, Interval: cfg.ProgressInterval}
}

func (r *SimulatedRunner) Run(ctx context.Context, node dag.Node, report ProgressFunc) error {
	step := r.Step
	if step <= 0 {
		step = DefaultProgressStep
	}
	failAt, fails := r.FailAt[node.ID]

	// 0 is reported before the first dwell, then one report per step.
	for p := 0; ; p += step {
		if p > 100 {
			p = 100
		}
		if p > 0 {
			if err := sleep(ctx, r.Interval); err != nil {
				return err
			}
		}
		if fails && p >= failAt {
			return fmt.Errorf("simulated failure at %d%%", p)
		}
		if err := report(p); err != nil {
			return err
		}
		if p == 100 {
			return nil
		}
	}
}

// sleep waits d or until ctx ends, returning the context's cause.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
