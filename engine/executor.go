package engine

import (
	"context"
	"errors"
	"time"

	"github.com/kbukum/podflow/dag"
	"github.com/kbukum/podflow/logger"
	"github.com/kbukum/podflow/observability"
	"github.com/kbukum/podflow/status"
)

// Executor drives one node through its lifecycle. It writes only through
// the Writer it is handed and always leaves the node terminal.
type Executor struct {
	cfg     Config
	runner  Runner
	log     *logger.Logger
	metrics *observability.Metrics
}

// NewExecutor returns an executor using runner for the PROCESSING phase.
func NewExecutor(cfg Config, runner Runner, log *logger.Logger, metrics *observability.Metrics) *Executor {
	if log == nil {
		log = logger.Nop()
	}
	return &Executor{cfg: cfg, runner: runner, log: log, metrics: metrics}
}

// Execute runs node to a terminal status and returns what happened.
//
// Cancelling ctx ends the node CANCELLED unless the cause is ErrAborted or
// ErrExecutorTimeout, which end it FAILED.
func (x *Executor) Execute(ctx context.Context, node dag.Node, w *status.Writer) NodeResult {
	defer w.Release()

	start := time.Now()
	if x.cfg.ExecutorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, x.cfg.ExecutorTimeout, ErrExecutorTimeout)
		defer cancel()
	}
	if x.metrics != nil {
		x.metrics.NodeStarted(ctx, string(node.Type))
	}

	res := NodeResult{ID: node.ID, Type: string(node.Type), Launched: true, Started: start}
	err := x.drive(ctx, node, w)
	switch {
	case err == nil:
		res.Status = status.Completed
	case ctx.Err() != nil && !isFailureCause(context.Cause(ctx)):
		err = context.Cause(ctx)
		res.Status = status.Cancelled
		if werr := w.Cancel(err); werr != nil {
			x.log.Warn("recording cancellation failed", logger.ErrorFields("cancel", werr))
		}
	default:
		if ctx.Err() != nil {
			err = context.Cause(ctx)
		}
		res.Status = status.Failed
		if werr := w.Fail(err); werr != nil {
			x.log.Warn("recording failure failed", logger.ErrorFields("fail", werr))
		}
	}
	if err != nil {
		res.Error = err.Error()
	}
	if e, ok := w.Entry(); ok {
		res.Progress = e.Progress
	}
	res.Duration = time.Since(start)

	if x.metrics != nil {
		x.metrics.NodeFinished(context.WithoutCancel(ctx), string(node.Type), string(res.Status), res.Duration)
	}
	fields := logger.MergeWithDuration(logger.Fields(
		logger.FieldNodeID, node.ID,
		logger.FieldStatus, string(res.Status),
	), res.Duration)
	switch res.Status {
	case status.Completed:
		x.log.Info("node finished", fields)
	case status.Cancelled:
		fields[logger.FieldError] = res.Error
		x.log.Warn("node cancelled", fields)
	default:
		fields[logger.FieldError] = res.Error
		x.log.Error("node failed", fields)
	}
	return res
}

func (x *Executor) drive(ctx context.Context, node dag.Node, w *status.Writer) error {
	if err := w.Transition(status.Queued); err != nil {
		return err
	}
	if err := sleep(ctx, x.cfg.QueueDelay); err != nil {
		return err
	}
	if err := w.Transition(status.Initializing); err != nil {
		return err
	}
	if err := sleep(ctx, x.cfg.InitDelay); err != nil {
		return err
	}
	if err := w.Transition(status.Processing); err != nil {
		return err
	}

	last := 0
	report := func(p int) error {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if err := w.Progress(p); err != nil {
			return err
		}
		last = p
		return nil
	}
	if err := x.runner.Run(ctx, node, report); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if last < 100 {
		if err := w.Progress(100); err != nil {
			return err
		}
	}
	return w.Transition(status.Completed)
}

func isFailureCause(cause error) bool {
	return errors.Is(cause, ErrAborted) || errors.Is(cause, ErrExecutorTimeout)
}
