package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/podflow/dag"
	"github.com/kbukum/podflow/logger"
	"github.com/kbukum/podflow/observability"
)

// WithTracing wraps r so every PROCESSING phase runs inside a span.
func WithTracing(r Runner) Runner {
	return RunnerFunc(func(ctx context.Context, node dag.Node, report ProgressFunc) error {
		ctx, span := observability.StartSpan(ctx, observability.SpanNode,
			trace.WithAttributes(
				attribute.String(observability.AttrNodeID, node.ID),
				attribute.String(observability.AttrNodeType, string(node.Type)),
			))
		defer span.End()

		err := r.Run(ctx, node, report)
		if err != nil {
			observability.SetSpanError(ctx, err)
		}
		return err
	})
}

// WithLogging wraps r with debug logs around each PROCESSING phase.
func WithLogging(r Runner, log *logger.Logger) Runner {
	return RunnerFunc(func(ctx context.Context, node dag.Node, report ProgressFunc) error {
		fields := logger.Fields(logger.FieldNodeID, node.ID, logger.FieldNodeType, string(node.Type))
		log.Debug("processing started", fields)

		start := time.Now()
		err := r.Run(ctx, node, report)
		if err != nil {
			log.Debug("processing stopped", logger.MergeWithDuration(
				logger.Fields(logger.FieldNodeID, node.ID, logger.FieldError, err.Error()), time.Since(start)))
			return err
		}
		log.Debug("processing finished", logger.MergeWithDuration(fields, time.Since(start)))
		return nil
	})
}

// WithMetrics wraps r so runner errors are counted per node type.
func WithMetrics(r Runner, m *observability.Metrics) Runner {
	if m == nil {
		return r
	}
	return RunnerFunc(func(ctx context.Context, node dag.Node, report ProgressFunc) error {
		err := r.Run(ctx, node, report)
		if err != nil && ctx.Err() == nil {
			m.RecordError(context.WithoutCancel(ctx), "runner", string(node.Type))
		}
		return err
	})
}
