package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/podflow/logger"
)

// InitMeter installs a periodic OTLP/HTTP meter provider as the global one.
func InitMeter(ctx context.Context, cfg Config, service, version string) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(service, version, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"endpoint", cfg.Endpoint,
		"interval", cfg.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics is the podflow instrument set.
type Metrics struct {
	runTotal        metric.Int64Counter
	runDuration     metric.Float64Histogram
	nodeTotal       metric.Int64Counter
	nodeDuration    metric.Float64Histogram
	nodeActive      metric.Int64UpDownCounter
	requestTotal    metric.Int64Counter
	requestDuration metric.Float64Histogram
	errorTotal      metric.Int64Counter
}

// NewMetrics registers the instrument set on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.runTotal, err = meter.Int64Counter("podflow.run.total",
		metric.WithDescription("Finished runs by outcome")); err != nil {
		return nil, fmt.Errorf("creating run.total counter: %w", err)
	}
	if m.runDuration, err = meter.Float64Histogram("podflow.run.duration",
		metric.WithDescription("Run wall-clock duration"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating run.duration histogram: %w", err)
	}
	if m.nodeTotal, err = meter.Int64Counter("podflow.node.total",
		metric.WithDescription("Node executions by terminal status")); err != nil {
		return nil, fmt.Errorf("creating node.total counter: %w", err)
	}
	if m.nodeDuration, err = meter.Float64Histogram("podflow.node.duration",
		metric.WithDescription("Node execution duration"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating node.duration histogram: %w", err)
	}
	if m.nodeActive, err = meter.Int64UpDownCounter("podflow.node.active",
		metric.WithDescription("Executors currently running")); err != nil {
		return nil, fmt.Errorf("creating node.active counter: %w", err)
	}
	if m.requestTotal, err = meter.Int64Counter("podflow.http.request.total",
		metric.WithDescription("HTTP requests by route and status")); err != nil {
		return nil, fmt.Errorf("creating request.total counter: %w", err)
	}
	if m.requestDuration, err = meter.Float64Histogram("podflow.http.request.duration",
		metric.WithDescription("HTTP request duration"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating request.duration histogram: %w", err)
	}
	if m.errorTotal, err = meter.Int64Counter("podflow.error.total",
		metric.WithDescription("Errors by kind and component")); err != nil {
		return nil, fmt.Errorf("creating error.total counter: %w", err)
	}
	return &m, nil
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.runTotal.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, d.Seconds(), attrs)
}

// NodeStarted bumps the active executor gauge.
func (m *Metrics) NodeStarted(ctx context.Context, nodeType string) {
	m.nodeActive.Add(ctx, 1, metric.WithAttributes(attribute.String("node_type", nodeType)))
}

// NodeFinished lowers the active gauge and records the execution.
func (m *Metrics) NodeFinished(ctx context.Context, nodeType, status string, d time.Duration) {
	typ := attribute.String("node_type", nodeType)
	m.nodeActive.Add(ctx, -1, metric.WithAttributes(typ))
	m.nodeTotal.Add(ctx, 1, metric.WithAttributes(typ, attribute.String("status", status)))
	m.nodeDuration.Record(ctx, d.Seconds(), metric.WithAttributes(typ))
}

// RecordRequest records a served HTTP request.
func (m *Metrics) RecordRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
	m.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
	))
}

// RecordError counts an error of kind raised by component.
func (m *Metrics) RecordError(ctx context.Context, kind, component string) {
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("component", component),
	))
}
