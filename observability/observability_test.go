package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Endpoint != "localhost:4318" || cfg.SampleRate != 1.0 || cfg.Interval != 15*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	cfg.SampleRate = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected sample rate error")
	}
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{}, "podflow", "test")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInitEnabled(t *testing.T) {
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	defer func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	}()

	cfg := Config{Enabled: true, Insecure: true}
	cfg.ApplyDefaults()
	shutdown, err := Init(context.Background(), cfg, "podflow", "test")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	// nothing listens on the endpoint, only the call path matters here
	_ = shutdown(ctx)
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, sdktrace.AlwaysSample().Description()},
		{0, sdktrace.NeverSample().Description()},
		{0.5, sdktrace.TraceIDRatioBased(0.5).Description()},
	}
	for _, tc := range tests {
		if got := sampler(tc.rate).Description(); got != tc.want {
			t.Errorf("rate %v: expected %s, got %s", tc.rate, tc.want, got)
		}
	}
}

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestSpanHelpers(t *testing.T) {
	rec := withRecorder(t)

	ctx, span := StartSpan(context.Background(), SpanNode)
	SetSpanAttribute(ctx, AttrNodeID, "node-1")
	SetSpanAttribute(ctx, "progress", 40)
	SetSpanAttribute(ctx, "feedback", true)
	SetSpanError(ctx, errors.New("boom"))
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != SpanNode {
		t.Errorf("expected span %s, got %s", SpanNode, s.Name())
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range s.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs[AttrNodeID].AsString() != "node-1" || attrs["progress"].AsInt64() != 40 || !attrs["feedback"].AsBool() {
		t.Errorf("unexpected attributes: %v", s.Attributes())
	}
	if len(s.Events()) != 1 {
		t.Errorf("expected recorded error event, got %d events", len(s.Events()))
	}
}

func TestSpanHelpersWithoutSpan(t *testing.T) {
	ctx := context.Background()
	SetSpanAttribute(ctx, "k", "v")
	SetSpanError(ctx, errors.New("ignored"))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: expected int64 sum, got %T", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricsRecording(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ctx := context.Background()
	metrics.NodeStarted(ctx, "prep")
	metrics.NodeStarted(ctx, "analysis")
	metrics.NodeFinished(ctx, "prep", "COMPLETED", 2*time.Second)
	metrics.RecordRun(ctx, "SUCCEEDED", 5*time.Second)
	metrics.RecordRequest(ctx, "GET", "/api/v1/graph", 200, 10*time.Millisecond)
	metrics.RecordError(ctx, "runner", "engine")

	got := collect(t, reader)
	if v := sumOf(t, got["podflow.node.active"]); v != 1 {
		t.Errorf("expected 1 active node, got %d", v)
	}
	if v := sumOf(t, got["podflow.node.total"]); v != 1 {
		t.Errorf("expected 1 finished node, got %d", v)
	}
	if v := sumOf(t, got["podflow.run.total"]); v != 1 {
		t.Errorf("expected 1 run, got %d", v)
	}
	if v := sumOf(t, got["podflow.http.request.total"]); v != 1 {
		t.Errorf("expected 1 request, got %d", v)
	}
	if v := sumOf(t, got["podflow.error.total"]); v != 1 {
		t.Errorf("expected 1 error, got %d", v)
	}
	if _, ok := got["podflow.run.duration"].Data.(metricdata.Histogram[float64]); !ok {
		t.Errorf("expected run duration histogram, got %T", got["podflow.run.duration"].Data)
	}
}
