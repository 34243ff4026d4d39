package engine

import (
	"context"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/podflow/dag"
	"github.com/kbukum/podflow/logger"
	"github.com/kbukum/podflow/observability"
)

func TestWithTracingRecordsNodeSpan(t *testing.T) {
	prev := otel.GetTracerProvider()
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	failing := RunnerFunc(func(context.Context, dag.Node, ProgressFunc) error {
		return fmt.Errorf("boom")
	})
	r := WithLogging(WithTracing(failing), logger.Nop())

	err := r.Run(context.Background(), dag.Node{ID: "n1", Type: dag.TypeDrift}, func(int) error { return nil })
	if err == nil {
		t.Fatal("expected the runner error to pass through")
	}

	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != observability.SpanNode {
		t.Fatalf("expected one %s span, got %d", observability.SpanNode, len(spans))
	}
	span := spans[0]
	if span.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", span.Status())
	}
	want := attribute.String(observability.AttrNodeID, "n1")
	found := false
	for _, kv := range span.Attributes() {
		if kv == want {
			found = true
		}
	}
	if !found {
		t.Errorf("missing %v in %v", want, span.Attributes())
	}
}

func TestSimulatedRunnerSteps(t *testing.T) {
	tests := []struct {
		name   string
		step   int
		failAt int
		want   []int
		fails  bool
	}{
		{"tens", 10, 0, []int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, false},
		{"uneven step clamps to 100", 40, 0, []int{0, 40, 80, 100}, false},
		{"failure injection", 25, 75, []int{0, 25, 50}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &SimulatedRunner{Step: tc.step}
			if tc.failAt > 0 {
				r.FailAt = map[string]int{"n": tc.failAt}
			}
			var got []int
			err := r.Run(context.Background(), dag.Node{ID: "n"}, func(p int) error {
				got = append(got, p)
				return nil
			})
			if (err != nil) != tc.fails {
				t.Fatalf("err = %v, fails = %v", err, tc.fails)
			}
			if fmt.Sprint(got) != fmt.Sprint(tc.want) {
				t.Errorf("reported %v, want %v", got, tc.want)
			}
		})
	}
}
