package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/podflow/component"
	"github.com/kbukum/podflow/config"
	"github.com/kbukum/podflow/logger"
)

type testConfig struct {
	config.ServiceConfig
}

type mockComponent struct {
	name     string
	startErr error
	stopErr  error
	health   component.Health
	desc     *component.Description
	routes   []component.Route
	started  bool
	stopped  bool
	order    *[]string
}

func (m *mockComponent) Name() string { return m.name }
func (m *mockComponent) Start(context.Context) error {
	m.started = true
	if m.order != nil {
		*m.order = append(*m.order, "start:"+m.name)
	}
	return m.startErr
}
func (m *mockComponent) Stop(context.Context) error {
	m.stopped = true
	if m.order != nil {
		*m.order = append(*m.order, "stop:"+m.name)
	}
	return m.stopErr
}
func (m *mockComponent) Health(context.Context) component.Health {
	if m.health.Name == "" {
		return component.Health{Name: m.name, Status: component.StatusHealthy}
	}
	return m.health
}

type describedComponent struct{ *mockComponent }

func (d describedComponent) Describe() component.Description { return *d.desc }
func (d describedComponent) Routes() []component.Route      { return d.routes }

func newTestApp(t *testing.T, opts ...Option) *App[*testConfig] {
	t.Helper()
	cfg := &testConfig{ServiceConfig: config.ServiceConfig{Name: "test-svc", Version: "1.0.0"}}
	opts = append([]Option{WithLogger(logger.Nop()), WithSummaryWriter(io.Discard)}, opts...)
	app, err := NewApp(cfg, opts...)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return app
}

func TestNewApp(t *testing.T) {
	app := newTestApp(t, WithGracefulTimeout(30*time.Second))
	if app.Name != "test-svc" || app.Version != "1.0.0" {
		t.Errorf("unexpected identity %s %s", app.Name, app.Version)
	}
	if app.Cfg.Environment != "development" {
		t.Errorf("defaults not applied: environment %q", app.Cfg.Environment)
	}
	if app.gracefulTimeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", app.gracefulTimeout)
	}
	if app.Components == nil || app.Summary == nil {
		t.Error("expected registry and summary")
	}
}

func TestNewAppValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ServiceConfig
	}{
		{"missing name", config.ServiceConfig{}},
		{"bad environment", config.ServiceConfig{Name: "x", Environment: "qa"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewApp(&testConfig{ServiceConfig: tc.cfg}, WithLogger(logger.Nop())); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRegisterComponentDuplicate(t *testing.T) {
	app := newTestApp(t)
	if err := app.RegisterComponent(&mockComponent{name: "engine"}); err != nil {
		t.Fatal(err)
	}
	if err := app.RegisterComponent(&mockComponent{name: "engine"}); err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestRunTaskLifecycle(t *testing.T) {
	app := newTestApp(t)
	var order []string
	a := &mockComponent{name: "a", order: &order}
	b := &mockComponent{name: "b", order: &order}
	_ = app.RegisterComponent(a)
	_ = app.RegisterComponent(b)

	app.OnStart(func(context.Context) error { order = append(order, "onStart"); return nil })
	app.OnConfigure(func(_ context.Context, got *App[*testConfig]) error {
		if got != app {
			t.Error("configure received another app")
		}
		order = append(order, "configure")
		return nil
	})
	app.OnReady(func(context.Context) error { order = append(order, "onReady"); return nil })
	app.OnStop(func(context.Context) error { order = append(order, "onStop"); return nil })

	err := app.RunTask(context.Background(), func(context.Context) error {
		order = append(order, "task")
		return nil
	})
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	want := "start:a,start:b,onStart,configure,onReady,task,onStop,stop:b,stop:a"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order\n got %s\nwant %s", got, want)
	}
}

func TestRunTaskErrors(t *testing.T) {
	taskErr := errors.New("task failed")
	stopErr := errors.New("stop failed")
	tests := []struct {
		name    string
		comp    *mockComponent
		task    error
		wantErr error
	}{
		{"task error wins", &mockComponent{name: "c", stopErr: stopErr}, taskErr, taskErr},
		{"stop error surfaces", &mockComponent{name: "c", stopErr: stopErr}, nil, stopErr},
		{"clean", &mockComponent{name: "c"}, nil, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t)
			_ = app.RegisterComponent(tc.comp)
			err := app.RunTask(context.Background(), func(context.Context) error { return tc.task })
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("got %v, want %v", err, tc.wantErr)
			}
			if !tc.comp.stopped {
				t.Error("component not stopped")
			}
		})
	}
}

func TestStartupFailureUnwindsStartedComponents(t *testing.T) {
	app := newTestApp(t)
	first := &mockComponent{name: "first"}
	broken := &mockComponent{name: "broken", startErr: errors.New("no listener")}
	_ = app.RegisterComponent(first)
	_ = app.RegisterComponent(broken)

	ran := false
	err := app.RunTask(context.Background(), func(context.Context) error { ran = true; return nil })
	if err == nil || !strings.Contains(err.Error(), "no listener") {
		t.Fatalf("expected start error, got %v", err)
	}
	if ran {
		t.Error("task ran despite failed startup")
	}
	if !first.stopped {
		t.Error("started component was not stopped")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	app := newTestApp(t)
	c := &mockComponent{name: "c"}
	_ = app.RegisterComponent(c)

	ctx, cancel := context.WithCancel(context.Background())
	app.OnReady(func(context.Context) error { cancel(); return nil })
	if err := app.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !c.stopped {
		t.Error("component not stopped after cancel")
	}
}

func TestReadyCheck(t *testing.T) {
	app := newTestApp(t)
	_ = app.RegisterComponent(&mockComponent{name: "ok"})
	if err := app.ReadyCheck(context.Background()); err != nil {
		t.Fatalf("healthy app: %v", err)
	}
	_ = app.RegisterComponent(&mockComponent{
		name:   "redis",
		health: component.Health{Name: "redis", Status: component.StatusUnhealthy, Message: "connection refused"},
	})
	err := app.ReadyCheck(context.Background())
	if err == nil || !strings.Contains(err.Error(), "redis=unhealthy(connection refused)") {
		t.Errorf("unexpected ready error %v", err)
	}
}

func TestSummaryRender(t *testing.T) {
	var buf bytes.Buffer
	app := newTestApp(t, WithSummaryWriter(&buf))
	_ = app.RegisterComponent(describedComponent{&mockComponent{
		name:   "http-server",
		desc:   &component.Description{Type: "server", Details: "0.0.0.0", Port: 8080},
		routes: []component.Route{{Method: "GET", Path: "/api/v1/graph", Handler: "api.GetGraph"}},
	}})
	_ = app.RegisterComponent(&mockComponent{
		name:   "redis",
		health: component.Health{Name: "redis", Status: component.StatusDegraded, Message: "mirror lagging"},
	})

	if err := app.RunTask(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"test-svc v1.0.0 started",
		"[server] http-server: 0.0.0.0 (:8080)",
		"Routes (1)",
		"/api/v1/graph → api.GetGraph",
		"redis (degraded): mirror lagging",
		"(1/2 healthy)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if healthy, total := app.Summary.Healthy(); healthy != 1 || total != 2 {
		t.Errorf("Healthy() = %d/%d", healthy, total)
	}
}
