package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kbukum/podflow/bootstrap"
	"github.com/kbukum/podflow/engine"
	"github.com/kbukum/podflow/logger"
	"github.com/kbukum/podflow/status"
)

const fastConfig = `
name: podflow-test
logging:
  level: error
engine:
  poll_interval: 5ms
  queue_delay: 1ms
  init_delay: 1ms
  progress_step: 25
  progress_interval: 1ms
`

const chainGraph = `
nodes:
  - id: a
    type: prep
  - id: b
    type: analysis
edges:
  - source: a
    target: b
`

const cyclicGraph = `
nodes:
  - id: a
    type: prep
  - id: b
    type: analysis
edges:
  - source: a
    target: b
  - source: b
    target: a
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr string
	}{
		{"chain file", []string{"validate", writeFile(t, "chain.yaml", chainGraph)}, "level 1: b", ""},
		{"template name", []string{"validate", "--graph", "ml-default"}, "Graph is valid", ""},
		{"cycle", []string{"validate", writeFile(t, "cycle.yaml", cyclicGraph)}, "", "validation failed"},
		{"missing graph", []string{"validate"}, "", "required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := execute(t, tc.args...)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if !strings.Contains(out, tc.want) {
				t.Errorf("output missing %q:\n%s", tc.want, out)
			}
		})
	}
}

func TestRunCommand(t *testing.T) {
	cfgPath := writeFile(t, "config.yml", fastConfig)
	graphPath := writeFile(t, "chain.yaml", chainGraph)

	tests := []struct {
		name     string
		extra    []string
		outcome  string
		exitCode int
	}{
		{"succeeds", nil, "SUCCEEDED", 0},
		{"injected failure", []string{"--fail", "b=50"}, "FAILED", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"run", "--config", cfgPath, "--graph", graphPath, "--name", "nightly"}, tc.extra...)
			out, err := execute(t, args...)

			var exit *exitError
			switch {
			case tc.exitCode == 0 && err != nil:
				t.Fatalf("run: %v", err)
			case tc.exitCode != 0 && (!errors.As(err, &exit) || exit.code != tc.exitCode):
				t.Fatalf("expected exit code %d, got %v", tc.exitCode, err)
			}
			if !strings.Contains(out, "nightly: "+tc.outcome) {
				t.Errorf("output missing outcome %s:\n%s", tc.outcome, out)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) == "" {
		t.Error("expected version output")
	}
}

func TestPrintResult(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	res := &engine.Result{
		JobID:      "JOB-00001",
		JobName:    "Job-2026-01-02",
		Outcome:    engine.OutcomeFailed,
		Reason:     "upstream failure blocks remaining nodes",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Nodes: map[string]engine.NodeResult{
			"serve": {ID: "serve", Type: "serving", Status: status.Idle},
			"train": {ID: "train", Type: "analysis", Status: status.Failed, Progress: 40, Error: "boom", Launched: true, Started: start.Add(time.Second)},
			"prep":  {ID: "prep", Type: "prep", Status: status.Completed, Progress: 100, Launched: true, Started: start},
		},
		Blocked: map[string][]string{"serve": {"e-train-serve"}},
	}
	var buf bytes.Buffer
	if err := printResult(&buf, res, false); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "JOB-00001 Job-2026-01-02: FAILED in 1.5s") {
		t.Errorf("unexpected header %q", lines[0])
	}
	for i, prefix := range []string{"prep", "train", "serve"} {
		if !strings.HasPrefix(lines[3+i], prefix) {
			t.Errorf("line %d = %q, want node %s", 3+i, lines[3+i], prefix)
		}
	}
	if !strings.Contains(lines[5], "blocked by e-train-serve") {
		t.Errorf("blocked detail missing: %q", lines[5])
	}
}

func TestServeAppComponents(t *testing.T) {
	mini := miniredis.RunT(t)
	tests := []struct {
		name  string
		redis bool
		want  []string
	}{
		{"without redis", false, []string{"engine", "sse", "http-server"}},
		{"with redis", true, []string{"engine", "sse", "redis", "http-server"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Redis.Enabled = tc.redis
			cfg.Redis.Addr = mini.Addr()
			app, err := newServeApp(context.Background(), cfg, bootstrap.WithLogger(logger.Nop()))
			if err != nil {
				t.Fatalf("newServeApp: %v", err)
			}
			var names []string
			for _, c := range app.Components.All() {
				names = append(names, c.Name())
			}
			if strings.Join(names, ",") != strings.Join(tc.want, ",") {
				t.Errorf("components %v, want %v", names, tc.want)
			}
		})
	}
}

func TestRunCommandWithScripts(t *testing.T) {
	dir := t.TempDir()
	script := "#!/bin/sh\necho \"PROGRESS 50\"\necho \"PROGRESS 100\"\n"
	if err := os.WriteFile(filepath.Join(dir, "step.sh"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	cfgPath := writeFile(t, "config.yml", fastConfig+"scripts:\n  enabled: true\n  dir: "+dir+"\n")
	graphPath := writeFile(t, "graph.yaml", `
nodes:
  - id: a
    type: prep
    config:
      script_name: step.sh
  - id: b
    type: analysis
    config:
      script_name: missing.sh
edges:
  - source: a
    target: b
`)
	out, err := execute(t, "run", "--config", cfgPath, "--graph", graphPath, "--json")
	var exit *exitError
	if !errors.As(err, &exit) || exit.code != 1 {
		t.Fatalf("expected exit code 1, got %v", err)
	}
	var res engine.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode result: %v\n%s", err, out)
	}
	if res.Nodes["a"].Status != status.Completed || res.Nodes["b"].Status != status.Failed {
		t.Errorf("unexpected node results %+v", res.Nodes)
	}
}
