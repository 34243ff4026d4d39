package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func jsonLogger(buf *bytes.Buffer, level string) *Logger {
	return NewWithWriter(&Config{Level: level, Format: FormatJSON}, "podflow", buf)
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if strings.Contains(line, "\n") {
		line = line[strings.LastIndex(line, "\n")+1:]
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("invalid json log line %q: %v", line, err)
	}
	return m
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf, "debug")

	log.Info("node launched", Fields(FieldNodeID, "node-3", FieldJobID, "JOB-ABCDEF12"))

	m := decodeLine(t, &buf)
	if m["message"] != "node launched" {
		t.Errorf("expected message, got %v", m["message"])
	}
	if m[FieldNodeID] != "node-3" || m[FieldJobID] != "JOB-ABCDEF12" {
		t.Errorf("missing fields: %v", m)
	}
	if m["service"] != "podflow" {
		t.Errorf("expected service tag, got %v", m["service"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf, "warn")

	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	log.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("expected warn output, got %q", buf.String())
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf, "loud")

	log.Debug("hidden")
	log.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestWithComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf, "info").WithComponent("engine").WithFields(map[string]interface{}{FieldRunID: "r1"})

	log.Info("tick")

	m := decodeLine(t, &buf)
	if m[FieldComponent] != "engine" || m[FieldRunID] != "r1" {
		t.Errorf("unexpected fields: %v", m)
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	jsonLogger(&buf, "info").WithError(errors.New("boom")).Error("failed")

	m := decodeLine(t, &buf)
	if m["error"] != "boom" {
		t.Errorf("expected error field, got %v", m["error"])
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := ContextWithRunID(t.Context(), "run-7")
	ctx = ContextWithRequestID(ctx, "req-9")

	jsonLogger(&buf, "info").WithContext(ctx).Info("ctx")

	m := decodeLine(t, &buf)
	if m[FieldRunID] != "run-7" || m[FieldRequestID] != "req-9" {
		t.Errorf("unexpected context fields: %v", m)
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&Config{Level: "info", Format: FormatConsole, NoColor: true}, "podflow", &buf)

	log.Info("hello", Fields(FieldNodeID, "node-1"))

	out := buf.String()
	for _, want := range []string{"[POD][INF]", "hello", "node_id:"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}

func TestInitAndGlobal(t *testing.T) {
	prev := globalLogger
	defer SetGlobalLogger(prev)

	Init(&Config{ServiceName: "podflow-test"})
	if GetGlobalLogger() == nil {
		t.Fatal("expected global logger after Init")
	}
	if GetGlobalLogger().service != "podflow-test" {
		t.Errorf("expected service podflow-test, got %s", GetGlobalLogger().service)
	}

	var buf bytes.Buffer
	SetGlobalLogger(jsonLogger(&buf, "debug"))
	Debug("d")
	Info("i")
	Warn("w")
	Error("e")
	if lines := strings.Count(buf.String(), "\n"); lines != 4 {
		t.Errorf("expected 4 lines, got %d: %q", lines, buf.String())
	}
}

func TestGlobalDefault(t *testing.T) {
	prev := globalLogger
	defer SetGlobalLogger(prev)

	globalLogger = nil
	if GetGlobalLogger() == nil {
		t.Fatal("expected default global logger")
	}
}

func TestConfig(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	if cfg.Level != "info" || cfg.Format != "console" || cfg.Output != "stdout" || !cfg.Timestamp {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad level", Config{Level: "verbose", Format: "json", Output: "stdout"}},
		{"bad format", Config{Level: "info", Format: "xml", Output: "stdout"}},
		{"bad output", Config{Level: "info", Format: "json", Output: "file"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, "info")
	Register("test-registry", l)
	if Get("test-registry") != l {
		t.Error("expected registered logger")
	}
	if Get("test-unregistered") == nil {
		t.Error("expected fallback logger")
	}

	RegisterDefaults("test-default-a")
	if Get("test-default-a") == nil {
		t.Error("expected default registration")
	}
}

func TestFieldHelpers(t *testing.T) {
	f := Fields("a", 1, "b", "two", 3, "skipped", "dangling")
	if len(f) != 2 || f["a"] != 1 || f["b"] != "two" {
		t.Errorf("unexpected fields: %v", f)
	}

	ef := ErrorFields("launch", errors.New("nope"))
	if ef[FieldOperation] != "launch" || ef[FieldError] != "nope" {
		t.Errorf("unexpected error fields: %v", ef)
	}

	df := MergeWithDuration(nil, 1500*time.Millisecond)
	if df[FieldDuration] != int64(1500) {
		t.Errorf("expected 1500ms, got %v", df[FieldDuration])
	}
}

func TestNop(t *testing.T) {
	Nop().Info("nothing")
}
