package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/podflow/dag"
	"github.com/kbukum/podflow/engine"
	"github.com/kbukum/podflow/logger"
	"github.com/kbukum/podflow/status"
)

func testConfig() engine.Config {
	return engine.Config{
		PollInterval:     5 * time.Millisecond,
		QueueDelay:       time.Millisecond,
		InitDelay:        time.Millisecond,
		ProgressStep:     25,
		ProgressInterval: time.Millisecond,
	}
}

type fakeResults map[string]*engine.Result

func (f fakeResults) Load(_ context.Context, job string) (*engine.Result, error) {
	return f[job], nil
}

type testAPI struct {
	t      *testing.T
	orch   *engine.Orchestrator
	router *gin.Engine
}

func newTestAPI(t *testing.T, opts ...engine.Option) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	opts = append([]engine.Option{engine.WithLogger(logger.Nop())}, opts...)
	orch, err := engine.New(testConfig(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(orch, WithLogger(logger.Nop()), WithResults(fakeResults{
		"JOB-ARCHIVED": {JobID: "JOB-ARCHIVED", Outcome: engine.OutcomeFailed},
	}))
	r := gin.New()
	h.RegisterRoutes(r.Group(Prefix))
	return &testAPI{t: t, orch: orch, router: r}
}

// do sends a request and decodes the data envelope into out when given.
func (a *testAPI) do(method, path string, body any, out any) *httptest.ResponseRecorder {
	a.t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			a.t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, Prefix+path, rd)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	if out != nil && rr.Code < 300 {
		env := struct {
			Data json.RawMessage `json:"data"`
		}{}
		if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
			a.t.Fatalf("%s %s: decoding %q: %v", method, path, rr.Body.String(), err)
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			a.t.Fatalf("%s %s: decoding data: %v", method, path, err)
		}
	}
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", rr.Body.String(), err)
	}
	return body.Error.Code
}

func (a *testAPI) wait() *engine.Result {
	a.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := a.orch.Wait(ctx)
	if err != nil {
		a.t.Fatalf("Wait: %v", err)
	}
	return res
}

func TestGraphEditing(t *testing.T) {
	a := newTestAPI(t)

	var g struct {
		Nodes []dag.Node `json:"nodes"`
		Edges []dag.Edge `json:"edges"`
	}
	if rr := a.do("GET", "/graph", nil, &g); rr.Code != http.StatusOK || len(g.Nodes) != 6 {
		t.Fatalf("GET /graph: %d with %d nodes", rr.Code, len(g.Nodes))
	}

	var n dag.Node
	rr := a.do("POST", "/nodes", AddNodeRequest{ID: "node-extra", Type: dag.TypeDrift}, &n)
	if rr.Code != http.StatusCreated || n.ID != "node-extra" || n.Label == "" {
		t.Fatalf("POST /nodes: %d %+v", rr.Code, n)
	}

	var e dag.Edge
	if rr := a.do("POST", "/edges", AddEdgeRequest{Source: "node-serving", Target: "node-extra"}, &e); rr.Code != http.StatusCreated {
		t.Fatalf("POST /edges: %d %s", rr.Code, rr.Body.String())
	}

	var up UpstreamView
	if rr := a.do("GET", "/nodes/node-extra/upstream", nil, &up); rr.Code != http.StatusOK || up.OutputPath != dag.ServingEndpoint {
		t.Fatalf("upstream: %d %+v", rr.Code, up)
	}

	label := "Extra Drift"
	var updated dag.Node
	if rr := a.do("PATCH", "/nodes/node-extra", dag.NodeUpdate{Label: &label}, &updated); rr.Code != http.StatusOK || updated.Label != label {
		t.Fatalf("PATCH: %d %+v", rr.Code, updated)
	}

	if rr := a.do("DELETE", "/edges/"+e.ID, nil, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("DELETE edge: %d", rr.Code)
	}
	if rr := a.do("DELETE", "/nodes/node-extra", nil, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("DELETE node: %d", rr.Code)
	}
	if rr := a.do("DELETE", "/nodes/node-extra", nil, nil); rr.Code != http.StatusNotFound {
		t.Errorf("second DELETE: %d", rr.Code)
	}
}

func TestRequestErrors(t *testing.T) {
	a := newTestAPI(t)
	if _, err := a.orch.AddEdge(dag.EdgeDef{Source: "node-analysis", Target: "node-serving"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown node type", "POST", "/nodes", AddNodeRequest{Type: "quantum"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"malformed json", "POST", "/nodes", "{", http.StatusBadRequest, "INVALID_INPUT"},
		{"edge without target", "POST", "/edges", AddEdgeRequest{Source: "node-prep"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"ambiguous upstream", "GET", "/nodes/node-serving/upstream", nil, http.StatusUnprocessableEntity, "AMBIGUOUS_UPSTREAM"},
		{"unknown run", "GET", "/runs/JOB-NOPE", nil, http.StatusNotFound, "NOT_FOUND"},
		{"cancel while idle", "POST", "/runs/current/cancel", nil, http.StatusConflict, "CONFLICT"},
		{"abort while idle", "POST", "/nodes/node-prep/abort", nil, http.StatusConflict, "CONFLICT"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := a.do(tc.method, tc.path, tc.body, nil)
			if rr.Code != tc.status {
				t.Fatalf("status %d, want %d (%s)", rr.Code, tc.status, rr.Body.String())
			}
			if got := errorCode(t, rr); got != tc.code {
				t.Errorf("code %q, want %q", got, tc.code)
			}
		})
	}
}

func TestRunLifecycle(t *testing.T) {
	a := newTestAPI(t)

	var info engine.RunInfo
	if rr := a.do("POST", "/runs", StartRunRequest{Name: "nightly"}, &info); rr.Code != http.StatusAccepted || info.JobName != "nightly" {
		t.Fatalf("POST /runs: %d %+v", rr.Code, info)
	}
	res := a.wait()
	if res.Outcome != engine.OutcomeSucceeded {
		t.Fatalf("outcome %s (%s)", res.Outcome, res.Reason)
	}

	var cur CurrentRun
	a.do("GET", "/runs/current", nil, &cur)
	if cur.Running || cur.Last == nil || cur.Last.JobID != info.JobID {
		t.Errorf("unexpected current run %+v", cur)
	}

	var got engine.Result
	if rr := a.do("GET", "/runs/"+info.JobID, nil, &got); rr.Code != http.StatusOK || got.Outcome != engine.OutcomeSucceeded {
		t.Errorf("GET run: %d %+v", rr.Code, got)
	}
	if rr := a.do("GET", "/runs/JOB-ARCHIVED", nil, &got); rr.Code != http.StatusOK || got.Outcome != engine.OutcomeFailed {
		t.Errorf("GET archived run: %d %+v", rr.Code, got)
	}

	var entries map[string]status.Entry
	a.do("GET", "/status", nil, &entries)
	for id, e := range entries {
		if e.Status != status.Completed || e.Progress != 100 {
			t.Errorf("%s: %s at %d", id, e.Status, e.Progress)
		}
	}
}

func TestRunInProgressIsRefused(t *testing.T) {
	block := engine.RunnerFunc(func(ctx context.Context, _ dag.Node, _ engine.ProgressFunc) error {
		<-ctx.Done()
		return context.Cause(ctx)
	})
	a := newTestAPI(t, engine.WithRunner(block))
	if rr := a.do("POST", "/runs", nil, nil); rr.Code != http.StatusAccepted {
		t.Fatalf("first run: %d", rr.Code)
	}

	tests := []struct {
		method, path string
		body         any
	}{
		{"POST", "/runs", nil},
		{"POST", "/nodes/node-drift/run", nil},
		{"DELETE", "/nodes/node-drift", nil},
		{"PUT", "/graph", `{"nodes":[{"id":"a","type":"prep"}]}`},
		{"POST", "/schedule", map[string]any{"mode": "IMMEDIATE"}},
	}
	for _, tc := range tests {
		rr := a.do(tc.method, tc.path, tc.body, nil)
		if rr.Code != http.StatusConflict || errorCode(t, rr) != "RUN_IN_PROGRESS" {
			t.Errorf("%s %s: %d %s", tc.method, tc.path, rr.Code, rr.Body.String())
		}
	}

	var cur CurrentRun
	a.do("GET", "/runs/current", nil, &cur)
	if !cur.Running || cur.Run == nil {
		t.Fatalf("expected an active run, got %+v", cur)
	}

	if rr := a.do("POST", "/runs/current/cancel", nil, nil); rr.Code != http.StatusAccepted {
		t.Fatalf("cancel: %d", rr.Code)
	}
	if res := a.wait(); res.Outcome != engine.OutcomeCancelled {
		t.Errorf("outcome %s", res.Outcome)
	}
}

func TestSchedule(t *testing.T) {
	tests := []struct {
		name          string
		body          map[string]any
		wantStatus    int
		wantScheduled bool
	}{
		{"immediate starts a run", map[string]any{"mode": "IMMEDIATE", "name": "now"}, http.StatusAccepted, false},
		{"recurring is acknowledged", map[string]any{"mode": "RECURRING", "intervalValue": "abc", "intervalUnit": "YEARS"}, http.StatusOK, true},
		{"inactive recurring runs now", map[string]any{"mode": "RECURRING", "isActive": false}, http.StatusAccepted, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := newTestAPI(t)
			var sub struct {
				Scheduled bool            `json:"scheduled"`
				Run       *engine.RunInfo `json:"run"`
			}
			rr := a.do("POST", "/schedule", tc.body, &sub)
			if rr.Code != tc.wantStatus || sub.Scheduled != tc.wantScheduled {
				t.Fatalf("status %d scheduled %v: %s", rr.Code, sub.Scheduled, rr.Body.String())
			}
			if tc.wantScheduled {
				if a.orch.IsRunning() || sub.Run != nil {
					t.Error("a scheduled intent must not start a run")
				}
				return
			}
			if sub.Run == nil {
				t.Fatal("expected run info")
			}
			a.wait()
		})
	}
}

func TestPutGraphYAMLAndSingleNodeRun(t *testing.T) {
	a := newTestAPI(t)
	yamlGraph := strings.Join([]string{
		"nodes:",
		"  - id: a",
		"    type: prep",
		"  - id: b",
		"    type: analysis",
		"edges:",
		"  - source: a",
		"    target: b",
	}, "\n")
	req := httptest.NewRequest("PUT", Prefix+"/graph?format=yaml", strings.NewReader(yamlGraph))
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || a.orch.Graph().Len() != 2 {
		t.Fatalf("PUT yaml: %d %s", rr.Code, rr.Body.String())
	}

	var info engine.RunInfo
	if rr := a.do("POST", "/nodes/b/run", nil, &info); rr.Code != http.StatusAccepted || info.Node != "b" {
		t.Fatalf("run node: %d %+v", rr.Code, info)
	}
	a.wait()
	snap := a.orch.Status()
	if snap.Status("b") != status.Completed || snap.Status("a") != status.Idle {
		t.Errorf("a=%s b=%s", snap.Status("a"), snap.Status("b"))
	}
}

func TestCatalogs(t *testing.T) {
	a := newTestAPI(t)
	var presets []dag.Resource
	if a.do("GET", "/presets", nil, &presets); len(presets) != len(dag.Presets()) {
		t.Errorf("presets %d", len(presets))
	}
	var templates []string
	if a.do("GET", "/templates", nil, &templates); len(templates) == 0 || templates[0] != dag.DefaultTemplate {
		t.Errorf("templates %v", templates)
	}
}
