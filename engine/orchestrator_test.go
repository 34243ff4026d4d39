package engine

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/kbukum/podflow/dag"
	"github.com/kbukum/podflow/logger"
	"github.com/kbukum/podflow/status"
)

func newOrchestrator(t *testing.T, cfg Config, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithLogger(logger.Nop())}, opts...)
	o, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func waitResult(t *testing.T, o *Orchestrator) *Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := o.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return res
}

// waitFor polls until cond holds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestOrchestratorRunsDefaultPipeline(t *testing.T) {
	o := newOrchestrator(t, fastConfig())
	events, unsubscribe := o.Subscribe(4096)
	defer unsubscribe()

	info, err := o.StartRun(context.Background(), "")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if info.JobName != DefaultJobName(info.StartedAt) {
		t.Errorf("unexpected job name %q", info.JobName)
	}

	// The reset precedes everything else.
	for i := 0; i < o.Graph().Len(); i++ {
		ev := <-events
		if !ev.Reset || ev.Entry.Status != status.Idle {
			t.Fatalf("expected reset event, got %+v", ev)
		}
	}

	res := waitResult(t, o)
	if res.Outcome != OutcomeSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s (%s)", res.Outcome, res.Reason)
	}
	if res.JobID != info.JobID {
		t.Errorf("result job %s, started %s", res.JobID, info.JobID)
	}
	if o.IsRunning() {
		t.Error("expected no active run")
	}
	if last, ok := o.LastResult(); !ok || last != res {
		t.Error("LastResult should return the finished run")
	}
}

func TestOrchestratorSingleActiveRun(t *testing.T) {
	o := newOrchestrator(t, fastConfig(), WithRunner(stuckRunner))
	if _, err := o.StartRun(context.Background(), "first"); err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	if _, err := o.StartRun(context.Background(), "second"); !stderrors.Is(err, ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}
	if _, err := o.RunNode(context.Background(), "node-serving"); !stderrors.Is(err, ErrRunInProgress) {
		t.Errorf("RunNode: expected ErrRunInProgress, got %v", err)
	}
	if err := o.RemoveNode("node-drift"); !stderrors.Is(err, ErrRunInProgress) {
		t.Errorf("RemoveNode: expected ErrRunInProgress, got %v", err)
	}
	if _, err := o.ReplaceGraph(dag.DefaultPipeline()); !stderrors.Is(err, ErrRunInProgress) {
		t.Errorf("ReplaceGraph: expected ErrRunInProgress, got %v", err)
	}

	if err := o.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	res := waitResult(t, o)
	if res.Outcome != OutcomeCancelled {
		t.Fatalf("expected CANCELLED, got %s", res.Outcome)
	}
	if active := o.Store().Active(); len(active) != 0 {
		t.Errorf("executors still hold claims: %v", active)
	}
	for id, e := range o.Status().Entries {
		if e.Status.Active() {
			t.Errorf("%s left active as %s", id, e.Status)
		}
	}
}

func TestOrchestratorCancelLeavesNodesCancelled(t *testing.T) {
	o := newOrchestrator(t, fastConfig(), WithRunner(stuckRunner))
	if _, err := o.StartRun(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "prep processing", func() bool {
		e, _ := o.Store().Get("node-prep")
		return e.Status == status.Processing
	})

	_ = o.Cancel()
	res := waitResult(t, o)

	if got := res.Nodes["node-prep"].Status; got != status.Cancelled {
		t.Errorf("prep: expected CANCELLED, got %s", got)
	}
	if got := res.Nodes["node-analysis"].Status; got != status.Idle {
		t.Errorf("analysis: expected IDLE, got %s", got)
	}
}

func TestOrchestratorAbortNode(t *testing.T) {
	o := newOrchestrator(t, fastConfig(), WithRunner(stuckRunner))
	if err := o.AbortNode("node-prep", ""); !stderrors.Is(err, ErrNoActiveRun) {
		t.Errorf("expected ErrNoActiveRun between runs, got %v", err)
	}
	if _, err := o.StartRun(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "prep running", func() bool {
		return len(o.Running()) == 1
	})

	if err := o.AbortNode("node-serving", "x"); !stderrors.Is(err, ErrNodeNotRunning) {
		t.Errorf("expected ErrNodeNotRunning, got %v", err)
	}
	if err := o.AbortNode("node-prep", "operator stop"); err != nil {
		t.Fatalf("AbortNode: %v", err)
	}

	res := waitResult(t, o)
	if res.Outcome != OutcomeFailed {
		t.Fatalf("expected FAILED, got %s (%s)", res.Outcome, res.Reason)
	}
	prep := res.Nodes["node-prep"]
	if prep.Status != status.Failed || prep.Error == "" {
		t.Errorf("prep: expected FAILED with error, got %+v", prep)
	}
}

func TestOrchestratorRunNode(t *testing.T) {
	o := newOrchestrator(t, fastConfig())

	if _, err := o.RunNode(context.Background(), "missing"); err == nil {
		t.Fatal("expected NOT_FOUND for unknown node")
	}
	info, err := o.RunNode(context.Background(), "node-serving")
	if err != nil {
		t.Fatalf("RunNode: %v", err)
	}
	if info.Node != "node-serving" {
		t.Errorf("expected single-node run info, got %+v", info)
	}

	res := waitResult(t, o)
	if res.Outcome != OutcomeSucceeded || len(res.Nodes) != 1 {
		t.Fatalf("unexpected result: %s with %d nodes", res.Outcome, len(res.Nodes))
	}
	snap := o.Status()
	if snap.Status("node-serving") != status.Completed {
		t.Errorf("serving: expected COMPLETED, got %s", snap.Status("node-serving"))
	}
	if snap.Status("node-prep") != status.Idle {
		t.Errorf("prep: expected untouched IDLE, got %s", snap.Status("node-prep"))
	}
}

func TestOrchestratorGraphEdits(t *testing.T) {
	o := newOrchestrator(t, fastConfig())

	n, err := o.AddNode(dag.NewNode(dag.TypeDrift))
	if err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if _, ok := o.Store().Get(n.ID); !ok {
		t.Error("new node should get an IDLE status row")
	}
	if _, err := o.AddEdge(dag.EdgeDef{Source: "node-serving", Target: n.ID}); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	retraining := dag.TypeRetraining
	if _, err := o.UpdateNode(n.ID, dag.NodeUpdate{Type: &retraining}); err != nil {
		t.Fatalf("UpdateNode: %v", err)
	}
	if err := o.RemoveNode(n.ID); err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}
	if _, ok := o.Graph().Node(n.ID); ok {
		t.Error("node still present after RemoveNode")
	}

	g, err := o.ReplaceGraph(dag.Definition{Nodes: []dag.NodeDef{{Node: dag.Node{ID: "solo", Type: dag.TypePrep}}}})
	if err != nil {
		t.Fatalf("ReplaceGraph: %v", err)
	}
	if g.Len() != 1 || len(o.Status().Entries) != 1 {
		t.Errorf("expected one node and one status row, got %d and %d", g.Len(), len(o.Status().Entries))
	}
}

func TestOrchestratorGraphIsSnapshotPerRun(t *testing.T) {
	o := newOrchestrator(t, fastConfig(), WithRunner(stuckRunner))
	if _, err := o.StartRun(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	label := "renamed"
	if _, err := o.UpdateNode("node-serving", dag.NodeUpdate{Label: &label}); err != nil {
		t.Fatalf("UpdateNode on an idle node: %v", err)
	}
	waitFor(t, "prep active", func() bool {
		e, _ := o.Store().Get("node-prep")
		return e.Status.Active()
	})
	if _, err := o.UpdateNode("node-prep", dag.NodeUpdate{Label: &label}); !stderrors.Is(err, ErrNodeActive) {
		t.Errorf("expected ErrNodeActive, got %v", err)
	}
	_ = o.Cancel()
	waitResult(t, o)
}

func TestOrchestratorStopCancelsRun(t *testing.T) {
	o := newOrchestrator(t, fastConfig(), WithRunner(stuckRunner))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := o.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := o.StartRun(context.Background(), ""); err != nil {
		t.Fatal(err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := o.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if o.IsRunning() {
		t.Error("run still active after Stop")
	}
	if h := o.Health(context.Background()); h.Name != "engine" {
		t.Errorf("unexpected health %+v", h)
	}
}

func TestOrchestratorResultHook(t *testing.T) {
	got := make(chan *Result, 1)
	o := newOrchestrator(t, fastConfig(), WithResultHook(func(r *Result) { got <- r }))
	if _, err := o.StartRun(context.Background(), "hooked"); err != nil {
		t.Fatal(err)
	}
	res := waitResult(t, o)
	select {
	case r := <-got:
		if r != res {
			t.Error("hook received a different result")
		}
	default:
		t.Fatal("hook not called before Wait returned")
	}
}
