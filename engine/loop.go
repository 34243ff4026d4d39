package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kbukum/podflow/dag"
	"github.com/kbukum/podflow/logger"
	"github.com/kbukum/podflow/observability"
	"github.com/kbukum/podflow/status"
)

// RunInfo identifies a run.
type RunInfo struct {
	RunID     string    `json:"run_id"`
	JobID     string    `json:"job_id"`
	JobName   string    `json:"job_name"`
	StartedAt time.Time `json:"started_at"`
	// Node is set for single-node runs.
	Node string `json:"node,omitempty"`
}

// Loop runs one graph snapshot to an Outcome. A Loop is single-use.
type Loop struct {
	cfg     Config
	graph   *dag.Graph
	store   *status.Store
	exec    *Executor
	log     *logger.Logger
	metrics *observability.Metrics
	info    RunInfo
	partial bool

	mu     sync.Mutex
	reset  bool
	aborts map[string]context.CancelCauseFunc
}

// NewLoop prepares a run of g. The graph must not be mutated afterwards.
func NewLoop(cfg Config, g *dag.Graph, store *status.Store, exec *Executor, info RunInfo) *Loop {
	cfg.ApplyDefaults()
	return &Loop{
		cfg:    cfg,
		graph:  g,
		store:  store,
		exec:   exec,
		log:    logger.Nop(),
		info:   info,
		aborts: make(map[string]context.CancelCauseFunc),
	}
}

// WithLogger sets the loop's logger.
func (l *Loop) WithLogger(log *logger.Logger) *Loop {
	if log != nil {
		l.log = log
	}
	return l
}

// WithMetrics records run metrics on m.
func (l *Loop) WithMetrics(m *observability.Metrics) *Loop {
	l.metrics = m
	return l
}

// Partial makes Reset touch only this graph's nodes, keeping other rows.
func (l *Loop) Partial() *Loop {
	l.partial = true
	return l
}

// Info returns the run identity.
func (l *Loop) Info() RunInfo { return l.info }

// Reset puts every node of the graph at IDLE. Run calls it when it has not
// been called yet; callers that need the reset observable before Run
// returns control call it first.
func (l *Loop) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reset {
		return nil
	}
	ids := l.graph.NodeIDs()
	var err error
	if l.partial {
		err = l.store.ResetNodes(ids)
	} else {
		err = l.store.Reset(ids)
	}
	if err != nil {
		return err
	}
	l.reset = true
	return nil
}

// Abort fails node id's executor with reason.
func (l *Loop) Abort(id, reason string) error {
	l.mu.Lock()
	cancel, ok := l.aborts[id]
	l.mu.Unlock()
	if !ok {
		return ErrNodeNotRunning.WithDetail("node_id", id)
	}
	if reason == "" {
		reason = "aborted by operator"
	}
	cancel(fmt.Errorf("%w: %s", ErrAborted, reason))
	return nil
}

// Running returns the ids of nodes with a live executor.
func (l *Loop) Running() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.aborts))
	for _, id := range l.graph.NodeIDs() {
		if _, ok := l.aborts[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Run drives the graph until an Outcome is reached and every executor it
// launched has returned.
func (l *Loop) Run(ctx context.Context) *Result {
	res := &Result{
		RunID:     l.info.RunID,
		JobID:     l.info.JobID,
		JobName:   l.info.JobName,
		StartedAt: time.Now(),
		Nodes:     make(map[string]NodeResult, l.graph.Len()),
	}
	log := l.log.WithFields(logger.Fields(logger.FieldRunID, l.info.RunID, logger.FieldJobID, l.info.JobID))

	ctx, span := observability.StartSpan(ctx, observability.SpanRun, trace.WithAttributes(
		attribute.String(observability.AttrRunID, l.info.RunID),
		attribute.String(observability.AttrJobID, l.info.JobID),
	))
	defer span.End()

	defer func() {
		res.FinishedAt = time.Now()
		span.SetAttributes(attribute.String(observability.AttrOutcome, string(res.Outcome)))
		if l.metrics != nil {
			l.metrics.RecordRun(context.WithoutCancel(ctx), string(res.Outcome), res.Duration())
		}
		fields := logger.MergeWithDuration(logger.Fields(
			logger.FieldOutcome, string(res.Outcome),
			"iterations", res.Iterations,
		), res.Duration())
		if res.Reason != "" {
			fields["reason"] = res.Reason
		}
		log.Info("run finished", fields)
	}()

	if err := l.Reset(); err != nil {
		res.Outcome = OutcomeFailed
		res.Reason = err.Error()
		return res
	}
	log.Info("run started", logger.Fields("nodes", l.graph.Len()))

	if l.cfg.Preflight() {
		if err := dag.CheckAcyclic(l.graph); err != nil {
			res.Outcome = OutcomeDeadlocked
			res.Reason = err.Error()
			l.collect(res, l.store.Snapshot())
			return res
		}
	}

	if l.cfg.RunBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, l.cfg.RunBudget, ErrRunTimeout)
		defer cancel()
	}
	runCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	var sem *semaphore.Weighted
	if l.cfg.MaxParallel > 0 {
		sem = semaphore.NewWeighted(int64(l.cfg.MaxParallel))
	}

	var group errgroup.Group
	ids := l.graph.NodeIDs()
	finished := make(chan NodeResult, len(ids))
	launched := make(map[string]bool, len(ids))

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	var (
		lastVersion uint64
		stalled     int
	)
	for {
		res.Iterations++
		snap := l.store.Snapshot()

		if l.allCompleted(snap) {
			res.Outcome = OutcomeSucceeded
			break
		}

		started := 0
		for _, id := range ids {
			if !Eligible(l.graph, id, snap, launched) {
				continue
			}
			if sem != nil && !sem.TryAcquire(1) {
				break
			}
			w, err := l.store.Writer(id)
			if err != nil {
				log.Warn("claiming node failed", logger.ErrorFields("claim", err))
				if sem != nil {
					sem.Release(1)
				}
				continue
			}
			node, _ := l.graph.Node(id)
			nodeCtx, abort := context.WithCancelCause(runCtx)
			l.mu.Lock()
			l.aborts[id] = abort
			l.mu.Unlock()
			launched[id] = true
			started++

			log.Debug("node launched", logger.Fields(logger.FieldNodeID, id, logger.FieldNodeType, string(node.Type)))
			group.Go(func() error {
				r := l.exec.Execute(nodeCtx, node, w)
				l.mu.Lock()
				delete(l.aborts, id)
				l.mu.Unlock()
				abort(nil)
				if sem != nil {
					sem.Release(1)
				}
				finished <- r
				return nil
			})
		}

		if started == 0 && len(launched) == 0 {
			res.Outcome, res.Reason = l.quiescent(snap)
			break
		}

		// Executors are live here. A quiet stretch is reported, not ended;
		// hung executors end through ExecutorTimeout.
		if started == 0 && snap.Version == lastVersion {
			stalled++
		} else {
			stalled = 0
		}
		lastVersion = snap.Version
		if l.cfg.StallLimit > 0 && stalled == l.cfg.StallLimit {
			log.Warn("run stalled", logger.Fields("iterations", stalled, "running", l.Running()))
		}
		if l.cfg.MaxIterations > 0 && res.Iterations >= l.cfg.MaxIterations {
			res.Outcome = OutcomeDeadlocked
			res.Reason = fmt.Sprintf("iteration limit %d reached", l.cfg.MaxIterations)
			break
		}

		select {
		case <-runCtx.Done():
			res.Outcome, res.Reason = cancelled(runCtx)
		case r := <-finished:
			res.Nodes[r.ID] = r
			delete(launched, r.ID)
		case <-l.store.Changed():
		case <-ticker.C:
		}
		if res.Outcome != "" {
			break
		}
	}

	switch res.Outcome {
	case OutcomeDeadlocked, OutcomeTimedOut:
		log.Warn("run detector tripped", logger.Fields(logger.FieldOutcome, string(res.Outcome), "reason", res.Reason))
	}
	if res.Outcome == OutcomeDeadlocked {
		stop(ErrDeadlocked)
	}
	_ = group.Wait()
	close(finished)
	for r := range finished {
		res.Nodes[r.ID] = r
	}

	l.collect(res, l.store.Snapshot())
	return res
}

func (l *Loop) allCompleted(snap status.Snapshot) bool {
	for _, id := range l.graph.NodeIDs() {
		if snap.Status(id) != status.Completed {
			return false
		}
	}
	return true
}

// quiescent classifies a run with nothing running and nothing launchable.
func (l *Loop) quiescent(snap status.Snapshot) (Outcome, string) {
	doomed := downstreamOfFailure(l.graph, snap)
	var (
		failed bool
		stuck  []string
	)
	for _, id := range l.graph.NodeIDs() {
		switch snap.Status(id) {
		case status.Completed:
		case status.Failed, status.Cancelled:
			failed = true
		default:
			if !doomed[id] {
				stuck = append(stuck, id)
			}
		}
	}
	if len(stuck) > 0 {
		return OutcomeDeadlocked, fmt.Sprintf("nodes can never launch: %v", stuck)
	}
	if failed {
		return OutcomeFailed, "upstream failure blocks remaining nodes"
	}
	return OutcomeDeadlocked, "no node can launch"
}

func cancelled(ctx context.Context) (Outcome, string) {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrRunTimeout) {
		return OutcomeTimedOut, cause.Error()
	}
	return OutcomeCancelled, cause.Error()
}

// collect fills node results from snap and records why never-launched
// nodes were blocked.
func (l *Loop) collect(res *Result, snap status.Snapshot) {
	for _, n := range l.graph.Nodes() {
		e := snap.Entries[n.ID]
		r, ok := res.Nodes[n.ID]
		if !ok {
			r = NodeResult{ID: n.ID, Type: string(n.Type)}
		}
		r.Status = snap.Status(n.ID)
		r.Progress = e.Progress
		if r.Error == "" {
			r.Error = e.Error
		}
		res.Nodes[n.ID] = r

		if r.Launched || r.Status != status.Idle {
			continue
		}
		deps := UnfinishedDependencies(l.graph, n.ID, snap)
		if len(deps) == 0 {
			continue
		}
		if res.Blocked == nil {
			res.Blocked = make(map[string][]string)
		}
		for _, e := range deps {
			res.Blocked[n.ID] = append(res.Blocked[n.ID], e.ID)
		}
	}
}
