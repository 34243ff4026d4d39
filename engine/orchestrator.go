package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/podflow/component"
	"github.com/kbukum/podflow/dag"
	"github.com/kbukum/podflow/errors"
	"github.com/kbukum/podflow/logger"
	"github.com/kbukum/podflow/observability"
	"github.com/kbukum/podflow/status"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRunner replaces the simulated runner.
func WithRunner(r Runner) Option {
	return func(o *Orchestrator) { o.runner = r }
}

// WithLogger sets the logger; the default is the global "engine" logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithInstruments records run and node metrics on m.
func WithInstruments(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithStore shares an existing status store.
func WithStore(s *status.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithGraph sets the initial graph; the default is dag.DefaultPipeline.
func WithGraph(g *dag.Graph) Option {
	return func(o *Orchestrator) { o.graph = g }
}

// WithResultHook calls fn with every finished run's result.
func WithResultHook(fn func(*Result)) Option {
	return func(o *Orchestrator) { o.hooks = append(o.hooks, fn) }
}

// Orchestrator owns the editable graph, the status store and at most one
// active run. It is safe for concurrent use.
type Orchestrator struct {
	cfg     Config
	runner  Runner
	store   *status.Store
	log     *logger.Logger
	metrics *observability.Metrics
	now     func() time.Time
	hooks   []func(*Result)

	mu    sync.Mutex
	base  context.Context
	graph *dag.Graph
	run   *activeRun
	last  *Result
}

type activeRun struct {
	loop   *Loop
	cancel context.CancelCauseFunc
	done   chan struct{}
	result *Result
}

// New returns an orchestrator over cfg.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Validation(err.Error())
	}
	o := &Orchestrator{cfg: cfg, now: time.Now, base: context.Background()}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.WithComponent("engine")
	}
	if o.store == nil {
		o.store = status.NewStore()
	}
	if o.graph == nil {
		g, err := dag.Build(dag.DefaultPipeline(), dag.WithClassifier(cfg.Classifier()))
		if err != nil {
			return nil, err
		}
		o.graph = g
	}
	if o.runner == nil {
		o.runner = NewSimulatedRunner(cfg)
	}
	o.runner = WithMetrics(WithLogging(WithTracing(o.runner), o.log), o.metrics)

	if err := o.store.Reset(o.graph.NodeIDs()); err != nil {
		return nil, err
	}
	return o, nil
}

// Store returns the status store observers read from.
func (o *Orchestrator) Store() *status.Store { return o.store }

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// StartRun resets every node to IDLE and launches a run of the current
// graph. The reset is visible before StartRun returns.
func (o *Orchestrator) StartRun(ctx context.Context, name string) (RunInfo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run != nil {
		return RunInfo{}, ErrRunInProgress.WithDetail("job_id", o.run.loop.Info().JobID)
	}
	return o.start(ctx, o.graph.Clone(), name, "")
}

// RunNode runs a single node in isolation, leaving other rows as they are.
// It is refused while a run is active.
func (o *Orchestrator) RunNode(ctx context.Context, id string) (RunInfo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run != nil {
		return RunInfo{}, ErrRunInProgress.WithDetail("job_id", o.run.loop.Info().JobID)
	}
	n, ok := o.graph.Node(id)
	if !ok {
		return RunInfo{}, errors.NotFound("node", id)
	}
	single := dag.New(dag.WithClassifier(o.cfg.Classifier()))
	if _, err := single.AddNode(n); err != nil {
		return RunInfo{}, err
	}
	return o.start(ctx, single, n.Label, id)
}

// start must be called with o.mu held.
func (o *Orchestrator) start(ctx context.Context, g *dag.Graph, name, single string) (RunInfo, error) {
	at := o.now()
	if name == "" {
		name = DefaultJobName(at)
	}
	info := RunInfo{
		RunID:     uuid.NewString(),
		JobID:     NewJobID(),
		JobName:   name,
		StartedAt: at,
		Node:      single,
	}

	exec := NewExecutor(o.cfg, o.runner, o.log, o.metrics)
	loop := NewLoop(o.cfg, g, o.store, exec, info).WithLogger(o.log).WithMetrics(o.metrics)
	if single != "" {
		loop.Partial()
	}
	if err := loop.Reset(); err != nil {
		return RunInfo{}, err
	}

	// Runs outlive the request that started them.
	runCtx, cancel := context.WithCancelCause(logger.ContextWithRunID(context.WithoutCancel(ctx), info.RunID))
	stopOnShutdown := context.AfterFunc(o.base, func() { cancel(ErrRunCancelled) })

	r := &activeRun{loop: loop, cancel: cancel, done: make(chan struct{})}
	o.run = r
	go func() {
		defer stopOnShutdown()
		defer cancel(nil)
		res := loop.Run(runCtx)
		for _, fn := range o.hooks {
			fn(res)
		}

		o.mu.Lock()
		r.result = res
		o.last = res
		o.run = nil
		o.mu.Unlock()
		close(r.done)
	}()
	return info, nil
}

// IsRunning reports whether a run is active.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run != nil
}

// CurrentRun returns the active run's identity.
func (o *Orchestrator) CurrentRun() (RunInfo, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil {
		return RunInfo{}, false
	}
	return o.run.loop.Info(), true
}

// Running returns the nodes of the active run that have a live executor.
func (o *Orchestrator) Running() []string {
	o.mu.Lock()
	r := o.run
	o.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.loop.Running()
}

// Wait blocks until the active run finishes and returns its result. With
// no active run it returns the last result, or ErrNoActiveRun if there is
// none.
func (o *Orchestrator) Wait(ctx context.Context) (*Result, error) {
	o.mu.Lock()
	r, last := o.run, o.last
	o.mu.Unlock()
	if r == nil {
		if last == nil {
			return nil, ErrNoActiveRun
		}
		return last, nil
	}
	select {
	case <-r.done:
		return r.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel stops the active run. Its executors end CANCELLED.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	r := o.run
	o.mu.Unlock()
	if r == nil {
		return ErrNoActiveRun
	}
	r.cancel(ErrRunCancelled)
	return nil
}

// AbortNode forces node id to FAILED through its own executor.
func (o *Orchestrator) AbortNode(id, reason string) error {
	o.mu.Lock()
	r := o.run
	o.mu.Unlock()
	if r == nil {
		return ErrNoActiveRun
	}
	return r.loop.Abort(id, reason)
}

// LastResult returns the result of the most recent finished run.
func (o *Orchestrator) LastResult() (*Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last, o.last != nil
}

// Graph returns a copy of the editable graph.
func (o *Orchestrator) Graph() *dag.Graph {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.graph.Clone()
}

// Status returns a snapshot of the status store.
func (o *Orchestrator) Status() status.Snapshot {
	return o.store.Snapshot()
}

// Subscribe streams status events.
func (o *Orchestrator) Subscribe(buffer int) (<-chan status.Event, func()) {
	return o.store.Subscribe(buffer)
}

// AddNode inserts n. A run in progress is unaffected; it works on a copy.
func (o *Orchestrator) AddNode(n dag.Node) (dag.Node, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	added, err := o.graph.AddNode(n)
	if err != nil {
		return dag.Node{}, err
	}
	if o.run == nil {
		if err := o.store.ResetNodes([]string{added.ID}); err != nil {
			o.log.Warn("seeding status row failed", logger.ErrorFields("add_node", err))
		}
	}
	return added, nil
}

// UpdateNode edits node id. It is refused while the node has a live
// executor.
func (o *Orchestrator) UpdateNode(id string, u dag.NodeUpdate) (dag.Node, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.store.Get(id); ok && e.Status.Active() {
		return dag.Node{}, ErrNodeActive.WithDetail("node_id", id)
	}
	return o.graph.UpdateNode(id, u)
}

// RemoveNode deletes node id and its edges. Refused during a run.
func (o *Orchestrator) RemoveNode(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run != nil {
		return ErrRunInProgress
	}
	return o.graph.RemoveNode(id)
}

// AddEdge inserts an edge. Refused during a run.
func (o *Orchestrator) AddEdge(ed dag.EdgeDef) (dag.Edge, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run != nil {
		return dag.Edge{}, ErrRunInProgress
	}
	return o.graph.AddEdge(ed)
}

// RemoveEdge deletes edge id. Refused during a run.
func (o *Orchestrator) RemoveEdge(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run != nil {
		return ErrRunInProgress
	}
	return o.graph.RemoveEdge(id)
}

// ReplaceGraph swaps in a graph built from def and resets the status table
// to its nodes. Refused during a run.
func (o *Orchestrator) ReplaceGraph(def dag.Definition) (*dag.Graph, error) {
	g, err := dag.Build(def, dag.WithClassifier(o.cfg.Classifier()))
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run != nil {
		return nil, ErrRunInProgress
	}
	if err := o.store.Reset(g.NodeIDs()); err != nil {
		return nil, err
	}
	o.graph = g
	return g.Clone(), nil
}

// --- component.Component ---

// Name implements component.Component.
func (o *Orchestrator) Name() string { return "engine" }

// Start records ctx as the parent of future runs; cancelling it cancels
// them.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	o.base = ctx
	o.mu.Unlock()
	o.log.Info("engine ready", logger.Fields("nodes", o.graph.Len(), "max_parallel", o.cfg.MaxParallel))
	return nil
}

// Stop cancels the active run and waits for it within ctx.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if err := o.Cancel(); err != nil {
		return nil
	}
	_, err := o.Wait(ctx)
	return err
}

// Health implements component.Component.
func (o *Orchestrator) Health(_ context.Context) component.Health {
	h := component.Health{Name: o.Name(), Status: component.StatusHealthy}
	if info, ok := o.CurrentRun(); ok {
		h.Message = "running " + info.JobID
	}
	return h
}

// Describe implements component.Describable.
func (o *Orchestrator) Describe() component.Description {
	return component.Description{
		Type:    "engine",
		Details: "poll " + o.cfg.PollInterval.String(),
	}
}
