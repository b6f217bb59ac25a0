package dataflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/dataflow/pkg/dataflow/event"
	"github.com/randalmurphal/dataflow/pkg/dataflow/observability"
)

// StopOptions controls Engine.Stop.
type StopOptions struct {
	// ShouldAbort cancels in-flight executions. Their runs end as aborted
	// and the nodes run again after the next Start.
	ShouldAbort bool
}

// TickReport summarizes one tick.
type TickReport struct {
	// Propagated counts output cells whose change was copied downstream.
	Propagated int
	// Pulled counts inputs that took their value from a newly connected edge.
	Pulled int
	// Eligible counts nodes whose inputs or data changed, or that were queued.
	Eligible int
	// Started counts executions launched by this tick.
	Started int
}

// Busy reports whether the tick moved any value or started any run.
func (r TickReport) Busy() bool {
	return r.Propagated > 0 || r.Pulled > 0 || r.Started > 0
}

// EngineState is a point-in-time view of the engine.
type EngineState struct {
	Running   bool      `json:"running"`
	TickSpeed TickSpeed `json:"tickSpeed"`
	RunID     string    `json:"runId"`
	Queued    int       `json:"queued"`
	InFlight  int       `json:"inFlight"`
}

// seenState is what the engine last observed of one node.
type seenState struct {
	// inputs and data hold the counters consumed by the latest run.
	inputs map[*Input]uint64
	data   uint64
	// outputs holds the counters last propagated.
	outputs map[*Output]uint64
	// edges holds the edge last seen feeding each input.
	edges map[*Input]*Edge
}

// Engine keeps node outputs consistent with node inputs. Each tick it
// propagates changed outputs along edges, detects nodes whose inputs or
// data changed since their last run, and launches those runs
// concurrently. A tick never waits for the runs it starts.
//
// State is tracked per node object, so renaming a node does not make it
// look changed.
type Engine struct {
	store   *Store
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	tickMu sync.Mutex

	mu        sync.Mutex
	running   bool
	closed    bool
	tickSpeed TickSpeed
	runID     string
	ctx       context.Context
	cancel    context.CancelFunc
	stop      chan struct{}
	loopDone  chan struct{}
	queued    map[*Node]struct{}
	missing   map[*Node]struct{}
	seen      map[*Node]*seenState
	inflight  int
	idle      chan struct{}

	wake        chan struct{}
	unsubscribe func()
}

// NewEngine creates a stopped engine over store.
func NewEngine(store *Store, opts ...EngineOption) *Engine {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.resolve()

	e := &Engine{
		store:     store,
		logger:    cfg.logger,
		metrics:   cfg.metrics,
		spans:     cfg.spans,
		tickSpeed: cfg.tickSpeed,
		runID:     uuid.NewString(),
		queued:    make(map[*Node]struct{}),
		missing:   make(map[*Node]struct{}),
		seen:      make(map[*Node]*seenState),
		wake:      make(chan struct{}, 1),
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.unsubscribe = store.Subscribe(e.onStoreEvent,
		EventNodeCreated,
		EventNodeDeleted,
		EventNodeUpdated,
		EventEdgeCreated,
		EventEdgeDeleted,
		EventTypeRegistered,
		EventValueChanged,
		EventDataChanged,
		EventGraphLoaded,
	)
	return e
}

func (e *Engine) onStoreEvent(evt event.Event) {
	if evt.Type == EventTypeRegistered {
		e.requeueMissing(TypeName(evt.Subject))
	}
	e.signal()
}

// requeueMissing queues nodes that were skipped for lacking a definition
// of the now registered type.
func (e *Engine) requeueMissing(name TypeName) {
	e.store.mu.RLock()
	defer e.store.mu.RUnlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	for n := range e.missing {
		if n.Type == name {
			delete(e.missing, n)
			e.queued[n] = struct{}{}
		}
	}
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Running reports whether the tick loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// TickSpeed returns the current tick speed.
func (e *Engine) TickSpeed() TickSpeed {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickSpeed
}

// SetTickSpeed changes the tick speed. It takes effect after the current
// pause.
func (e *Engine) SetTickSpeed(ts TickSpeed) {
	e.mu.Lock()
	e.tickSpeed = ts
	e.mu.Unlock()
	e.signal()
}

// State returns a snapshot of the engine's control state.
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EngineState{
		Running:   e.running,
		TickSpeed: e.tickSpeed,
		RunID:     e.runID,
		Queued:    len(e.queued),
		InFlight:  e.inflight,
	}
}

// Start launches the tick loop. Starting a running engine does nothing.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running || e.closed {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.runID = uuid.NewString()
	stop, done := make(chan struct{}), make(chan struct{})
	e.stop, e.loopDone = stop, done
	speed := e.tickSpeed
	e.mu.Unlock()

	observability.LogEngineStart(e.logger, speed.String())
	go e.loop(stop, done)
	e.signal()
}

// Stop ends the tick loop and waits for it to exit. In-flight executions
// keep running unless opts.ShouldAbort is set; use WaitIdle to wait for
// them.
func (e *Engine) Stop(opts StopOptions) {
	e.mu.Lock()
	wasRunning := e.running
	e.running = false
	stop, done := e.stop, e.loopDone
	e.stop, e.loopDone = nil, nil
	if opts.ShouldAbort {
		e.cancel()
		e.ctx, e.cancel = context.WithCancel(context.Background())
	}
	e.mu.Unlock()

	if wasRunning {
		close(stop)
		<-done
		observability.LogEngineStop(e.logger, opts.ShouldAbort)
	}
}

// Close stops the engine with abort and detaches it from the store.
// A closed engine cannot be started again.
func (e *Engine) Close() {
	e.Stop(StopOptions{ShouldAbort: true})
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.unsubscribe()
}

func (e *Engine) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		if !e.Tick(context.Background()).Busy() {
			select {
			case <-stop:
				return
			case <-e.wake:
			}
		}
		if !e.pause(stop) {
			return
		}
	}
}

// pause waits out the tick speed delay. It returns false if stop closed.
func (e *Engine) pause(stop <-chan struct{}) bool {
	d := e.TickSpeed().Delay()
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}

// Tick runs one propagate, detect and execute cycle and returns without
// waiting for the executions it started. It is safe to call whether or not
// the loop is running; ticks never overlap.
func (e *Engine) Tick(ctx context.Context) TickReport {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	elapsed := observability.TimedOperation()
	start := time.Now()

	e.mu.Lock()
	runID, runCtx := e.runID, e.ctx
	e.mu.Unlock()

	tickCtx, span := e.spans.StartTickSpan(ctx, runID)

	var report TickReport
	report.Propagated, report.Pulled = e.propagate()
	eligible := e.detect()
	report.Eligible = len(eligible)

	execCtx := trace.ContextWithSpan(runCtx, trace.SpanFromContext(tickCtx))
	for _, n := range eligible {
		r, err := e.begin(n, "")
		if err != nil {
			continue
		}
		report.Started++
		go e.run(execCtx, r)
	}

	e.metrics.RecordTick(tickCtx, report.Started, time.Since(start))
	observability.LogTick(e.logger, report.Propagated, report.Started, elapsed())
	e.spans.EndSpanWithError(span, nil)
	return report
}

// propagate copies every changed output into its edges and connected
// inputs, then pulls the source value into inputs whose edge is new.
func (e *Engine) propagate() (propagated, pulled int) {
	s := e.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pruneLocked()

	for _, id := range s.order {
		n := s.nodes[id]
		st := e.seenLocked(n)
		for _, out := range n.Outputs {
			counter := out.Value.Counter()
			if counter == st.outputs[out] {
				continue
			}
			st.outputs[out] = counter
			propagated++
			for _, eid := range out.EdgeIDs {
				edge, ok := s.edges[eid]
				if !ok {
					continue
				}
				edge.Value.CopyFrom(out.Value)
				if tgt, in := s.targetPort(edge); in != nil && in.EdgeID == eid {
					in.Value.CopyFrom(out.Value)
					e.seenLocked(tgt).edges[in] = edge
				}
			}
		}
	}

	for _, id := range s.order {
		n := s.nodes[id]
		st := e.seenLocked(n)
		for _, in := range n.Inputs {
			if in.EdgeID == "" {
				delete(st.edges, in)
				continue
			}
			edge, ok := s.edges[in.EdgeID]
			if !ok || st.edges[in] == edge {
				continue
			}
			st.edges[in] = edge
			if _, out := s.sourcePort(edge); out != nil {
				edge.Value.CopyFrom(out.Value)
				in.Value.CopyFrom(out.Value)
				pulled++
			}
		}
	}
	return propagated, pulled
}

// detect returns the nodes whose input or data counters moved since their
// last run, plus queued nodes, in node order.
func (e *Engine) detect() []*Node {
	s := e.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	var eligible []*Node
	for _, id := range s.order {
		n := s.nodes[id]
		if n.Mode == ModeDisabled {
			continue
		}
		if _, queued := e.queued[n]; queued || e.changedLocked(n) {
			eligible = append(eligible, n)
		}
	}
	return eligible
}

func (e *Engine) changedLocked(n *Node) bool {
	st := e.seenLocked(n)
	if n.Data.Counter() != st.data {
		return true
	}
	for _, in := range n.Inputs {
		if in.Value.Counter() != st.inputs[in] {
			return true
		}
	}
	return false
}

func (e *Engine) seenLocked(n *Node) *seenState {
	st, ok := e.seen[n]
	if !ok {
		st = &seenState{
			inputs:  make(map[*Input]uint64),
			outputs: make(map[*Output]uint64),
			edges:   make(map[*Input]*Edge),
		}
		e.seen[n] = st
	}
	return st
}

// pruneLocked forgets nodes that left the store. Callers hold the store
// lock and e.mu.
func (e *Engine) pruneLocked() {
	for n := range e.seen {
		if !e.store.alive(n) {
			delete(e.seen, n)
		}
	}
	for n := range e.queued {
		if !e.store.alive(n) {
			delete(e.queued, n)
		}
	}
	for n := range e.missing {
		if !e.store.alive(n) {
			delete(e.missing, n)
		}
	}
}

// QueueNode forces a node to run. While the engine is running the node
// joins the next tick. While it is stopped the node runs immediately, in
// the background. A request for a running node is dropped.
func (e *Engine) QueueNode(id NodeID) error {
	n, ok := e.store.liveNode(id)
	if !ok {
		observability.LogNodeSkipped(e.logger, string(id), "node not found")
		return mutationError("queueNode", id, ErrNodeNotFound)
	}

	e.mu.Lock()
	running, ctx := e.running, e.ctx
	if running {
		e.queued[n] = struct{}{}
	}
	e.mu.Unlock()

	if running {
		e.signal()
		return nil
	}
	r, err := e.begin(n, id)
	if err != nil {
		return &NodeError{NodeID: id, Op: "queue", Err: err}
	}
	go e.run(ctx, r)
	return nil
}

// ExecuteNode runs a node synchronously and returns its terminal status.
// The run is aborted if ctx is cancelled or the engine is stopped with
// abort. It fails without running if the node is missing, disabled,
// already running or has no registered type.
func (e *Engine) ExecuteNode(ctx context.Context, id NodeID) (Status, error) {
	n, ok := e.store.liveNode(id)
	if !ok {
		return "", &NodeError{NodeID: id, Op: "execute", Err: ErrNodeNotFound}
	}
	r, err := e.begin(n, id)
	if err != nil {
		return "", &NodeError{NodeID: id, Op: "execute", Err: err}
	}

	e.mu.Lock()
	runCtx := e.ctx
	e.mu.Unlock()

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	detach := context.AfterFunc(runCtx, cancel)
	defer detach()

	return e.run(execCtx, r), nil
}

// WaitIdle blocks until no execution is in flight or ctx is done.
func (e *Engine) WaitIdle(ctx context.Context) error {
	e.mu.Lock()
	if e.inflight == 0 {
		e.mu.Unlock()
		return nil
	}
	idle := e.idle
	e.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunUntilIdle ticks and waits for executions until a tick finds nothing
// to do. Graphs that never settle, such as cycles, run until ctx is done.
func (e *Engine) RunUntilIdle(ctx context.Context) error {
	for {
		if err := e.WaitIdle(ctx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if report := e.Tick(ctx); report.Busy() {
			continue
		}
		e.mu.Lock()
		settled := e.inflight == 0
		e.mu.Unlock()
		if settled {
			return nil
		}
	}
}

// nodeRun is a run that has been admitted and must be finished.
type nodeRun struct {
	node    *Node
	runID   string
	snap    runSnapshot
	started time.Time
}

// begin admits a run of n: the node is marked running and its counters
// are consumed. Refusals are logged for explicit requests, which name the
// requested id, and for nodes without a registered type.
func (e *Engine) begin(n *Node, requested NodeID) (*nodeRun, error) {
	runID := uuid.NewString()
	now := time.Now()

	snap, err := e.store.beginRun(n, runID, now)
	switch {
	case err == nil:
	case snap.id != "":
		// No type definition: consume the change so the node is not
		// retried every tick. It is queued again when the type arrives.
		e.consume(n, snap, true)
		observability.LogNodeSkipped(e.logger, string(snap.id), "missing type definition "+string(snap.typ))
		return nil, err
	default:
		if requested != "" {
			observability.LogNodeSkipped(e.logger, string(requested), err.Error())
		}
		return nil, err
	}

	e.mu.Lock()
	if e.inflight == 0 {
		e.idle = make(chan struct{})
	}
	e.inflight++
	e.mu.Unlock()

	e.consume(n, snap, false)
	return &nodeRun{node: n, runID: runID, snap: snap, started: now}, nil
}

func (e *Engine) consume(n *Node, snap runSnapshot, missing bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.seenLocked(n)
	st.inputs = snap.inputs
	st.data = snap.data
	delete(e.queued, n)
	if missing {
		e.missing[n] = struct{}{}
	} else {
		delete(e.missing, n)
	}
}

// done releases an admitted run.
func (e *Engine) done() {
	e.mu.Lock()
	e.inflight--
	if e.inflight == 0 {
		close(e.idle)
	}
	e.mu.Unlock()
	e.signal()
}

func (e *Engine) requeue(n *Node) {
	e.mu.Lock()
	e.queued[n] = struct{}{}
	e.mu.Unlock()
}

// ownDataWrite marks a run's own data overwrite as seen, so a node that
// rewrites its data does not trigger itself. Writes by anyone else during
// the run still count.
func (e *Engine) ownDataWrite(n *Node, consumed uint64, dw dataWrite) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.seen[n]; ok && st.data == consumed && dw.before == consumed {
		st.data = dw.after
	}
}
