package dataflow

import (
	"cmp"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/randalmurphal/dataflow/pkg/dataflow/event"
)

// runSnapshot is what the engine needs to execute a node, captured while
// the node is marked running.
type runSnapshot struct {
	id   NodeID
	typ  TypeName
	args ExecuteArgs
	def  NodeType
	mode Mode

	// Counters the run consumes. Changes after these values make the node
	// eligible again.
	inputs map[*Input]uint64
	data   uint64
}

// liveNode returns the stored node itself, not a snapshot.
func (s *Store) liveNode(id NodeID) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	return n, ok
}

// beginRun marks n running and captures its inputs and data.
//
// A node that is gone, disabled or already running is refused without
// a snapshot. A node without a registered type (and not in passthrough
// mode) is refused with ErrTypeNotFound but its counters are returned so
// the engine can consume them.
func (s *Store) beginRun(n *Node, runID string, now time.Time) (runSnapshot, error) {
	s.mu.Lock()
	snap, err := s.beginRunLocked(n, runID, now)
	s.mu.Unlock()
	if err == nil {
		s.publish(newEvent(EventExecutionChanged, snap.id, StatusRunning))
	}
	return snap, err
}

func (s *Store) beginRunLocked(n *Node, runID string, now time.Time) (runSnapshot, error) {
	switch {
	case s.closed:
		return runSnapshot{}, ErrStoreClosed
	case !s.alive(n):
		return runSnapshot{}, ErrNodeNotFound
	case n.Mode == ModeDisabled:
		return runSnapshot{}, ErrNodeDisabled
	case n.Execution.Status == StatusRunning:
		return runSnapshot{}, ErrNodeRunning
	}

	snap := runSnapshot{
		id:     n.ID,
		typ:    n.Type,
		mode:   n.Mode,
		inputs: make(map[*Input]uint64, len(n.Inputs)),
		args: ExecuteArgs{
			Inputs: make(map[InputName]any, len(n.Inputs)),
			Store:  s,
		},
	}
	for _, in := range n.Inputs {
		v, state, counter := in.Value.Snapshot()
		snap.inputs[in] = counter
		if state != CellUnset {
			snap.args.Inputs[in.Name] = v
		}
	}
	data, state, counter := n.Data.Snapshot()
	snap.data = counter
	if state == CellPresent {
		snap.args.Data = maps.Clone(data)
	}

	def, ok := s.types.Get(n.Type)
	if !ok && n.Mode != ModePassthrough {
		return snap, ErrTypeNotFound
	}
	snap.def = def

	n.Execution.Status = StatusRunning
	n.Execution.Current = Run{RunID: runID, StartedAt: now}
	snap.args.Node = n.clone()
	return snap, nil
}

// setProgress updates the in-progress run of n.
func (s *Store) setProgress(n *Node, runID string, ratio float64, message string) {
	s.mu.Lock()
	cur := &n.Execution.Current
	if n.Execution.Status != StatusRunning || cur.RunID != runID {
		s.mu.Unlock()
		return
	}
	cur.ProgressRatio = min(max(ratio, 0), 1)
	cur.ProgressMessage = message
	id, alive := n.ID, s.alive(n)
	s.mu.Unlock()

	if alive {
		s.publish(newEvent(EventExecutionChanged, id, StatusRunning))
	}
}

// finishRun records the terminal outcome of a run and appends it to the
// node's history.
func (s *Store) finishRun(n *Node, runID string, status Status, errMsg string, now time.Time) RunRecord {
	s.mu.Lock()
	cur := &n.Execution.Current
	cur.EndedAt = now
	cur.ErrorMessage = errMsg
	if status == StatusSuccess {
		cur.ProgressRatio = 1
	}
	rec := RunRecord{
		RunID:        runID,
		Status:       status,
		StartedAt:    cur.StartedAt,
		EndedAt:      now,
		ErrorMessage: errMsg,
	}
	n.Execution.Status = status
	n.Execution.History = append(n.Execution.History, rec)
	id, alive := n.ID, s.alive(n)
	s.mu.Unlock()

	if alive {
		s.publish(newEvent(EventExecutionChanged, id, status))
	}
	return rec
}

// dataWrite reports the data counter around a result's data overwrite.
type dataWrite struct {
	before, after uint64
}

// applyResult writes a successful run's outputs and data. Output names the
// node does not have are logged and ignored. Nothing is written if the
// node was deleted during the run.
func (s *Store) applyResult(n *Node, res *Result) (dataWrite, bool) {
	if res == nil {
		return dataWrite{}, false
	}

	s.mu.RLock()
	if !s.alive(n) {
		s.mu.RUnlock()
		return dataWrite{}, false
	}
	id := n.ID
	var evts []event.Event

	names := slices.Collect(maps.Keys(res.Outputs))
	slices.SortFunc(names, cmp.Compare[OutputName])
	for _, name := range names {
		out := n.Output(name)
		if out == nil {
			s.logger.Warn("execute returned unknown output",
				slog.String("node_id", string(id)),
				slog.String("output", string(name)))
			continue
		}
		writeCell(out.Value, res.Outputs[name])
		evts = append(evts, newEvent(EventValueChanged, id, ValueChanged{Output: name}))
	}

	var dw dataWrite
	written := res.Data != nil
	if written {
		dw.before = n.Data.Counter()
		dw.after = n.Data.Set(maps.Clone(res.Data))
		evts = append(evts, newEvent(EventDataChanged, id, nil))
	}
	s.mu.RUnlock()

	s.publish(evts...)
	return dw, written
}
