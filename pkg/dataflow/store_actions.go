package dataflow

import (
	"cmp"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/randalmurphal/dataflow/pkg/dataflow/event"
)

// NodeSpec describes a node to create.
type NodeSpec struct {
	ID       NodeID
	Type     TypeName
	ParentID NodeID
	Position Position
	Data     map[string]any
	Mode     Mode

	// Inputs and Outputs declare ports in addition to those of the type.
	Inputs  []InputSchema
	Outputs []OutputSchema
}

// ValueChanged is the payload of EventValueChanged. Exactly one of Input
// and Output is set.
type ValueChanged struct {
	Input  InputName  `json:"input,omitempty"`
	Output OutputName `json:"output,omitempty"`
}

// mutate runs fn under the write lock and publishes its events after
// unlocking. A failed fn is logged and returned as a *MutationError.
func (s *Store) mutate(op string, subject any, fn func() ([]event.Event, error)) error {
	s.mu.Lock()
	var evts []event.Event
	err := ErrStoreClosed
	if !s.closed {
		evts, err = fn()
	}
	s.mu.Unlock()

	if err != nil {
		return s.reject(op, subject, err)
	}
	s.publish(evts...)
	return nil
}

// CreateNodeType registers def, replacing any previous definition with the
// same name, and adds its ports to every existing node of that type.
// Ports are only ever added; ports the previous definition declared stay.
func (s *Store) CreateNodeType(def NodeType) error {
	return s.mutate("createNodeType", def.Name, func() ([]event.Event, error) {
		if _, err := ParseTypeName(string(def.Name)); err != nil {
			return nil, err
		}
		if def.Execute == nil {
			return nil, ErrNilExecute
		}
		if err := validateSchemas(def.Inputs, def.Outputs); err != nil {
			return nil, err
		}

		s.types.Register(def.Name, def)
		evts := []event.Event{newEvent(EventTypeRegistered, def.Name, nil)}
		for _, id := range s.order {
			n := s.nodes[id]
			if n.Type != def.Name {
				continue
			}
			if populate(n, def) {
				evts = append(evts, newEvent(EventNodeUpdated, n.ID, nil))
				evts = append(evts, s.attachDanglingLocked(n)...)
			}
		}
		return evts, nil
	})
}

// DeleteNodeType removes a type definition. Nodes of that type keep their
// ports and report missing-type-definition until the type is registered
// again.
func (s *Store) DeleteNodeType(name TypeName) error {
	return s.mutate("deleteNodeType", name, func() ([]event.Event, error) {
		if !s.types.Delete(name) {
			return nil, ErrTypeNotFound
		}
		return []event.Event{newEvent(EventTypeDeleted, name, nil)}, nil
	})
}

// CreateNode adds a node. A node whose type is not registered is created
// bare and reported as missing-type-definition.
func (s *Store) CreateNode(spec NodeSpec) error {
	return s.mutate("createNode", spec.ID, func() ([]event.Event, error) {
		n, err := s.createNodeLocked(spec)
		if err != nil {
			return nil, err
		}
		if def, ok := s.types.Get(n.Type); ok {
			populate(n, def)
		}
		evts := []event.Event{newEvent(EventNodeCreated, n.ID, nil)}
		return append(evts, s.attachDanglingLocked(n)...), nil
	})
}

func (s *Store) createNodeLocked(spec NodeSpec) (*Node, error) {
	if err := validateIdentifier("node id", string(spec.ID)); err != nil {
		return nil, err
	}
	if _, err := ParseTypeName(string(spec.Type)); err != nil {
		return nil, err
	}
	if _, exists := s.nodes[spec.ID]; exists {
		return nil, ErrNodeExists
	}
	if !spec.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, spec.Mode)
	}
	if spec.ParentID == spec.ID {
		return nil, ErrInvalidParent
	}
	if err := validateSchemas(spec.Inputs, spec.Outputs); err != nil {
		return nil, err
	}

	n := &Node{
		ID:        spec.ID,
		Type:      spec.Type,
		ParentID:  spec.ParentID,
		Position:  spec.Position,
		Mode:      spec.Mode,
		Data:      NewCell[map[string]any](),
		Execution: ExecutionState{Status: StatusInitial},
	}
	if spec.Data != nil {
		n.Data.Set(maps.Clone(spec.Data))
	}
	for _, in := range spec.Inputs {
		n.addInput(in.Name, in.Type)
	}
	for _, out := range spec.Outputs {
		n.addOutput(out.Name, out.Type)
	}

	s.nodes[n.ID] = n
	s.order = append(s.order, n.ID)
	return n, nil
}

// DeleteNode removes a node. Edges touching it are left in place and
// surface as graph errors until they are deleted or pruned.
func (s *Store) DeleteNode(id NodeID) error {
	return s.mutate("deleteNode", id, func() ([]event.Event, error) {
		if _, ok := s.nodes[id]; !ok {
			return nil, ErrNodeNotFound
		}
		delete(s.nodes, id)
		s.order = slices.DeleteFunc(s.order, func(o NodeID) bool { return o == id })
		return []event.Event{newEvent(EventNodeDeleted, id, nil)}, nil
	})
}

// RenameNode changes a node's id. Every edge touching the node is re-keyed
// to the id derived from its new endpoints, and children follow the new
// parent id. Values, counters and execution state are kept, so a rename
// never triggers re-execution.
func (s *Store) RenameNode(oldID, newID NodeID) error {
	return s.mutate("renameNode", oldID, func() ([]event.Event, error) {
		if err := validateIdentifier("node id", string(newID)); err != nil {
			return nil, err
		}
		n, ok := s.nodes[oldID]
		if !ok {
			return nil, ErrNodeNotFound
		}
		if _, taken := s.nodes[newID]; taken {
			return nil, fmt.Errorf("%w: %s", ErrNodeExists, newID)
		}

		delete(s.nodes, oldID)
		n.ID = newID
		s.nodes[newID] = n
		s.order[slices.Index(s.order, oldID)] = newID

		evts := []event.Event{newEvent(EventNodeRenamed, newID, Renamed{From: oldID, To: newID})}

		for _, id := range s.order {
			child := s.nodes[id]
			if child.ParentID == oldID {
				child.ParentID = newID
				evts = append(evts, newEvent(EventNodeUpdated, child.ID, nil))
			}
		}

		for _, e := range s.edgesTouchingLocked(oldID) {
			prev := e.ID
			delete(s.edges, prev)
			if e.Source.NodeID == oldID {
				e.Source.NodeID = newID
			}
			if e.Target.NodeID == oldID {
				e.Target.NodeID = newID
			}
			next := EdgeIDFor(e.Source.NodeID, e.Source.Output, e.Target.NodeID, e.Target.Input)
			if stale, ok := s.edges[next]; ok {
				// A dangling edge already pointed at the new id.
				s.detachLocked(stale)
				delete(s.edges, next)
			}
			e.ID = next
			s.edges[next] = e
			s.rekeyRefsLocked(e, prev)
			evts = append(evts,
				newEvent(EventEdgeDeleted, prev, nil),
				newEvent(EventEdgeCreated, next, nil))
		}

		return append(evts, s.attachDanglingLocked(n)...), nil
	})
}

// edgesTouchingLocked returns the edges with id as an endpoint, ordered by id.
func (s *Store) edgesTouchingLocked(id NodeID) []*Edge {
	var touching []*Edge
	for _, e := range s.edges {
		if e.Source.NodeID == id || e.Target.NodeID == id {
			touching = append(touching, e)
		}
	}
	slices.SortFunc(touching, func(a, b *Edge) int { return cmp.Compare(a.ID, b.ID) })
	return touching
}

// rekeyRefsLocked replaces prev with e.ID in both endpoint ports.
func (s *Store) rekeyRefsLocked(e *Edge, prev EdgeID) {
	if _, out := s.sourcePort(e); out != nil {
		if i := slices.Index(out.EdgeIDs, prev); i >= 0 {
			out.EdgeIDs[i] = e.ID
		}
	}
	if _, in := s.targetPort(e); in != nil && in.EdgeID == prev {
		in.EdgeID = e.ID
	}
}

// CreateEdge connects an output to an input and returns the edge id.
// Both ports must exist. An existing edge on the input is replaced;
// connecting the same ports twice is a no-op.
func (s *Store) CreateEdge(source SourceRef, target TargetRef) (EdgeID, error) {
	id := EdgeIDFor(source.NodeID, source.Output, target.NodeID, target.Input)
	err := s.mutate("createEdge", id, func() ([]event.Event, error) {
		src, ok := s.nodes[source.NodeID]
		if !ok {
			return nil, fmt.Errorf("%w: source %s", ErrNodeNotFound, source.NodeID)
		}
		out := src.Output(source.Output)
		if out == nil {
			return nil, fmt.Errorf("%w: output %s", ErrPortNotFound, source.Output)
		}
		tgt, ok := s.nodes[target.NodeID]
		if !ok {
			return nil, fmt.Errorf("%w: target %s", ErrNodeNotFound, target.NodeID)
		}
		in := tgt.Input(target.Input)
		if in == nil {
			return nil, fmt.Errorf("%w: input %s", ErrPortNotFound, target.Input)
		}

		if _, exists := s.edges[id]; exists && in.EdgeID == id {
			return nil, nil
		}
		return s.connectLocked(newEdge(source, target)), nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// connectLocked inserts e, replacing any edge that shares its id or its
// target input. Endpoints that do not exist are left for graph errors.
func (s *Store) connectLocked(e *Edge) []event.Event {
	var evts []event.Event
	if stale, ok := s.edges[e.ID]; ok {
		s.detachLocked(stale)
		delete(s.edges, e.ID)
	}
	if _, in := s.targetPort(e); in != nil && in.EdgeID != "" {
		if old, ok := s.edges[in.EdgeID]; ok {
			s.detachLocked(old)
			delete(s.edges, old.ID)
			evts = append(evts, newEvent(EventEdgeDeleted, old.ID, nil))
		}
		in.EdgeID = ""
	}

	s.edges[e.ID] = e
	if _, out := s.sourcePort(e); out != nil && !slices.Contains(out.EdgeIDs, e.ID) {
		out.EdgeIDs = append(out.EdgeIDs, e.ID)
	}
	if _, in := s.targetPort(e); in != nil {
		in.EdgeID = e.ID
	}
	return append(evts, newEvent(EventEdgeCreated, e.ID, nil))
}

// detachLocked removes references to e from its endpoint ports. It does
// not touch the edge table or any value.
func (s *Store) detachLocked(e *Edge) {
	if _, out := s.sourcePort(e); out != nil {
		out.EdgeIDs = slices.DeleteFunc(out.EdgeIDs, func(id EdgeID) bool { return id == e.ID })
	}
	if _, in := s.targetPort(e); in != nil && in.EdgeID == e.ID {
		in.EdgeID = ""
	}
}

// DeleteEdge removes an edge and clears the value of the input it fed.
// An endpoint that no longer exists is logged and skipped.
func (s *Store) DeleteEdge(id EdgeID) error {
	return s.mutate("deleteEdge", id, func() ([]event.Event, error) {
		return s.deleteEdgeLocked(id, false)
	})
}

func (s *Store) deleteEdgeLocked(id EdgeID, quiet bool) ([]event.Event, error) {
	e, ok := s.edges[id]
	if !ok {
		return nil, ErrEdgeNotFound
	}
	delete(s.edges, id)
	evts := []event.Event{newEvent(EventEdgeDeleted, id, nil)}

	if _, out := s.sourcePort(e); out != nil {
		out.EdgeIDs = slices.DeleteFunc(out.EdgeIDs, func(o EdgeID) bool { return o == id })
	} else if !quiet {
		s.logger.Warn("edge source vanished, skipping",
			slog.String("edge_id", string(id)),
			slog.String("node_id", string(e.Source.NodeID)))
	}

	tgt, in := s.targetPort(e)
	switch {
	case in != nil && in.EdgeID == id:
		in.EdgeID = ""
		in.Value.Clear()
		evts = append(evts, newEvent(EventValueChanged, tgt.ID, ValueChanged{Input: in.Name}))
	case in == nil && !quiet:
		s.logger.Warn("edge target vanished, skipping",
			slog.String("edge_id", string(id)),
			slog.String("node_id", string(e.Target.NodeID)))
	}
	return evts, nil
}

// attachDanglingLocked wires existing edges that name one of n's ports but
// are not yet referenced by it, as happens when a node is created or
// renamed into an id that edges already point at, or gains ports later.
// An edge that would displace the input's current connection is deleted.
func (s *Store) attachDanglingLocked(n *Node) []event.Event {
	var evts []event.Event
	for _, e := range s.edgesTouchingLocked(n.ID) {
		if e.Source.NodeID == n.ID {
			if out := n.Output(e.Source.Output); out != nil && !slices.Contains(out.EdgeIDs, e.ID) {
				out.EdgeIDs = append(out.EdgeIDs, e.ID)
			}
		}
		if e.Target.NodeID != n.ID {
			continue
		}
		in := n.Input(e.Target.Input)
		switch {
		case in == nil || in.EdgeID == e.ID:
		case in.EdgeID == "":
			in.EdgeID = e.ID
		default:
			s.detachLocked(e)
			delete(s.edges, e.ID)
			evts = append(evts, newEvent(EventEdgeDeleted, e.ID, nil))
		}
	}
	return evts
}

// UpdatePosition moves a node on the canvas.
func (s *Store) UpdatePosition(id NodeID, pos Position) error {
	return s.mutate("updatePosition", id, func() ([]event.Event, error) {
		n, ok := s.nodes[id]
		if !ok {
			return nil, ErrNodeNotFound
		}
		n.Position = pos
		return []event.Event{newEvent(EventNodeUpdated, id, nil)}, nil
	})
}

// UpdateData replaces a node's data. A nil map sets the data cell to null.
func (s *Store) UpdateData(id NodeID, data map[string]any) error {
	return s.mutate("updateData", id, func() ([]event.Event, error) {
		n, ok := s.nodes[id]
		if !ok {
			return nil, ErrNodeNotFound
		}
		if data == nil {
			n.Data.SetNull()
		} else {
			n.Data.Set(maps.Clone(data))
		}
		return []event.Event{newEvent(EventDataChanged, id, nil)}, nil
	})
}

// SetMode changes how the engine treats a node.
func (s *Store) SetMode(id NodeID, mode Mode) error {
	return s.mutate("setMode", id, func() ([]event.Event, error) {
		n, ok := s.nodes[id]
		if !ok {
			return nil, ErrNodeNotFound
		}
		if !mode.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
		}
		n.Mode = mode
		return []event.Event{newEvent(EventNodeUpdated, id, nil)}, nil
	})
}

// SetParent sets or clears (with "") a node's parent. The parent does not
// need to exist; a missing parent is reported as a graph error.
func (s *Store) SetParent(id, parent NodeID) error {
	return s.mutate("setParent", id, func() ([]event.Event, error) {
		n, ok := s.nodes[id]
		if !ok {
			return nil, ErrNodeNotFound
		}
		if parent == id {
			return nil, ErrInvalidParent
		}
		n.ParentID = parent
		return []event.Event{newEvent(EventNodeUpdated, id, nil)}, nil
	})
}

// AddInput adds an input port to a node.
func (s *Store) AddInput(id NodeID, schema InputSchema) error {
	return s.mutate("addInput", id, func() ([]event.Event, error) {
		n, ok := s.nodes[id]
		if !ok {
			return nil, ErrNodeNotFound
		}
		if err := validateSchemas([]InputSchema{schema}, nil); err != nil {
			return nil, err
		}
		if !n.addInput(schema.Name, schema.Type) {
			return nil, fmt.Errorf("%w: input %s", ErrPortExists, schema.Name)
		}
		evts := []event.Event{newEvent(EventNodeUpdated, id, nil)}
		return append(evts, s.attachDanglingLocked(n)...), nil
	})
}

// AddOutput adds an output port to a node.
func (s *Store) AddOutput(id NodeID, schema OutputSchema) error {
	return s.mutate("addOutput", id, func() ([]event.Event, error) {
		n, ok := s.nodes[id]
		if !ok {
			return nil, ErrNodeNotFound
		}
		if err := validateSchemas(nil, []OutputSchema{schema}); err != nil {
			return nil, err
		}
		if !n.addOutput(schema.Name, schema.Type) {
			return nil, fmt.Errorf("%w: output %s", ErrPortExists, schema.Name)
		}
		evts := []event.Event{newEvent(EventNodeUpdated, id, nil)}
		return append(evts, s.attachDanglingLocked(n)...), nil
	})
}

// SetInputValue writes an input directly. A nil value writes null. If the
// input is connected, the next change of its source overwrites the value.
func (s *Store) SetInputValue(id NodeID, name InputName, value any) error {
	return s.mutate("setInputValue", id, func() ([]event.Event, error) {
		n, ok := s.nodes[id]
		if !ok {
			return nil, ErrNodeNotFound
		}
		in := n.Input(name)
		if in == nil {
			return nil, fmt.Errorf("%w: input %s", ErrPortNotFound, name)
		}
		writeCell(in.Value, value)
		return []event.Event{newEvent(EventValueChanged, id, ValueChanged{Input: name})}, nil
	})
}

// SetOutputValue writes an output directly. A nil value writes null. The
// value propagates to connected inputs on the next tick.
func (s *Store) SetOutputValue(id NodeID, name OutputName, value any) error {
	return s.mutate("setOutputValue", id, func() ([]event.Event, error) {
		n, ok := s.nodes[id]
		if !ok {
			return nil, ErrNodeNotFound
		}
		out := n.Output(name)
		if out == nil {
			return nil, fmt.Errorf("%w: output %s", ErrPortNotFound, name)
		}
		writeCell(out.Value, value)
		return []event.Event{newEvent(EventValueChanged, id, ValueChanged{Output: name})}, nil
	})
}

func writeCell(c *Cell[any], value any) {
	if value == nil {
		c.SetNull()
		return
	}
	c.Set(value)
}

// populate adds the ports of def that n lacks and reports whether any were
// added.
func populate(n *Node, def NodeType) bool {
	changed := false
	for _, in := range def.Inputs {
		changed = n.addInput(in.Name, in.Type) || changed
	}
	for _, out := range def.Outputs {
		changed = n.addOutput(out.Name, out.Type) || changed
	}
	return changed
}

func validateSchemas(inputs []InputSchema, outputs []OutputSchema) error {
	for _, in := range inputs {
		if err := validateIdentifier("input name", string(in.Name)); err != nil {
			return err
		}
	}
	for _, out := range outputs {
		if err := validateIdentifier("output name", string(out.Name)); err != nil {
			return err
		}
	}
	return nil
}
