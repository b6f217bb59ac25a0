package dataflow

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/randalmurphal/dataflow/pkg/dataflow/event"
)

// GraphErrorKind classifies an integrity problem in the graph.
type GraphErrorKind string

const (
	MissingTypeDefinition GraphErrorKind = "missing-type-definition"
	MissingParentNode     GraphErrorKind = "missing-parent-node"
	MissingSourceNode     GraphErrorKind = "missing-source-node"
	MissingTargetNode     GraphErrorKind = "missing-target-node"
	MissingSourceOutput   GraphErrorKind = "missing-source-output"
	MissingTargetInput    GraphErrorKind = "missing-target-input"
)

// GraphError is a structural problem found in the graph. Graph errors are
// data: they are computed on demand and never stop the engine.
type GraphError struct {
	Kind    GraphErrorKind `json:"kind"`
	NodeID  NodeID         `json:"nodeId,omitempty"`
	EdgeID  EdgeID         `json:"edgeId,omitempty"`
	Message string         `json:"message"`
}

func (e GraphError) Error() string {
	return e.Message
}

// NodeGraphErrors returns the problems of each node that has any.
func (s *Store) NodeGraphErrors() map[NodeID][]GraphError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[NodeID][]GraphError)
	for _, id := range s.order {
		if errs := s.nodeErrorsLocked(s.nodes[id]); len(errs) > 0 {
			out[id] = errs
		}
	}
	return out
}

// EdgeGraphErrors returns the problems of each edge that has any.
func (s *Store) EdgeGraphErrors() map[EdgeID][]GraphError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[EdgeID][]GraphError)
	for id, e := range s.edges {
		if errs := s.edgeErrorsLocked(e); len(errs) > 0 {
			out[id] = errs
		}
	}
	return out
}

// GraphErrors returns every problem: node errors in node order, then edge
// errors ordered by edge id.
func (s *Store) GraphErrors() []GraphError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []GraphError
	for _, id := range s.order {
		all = append(all, s.nodeErrorsLocked(s.nodes[id])...)
	}
	for _, id := range s.sortedEdgeIDsLocked() {
		all = append(all, s.edgeErrorsLocked(s.edges[id])...)
	}
	return all
}

// PruneInvalidEdges deletes every edge that currently reports a graph
// error and returns their ids.
func (s *Store) PruneInvalidEdges() ([]EdgeID, error) {
	var pruned []EdgeID
	err := s.mutate("pruneInvalidEdges", "graph", func() ([]event.Event, error) {
		var evts []event.Event
		for _, id := range s.sortedEdgeIDsLocked() {
			if len(s.edgeErrorsLocked(s.edges[id])) == 0 {
				continue
			}
			deleted, err := s.deleteEdgeLocked(id, true)
			if err != nil {
				return nil, err
			}
			evts = append(evts, deleted...)
			pruned = append(pruned, id)
		}
		return evts, nil
	})
	return pruned, err
}

func (s *Store) nodeErrorsLocked(n *Node) []GraphError {
	var errs []GraphError
	if !s.types.Has(n.Type) {
		errs = append(errs, GraphError{
			Kind:    MissingTypeDefinition,
			NodeID:  n.ID,
			Message: fmt.Sprintf("node %s: type %q is not registered", n.ID, n.Type),
		})
	}
	if n.ParentID != "" {
		if _, ok := s.nodes[n.ParentID]; !ok {
			errs = append(errs, GraphError{
				Kind:    MissingParentNode,
				NodeID:  n.ID,
				Message: fmt.Sprintf("node %s: parent %s does not exist", n.ID, n.ParentID),
			})
		}
	}
	return errs
}

func (s *Store) edgeErrorsLocked(e *Edge) []GraphError {
	var errs []GraphError
	add := func(kind GraphErrorKind, format string, args ...any) {
		errs = append(errs, GraphError{
			Kind:    kind,
			EdgeID:  e.ID,
			Message: fmt.Sprintf("edge %s: ", e.ID) + fmt.Sprintf(format, args...),
		})
	}

	switch src, out := s.sourcePort(e); {
	case src == nil:
		add(MissingSourceNode, "source node %s does not exist", e.Source.NodeID)
	case out == nil:
		add(MissingSourceOutput, "node %s has no output %s", e.Source.NodeID, e.Source.Output)
	}
	switch tgt, in := s.targetPort(e); {
	case tgt == nil:
		add(MissingTargetNode, "target node %s does not exist", e.Target.NodeID)
	case in == nil:
		add(MissingTargetInput, "node %s has no input %s", e.Target.NodeID, e.Target.Input)
	}
	return errs
}

func (s *Store) sortedEdgeIDsLocked() []EdgeID {
	ids := make([]EdgeID, 0, len(s.edges))
	for id := range s.edges {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, cmp.Compare[EdgeID])
	return ids
}
