package dataflow

import (
	"github.com/hashicorp/go-multierror"

	"github.com/randalmurphal/dataflow/pkg/dataflow/event"
	"github.com/randalmurphal/dataflow/pkg/dataflow/observability"
)

// GraphSpec is a whole graph to load in one step.
type GraphSpec struct {
	Nodes []NodeSpec
	Edges []EdgeSpec
}

// GraphLoaded is the payload of EventGraphLoaded.
type GraphLoaded struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// Load adds a graph in three passes: every node, then every edge, then
// type population. Edges are created even when an endpoint is missing,
// which then shows up as a graph error. Entries that cannot be added at
// all (bad ids, duplicate nodes) are skipped, logged and returned together.
//
// Load publishes a single EventGraphLoaded.
func (s *Store) Load(g GraphSpec) error {
	var result *multierror.Error
	loaded := GraphLoaded{}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.reject("load", "graph", ErrStoreClosed)
	}

	nodes := make([]*Node, 0, len(g.Nodes))
	for _, spec := range g.Nodes {
		n, err := s.createNodeLocked(spec)
		if err != nil {
			result = multierror.Append(result, mutationError("createNode", spec.ID, err))
			continue
		}
		nodes = append(nodes, n)
	}
	loaded.Nodes = len(nodes)

	for _, spec := range g.Edges {
		if err := validateEdgeSpec(spec); err != nil {
			result = multierror.Append(result, mutationError("createEdge", spec.ID(), err))
			continue
		}
		if _, exists := s.edges[spec.ID()]; exists {
			continue
		}
		s.connectLocked(newEdge(spec.Source, spec.Target))
		loaded.Edges++
	}

	for _, n := range nodes {
		if def, ok := s.types.Get(n.Type); ok {
			populate(n, def)
		}
		s.attachDanglingLocked(n)
	}
	s.mu.Unlock()

	if result != nil {
		for _, err := range result.Errors {
			if merr, ok := err.(*MutationError); ok {
				observability.LogMutationRejected(s.logger, merr.Op, merr.Subject, merr.Err)
			}
		}
	}
	s.publish(event.New(EventGraphLoaded, eventSource, "graph", loaded))
	return result.ErrorOrNil()
}

// Reset removes every node and edge. Registered types are kept.
func (s *Store) Reset() error {
	return s.mutate("reset", "graph", func() ([]event.Event, error) {
		s.nodes = make(map[NodeID]*Node)
		s.order = nil
		s.edges = make(map[EdgeID]*Edge)
		return []event.Event{event.New(EventGraphLoaded, eventSource, "graph", GraphLoaded{})}, nil
	})
}

func validateEdgeSpec(spec EdgeSpec) error {
	if err := validateIdentifier("node id", string(spec.Source.NodeID)); err != nil {
		return err
	}
	if err := validateIdentifier("output name", string(spec.Source.Output)); err != nil {
		return err
	}
	if err := validateIdentifier("node id", string(spec.Target.NodeID)); err != nil {
		return err
	}
	return validateIdentifier("input name", string(spec.Target.Input))
}
