// Package document converts between the live graph and its persisted form.
//
// A Document lists nodes in order. Edges are not stored: each input names
// the output it reads from, and edges are derived from those sources on
// load and recomputed from the live edges on save.
package document

import (
	"maps"

	"github.com/randalmurphal/dataflow/pkg/dataflow"
)

const (
	// FormatVersion is the document format written by FromStore.
	// Documents without a version are read as version 1.
	FormatVersion = 1

	// DefaultKey is the storage key of the workflow document.
	DefaultKey = "workflow-document"
)

// Document is the persisted form of a graph.
type Document struct {
	Version int    `json:"version" yaml:"version" msgpack:"version" validate:"gte=0,lte=1"`
	Nodes   []Node `json:"nodes" yaml:"nodes" msgpack:"nodes" validate:"dive"`
}

// Node is one persisted node.
type Node struct {
	ID       dataflow.NodeID   `json:"id" yaml:"id" msgpack:"id" validate:"identifier"`
	Type     dataflow.TypeName `json:"type" yaml:"type" msgpack:"type" validate:"identifier"`
	ParentID dataflow.NodeID   `json:"parentId,omitempty" yaml:"parentId,omitempty" msgpack:"parentId,omitempty" validate:"omitempty,identifier,nefield=ID"`
	Position Position          `json:"position" yaml:"position" msgpack:"position"`
	Inputs   []Input           `json:"inputs" yaml:"inputs" msgpack:"inputs" validate:"dive"`
	Outputs  []Output          `json:"outputs" yaml:"outputs" msgpack:"outputs" validate:"dive"`
	Data     map[string]any    `json:"data" yaml:"data" msgpack:"data"`
	Mode     dataflow.Mode     `json:"mode,omitempty" yaml:"mode,omitempty" msgpack:"mode,omitempty" validate:"omitempty,oneof=passthrough disabled"`
}

// Position is a node's placement on the canvas.
type Position struct {
	X      float64 `json:"x" yaml:"x" msgpack:"x"`
	Y      float64 `json:"y" yaml:"y" msgpack:"y"`
	Width  float64 `json:"width" yaml:"width" msgpack:"width" validate:"gte=0"`
	Height float64 `json:"height" yaml:"height" msgpack:"height" validate:"gte=0"`
}

// Input is a persisted input port. Source names the output feeding it.
type Input struct {
	Name   dataflow.InputName `json:"name" yaml:"name" msgpack:"name" validate:"identifier"`
	Type   dataflow.ValueType `json:"type" yaml:"type" msgpack:"type"`
	Source *Source            `json:"source,omitempty" yaml:"source,omitempty" msgpack:"source,omitempty"`
}

// Source references an output port of another node.
type Source struct {
	NodeID dataflow.NodeID     `json:"nodeId" yaml:"nodeId" msgpack:"nodeId" validate:"identifier"`
	Name   dataflow.OutputName `json:"name" yaml:"name" msgpack:"name" validate:"identifier"`
}

// Output is a persisted output port.
type Output struct {
	Name dataflow.OutputName `json:"name" yaml:"name" msgpack:"name" validate:"identifier"`
	Type dataflow.ValueType  `json:"type" yaml:"type" msgpack:"type"`
}

// Spec converts the document into a graph the store can load. Edges are
// derived from input sources after all nodes are listed, so forward
// references resolve regardless of node order.
func (d *Document) Spec() dataflow.GraphSpec {
	var g dataflow.GraphSpec
	for _, n := range d.Nodes {
		spec := dataflow.NodeSpec{
			ID:       n.ID,
			Type:     n.Type,
			ParentID: n.ParentID,
			Position: dataflow.Position(n.Position),
			Data:     maps.Clone(n.Data),
			Mode:     n.Mode,
		}
		if spec.Data == nil {
			spec.Data = map[string]any{}
		}
		for _, in := range n.Inputs {
			spec.Inputs = append(spec.Inputs, dataflow.InputSchema{Name: in.Name, Type: in.Type})
		}
		for _, out := range n.Outputs {
			spec.Outputs = append(spec.Outputs, dataflow.OutputSchema{Name: out.Name, Type: out.Type})
		}
		g.Nodes = append(g.Nodes, spec)
	}
	for _, n := range d.Nodes {
		for _, in := range n.Inputs {
			if in.Source == nil {
				continue
			}
			g.Edges = append(g.Edges, dataflow.EdgeSpec{
				Source: dataflow.SourceRef{NodeID: in.Source.NodeID, Output: in.Source.Name},
				Target: dataflow.TargetRef{NodeID: n.ID, Input: in.Name},
			})
		}
	}
	return g
}

// Load adds every node and derived edge of d to s. Invalid entries are
// skipped and returned together; everything else is loaded.
func Load(s *dataflow.Store, d *Document) error {
	return s.Load(d.Spec())
}

// FromStore projects the live graph into a document. Each input's source
// is read from its current edge; inputs without one omit it.
func FromStore(s *dataflow.Store) *Document {
	doc := &Document{Version: FormatVersion, Nodes: []Node{}}
	for _, n := range s.Nodes() {
		data, _ := n.Data.Value()
		out := Node{
			ID:       n.ID,
			Type:     n.Type,
			ParentID: n.ParentID,
			Position: Position(n.Position),
			Inputs:   make([]Input, 0, len(n.Inputs)),
			Outputs:  make([]Output, 0, len(n.Outputs)),
			Data:     maps.Clone(data),
			Mode:     n.Mode,
		}
		if out.Data == nil {
			out.Data = map[string]any{}
		}
		for _, in := range n.Inputs {
			pin := Input{Name: in.Name, Type: in.Type}
			if in.EdgeID != "" {
				if e, ok := s.Edge(in.EdgeID); ok {
					pin.Source = &Source{NodeID: e.Source.NodeID, Name: e.Source.Output}
				}
			}
			out.Inputs = append(out.Inputs, pin)
		}
		for _, o := range n.Outputs {
			out.Outputs = append(out.Outputs, Output{Name: o.Name, Type: o.Type})
		}
		doc.Nodes = append(doc.Nodes, out)
	}
	return doc
}
