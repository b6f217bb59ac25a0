package dataflow

// SourceRef names an output port.
type SourceRef struct {
	NodeID NodeID     `json:"nodeId"`
	Output OutputName `json:"output"`
}

// TargetRef names an input port.
type TargetRef struct {
	NodeID NodeID    `json:"nodeId"`
	Input  InputName `json:"input"`
}

// Edge connects one output port to one input port. Endpoints are stored as
// keys; resolve them with Store.Node.
type Edge struct {
	ID     EdgeID     `json:"id"`
	Source SourceRef  `json:"source"`
	Target TargetRef  `json:"target"`
	Value  *Cell[any] `json:"value"`
}

func newEdge(source SourceRef, target TargetRef) *Edge {
	return &Edge{
		ID:     EdgeIDFor(source.NodeID, source.Output, target.NodeID, target.Input),
		Source: source,
		Target: target,
		Value:  NewCell[any](),
	}
}

func (e *Edge) clone() *Edge {
	c := *e
	return &c
}

// EdgeSpec describes an edge to create.
type EdgeSpec struct {
	Source SourceRef `json:"source"`
	Target TargetRef `json:"target"`
}

// ID returns the deterministic id of the described edge.
func (s EdgeSpec) ID() EdgeID {
	return EdgeIDFor(s.Source.NodeID, s.Source.Output, s.Target.NodeID, s.Target.Input)
}
