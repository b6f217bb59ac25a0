package dataflow

import (
	"slices"
	"time"
)

// Position is a node's placement on the canvas.
type Position struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Mode alters how the engine treats a node.
type Mode string

const (
	// ModeNormal runs the node's Execute function.
	ModeNormal Mode = ""
	// ModePassthrough copies each input to the output of the same name
	// instead of running Execute.
	ModePassthrough Mode = "passthrough"
	// ModeDisabled keeps the node out of scheduling entirely.
	ModeDisabled Mode = "disabled"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeNormal, ModePassthrough, ModeDisabled:
		return true
	}
	return false
}

// Input is an input port. EdgeID is set exactly when an edge targets it.
type Input struct {
	Name   InputName  `json:"name"`
	Type   ValueType  `json:"type"`
	Value  *Cell[any] `json:"value"`
	EdgeID EdgeID     `json:"edgeId,omitempty"`
}

// Output is an output port. EdgeIDs lists exactly the edges sourced from it.
type Output struct {
	Name    OutputName `json:"name"`
	Type    ValueType  `json:"type"`
	Value   *Cell[any] `json:"value"`
	EdgeIDs []EdgeID   `json:"edgeIds,omitempty"`
}

// Node is one computational unit of the graph.
//
// Nodes returned by Store reads are snapshots: their port lists, edge
// references and execution state are copies, while the Value and Data
// cells are shared with the live graph.
type Node struct {
	ID        NodeID                `json:"id"`
	Type      TypeName              `json:"type"`
	ParentID  NodeID                `json:"parentId,omitempty"`
	Position  Position              `json:"position"`
	Inputs    []*Input              `json:"inputs"`
	Outputs   []*Output             `json:"outputs"`
	Data      *Cell[map[string]any] `json:"data"`
	Mode      Mode                  `json:"mode,omitempty"`
	Execution ExecutionState        `json:"execution"`
}

// Input returns the named input port, or nil.
func (n *Node) Input(name InputName) *Input {
	for _, in := range n.Inputs {
		if in.Name == name {
			return in
		}
	}
	return nil
}

// Output returns the named output port, or nil.
func (n *Node) Output(name OutputName) *Output {
	for _, out := range n.Outputs {
		if out.Name == name {
			return out
		}
	}
	return nil
}

// clone copies the structural parts of n. Cells are shared.
func (n *Node) clone() *Node {
	c := *n
	c.Inputs = make([]*Input, len(n.Inputs))
	for i, in := range n.Inputs {
		cp := *in
		c.Inputs[i] = &cp
	}
	c.Outputs = make([]*Output, len(n.Outputs))
	for i, out := range n.Outputs {
		cp := *out
		cp.EdgeIDs = slices.Clone(out.EdgeIDs)
		c.Outputs[i] = &cp
	}
	c.Execution = n.Execution.clone()
	return &c
}

// addInput appends an input unless one with the same name exists.
func (n *Node) addInput(name InputName, typ ValueType) bool {
	if n.Input(name) != nil {
		return false
	}
	n.Inputs = append(n.Inputs, &Input{Name: name, Type: typ, Value: NewCell[any]()})
	return true
}

// addOutput appends an output unless one with the same name exists.
func (n *Node) addOutput(name OutputName, typ ValueType) bool {
	if n.Output(name) != nil {
		return false
	}
	n.Outputs = append(n.Outputs, &Output{Name: name, Type: typ, Value: NewCell[any]()})
	return true
}

// Status is the execution status of a node.
type Status string

const (
	StatusInitial Status = "initial"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusAborted Status = "aborted"
)

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusAborted
}

// Run describes the current or most recent run of a node.
type Run struct {
	RunID           string    `json:"runId,omitempty"`
	StartedAt       time.Time `json:"startedAt"`
	EndedAt         time.Time `json:"endedAt,omitempty"`
	ProgressRatio   float64   `json:"progressRatio,omitempty"`
	ProgressMessage string    `json:"progressMessage,omitempty"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
}

// RunRecord is an immutable summary of a finished run.
type RunRecord struct {
	RunID        string    `json:"runId,omitempty"`
	Status       Status    `json:"status"`
	StartedAt    time.Time `json:"startedAt"`
	EndedAt      time.Time `json:"endedAt"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// Duration returns how long the run took.
func (r RunRecord) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// ExecutionState is a node's execution status, its current run and the
// append-only history of finished runs.
type ExecutionState struct {
	Status  Status      `json:"status"`
	Current Run         `json:"current"`
	History []RunRecord `json:"history,omitempty"`
}

func (s ExecutionState) clone() ExecutionState {
	s.History = slices.Clone(s.History)
	return s
}

// LastRun returns the most recent history entry.
func (s ExecutionState) LastRun() (RunRecord, bool) {
	if len(s.History) == 0 {
		return RunRecord{}, false
	}
	return s.History[len(s.History)-1], true
}
