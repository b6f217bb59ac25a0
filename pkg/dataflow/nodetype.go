package dataflow

import (
	"context"
	"log/slog"
)

// InputSchema declares an input port of a node type.
type InputSchema struct {
	Name InputName `json:"name"`
	Type ValueType `json:"type"`
}

// OutputSchema declares an output port of a node type.
type OutputSchema struct {
	Name OutputName `json:"name"`
	Type ValueType  `json:"type"`
}

// ExecuteFunc is the logic of a node type.
//
// It returns a nil Result to signal "no changes". A non-nil error marks the
// run as failed, unless the controller was cancelled, in which case the
// run is recorded as aborted.
type ExecuteFunc func(ctl Controller, args ExecuteArgs) (*Result, error)

// NodeType is a registered node kind: its port schemas and its logic.
type NodeType struct {
	Name    TypeName
	Inputs  []InputSchema
	Outputs []OutputSchema
	Execute ExecuteFunc

	// Component is an opaque handle for presentation layers. The runtime
	// never inspects it.
	Component any
}

// ExecuteArgs is the argument bundle passed to Execute.
type ExecuteArgs struct {
	// Inputs holds every input that has been written, keyed by name.
	// A null input is present with a nil value; an unset input is absent.
	Inputs map[InputName]any
	// Data is a shallow copy of the node's data cell.
	Data map[string]any
	// Node is a snapshot of the node at the start of the run.
	Node *Node
	// Store gives read access to the rest of the graph.
	Store *Store
}

// Input returns the named input and whether it was written.
func (a ExecuteArgs) Input(name InputName) (any, bool) {
	v, ok := a.Inputs[name]
	return v, ok
}

// Result is what Execute produces.
type Result struct {
	// Outputs to write. A key mapped to nil sets that output to null; an
	// absent key leaves the output untouched.
	Outputs map[OutputName]any
	// Data, when non-nil, replaces the node's data cell.
	Data map[string]any
}

// Controller is the execution context handed to Execute.
// It extends context.Context; Done fires when the engine run is aborted.
type Controller interface {
	context.Context

	// Logger returns a logger enriched with run and node context.
	Logger() *slog.Logger

	// RunID identifies this particular run of the node.
	RunID() string

	// NodeID returns the node being executed.
	NodeID() NodeID

	// SetProgress reports progress of a long-running execution.
	SetProgress(ratio float64, message string)
}

// executionController is the internal implementation of Controller.
type executionController struct {
	context.Context

	logger   *slog.Logger
	runID    string
	nodeID   NodeID
	progress func(ratio float64, message string)
}

func (c *executionController) Logger() *slog.Logger { return c.logger }
func (c *executionController) RunID() string { return c.runID }
func (c *executionController) NodeID() NodeID { return c.nodeID }

func (c *executionController) SetProgress(ratio float64, message string) {
	if c.progress != nil {
		c.progress(ratio, message)
	}
}
