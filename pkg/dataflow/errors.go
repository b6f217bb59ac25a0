package dataflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for store mutations. Mutations that fail with one of
// these are logged and leave the graph untouched.
var (
	// ErrInvalidID indicates an identifier failed validation.
	ErrInvalidID = errors.New("invalid identifier")

	// ErrNodeNotFound indicates a mutation referenced a node that does not exist.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNodeExists indicates a node id is already taken.
	ErrNodeExists = errors.New("node already exists")

	// ErrEdgeNotFound indicates a mutation referenced an edge that does not exist.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrPortNotFound indicates a named input or output does not exist on a node.
	ErrPortNotFound = errors.New("port not found")

	// ErrPortExists indicates a port with the same name already exists on a node.
	ErrPortExists = errors.New("port already exists")

	// ErrTypeNotFound indicates a node type is not registered.
	ErrTypeNotFound = errors.New("node type not registered")

	// ErrInvalidMode indicates an unknown node mode.
	ErrInvalidMode = errors.New("invalid node mode")

	// ErrInvalidParent indicates a node was made its own parent.
	ErrInvalidParent = errors.New("node cannot be its own parent")

	// ErrStoreClosed indicates a mutation on a closed store.
	ErrStoreClosed = errors.New("store closed")
)

// Sentinel errors for execution.
var (
	// ErrNodeRunning indicates an execution was requested for a node that is
	// already running. The request is dropped, not queued.
	ErrNodeRunning = errors.New("node already running")

	// ErrNodeDisabled indicates an execution was requested for a disabled node.
	ErrNodeDisabled = errors.New("node disabled")

	// ErrEngineRunning indicates an operation that requires a stopped engine.
	ErrEngineRunning = errors.New("engine running")

	// ErrNilExecute indicates a node type was registered without an Execute function.
	ErrNilExecute = errors.New("node type has no execute function")
)

// MutationError describes a rejected store action.
type MutationError struct {
	// Op is the store action, e.g. "createEdge".
	Op string
	// Subject identifies what the action was applied to.
	Subject string
	// Err is the underlying sentinel.
	Err error
}

// Error implements the error interface.
func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Subject, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NodeError wraps an error returned by a node type's Execute function.
type NodeError struct {
	// NodeID is the node that failed.
	NodeID NodeID
	// Op is the operation that failed (e.g., "execute").
	Op string
	// Err is the underlying error from the node.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised inside Execute.
// It includes the stack trace for debugging.
type PanicError struct {
	// NodeID is the node that panicked.
	NodeID NodeID
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CancellationError records that a node run observed the engine's abort.
type CancellationError struct {
	// NodeID is the node whose run was aborted.
	NodeID NodeID
	// Cause is context.Canceled or context.DeadlineExceeded.
	Cause error
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	return fmt.Sprintf("node %s aborted: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

func mutationError(op string, subject any, err error) *MutationError {
	return &MutationError{Op: op, Subject: fmt.Sprint(subject), Err: err}
}
