package dataflow

import (
	"encoding/json"
	"sync"
)

// CellState distinguishes a cell that was never written from one that was
// explicitly set to null.
type CellState uint8

const (
	// CellUnset means the cell has never held a value, or was cleared.
	CellUnset CellState = iota
	// CellNull means the cell was explicitly set to null.
	CellNull
	// CellPresent means the cell holds a value.
	CellPresent
)

func (s CellState) String() string {
	switch s {
	case CellNull:
		return "null"
	case CellPresent:
		return "present"
	default:
		return "unset"
	}
}

// Cell is a versioned mutable container. Every write increments its change
// counter, including writes of an equal value; the counter is used for
// staleness detection, never for equality.
//
// Cell is safe for concurrent use.
type Cell[T any] struct {
	mu      sync.RWMutex
	value   T
	state   CellState
	counter uint64
}

// NewCell returns an unset cell with a zero counter.
func NewCell[T any]() *Cell[T] {
	return &Cell[T]{}
}

// NewCellOf returns a cell holding v. Its counter starts at 1.
func NewCellOf[T any](v T) *Cell[T] {
	return &Cell[T]{value: v, state: CellPresent, counter: 1}
}

// Get returns the current value and state. The value is the zero value of
// T unless the state is CellPresent.
func (c *Cell[T]) Get() (T, CellState) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.state
}

// Snapshot returns value, state and counter read atomically.
func (c *Cell[T]) Snapshot() (T, CellState, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.state, c.counter
}

// Value returns the value and whether one is present.
func (c *Cell[T]) Value() (T, bool) {
	v, state := c.Get()
	return v, state == CellPresent
}

// State returns the cell state.
func (c *Cell[T]) State() CellState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Counter returns the change counter.
func (c *Cell[T]) Counter() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counter
}

// Set stores v and returns the new counter.
func (c *Cell[T]) Set(v T) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.state = CellPresent
	c.counter++
	return c.counter
}

// SetNull marks the cell as explicitly null and returns the new counter.
func (c *Cell[T]) SetNull() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value = zero
	c.state = CellNull
	c.counter++
	return c.counter
}

// Clear returns the cell to the unset state. The counter only moves when
// the cell previously held a value or null.
func (c *Cell[T]) Clear() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CellUnset {
		var zero T
		c.value = zero
		c.state = CellUnset
		c.counter++
	}
	return c.counter
}

// CopyFrom writes src's value and state into c. Copying an unset source
// behaves like Clear.
func (c *Cell[T]) CopyFrom(src *Cell[T]) uint64 {
	v, state := src.Get()
	switch state {
	case CellPresent:
		return c.Set(v)
	case CellNull:
		return c.SetNull()
	default:
		return c.Clear()
	}
}

// MarshalJSON encodes the value, or null when the cell is not present.
func (c *Cell[T]) MarshalJSON() ([]byte, error) {
	v, ok := c.Value()
	if !ok {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}
