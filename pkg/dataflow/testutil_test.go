package dataflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// quietLogger discards everything.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(WithStoreLogger(quietLogger()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestEngine(t *testing.T, s *Store, opts ...EngineOption) *Engine {
	t.Helper()
	e := NewEngine(s, append([]EngineOption{WithLogger(quietLogger())}, opts...)...)
	t.Cleanup(e.Close)
	return e
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// stringType outputs its "value" input, falling back to data["value"].
func stringType() NodeType {
	return NodeType{
		Name:    "string",
		Inputs:  []InputSchema{{Name: "value", Type: "string"}},
		Outputs: []OutputSchema{{Name: "value", Type: "string"}},
		Execute: func(_ Controller, args ExecuteArgs) (*Result, error) {
			if v, ok := args.Input("value"); ok {
				return &Result{Outputs: map[OutputName]any{"value": v}}, nil
			}
			return &Result{Outputs: map[OutputName]any{"value": args.Data["value"]}}, nil
		},
	}
}

// blockingType blocks until release is closed or the run is aborted.
func blockingType(name TypeName, release <-chan struct{}) NodeType {
	return NodeType{
		Name:    name,
		Outputs: []OutputSchema{{Name: "done", Type: "bool"}},
		Execute: func(ctl Controller, _ ExecuteArgs) (*Result, error) {
			ctl.SetProgress(0.5, "waiting")
			select {
			case <-release:
				return &Result{Outputs: map[OutputName]any{"done": true}}, nil
			case <-ctl.Done():
				return nil, ctl.Err()
			}
		},
	}
}

func failingType(name TypeName, err error) NodeType {
	return NodeType{
		Name: name,
		Execute: func(Controller, ExecuteArgs) (*Result, error) {
			return nil, err
		},
	}
}

func panickingType(name TypeName, value any) NodeType {
	return NodeType{
		Name: name,
		Execute: func(Controller, ExecuteArgs) (*Result, error) {
			panic(value)
		},
	}
}

// countingType counts its runs and returns no changes.
func countingType(name TypeName, runs *atomic.Int64) NodeType {
	return NodeType{
		Name:   name,
		Inputs: []InputSchema{{Name: "in", Type: "any"}},
		Execute: func(Controller, ExecuteArgs) (*Result, error) {
			runs.Add(1)
			return nil, nil
		},
	}
}

var errBoom = errors.New("boom")

func mustCreateNode(t *testing.T, s *Store, spec NodeSpec) {
	t.Helper()
	require.NoError(t, s.CreateNode(spec))
}

func mustConnect(t *testing.T, s *Store, src NodeID, out OutputName, tgt NodeID, in InputName) EdgeID {
	t.Helper()
	id, err := s.CreateEdge(SourceRef{NodeID: src, Output: out}, TargetRef{NodeID: tgt, Input: in})
	require.NoError(t, err)
	return id
}

func outputValue(t *testing.T, s *Store, id NodeID, name OutputName) any {
	t.Helper()
	n, ok := s.Node(id)
	require.True(t, ok, "node %s", id)
	out := n.Output(name)
	require.NotNil(t, out, "output %s", name)
	v, _ := out.Value.Get()
	return v
}

func inputValue(t *testing.T, s *Store, id NodeID, name InputName) any {
	t.Helper()
	n, ok := s.Node(id)
	require.True(t, ok, "node %s", id)
	in := n.Input(name)
	require.NotNil(t, in, "input %s", name)
	v, _ := in.Value.Get()
	return v
}

func execution(t *testing.T, s *Store, id NodeID) ExecutionState {
	t.Helper()
	n, ok := s.Node(id)
	require.True(t, ok, "node %s", id)
	return n.Execution
}
