package nodetypes_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/dataflow/pkg/dataflow"
	"github.com/randalmurphal/dataflow/pkg/dataflow/nodetypes"
)

func setup(t *testing.T) (*dataflow.Store, *dataflow.Engine) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := dataflow.NewStore(dataflow.WithStoreLogger(logger))
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, nodetypes.Register(s, nodetypes.Builtins()...))
	e := dataflow.NewEngine(s, dataflow.WithLogger(logger))
	t.Cleanup(e.Close)
	return s, e
}

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func output(t *testing.T, s *dataflow.Store, id dataflow.NodeID, name dataflow.OutputName) (any, dataflow.CellState) {
	t.Helper()
	n, ok := s.Node(id)
	require.True(t, ok)
	out := n.Output(name)
	require.NotNil(t, out)
	return out.Value.Get()
}

func TestBuiltins_Registered(t *testing.T) {
	s, _ := setup(t)
	var names []dataflow.TypeName
	for _, def := range s.NodeTypes() {
		names = append(names, def.Name)
	}
	assert.ElementsMatch(t, []dataflow.TypeName{"default", "string", "tempWrapper", "concat", "delay"}, names)
}

func TestString(t *testing.T) {
	tests := []struct {
		name      string
		input     any
		setInput  bool
		data      map[string]any
		want      any
		wantState dataflow.CellState
	}{
		{"input wins", "in", true, map[string]any{"value": "data"}, "in", dataflow.CellPresent},
		{"unset input falls back to data", nil, false, map[string]any{"value": "data"}, "data", dataflow.CellPresent},
		{"null input falls back to data", nil, true, map[string]any{"value": "data"}, "data", dataflow.CellPresent},
		{"nothing gives null", nil, false, nil, nil, dataflow.CellNull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, e := setup(t)
			require.NoError(t, s.CreateNode(dataflow.NodeSpec{ID: "n", Type: nodetypes.TypeString, Data: tt.data}))
			if tt.setInput {
				require.NoError(t, s.SetInputValue("n", "value", tt.input))
			}

			status, err := e.ExecuteNode(ctx(t), "n")
			require.NoError(t, err)
			assert.Equal(t, dataflow.StatusSuccess, status)

			v, state := output(t, s, "n", "value")
			assert.Equal(t, tt.wantState, state)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestString_Chain(t *testing.T) {
	s, e := setup(t)
	require.NoError(t, s.CreateNode(dataflow.NodeSpec{ID: "n1", Type: nodetypes.TypeString, Data: map[string]any{"value": "test"}}))
	require.NoError(t, s.CreateNode(dataflow.NodeSpec{ID: "n2", Type: nodetypes.TypeString, Data: map[string]any{"value": "test2"}}))
	_, err := s.CreateEdge(dataflow.SourceRef{NodeID: "n1", Output: "value"}, dataflow.TargetRef{NodeID: "n2", Input: "value"})
	require.NoError(t, err)

	require.NoError(t, e.RunUntilIdle(ctx(t)))

	v, _ := output(t, s, "n2", "value")
	assert.Equal(t, "test", v)
}

func TestConcat(t *testing.T) {
	s, e := setup(t)
	require.NoError(t, s.CreateNode(dataflow.NodeSpec{ID: "c", Type: nodetypes.TypeConcat, Data: map[string]any{"separator": "-"}}))
	require.NoError(t, s.SetInputValue("c", "a", "left"))
	require.NoError(t, s.SetInputValue("c", "b", 42))

	require.NoError(t, e.RunUntilIdle(ctx(t)))
	v, _ := output(t, s, "c", "value")
	assert.Equal(t, "left-42", v)

	require.NoError(t, s.SetInputValue("c", "b", nil))
	require.NoError(t, e.RunUntilIdle(ctx(t)))
	v, _ = output(t, s, "c", "value")
	assert.Equal(t, "left-", v)
}

func TestDelay(t *testing.T) {
	s, e := setup(t)
	require.NoError(t, s.CreateNode(dataflow.NodeSpec{ID: "d", Type: nodetypes.TypeDelay, Data: map[string]any{"delay": "10ms"}}))
	require.NoError(t, s.SetInputValue("d", "value", "later"))

	status, err := e.ExecuteNode(ctx(t), "d")
	require.NoError(t, err)
	assert.Equal(t, dataflow.StatusSuccess, status)

	v, _ := output(t, s, "d", "value")
	assert.Equal(t, "later", v)

	n, _ := s.Node("d")
	assert.Equal(t, 1.0, n.Execution.Current.ProgressRatio)
	assert.Equal(t, "done", n.Execution.Current.ProgressMessage)
}

func TestDelay_Abort(t *testing.T) {
	s, e := setup(t)
	require.NoError(t, s.CreateNode(dataflow.NodeSpec{ID: "d", Type: nodetypes.TypeDelay, Data: map[string]any{"delay": float64(time.Hour / time.Millisecond)}}))

	runCtx, cancel := context.WithTimeout(ctx(t), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	status, err := e.ExecuteNode(runCtx, "d")
	require.NoError(t, err)
	assert.Equal(t, dataflow.StatusAborted, status)
	assert.Less(t, time.Since(start), time.Second)

	_, state := output(t, s, "d", "value")
	assert.Equal(t, dataflow.CellUnset, state, "aborted outputs are discarded")
}

func TestDelay_BadData(t *testing.T) {
	s, e := setup(t)
	require.NoError(t, s.CreateNode(dataflow.NodeSpec{ID: "d", Type: nodetypes.TypeDelay, Data: map[string]any{"delay": "soon"}}))

	status, err := e.ExecuteNode(ctx(t), "d")
	require.NoError(t, err)
	assert.Equal(t, dataflow.StatusError, status)

	n, _ := s.Node("d")
	last, ok := n.Execution.LastRun()
	require.True(t, ok)
	assert.Contains(t, last.ErrorMessage, "delay")
}

func TestPlaceholders_NotImplemented(t *testing.T) {
	for _, typ := range []dataflow.TypeName{nodetypes.TypeDefault, nodetypes.TypeTempWrapper} {
		t.Run(string(typ), func(t *testing.T) {
			s, e := setup(t)
			require.NoError(t, s.CreateNode(dataflow.NodeSpec{ID: "p", Type: typ}))

			status, err := e.ExecuteNode(ctx(t), "p")
			require.NoError(t, err)
			assert.Equal(t, dataflow.StatusError, status)

			n, _ := s.Node("p")
			assert.Equal(t, "not implemented", n.Execution.Current.ErrorMessage)
		})
	}
}

func TestRegister_AggregatesFailures(t *testing.T) {
	s := dataflow.NewStore(dataflow.WithStoreLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer s.Close()

	err := nodetypes.Register(s,
		nodetypes.String(),
		dataflow.NodeType{Name: "noexec"},
		dataflow.NodeType{Name: ""},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, dataflow.ErrNilExecute)
	_, ok := s.NodeType(nodetypes.TypeString)
	assert.True(t, ok)
}
