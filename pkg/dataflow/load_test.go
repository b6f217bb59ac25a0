package dataflow

import (
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Load(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateNodeType(stringType()))

	err := s.Load(GraphSpec{
		Nodes: []NodeSpec{
			// n2 is listed first; its edge still resolves because edges are
			// created after all nodes.
			{ID: "n2", Type: "string"},
			{ID: "n1", Type: "string", Data: map[string]any{"value": "x"}},
		},
		Edges: []EdgeSpec{{
			Source: SourceRef{NodeID: "n1", Output: "value"},
			Target: TargetRef{NodeID: "n2", Input: "value"},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, []NodeID{"n2", "n1"}, s.NodeIDs())
	id := EdgeIDFor("n1", "value", "n2", "value")
	n1, _ := s.Node("n1")
	assert.Equal(t, []EdgeID{id}, n1.Output("value").EdgeIDs, "ports come from type population")
	n2, _ := s.Node("n2")
	assert.Equal(t, id, n2.Input("value").EdgeID)
	assert.Empty(t, s.GraphErrors())
}

func TestStore_Load_MissingSourceIsSynthesized(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateNodeType(stringType()))

	err := s.Load(GraphSpec{
		Nodes: []NodeSpec{{ID: "n2", Type: "string"}},
		Edges: []EdgeSpec{{
			Source: SourceRef{NodeID: "gone", Output: "value"},
			Target: TargetRef{NodeID: "n2", Input: "value"},
		}},
	})
	require.NoError(t, err)

	require.Len(t, s.Edges(), 1)
	errs := s.GraphErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, MissingSourceNode, errs[0].Kind)
	assert.Equal(t, EdgeIDFor("gone", "value", "n2", "value"), errs[0].EdgeID)
}

func TestStore_Load_AggregatesRejections(t *testing.T) {
	s := newTestStore(t)

	err := s.Load(GraphSpec{
		Nodes: []NodeSpec{
			{ID: "ok", Type: "custom"},
			{ID: "ok", Type: "custom"},
			{ID: "", Type: "custom"},
		},
		Edges: []EdgeSpec{{
			Source: SourceRef{NodeID: "ok", Output: ""},
			Target: TargetRef{NodeID: "ok", Input: "in"},
		}},
	})
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 3)
	assert.ErrorIs(t, merr.Errors[0], ErrNodeExists)
	assert.ErrorIs(t, merr.Errors[1], ErrInvalidID)
	assert.Equal(t, 1, s.Len(), "valid entries are kept")
}

func TestStore_Load_LastConnectionWins(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateNodeType(stringType()))

	err := s.Load(GraphSpec{
		Nodes: []NodeSpec{{ID: "a", Type: "string"}, {ID: "b", Type: "string"}, {ID: "c", Type: "string"}},
		Edges: []EdgeSpec{
			{Source: SourceRef{NodeID: "a", Output: "value"}, Target: TargetRef{NodeID: "c", Input: "value"}},
			{Source: SourceRef{NodeID: "b", Output: "value"}, Target: TargetRef{NodeID: "c", Input: "value"}},
		},
	})
	require.NoError(t, err)

	edges := s.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, NodeID("b"), edges[0].Source.NodeID)
}

func TestStore_Reset(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateNodeType(stringType()))
	mustCreateNode(t, s, NodeSpec{ID: "a", Type: "string"})
	mustCreateNode(t, s, NodeSpec{ID: "b", Type: "string"})
	mustConnect(t, s, "a", "value", "b", "value")

	require.NoError(t, s.Reset())

	assert.Zero(t, s.Len())
	assert.Empty(t, s.Edges())
	_, ok := s.NodeType("string")
	assert.True(t, ok, "types survive a reset")
}
