package document_test

import (
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/dataflow/pkg/dataflow/document"
)

func TestValidate_Example(t *testing.T) {
	assert.NoError(t, document.Validate(exampleDocument()))
}

func TestValidate_MissingReferencesAreNotErrors(t *testing.T) {
	doc := &document.Document{Nodes: []document.Node{{
		ID:       "a",
		Type:     "unregistered",
		ParentID: "gone",
		Inputs:   []document.Input{{Name: "in", Source: &document.Source{NodeID: "gone", Name: "out"}}},
	}}}
	assert.NoError(t, document.Validate(doc))
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	doc := &document.Document{
		Version: 7,
		Nodes: []document.Node{
			{ID: "a", Type: "t", Mode: "sideways"},
			{ID: "a", Type: "t"},
			{ID: "b/c", Type: ""},
			{
				ID:       "d",
				Type:     "t",
				ParentID: "d",
				Position: document.Position{Width: -1},
				Inputs: []document.Input{
					{Name: "x"},
					{Name: "x", Source: &document.Source{NodeID: "a", Name: ""}},
				},
				Outputs: []document.Output{{Name: "o"}, {Name: "o"}},
			},
		},
	}

	err := document.Validate(doc)
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)

	var msgs []string
	for _, e := range merr.Errors {
		msgs = append(msgs, e.Error())
	}
	for _, want := range []string{
		"version: must be at most 1",
		"nodes[0].mode: must be one of",
		"nodes[2].id: invalid identifier",
		"nodes[2].type: invalid identifier",
		"nodes[3].parentId: must differ from ID",
		"nodes[3].position.width: must be at least 0",
		"nodes[3].inputs[1].source.name: invalid identifier",
		"nodes[1].id: duplicate of nodes[0] (a)",
		"nodes[3].inputs[1].name: duplicate input x",
		"nodes[3].outputs[1].name: duplicate output o",
	} {
		assert.True(t, containsPrefix(msgs, want), "missing %q in %v", want, msgs)
	}
	assert.Len(t, msgs, 10)
}

func containsPrefix(msgs []string, prefix string) bool {
	for _, m := range msgs {
		if len(m) >= len(prefix) && m[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
