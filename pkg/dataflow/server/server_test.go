package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/dataflow/pkg/dataflow"
	"github.com/randalmurphal/dataflow/pkg/dataflow/document"
	"github.com/randalmurphal/dataflow/pkg/dataflow/nodetypes"
	"github.com/randalmurphal/dataflow/pkg/dataflow/server"
	"github.com/randalmurphal/dataflow/pkg/dataflow/storage"
	"github.com/randalmurphal/dataflow/pkg/dataflow/workbench"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func chainDocument() *document.Document {
	out := []document.Output{{Name: "value", Type: "string"}}
	return &document.Document{Version: 1, Nodes: []document.Node{
		{ID: "n1", Type: "string", Outputs: out, Data: map[string]any{"value": "hello"}},
		{ID: "n2", Type: "string", Outputs: out, Inputs: []document.Input{
			{Name: "value", Type: "string", Source: &document.Source{NodeID: "n1", Name: "value"}},
		}},
	}}
}

func newTestServer(t *testing.T, opts ...workbench.Option) (*server.Server, *workbench.Runtime) {
	t.Helper()
	opts = append([]workbench.Option{workbench.WithLogger(quietLogger())}, opts...)
	rt, err := workbench.New(chainDocument(), nodetypes.Builtins(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.Dispose(ctx)
	})
	return server.New(rt), rt
}

// do sends a request and decodes the JSON response, if any.
func do(t *testing.T, s *server.Server, method, path string, body any) (int, any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func errorOf(t *testing.T, body any) string {
	t.Helper()
	m, ok := body.(map[string]any)
	require.True(t, ok, "body %v", body)
	msg, _ := m["error"].(string)
	return msg
}

func outputOf(rt *workbench.Runtime, id dataflow.NodeID) any {
	n, ok := rt.Store().Node(id)
	if !ok {
		return nil
	}
	v, _ := n.Output("value").Value.Value()
	return v
}

func TestDocument_GetAndReplace(t *testing.T) {
	s, rt := newTestServer(t)

	status, body := do(t, s, http.MethodGet, "/document", nil)
	require.Equal(t, http.StatusOK, status)
	nodes := body.(map[string]any)["nodes"].([]any)
	require.Len(t, nodes, 2)
	assert.Equal(t, "n2", nodes[1].(map[string]any)["id"])

	status, body = do(t, s, http.MethodPut, "/document", map[string]any{
		"version": 1,
		"nodes":   []any{map[string]any{"id": "solo", "type": "string"}},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body.(map[string]any)["rejected"])
	assert.Equal(t, []dataflow.NodeID{"solo"}, rt.Store().NodeIDs())
}

func TestDocument_ReplaceRejectsInvalid(t *testing.T) {
	s, rt := newTestServer(t)

	status, body := do(t, s, http.MethodPut, "/document", map[string]any{
		"nodes": []any{
			map[string]any{"id": "a", "type": "string"},
			map[string]any{"id": "a", "type": "string"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errorOf(t, body), "duplicate")

	status, _ = do(t, s, http.MethodPut, "/document", "not a document")
	assert.Equal(t, http.StatusBadRequest, status)

	rt.Engine().Start()
	status, body = do(t, s, http.MethodPut, "/document", map[string]any{"nodes": []any{}})
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, errorOf(t, body), "engine running")
	assert.Equal(t, 2, rt.Store().Len())
}

func TestDocument_Save(t *testing.T) {
	s, _ := newTestServer(t)
	status, _ := do(t, s, http.MethodPost, "/document/save", nil)
	assert.Equal(t, http.StatusConflict, status)

	backend := storage.NewMemoryStore()
	repo := document.NewRepository(backend, document.WithRepositoryLogger(quietLogger()))
	s, _ = newTestServer(t, workbench.WithRepository(repo, time.Hour))

	status, _ = do(t, s, http.MethodPost, "/document/save", nil)
	require.Equal(t, http.StatusNoContent, status)
	saved, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, saved.Nodes, 2)
}

func TestNodes(t *testing.T) {
	s, rt := newTestServer(t)

	status, body := do(t, s, http.MethodGet, "/nodes", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body, 2)

	status, body = do(t, s, http.MethodPost, "/nodes", map[string]any{
		"id": "n3", "type": "concat", "data": map[string]any{"separator": "-"},
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "n3", body.(map[string]any)["id"])

	status, body = do(t, s, http.MethodGet, "/nodes/n3", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "concat", body.(map[string]any)["type"])
	assert.Len(t, body.(map[string]any)["inputs"], 2, "ports come from the type")

	status, _ = do(t, s, http.MethodPost, "/nodes", map[string]any{"id": "n3", "type": "string"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = do(t, s, http.MethodPost, "/nodes", map[string]any{"id": "a/b", "type": "string"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, s, http.MethodPost, "/nodes", map[string]any{"type": "string"})
	require.Equal(t, http.StatusCreated, status)
	assert.Contains(t, body.(map[string]any)["id"], "node-")

	status, body = do(t, s, http.MethodGet, "/nodes/ghost", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "node not found", errorOf(t, body))

	status, _ = do(t, s, http.MethodPut, "/nodes/n3/data", map[string]any{"separator": "+"})
	require.Equal(t, http.StatusNoContent, status)
	n3, _ := rt.Store().Node("n3")
	data, _ := n3.Data.Value()
	assert.Equal(t, "+", data["separator"])

	status, body = do(t, s, http.MethodPost, "/nodes/n3/rename", map[string]any{"id": "joiner"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "joiner", body.(map[string]any)["id"])
	assert.True(t, rt.Store().HasNode("joiner"))

	status, _ = do(t, s, http.MethodPost, "/nodes/n1/rename", map[string]any{"id": "n2"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = do(t, s, http.MethodDelete, "/nodes/joiner", nil)
	require.Equal(t, http.StatusNoContent, status)
	status, _ = do(t, s, http.MethodDelete, "/nodes/joiner", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestEdges(t *testing.T) {
	s, rt := newTestServer(t)
	id := dataflow.EdgeIDFor("n1", "value", "n2", "value")

	status, body := do(t, s, http.MethodGet, "/edges", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body, 1)
	assert.Equal(t, string(id), body.([]any)[0].(map[string]any)["id"])

	status, _ = do(t, s, http.MethodDelete, "/edges/"+url.PathEscape(string(id)), nil)
	require.Equal(t, http.StatusNoContent, status)
	assert.Empty(t, rt.Store().Edges())

	status, _ = do(t, s, http.MethodDelete, "/edges/"+url.PathEscape(string(id)), nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = do(t, s, http.MethodPost, "/edges", map[string]any{
		"source": map[string]any{"nodeId": "n1", "output": "value"},
		"target": map[string]any{"nodeId": "n2", "input": "value"},
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, string(id), body.(map[string]any)["id"])

	status, body = do(t, s, http.MethodPost, "/edges", map[string]any{
		"source": map[string]any{"nodeId": "n1", "output": "value"},
		"target": map[string]any{"nodeId": "ghost", "input": "value"},
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, errorOf(t, body), "target ghost")
}

func TestGraphErrors(t *testing.T) {
	s, _ := newTestServer(t)

	status, body := do(t, s, http.MethodGet, "/errors", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body)

	// Deleting a node leaves its edges dangling.
	status, _ = do(t, s, http.MethodDelete, "/nodes/n2", nil)
	require.Equal(t, http.StatusNoContent, status)

	status, body = do(t, s, http.MethodGet, "/errors", nil)
	require.Equal(t, http.StatusOK, status)
	errs := body.([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, string(dataflow.MissingTargetNode), errs[0].(map[string]any)["kind"])

	status, body = do(t, s, http.MethodPost, "/errors/prune", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{string(dataflow.EdgeIDFor("n1", "value", "n2", "value"))}, body.(map[string]any)["pruned"])

	_, body = do(t, s, http.MethodGet, "/errors", nil)
	assert.Empty(t, body)
}

func TestEngine(t *testing.T) {
	s, rt := newTestServer(t)

	status, body := do(t, s, http.MethodGet, "/engine", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body.(map[string]any)["running"])
	assert.Equal(t, "normal", body.(map[string]any)["tickSpeed"])

	status, body = do(t, s, http.MethodPut, "/engine/tick-speed", map[string]any{"tickSpeed": "fast"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "fast", body.(map[string]any)["tickSpeed"])

	status, _ = do(t, s, http.MethodPut, "/engine/tick-speed", map[string]any{"tickSpeed": "warp"})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = do(t, s, http.MethodPut, "/engine/tick-speed", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, s, http.MethodPost, "/engine/start", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body.(map[string]any)["running"])
	assert.Eventually(t, func() bool { return outputOf(rt, "n2") == "hello" }, 2*time.Second, 5*time.Millisecond)

	status, _ = do(t, s, http.MethodPost, "/engine/stop?abort=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, s, http.MethodPost, "/engine/stop?abort=true", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body.(map[string]any)["running"])
}

func TestEngine_QueueNode(t *testing.T) {
	s, rt := newTestServer(t)

	status, body := do(t, s, http.MethodPost, "/engine/queue/ghost", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, errorOf(t, body), "node not found")

	status, _ = do(t, s, http.MethodPost, "/engine/queue/n1", nil)
	require.Equal(t, http.StatusAccepted, status)
	assert.Eventually(t, func() bool { return outputOf(rt, "n1") == "hello" }, 2*time.Second, 5*time.Millisecond)
}

func TestDisposedRuntime(t *testing.T) {
	s, rt := newTestServer(t)
	require.NoError(t, rt.Dispose(context.Background()))

	status, body := do(t, s, http.MethodPut, "/document", map[string]any{"nodes": []any{}})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, workbench.ErrDisposed.Error(), errorOf(t, body))

	status, _ = do(t, s, http.MethodPost, "/nodes", map[string]any{"id": "late", "type": "string"})
	assert.Equal(t, http.StatusConflict, status)
}
