package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couzic/ts-graph-mcp/internal/format"
	"github.com/couzic/ts-graph-mcp/internal/graph"
	"github.com/couzic/ts-graph-mcp/internal/query"
	"github.com/couzic/ts-graph-mcp/internal/resolve"
	"github.com/couzic/ts-graph-mcp/internal/search"
)

func newTestServer(t *testing.T, ready bool, nodes ...*graph.Node) (*Server, *httptest.Server) {
	t.Helper()
	store, err := graph.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.AddNodes(context.Background(), nodes))

	idx, err := search.Open(search.DefaultConfig(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	orch := query.New(store, resolve.New(store), idx, nil)
	fmter := format.New("", 0)

	s := New("127.0.0.1:0", Deps{
		Orchestrator: orch,
		Formatter:    fmter,
		Ready:        func() bool { return ready },
		IndexedFiles: func() int { return len(nodes) },
	})
	return s, httptest.NewServer(s.srv.Handler)
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestHealth_ReportsReadyAndIndexedFiles(t *testing.T) {
	_, ts := newTestServer(t, true, fn("src/a.ts", "a"))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, float64(1), body["indexed_files"])
}

func TestHealth_NotReady_ReportsIndexingStatus(t *testing.T) {
	_, ts := newTestServer(t, false)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "indexing", body["status"])
	assert.Equal(t, false, body["ready"])
}

func TestVersion_ReturnsAPIVersion(t *testing.T) {
	_, ts := newTestServer(t, true)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/version")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(APIVersion), body["apiVersion"])
}

func TestAPIRoutes_NotReady_Returns503(t *testing.T) {
	_, ts := newTestServer(t, false)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/dependenciesOf", map[string]string{"symbol": "a"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestDependenciesOf_HappyPath_ReturnsFormattedResult(t *testing.T) {
	a := fn("src/a.ts", "a")
	b := fn("src/b.ts", "b")
	store, err := graph.Open("")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.AddNodes(context.Background(), []*graph.Node{a, b}))
	require.NoError(t, store.AddEdges(context.Background(), []*graph.Edge{{Source: a.ID, Target: b.ID, Type: graph.EdgeCalls}}))

	idx, err := search.Open(search.DefaultConfig(0))
	require.NoError(t, err)
	defer idx.Close()

	s := New("127.0.0.1:0", Deps{
		Orchestrator: query.New(store, resolve.New(store), idx, nil),
		Formatter:    format.New("", 0),
		Ready:        func() bool { return true },
	})
	ts := httptest.NewServer(s.srv.Handler)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/dependenciesOf", map[string]string{"symbol": "a"})
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["result"], "Graph:")
	assert.Contains(t, body["result"], "a() --CALLS--> b()")
}

func TestDependenciesOf_NotFound_Returns404WithSuggestions(t *testing.T) {
	_, ts := newTestServer(t, true, fn("src/a.ts", "createUser"))
	defer ts.Close()

	resp := postJSON(t, ts, "/api/dependenciesOf", map[string]string{"symbol": "createUsr"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body["suggested_names"])
}

func TestDependenciesOf_MissingSymbol_Returns400(t *testing.T) {
	_, ts := newTestServer(t, true)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/dependenciesOf", map[string]string{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchGraph_RawFormat_ReturnsNodesAndEdges(t *testing.T) {
	a := fn("src/a.ts", "run")
	store, err := graph.Open("")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.AddNodes(context.Background(), []*graph.Node{a}))

	idx, err := search.Open(search.DefaultConfig(0))
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, idx.Upsert(context.Background(), []*search.Document{{ID: string(a.ID), Symbol: "run", File: a.FilePath}}))

	s := New("127.0.0.1:0", Deps{
		Orchestrator: query.New(store, resolve.New(store), idx, nil),
		Formatter:    format.New("", 0),
		Ready:        func() bool { return true },
	})
	ts := httptest.NewServer(s.srv.Handler)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/searchGraph", map[string]any{"topic": "run", "format": "raw"})
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	result, ok := body["result"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, result, "nodes")
}

func TestStop_RespondsThenClosesServer(t *testing.T) {
	s, ts := newTestServer(t, true)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/stop", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "stopping", body["status"])

	select {
	case <-s.stopCh:
	case <-time.After(time.Second):
		t.Fatal("expected stopCh to close after /stop")
	}
}

func fn(file, name string) *graph.Node {
	return &graph.Node{
		ID:       graph.NewNodeID(file, graph.NodeFunction, name),
		Type:     graph.NodeFunction,
		Name:     name,
		FilePath: file,
	}
}
