// Package httpapi exposes the graph query engine over HTTP, localhost
// only by default (spec §6). Adapted from the teacher's Unix-socket RPC
// server (internal/daemon/server.go): same started-time bookkeeping and
// graceful-shutdown-via-context shape, carried over onto net/http with a
// route table instead of a single dispatch-by-method-name handler.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/couzic/ts-graph-mcp/internal/format"
	"github.com/couzic/ts-graph-mcp/internal/query"
	"github.com/couzic/ts-graph-mcp/internal/resolve"
	"github.com/couzic/ts-graph-mcp/internal/telemetry"
)

// APIVersion is returned by GET /version.
const APIVersion = 1

// ReadyFunc reports whether the first index pass has completed.
type ReadyFunc func() bool

// IndexedFilesFunc reports the current number of indexed files.
type IndexedFilesFunc func() int

// Deps are the collaborators the HTTP API dispatches into. Formatter may
// be nil only when every request uses format=raw.
type Deps struct {
	Orchestrator *query.Orchestrator
	Formatter    *format.Formatter
	Ready        ReadyFunc
	IndexedFiles IndexedFilesFunc

	// Metrics records every /api/searchGraph, /api/dependenciesOf,
	// /api/dependentsOf and /api/pathsBetween call's latency and result
	// count. May be nil, in which case nothing is recorded.
	Metrics *telemetry.QueryMetrics
}

// Server is a localhost HTTP server over Deps.
type Server struct {
	deps    Deps
	started time.Time
	srv     *http.Server

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a Server listening on addr (e.g. "127.0.0.1:7444").
func New(addr string, deps Deps) *Server {
	s := &Server{deps: deps, stopCh: make(chan struct{})}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("POST /api/dependenciesOf", s.handleDependenciesOf)
	mux.HandleFunc("POST /api/dependentsOf", s.handleDependentsOf)
	mux.HandleFunc("POST /api/pathsBetween", s.handlePathsBetween)
	mux.HandleFunc("POST /api/searchGraph", s.handleSearchGraph)

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Addr returns the address the underlying http.Server was built with.
func (s *Server) Addr() string { return s.srv.Addr }

// ListenAndServe blocks until ctx is cancelled, /stop is called, or the
// listener fails, then shuts down gracefully and returns.
func (s *Server) ListenAndServe(ctx context.Context) error {
	return s.serve(ctx, nil)
}

// Serve runs the server on a caller-provided listener instead of binding
// its own, so a caller that needs to know the actual port up front (an
// ephemeral port request) can bind first and hand the listener over
// without a close/rebind race.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	s.started = time.Now()

	errCh := make(chan error, 1)
	go func() {
		if ln != nil {
			errCh <- s.srv.Serve(ln)
		} else {
			errCh <- s.srv.ListenAndServe()
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case <-s.stopCh:
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("httpapi_shutdown_failed", slog.String("error", err.Error()))
	}

	if serveErr != nil {
		return serveErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// Close triggers the same graceful shutdown as POST /stop, for use by a
// process supervisor instead of an HTTP client.
func (s *Server) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ready := s.deps.Ready == nil || s.deps.Ready()
	indexed := 0
	if s.deps.IndexedFiles != nil {
		indexed = s.deps.IndexedFiles()
	}
	status := "ok"
	if !ready {
		status = "indexing"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        status,
		"ready":         ready,
		"indexed_files": indexed,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"apiVersion": APIVersion})
}

// handleStop answers immediately, then closes the server from a separate
// goroutine so the response round-trips before the listener goes down.
func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "stopping"})
	go s.Close()
}

type endpointRequest struct {
	FilePath string `json:"file_path"`
	Symbol   string `json:"symbol"`
}

func (s *Server) handleDependenciesOf(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	var req endpointRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	s.runAndRespond(w, r, query.Input{From: &query.Endpoint{Symbol: req.Symbol, File: req.FilePath}})
}

func (s *Server) handleDependentsOf(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	var req endpointRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	s.runAndRespond(w, r, query.Input{To: &query.Endpoint{Symbol: req.Symbol, File: req.FilePath}})
}

type pathsBetweenRequest struct {
	From endpointRequest `json:"from"`
	To   endpointRequest `json:"to"`
}

func (s *Server) handlePathsBetween(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	var req pathsBetweenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.From.Symbol == "" || req.To.Symbol == "" {
		writeError(w, http.StatusBadRequest, "from.symbol and to.symbol are required")
		return
	}
	s.runAndRespond(w, r, query.Input{
		From: &query.Endpoint{Symbol: req.From.Symbol, File: req.From.FilePath},
		To:   &query.Endpoint{Symbol: req.To.Symbol, File: req.To.FilePath},
	})
}

type endpointOrQuery struct {
	Symbol string `json:"symbol"`
	File   string `json:"file_path"`
	Query  string `json:"query"`
}

func (e *endpointOrQuery) toEndpoint() *query.Endpoint {
	if e == nil {
		return nil
	}
	return &query.Endpoint{Symbol: e.Symbol, File: e.File, Query: e.Query}
}

type searchGraphRequest struct {
	Topic    string           `json:"topic"`
	From     *endpointOrQuery `json:"from"`
	To       *endpointOrQuery `json:"to"`
	MaxNodes int              `json:"max_nodes"`
	Format   string           `json:"format"`
}

func (s *Server) handleSearchGraph(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}
	var req searchGraphRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Topic == "" && req.From == nil && req.To == nil {
		writeError(w, http.StatusBadRequest, "at least one of topic, from, to is required")
		return
	}

	in := query.Input{
		Topic:    req.Topic,
		From:     req.From.toEndpoint(),
		To:       req.To.toEndpoint(),
		MaxNodes: req.MaxNodes,
	}
	if req.Format == "raw" {
		s.runAndRespondRaw(w, r, in)
		return
	}
	s.runAndRespond(w, r, in)
}

// requireReady answers 503 for every /api/* route until the first index
// pass completes (spec §5: "queries executed before ingestion completes
// must return 503 indexing").
func (s *Server) requireReady(w http.ResponseWriter) bool {
	if s.deps.Ready != nil && !s.deps.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "indexing"})
		return false
	}
	return true
}

func (s *Server) runAndRespond(w http.ResponseWriter, r *http.Request, in query.Input) {
	start := time.Now()
	res, err := s.deps.Orchestrator.Run(r.Context(), in)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.Disambiguation != nil {
		s.recordQuery(in, start, 0)
		writeDisambiguation(w, res.Disambiguation)
		return
	}
	s.recordQuery(in, start, len(res.Nodes))
	text := s.deps.Formatter.Format(res, res.Endpoints, in.MaxNodes)
	writeJSON(w, http.StatusOK, map[string]any{"result": text})
}

func (s *Server) runAndRespondRaw(w http.ResponseWriter, r *http.Request, in query.Input) {
	start := time.Now()
	res, err := s.deps.Orchestrator.Run(r.Context(), in)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.Disambiguation != nil {
		s.recordQuery(in, start, 0)
		writeDisambiguation(w, res.Disambiguation)
		return
	}
	s.recordQuery(in, start, len(res.Nodes))
	writeJSON(w, http.StatusOK, map[string]any{
		"result": map[string]any{"nodes": res.Nodes, "edges": res.Edges},
	})
}

// recordQuery classifies in the way telemetry.QueryType distinguishes
// lexical from semantic retrieval: a bare topic search drives the
// hybrid BM25+vector index (semantic), a bare endpoint walks the graph
// with no scoring involved (lexical, the closest existing bucket), and
// a topic alongside an endpoint combines both (mixed).
func (s *Server) recordQuery(in query.Input, start time.Time, resultCount int) {
	if s.deps.Metrics == nil {
		return
	}
	qType := telemetry.QueryTypeLexical
	switch {
	case in.Topic != "" && (in.From != nil || in.To != nil):
		qType = telemetry.QueryTypeMixed
	case in.Topic != "":
		qType = telemetry.QueryTypeSemantic
	}
	s.deps.Metrics.Record(telemetry.QueryEvent{
		Query:       in.Topic,
		QueryType:   qType,
		ResultCount: resultCount,
		Latency:     time.Since(start),
		Timestamp:   start,
	})
}

// writeDisambiguation surfaces a resolve.Result that didn't settle on a
// single node as a structured payload (spec §7: NotFound/Ambiguous ->
// resolver payload with candidates or suggestions).
func writeDisambiguation(w http.ResponseWriter, d *resolve.Result) {
	switch {
	case d.Ambiguous != nil:
		writeJSON(w, http.StatusConflict, map[string]any{"ambiguous": d.Ambiguous.Candidates})
	case d.NotFound != nil:
		writeJSON(w, http.StatusNotFound, map[string]any{
			"suggested_names": d.NotFound.SuggestedNames,
			"suggested_files": d.NotFound.SuggestedFiles,
		})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "unresolved"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body required")
		return false
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("httpapi_encode_failed", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
