package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO
)

// CurrentSchemaVersion is bumped whenever the nodes/edges schema changes
// shape in a way that requires a rebuild.
const CurrentSchemaVersion = 1

// QueryFilters narrows QueryNodes results (spec §4.1).
type QueryFilters struct {
	Types    []NodeType
	Packages []string
	Exported *bool
}

// Store is the embedded SQL store for nodes and edges (C2). A single
// writer (the watcher/indexer) and many concurrent readers (the query
// API) share one *sql.DB in WAL mode.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// Open creates or opens the graph store at path. An empty path opens an
// in-memory store, used by tests.
func Open(path string) (*Store, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("graph: create store dir: %w", err)
		}
		if err := validateIntegrity(path); err != nil {
			slog.Warn("graph_store_corrupted", slog.String("path", path), slog.String("error", err.Error()))
			_ = os.Remove(path)
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("graph: open %s: %w", path, err)
	}

	// Single writer avoids SQLITE_BUSY under WAL; readers use the same
	// pooled connection since modernc.org/sqlite serializes internally.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("graph: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

	CREATE TABLE IF NOT EXISTS nodes (
		id           TEXT PRIMARY KEY,
		type         TEXT NOT NULL,
		name         TEXT NOT NULL,
		package      TEXT NOT NULL DEFAULT '',
		file_path    TEXT NOT NULL,
		start_line   INTEGER NOT NULL,
		end_line     INTEGER NOT NULL,
		exported     INTEGER NOT NULL DEFAULT 0,
		content_hash TEXT NOT NULL DEFAULT '',
		snippet      TEXT NOT NULL DEFAULT '',
		props        TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(name);
	CREATE INDEX IF NOT EXISTS idx_nodes_file_path ON nodes(file_path);
	CREATE INDEX IF NOT EXISTS idx_nodes_type_name ON nodes(type, name);

	CREATE TABLE IF NOT EXISTS edges (
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		type   TEXT NOT NULL,
		meta   TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (source, target, type)
	);
	CREATE INDEX IF NOT EXISTS idx_edges_source_type ON edges(source, type);
	CREATE INDEX IF NOT EXISTS idx_edges_target_type ON edges(target, type);

	INSERT OR IGNORE INTO schema_version(version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AddNodes upserts a batch of nodes within a single write transaction.
func (s *Store) AddNodes(ctx context.Context, nodes []*Node) error {
	if len(nodes) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graph: begin add_nodes: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (id, type, name, package, file_path, start_line, end_line, exported, content_hash, snippet, props)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type=excluded.type, name=excluded.name, package=excluded.package,
			file_path=excluded.file_path, start_line=excluded.start_line, end_line=excluded.end_line,
			exported=excluded.exported, content_hash=excluded.content_hash,
			snippet=excluded.snippet, props=excluded.props
	`)
	if err != nil {
		return fmt.Errorf("graph: prepare add_nodes: %w", err)
	}
	defer stmt.Close()

	for _, n := range nodes {
		props, err := json.Marshal(n.Props)
		if err != nil {
			return fmt.Errorf("graph: marshal props for %s: %w", n.ID, err)
		}
		exported := 0
		if n.Exported {
			exported = 1
		}
		if _, err := stmt.ExecContext(ctx, string(n.ID), string(n.Type), n.Name, n.Package, n.FilePath,
			n.StartLine, n.EndLine, exported, n.ContentHash, n.Snippet, string(props)); err != nil {
			return fmt.Errorf("graph: upsert node %s: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// AddEdges upserts a batch of edges. Duplicate (source,target,type)
// merges meta by replacing it (spec §4.1).
func (s *Store) AddEdges(ctx context.Context, edges []*Edge) error {
	if len(edges) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graph: begin add_edges: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (source, target, type, meta) VALUES (?, ?, ?, ?)
		ON CONFLICT(source, target, type) DO UPDATE SET meta=excluded.meta
	`)
	if err != nil {
		return fmt.Errorf("graph: prepare add_edges: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		meta, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("graph: marshal meta for %s->%s: %w", e.Source, e.Target, err)
		}
		if _, err := stmt.ExecContext(ctx, string(e.Source), string(e.Target), string(e.Type), string(meta)); err != nil {
			return fmt.Errorf("graph: upsert edge %s->%s: %w", e.Source, e.Target, err)
		}
	}

	return tx.Commit()
}

// RemoveFileNodes deletes, in one transaction, all nodes whose
// file_path = path and all edges whose source or target has the prefix
// "{path}:" (spec §3.2 per-file atomic replace).
func (s *Store) RemoveFileNodes(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graph: begin remove_file_nodes: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prefix := path + ":%"
	if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE source LIKE ? ESCAPE '\' OR target LIKE ? ESCAPE '\'`, prefix, prefix); err != nil {
		return fmt.Errorf("graph: delete edges for %s: %w", path, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE file_path = ?`, path); err != nil {
		return fmt.Errorf("graph: delete nodes for %s: %w", path, err)
	}

	return tx.Commit()
}

// ReplaceFile atomically replaces every node and edge belonging to path:
// deletes the file's previous nodes/edges, then inserts the new ones, all
// in one transaction (spec §4.7 step 2, "write nodes and edges to the
// store in a single transaction"). Re-extraction of an unchanged file is
// idempotent since node/edge upserts key on (id) and (source,target,type).
func (s *Store) ReplaceFile(ctx context.Context, path string, nodes []*Node, edges []*Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graph: begin replace_file: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prefix := path + ":%"
	if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE source LIKE ? ESCAPE '\' OR target LIKE ? ESCAPE '\'`, prefix, prefix); err != nil {
		return fmt.Errorf("graph: delete edges for %s: %w", path, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE file_path = ?`, path); err != nil {
		return fmt.Errorf("graph: delete nodes for %s: %w", path, err)
	}

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (id, type, name, package, file_path, start_line, end_line, exported, content_hash, snippet, props)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type=excluded.type, name=excluded.name, package=excluded.package,
			file_path=excluded.file_path, start_line=excluded.start_line, end_line=excluded.end_line,
			exported=excluded.exported, content_hash=excluded.content_hash,
			snippet=excluded.snippet, props=excluded.props
	`)
	if err != nil {
		return fmt.Errorf("graph: prepare replace_file nodes: %w", err)
	}
	defer nodeStmt.Close()

	for _, n := range nodes {
		props, err := json.Marshal(n.Props)
		if err != nil {
			return fmt.Errorf("graph: marshal props for %s: %w", n.ID, err)
		}
		exported := 0
		if n.Exported {
			exported = 1
		}
		if _, err := nodeStmt.ExecContext(ctx, string(n.ID), string(n.Type), n.Name, n.Package, n.FilePath,
			n.StartLine, n.EndLine, exported, n.ContentHash, n.Snippet, string(props)); err != nil {
			return fmt.Errorf("graph: upsert node %s: %w", n.ID, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (source, target, type, meta) VALUES (?, ?, ?, ?)
		ON CONFLICT(source, target, type) DO UPDATE SET meta=excluded.meta
	`)
	if err != nil {
		return fmt.Errorf("graph: prepare replace_file edges: %w", err)
	}
	defer edgeStmt.Close()

	for _, e := range edges {
		meta, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("graph: marshal meta for %s->%s: %w", e.Source, e.Target, err)
		}
		if _, err := edgeStmt.ExecContext(ctx, string(e.Source), string(e.Target), string(e.Type), string(meta)); err != nil {
			return fmt.Errorf("graph: upsert edge %s->%s: %w", e.Source, e.Target, err)
		}
	}

	return tx.Commit()
}

// GetNode fetches a single node by ID, or nil if it does not exist.
func (s *Store) GetNode(ctx context.Context, id NodeID) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, name, package, file_path, start_line, end_line, exported, content_hash, snippet, props
		FROM nodes WHERE id = ?`, string(id))
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

// QueryNodes returns matches for a glob pattern (SQL GLOB syntax) over
// name, filtered and ordered by name ASC with LIMIT/OFFSET (spec §4.1).
func (s *Store) QueryNodes(ctx context.Context, glob string, filters QueryFilters, limit, offset int) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	clauses := []string{}
	args := []any{}
	if glob != "" && glob != "*" {
		clauses = append(clauses, "name GLOB ?")
		args = append(args, glob)
	}
	if len(filters.Types) > 0 {
		ph := make([]string, len(filters.Types))
		for i, t := range filters.Types {
			ph[i] = "?"
			args = append(args, string(t))
		}
		clauses = append(clauses, fmt.Sprintf("type IN (%s)", strings.Join(ph, ",")))
	}
	if len(filters.Packages) > 0 {
		ph := make([]string, len(filters.Packages))
		for i, p := range filters.Packages {
			ph[i] = "?"
			args = append(args, p)
		}
		clauses = append(clauses, fmt.Sprintf("package IN (%s)", strings.Join(ph, ",")))
	}
	if filters.Exported != nil {
		clauses = append(clauses, "exported = ?")
		v := 0
		if *filters.Exported {
			v = 1
		}
		args = append(args, v)
	}

	query := `SELECT id, type, name, package, file_path, start_line, end_line, exported, content_hash, snippet, props FROM nodes`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY name ASC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("graph: query_nodes: %w", err)
	}
	defer rows.Close()

	var out []*Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*Node, error) {
	var n Node
	var typ, propsStr string
	var exported int
	if err := row.Scan(&n.ID, &typ, &n.Name, &n.Package, &n.FilePath, &n.StartLine, &n.EndLine,
		&exported, &n.ContentHash, &n.Snippet, &propsStr); err != nil {
		return nil, err
	}
	n.Type = NodeType(typ)
	n.Exported = exported != 0
	if err := json.Unmarshal([]byte(propsStr), &n.Props); err != nil {
		return nil, fmt.Errorf("graph: unmarshal props for %s: %w", n.ID, err)
	}
	return &n, nil
}

// NodesByFile returns every node declared in filePath, used by the
// symbol resolver's file-scoped lookup (spec §4.9) and by file-deletion
// cleanup paths.
func (s *Store) NodesByFile(ctx context.Context, filePath string) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, name, package, file_path, start_line, end_line, exported, content_hash, snippet, props
		FROM nodes WHERE file_path = ? ORDER BY name ASC`, filePath)
	if err != nil {
		return nil, fmt.Errorf("graph: nodes_by_file: %w", err)
	}
	defer rows.Close()

	var out []*Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// NodesByName returns every node whose bare Name field exactly matches
// name, optionally case-insensitively. Used by the symbol resolver's
// global lookup (spec §4.9).
func (s *Store) NodesByName(ctx context.Context, name string, caseInsensitive bool) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, type, name, package, file_path, start_line, end_line, exported, content_hash, snippet, props
		FROM nodes WHERE name = ?`
	if caseInsensitive {
		query += " COLLATE NOCASE"
	}
	query += " ORDER BY file_path ASC"

	rows, err := s.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("graph: nodes_by_name: %w", err)
	}
	defer rows.Close()

	var out []*Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// AllNodes returns every node in the store, ordered by name. Used by the
// symbol resolver to build Levenshtein "did-you-mean" suggestions when
// no match is found.
func (s *Store) AllNodes(ctx context.Context) ([]*Node, error) {
	return s.QueryNodes(ctx, "*", QueryFilters{}, 1<<30, 0)
}

// Close releases the store's resources, checkpointing WAL first.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for the traversal engine, which
// lives in the same package but a separate file for readability.
func (s *Store) DB() *sql.DB { return s.db }
