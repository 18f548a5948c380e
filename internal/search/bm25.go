package search

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO
)

// BM25Result is a single lexical search hit.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// BM25Config tunes the lexical index. Weights apply to the four
// searchable columns in bm25()'s column order (symbol, file, snippet,
// prefixes); a higher weight ranks matches in that column more highly.
type BM25Config struct {
	SymbolWeight   float64
	FileWeight     float64
	SnippetWeight  float64
	PrefixesWeight float64
	StopWords      []string
}

// DefaultBM25Config weights symbol matches highest, then prefixes
// (exact camelCase-part/substring recall), then snippet and file.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		SymbolWeight:   3.0,
		FileWeight:     1.0,
		SnippetWeight:  1.0,
		PrefixesWeight: 2.0,
		StopWords:      defaultCodeStopWords,
	}
}

// BM25Index is the lexical half of the search index, implemented with a
// SQLite FTS5 virtual table so it shares the graph store's embedded,
// CGO-free persistence model.
type BM25Index struct {
	mu        sync.RWMutex
	db        *sql.DB
	config    BM25Config
	closed    bool
	stopWords map[string]struct{}
}

// NewBM25Index opens or creates a BM25 index at path. An empty path
// opens an in-memory index, used by tests.
func NewBM25Index(path string, config BM25Config) (*BM25Index, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("search: create dir %s: %w", dir, err)
		}
		if err := validateBM25Integrity(path); err != nil {
			slog.Warn("bm25_index_corrupted", slog.String("path", path), slog.String("error", err.Error()))
			_ = os.Remove(path)
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("search: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("search: pragma %q: %w", p, err)
		}
	}

	idx := &BM25Index{db: db, config: config, stopWords: buildStopWordMap(config.StopWords)}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func validateBM25Integrity(path string) error {
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
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='fts_docs'`).Scan(&count); err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("FTS5 table 'fts_docs' missing")
	}
	return nil
}

func (s *BM25Index) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

	CREATE VIRTUAL TABLE IF NOT EXISTS fts_docs USING fts5(
		doc_id UNINDEXED,
		symbol,
		file,
		snippet,
		prefixes,
		tokenize='unicode61'
	);

	CREATE TABLE IF NOT EXISTS doc_ids (doc_id TEXT PRIMARY KEY);

	INSERT OR IGNORE INTO schema_version(version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *BM25Index) preprocess(text string) string {
	tokens := filterStopWords(tokenizeCode(text), s.stopWords)
	return strings.Join(tokens, " ")
}

// Index upserts documents (delete then insert, since FTS5 does not
// support REPLACE on a virtual table).
func (s *BM25Index) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("search: bm25 index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("search: begin index: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	deleteStmt, err := tx.PrepareContext(ctx, `DELETE FROM fts_docs WHERE doc_id = ?`)
	if err != nil {
		return err
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx, `INSERT INTO fts_docs(doc_id, symbol, file, snippet, prefixes) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertStmt.Close()

	idStmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO doc_ids(doc_id) VALUES (?)`)
	if err != nil {
		return err
	}
	defer idStmt.Close()

	for _, doc := range docs {
		if _, err := deleteStmt.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("search: delete existing %s: %w", doc.ID, err)
		}
		prefixes := doc.Prefixes
		if len(prefixes) == 0 {
			prefixes = DerivePrefixes(doc.Symbol)
		}
		if _, err := insertStmt.ExecContext(ctx, doc.ID,
			s.preprocess(doc.Symbol), s.preprocess(doc.File), s.preprocess(doc.Snippet), strings.Join(prefixes, " ")); err != nil {
			return fmt.Errorf("search: index %s: %w", doc.ID, err)
		}
		if _, err := idStmt.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("search: track id %s: %w", doc.ID, err)
		}
	}

	return tx.Commit()
}

// Search runs a BM25 query across all four columns with the configured
// per-column weights.
func (s *BM25Index) Search(ctx context.Context, queryStr string, limit int) ([]*BM25Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("search: bm25 index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*BM25Result{}, nil
	}

	tokens := filterStopWords(tokenizeCode(queryStr), s.stopWords)
	if len(tokens) == 0 {
		return []*BM25Result{}, nil
	}
	matchQuery := strings.Join(tokens, " ")

	query := `
		SELECT doc_id, bm25(fts_docs, ?, ?, ?, ?) as score
		FROM fts_docs
		WHERE fts_docs MATCH ?
		ORDER BY score
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query,
		s.config.SymbolWeight, s.config.FileWeight, s.config.SnippetWeight, s.config.PrefixesWeight,
		matchQuery, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []*BM25Result{}, nil
		}
		return nil, fmt.Errorf("search: query: %w", err)
	}
	defer rows.Close()

	var results []*BM25Result
	for rows.Next() {
		var docID string
		var score float64
		if err := rows.Scan(&docID, &score); err != nil {
			return nil, err
		}
		// bm25() returns negative values; negate so higher is better.
		results = append(results, &BM25Result{DocID: docID, Score: -score, MatchedTerms: tokens})
	}
	return results, rows.Err()
}

// Delete removes documents from the index.
func (s *BM25Index) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("search: bm25 index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	ph := make([]string, len(docIDs))
	args := make([]any, len(docIDs))
	for i, id := range docIDs {
		ph[i] = "?"
		args[i] = id
	}
	in := strings.Join(ph, ",")

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM fts_docs WHERE doc_id IN (%s)", in), args...); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM doc_ids WHERE doc_id IN (%s)", in), args...); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteByFile removes all documents whose ID has the given file's
// NodeID prefix ("{path}:"), used by remove_by_file (spec §4.4).
func (s *BM25Index) DeleteByFile(ctx context.Context, path string) error {
	ids, err := s.idsWithFilePrefix(ctx, path)
	if err != nil {
		return err
	}
	return s.Delete(ctx, ids)
}

func (s *BM25Index) idsWithFilePrefix(ctx context.Context, path string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT doc_id FROM doc_ids WHERE doc_id LIKE ?`, path+":%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AllIDs returns every indexed document ID.
func (s *BM25Index) AllIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("search: bm25 index is closed")
	}
	rows, err := s.db.Query(`SELECT doc_id FROM doc_ids ORDER BY doc_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of indexed documents.
func (s *BM25Index) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM doc_ids`).Scan(&n)
	return n, err
}

// Close checkpoints the WAL and closes the index. Idempotent.
func (s *BM25Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
