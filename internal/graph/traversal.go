package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Direction constrains which side of an edge a traversal follows.
type Direction string

const (
	DirOut  Direction = "out"
	DirIn   Direction = "in"
	DirBoth Direction = "both"
)

// ErrSameEndpoint is returned by ShortestPaths when from == to (spec §4.10).
var ErrSameEndpoint = fmt.Errorf("graph: source and target are identical")

// Neighborhood is the result of QueryNeighbors: the center plus all
// nodes reachable within distance, and the edges whose endpoints are
// both inside that set.
type Neighborhood struct {
	Nodes []*Node
	Edges []*Edge
}

func edgeTypeFilter(edgeTypes []EdgeType) (clause string, args []any) {
	if len(edgeTypes) == 0 {
		return "", nil
	}
	ph := make([]string, len(edgeTypes))
	for i, t := range edgeTypes {
		ph[i] = "?"
		args = append(args, string(t))
	}
	return " AND type IN (" + strings.Join(ph, ",") + ")", args
}

// QueryNeighbors returns the center node plus all nodes reachable from
// it within `distance` edges, honoring direction and an optional edge
// type filter, via a recursive CTE (spec §4.1).
func (s *Store) QueryNeighbors(ctx context.Context, center NodeID, distance int, direction Direction, edgeTypes []EdgeType) (*Neighborhood, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if distance < 0 {
		distance = 0
	}

	typeClause, typeArgs := edgeTypeFilter(edgeTypes)

	var stepJoin string
	switch direction {
	case DirIn:
		stepJoin = "r.id = e.target"
	case DirBoth:
		stepJoin = "(r.id = e.source OR r.id = e.target)"
	default: // out
		stepJoin = "r.id = e.source"
	}

	var otherSide string
	switch direction {
	case DirIn:
		otherSide = "e.source"
	case DirBoth:
		otherSide = "CASE WHEN r.id = e.source THEN e.target ELSE e.source END"
	default:
		otherSide = "e.target"
	}

	query := fmt.Sprintf(`
		WITH RECURSIVE reach(id, depth) AS (
			SELECT ? AS id, 0 AS depth
			UNION
			SELECT %s AS id, r.depth + 1
			FROM reach r
			JOIN edges e ON %s%s
			WHERE r.depth < ?
		)
		SELECT DISTINCT id FROM reach
	`, otherSide, stepJoin, typeClause)

	args := append([]any{string(center)}, typeArgs...)
	args = append(args, distance)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("graph: query_neighbors: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	nodes, err := s.fetchNodesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	edges, err := s.fetchEdgesBetween(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &Neighborhood{Nodes: nodes, Edges: edges}, nil
}

// fetchNodesByIDs loads nodes for a known ID set, preserving no
// particular order (callers sort as needed).
func (s *Store) fetchNodesByIDs(ctx context.Context, ids []string) ([]*Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, type, name, package, file_path, start_line, end_line, exported, content_hash, snippet, props FROM nodes WHERE id IN (%s)`, strings.Join(ph, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("graph: fetch nodes: %w", err)
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

// QueryEdgesBetween returns all edges whose both endpoints are in the
// given node-ID set (spec §4.1).
func (s *Store) QueryEdgesBetween(ctx context.Context, nodeSet []NodeID) ([]*Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(nodeSet))
	for i, id := range nodeSet {
		ids[i] = string(id)
	}
	return s.fetchEdgesBetween(ctx, ids)
}

func (s *Store) fetchEdgesBetween(ctx context.Context, ids []string) ([]*Edge, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph := make([]string, len(ids))
	args := make([]any, len(ids)*2)
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
		args[i+len(ids)] = id
	}
	query := fmt.Sprintf(`
		SELECT source, target, type, meta FROM edges
		WHERE source IN (%s) AND target IN (%s)
	`, strings.Join(ph, ","), strings.Join(ph, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("graph: edges_between: %w", err)
	}
	defer rows.Close()

	var out []*Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEdge(row rowScanner) (*Edge, error) {
	var e Edge
	var typ, metaStr string
	if err := row.Scan(&e.Source, &e.Target, &typ, &metaStr); err != nil {
		return nil, err
	}
	e.Type = EdgeType(typ)
	if err := json.Unmarshal([]byte(metaStr), &e.Meta); err != nil {
		return nil, fmt.Errorf("graph: unmarshal edge meta %s->%s: %w", e.Source, e.Target, err)
	}
	return &e, nil
}

// Path is one simple path from a shortest_paths query, in traversal
// order, from (inclusive) to (inclusive).
type Path struct {
	Nodes []NodeID
	Edges []*Edge
}

// QueryShortestPaths performs a BFS via a recursive CTE with a
// JSON-array path accumulator and cycle check, returning up to maxPaths
// simple paths ordered by length (spec §4.1, §8 boundary: from==to is
// rejected).
func (s *Store) QueryShortestPaths(ctx context.Context, from, to NodeID, maxDepth, maxPaths int) ([]Path, error) {
	if from == to {
		return nil, ErrSameEndpoint
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if maxDepth <= 0 {
		maxDepth = 20
	}
	if maxPaths <= 0 {
		maxPaths = 3
	}

	// path is a JSON array of node IDs visited so far, used both for the
	// cycle check and to reconstruct the path once target is reached.
	query := `
		WITH RECURSIVE bfs(node, path, depth) AS (
			SELECT target, json_array(source, target), 1
			FROM edges WHERE source = ?
			UNION ALL
			SELECT e.target, json_insert(b.path, '$[#]', e.target), b.depth + 1
			FROM bfs b
			JOIN edges e ON e.source = b.node
			WHERE b.depth < ?
			  AND NOT EXISTS (SELECT 1 FROM json_each(b.path) WHERE value = e.target)
		)
		SELECT path, depth FROM bfs
		WHERE node = ?
		ORDER BY depth ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, string(from), maxDepth, string(to), maxPaths)
	if err != nil {
		return nil, fmt.Errorf("graph: shortest_paths: %w", err)
	}
	defer rows.Close()

	var paths []Path
	for rows.Next() {
		var pathJSON string
		var depth int
		if err := rows.Scan(&pathJSON, &depth); err != nil {
			return nil, err
		}
		var ids []string
		if err := json.Unmarshal([]byte(pathJSON), &ids); err != nil {
			return nil, fmt.Errorf("graph: unmarshal path: %w", err)
		}
		nodeIDs := make([]NodeID, len(ids))
		for i, id := range ids {
			nodeIDs[i] = NodeID(id)
		}
		edges, err := s.edgesAlongPath(ctx, nodeIDs)
		if err != nil {
			return nil, err
		}
		paths = append(paths, Path{Nodes: nodeIDs, Edges: edges})
	}
	return paths, rows.Err()
}

func (s *Store) edgesAlongPath(ctx context.Context, ids []NodeID) ([]*Edge, error) {
	edges := make([]*Edge, 0, len(ids)-1)
	for i := 0; i < len(ids)-1; i++ {
		row := s.db.QueryRowContext(ctx, `SELECT source, target, type, meta FROM edges WHERE source = ? AND target = ? LIMIT 1`, string(ids[i]), string(ids[i+1]))
		e, err := scanEdge(row)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, nil
}

// PathsBetween tries forward then reverse shortest-paths, for a
// bidirectional UX (spec §4.10).
func (s *Store) PathsBetween(ctx context.Context, from, to NodeID, maxDepth, maxPaths int) ([]Path, error) {
	paths, err := s.QueryShortestPaths(ctx, from, to, maxDepth, maxPaths)
	if err != nil {
		if err == ErrSameEndpoint {
			return nil, err
		}
		return nil, err
	}
	if len(paths) > 0 {
		return paths, nil
	}
	return s.QueryShortestPaths(ctx, to, from, maxDepth, maxPaths)
}

// QueryImpact returns the transitive closure of incoming edges restricted
// to edgeTypes (spec §4.1: impact/callers analysis).
func (s *Store) QueryImpact(ctx context.Context, node NodeID, maxDepth int, edgeTypes []EdgeType) (*Neighborhood, error) {
	return s.QueryNeighbors(ctx, node, maxDepth, DirIn, edgeTypes)
}

// Callers returns nodes with a CALLS edge into id, transitively, up to
// maxDepth (spec §4.10).
func (s *Store) Callers(ctx context.Context, id NodeID, maxDepth int) (*Neighborhood, error) {
	if maxDepth <= 0 {
		maxDepth = 100
	}
	return s.QueryNeighbors(ctx, id, maxDepth, DirIn, []EdgeType{EdgeCalls})
}

// Callees returns nodes reachable from id via CALLS, transitively, up to
// maxDepth (spec §4.10).
func (s *Store) Callees(ctx context.Context, id NodeID, maxDepth int) (*Neighborhood, error) {
	if maxDepth <= 0 {
		maxDepth = 100
	}
	return s.QueryNeighbors(ctx, id, maxDepth, DirOut, []EdgeType{EdgeCalls})
}

// OutboundEdgeCount returns the number of outbound edges for id, used by
// the traversal engine's class-method fallback (spec §4.10).
func (s *Store) OutboundEdgeCount(ctx context.Context, id NodeID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges WHERE source = ?`, string(id)).Scan(&n)
	return n, err
}

// MethodsOf returns all Method nodes whose ID belongs to the given class
// node's file and whose symbol path is prefixed "{ClassName}.".
func (s *Store) MethodsOf(ctx context.Context, class *Node) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, name, package, file_path, start_line, end_line, exported, content_hash, snippet, props
		FROM nodes WHERE file_path = ? AND type = ? AND id LIKE ?
	`, class.FilePath, string(NodeMethod), class.FilePath+":"+string(NodeMethod)+":"+class.Name+".%")
	if err != nil {
		return nil, fmt.Errorf("graph: methods_of: %w", err)
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
