// Package query implements the search-graph orchestrator (spec §4.11):
// turning a {topic?, from?, to?, max_nodes?} request into an induced
// subgraph, dispatching to hybrid search, traversal, or path finding
// depending on which inputs are present.
package query

import (
	"context"
	"fmt"

	"github.com/couzic/ts-graph-mcp/internal/embed"
	"github.com/couzic/ts-graph-mcp/internal/graph"
	"github.com/couzic/ts-graph-mcp/internal/resolve"
	"github.com/couzic/ts-graph-mcp/internal/search"
)

// DefaultMaxNodes is applied when Input.MaxNodes is zero.
const DefaultMaxNodes = 50

// DefaultTraversalDepth bounds from-only/to-only traversals when the
// caller gives no other signal to size them.
const DefaultTraversalDepth = 5

// BridgeMaxDepth is the longest shortest-path length between two topic
// seeds that still qualifies an intermediate node as a bridge (spec
// §4.11).
const BridgeMaxDepth = 3

// DefaultSimilarityThreshold is the minimum topic-embedding cosine
// similarity a traversed node must clear to survive a topic+endpoint
// filter (spec §4.11).
const DefaultSimilarityThreshold = 0.2

// Endpoint names one side of a from/to query: either a resolver-style
// {symbol, file?} pair, or a free-text query resolved via hybrid search
// to a single best node (spec §4.11).
type Endpoint struct {
	Symbol string
	File   string
	Query  string
}

func (e *Endpoint) isQuery() bool { return e != nil && e.Query != "" }

// Input is the search-graph orchestrator's request shape.
type Input struct {
	Topic    string
	From     *Endpoint
	To       *Endpoint
	MaxNodes int
}

// Result is the induced subgraph, or a resolver disambiguation payload
// when an endpoint or topic-as-query couldn't resolve to one node.
type Result struct {
	Nodes          []*graph.Node
	Edges          []*graph.Edge
	Disambiguation *resolve.Result

	// Endpoints holds the resolved From/To node IDs, if any, so callers
	// (internal/format) can exclude them from the Nodes section per
	// spec §4.12 ("query inputs are excluded").
	Endpoints []graph.NodeID
}

// Orchestrator wires the resolver, traversal/path engine, and search
// index together per spec §4.11. No single teacher file performs this
// orchestration; it is new code grounded on the contracts the store,
// resolver and search index already expose.
type Orchestrator struct {
	store    *graph.Store
	resolver *resolve.Resolver
	search   *search.SearchIndex
	embedder embed.Embedder
}

// New returns an Orchestrator. embedder may be nil, in which case topic
// queries fall back to lexical-only search and topic+endpoint filtering
// is skipped (no vector to compare against).
func New(store *graph.Store, resolver *resolve.Resolver, index *search.SearchIndex, embedder embed.Embedder) *Orchestrator {
	return &Orchestrator{store: store, resolver: resolver, search: index, embedder: embedder}
}

// Run executes the query per spec §4.11's four-way dispatch.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*Result, error) {
	maxNodes := in.MaxNodes
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}

	var fromID, toID graph.NodeID
	var haveFrom, haveTo bool

	if in.From != nil {
		id, disambig, err := o.resolveEndpoint(ctx, in.From)
		if err != nil {
			return nil, err
		}
		if disambig != nil {
			return &Result{Disambiguation: disambig}, nil
		}
		id, disambig, err = o.classMethodFallback(ctx, id)
		if err != nil {
			return nil, err
		}
		if disambig != nil {
			return &Result{Disambiguation: disambig}, nil
		}
		fromID, haveFrom = id, true
	}
	if in.To != nil {
		id, disambig, err := o.resolveEndpoint(ctx, in.To)
		if err != nil {
			return nil, err
		}
		if disambig != nil {
			return &Result{Disambiguation: disambig}, nil
		}
		id, disambig, err = o.classMethodFallback(ctx, id)
		if err != nil {
			return nil, err
		}
		if disambig != nil {
			return &Result{Disambiguation: disambig}, nil
		}
		toID, haveTo = id, true
	}

	var endpoints []graph.NodeID
	if haveFrom {
		endpoints = append(endpoints, fromID)
	}
	if haveTo {
		endpoints = append(endpoints, toID)
	}

	var res *Result
	var err error
	switch {
	case in.Topic != "" && !haveFrom && !haveTo:
		res, err = o.topicOnly(ctx, in.Topic, maxNodes)
	case haveFrom && haveTo:
		res, err = o.pathBetween(ctx, fromID, toID)
	case haveFrom && !haveTo:
		var nh *graph.Neighborhood
		nh, err = o.store.QueryNeighbors(ctx, fromID, DefaultTraversalDepth, graph.DirOut, nil)
		if err != nil {
			return nil, fmt.Errorf("query: traverse from: %w", err)
		}
		res, err = o.filterByTopicIfSet(ctx, in.Topic, nh, fromID)
	case haveTo && !haveFrom:
		var nh *graph.Neighborhood
		nh, err = o.store.QueryNeighbors(ctx, toID, DefaultTraversalDepth, graph.DirIn, nil)
		if err != nil {
			return nil, fmt.Errorf("query: traverse to: %w", err)
		}
		res, err = o.filterByTopicIfSet(ctx, in.Topic, nh, toID)
	default:
		return nil, fmt.Errorf("query: at least one of topic, from, to must be given")
	}
	if err != nil {
		return nil, err
	}
	res.Endpoints = endpoints
	return res, nil
}

// resolveEndpoint turns an Endpoint into a unique NodeID, or returns a
// non-nil disambiguation result when resolution failed to settle on one
// node.
func (o *Orchestrator) resolveEndpoint(ctx context.Context, ep *Endpoint) (graph.NodeID, *resolve.Result, error) {
	if ep.isQuery() {
		var vec []float32
		if o.embedder != nil {
			v, err := o.embedder.EmbedQuery(ctx, ep.Query)
			if err == nil {
				vec = v
			}
		}
		hits, err := o.search.Search(ctx, ep.Query, vec, 1)
		if err != nil {
			return "", nil, fmt.Errorf("query: endpoint search: %w", err)
		}
		if len(hits) == 0 {
			return "", &resolve.Result{NotFound: &resolve.NotFound{}}, nil
		}
		return graph.NodeID(hits[0].ID), nil, nil
	}

	res, err := o.resolver.Resolve(ctx, resolve.Query{Symbol: ep.Symbol, File: ep.File})
	if err != nil {
		return "", nil, fmt.Errorf("query: endpoint resolve: %w", err)
	}
	if res.Unique != nil {
		return res.Unique.ID, nil, nil
	}
	return "", &res, nil
}

// classMethodFallback implements spec §4.10's class-method fallback: if
// id names a Class with no direct outbound edges, look up its methods.
// A single method with edges auto-resolves silently (the traversal
// proceeds from the method instead); multiple methods surface as an
// Ambiguous disambiguation, each candidate carrying a "no dependencies"
// message where applicable. Any other node passes through unchanged.
func (o *Orchestrator) classMethodFallback(ctx context.Context, id graph.NodeID) (graph.NodeID, *resolve.Result, error) {
	node, err := o.store.GetNode(ctx, id)
	if err != nil {
		return id, nil, fmt.Errorf("query: class_method_fallback get_node: %w", err)
	}
	if node == nil || node.Type != graph.NodeClass {
		return id, nil, nil
	}

	outbound, err := o.store.OutboundEdgeCount(ctx, id)
	if err != nil {
		return id, nil, fmt.Errorf("query: class_method_fallback outbound_count: %w", err)
	}
	if outbound > 0 {
		return id, nil, nil
	}

	methods, err := o.store.MethodsOf(ctx, node)
	if err != nil {
		return id, nil, fmt.Errorf("query: class_method_fallback methods_of: %w", err)
	}
	if len(methods) == 0 {
		return id, nil, nil
	}

	if len(methods) == 1 {
		return methods[0].ID, nil, nil
	}

	candidates := make([]resolve.Candidate, 0, len(methods))
	for _, m := range methods {
		name := m.Name
		if n, err := o.store.OutboundEdgeCount(ctx, m.ID); err == nil && n == 0 {
			name = m.Name + " (no dependencies)"
		}
		candidates = append(candidates, resolve.Candidate{
			ID:       m.ID,
			Type:     m.Type,
			Name:     name,
			FilePath: m.FilePath,
			Package:  m.Package,
		})
	}
	return id, &resolve.Result{Ambiguous: &resolve.Ambiguous{Candidates: candidates}}, nil
}

// topicOnly runs hybrid search, keeps qualifying hits, and expands the
// induced subgraph with bridge nodes (spec §4.11).
func (o *Orchestrator) topicOnly(ctx context.Context, topic string, maxNodes int) (*Result, error) {
	var vec []float32
	if o.embedder != nil {
		if v, err := o.embedder.EmbedQuery(ctx, topic); err == nil {
			vec = v
		}
	}

	hits, err := o.search.Search(ctx, topic, vec, maxNodes)
	if err != nil {
		return nil, fmt.Errorf("query: topic search: %w", err)
	}

	order := newOrderedSet()
	for _, h := range hits {
		order.add(graph.NodeID(h.ID))
	}
	seeds := append([]graph.NodeID(nil), order.ids...)

	// Bridge nodes: any node on a shortest path of length <= BridgeMaxDepth
	// between two seeds, even if it didn't itself match the topic. Seed
	// order is preserved; bridge nodes are appended in discovery order.
	for i := 0; i < len(seeds); i++ {
		for j := 0; j < len(seeds); j++ {
			if i == j {
				continue
			}
			paths, err := o.store.QueryShortestPaths(ctx, seeds[i], seeds[j], BridgeMaxDepth, 1)
			if err != nil {
				if err == graph.ErrSameEndpoint {
					continue
				}
				return nil, fmt.Errorf("query: bridge path: %w", err)
			}
			for _, p := range paths {
				order.addAll(p.Nodes)
			}
		}
	}

	return o.materialize(ctx, order)
}

// pathBetween implements the from+to case: path finding (spec §4.11).
func (o *Orchestrator) pathBetween(ctx context.Context, from, to graph.NodeID) (*Result, error) {
	paths, err := o.store.PathsBetween(ctx, from, to, 20, 3)
	if err != nil {
		return nil, fmt.Errorf("query: paths_between: %w", err)
	}

	order := newOrderedSet(from, to)
	var edges []*graph.Edge
	for _, p := range paths {
		order.addAll(p.Nodes)
		edges = append(edges, p.Edges...)
	}

	nodes, err := o.fetchNodes(ctx, order)
	if err != nil {
		return nil, err
	}
	return &Result{Nodes: nodes, Edges: dedupeEdges(edges)}, nil
}

// filterByTopicIfSet applies the topic+endpoint filter (spec §4.11):
// drop traversed nodes whose embedding-to-topic similarity falls below
// DefaultSimilarityThreshold, except the endpoint itself. With no topic
// or no embedder, the full neighborhood passes through unfiltered.
func (o *Orchestrator) filterByTopicIfSet(ctx context.Context, topic string, nh *graph.Neighborhood, endpoint graph.NodeID) (*Result, error) {
	if topic == "" || o.embedder == nil {
		return &Result{Nodes: nh.Nodes, Edges: nh.Edges}, nil
	}

	vec, err := o.embedder.EmbedQuery(ctx, topic)
	if err != nil || vec == nil {
		return &Result{Nodes: nh.Nodes, Edges: nh.Edges}, nil
	}

	ids := make([]string, 0, len(nh.Nodes))
	for _, n := range nh.Nodes {
		ids = append(ids, string(n.ID))
	}
	scores, err := o.search.TopicSimilarity(ctx, vec, ids)
	if err != nil {
		return nil, fmt.Errorf("query: topic_similarity: %w", err)
	}

	keep := make(map[graph.NodeID]bool, len(nh.Nodes))
	var kept []*graph.Node
	for _, n := range nh.Nodes {
		if n.ID == endpoint || scores[string(n.ID)] >= DefaultSimilarityThreshold {
			keep[n.ID] = true
			kept = append(kept, n)
		}
	}

	var keptEdges []*graph.Edge
	for _, e := range nh.Edges {
		if keep[e.Source] && keep[e.Target] {
			keptEdges = append(keptEdges, e)
		}
	}

	return &Result{Nodes: kept, Edges: keptEdges}, nil
}

// materialize loads full Node records for the ordered set and the edges
// whose endpoints are both inside it.
func (o *Orchestrator) materialize(ctx context.Context, order *orderedSet) (*Result, error) {
	nodes, err := o.fetchNodes(ctx, order)
	if err != nil {
		return nil, err
	}
	edges, err := o.store.QueryEdgesBetween(ctx, order.ids)
	if err != nil {
		return nil, fmt.Errorf("query: edges_between: %w", err)
	}
	return &Result{Nodes: nodes, Edges: edges}, nil
}

func (o *Orchestrator) fetchNodes(ctx context.Context, order *orderedSet) ([]*graph.Node, error) {
	nodes := make([]*graph.Node, 0, len(order.ids))
	for _, id := range order.ids {
		n, err := o.store.GetNode(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("query: get_node %s: %w", id, err)
		}
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

// orderedSet deduplicates graph.NodeIDs while preserving first-seen
// order, so traversal/search-hit order survives into the formatter's
// truncation policy (spec §4.12: "first max_nodes nodes in traversal
// order").
type orderedSet struct {
	ids  []graph.NodeID
	seen map[graph.NodeID]bool
}

func newOrderedSet(ids ...graph.NodeID) *orderedSet {
	s := &orderedSet{seen: make(map[graph.NodeID]bool, len(ids))}
	s.addAll(ids)
	return s
}

func (s *orderedSet) add(id graph.NodeID) {
	if !s.seen[id] {
		s.seen[id] = true
		s.ids = append(s.ids, id)
	}
}

func (s *orderedSet) addAll(ids []graph.NodeID) {
	for _, id := range ids {
		s.add(id)
	}
}

func dedupeEdges(edges []*graph.Edge) []*graph.Edge {
	seen := make(map[string]bool, len(edges))
	out := make([]*graph.Edge, 0, len(edges))
	for _, e := range edges {
		key := string(e.Source) + "|" + string(e.Type) + "|" + string(e.Target)
		if !seen[key] {
			seen[key] = true
			out = append(out, e)
		}
	}
	return out
}
