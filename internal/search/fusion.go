package search

import "sort"

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// empirically validated across domains (used by Azure AI Search,
// OpenSearch, etc.).
const DefaultRRFConstant = 60

// Weights controls the relative contribution of each ranked list to the
// fused score.
type Weights struct {
	BM25     float64
	Semantic float64
}

// DefaultWeights gives lexical and vector signals equal weight.
func DefaultWeights() Weights { return Weights{BM25: 1.0, Semantic: 1.0} }

// FusedResult is a single hit after reciprocal-rank fusion.
type FusedResult struct {
	ID           string
	RRFScore     float64
	BM25Score    float64
	BM25Rank     int
	VecScore     float64
	VecRank      int
	InBothLists  bool
	MatchedTerms []string
}

// RRFFusion combines BM25 and vector search results:
//
//	RRFScore(d) = Σ weight_i / (k + rank_i)
type RRFFusion struct {
	K int
}

// NewRRFFusion returns an RRFFusion with k=60.
func NewRRFFusion() *RRFFusion { return &RRFFusion{K: DefaultRRFConstant} }

// NewRRFFusionWithK returns an RRFFusion with the given k (falls back
// to the default if k <= 0).
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse combines bm25 and vec rankings. Documents present in only one
// list receive a missing_rank contribution of max(len(bm25),len(vec))+1
// for the absent source. Results are ordered by: RRFScore desc →
// InBothLists (true first) → BM25Score desc → ID asc, then normalized
// to 0-1 against the top score.
func (f *RRFFusion) Fuse(bm25 []*BM25Result, vec []*VectorResult, weights Weights) []*FusedResult {
	if len(bm25) == 0 && len(vec) == 0 {
		return []*FusedResult{}
	}

	scores := make(map[string]*FusedResult, len(bm25)+len(vec))

	for rank, r := range bm25 {
		result := f.getOrCreate(scores, r.DocID)
		result.BM25Score = r.Score
		result.BM25Rank = rank + 1
		result.MatchedTerms = r.MatchedTerms
		result.RRFScore += weights.BM25 / float64(f.K+rank+1)
	}

	for rank, r := range vec {
		result := f.getOrCreate(scores, r.ID)
		result.VecScore = float64(r.Score)
		result.VecRank = rank + 1
		result.RRFScore += weights.Semantic / float64(f.K+rank+1)
		if result.BM25Rank > 0 {
			result.InBothLists = true
		}
	}

	missingRank := f.calculateMissingRank(len(bm25), len(vec))
	for _, r := range scores {
		if r.BM25Rank == 0 && r.VecRank > 0 {
			r.RRFScore += weights.BM25 / float64(f.K+missingRank)
		}
		if r.VecRank == 0 && r.BM25Rank > 0 {
			r.RRFScore += weights.Semantic / float64(f.K+missingRank)
		}
	}

	results := f.toSortedSlice(scores)
	f.normalize(results)
	return results
}

func (f *RRFFusion) getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{ID: id}
	m[id] = r
	return r
}

func (f *RRFFusion) calculateMissingRank(bm25Len, vecLen int) int {
	if bm25Len > vecLen {
		return bm25Len + 1
	}
	return vecLen + 1
}

func (f *RRFFusion) toSortedSlice(m map[string]*FusedResult) []*FusedResult {
	results := make([]*FusedResult, 0, len(m))
	for _, r := range m {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return f.compare(results[i], results[j]) })
	return results
}

// compare reports whether a should rank before b.
func (f *RRFFusion) compare(a, b *FusedResult) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.BM25Score != b.BM25Score {
		return a.BM25Score > b.BM25Score
	}
	return a.ID < b.ID
}

func (f *RRFFusion) normalize(results []*FusedResult) {
	if len(results) == 0 {
		return
	}
	maxScore := results[0].RRFScore
	if maxScore == 0 {
		return
	}
	for _, r := range results {
		r.RRFScore = r.RRFScore / maxScore
	}
}
