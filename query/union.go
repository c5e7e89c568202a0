package query

import (
	"sort"

	"github.com/contextframe/contextframe/scalarindex"
)

// UnionColumns merges the per-index hit sets of several independently
// built single-column FTS indexes into one ranked result, by summing the
// BM25 score a row earned from every index that matched it. This is the
// "union-then-rerank" answer to the multi-column-FTS open question
// (spec's full_text_search(columns=[...])): Planner.Plan and Scanner
// only ever drive a single scalarindex.FTSIndex per scan (the common
// case, a dataset built with one FTS index spanning all its text
// columns), so a query that needs results ranked across columns indexed
// *separately* combines their Search() outputs here instead of teaching
// the core scan path a second ranking mode.
func UnionColumns(hitSets [][]scalarindex.Hit, topK int) []scalarindex.Hit {
	scores := make(map[int64]float64)
	for _, hits := range hitSets {
		for _, h := range hits {
			scores[h.RowAddr] += h.Score
		}
	}
	out := make([]scalarindex.Hit, 0, len(scores))
	for addr, score := range scores {
		out = append(out, scalarindex.Hit{RowAddr: addr, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].RowAddr < out[j].RowAddr
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
