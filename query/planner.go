package query

import (
	"fmt"

	"github.com/contextframe/contextframe/scalarindex"
)

// IndexBinding tells the planner which scalar index (if any) services a
// given column, and under what name to look it up in the catalog.
type IndexBinding struct {
	Column string
	Kind   scalarindex.Kind
	Name   string
}

// Plan is the planner's output: a row-address set already narrowed by
// every indexable conjunct (nil means "no narrowing possible, must scan
// every row"), plus the residual predicate that still needs per-row
// evaluation (spec §4.7 decision 1).
type Plan struct {
	Candidates *scalarindex.RowSet
	Residual   *Predicate
}

// Planner selects indexes for a ScanRequest's filter (spec §4.7).
type Planner struct {
	catalog  *scalarindex.Catalog
	bindings map[string]IndexBinding // column -> binding
}

func NewPlanner(catalog *scalarindex.Catalog, bindings []IndexBinding) *Planner {
	byCol := make(map[string]IndexBinding, len(bindings))
	for _, b := range bindings {
		byCol[b.Column] = b
	}
	return &Planner{catalog: catalog, bindings: byCol}
}

// Plan decomposes filter into independently-indexable conjuncts plus a
// residual. Each top-level AND clause is tested against the catalog;
// clauses this planner cannot service (OR/NOT/no-index-available)
// become part of the residual predicate, conservatively ANDed back in.
func (pl *Planner) Plan(filter *Predicate) (*Plan, error) {
	if filter == nil {
		return &Plan{}, nil
	}
	clauses := conjuncts(filter)

	var candidates *scalarindex.RowSet
	var residualClauses []*Predicate

	for _, clause := range clauses {
		// rs, when non-nil, is always safe to AND into candidates: every
		// index path below returns either an exact match set or a sound
		// superset (ngram's prefilter), never a set with false negatives.
		rs, handled, err := pl.tryIndex(clause)
		if err != nil {
			return nil, err
		}
		if rs != nil {
			if candidates == nil {
				candidates = rs
			} else {
				candidates = candidates.And(rs)
			}
		}
		if !handled {
			residualClauses = append(residualClauses, clause)
		}
	}

	var residual *Predicate
	switch len(residualClauses) {
	case 0:
		residual = nil
	case 1:
		residual = residualClauses[0]
	default:
		residual = And(residualClauses...)
	}

	return &Plan{Candidates: candidates, Residual: residual}, nil
}

// tryIndex attempts to narrow clause via an index. It returns (rowset,
// fullyResolved, err): rowset is non-nil whenever an index could narrow
// the candidate set at all (even just a sound superset), fullyResolved
// reports whether the clause is now fully answered by the index (and so
// can be dropped from the residual predicate). A binding naming an
// index the catalog doesn't have yet (not built, or mid-rebuild after
// compaction) falls back to no narrowing rather than erroring — that is
// an expected transient state, not a planner bug.
func (pl *Planner) tryIndex(clause *Predicate) (*scalarindex.RowSet, bool, error) {
	if clause.Op == OpAnd || clause.Op == OpOr || clause.Op == OpNot {
		return nil, false, nil
	}
	binding, ok := pl.bindings[clause.Field]
	if !ok {
		return nil, false, nil
	}

	switch binding.Kind {
	case scalarindex.BTree:
		idx, err := pl.catalog.BTree(binding.Name)
		if err != nil {
			return nil, false, nil
		}
		return tryBTree(idx, clause)
	case scalarindex.Bitmap:
		idx, err := pl.catalog.Bitmap(binding.Name)
		if err != nil {
			return nil, false, nil
		}
		return tryBitmap(idx, clause)
	case scalarindex.LabelList:
		idx, err := pl.catalog.LabelList(binding.Name)
		if err != nil {
			return nil, false, nil
		}
		return tryLabelList(idx, clause)
	case scalarindex.Ngram:
		idx, err := pl.catalog.Ngram(binding.Name)
		if err != nil {
			return nil, false, nil
		}
		return tryNgram(idx, clause)
	default:
		return nil, false, nil
	}
}

func tryBTree(idx *scalarindex.BTreeIndex, clause *Predicate) (*scalarindex.RowSet, bool, error) {
	switch clause.Op {
	case OpEq:
		f, ok := asFloat(clause.Value)
		if !ok {
			return nil, false, nil
		}
		return idx.Equal(f), true, nil
	case OpBetween:
		lo, lok := asFloat(clause.Low)
		hi, hok := asFloat(clause.High)
		if !lok || !hok {
			return nil, false, nil
		}
		return idx.Range(lo, hi, true, true), true, nil
	case OpLt, OpLe, OpGt, OpGe:
		f, ok := asFloat(clause.Value)
		if !ok {
			return nil, false, nil
		}
		switch clause.Op {
		case OpLt:
			return idx.Range(negInf, f, true, false), true, nil
		case OpLe:
			return idx.Range(negInf, f, true, true), true, nil
		case OpGt:
			return idx.Range(f, posInf, false, true), true, nil
		default: // OpGe
			return idx.Range(f, posInf, true, true), true, nil
		}
	default:
		return nil, false, nil
	}
}

const (
	negInf = -1e307
	posInf = 1e307
)

func tryBitmap(idx *scalarindex.BitmapIndex, clause *Predicate) (*scalarindex.RowSet, bool, error) {
	switch clause.Op {
	case OpEq:
		return idx.Equal(valueToString(clause.Value)), true, nil
	case OpIn:
		vals := make([]string, len(clause.Values))
		for i, v := range clause.Values {
			vals[i] = valueToString(v)
		}
		return idx.In(vals), true, nil
	case OpIsNull:
		return idx.IsNull(), true, nil
	default:
		return nil, false, nil
	}
}

func tryLabelList(idx *scalarindex.LabelListIndex, clause *Predicate) (*scalarindex.RowSet, bool, error) {
	switch clause.Op {
	case OpArrayHasAny:
		return idx.HasAny(valuesToStrings(clause.Values)), true, nil
	case OpArrayHasAll:
		return idx.HasAll(valuesToStrings(clause.Values)), true, nil
	default:
		return nil, false, nil
	}
}

func tryNgram(idx *scalarindex.NgramIndex, clause *Predicate) (*scalarindex.RowSet, bool, error) {
	switch clause.Op {
	case OpContains:
		s, ok := clause.Value.(string)
		if !ok {
			return nil, false, nil
		}
		rs, pruned := idx.CandidateRows(s)
		if !pruned {
			return nil, false, nil
		}
		// The ngram index only narrows (it's a sound superset): keep the
		// clause in the residual so the exact contains() check still runs.
		return rs, false, nil
	case OpLike:
		pattern, ok := clause.Value.(string)
		if !ok {
			return nil, false, nil
		}
		anchor := longestLiteralRun(pattern)
		if anchor == "" {
			return nil, false, nil
		}
		if !scalarindex.LikePatternFeasible(pattern, anchor) {
			return nil, false, nil
		}
		rs, pruned := idx.CandidateRows(anchor)
		if !pruned {
			return nil, false, nil
		}
		return rs, false, nil
	default:
		return nil, false, nil
	}
}

// longestLiteralRun returns the longest substring of a LIKE pattern that
// contains no % or _ wildcard, the anchor used to narrow via the ngram
// trigram index.
func longestLiteralRun(pattern string) string {
	best := ""
	cur := ""
	flush := func() {
		if len(cur) > len(best) {
			best = cur
		}
		cur = ""
	}
	for _, r := range pattern {
		if r == '%' || r == '_' {
			flush()
			continue
		}
		cur += string(r)
	}
	flush()
	return best
}

func valueToString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func valuesToStrings(vs []any) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
