package scalarindex

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/tchap/go-patricia/v2/patricia"
	gi "github.com/yashtewari/glob-intersection"

	"github.com/contextframe/contextframe"
)

// NgramIndex accelerates LIKE/contains predicates (spec §4.6's "ngram"
// kind) by mapping every trigram seen in a column's values to the
// bitmap of rows containing it. A literal substring from a LIKE pattern
// is itself split into trigrams and their row sets intersected, giving
// a sound (superset) prefilter before the exact glob match the query
// package actually applies — the same "index narrows, scan confirms"
// contract the other scalar index kinds follow. The term dictionary
// uses a patricia trie so prefix-style lookups (index debug dumps,
// future range-over-trigram queries) stay cheap.
type NgramIndex struct {
	column string
	trie   *patricia.Trie
}

const trigramSize = 3

func BuildNgram(column string, values []string, rows []int64) (*NgramIndex, error) {
	if len(values) != len(rows) {
		return nil, contextframe.NewError(contextframe.ValidationErr, "values and rows length mismatch")
	}
	idx := &NgramIndex{column: column, trie: patricia.NewTrie()}
	for i, v := range values {
		for _, tri := range trigrams(v) {
			idx.addTrigram(tri, uint32(rows[i]))
		}
	}
	return idx, nil
}

func (n *NgramIndex) Column() string { return n.column }

func (n *NgramIndex) addTrigram(tri string, row uint32) {
	key := patricia.Prefix(tri)
	if item := n.trie.Get(key); item != nil {
		item.(*RowSet).Add(row)
		return
	}
	rs := NewRowSet()
	rs.Add(row)
	n.trie.Insert(key, rs)
}

// trigrams returns the lower-cased sliding-window trigrams of s. Values
// shorter than trigramSize contribute no trigrams (CandidateRows then
// reports "cannot prune"; the query package falls back to a full scan
// for such short literals).
func trigrams(s string) []string {
	s = strings.ToLower(s)
	runes := []rune(s)
	if len(runes) < trigramSize {
		return nil
	}
	out := make([]string, 0, len(runes)-trigramSize+1)
	for i := 0; i+trigramSize <= len(runes); i++ {
		out = append(out, string(runes[i:i+trigramSize]))
	}
	return out
}

// CandidateRows returns the intersection of every trigram's row set
// extracted from literal, or (nil, false) when literal is too short to
// produce any trigram — meaning the index cannot narrow the scan and
// the caller must fall back to scanning every row.
func (n *NgramIndex) CandidateRows(literal string) (*RowSet, bool) {
	tris := trigrams(literal)
	if len(tris) == 0 {
		return nil, false
	}
	var out *RowSet
	for _, tri := range tris {
		item := n.trie.Get(patricia.Prefix(tri))
		var rs *RowSet
		if item != nil {
			rs = item.(*RowSet)
		} else {
			rs = NewRowSet()
		}
		if out == nil {
			out = rs
		} else {
			out = out.And(rs)
		}
		if out.Cardinality() == 0 {
			break
		}
	}
	return out, true
}

// LikePatternFeasible reports whether a LIKE pattern (% / _ wildcards)
// and the literal anchor the planner extracted from it for trigram
// narrowing can possibly both match the same string, via glob
// intersection over the two patterns rewritten to */? glob syntax. A
// "no" answer means the trigram narrowing would be unsound for this
// pattern (the anchor and the full pattern disagree on structure) and
// the planner should skip the index rather than trust it; a library
// error is treated as "can't tell" and also skips the index, since this
// check only ever makes narrowing MORE conservative, never less.
func LikePatternFeasible(likePattern, anchorLiteral string) bool {
	anchorAppearsSomewhere := "*" + anchorLiteral + "*"
	ok, err := gi.NonEmpty(likeGlobOf(likePattern), anchorAppearsSomewhere)
	return err == nil && ok
}

func likeGlobOf(likePattern string) string {
	var b strings.Builder
	for _, r := range likePattern {
		switch r {
		case '%':
			b.WriteRune('*')
		case '_':
			b.WriteRune('?')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FuzzyDistance returns the case-insensitive Levenshtein edit distance
// between value and query. No query path calls it: contains and LIKE
// predicates are always matched exactly.
func FuzzyDistance(value, query string) int {
	return levenshtein.ComputeDistance(strings.ToLower(value), strings.ToLower(query))
}
