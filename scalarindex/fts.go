package scalarindex

import (
	"math"
	"sort"

	"github.com/tchap/go-patricia/v2/patricia"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

type posting struct {
	docFreq int
	rows    map[uint32]int // rowAddr -> term frequency in that document
}

// FTSIndex is a BM25-scored inverted index over one or more text columns
// (spec §4.6's "fts" kind). Terms are held in a patricia trie keyed by
// term; Search looks each query term up exactly, and the index offers
// no prefix query.
type FTSIndex struct {
	columns   []string
	opts      TokenizeOptions
	terms     *patricia.Trie
	docLength map[uint32]int
	totalDocs int
	totalLen  int64
}

func BuildFTS(columns []string, opts TokenizeOptions) *FTSIndex {
	return &FTSIndex{columns: columns, opts: opts, terms: patricia.NewTrie(), docLength: map[uint32]int{}}
}

// AddDocument tokenizes text (the concatenation of every indexed column
// for one row, per spec's SUPPLEMENTED FEATURES multi-column FTS
// resolution) and folds it into the postings.
func (f *FTSIndex) AddDocument(row int64, text string) {
	r := uint32(row)
	tokens := Tokenize(text, f.opts)
	if _, seen := f.docLength[r]; !seen {
		f.totalDocs++
	}
	f.docLength[r] += len(tokens)
	f.totalLen += int64(len(tokens))

	counts := map[string]int{}
	for _, t := range tokens {
		counts[t]++
	}
	for term, freq := range counts {
		key := patricia.Prefix(term)
		item := f.terms.Get(key)
		var p *posting
		if item != nil {
			p = item.(*posting)
		} else {
			p = &posting{rows: map[uint32]int{}}
			f.terms.Insert(key, p)
		}
		if _, existed := p.rows[r]; !existed {
			p.docFreq++
		}
		p.rows[r] = freq
	}
}

func (f *FTSIndex) avgDocLength() float64 {
	if f.totalDocs == 0 {
		return 0
	}
	return float64(f.totalLen) / float64(f.totalDocs)
}

// Hit is one scored document from a FullTextSearch query.
type Hit struct {
	RowAddr int64
	Score   float64
}

// Search runs a BM25 query (spec §4.6) over terms extracted from
// queryText using the same tokenize options the index was built with,
// returning the topK highest-scoring rows descending by score (ties
// broken by ascending row address for determinism).
func (f *FTSIndex) Search(queryText string, topK int) []Hit {
	terms := Tokenize(queryText, f.opts)
	avgLen := f.avgDocLength()
	scores := map[uint32]float64{}

	seen := map[string]bool{}
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true
		item := f.terms.Get(patricia.Prefix(term))
		if item == nil {
			continue
		}
		p := item.(*posting)
		idf := idfScore(f.totalDocs, p.docFreq)
		for row, tf := range p.rows {
			dl := float64(f.docLength[row])
			denom := float64(tf) + bm25K1*(1-bm25B+bm25B*dl/maxFloat(avgLen, 1))
			scores[row] += idf * (float64(tf) * (bm25K1 + 1) / denom)
		}
	}

	hits := make([]Hit, 0, len(scores))
	for row, score := range scores {
		hits = append(hits, Hit{RowAddr: int64(row), Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].RowAddr < hits[j].RowAddr
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

func idfScore(totalDocs, docFreq int) float64 {
	if docFreq == 0 || totalDocs == 0 {
		return 0
	}
	n := float64(totalDocs)
	df := float64(docFreq)
	v := math.Log((n-df+0.5)/(df+0.5) + 1)
	if v < 0 {
		return 0
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
