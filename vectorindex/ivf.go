package vectorindex

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/contextframe/contextframe"
)

// Kind enumerates the index families spec §4.5 describes.
type Kind string

const (
	IVFPQ     Kind = "ivf_pq"
	IVFHNSW   Kind = "ivf_hnsw"
	IVFHNSWPQ Kind = "ivf_hnsw_pq"
	// IVFHNSWSQ is accepted and built identically to IVFHNSW: component-wise
	// scalar quantization of the stored vectors is not implemented, only the
	// PQ and raw-float32 storage paths are. Graph recall/latency are
	// unaffected; only the on-disk footprint this variant promises is not
	// yet realized.
	IVFHNSWSQ Kind = "ivf_hnsw_sq"
)

// BuildParams configures index training (spec §4.5).
type BuildParams struct {
	Kind           Kind
	Metric         Metric
	NumPartitions  int // k for IVF coarse quantizer
	PQSubvectors   int // m
	PQBits         int // b, default 8
	HNSWM          int
	HNSWEfConstruct int
	HNSWMaxLevel    int
	MaxKMeansIters  int
	SampleCap       int
}

// entry is one vector stored in a partition.
type entry struct {
	rowAddr int64
	vector  []float32 // nil when PQ-only (code carries the information instead)
	code    []byte
}

// partition holds everything a search touches for one IVF cell: either
// raw vectors scanned linearly, PQ codes scanned asymmetrically, or
// (IVF-HNSW variants) a graph over the same entries.
type partition struct {
	entries []entry
	graph   *hnswGraph // nil for plain IVF-PQ
}

// Index is a built, queryable ANN index over one dataset column at one
// manifest version's set of fragments (spec §4.5). An Index becomes
// IndexInvalidErr once any fragment it references is compacted away;
// the planner is responsible for checking validity before calling
// Search.
type Index struct {
	params     BuildParams
	centroids  [][]float32
	pq         *ProductQuantizer
	partitions []partition

	pageCache *lru.Cache[int, []entry]

	invalidReason string
}

// Invalidate marks the index unusable; subsequent Search calls return
// IndexInvalidErr. The maintenance package calls this once a compaction
// removes a fragment the index was built over (spec §4.5/§4.9).
func (idx *Index) Invalidate(reason string) {
	idx.invalidReason = reason
}

// IsValid reports whether the index can still be searched.
func (idx *Index) IsValid() bool {
	return idx.invalidReason == ""
}

// Build trains an index over (vectors, rowAddrs) pairs. Vectors
// containing NaN are skipped (spec §4.5 filter_nan default), so the
// index may cover fewer rows than len(vectors).
func Build(vectors [][]float32, rowAddrs []int64, params BuildParams) (*Index, error) {
	if len(vectors) != len(rowAddrs) {
		return nil, contextframe.NewError(contextframe.ValidationErr, "vectors and rowAddrs length mismatch")
	}
	clean := make([][]float32, 0, len(vectors))
	cleanAddrs := make([]int64, 0, len(vectors))
	for i, v := range vectors {
		if hasNaN(v) {
			continue
		}
		if params.Metric == Cosine {
			v = normalize(v)
		}
		clean = append(clean, v)
		cleanAddrs = append(cleanAddrs, rowAddrs[i])
	}
	if len(clean) == 0 {
		return nil, contextframe.NewError(contextframe.ValidationErr, "no non-NaN vectors to index")
	}

	k := params.NumPartitions
	if k <= 0 {
		k = 1
	}
	if k > len(clean) {
		k = len(clean)
	}
	maxIters := params.MaxKMeansIters
	if maxIters <= 0 {
		maxIters = 25
	}
	centroids, err := TrainCentroids(clean, k, params.Metric, maxIters)
	if err != nil {
		return nil, err
	}

	idx := &Index{params: params, centroids: centroids}

	var pq *ProductQuantizer
	if params.Kind == IVFPQ || params.Kind == IVFHNSWPQ {
		m := params.PQSubvectors
		if m <= 0 {
			m = 8
		}
		bits := params.PQBits
		if bits <= 0 {
			bits = 8
		}
		pq, err = TrainPQ(clean, m, bits, params.Metric, maxIters)
		if err != nil {
			return nil, err
		}
		idx.pq = pq
	}

	isGraphKind := params.Kind == IVFHNSW || params.Kind == IVFHNSWPQ || params.Kind == IVFHNSWSQ

	idx.partitions = make([]partition, k)
	for i, v := range clean {
		p := AssignPartition(v, centroids, params.Metric)
		e := entry{rowAddr: cleanAddrs[i]}
		// HNSW graph traversal needs real vectors to compute distances along
		// edges; PQ codes (when trained) are carried alongside purely as the
		// compact on-disk representation, not used during graph search.
		if isGraphKind {
			e.vector = v
			if pq != nil {
				e.code = pq.Encode(v)
			}
		} else if pq != nil {
			e.code = pq.Encode(v)
		} else {
			e.vector = v
		}
		idx.partitions[p].entries = append(idx.partitions[p].entries, e)
	}

	if params.Kind == IVFHNSW || params.Kind == IVFHNSWPQ || params.Kind == IVFHNSWSQ {
		m := params.HNSWM
		if m <= 0 {
			m = 16
		}
		ef := params.HNSWEfConstruct
		if ef <= 0 {
			ef = 64
		}
		maxLevel := params.HNSWMaxLevel
		if maxLevel <= 0 {
			maxLevel = 4
		}
		for i := range idx.partitions {
			g := newHNSWGraph(m, ef, maxLevel, params.Metric)
			for _, e := range idx.partitions[i].entries {
				g.insert(e)
			}
			idx.partitions[i].graph = g
		}
	}

	cache, err := lru.New[int, []entry](64)
	if err != nil {
		return nil, contextframe.Wrap(contextframe.InternalErr, err, "constructing partition page cache")
	}
	idx.pageCache = cache

	return idx, nil
}

// SearchOptions configures one knn call (spec §4.5/§4.7).
type SearchOptions struct {
	K             int
	MinNprobes    int
	MaxNprobes    int
	RefineFactor  int
	AllowList     *roaring.Bitmap // non-nil => prefilter: only these rows are candidates
	Prefilter     bool
	ExactVectors  func(rowAddr int64) ([]float32, bool) // for refine_factor re-ranking against the full vector
}

// Search returns up to K results sorted by ascending distance (spec
// §4.5). When opts.AllowList is set and opts.Prefilter is true, the
// search only considers rows in the allow-list. When opts.AllowList is
// set and opts.Prefilter is false, the search runs unfiltered and Search
// itself drops rows outside the allow-list from the ranked candidates
// just before cutting them to K, so fewer than K rows may come back.
func (idx *Index) Search(query []float32, opts SearchOptions) ([]SearchResult, error) {
	if !idx.IsValid() {
		return nil, contextframe.NewError(contextframe.IndexInvalidErr, "index invalidated: %s", idx.invalidReason)
	}
	if opts.K <= 0 {
		return nil, contextframe.NewError(contextframe.ValidationErr, "k must be positive")
	}
	if hasNaN(query) {
		return nil, contextframe.NewError(contextframe.ValidationErr, "query vector contains NaN")
	}
	q := query
	if idx.params.Metric == Cosine {
		q = normalize(query)
	}

	minP, maxP := opts.MinNprobes, opts.MaxNprobes
	if minP <= 0 {
		minP = 1
	}
	if maxP <= 0 || maxP > len(idx.centroids) {
		maxP = len(idx.centroids)
	}
	refine := opts.RefineFactor
	if refine <= 0 {
		refine = 1
	}
	candidateBudget := opts.K * refine

	order := nearestPartitions(q, idx.centroids, idx.params.Metric)

	var candidates []SearchResult
	probed := 0
	for _, p := range order {
		if probed >= maxP {
			break
		}
		probed++
		candidates = append(candidates, idx.searchPartition(q, p, opts)...)
		survivors := candidates
		if opts.AllowList != nil && opts.Prefilter {
			survivors = filterByAllowList(candidates, opts.AllowList)
		}
		if probed >= minP && len(survivors) >= candidateBudget {
			break
		}
	}

	if opts.AllowList != nil && opts.Prefilter {
		candidates = filterByAllowList(candidates, opts.AllowList)
	}

	sortResults(candidates)
	if len(candidates) > candidateBudget {
		candidates = candidates[:candidateBudget]
	}

	if opts.ExactVectors != nil && refine > 1 {
		candidates = rerankExact(q, candidates, idx.params.Metric, opts.ExactVectors)
	}

	if opts.AllowList != nil && !opts.Prefilter {
		candidates = filterByAllowList(candidates, opts.AllowList)
	}

	if len(candidates) > opts.K {
		candidates = candidates[:opts.K]
	}
	return candidates, nil
}

func filterByAllowList(results []SearchResult, allow *roaring.Bitmap) []SearchResult {
	out := results[:0:0]
	for _, r := range results {
		if r.RowAddr >= 0 && r.RowAddr <= 0xFFFFFFFF && allow.Contains(uint32(r.RowAddr)) {
			out = append(out, r)
		}
	}
	return out
}

func rerankExact(query []float32, results []SearchResult, metric Metric, exact func(int64) ([]float32, bool)) []SearchResult {
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if v, ok := exact(r.RowAddr); ok {
			out = append(out, SearchResult{RowAddr: r.RowAddr, Distance: distance(query, v, metric)})
		} else {
			out = append(out, r)
		}
	}
	sortResults(out)
	return out
}

func (idx *Index) searchPartition(query []float32, p int, opts SearchOptions) []SearchResult {
	if p < 0 || p >= len(idx.partitions) {
		return nil
	}
	part := idx.partitions[p]
	if part.graph != nil {
		ef := opts.K * 4
		if ef < 16 {
			ef = 16
		}
		return part.graph.search(query, opts.K*2, ef)
	}
	out := make([]SearchResult, 0, len(part.entries))
	for _, e := range part.entries {
		var d float32
		if idx.pq != nil {
			d = idx.pq.ApproxDistance(query, e.code)
		} else {
			d = distance(query, e.vector, idx.params.Metric)
		}
		out = append(out, SearchResult{RowAddr: e.rowAddr, Distance: d})
	}
	return out
}

func nearestPartitions(query []float32, centroids [][]float32, metric Metric) []int {
	type scored struct {
		idx  int
		dist float32
	}
	scoredList := make([]scored, len(centroids))
	for i, c := range centroids {
		scoredList[i] = scored{idx: i, dist: distance(query, c, metric)}
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].dist < scoredList[j].dist })
	out := make([]int, len(scoredList))
	for i, s := range scoredList {
		out[i] = s.idx
	}
	return out
}
