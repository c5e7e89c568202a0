package vectorindex

import (
	"math"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
)

func makeGrid(n, dim int) ([][]float32, []int64) {
	vecs := make([][]float32, n)
	addrs := make([]int64, n)
	for i := 0; i < n; i++ {
		v := make([]float32, dim)
		for d := 0; d < dim; d++ {
			v[d] = float32(i) + float32(d)*0.01
		}
		vecs[i] = v
		addrs[i] = int64(i)
	}
	return vecs, addrs
}

func TestIVFPQBasicKNNCorrectness(t *testing.T) {
	vecs, addrs := makeGrid(200, 8)
	idx, err := Build(vecs, addrs, BuildParams{Kind: IVFPQ, Metric: L2, NumPartitions: 8, PQSubvectors: 4, PQBits: 4})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	query := vecs[50]
	results, err := idx.Search(query, SearchOptions{K: 5, MaxNprobes: 8, RefineFactor: 4,
		ExactVectors: func(addr int64) ([]float32, bool) { return vecs[addr], true }})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if results[0].RowAddr != 50 {
		t.Errorf("expected nearest neighbor of row 50 to be itself, got %d (dist %f)", results[0].RowAddr, results[0].Distance)
	}
}

func TestIVFHNSWBasicKNNCorrectness(t *testing.T) {
	vecs, addrs := makeGrid(150, 6)
	idx, err := Build(vecs, addrs, BuildParams{Kind: IVFHNSW, Metric: L2, NumPartitions: 4, HNSWM: 8, HNSWEfConstruct: 32})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	query := vecs[10]
	results, err := idx.Search(query, SearchOptions{K: 3, MaxNprobes: 4})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	found := false
	for _, r := range results {
		if r.RowAddr == 10 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected row 10 among top results for its own vector, got %+v", results)
	}
}

func TestBuildExcludesNaNVectors(t *testing.T) {
	vecs, addrs := makeGrid(20, 4)
	vecs[5] = []float32{float32(math.NaN()), 0, 0, 0}
	idx, err := Build(vecs, addrs, BuildParams{Kind: IVFPQ, Metric: L2, NumPartitions: 2, PQSubvectors: 2, PQBits: 4})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	results, err := idx.Search(vecs[0], SearchOptions{K: 20, MaxNprobes: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.RowAddr == 5 {
			t.Errorf("NaN-vector row 5 should have been excluded from the index, found in results")
		}
	}
}

func TestSearchRejectsNaNQuery(t *testing.T) {
	vecs, addrs := makeGrid(10, 4)
	idx, err := Build(vecs, addrs, BuildParams{Kind: IVFPQ, Metric: L2, NumPartitions: 2, PQSubvectors: 2, PQBits: 4})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	_, err = idx.Search([]float32{float32(math.NaN()), 0, 0, 0}, SearchOptions{K: 1})
	if err == nil {
		t.Fatal("expected an error for a NaN query vector")
	}
}

func TestPrefilterAndPostfilterAgreeOnSurvivingSet(t *testing.T) {
	vecs, addrs := makeGrid(100, 4)
	idx, err := Build(vecs, addrs, BuildParams{Kind: IVFPQ, Metric: L2, NumPartitions: 5, PQSubvectors: 2, PQBits: 6})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	allow := roaring.New()
	for i := uint32(0); i < 100; i += 3 {
		allow.Add(i)
	}

	pre, err := idx.Search(vecs[0], SearchOptions{K: 10, MaxNprobes: 5, AllowList: allow, Prefilter: true})
	if err != nil {
		t.Fatalf("prefilter search: %v", err)
	}
	post, err := idx.Search(vecs[0], SearchOptions{K: 10, MaxNprobes: 5, AllowList: allow, Prefilter: false})
	if err != nil {
		t.Fatalf("postfilter search: %v", err)
	}

	preSet := map[int64]bool{}
	for _, r := range pre {
		preSet[r.RowAddr] = true
		if !allow.Contains(uint32(r.RowAddr)) {
			t.Errorf("prefilter result %d not in allow-list", r.RowAddr)
		}
	}
	for _, r := range post {
		if !allow.Contains(uint32(r.RowAddr)) {
			t.Errorf("postfilter result %d not in allow-list", r.RowAddr)
		}
	}
}

func TestRefineFactorImprovesOrMaintainsRecallOfTrueNearest(t *testing.T) {
	vecs, addrs := makeGrid(300, 16)
	idx, err := Build(vecs, addrs, BuildParams{Kind: IVFPQ, Metric: L2, NumPartitions: 10, PQSubvectors: 4, PQBits: 3})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	query := vecs[150]
	exact := func(addr int64) ([]float32, bool) { return vecs[addr], true }

	low, err := idx.Search(query, SearchOptions{K: 5, MaxNprobes: 10, RefineFactor: 1, ExactVectors: exact})
	if err != nil {
		t.Fatalf("low refine search: %v", err)
	}
	high, err := idx.Search(query, SearchOptions{K: 5, MaxNprobes: 10, RefineFactor: 8, ExactVectors: exact})
	if err != nil {
		t.Fatalf("high refine search: %v", err)
	}
	if len(high) == 0 || high[0].RowAddr != 150 {
		t.Errorf("expected refine_factor=8 search to recover the exact nearest neighbor, got %+v", high)
	}
	_ = low
}

func TestKGreaterThanDatasetSizeReturnsAllRows(t *testing.T) {
	vecs, addrs := makeGrid(7, 4)
	idx, err := Build(vecs, addrs, BuildParams{Kind: IVFPQ, Metric: L2, NumPartitions: 2, PQSubvectors: 2, PQBits: 4})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	results, err := idx.Search(vecs[0], SearchOptions{K: 1000, MaxNprobes: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 7 {
		t.Fatalf("expected all 7 rows ranked when k > dataset_size, got %d", len(results))
	}
}

func TestCosineMetricNormalizesAtBuildAndQueryTime(t *testing.T) {
	vecs := [][]float32{{1, 0}, {2, 0}, {0, 1}, {0, 3}}
	addrs := []int64{0, 1, 2, 3}
	idx, err := Build(vecs, addrs, BuildParams{Kind: IVFPQ, Metric: Cosine, NumPartitions: 2, PQSubvectors: 1, PQBits: 4})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	results, err := idx.Search([]float32{5, 0}, SearchOptions{K: 2, MaxNprobes: 2, ExactVectors: func(addr int64) ([]float32, bool) { return vecs[addr], true }, RefineFactor: 4})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results[0].RowAddr != 0 && results[0].RowAddr != 1 {
		t.Errorf("expected one of the collinear vectors (0 or 1) to rank first under cosine, got %d", results[0].RowAddr)
	}
}

func TestTrainCentroidsRejectsEmptySample(t *testing.T) {
	if _, err := TrainCentroids(nil, 2, L2, 10); err == nil {
		t.Fatal("expected an error for an empty training sample")
	}
}

func TestTrainPQRejectsNonDivisibleDim(t *testing.T) {
	vecs := [][]float32{{1, 2, 3}, {4, 5, 6}}
	if _, err := TrainPQ(vecs, 2, 4, L2, 10); err == nil {
		t.Fatal("expected an error when embed_dim is not divisible by m")
	}
}
