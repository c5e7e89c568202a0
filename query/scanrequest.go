package query

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/contextframe/contextframe/scalarindex"
)

// NearestOptions is a ScanRequest's optional KNN clause (spec §4.7).
type NearestOptions struct {
	Column       string
	QueryVector  []float32
	K            int
	Metric       string // "l2" | "cosine" | "dot"; not read by the scanner, which always searches with the index's trained metric
	Nprobes      int
	RefineFactor int
	UseIndex     bool
}

// FullTextOptions is a ScanRequest's optional FTS clause (spec §4.7).
type FullTextOptions struct {
	Columns     []string
	QueryString string
	K           int
}

// ScanRequest is the sole input to the planner/scanner (spec §4.7).
type ScanRequest struct {
	Columns            []string
	Filter             *Predicate
	Limit              int
	Offset             int
	Nearest            *NearestOptions
	FullTextQuery      *FullTextOptions
	Prefilter          bool
	Fragments          []int64
	WithRowID          bool
	WithRowAddress     bool
	BatchSize          int
	BatchReadahead      int
	FragmentReadahead   int
	ScanInOrder         bool
	IOBufferSize        int
	IncludeDeletedRows  bool
	UseScalarIndex      bool
	LateMaterialization bool

	// ExternalCandidates lets a caller outside the Filter/Planner path
	// (relate's reverse-relationship lookups, which narrow by a scalar
	// index the planner has no binding for) AND its own row-address
	// narrowing into the scan. Safe under the same "index only narrows"
	// invariant as every planner-derived candidate set.
	ExternalCandidates *scalarindex.RowSet
}

// DefaultScanRequest returns a ScanRequest with spec-reasonable defaults
// (§4.7): scalar index usage and late materialization on, ordered
// fragment iteration, deletion vectors honored.
func DefaultScanRequest() ScanRequest {
	return ScanRequest{
		BatchSize:           1024,
		BatchReadahead:      2,
		FragmentReadahead:   2,
		ScanInOrder:         true,
		IOBufferSize:        1 << 20,
		UseScalarIndex:      true,
		LateMaterialization: true,
	}
}

// rowAddrSet is the internal bitmap type the planner/scanner pass
// around; kept as a thin alias so callers outside scalarindex don't
// need to import it directly for this one type.
type rowAddrSet = roaring.Bitmap
