package query

import (
	"context"
	"sort"

	"github.com/contextframe/contextframe"
	"github.com/contextframe/contextframe/record"
	"github.com/contextframe/contextframe/scalarindex"
	"github.com/contextframe/contextframe/schema"
	"github.com/contextframe/contextframe/store"
	"github.com/contextframe/contextframe/vectorindex"
)

// Batch is one chunk of a scan's output: decoded records plus, when
// requested, their stable row addresses and any KNN/FTS scores the scan
// produced alongside them.
type Batch struct {
	Records      []*record.Record
	RowAddresses []int64
	Distances    []float32 // parallel to Records when req.Nearest is set
	Scores       []float64 // parallel to Records when req.FullTextQuery is set
}

// rowAddress assigns a stable, dataset-wide row number: the cumulative
// row count of every fragment preceding ref in manifest order, plus the
// row's local offset within ref. This is the addressing scheme every
// scalar/vector index in this engine was built against (scalarindex's
// RowSet and vectorindex's partitions both key by this same uint32-sized
// number; spec §4.7's "ascending row address" tie-break refers to it).
func rowAddress(fragmentOffset int64, localRow int) int64 {
	return fragmentOffset + int64(localRow)
}

// fragmentOffsets returns, for each fragment in order, the cumulative
// row count of every fragment before it.
func fragmentOffsets(fragments []store.FragmentRef) []int64 {
	out := make([]int64, len(fragments))
	var running int64
	for i, f := range fragments {
		out[i] = running
		running += f.Rows
	}
	return out
}

// Scanner is a lazy, finite, single-pass iterator over one manifest
// version's visible rows, shaped by a ScanRequest (spec §4.7's pipeline:
// source -> index probe -> filter -> KNN/FTS -> sort/limit -> projection
// -> batch). A Scanner is not safe for concurrent use.
type Scanner struct {
	store    *store.Store
	reg      *schema.Registry
	manifest *store.Manifest
	req      ScanRequest
	plan     *Plan

	vecIndexes map[string]*vectorindex.Index
	ftsIndex   *scalarindex.FTSIndex

	offsets []int64

	// sequential-scan cursor: next row to examine is
	// manifest.Fragments[fragIdx]'s local row index localRow.
	fragIdx int
	localRow int
	skipped int // rows skipped so far to satisfy req.Offset

	// precomputed single-batch results for KNN/FTS-driven scans
	precomputed []scoredRow
	precomputedPos int
	usePrecomputed  bool

	emitted int
	done    bool
}

type scoredRow struct {
	rowAddr  int64
	distance float32
	hasDist  bool
	score    float64
	hasScore bool
}

// NewScanner builds a Scanner for req against manifest, resolving
// indexes through planner (may be nil to force a full scan) and
// vecIndexes/ftsIndex for the optional KNN/FTS clauses (either may be
// nil if req does not use them).
func NewScanner(s *store.Store, reg *schema.Registry, manifest *store.Manifest, planner *Planner, vecIndexes map[string]*vectorindex.Index, ftsIndex *scalarindex.FTSIndex, req ScanRequest) (*Scanner, error) {
	sc := &Scanner{
		store:      s,
		reg:        reg,
		manifest:   manifest,
		req:        req,
		vecIndexes: vecIndexes,
		ftsIndex:   ftsIndex,
		offsets:    fragmentOffsets(manifest.Fragments),
	}

	if planner != nil && req.UseScalarIndex {
		plan, err := planner.Plan(req.Filter)
		if err != nil {
			return nil, err
		}
		sc.plan = plan
	} else {
		sc.plan = &Plan{Residual: req.Filter}
	}

	if req.ExternalCandidates != nil {
		if sc.plan.Candidates == nil {
			sc.plan.Candidates = req.ExternalCandidates
		} else {
			sc.plan.Candidates = sc.plan.Candidates.And(req.ExternalCandidates)
		}
	}

	if req.Nearest != nil {
		if err := sc.runKNN(); err != nil {
			return nil, err
		}
		sc.usePrecomputed = true
	} else if req.FullTextQuery != nil {
		sc.runFTSOnly()
		sc.usePrecomputed = true
	}

	return sc, nil
}

// runKNN executes the KNN clause up front (spec §4.7 decision 5: KNN
// runs first and bounds the candidate set; FTS, if also present, acts as
// a postfilter + rescore over the KNN results rather than an independent
// ranking). The whole top-K result fits in one batch, so it is computed
// eagerly rather than lazily paged.
func (sc *Scanner) runKNN() error {
	nn := sc.req.Nearest
	idx := sc.vecIndexes[nn.Column]
	if idx == nil || !nn.UseIndex {
		return contextframe.NewError(contextframe.UnsupportedErr, "no vector index available for column %q", nn.Column)
	}

	var allow *rowAddrSet
	if sc.req.Prefilter && sc.plan.Candidates != nil {
		allow = sc.plan.Candidates.Bitmap()
	}

	results, err := idx.Search(nn.QueryVector, vectorindex.SearchOptions{
		K:            nn.K,
		MinNprobes:   nn.Nprobes,
		MaxNprobes:   nn.Nprobes,
		RefineFactor: nn.RefineFactor,
		AllowList:    allow,
		Prefilter:    sc.req.Prefilter,
	})
	if err != nil {
		return err
	}

	rows := make([]scoredRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, scoredRow{rowAddr: r.RowAddr, distance: r.Distance, hasDist: true})
	}

	// Non-prefiltered scalar narrowing, and the residual predicate, still
	// apply as a postfilter over the ANN result (spec §4.7 decision 1):
	// an index never produces false negatives, so intersecting afterward
	// is always safe, just potentially shrinks the K actually returned.
	if !sc.req.Prefilter && sc.plan.Candidates != nil {
		rows = filterByCandidates(rows, sc.plan.Candidates)
	}

	if sc.req.FullTextQuery != nil && sc.ftsIndex != nil {
		rows = sc.rescoreWithFTS(rows)
	}

	sc.precomputed = rows
	return nil
}

// runFTSOnly handles a FullTextQuery with no Nearest clause: FTS becomes
// the sole ranking signal and scalar-index candidates (if any) narrow it.
func (sc *Scanner) runFTSOnly() {
	hits := sc.ftsIndex.Search(sc.req.FullTextQuery.QueryString, sc.req.FullTextQuery.K)
	rows := make([]scoredRow, 0, len(hits))
	for _, h := range hits {
		rows = append(rows, scoredRow{rowAddr: h.RowAddr, score: h.Score, hasScore: true})
	}
	if sc.plan.Candidates != nil {
		rows = filterByCandidates(rows, sc.plan.Candidates)
	}
	sc.precomputed = rows
}

// rescoreWithFTS narrows rows (a KNN result set) to those also matching
// the full-text query, attaching each survivor's BM25 score.
func (sc *Scanner) rescoreWithFTS(rows []scoredRow) []scoredRow {
	hits := sc.ftsIndex.Search(sc.req.FullTextQuery.QueryString, 0)
	byRow := make(map[int64]float64, len(hits))
	for _, h := range hits {
		byRow[h.RowAddr] = h.Score
	}
	out := rows[:0]
	for _, r := range rows {
		if score, ok := byRow[r.rowAddr]; ok {
			r.score = score
			r.hasScore = true
			out = append(out, r)
		}
	}
	return out
}

func filterByCandidates(rows []scoredRow, candidates *scalarindex.RowSet) []scoredRow {
	out := rows[:0]
	for _, r := range rows {
		if candidates.Contains(uint32(r.rowAddr)) {
			out = append(out, r)
		}
	}
	return out
}

// Next returns the next batch of matching records, or (nil, io.EOF)-style
// completion signalled by a nil batch and nil error once the scan is
// exhausted.
func (sc *Scanner) Next(ctx context.Context) (*Batch, error) {
	if sc.done {
		return nil, nil
	}
	if sc.usePrecomputed {
		return sc.nextPrecomputed(ctx)
	}
	return sc.nextSequential(ctx)
}

func (sc *Scanner) nextPrecomputed(ctx context.Context) (*Batch, error) {
	for sc.precomputedPos < len(sc.precomputed) && sc.skipped < sc.req.Offset {
		sc.precomputedPos++
		sc.skipped++
	}
	if sc.precomputedPos >= len(sc.precomputed) {
		sc.done = true
		return nil, nil
	}

	batchSize := sc.req.BatchSize
	if batchSize <= 0 {
		batchSize = len(sc.precomputed)
	}

	batch := &Batch{}
	for sc.precomputedPos < len(sc.precomputed) {
		if sc.req.Limit > 0 && sc.emitted >= sc.req.Limit {
			sc.done = true
			break
		}
		if len(batch.Records) >= batchSize {
			break
		}
		sr := sc.precomputed[sc.precomputedPos]
		sc.precomputedPos++

		rec, ok, err := sc.materialize(ctx, sr.rowAddr)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		batch.Records = append(batch.Records, rec)
		if sc.req.WithRowAddress {
			batch.RowAddresses = append(batch.RowAddresses, sr.rowAddr)
		}
		if sr.hasDist {
			batch.Distances = append(batch.Distances, sr.distance)
		}
		if sr.hasScore {
			batch.Scores = append(batch.Scores, sr.score)
		}
		sc.emitted++
	}
	if sc.precomputedPos >= len(sc.precomputed) {
		sc.done = true
	}
	if len(batch.Records) == 0 {
		sc.done = true
		return nil, nil
	}
	return batch, nil
}

// materialize decodes one row, by its global row address, into a
// Record, honoring projection and the deletion vector. Returns
// ok == false if the row is deleted (and IncludeDeletedRows is unset)
// or does not satisfy the residual predicate.
func (sc *Scanner) materialize(ctx context.Context, addr int64) (*record.Record, bool, error) {
	fragIdx, local := sc.locate(addr)
	if fragIdx < 0 {
		return nil, false, contextframe.NewError(contextframe.NotFoundErr, "row address %d out of range", addr)
	}
	ref := sc.manifest.Fragments[fragIdx]

	if !sc.req.IncludeDeletedRows {
		dv, err := sc.store.ReadDeletionVector(ctx, ref)
		if err != nil {
			return nil, false, err
		}
		if dv.IsDeleted(uint32(local)) {
			return nil, false, nil
		}
	}

	row, err := sc.readRow(ctx, ref, local)
	if err != nil {
		return nil, false, err
	}
	ok, err := Eval(sc.plan.Residual, row)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return store.RowToRecord(row), true, nil
}

// locate maps a global row address back to (fragment index, local row).
func (sc *Scanner) locate(addr int64) (int, int) {
	i := sort.Search(len(sc.offsets), func(i int) bool {
		next := int64(1) << 62
		if i+1 < len(sc.offsets) {
			next = sc.offsets[i+1]
		}
		return addr < next
	})
	if i >= len(sc.manifest.Fragments) {
		return -1, 0
	}
	return i, int(addr - sc.offsets[i])
}

// projectedColumns returns the columns to decode: the explicit
// projection plus every column the residual predicate references (it
// must be evaluated against the full row even if the caller didn't ask
// for that column back), or every column when no projection was given.
func (sc *Scanner) projectedColumns() []*schema.Column {
	all := sc.reg.Columns()
	if len(sc.req.Columns) == 0 {
		return all
	}
	want := make(map[string]bool, len(sc.req.Columns))
	for _, c := range sc.req.Columns {
		want[c] = true
	}
	for _, f := range residualFields(sc.plan.Residual) {
		want[f] = true
	}
	want["uuid"] = true
	out := make([]*schema.Column, 0, len(all))
	for _, c := range all {
		if want[c.Name] {
			out = append(out, c)
		}
	}
	return out
}

func residualFields(p *Predicate) []string {
	if p == nil {
		return nil
	}
	if p.Field != "" {
		return []string{p.Field}
	}
	var out []string
	for _, c := range p.Children {
		out = append(out, residualFields(c)...)
	}
	return out
}

// heavy reports whether a column is one of the comparatively expensive
// vector and raw_data blob-ref columns. Under LateMaterialization
// readRow skips such a column when the request's projection does not
// name it; a projected heavy column is read with the rest of the row,
// before the row is filtered.
func heavy(c *schema.Column) bool {
	return c.Type == schema.FixedFloat32List || c.Type == schema.OpaqueBinary
}

func (sc *Scanner) readRow(ctx context.Context, ref store.FragmentRef, local int) (map[string]interface{}, error) {
	cols := sc.projectedColumns()
	row := make(map[string]interface{}, len(cols))
	for _, c := range cols {
		if sc.req.LateMaterialization && heavy(c) && !wantsColumn(sc.req.Columns, c.Name) {
			continue
		}
		values, err := sc.store.ReadColumnCached(ref.ID, c.Name, func() ([]interface{}, error) {
			return store.ReadColumn(ctx, sc.store.Object(), ref, c.Name, c.Type)
		})
		if err != nil {
			return nil, err
		}
		if local < len(values) {
			row[c.Name] = values[local]
		}
	}
	return row, nil
}

func wantsColumn(projection []string, name string) bool {
	if len(projection) == 0 {
		return true
	}
	for _, c := range projection {
		if c == name {
			return true
		}
	}
	return false
}

// nextSequential drives the plain table-scan path: fragments in
// manifest order (spec §4.7's ScanInOrder default), filtered by the
// planner's candidate set and residual predicate, skipping tombstoned
// rows.
func (sc *Scanner) nextSequential(ctx context.Context) (*Batch, error) {
	batchSize := sc.req.BatchSize
	if batchSize <= 0 {
		batchSize = 1024
	}
	batch := &Batch{}

	for sc.fragIdx < len(sc.manifest.Fragments) {
		if sc.req.Limit > 0 && sc.emitted >= sc.req.Limit {
			sc.done = true
			break
		}
		if len(batch.Records) >= batchSize {
			break
		}

		ref := sc.manifest.Fragments[sc.fragIdx]
		offset := sc.offsets[sc.fragIdx]

		dv, err := sc.store.ReadDeletionVector(ctx, ref)
		if err != nil {
			return nil, err
		}

		stopped := false
		for local := sc.localRow; local < int(ref.Rows); local++ {
			if sc.req.Limit > 0 && sc.emitted >= sc.req.Limit {
				sc.done = true
				stopped = true
				break
			}
			if len(batch.Records) >= batchSize {
				sc.localRow = local
				stopped = true
				break
			}

			addr := rowAddress(offset, local)
			if !sc.req.IncludeDeletedRows && dv.IsDeleted(uint32(local)) {
				continue
			}
			if sc.plan.Candidates != nil && !sc.plan.Candidates.Contains(uint32(addr)) {
				continue
			}

			row, err := sc.readRow(ctx, ref, local)
			if err != nil {
				return nil, err
			}
			ok, err := Eval(sc.plan.Residual, row)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if sc.skipped < sc.req.Offset {
				sc.skipped++
				continue
			}

			batch.Records = append(batch.Records, store.RowToRecord(row))
			if sc.req.WithRowAddress {
				batch.RowAddresses = append(batch.RowAddresses, addr)
			}
			sc.emitted++
		}
		if stopped {
			break
		}
		sc.fragIdx++
		sc.localRow = 0
	}

	if sc.fragIdx >= len(sc.manifest.Fragments) {
		sc.done = true
	}
	if len(batch.Records) == 0 {
		sc.done = true
		return nil, nil
	}
	return batch, nil
}
