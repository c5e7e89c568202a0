package dataset

import (
	"context"

	"github.com/contextframe/contextframe"
	"github.com/contextframe/contextframe/query"
	"github.com/contextframe/contextframe/record"
	"github.com/contextframe/contextframe/scalarindex"
	"github.com/contextframe/contextframe/vectorindex"
)

// Scanner opens a lazy, single-pass iterator over req against ds's
// checked-out snapshot (spec §6.2's scanner(ScanRequest)).
func (ds *Dataset) Scanner(req query.ScanRequest) (*query.Scanner, error) {
	ftsIndex, err := ds.resolveFTSIndex(req.FullTextQuery)
	if err != nil {
		return nil, err
	}
	// ds.vecIndexes is keyed by index name; the scanner looks up a KNN
	// clause's index by column.
	vecByColumn := make(map[string]*vectorindex.Index, len(ds.vecIndexes))
	for _, e := range ds.manifest.Indices {
		if idx, ok := ds.vecIndexes[e.Name]; ok {
			vecByColumn[e.Column] = idx
		}
	}
	return query.NewScanner(ds.st, ds.reg, ds.manifest, ds.planner, vecByColumn, ftsIndex, req)
}

// ToBatches drains Scanner(req) into a slice of batches (spec §6.2's
// to_batches(ScanRequest)), for callers that want the whole result
// materialized rather than paged.
func (ds *Dataset) ToBatches(ctx context.Context, req query.ScanRequest) ([]*query.Batch, error) {
	sc, err := ds.Scanner(req)
	if err != nil {
		return nil, err
	}
	var out []*query.Batch
	for {
		batch, err := sc.Next(ctx)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			return out, nil
		}
		out = append(out, batch)
	}
}

// KNNSearch returns the k nearest records to vector in column, optionally
// narrowed by filter (spec §6.2's knn_search(vector, k, filter?,
// options?)).
func (ds *Dataset) KNNSearch(ctx context.Context, column string, vector []float32, k int, filter *query.Predicate) ([]*record.Record, []float32, error) {
	req := query.DefaultScanRequest()
	req.Filter = filter
	req.Nearest = &query.NearestOptions{Column: column, QueryVector: vector, K: k, UseIndex: true}

	sc, err := ds.Scanner(req)
	if err != nil {
		return nil, nil, err
	}
	var recs []*record.Record
	var distances []float32
	for {
		batch, err := sc.Next(ctx)
		if err != nil {
			return nil, nil, err
		}
		if batch == nil {
			return recs, distances, nil
		}
		recs = append(recs, batch.Records...)
		distances = append(distances, batch.Distances...)
	}
}

// FullTextSearch returns the k highest-BM25-scored records for queryText
// against the FTS index spanning columns, optionally narrowed by filter
// (spec §6.2's full_text_search(query, columns?, k?)). columns may be
// left empty when exactly one FTS index exists on the dataset.
func (ds *Dataset) FullTextSearch(ctx context.Context, queryText string, columns []string, k int, filter *query.Predicate) ([]*record.Record, []float64, error) {
	req := query.DefaultScanRequest()
	req.Filter = filter
	req.FullTextQuery = &query.FullTextOptions{Columns: columns, QueryString: queryText, K: k}

	sc, err := ds.Scanner(req)
	if err != nil {
		return nil, nil, err
	}
	var recs []*record.Record
	var scores []float64
	for {
		batch, err := sc.Next(ctx)
		if err != nil {
			return nil, nil, err
		}
		if batch == nil {
			return recs, scores, nil
		}
		recs = append(recs, batch.Records...)
		scores = append(scores, batch.Scores...)
	}
}

// resolveFTSIndex picks which built FTSIndex services a FullTextOptions
// clause: an exact match on the columns it was built with, or the
// dataset's only FTS index when the caller left Columns unset.
func (ds *Dataset) resolveFTSIndex(opts *query.FullTextOptions) (*scalarindex.FTSIndex, error) {
	if opts == nil {
		return nil, nil
	}
	if len(opts.Columns) == 0 {
		if len(ds.ftsIndexes) == 1 {
			for name := range ds.ftsIndexes {
				return ds.ftsIndexes[name], nil
			}
		}
		return nil, contextframe.NewError(contextframe.ValidationErr, "full_text_search needs columns when more than one fts index exists")
	}
	for name, cols := range ds.ftsColumns {
		if sameColumns(cols, opts.Columns) {
			return ds.ftsIndexes[name], nil
		}
	}
	return nil, contextframe.NewError(contextframe.NotFoundErr, "no fts index spans columns %v", opts.Columns)
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, c := range a {
		seen[c] = true
	}
	for _, c := range b {
		if !seen[c] {
			return false
		}
	}
	return true
}

// FindRelated returns every record that uuid's outgoing relationships of
// relType point at (spec's find_related, part of C8's relationship-
// traversal surface; §6.2's abstract list does not name it).
func (ds *Dataset) FindRelated(ctx context.Context, uuid string, relType record.RelationshipType) ([]*record.Record, error) {
	return ds.relate.FindRelated(ctx, uuid, relType)
}

// FindReverse returns every record with an outgoing relType relationship
// targeting uuid.
func (ds *Dataset) FindReverse(ctx context.Context, uuid string, relType record.RelationshipType) ([]*record.Record, error) {
	return ds.relate.FindReverse(ctx, uuid, relType)
}

// Expand performs a breadth-first traversal of outgoing uuid
// relationships starting at seeds, up to maxDepth hops.
func (ds *Dataset) Expand(ctx context.Context, seeds []string, maxDepth int) ([]relateExpandHop, error) {
	hops, err := ds.relate.Expand(ctx, seeds, maxDepth)
	if err != nil {
		return nil, err
	}
	out := make([]relateExpandHop, len(hops))
	for i, h := range hops {
		out[i] = relateExpandHop{UUID: h.UUID, Depth: h.Depth}
	}
	return out, nil
}

// relateExpandHop mirrors relate.ExpandHop as an unexported type of the
// dataset package; callers read the UUID and Depth fields of Expand's
// result without importing relate.
type relateExpandHop struct {
	UUID  string
	Depth int
}
