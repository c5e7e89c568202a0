package dataset

import (
	"context"
	"time"

	"github.com/contextframe/contextframe/maintenance"
	"github.com/contextframe/contextframe/query"
)

// Compact merges undersized and deletion-vector-carrying fragments into
// fresh ones holding only live rows (spec §6.2's
// compact(target_rows_per_fragment)), then checks ds back out at the
// resulting version.
func (ds *Dataset) Compact(ctx context.Context, targetRowsPerFragment int64) (int64, error) {
	newVersion, err := maintenance.Compact(ctx, ds.st, ds.reg, ds.mgr, targetRowsPerFragment, ds.vecIndexes)
	if err != nil {
		return 0, err
	}
	if err := ds.checkoutVersion(ctx, newVersion); err != nil {
		return 0, err
	}
	return newVersion, nil
}

// CleanupOldVersions garbage-collects manifests and unreferenced files
// for versions neither tagged nor the current head (spec §6.2's
// cleanup_old_versions(keep_last|older_than)). Exactly one of
// keepLast/olderThan should be positive.
func (ds *Dataset) CleanupOldVersions(ctx context.Context, keepLast int, olderThan time.Duration) (removedVersions, removedFiles int, err error) {
	return maintenance.CleanupVersions(ctx, ds.st, ds.tags, keepLast, olderThan)
}

// MergeIndexDeltas consolidates indexName's per-fragment delta catalog
// entries into its main entry (spec §4.9's merge_index_deltas(name)),
// then checks ds back out at the resulting version.
func (ds *Dataset) MergeIndexDeltas(ctx context.Context, name string) (int64, error) {
	newVersion, err := maintenance.MergeIndexDeltas(ctx, ds.st, ds.mgr, name)
	if err != nil {
		return 0, err
	}
	if err := ds.checkoutVersion(ctx, newVersion); err != nil {
		return 0, err
	}
	return newVersion, nil
}

// ValidateRelationships reports every outgoing uuid relationship whose
// target does not resolve to a currently live row (spec §9's optional
// validate_relationships task).
func (ds *Dataset) ValidateRelationships(ctx context.Context) ([]maintenance.DanglingRelationship, error) {
	return maintenance.ValidateRelationships(ctx, ds.st, ds.reg, ds.manifest)
}

// ColumnStats summarizes one column's null count across every live row.
type ColumnStats struct {
	Name      string
	NullCount int64
}

// Stats reports ds's row/fragment counts and, for every live, non-blob,
// non-vector column, how many live rows hold a null (spec's
// SUPPLEMENTED FEATURES dataset.Stats: feeds the planner's selectivity
// estimates instead of a hardcoded constant). Counts are derived by a
// full scan rather than persisted per-fragment footers: this engine's
// fragment encoding (store.encodeColumn) does not populate
// store.ColumnStats today, so a full pass is the only source of truth
// (see DESIGN.md).
type Stats struct {
	Version       int64
	LiveRows      int64
	FragmentCount int
	Columns       []ColumnStats
}

func (ds *Dataset) Stats(ctx context.Context) (*Stats, error) {
	cols := ds.reg.Columns()
	names := make([]string, 0, len(cols))
	counters := make(map[string]*int64, len(cols))
	for _, c := range cols {
		if c.BlobHint || c.Name == "vector" {
			continue
		}
		names = append(names, c.Name)
		var n int64
		counters[c.Name] = &n
	}

	req := query.DefaultScanRequest()
	req.Columns = names
	sc, err := query.NewScanner(ds.st, ds.reg, ds.manifest, nil, nil, nil, req)
	if err != nil {
		return nil, err
	}

	var liveRows int64
	for {
		batch, err := sc.Next(ctx)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		liveRows += int64(len(batch.Records))
		for _, rec := range batch.Records {
			for _, name := range names {
				if isNullField(rec, name) {
					*counters[name]++
				}
			}
		}
	}

	out := &Stats{Version: ds.version, LiveRows: liveRows, FragmentCount: len(ds.manifest.Fragments)}
	for _, name := range names {
		out.Columns = append(out.Columns, ColumnStats{Name: name, NullCount: *counters[name]})
	}
	return out, nil
}
