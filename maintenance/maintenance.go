// Package maintenance implements the three background upkeep operations
// spec §4.9 describes, all committed transactionally through txn.Manager
// rather than mutating any file in place:
//
//	compact(target_rows_per_fragment)
//	cleanup_versions(keep_last=N | older_than=T)
//	merge_index_deltas(index_name)
package maintenance

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/contextframe/contextframe"
	"github.com/contextframe/contextframe/query"
	"github.com/contextframe/contextframe/record"
	"github.com/contextframe/contextframe/schema"
	"github.com/contextframe/contextframe/store"
	"github.com/contextframe/contextframe/txn"
	"github.com/contextframe/contextframe/vectorindex"
)

// Compact merges every fragment below targetRowsPerFragment, or carrying
// any deletion-vector entry, into freshly written fragments holding only
// live rows (spec §4.9). vecIndexes, keyed by IndexCatalogEntry.Name, are
// invalidated when the fragments they were built over get removed —
// spec's "planner returns an error until rebuilt" is realized through
// vectorindex.Index.Invalidate, checked by the planner/scanner on the
// next search.
func Compact(ctx context.Context, s *store.Store, reg *schema.Registry, mgr *txn.Manager, targetRowsPerFragment int64, vecIndexes map[string]*vectorindex.Index) (int64, error) {
	if targetRowsPerFragment <= 0 {
		return 0, contextframe.NewError(contextframe.ValidationErr, "target_rows_per_fragment must be positive")
	}

	base, err := s.LatestVersion(ctx)
	if err != nil {
		return 0, err
	}
	manifest, err := s.ReadManifest(ctx, base)
	if err != nil {
		return 0, err
	}
	rewrite, _, err := compactionCandidates(ctx, s, manifest, targetRowsPerFragment)
	if err != nil {
		return 0, err
	}
	if len(rewrite) == 0 {
		// Nothing below target and nothing carrying a deletion vector:
		// compaction has no effect, so it commits no new version at all
		// rather than churning out an identical manifest.
		return base, nil
	}

	return mgr.CommitWithRetry(ctx, 5, func(ctx context.Context, base int64) (txn.Request, error) {
		manifest, err := s.ReadManifest(ctx, base)
		if err != nil {
			return txn.Request{}, err
		}

		rewrite, maxID, err := compactionCandidates(ctx, s, manifest, targetRowsPerFragment)
		if err != nil {
			return txn.Request{}, err
		}
		if len(rewrite) == 0 {
			return txn.Request{Kind: txn.Compact, Message: "compact: every fragment already at target"}, nil
		}

		survivors, err := scanLiveRows(ctx, s, reg, manifest, rewrite)
		if err != nil {
			return txn.Request{}, err
		}

		removeIDs := make([]int64, len(rewrite))
		removed := make(map[int64]bool, len(rewrite))
		for i, f := range rewrite {
			removeIDs[i] = f.ID
			removed[f.ID] = true
		}

		var newFragments []*store.WrittenFragment
		nextID := maxID + 1
		step := int(targetRowsPerFragment)
		for start := 0; start < len(survivors); start += step {
			end := start + step
			if end > len(survivors) {
				end = len(survivors)
			}
			wf, err := store.WriteFragment(nextID, survivors[start:end], reg)
			if err != nil {
				return txn.Request{}, err
			}
			newFragments = append(newFragments, wf)
			nextID++
		}

		for _, idx := range manifest.Indices {
			touchesRewritten := false
			for _, id := range idx.ValidForFragments {
				if removed[id] {
					touchesRewritten = true
					break
				}
			}
			if touchesRewritten {
				if vi, ok := vecIndexes[idx.Name]; ok {
					vi.Invalidate("compacted: underlying fragment rewritten")
				}
			}
		}

		return txn.Request{
			Kind:              txn.Compact,
			Message:           "compact",
			NewFragments:      newFragments,
			RemoveFragmentIDs: removeIDs,
		}, nil
	})
}

// compactionCandidates returns the fragments that need rewriting (below
// target, or carrying any deleted rows) plus the highest fragment id in
// the manifest, so the caller can mint fresh ids for replacement
// fragments.
func compactionCandidates(ctx context.Context, s *store.Store, manifest *store.Manifest, targetRowsPerFragment int64) ([]store.FragmentRef, int64, error) {
	var maxID int64 = -1
	var rewrite []store.FragmentRef
	for _, f := range manifest.Fragments {
		if f.ID > maxID {
			maxID = f.ID
		}
		dv, err := s.ReadDeletionVector(ctx, f)
		if err != nil {
			return nil, 0, err
		}
		live := f.Rows - int64(dv.Cardinality())
		if live < targetRowsPerFragment || dv.Cardinality() > 0 {
			rewrite = append(rewrite, f)
		}
	}
	return rewrite, maxID, nil
}

// scanLiveRows reads every undeleted row of the given fragment subset,
// in manifest order, via the ordinary scanner rather than a hand-rolled
// column reader — the scanner already honors deletion vectors and
// decodes straight to record.Record (spec §4.9's "physically dropping
// rows marked by deletion vectors").
func scanLiveRows(ctx context.Context, s *store.Store, reg *schema.Registry, manifest *store.Manifest, fragments []store.FragmentRef) ([]*record.Record, error) {
	sub := store.NewManifest(manifest.Version, manifest.Parent, manifest.Schema, fragments, nil, "")
	sc, err := query.NewScanner(s, reg, sub, nil, nil, nil, query.DefaultScanRequest())
	if err != nil {
		return nil, err
	}
	var out []*record.Record
	for {
		batch, err := sc.Next(ctx)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			return out, nil
		}
		out = append(out, batch.Records...)
	}
}

// CleanupVersions garbage-collects manifest files and unreferenced
// fragment/blob/deletion-vector/index files (spec §4.9). Exactly one of
// keepLast/olderThan should be positive; keepLast, if set, wins. Tagged
// versions and the latest version are immune regardless of either
// cutoff.
func CleanupVersions(ctx context.Context, s *store.Store, tags *txn.Tags, keepLast int, olderThan time.Duration) (removedVersions int, removedFiles int, err error) {
	versions, err := s.Versions(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(versions) == 0 {
		return 0, 0, nil
	}

	immune, err := tags.ImmuneVersions(ctx)
	if err != nil {
		return 0, 0, err
	}

	latest := versions[len(versions)-1]
	immune[latest] = true // the current head is never collected

	keep := make(map[int64]bool, len(versions))
	now := time.Now()
	for _, v := range versions {
		if immune[v] {
			keep[v] = true
			continue
		}
		if keepLast > 0 && v > latest-int64(keepLast) {
			keep[v] = true
			continue
		}
		if keepLast <= 0 && olderThan > 0 {
			man, err := s.ReadManifest(ctx, v)
			if err != nil {
				return 0, 0, err
			}
			stamp, parseErr := time.Parse(time.RFC3339Nano, man.CreatedAt)
			if parseErr == nil && now.Sub(stamp) < olderThan {
				keep[v] = true
			}
		}
	}

	liveFiles := map[string]bool{}
	for _, v := range versions {
		if !keep[v] {
			continue
		}
		man, err := s.ReadManifest(ctx, v)
		if err != nil {
			return 0, 0, err
		}
		markLive(liveFiles, man)
	}

	var toDeleteVersions []int64
	for _, v := range versions {
		if !keep[v] {
			toDeleteVersions = append(toDeleteVersions, v)
		}
	}

	obj := s.Object()
	for _, v := range toDeleteVersions {
		if err := obj.Delete(ctx, store.ManifestKey(v)); err != nil {
			return removedVersions, removedFiles, err
		}
		removedVersions++
	}

	for _, prefix := range []string{"fragments/", "blobs/", "deletions/", "indices/"} {
		keys, err := obj.ListPrefix(ctx, prefix)
		if err != nil {
			return removedVersions, removedFiles, err
		}
		for _, k := range keys {
			if liveFiles[k] {
				continue
			}
			if err := obj.Delete(ctx, k); err != nil {
				return removedVersions, removedFiles, err
			}
			removedFiles++
		}
	}

	return removedVersions, removedFiles, nil
}

// markLive records every file a manifest references as still reachable.
func markLive(live map[string]bool, man *store.Manifest) {
	for _, f := range man.Fragments {
		for _, key := range f.Columns {
			live[key] = true
		}
		if f.BlobRef != "" {
			live[f.BlobRef] = true
		}
		if f.DVRef != "" {
			live[f.DVRef] = true
		}
	}
	for _, idx := range man.Indices {
		for _, key := range idx.Files {
			live[key] = true
		}
	}
}

// MergeIndexDeltas consolidates every delta catalog entry for indexName
// into a single entry spanning every fragment the main entry plus its
// deltas are valid for. Scalar/vector indexes in this engine are rebuilt
// in-memory from their source columns rather than persisted as
// standalone byte blobs (no index in scalarindex/vectorindex implements
// a Decode/Load path), so there is no byte-level structure to merge —
// this operation is pure manifest bookkeeping that collapses the
// ValidForFragments bookkeeping the delta-naming convention accumulated,
// the spec's "merges per-fragment delta segments into the main index
// structure" expressed the only way it can be without on-disk index
// bytes to concatenate.
func MergeIndexDeltas(ctx context.Context, s *store.Store, mgr *txn.Manager, indexName string) (int64, error) {
	base, err := s.LatestVersion(ctx)
	if err != nil {
		return 0, err
	}
	manifest, err := s.ReadManifest(ctx, base)
	if err != nil {
		return 0, err
	}
	if _, deltas, err := indexDeltas(manifest, indexName); err != nil {
		return 0, err
	} else if len(deltas) == 0 {
		// Nothing to consolidate: leave the version unchanged rather than
		// committing a manifest identical to its parent.
		return base, nil
	}

	return mgr.CommitWithRetry(ctx, 5, func(ctx context.Context, base int64) (txn.Request, error) {
		manifest, err := s.ReadManifest(ctx, base)
		if err != nil {
			return txn.Request{}, err
		}

		main, deltas, err := indexDeltas(manifest, indexName)
		if err != nil {
			return txn.Request{}, err
		}
		if len(deltas) == 0 {
			return txn.Request{Kind: txn.CreateIndex, Message: "merge_index_deltas: no pending deltas"}, nil
		}

		merged := *main
		fragSet := make(map[int64]bool, len(main.ValidForFragments))
		for _, id := range main.ValidForFragments {
			fragSet[id] = true
		}
		fileSet := make(map[string]bool, len(main.Files))
		for _, f := range main.Files {
			fileSet[f] = true
		}
		for _, d := range deltas {
			for _, id := range d.ValidForFragments {
				fragSet[id] = true
			}
			for _, f := range d.Files {
				fileSet[f] = true
			}
		}
		merged.ValidForFragments = sortedInt64Keys(fragSet)
		merged.Files = sortedStringKeys(fileSet)

		dropNames := make([]string, len(deltas))
		for i, d := range deltas {
			dropNames[i] = d.Name
		}

		return txn.Request{
			Kind:           txn.CreateIndex,
			Message:        "merge_index_deltas: " + indexName,
			AddIndex:       &merged,
			DropIndexNames: dropNames,
		}, nil
	})
}

// indexDeltas splits a manifest's catalog into indexName's main entry and
// its pending "<indexName>__delta_*" entries. Returns NotFoundErr if
// indexName has no main entry at all.
func indexDeltas(manifest *store.Manifest, indexName string) (*store.IndexCatalogEntry, []store.IndexCatalogEntry, error) {
	var main *store.IndexCatalogEntry
	var deltas []store.IndexCatalogEntry
	prefix := indexName + "__delta_"
	for i := range manifest.Indices {
		entry := manifest.Indices[i]
		if entry.Name == indexName {
			e := entry
			main = &e
			continue
		}
		if strings.HasPrefix(entry.Name, prefix) {
			deltas = append(deltas, entry)
		}
	}
	if main == nil {
		return nil, nil, contextframe.NewError(contextframe.NotFoundErr, "index %q not found", indexName)
	}
	return main, deltas, nil
}

func sortedInt64Keys(m map[int64]bool) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedStringKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
