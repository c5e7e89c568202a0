// Package relate implements the relationship subsystem (spec §4.8):
// single-hop lookups over the relationships stored inline on each
// record, plus a batched, breadth-first multi-hop expansion. No step
// here ever materializes a resident in-memory graph — expand walks one
// depth layer at a time, each layer resolved by a single batched scan,
// the same "index narrows, scan confirms" discipline the query package
// applies to every other predicate.
package relate

import (
	"context"

	"github.com/contextframe/contextframe/query"
	"github.com/contextframe/contextframe/record"
	"github.com/contextframe/contextframe/scalarindex"
	"github.com/contextframe/contextframe/schema"
	"github.com/contextframe/contextframe/store"
	"github.com/contextframe/contextframe/util"
)

// ReverseColumn names the synthetic index column BuildReverseIndex
// indexes under; it is not a real schema.Column, only a label for the
// reverse-lookup index itself.
const ReverseColumn = "relationships.target_uuid"

// Index resolves relationship traversals over one manifest snapshot.
// Relationships are stored inline on their source record (spec §3.2);
// forward lookups (FindRelated) read that source row directly, while
// reverse lookups (FindReverse) need either a full scan or the
// secondary reverse index spec §4.8 describes as an alternative.
type Index struct {
	store    *store.Store
	reg      *schema.Registry
	manifest *store.Manifest
	planner  *query.Planner

	// reverse narrows FindReverse/Expand's reverse-direction hop to rows
	// whose relationships list references a given target uuid, without
	// decoding every row in the dataset. nil means no reverse index has
	// been built for this snapshot; FindReverse then scans every row,
	// which spec §4.8 allows as the baseline implementation.
	reverse *scalarindex.LabelListIndex
}

// New returns an Index over manifest. planner may be nil, which forces
// every lookup to fall back to an unindexed scan.
func New(s *store.Store, reg *schema.Registry, manifest *store.Manifest, planner *query.Planner) *Index {
	return &Index{store: s, reg: reg, manifest: manifest, planner: planner}
}

// WithReverseIndex attaches a reverse index built by BuildReverseIndex
// for this same manifest snapshot, returning ix for chaining.
func (ix *Index) WithReverseIndex(rev *scalarindex.LabelListIndex) *Index {
	ix.reverse = rev
	return ix
}

// BuildReverseIndex scans every live row of manifest and returns a
// label_list index keyed by each row's outgoing relationship target
// uuids (spec §4.8: "a scalar list index over relationships.target_uuid").
// Row addresses follow the same dataset-wide scheme every other index
// in the engine uses, so the result can be ANDed into a ScanRequest's
// ExternalCandidates directly.
func BuildReverseIndex(ctx context.Context, s *store.Store, reg *schema.Registry, manifest *store.Manifest) (*scalarindex.LabelListIndex, error) {
	req := query.DefaultScanRequest()
	req.Columns = []string{"uuid", "relationships"}
	req.WithRowAddress = true

	sc, err := query.NewScanner(s, reg, manifest, nil, nil, nil, req)
	if err != nil {
		return nil, err
	}

	var rows []int64
	var targetsPerRow [][]string
	for {
		batch, err := sc.Next(ctx)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		for i, rec := range batch.Records {
			targets := make([]string, 0, len(rec.Relationships))
			for _, rel := range rec.Relationships {
				if rel.UUID != "" {
					targets = append(targets, rel.UUID)
				}
			}
			rows = append(rows, batch.RowAddresses[i])
			targetsPerRow = append(targetsPerRow, targets)
		}
	}

	return scalarindex.BuildLabelList(ReverseColumn, targetsPerRow, rows)
}

// FindByUUID returns the record identified by uuid (spec §4.8
// find_by_uuid), or ok=false if no live row currently has it.
func (ix *Index) FindByUUID(ctx context.Context, uuid string) (*record.Record, bool, error) {
	recs, err := ix.findByUUIDs(ctx, []string{uuid})
	if err != nil {
		return nil, false, err
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	return recs[0], true, nil
}

// findByUUIDs resolves a batch of uuids in a single scan, honoring
// whatever bitmap/btree index is bound to the uuid column.
func (ix *Index) findByUUIDs(ctx context.Context, uuids []string) ([]*record.Record, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	values := make([]any, len(uuids))
	for i, u := range uuids {
		values[i] = u
	}
	req := query.DefaultScanRequest()
	req.Filter = query.In("uuid", values...)

	sc, err := query.NewScanner(ix.store, ix.reg, ix.manifest, ix.planner, nil, nil, req)
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

// FindRelated resolves the records uuid points to via its own inline
// relationships (spec §4.8 find_related), optionally narrowed to a
// single relationship type. A dangling target (no live row with that
// uuid) is silently skipped, consistent with relationships' relaxed
// referential integrity (spec §3.2/§9).
func (ix *Index) FindRelated(ctx context.Context, uuid string, relType record.RelationshipType) ([]*record.Record, error) {
	src, ok, err := ix.FindByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	seen := map[string]bool{}
	var targets []string
	for _, rel := range src.Relationships {
		if relType != "" && rel.Type != relType {
			continue
		}
		if rel.UUID == "" || seen[rel.UUID] {
			continue
		}
		seen[rel.UUID] = true
		targets = append(targets, rel.UUID)
	}
	return ix.findByUUIDs(ctx, targets)
}

// FindReverse resolves every record whose own relationships reference
// targetUUID (spec §4.8 find_reverse), optionally narrowed to a single
// relationship type. When a reverse index is attached (WithReverseIndex)
// it prunes whole rows before they are decoded; otherwise every live row
// is scanned and inspected, the scan fallback spec §4.8 sanctions.
func (ix *Index) FindReverse(ctx context.Context, targetUUID string, relType record.RelationshipType) ([]*record.Record, error) {
	req := query.DefaultScanRequest()
	if ix.reverse != nil {
		req.ExternalCandidates = ix.reverse.HasAny([]string{targetUUID})
	}

	sc, err := query.NewScanner(ix.store, ix.reg, ix.manifest, ix.planner, nil, nil, req)
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
		for _, rec := range batch.Records {
			if referencesTarget(rec, targetUUID, relType) {
				out = append(out, rec)
			}
		}
	}
}

func referencesTarget(rec *record.Record, targetUUID string, relType record.RelationshipType) bool {
	for _, rel := range rec.Relationships {
		if rel.UUID != targetUUID {
			continue
		}
		if relType != "" && rel.Type != relType {
			continue
		}
		return true
	}
	return false
}

// ExpandHop is one uuid discovered by Expand, tagged with the depth at
// which it was first reached (seeds are depth 0).
type ExpandHop struct {
	UUID  string
	Depth int
}

// Expand performs spec §4.8's batched multi-hop expansion: breadth-
// first over the forward relationship graph, one depth layer per scan,
// stopping at maxDepth. It never holds more than one layer's uuids and
// the visited set in memory — no resident graph is built. A frontier
// layer's uuids are resolved in a single query.In scan rather than one
// lookup per node, matching the "issues breadth-first scans" wording.
func (ix *Index) Expand(ctx context.Context, seeds []string, maxDepth int) ([]ExpandHop, error) {
	visited := make(map[string]bool, len(seeds))
	var out []ExpandHop

	frontier := util.NewFIFO[string]()
	for _, id := range seeds {
		if id == "" || visited[id] {
			continue
		}
		visited[id] = true
		out = append(out, ExpandHop{UUID: id, Depth: 0})
		frontier.Push(id)
	}

	for depth := 0; depth < maxDepth && frontier.Size() > 0; depth++ {
		layer := make([]string, 0, frontier.Size())
		for frontier.Size() > 0 {
			id, _ := frontier.Pop()
			layer = append(layer, id)
		}

		recs, err := ix.findByUUIDs(ctx, layer)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			for _, rel := range rec.Relationships {
				if rel.UUID == "" || visited[rel.UUID] {
					continue
				}
				visited[rel.UUID] = true
				out = append(out, ExpandHop{UUID: rel.UUID, Depth: depth + 1})
				frontier.Push(rel.UUID)
			}
		}
	}

	return out, nil
}
