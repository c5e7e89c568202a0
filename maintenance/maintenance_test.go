package maintenance_test

import (
	"context"
	"testing"
	"time"

	"github.com/contextframe/contextframe/maintenance"
	"github.com/contextframe/contextframe/query"
	"github.com/contextframe/contextframe/record"
	"github.com/contextframe/contextframe/schema"
	"github.com/contextframe/contextframe/store"
	"github.com/contextframe/contextframe/store/objectstore"
	"github.com/contextframe/contextframe/txn"
)

func newMaintenanceFixture(t *testing.T) (*txn.Manager, *store.Store, *schema.Registry) {
	t.Helper()
	obj, err := objectstore.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	reg := schema.NewDefault(4)
	man := store.NewManifest(0, nil, store.SnapshotSchema(reg), nil, nil, "create")
	data, err := man.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := obj.Put(context.Background(), store.ManifestKey(0), data); err != nil {
		t.Fatal(err)
	}
	s, err := store.Open(obj, 16)
	if err != nil {
		t.Fatal(err)
	}
	return txn.New(s, "test", nil, nil), s, reg
}

func appendTitles(t *testing.T, mgr *txn.Manager, reg *schema.Registry, fragmentID int64, titles ...string) []*record.Record {
	t.Helper()
	var recs []*record.Record
	for _, title := range titles {
		r, err := record.New(title)
		if err != nil {
			t.Fatal(err)
		}
		recs = append(recs, r)
	}
	wf, err := store.WriteFragment(fragmentID, recs, reg)
	if err != nil {
		t.Fatal(err)
	}
	latest, err := mgr.CommitWithRetry(context.Background(), 3, func(ctx context.Context, base int64) (txn.Request, error) {
		return txn.Request{Kind: txn.Append, Message: "append", NewFragments: []*store.WrittenFragment{wf}}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = latest
	return recs
}

func countLiveRows(t *testing.T, s *store.Store, reg *schema.Registry, version int64) int {
	t.Helper()
	ctx := context.Background()
	manifest, err := s.ReadManifest(ctx, version)
	if err != nil {
		t.Fatal(err)
	}
	sc, err := query.NewScanner(s, reg, manifest, nil, nil, nil, query.DefaultScanRequest())
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for {
		batch, err := sc.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if batch == nil {
			return n
		}
		n += len(batch.Records)
	}
}

func TestCompactMergesUndersizedFragmentsWithoutChangingLiveRows(t *testing.T) {
	mgr, s, reg := newMaintenanceFixture(t)
	ctx := context.Background()

	for i, title := range [][]string{{"A"}, {"B"}, {"C"}, {"D"}, {"E"}} {
		appendTitles(t, mgr, reg, int64(i+1), title...)
	}
	base, err := s.LatestVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	before := countLiveRows(t, s, reg, base)
	if before != 5 {
		t.Fatalf("expected 5 live rows before compaction, got %d", before)
	}
	manifestBefore, err := s.ReadManifest(ctx, base)
	if err != nil {
		t.Fatal(err)
	}
	if len(manifestBefore.Fragments) != 5 {
		t.Fatalf("expected 5 fragments before compaction, got %d", len(manifestBefore.Fragments))
	}

	newVersion, err := maintenance.Compact(ctx, s, reg, mgr, 1000, nil)
	if err != nil {
		t.Fatal(err)
	}

	after := countLiveRows(t, s, reg, newVersion)
	if after != 5 {
		t.Fatalf("expected 5 live rows after compaction, got %d", after)
	}
	manifestAfter, err := s.ReadManifest(ctx, newVersion)
	if err != nil {
		t.Fatal(err)
	}
	if len(manifestAfter.Fragments) != 1 {
		t.Fatalf("expected compaction to merge into 1 fragment, got %d", len(manifestAfter.Fragments))
	}
}

func TestCompactDropsDeletedRows(t *testing.T) {
	mgr, s, reg := newMaintenanceFixture(t)
	ctx := context.Background()
	recs := appendTitles(t, mgr, reg, 1, "A", "B", "C")

	dv := store.NewDeletionVector()
	dv.Delete(1) // delete "B", the second row of fragment 1

	base, err := s.LatestVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	_, err = mgr.Commit(ctx, base, txn.Request{
		Kind:           txn.Delete,
		Message:        "delete B",
		MutatedUUIDs:   []string{recs[1].UUID},
		DeletionDeltas: map[int64]*store.DeletionVector{1: dv},
	})
	if err != nil {
		t.Fatal(err)
	}

	newVersion, err := maintenance.Compact(ctx, s, reg, mgr, 1000, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := countLiveRows(t, s, reg, newVersion); got != 2 {
		t.Fatalf("expected 2 surviving rows after compaction, got %d", got)
	}
}

func TestCompactIsNoopWhenEverythingAlreadyAtTarget(t *testing.T) {
	mgr, s, reg := newMaintenanceFixture(t)
	ctx := context.Background()
	appendTitles(t, mgr, reg, 1, "A", "B", "C")
	base, err := s.LatestVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}

	newVersion, err := maintenance.Compact(ctx, s, reg, mgr, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if newVersion != base {
		t.Fatalf("expected no-op compaction to leave the version unchanged, got %d -> %d", base, newVersion)
	}
}

func TestCleanupVersionsRemovesUntaggedOldVersionsButKeepsTaggedAndLatest(t *testing.T) {
	mgr, s, reg := newMaintenanceFixture(t)
	ctx := context.Background()
	tags := txn.NewTags(mgr)

	appendTitles(t, mgr, reg, 1, "A") // v1
	appendTitles(t, mgr, reg, 2, "B") // v2
	if err := tags.Create(ctx, "stable", 2); err != nil {
		t.Fatal(err)
	}
	appendTitles(t, mgr, reg, 3, "C") // v3
	appendTitles(t, mgr, reg, 4, "D") // v4 (latest)

	removedVersions, _, err := maintenance.CleanupVersions(ctx, s, tags, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if removedVersions == 0 {
		t.Fatal("expected at least one version to be collected")
	}

	versions, err := s.Versions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	have := map[int64]bool{}
	for _, v := range versions {
		have[v] = true
	}
	if !have[2] {
		t.Fatal("expected tagged version 2 to survive cleanup")
	}
	if !have[4] {
		t.Fatal("expected latest version 4 to survive cleanup")
	}
	if have[3] {
		t.Fatal("expected untagged, non-latest version 3 to be collected")
	}
}

func TestCleanupVersionsHonorsOlderThanCutoff(t *testing.T) {
	mgr, s, reg := newMaintenanceFixture(t)
	ctx := context.Background()
	tags := txn.NewTags(mgr)
	appendTitles(t, mgr, reg, 1, "A")
	appendTitles(t, mgr, reg, 2, "B")

	removedVersions, _, err := maintenance.CleanupVersions(ctx, s, tags, 0, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if removedVersions != 0 {
		t.Fatalf("expected nothing older than 24h to be collected immediately after creation, got %d removed", removedVersions)
	}
}

func TestMergeIndexDeltasConsolidatesValidForFragments(t *testing.T) {
	mgr, s, reg := newMaintenanceFixture(t)
	ctx := context.Background()
	appendTitles(t, mgr, reg, 1, "A")
	base, err := s.LatestVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}

	main := &store.IndexCatalogEntry{
		Name: "title_btree", Kind: "btree", Column: "title",
		Files: []string{"indices/title_btree.bin"}, ValidForFragments: []int64{1},
	}
	delta := &store.IndexCatalogEntry{
		Name: "title_btree__delta_2", Kind: "btree", Column: "title",
		Files: []string{"indices/title_btree__delta_2.bin"}, ValidForFragments: []int64{2},
	}
	if _, err := mgr.Commit(ctx, base, txn.Request{Kind: txn.CreateIndex, Message: "create", AddIndex: main}); err != nil {
		t.Fatal(err)
	}
	base, err = s.LatestVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Commit(ctx, base, txn.Request{Kind: txn.CreateIndex, Message: "create delta", AddIndex: delta}); err != nil {
		t.Fatal(err)
	}

	newVersion, err := maintenance.MergeIndexDeltas(ctx, s, mgr, "title_btree")
	if err != nil {
		t.Fatal(err)
	}
	manifest, err := s.ReadManifest(ctx, newVersion)
	if err != nil {
		t.Fatal(err)
	}

	var found *store.IndexCatalogEntry
	for i := range manifest.Indices {
		if manifest.Indices[i].Name == "title_btree" {
			found = &manifest.Indices[i]
		}
		if manifest.Indices[i].Name == "title_btree__delta_2" {
			t.Fatal("expected delta entry to be dropped after merge")
		}
	}
	if found == nil {
		t.Fatal("expected merged main entry to survive")
	}
	if len(found.ValidForFragments) != 2 {
		t.Fatalf("expected merged entry valid for 2 fragments, got %+v", found.ValidForFragments)
	}
}

func TestValidateRelationshipsFindsOnlyDanglingTargets(t *testing.T) {
	mgr, s, reg := newMaintenanceFixture(t)
	ctx := context.Background()

	a, err := record.New("A")
	if err != nil {
		t.Fatal(err)
	}
	b, err := record.New("B")
	if err != nil {
		t.Fatal(err)
	}
	if err := b.AddRelationship(record.Relationship{Type: record.RelParent, UUID: a.UUID}); err != nil {
		t.Fatal(err)
	}
	if err := b.AddRelationship(record.Relationship{Type: record.RelRelated, UUID: "missing-uuid"}); err != nil {
		t.Fatal(err)
	}

	wf, err := store.WriteFragment(1, []*record.Record{a, b}, reg)
	if err != nil {
		t.Fatal(err)
	}
	newVersion, err := mgr.CommitWithRetry(ctx, 3, func(ctx context.Context, base int64) (txn.Request, error) {
		return txn.Request{Kind: txn.Append, Message: "add", NewFragments: []*store.WrittenFragment{wf}}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	manifest, err := s.ReadManifest(ctx, newVersion)
	if err != nil {
		t.Fatal(err)
	}
	dangling, err := maintenance.ValidateRelationships(ctx, s, reg, manifest)
	if err != nil {
		t.Fatal(err)
	}
	if len(dangling) != 1 {
		t.Fatalf("expected exactly 1 dangling relationship, got %+v", dangling)
	}
	if dangling[0].SourceUUID != b.UUID || dangling[0].TargetUUID != "missing-uuid" {
		t.Fatalf("unexpected dangling relationship: %+v", dangling[0])
	}
}
