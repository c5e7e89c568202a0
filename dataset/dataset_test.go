package dataset_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/contextframe/contextframe/dataset"
	"github.com/contextframe/contextframe/query"
	"github.com/contextframe/contextframe/record"
	"github.com/contextframe/contextframe/vectorindex"
)

func newRecord(t *testing.T, title string, vec []float32, tags ...string) *record.Record {
	t.Helper()
	r, err := record.New(title)
	if err != nil {
		t.Fatal(err)
	}
	r.Vector = vec
	r.Tags = tags
	r.TextContent = title + " body text"
	return r
}

func openEmpty(t *testing.T, embedDim int) *dataset.Dataset {
	t.Helper()
	ctx := context.Background()
	ds, err := dataset.Create(ctx, filepath.Join(t.TempDir(), "ds"), embedDim, dataset.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func TestCreateOpenRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "ds")
	ds, err := dataset.Create(ctx, dir, 4, dataset.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if ds.Version() != 0 {
		t.Fatalf("expected fresh dataset at version 0, got %d", ds.Version())
	}

	reopened, err := dataset.Open(ctx, dir, dataset.OpenOptions{}, dataset.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Version() != 0 {
		t.Fatalf("expected reopened dataset at version 0, got %d", reopened.Version())
	}
}

func TestAddAndGetByUUID(t *testing.T) {
	ctx := context.Background()
	ds := openEmpty(t, 4)

	rec := newRecord(t, "Alpha", []float32{1, 0, 0, 0}, "x")
	version, err := ds.Add(ctx, rec)
	if err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Fatalf("expected version 1 after first add, got %d", version)
	}

	got, ok, err := ds.GetByUUID(ctx, rec.UUID)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected to find the record just added")
	}
	if got.Title != "Alpha" {
		t.Fatalf("expected title %q, got %q", "Alpha", got.Title)
	}
}

func TestAddManySplitsIntoFragmentsAndAllRowsAreLive(t *testing.T) {
	ctx := context.Background()
	ds, err := dataset.Create(ctx, filepath.Join(t.TempDir(), "ds"), 4, dataset.Options{FragmentTargetRows: 2})
	if err != nil {
		t.Fatal(err)
	}

	var recs []*record.Record
	for i := 0; i < 5; i++ {
		recs = append(recs, newRecord(t, "doc", []float32{float32(i), 0, 0, 0}))
	}
	if _, err := ds.AddMany(ctx, recs); err != nil {
		t.Fatal(err)
	}

	batches, err := ds.ToBatches(ctx, query.DefaultScanRequest())
	if err != nil {
		t.Fatal(err)
	}
	var total int
	for _, b := range batches {
		total += len(b.Records)
	}
	if total != 5 {
		t.Fatalf("expected 5 live rows across batches, got %d", total)
	}

	stats, err := ds.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FragmentCount != 3 {
		t.Fatalf("expected 5 records at 2 rows per fragment to make 3 fragments, got %d", stats.FragmentCount)
	}
}

func TestUpdateReplacesRow(t *testing.T) {
	ctx := context.Background()
	ds := openEmpty(t, 4)
	rec := newRecord(t, "Before", []float32{1, 0, 0, 0})
	if _, err := ds.Add(ctx, rec); err != nil {
		t.Fatal(err)
	}

	updated := rec.Clone()
	updated.Title = "After"
	if _, err := ds.Update(ctx, updated); err != nil {
		t.Fatal(err)
	}

	got, ok, err := ds.GetByUUID(ctx, rec.UUID)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || got.Title != "After" {
		t.Fatalf("expected updated title %q, got %+v", "After", got)
	}
}

func TestUpdateOfUnknownUUIDFails(t *testing.T) {
	ctx := context.Background()
	ds := openEmpty(t, 4)
	rec := newRecord(t, "Ghost", []float32{1, 0, 0, 0})
	if _, err := ds.Update(ctx, rec); err == nil {
		t.Fatal("expected update of a never-added uuid to fail")
	}
}

func TestUpsertInsertsThenReplaces(t *testing.T) {
	ctx := context.Background()
	ds := openEmpty(t, 4)
	rec := newRecord(t, "First", []float32{1, 0, 0, 0})

	if _, err := ds.Upsert(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, ok, err := ds.GetByUUID(ctx, rec.UUID)
	if err != nil || !ok || got.Title != "First" {
		t.Fatalf("expected upsert to insert, got ok=%v rec=%+v err=%v", ok, got, err)
	}

	rec2 := rec.Clone()
	rec2.Title = "Second"
	if _, err := ds.Upsert(ctx, rec2); err != nil {
		t.Fatal(err)
	}
	got, ok, err = ds.GetByUUID(ctx, rec.UUID)
	if err != nil || !ok || got.Title != "Second" {
		t.Fatalf("expected upsert to replace, got ok=%v rec=%+v err=%v", ok, got, err)
	}
}

func TestDeleteByUUIDsRemovesRows(t *testing.T) {
	ctx := context.Background()
	ds := openEmpty(t, 4)
	a := newRecord(t, "A", []float32{1, 0, 0, 0})
	b := newRecord(t, "B", []float32{0, 1, 0, 0})
	if _, err := ds.AddMany(ctx, []*record.Record{a, b}); err != nil {
		t.Fatal(err)
	}

	n, _, err := ds.DeleteByUUIDs(ctx, []string{a.UUID})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row deleted, got %d", n)
	}
	if _, ok, err := ds.GetByUUID(ctx, a.UUID); err != nil || ok {
		t.Fatalf("expected deleted uuid to no longer resolve, ok=%v err=%v", ok, err)
	}
	if _, ok, err := ds.GetByUUID(ctx, b.UUID); err != nil || !ok {
		t.Fatalf("expected untouched uuid to still resolve, ok=%v err=%v", ok, err)
	}
}

func TestDeleteByPredicateMatchesStatus(t *testing.T) {
	ctx := context.Background()
	ds := openEmpty(t, 4)
	a := newRecord(t, "A", []float32{1, 0, 0, 0})
	a.Status = "archived"
	b := newRecord(t, "B", []float32{0, 1, 0, 0})
	b.Status = "active"
	if _, err := ds.AddMany(ctx, []*record.Record{a, b}); err != nil {
		t.Fatal(err)
	}

	n, _, err := ds.Delete(ctx, query.Eq("status", "archived"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 archived row deleted, got %d", n)
	}
	if _, ok, err := ds.GetByUUID(ctx, a.UUID); err != nil || ok {
		t.Fatalf("expected archived record to be gone, ok=%v err=%v", ok, err)
	}
	if _, ok, err := ds.GetByUUID(ctx, b.UUID); err != nil || !ok {
		t.Fatalf("expected active record to remain, ok=%v err=%v", ok, err)
	}
}

func TestKNNSearchReturnsNearestVector(t *testing.T) {
	ctx := context.Background()
	ds := openEmpty(t, 4)
	a := newRecord(t, "A", []float32{1, 0, 0, 0})
	b := newRecord(t, "B", []float32{0, 1, 0, 0})
	c := newRecord(t, "C", []float32{0, 0, 1, 0})
	if _, err := ds.AddMany(ctx, []*record.Record{a, b, c}); err != nil {
		t.Fatal(err)
	}

	recs, _, err := ds.KNNSearch(ctx, "vector", []float32{1, 0, 0, 0}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].UUID != a.UUID {
		t.Fatalf("expected nearest neighbor to be %q, got %+v", a.UUID, recs)
	}
}

func TestFullTextSearchFindsMatchingDocument(t *testing.T) {
	ctx := context.Background()
	ds := openEmpty(t, 4)
	a := newRecord(t, "Alpha", []float32{1, 0, 0, 0})
	a.TextContent = "the quick brown fox"
	b := newRecord(t, "Beta", []float32{0, 1, 0, 0})
	b.TextContent = "a slow green turtle"
	if _, err := ds.AddMany(ctx, []*record.Record{a, b}); err != nil {
		t.Fatal(err)
	}

	if _, err := ds.CreateFTSIndex(ctx, []string{"text_content"}, nil); err != nil {
		t.Fatal(err)
	}

	recs, _, err := ds.FullTextSearch(ctx, "fox", nil, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].UUID != a.UUID {
		t.Fatalf("expected full text search to find %q, got %+v", a.UUID, recs)
	}
}

func TestCreateVectorIndexSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "ds")
	ds, err := dataset.Create(ctx, dir, 4, dataset.Options{})
	if err != nil {
		t.Fatal(err)
	}
	var recs []*record.Record
	for i := 0; i < 10; i++ {
		recs = append(recs, newRecord(t, "doc", []float32{float32(i), float32(i % 3), 0, 0}))
	}
	if _, err := ds.AddMany(ctx, recs); err != nil {
		t.Fatal(err)
	}

	name, err := ds.CreateVectorIndex(ctx, "vector", vectorindex.IVFPQ, vectorindex.BuildParams{
		Metric: vectorindex.L2, NumPartitions: 2, PQSubvectors: 2, PQBits: 4,
	})
	if err != nil {
		t.Fatal(err)
	}

	reopened, err := dataset.Open(ctx, dir, dataset.OpenOptions{}, dataset.Options{})
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, info := range reopened.ListIndices() {
		if info.Name == name {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected vector index %q to survive a reopen, got %+v", name, reopened.ListIndices())
	}

	recs2, _, err := reopened.KNNSearch(ctx, "vector", []float32{0, 0, 0, 0}, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs2) != 3 {
		t.Fatalf("expected 3 neighbors, got %d", len(recs2))
	}
}

func TestDropIndexRemovesItFromCatalog(t *testing.T) {
	ctx := context.Background()
	ds := openEmpty(t, 4)
	rec := newRecord(t, "A", []float32{1, 0, 0, 0})
	if _, err := ds.Add(ctx, rec); err != nil {
		t.Fatal(err)
	}
	name, err := ds.CreateScalarIndex(ctx, "title", "btree")
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.DropIndex(ctx, name); err != nil {
		t.Fatal(err)
	}
	for _, info := range ds.ListIndices() {
		if info.Name == name {
			t.Fatalf("expected %q to be gone after DropIndex, still present: %+v", name, ds.ListIndices())
		}
	}
}

func TestCheckoutEarlierVersionIsIsolatedFromLaterWrites(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "ds")
	ds, err := dataset.Create(ctx, dir, 4, dataset.Options{})
	if err != nil {
		t.Fatal(err)
	}
	a := newRecord(t, "A", []float32{1, 0, 0, 0})
	v1, err := ds.Add(ctx, a)
	if err != nil {
		t.Fatal(err)
	}

	snapshot, err := ds.Checkout(ctx, dataset.OpenOptions{Version: &v1})
	if err != nil {
		t.Fatal(err)
	}

	b := newRecord(t, "B", []float32{0, 1, 0, 0})
	if _, err := ds.Add(ctx, b); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := snapshot.GetByUUID(ctx, b.UUID); err != nil || ok {
		t.Fatalf("expected the v1 snapshot to be blind to a write made after it was checked out, ok=%v err=%v", ok, err)
	}
	if _, ok, err := ds.GetByUUID(ctx, b.UUID); err != nil || !ok {
		t.Fatalf("expected the live handle to see its own write, ok=%v err=%v", ok, err)
	}
}

func TestTagsSurviveCleanupOfUntaggedVersions(t *testing.T) {
	ctx := context.Background()
	ds := openEmpty(t, 4)
	a := newRecord(t, "A", []float32{1, 0, 0, 0})
	v1, err := ds.Add(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.Tags().Create(ctx, "stable", v1); err != nil {
		t.Fatal(err)
	}
	b := newRecord(t, "B", []float32{0, 1, 0, 0})
	if _, err := ds.Add(ctx, b); err != nil {
		t.Fatal(err)
	}
	c := newRecord(t, "C", []float32{0, 0, 1, 0})
	if _, err := ds.Add(ctx, c); err != nil {
		t.Fatal(err)
	}

	if _, _, err := ds.CleanupOldVersions(ctx, 1, 0); err != nil {
		t.Fatal(err)
	}

	versions, err := ds.Versions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	have := map[int64]bool{}
	for _, v := range versions {
		have[v] = true
	}
	if !have[v1] {
		t.Fatalf("expected tagged version %d to survive cleanup, have %v", v1, versions)
	}
}

func TestCompactReducesFragmentCount(t *testing.T) {
	ctx := context.Background()
	ds := openEmpty(t, 4)
	for i := 0; i < 4; i++ {
		rec := newRecord(t, "doc", []float32{float32(i), 0, 0, 0})
		if _, err := ds.Add(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	statsBefore, err := ds.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if statsBefore.FragmentCount != 4 {
		t.Fatalf("expected 4 fragments before compaction, got %d", statsBefore.FragmentCount)
	}

	if _, err := ds.Compact(ctx, 1000); err != nil {
		t.Fatal(err)
	}
	statsAfter, err := ds.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if statsAfter.FragmentCount != 1 {
		t.Fatalf("expected compaction to merge into 1 fragment, got %d", statsAfter.FragmentCount)
	}
	if statsAfter.LiveRows != 4 {
		t.Fatalf("expected 4 live rows after compaction, got %d", statsAfter.LiveRows)
	}
}

func TestStatsCountsNullsInOptionalColumn(t *testing.T) {
	ctx := context.Background()
	ds := openEmpty(t, 4)
	withAuthor := newRecord(t, "A", []float32{1, 0, 0, 0})
	withAuthor.Author = "me"
	withoutAuthor := newRecord(t, "B", []float32{0, 1, 0, 0})
	if _, err := ds.AddMany(ctx, []*record.Record{withAuthor, withoutAuthor}); err != nil {
		t.Fatal(err)
	}

	stats, err := ds.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var authorNulls int64 = -1
	for _, c := range stats.Columns {
		if c.Name == "author" {
			authorNulls = c.NullCount
		}
	}
	if authorNulls != 1 {
		t.Fatalf("expected exactly 1 null author, got %d", authorNulls)
	}
}

func TestValidateRelationshipsReportsDanglingTarget(t *testing.T) {
	ctx := context.Background()
	ds := openEmpty(t, 4)
	a := newRecord(t, "A", []float32{1, 0, 0, 0})
	if err := a.AddRelationship(record.Relationship{Type: record.RelRelated, UUID: "does-not-exist"}); err != nil {
		t.Fatal(err)
	}
	if _, err := ds.Add(ctx, a); err != nil {
		t.Fatal(err)
	}

	dangling, err := ds.ValidateRelationships(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(dangling) != 1 || dangling[0].TargetUUID != "does-not-exist" {
		t.Fatalf("expected one dangling relationship to does-not-exist, got %+v", dangling)
	}
}

func TestTakeBlobsResolvesHandlesAtRowAddresses(t *testing.T) {
	ctx := context.Background()
	ds := openEmpty(t, 4)
	rec := newRecord(t, "A", []float32{1, 0, 0, 0})
	rec.RawData = []byte("hello blob")
	rec.RawDataType = "text/plain"
	if _, err := ds.Add(ctx, rec); err != nil {
		t.Fatal(err)
	}

	handles, err := ds.TakeBlobs(ctx, "raw_data", []int64{0})
	if err != nil {
		t.Fatal(err)
	}
	if len(handles) != 1 || handles[0] == nil {
		t.Fatalf("expected one resolved blob handle, got %+v", handles)
	}
}
