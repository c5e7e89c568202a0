package store_test

import (
	"context"
	"testing"

	"github.com/contextframe/contextframe/record"
	"github.com/contextframe/contextframe/schema"
	"github.com/contextframe/contextframe/store"
	"github.com/contextframe/contextframe/store/objectstore"
)

func mustRecord(t *testing.T, title string, vector []float32) *record.Record {
	t.Helper()
	r, err := record.New(title)
	if err != nil {
		t.Fatal(err)
	}
	r.Vector = vector
	r.Tags = []string{"x", "y"}
	r.CustomMetadata = map[string]string{"k": "v"}
	return r
}

func TestWriteFragmentRoundTrip(t *testing.T) {
	reg := schema.NewDefault(4)
	recs := []*record.Record{
		mustRecord(t, "A", []float32{1, 0, 0, 0}),
		mustRecord(t, "B", []float32{0, 1, 0, 0}),
	}

	wf, err := store.WriteFragment(1, recs, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wf.Ref.Rows != 2 {
		t.Fatalf("expected 2 rows, got %d", wf.Ref.Rows)
	}

	obj, err := objectstore.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for key, data := range wf.ColumnData {
		if err := obj.Put(ctx, key, data); err != nil {
			t.Fatal(err)
		}
	}

	titleCol, err := store.ReadColumn(ctx, obj, wf.Ref, "title", schema.Utf8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if titleCol[0] != "A" || titleCol[1] != "B" {
		t.Fatalf("unexpected title column: %v", titleCol)
	}

	vecCol, err := store.ReadColumn(ctx, obj, wf.Ref, "vector", schema.FixedFloat32List)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v0 := vecCol[0].([]float32)
	if len(v0) != 4 || v0[0] != 1 {
		t.Fatalf("unexpected vector column: %v", vecCol)
	}
}

func TestManifestEncodeDecodeRoundTrip(t *testing.T) {
	reg := schema.NewDefault(4)
	snap := store.SnapshotSchema(reg)
	m := store.NewManifest(1, nil, snap, []store.FragmentRef{{ID: 1, Rows: 2}}, nil, "initial commit")

	data, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := store.DecodeManifest(data)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Version != 1 || decoded.Parent != nil {
		t.Fatalf("unexpected decoded manifest: %+v", decoded)
	}
	if len(decoded.Fragments) != 1 || decoded.Fragments[0].Rows != 2 {
		t.Fatalf("unexpected fragments: %+v", decoded.Fragments)
	}
}

func TestDeletionVectorUnionIsAdditive(t *testing.T) {
	a := store.NewDeletionVector()
	a.Delete(1)
	a.Delete(2)
	b := store.NewDeletionVector()
	b.Delete(2)
	b.Delete(3)

	u := a.Union(b)
	for _, row := range []uint32{1, 2, 3} {
		if !u.IsDeleted(row) {
			t.Fatalf("expected row %d deleted in union", row)
		}
	}
	if u.Cardinality() != 3 {
		t.Fatalf("expected cardinality 3, got %d", u.Cardinality())
	}
}

func TestStoreLatestVersion(t *testing.T) {
	obj, err := objectstore.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	s, err := store.Open(obj, 16)
	if err != nil {
		t.Fatal(err)
	}

	reg := schema.NewDefault(4)
	for v := int64(0); v < 3; v++ {
		var parent *int64
		if v > 0 {
			p := v - 1
			parent = &p
		}
		m := store.NewManifest(v, parent, store.SnapshotSchema(reg), nil, nil, "")
		data, err := m.Encode()
		if err != nil {
			t.Fatal(err)
		}
		if err := obj.Put(ctx, store.ManifestKey(v), data); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := s.LatestVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest != 2 {
		t.Fatalf("expected latest version 2, got %d", latest)
	}

	versions, err := s.Versions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 3 || versions[0] != 0 || versions[2] != 2 {
		t.Fatalf("unexpected versions: %v", versions)
	}
}
