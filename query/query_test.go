package query_test

import (
	"context"
	"testing"

	"github.com/contextframe/contextframe/query"
	"github.com/contextframe/contextframe/record"
	"github.com/contextframe/contextframe/scalarindex"
	"github.com/contextframe/contextframe/schema"
	"github.com/contextframe/contextframe/store"
	"github.com/contextframe/contextframe/store/objectstore"
)

func TestEvalComparisonOperators(t *testing.T) {
	row := map[string]any{"status": "published", "version": "3"}

	cases := []struct {
		name string
		p    *query.Predicate
		want bool
	}{
		{"eq match", query.Eq("status", "published"), true},
		{"eq mismatch", query.Eq("status", "draft"), false},
		{"ne", query.Ne("status", "draft"), true},
		{"gt numeric-as-string", query.Gt("version", "2"), true},
		{"in hit", query.In("status", "draft", "published"), true},
		{"in miss", query.In("status", "draft", "archived"), false},
		{"and", query.And(query.Eq("status", "published"), query.Gt("version", "1")), true},
		{"or", query.Or(query.Eq("status", "draft"), query.Eq("status", "published")), true},
		{"not", query.Not(query.Eq("status", "draft")), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := query.Eval(tc.p, row)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvalLikeAndContains(t *testing.T) {
	row := map[string]any{"title": "Quarterly Report Draft"}
	if ok, _ := query.Eval(query.Like("title", "Quarterly%"), row); !ok {
		t.Fatal("expected LIKE prefix match")
	}
	if ok, _ := query.Eval(query.Like("title", "Annual%"), row); ok {
		t.Fatal("expected LIKE prefix mismatch")
	}
	if ok, _ := query.Eval(query.Like("title", "Quarterly _eport%"), row); !ok {
		t.Fatal("expected LIKE single-char wildcard (_) to match one character")
	}
	if ok, _ := query.Eval(query.Contains("title", "Report"), row); !ok {
		t.Fatal("expected contains match")
	}
}

func TestEvalArrayPredicates(t *testing.T) {
	row := map[string]any{"tags": []any{"finance", "q3", "draft"}}
	if ok, _ := query.Eval(query.ArrayHasAny("tags", "q1", "q3"), row); !ok {
		t.Fatal("expected array_has_any match")
	}
	if ok, _ := query.Eval(query.ArrayHasAll("tags", "finance", "q3"), row); !ok {
		t.Fatal("expected array_has_all match")
	}
	if ok, _ := query.Eval(query.ArrayHasAll("tags", "finance", "q1"), row); ok {
		t.Fatal("expected array_has_all mismatch")
	}
}

func TestEvalBetweenAndNull(t *testing.T) {
	row := map[string]any{"score": 5.0, "missing": nil}
	if ok, _ := query.Eval(query.Between("score", 1.0, 10.0), row); !ok {
		t.Fatal("expected between match")
	}
	if ok, _ := query.Eval(query.IsNull("missing"), row); !ok {
		t.Fatal("expected is_null match")
	}
	if ok, _ := query.Eval(query.IsNotNull("score"), row); !ok {
		t.Fatal("expected is_not_null match")
	}
}

func TestExplainRendersReadableString(t *testing.T) {
	p := query.And(query.Eq("status", "published"), query.Gt("version", "1"))
	s, err := query.Explain(p)
	if err != nil {
		t.Fatal(err)
	}
	if s == "" {
		t.Fatal("expected non-empty explain string")
	}
}

func buildCatalogFixture(t *testing.T) *scalarindex.Catalog {
	t.Helper()
	cat := scalarindex.NewCatalog()

	bt, err := scalarindex.BuildBTree("score", []float64{1, 5, 9}, []int64{0, 1, 2})
	if err != nil {
		t.Fatal(err)
	}
	cat.PutBTree("score_btree", bt)

	bm, err := scalarindex.BuildBitmap("status", []string{"draft", "published", "published"}, []int64{0, 1, 2}, []bool{false, false, false})
	if err != nil {
		t.Fatal(err)
	}
	cat.PutBitmap("status_bitmap", bm)

	return cat
}

func TestPlannerNarrowsBTreeAndBitmapConjuncts(t *testing.T) {
	cat := buildCatalogFixture(t)
	pl := query.NewPlanner(cat, []query.IndexBinding{
		{Column: "score", Kind: scalarindex.BTree, Name: "score_btree"},
		{Column: "status", Kind: scalarindex.Bitmap, Name: "status_bitmap"},
	})

	filter := query.And(query.Gt("score", 2.0), query.Eq("status", "published"))
	plan, err := pl.Plan(filter)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Residual != nil {
		t.Fatalf("expected fully-resolved plan, got residual %+v", plan.Residual)
	}
	if plan.Candidates == nil {
		t.Fatal("expected narrowed candidates")
	}
	if plan.Candidates.Contains(0) {
		t.Fatal("row 0 (score=1, draft) should have been excluded")
	}
	if !plan.Candidates.Contains(1) || !plan.Candidates.Contains(2) {
		t.Fatal("rows 1 and 2 (score>2, published) should survive")
	}
}

func TestPlannerNarrowsLikeClauseViaNgramAnchor(t *testing.T) {
	cat := scalarindex.NewCatalog()
	ng, err := scalarindex.BuildNgram("title", []string{
		"Quarterly Report Draft",
		"Annual Summary",
		"Quarterly Planning Notes",
	}, []int64{0, 1, 2})
	if err != nil {
		t.Fatal(err)
	}
	cat.PutNgram("title_ngram", ng)

	pl := query.NewPlanner(cat, []query.IndexBinding{
		{Column: "title", Kind: scalarindex.Ngram, Name: "title_ngram"},
	})
	filter := query.Like("title", "Quarterly%")
	plan, err := pl.Plan(filter)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Residual == nil {
		t.Fatal("expected the LIKE clause to remain in the residual (ngram only narrows)")
	}
	if plan.Candidates == nil {
		t.Fatal("expected the ngram index to have narrowed candidates from the 'Quarterly' anchor")
	}
	if plan.Candidates.Contains(1) {
		t.Fatal("row 1 ('Annual Summary') should have been excluded by the trigram narrowing")
	}
	if !plan.Candidates.Contains(0) || !plan.Candidates.Contains(2) {
		t.Fatal("rows 0 and 2 (both containing 'Quarterly') should survive narrowing")
	}
}

func TestPlannerLeavesUnboundClauseInResidual(t *testing.T) {
	cat := buildCatalogFixture(t)
	pl := query.NewPlanner(cat, []query.IndexBinding{
		{Column: "score", Kind: scalarindex.BTree, Name: "score_btree"},
	})

	filter := query.And(query.Gt("score", 2.0), query.Contains("title", "report"))
	plan, err := pl.Plan(filter)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Residual == nil {
		t.Fatal("expected the unbound contains() clause to remain in the residual")
	}
}

func mustRecord(t *testing.T, title, status string) *record.Record {
	t.Helper()
	r, err := record.New(title)
	if err != nil {
		t.Fatal(err)
	}
	r.Status = status
	return r
}

// buildScanFixture writes two fragments (2 rows, 1 row) through an
// in-memory object store and returns a Store + Manifest scanner tests
// can drive, grounded on store_test.go's own fixture style.
func buildScanFixture(t *testing.T) (*store.Store, *store.Manifest, *schema.Registry) {
	t.Helper()
	reg := schema.NewDefault(4)
	obj, err := objectstore.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	frag1, err := store.WriteFragment(1, []*record.Record{
		mustRecord(t, "Alpha", "published"),
		mustRecord(t, "Beta", "draft"),
	}, reg)
	if err != nil {
		t.Fatal(err)
	}
	frag2, err := store.WriteFragment(2, []*record.Record{
		mustRecord(t, "Gamma", "published"),
	}, reg)
	if err != nil {
		t.Fatal(err)
	}
	for _, wf := range []*store.WrittenFragment{frag1, frag2} {
		for key, data := range wf.ColumnData {
			if err := obj.Put(ctx, key, data); err != nil {
				t.Fatal(err)
			}
		}
	}

	s, err := store.Open(obj, 16)
	if err != nil {
		t.Fatal(err)
	}
	manifest := store.NewManifest(0, nil, store.SnapshotSchema(reg), []store.FragmentRef{frag1.Ref, frag2.Ref}, nil, "")
	return s, manifest, reg
}

func drain(t *testing.T, sc *query.Scanner) []*record.Record {
	t.Helper()
	ctx := context.Background()
	var out []*record.Record
	for {
		batch, err := sc.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if batch == nil {
			return out
		}
		out = append(out, batch.Records...)
	}
}

func TestScannerFullScanAppliesResidualFilter(t *testing.T) {
	s, manifest, reg := buildScanFixture(t)
	req := query.DefaultScanRequest()
	req.Filter = query.Eq("status", "published")

	sc, err := query.NewScanner(s, reg, manifest, nil, nil, nil, req)
	if err != nil {
		t.Fatal(err)
	}
	recs := drain(t, sc)
	if len(recs) != 2 {
		t.Fatalf("expected 2 published records across both fragments, got %d", len(recs))
	}
	for _, r := range recs {
		if r.Status != "published" {
			t.Fatalf("unexpected status leaked through filter: %+v", r)
		}
	}
}

func TestScannerRespectsLimitAndOffset(t *testing.T) {
	s, manifest, reg := buildScanFixture(t)
	req := query.DefaultScanRequest()
	req.Limit = 1
	req.Offset = 1

	sc, err := query.NewScanner(s, reg, manifest, nil, nil, nil, req)
	if err != nil {
		t.Fatal(err)
	}
	recs := drain(t, sc)
	if len(recs) != 1 {
		t.Fatalf("expected exactly 1 record, got %d", len(recs))
	}
	if recs[0].Title != "Beta" {
		t.Fatalf("expected offset to skip Alpha and return Beta, got %q", recs[0].Title)
	}
}

func TestScannerHonorsDeletionVector(t *testing.T) {
	s, manifest, reg := buildScanFixture(t)

	dv := store.NewDeletionVector()
	dv.Delete(0) // tombstone "Alpha", local row 0 of fragment 1
	dvKey, dvData, err := store.StageDeletionVector(dv)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := s.Object().Put(ctx, dvKey, dvData); err != nil {
		t.Fatal(err)
	}
	manifest.Fragments[0].DVRef = dvKey

	req := query.DefaultScanRequest()
	sc, err := query.NewScanner(s, reg, manifest, nil, nil, nil, req)
	if err != nil {
		t.Fatal(err)
	}
	recs := drain(t, sc)
	for _, r := range recs {
		if r.Title == "Alpha" {
			t.Fatal("expected tombstoned row to be excluded from scan")
		}
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 surviving records, got %d", len(recs))
	}
}

func TestScannerBatchSizeSplitsAcrossMultipleNextCalls(t *testing.T) {
	s, manifest, reg := buildScanFixture(t)
	req := query.DefaultScanRequest()
	req.BatchSize = 1

	sc, err := query.NewScanner(s, reg, manifest, nil, nil, nil, req)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	var batches int
	var total int
	for {
		batch, err := sc.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if batch == nil {
			break
		}
		batches++
		total += len(batch.Records)
		if len(batch.Records) > 1 {
			t.Fatalf("expected at most 1 record per batch, got %d", len(batch.Records))
		}
	}
	if total != 3 {
		t.Fatalf("expected 3 total records across all batches, got %d", total)
	}
	if batches < 3 {
		t.Fatalf("expected at least 3 batches with BatchSize=1, got %d", batches)
	}
}
