package dataset

import (
	"context"

	"github.com/contextframe/contextframe"
	"github.com/contextframe/contextframe/internal/workpool"
	"github.com/contextframe/contextframe/query"
	"github.com/contextframe/contextframe/record"
	"github.com/contextframe/contextframe/scalarindex"
	"github.com/contextframe/contextframe/schema"
	"github.com/contextframe/contextframe/store"
	"github.com/contextframe/contextframe/txn"
)

// idBatch pairs a batch of records with the fragment id it must be
// written under, so concurrent encoding in AddMany can assign ids
// up front rather than racing to mint them.
type idBatch struct {
	id   int64
	recs []*record.Record
}

// Add appends a single record (spec §6.2's add(record)) and returns the
// version the commit produced.
func (ds *Dataset) Add(ctx context.Context, rec *record.Record) (int64, error) {
	return ds.AddMany(ctx, []*record.Record{rec})
}

// AddMany appends records, splitting them into fragments of at most
// Options.FragmentTargetRows rows each and encoding those fragments
// concurrently on ds's shared workpool (spec §5's "parallel thread pool
// for column decode" extended, symmetrically, to column encode). Returns
// the version the commit produced.
func (ds *Dataset) AddMany(ctx context.Context, recs []*record.Record) (int64, error) {
	if len(recs) == 0 {
		return ds.version, nil
	}
	for _, rec := range recs {
		if err := rec.Validate(ds.reg); err != nil {
			return 0, err
		}
	}

	target := ds.opts.FragmentTargetRows
	var batches [][]*record.Record
	for start := 0; start < len(recs); start += target {
		end := start + target
		if end > len(recs) {
			end = len(recs)
		}
		batches = append(batches, recs[start:end])
	}

	newVersion, err := ds.mgr.CommitWithRetry(ctx, 5, func(ctx context.Context, base int64) (txn.Request, error) {
		manifest, err := ds.st.ReadManifest(ctx, base)
		if err != nil {
			return txn.Request{}, err
		}
		reg := manifest.SchemaRegistry()
		nextID := maxFragmentID(manifest.Fragments) + 1

		idBatches := make([]idBatch, len(batches))
		for i, b := range batches {
			idBatches[i] = idBatch{id: nextID + int64(i), recs: b}
		}
		written, err := workpool.Map(ctx, ds.pool, idBatches, func(_ context.Context, ib idBatch) (*store.WrittenFragment, error) {
			return store.WriteFragment(ib.id, ib.recs, reg)
		})
		if err != nil {
			return txn.Request{}, err
		}
		return txn.Request{Kind: txn.Append, Message: "add_many", NewFragments: written}, nil
	})
	if err != nil {
		return 0, err
	}
	if err := ds.checkoutVersion(ctx, newVersion); err != nil {
		return 0, err
	}
	return newVersion, nil
}

// GetByUUID returns the live record identified by uuid, or ok=false if
// none exists at this snapshot (spec §6.2's get_by_uuid(uuid)).
func (ds *Dataset) GetByUUID(ctx context.Context, uuid string) (*record.Record, bool, error) {
	return ds.relate.FindByUUID(ctx, uuid)
}

// Delete removes every live row matching filter (spec §6.2's
// delete(predicate)), returning how many rows it removed and the
// resulting version.
func (ds *Dataset) Delete(ctx context.Context, filter *query.Predicate) (int, int64, error) {
	return ds.deleteMatching(ctx, filter)
}

// DeleteByUUIDs removes the live rows named by uuids (spec §6.2's
// delete(uuids)).
func (ds *Dataset) DeleteByUUIDs(ctx context.Context, uuids []string) (int, int64, error) {
	if len(uuids) == 0 {
		return 0, ds.version, nil
	}
	values := make([]any, len(uuids))
	for i, u := range uuids {
		values[i] = u
	}
	return ds.deleteMatching(ctx, query.In("uuid", values...))
}

func (ds *Dataset) deleteMatching(ctx context.Context, filter *query.Predicate) (int, int64, error) {
	var deletedCount int
	newVersion, err := ds.mgr.CommitWithRetry(ctx, 5, func(ctx context.Context, base int64) (txn.Request, error) {
		manifest, err := ds.st.ReadManifest(ctx, base)
		if err != nil {
			return txn.Request{}, err
		}
		reg := manifest.SchemaRegistry()

		deltas, uuids, n, err := ds.planDeletion(ctx, manifest, reg, filter)
		if err != nil {
			return txn.Request{}, err
		}
		deletedCount = n
		if n == 0 {
			return txn.Request{Kind: txn.Delete, Message: "delete: nothing matched"}, nil
		}
		return txn.Request{Kind: txn.Delete, Message: "delete", MutatedUUIDs: uuids, DeletionDeltas: deltas}, nil
	})
	if err != nil {
		return 0, 0, err
	}
	if err := ds.checkoutVersion(ctx, newVersion); err != nil {
		return 0, 0, err
	}
	return deletedCount, newVersion, nil
}

// planDeletion scans manifest for filter's matches and groups them into
// per-fragment deletion-vector deltas.
func (ds *Dataset) planDeletion(ctx context.Context, manifest *store.Manifest, reg *schema.Registry, filter *query.Predicate) (map[int64]*store.DeletionVector, []string, int, error) {
	req := query.DefaultScanRequest()
	req.Filter = filter
	req.Columns = []string{"uuid"}
	req.WithRowAddress = true
	req.UseScalarIndex = false // planner is bound to ds's checked-out snapshot, not necessarily manifest

	sc, err := query.NewScanner(ds.st, reg, manifest, nil, nil, nil, req)
	if err != nil {
		return nil, nil, 0, err
	}

	deltas := map[int64]*store.DeletionVector{}
	var uuids []string
	var n int
	for {
		batch, err := sc.Next(ctx)
		if err != nil {
			return nil, nil, 0, err
		}
		if batch == nil {
			return deltas, uuids, n, nil
		}
		for i, rec := range batch.Records {
			ref, local, ok := resolveRowAddress(manifest.Fragments, batch.RowAddresses[i])
			if !ok {
				return nil, nil, 0, contextframe.NewError(contextframe.InternalErr, "row address %d not found in its own manifest", batch.RowAddresses[i])
			}
			dv, exists := deltas[ref.ID]
			if !exists {
				dv = store.NewDeletionVector()
				deltas[ref.ID] = dv
			}
			dv.Delete(uint32(local))
			uuids = append(uuids, rec.UUID)
			n++
		}
	}
}

// Update replaces the live row matching rec.UUID with rec (spec §6.2's
// update(record)). Returns NotFoundErr if no live row currently has that
// uuid.
func (ds *Dataset) Update(ctx context.Context, rec *record.Record) (int64, error) {
	rec.Touch()
	if err := rec.Validate(ds.reg); err != nil {
		return 0, err
	}
	return ds.upsertOne(ctx, rec, false)
}

// Upsert inserts rec if its uuid is not currently live, or replaces the
// existing row otherwise (spec §6.2's upsert(record)).
func (ds *Dataset) Upsert(ctx context.Context, rec *record.Record) (int64, error) {
	rec.Touch()
	if err := rec.Validate(ds.reg); err != nil {
		return 0, err
	}
	return ds.upsertOne(ctx, rec, true)
}

func (ds *Dataset) upsertOne(ctx context.Context, rec *record.Record, insertIfAbsent bool) (int64, error) {
	newVersion, err := ds.mgr.CommitWithRetry(ctx, 5, func(ctx context.Context, base int64) (txn.Request, error) {
		manifest, err := ds.st.ReadManifest(ctx, base)
		if err != nil {
			return txn.Request{}, err
		}
		reg := manifest.SchemaRegistry()

		deltas, _, n, err := ds.planDeletion(ctx, manifest, reg, query.Eq("uuid", rec.UUID))
		if err != nil {
			return txn.Request{}, err
		}
		if n == 0 && !insertIfAbsent {
			return txn.Request{}, contextframe.NewError(contextframe.NotFoundErr, "no live row with uuid %q", rec.UUID)
		}

		wf, err := store.WriteFragment(maxFragmentID(manifest.Fragments)+1, []*record.Record{rec}, reg)
		if err != nil {
			return txn.Request{}, err
		}

		kind := txn.Update
		if insertIfAbsent {
			kind = txn.Upsert
		}
		return txn.Request{
			Kind:           kind,
			Message:        string(kind) + ": " + rec.UUID,
			MutatedUUIDs:   []string{rec.UUID},
			NewFragments:   []*store.WrittenFragment{wf},
			DeletionDeltas: deltas,
		}, nil
	})
	if err != nil {
		return 0, err
	}
	if err := ds.checkoutVersion(ctx, newVersion); err != nil {
		return 0, err
	}
	return newVersion, nil
}

// Take returns the records at the given dataset-wide row addresses, in
// the same order as addrs (spec §6.2's take(indices, columns?)). columns
// being empty projects every column.
func (ds *Dataset) Take(ctx context.Context, addrs []int64, columns []string) ([]*record.Record, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	rowSet := scalarindex.NewRowSet()
	for _, a := range addrs {
		rowSet.Add(uint32(a))
	}

	req := query.DefaultScanRequest()
	req.Columns = columns
	req.WithRowAddress = true
	req.ExternalCandidates = rowSet
	req.UseScalarIndex = false

	sc, err := query.NewScanner(ds.st, ds.reg, ds.manifest, nil, nil, nil, req)
	if err != nil {
		return nil, err
	}

	byAddr := make(map[int64]*record.Record, len(addrs))
	for {
		batch, err := sc.Next(ctx)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		for i, rec := range batch.Records {
			byAddr[batch.RowAddresses[i]] = rec
		}
	}

	out := make([]*record.Record, len(addrs))
	for i, a := range addrs {
		rec, ok := byAddr[a]
		if !ok {
			return nil, contextframe.NewError(contextframe.NotFoundErr, "row address %d is not live", a)
		}
		out[i] = rec
	}
	return out, nil
}

// TakeBlobs resolves column's blob handles at the given row addresses
// without reading their bytes (spec §6.2's take_blobs(column, ...)),
// fetching each distinct fragment's blob-ref column concurrently on
// ds's shared workpool.
func (ds *Dataset) TakeBlobs(ctx context.Context, column string, addrs []int64) ([]*store.Handle, error) {
	col, err := ds.reg.Column(column)
	if err != nil {
		return nil, err
	}
	if !col.BlobHint {
		return nil, contextframe.NewError(contextframe.ValidationErr, "column %q is not a blob column", column)
	}

	type location struct {
		ref   store.FragmentRef
		local int
	}
	locations := make([]location, len(addrs))
	fragsNeeded := map[int64]store.FragmentRef{}
	for i, addr := range addrs {
		ref, local, ok := resolveRowAddress(ds.manifest.Fragments, addr)
		if !ok {
			return nil, contextframe.NewError(contextframe.NotFoundErr, "row address %d out of range", addr)
		}
		locations[i] = location{ref, local}
		fragsNeeded[ref.ID] = ref
	}

	fragIDs := make([]int64, 0, len(fragsNeeded))
	for id := range fragsNeeded {
		fragIDs = append(fragIDs, id)
	}
	blobRefColumns, err := workpool.Map(ctx, ds.pool, fragIDs, func(ctx context.Context, id int64) ([]interface{}, error) {
		return store.ReadColumn(ctx, ds.obj, fragsNeeded[id], column, schema.OpaqueBinary)
	})
	if err != nil {
		return nil, err
	}
	byFragment := make(map[int64][]interface{}, len(fragIDs))
	for i, id := range fragIDs {
		byFragment[id] = blobRefColumns[i]
	}

	out := make([]*store.Handle, len(addrs))
	for i, loc := range locations {
		h, err := store.ReadBlob(ds.obj, loc.ref, loc.local, byFragment[loc.ref.ID])
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}
