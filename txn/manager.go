package txn

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/contextframe/contextframe"
	cflog "github.com/contextframe/contextframe/log"
	"github.com/contextframe/contextframe/metrics"
	"github.com/contextframe/contextframe/store"
	"github.com/contextframe/contextframe/store/objectstore"
	"github.com/contextframe/contextframe/util"
)

var tracer = otel.Tracer("github.com/contextframe/contextframe/txn")

// Manager commits transactions against one dataset root (spec §4.4).
// Manager holds no lock: concurrent Commit calls, through one Manager or
// several pointed at the same root, each read the latest manifest and
// race at AtomicRenameOrCAS, the true commit point. Only one wins per
// version; the others get ConflictErr.
type Manager struct {
	store   *store.Store
	log     cflog.Logger
	metrics *metrics.Registry
	dataset string // label used on metrics/log fields
}

// New returns a Manager bound to s.
func New(s *store.Store, dataset string, log cflog.Logger, reg *metrics.Registry) *Manager {
	if log == nil {
		log = cflog.Global()
	}
	return &Manager{store: s, log: log, metrics: reg, dataset: dataset}
}

// Commit stages req's files and attempts to advance the manifest from
// baseVersion to baseVersion'+1 where baseVersion' is the dataset's
// actual latest version at commit time (append-only commits rebase
// silently; mutating commits conflict if the intervening history touched
// an overlapping uuid). Returns the new version on success.
func (m *Manager) Commit(ctx context.Context, baseVersion int64, req Request) (int64, error) {
	ctx, span := tracer.Start(ctx, "txn.Commit")
	defer span.End()
	span.SetAttributes(attribute.String("kind", string(req.Kind)), attribute.Int64("base_version", baseVersion))

	if m.metrics != nil {
		stop := m.metrics.Timer(metrics.CommitLatency, m.dataset)
		defer stop()
	}

	latest, err := m.store.LatestVersion(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	if latest != baseVersion && len(req.MutatedUUIDs) > 0 {
		conflict, err := m.intervalTouchesUUIDs(ctx, baseVersion, latest, req.MutatedUUIDs)
		if err != nil {
			return 0, err
		}
		if conflict {
			err := contextframe.NewError(contextframe.ConflictErr,
				"commit based on version %d conflicts with history up to %d", baseVersion, latest)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return 0, err
		}
	}

	parent, err := m.store.ReadManifest(ctx, latest)
	if err != nil {
		return 0, err
	}

	newManifest, err := m.buildManifest(ctx, latest, parent, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	if err := m.stageFiles(ctx, req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	data, err := newManifest.Encode()
	if err != nil {
		return 0, err
	}
	stagedKey := store.StagingKeyFor(data)
	obj := m.store.Object()
	if err := obj.Put(ctx, stagedKey, data); err != nil {
		return 0, err
	}
	if err := obj.AtomicRenameOrCAS(ctx, stagedKey, store.ManifestKey(newManifest.Version)); err != nil {
		if contextframe.IsConflict(err) {
			span.SetStatus(codes.Error, "manifest rename race")
			return 0, contextframe.NewError(contextframe.ConflictErr, "version %d was committed concurrently", newManifest.Version)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	m.log.WithFields(cflog.Fields{
		"version": newManifest.Version,
		"kind":    req.Kind,
	}).Info("committed transaction")

	return newManifest.Version, nil
}

// intervalTouchesUUIDs reports whether any manifest in (baseVersion,
// latest] mutated one of uuids (spec §4.4's record-level conflict rule).
func (m *Manager) intervalTouchesUUIDs(ctx context.Context, baseVersion, latest int64, uuids []string) (bool, error) {
	want := make(map[string]bool, len(uuids))
	for _, u := range uuids {
		want[u] = true
	}
	for v := baseVersion + 1; v <= latest; v++ {
		man, err := m.store.ReadManifest(ctx, v)
		if err != nil {
			return false, err
		}
		for _, u := range man.MutatedUUIDs {
			if want[u] {
				return true, nil
			}
		}
	}
	return false, nil
}

// buildManifest composes the new manifest from the actual parent
// (latest, not necessarily baseVersion) plus req's changes.
func (m *Manager) buildManifest(ctx context.Context, latest int64, parent *store.Manifest, req Request) (*store.Manifest, error) {
	removed := make(map[int64]bool, len(req.RemoveFragmentIDs))
	for _, id := range req.RemoveFragmentIDs {
		removed[id] = true
	}

	fragments := make([]store.FragmentRef, 0, len(parent.Fragments)+len(req.NewFragments))
	for _, f := range parent.Fragments {
		if removed[f.ID] {
			continue
		}
		if delta, ok := req.DeletionDeltas[f.ID]; ok {
			existing, err := m.store.ReadDeletionVector(ctx, f)
			if err != nil {
				return nil, err
			}
			union := existing.Union(delta)
			key, data, err := store.StageDeletionVector(union)
			if err != nil {
				return nil, err
			}
			if err := m.store.Object().Put(ctx, key, data); err != nil {
				return nil, err
			}
			f.DVRef = key
		}
		fragments = append(fragments, f)
	}
	for _, wf := range req.NewFragments {
		fragments = append(fragments, wf.Ref)
	}

	dropNames := make(map[string]bool, len(req.DropIndexNames)+1)
	for _, n := range req.DropIndexNames {
		dropNames[n] = true
	}
	if req.DropIndexName != "" {
		dropNames[req.DropIndexName] = true
	}

	indices := make([]store.IndexCatalogEntry, 0, len(parent.Indices)+1)
	for _, idx := range parent.Indices {
		if dropNames[idx.Name] {
			continue
		}
		if req.AddIndex != nil && idx.Name == req.AddIndex.Name {
			continue // replaced below
		}
		indices = append(indices, idx)
	}
	if req.AddIndex != nil {
		indices = append(indices, *req.AddIndex)
	}

	schemaSnap := parent.Schema
	if req.SchemaChange != nil {
		schemaSnap = store.SnapshotSchema(req.SchemaChange)
	}

	newVersion := latest + 1
	parentVersion := latest
	man := store.NewManifest(newVersion, &parentVersion, schemaSnap, fragments, indices, req.Message)
	man.MutatedUUIDs = req.MutatedUUIDs
	return man, nil
}

// stageFiles writes every fragment/blob file in req via PutIfAbsent and
// treats a ConflictErr (the key already exists) as success. Column chunk
// names are content-hashed, so an existing chunk holds identical content;
// the blob file is named by fragment id, and an existing blob file at
// that key is kept as it is.
func (m *Manager) stageFiles(ctx context.Context, req Request) error {
	obj := m.store.Object()
	for _, wf := range req.NewFragments {
		for key, data := range wf.ColumnData {
			if err := putIdempotent(ctx, obj, key, data); err != nil {
				return err
			}
		}
		if len(wf.BlobData) > 0 {
			if err := putIdempotent(ctx, obj, wf.Ref.BlobRef, wf.BlobData); err != nil {
				return err
			}
		}
	}
	return nil
}

func putIdempotent(ctx context.Context, obj objectstore.Store, key string, data []byte) error {
	err := obj.PutIfAbsent(ctx, key, data)
	if err != nil && contextframe.IsConflict(err) {
		return nil
	}
	return err
}

// CommitWithRetry re-invokes build against the current latest version
// until it commits or maxRetries is exhausted, backing off between
// attempts (spec §4.4's "the other must retry against the new base
// version"). build receives the base version to stage its fragments
// and mutated-uuid set against.
func (m *Manager) CommitWithRetry(ctx context.Context, maxRetries int, build func(ctx context.Context, base int64) (Request, error)) (int64, error) {
	for attempt := 0; ; attempt++ {
		base, err := m.store.LatestVersion(ctx)
		if err != nil {
			return 0, err
		}
		req, err := build(ctx, base)
		if err != nil {
			return 0, err
		}
		version, err := m.Commit(ctx, base, req)
		if err == nil {
			return version, nil
		}
		if !contextframe.IsConflict(err) || attempt >= maxRetries {
			return 0, err
		}
		m.log.WithFields(cflog.Fields{"attempt": attempt}).Warn("commit conflict, retrying")
		select {
		case <-ctx.Done():
			return 0, contextframe.Wrap(contextframe.CancelledErr, ctx.Err(), "commit retry cancelled")
		case <-time.After(util.DefaultBackoff(float64(10*time.Millisecond), float64(time.Second), attempt)):
		}
	}
}
