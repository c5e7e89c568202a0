package dataset

import (
	"context"
	"time"

	"github.com/contextframe/contextframe"
	cflog "github.com/contextframe/contextframe/log"
	"github.com/contextframe/contextframe/metrics"
	"github.com/contextframe/contextframe/query"
	"github.com/contextframe/contextframe/relate"
	"github.com/contextframe/contextframe/scalarindex"
	"github.com/contextframe/contextframe/schema"
	"github.com/contextframe/contextframe/store"
	"github.com/contextframe/contextframe/store/objectstore"
	"github.com/contextframe/contextframe/txn"
	"github.com/contextframe/contextframe/vectorindex"

	"github.com/contextframe/contextframe/internal/workpool"
)

// Dataset is one opened snapshot of a dataset root: a fixed manifest
// version plus the in-memory scalar/vector/FTS index catalogs rebuilt
// from that version's IndexCatalogEntry list (spec §6.2). Dataset is not
// safe for concurrent mutation from multiple goroutines; concurrent
// reads are fine.
type Dataset struct {
	uri  string
	obj  objectstore.Store
	st   *store.Store
	mgr  *txn.Manager
	tags *txn.Tags
	pool *workpool.Pool
	opts Options

	version  int64
	manifest *store.Manifest
	reg      *schema.Registry

	catalog    *scalarindex.Catalog
	vecIndexes map[string]*vectorindex.Index
	ftsIndexes map[string]*scalarindex.FTSIndex
	ftsColumns map[string][]string // index name -> columns it spans
	bindings   []query.IndexBinding
	planner    *query.Planner
	relate     *relate.Index
}

// OpenOptions selects which version of a dataset root to open. At most
// one of Version/Tag/AsOf should be set; all empty means "latest".
type OpenOptions struct {
	Version *int64
	Tag     string
	AsOf    *time.Time
}

// Create initializes a brand-new dataset root at uri (a local directory;
// spec §6.4's other backends are not implemented, see DESIGN.md) with
// embedDim fixing the vector column's width, and returns it opened at
// its first (empty) version.
func Create(ctx context.Context, uri string, embedDim int, opts Options) (*Dataset, error) {
	opts = opts.withDefaults()
	obj, err := objectstore.NewLocalFS(uri)
	if err != nil {
		return nil, err
	}
	reg := schema.NewDefault(embedDim)
	man := store.NewManifest(0, nil, store.SnapshotSchema(reg), nil, nil, "create")
	data, err := man.Encode()
	if err != nil {
		return nil, err
	}
	if err := obj.PutIfAbsent(ctx, store.ManifestKey(0), data); err != nil {
		return nil, contextframe.Wrap(contextframe.ConflictErr, err, "dataset already exists at %q", uri)
	}
	return Open(ctx, uri, OpenOptions{}, opts)
}

// Open opens an existing dataset root at uri, checked out at the version
// OpenOptions names (default: latest).
func Open(ctx context.Context, uri string, open OpenOptions, opts Options) (*Dataset, error) {
	opts = opts.withDefaults()
	setGOMAXPROCS(opts.Logger)
	opts = opts.withConcurrencyDefault()

	obj, err := objectstore.NewLocalFS(uri)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(obj, opts.CacheEntries)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		uri:  uri,
		obj:  obj,
		st:   st,
		mgr:  txn.New(st, uri, opts.Logger, opts.Metrics),
		pool: workpool.New(opts.Concurrency),
		opts: opts,
	}
	ds.tags = txn.NewTags(ds.mgr)

	version, err := ds.resolveVersion(ctx, open)
	if err != nil {
		return nil, err
	}
	if err := ds.checkoutVersion(ctx, version); err != nil {
		return nil, err
	}
	return ds, nil
}

func (ds *Dataset) resolveVersion(ctx context.Context, open OpenOptions) (int64, error) {
	switch {
	case open.Version != nil:
		return *open.Version, nil
	case open.Tag != "":
		return ds.tags.Get(ctx, open.Tag)
	case open.AsOf != nil:
		return ds.versionAsOf(ctx, *open.AsOf)
	default:
		return ds.st.LatestVersion(ctx)
	}
}

// versionAsOf returns the latest version whose CreatedAt is <= asOf,
// spec §6.2's "open(... version|tag|as_of=timestamp)" clause.
func (ds *Dataset) versionAsOf(ctx context.Context, asOf time.Time) (int64, error) {
	versions, err := ds.st.Versions(ctx)
	if err != nil {
		return 0, err
	}
	var best int64 = -1
	for _, v := range versions {
		man, err := ds.st.ReadManifest(ctx, v)
		if err != nil {
			return 0, err
		}
		stamp, parseErr := time.Parse(time.RFC3339Nano, man.CreatedAt)
		if parseErr != nil || stamp.After(asOf) {
			continue
		}
		if v > best {
			best = v
		}
	}
	if best < 0 {
		return 0, contextframe.NewError(contextframe.NotFoundErr, "no version exists as of %s", asOf)
	}
	return best, nil
}

// checkoutVersion loads manifest version and rebuilds every in-memory
// index structure from its IndexCatalogEntry list.
func (ds *Dataset) checkoutVersion(ctx context.Context, version int64) error {
	manifest, err := ds.st.ReadManifest(ctx, version)
	if err != nil {
		return err
	}
	reg := manifest.SchemaRegistry()

	ds.version = version
	ds.manifest = manifest
	ds.reg = reg
	ds.catalog = scalarindex.NewCatalog()
	ds.vecIndexes = map[string]*vectorindex.Index{}
	ds.ftsIndexes = map[string]*scalarindex.FTSIndex{}
	ds.ftsColumns = map[string][]string{}
	ds.bindings = nil

	if err := ds.rebuildIndexes(ctx); err != nil {
		return err
	}
	ds.planner = query.NewPlanner(ds.catalog, ds.bindings)
	ds.relate = relate.New(ds.st, ds.reg, ds.manifest, ds.planner)
	return nil
}

// Close releases resources held by ds. The underlying object store and
// on-disk files are untouched; Close only drops in-process state.
func (ds *Dataset) Close() error {
	return nil
}

// Version returns the manifest version this handle is checked out at.
func (ds *Dataset) Version() int64 { return ds.version }

// Versions lists every manifest version still present in the dataset
// root (spec §6.2's versions()), ascending.
func (ds *Dataset) Versions(ctx context.Context) ([]int64, error) {
	return ds.st.Versions(ctx)
}

// Checkout returns a new Dataset handle fixed at the requested version
// (or tag), independent of ds and of any subsequent commits (spec §6.2's
// checkout(version|tag) -> Dataset; spec §8's snapshot isolation).
func (ds *Dataset) Checkout(ctx context.Context, open OpenOptions) (*Dataset, error) {
	return Open(ctx, ds.uri, open, ds.opts)
}

// Tags exposes the tag-management surface (spec §6.2's
// tags.{list,create,update,delete}).
func (ds *Dataset) Tags() *txn.Tags { return ds.tags }

func (ds *Dataset) registry() *schema.Registry { return ds.reg }

func (ds *Dataset) logger() cflog.Logger { return ds.opts.Logger }

func (ds *Dataset) metricsRegistry() *metrics.Registry { return ds.opts.Metrics }
