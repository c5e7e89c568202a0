package store

import (
	"context"
	"sort"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/contextframe/contextframe"
	"github.com/contextframe/contextframe/store/objectstore"
)

// Store is the columnar store's handle onto one object-store root: it
// resolves manifests, fetches fragment/deletion-vector bytes, and caches
// decoded column pages across readers (spec §5's shared index/page
// cache; here generalized to any decoded column page, not just vector
// index pages).
type Store struct {
	obj   objectstore.Store
	cache *lru.Cache[string, []interface{}]
}

// Open returns a Store backed by obj, with a page cache sized for
// cacheEntries decoded columns.
func Open(obj objectstore.Store, cacheEntries int) (*Store, error) {
	if cacheEntries <= 0 {
		cacheEntries = 256
	}
	c, err := lru.New[string, []interface{}](cacheEntries)
	if err != nil {
		return nil, contextframe.Wrap(contextframe.InternalErr, err, "constructing page cache")
	}
	return &Store{obj: obj, cache: c}, nil
}

// Object returns the underlying object-store, for callers (txn.Manager)
// that need to stage/commit files directly.
func (s *Store) Object() objectstore.Store {
	return s.obj
}

// LatestVersion scans manifest/ for the highest committed V_k. Returns
// NotFoundErr if the dataset has never been created.
func (s *Store) LatestVersion(ctx context.Context) (int64, error) {
	keys, err := s.obj.ListPrefix(ctx, "manifest/V_")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, contextframe.NewError(contextframe.NotFoundErr, "no manifests found")
	}
	best := int64(-1)
	for _, k := range keys {
		v, ok := parseManifestVersion(k)
		if ok && v > best {
			best = v
		}
	}
	if best < 0 {
		return 0, contextframe.NewError(contextframe.NotFoundErr, "no manifests found")
	}
	return best, nil
}

// Versions returns every committed version number, ascending.
func (s *Store) Versions(ctx context.Context) ([]int64, error) {
	keys, err := s.obj.ListPrefix(ctx, "manifest/V_")
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(keys))
	for _, k := range keys {
		if v, ok := parseManifestVersion(k); ok {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func parseManifestVersion(key string) (int64, bool) {
	base := key
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimPrefix(base, "V_")
	base = strings.TrimSuffix(base, ".json")
	v, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ReadManifest fetches and parses the manifest for version.
func (s *Store) ReadManifest(ctx context.Context, version int64) (*Manifest, error) {
	data, err := s.obj.GetRange(ctx, ManifestKey(version), 0, -1)
	if err != nil {
		return nil, err
	}
	return DecodeManifest(data)
}

// cacheKey identifies a decoded column page.
func cacheKey(fragmentID int64, col string) string {
	return itoa(fragmentID) + "/" + col
}

// ReadColumnCached is ReadColumn with an LRU decode cache in front of
// it, keyed by (fragment, column): fragment files are immutable once
// committed, so a decoded page never goes stale. decode is invoked only
// on a cache miss.
func (s *Store) ReadColumnCached(fragmentID int64, colName string, decode func() ([]interface{}, error)) ([]interface{}, error) {
	key := cacheKey(fragmentID, colName)
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}
	values, err := decode()
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, values)
	return values, nil
}

// ReadDeletionVector fetches and decodes the effective deletion vector
// for a fragment ref (its dv_ref, or an empty vector if the fragment has
// never had a deletion).
func (s *Store) ReadDeletionVector(ctx context.Context, ref FragmentRef) (*DeletionVector, error) {
	if ref.DVRef == "" {
		return NewDeletionVector(), nil
	}
	data, err := s.obj.GetRange(ctx, ref.DVRef, 0, -1)
	if err != nil {
		return nil, err
	}
	return DecodeDeletionVector(data)
}

// StagingKeyFor returns a content-addressed staging key for data so
// concurrent writers proposing different content for the same manifest
// version never share a key (spec §4.4 step 2: "stage new files with
// content-hashed names in a temp subdirectory").
func StagingKeyFor(data []byte) string {
	return "staging/" + contentHash(data) + ".json"
}

// StageDeletionVector encodes dv and returns its content-hashed key and
// bytes, for the caller to stage alongside a new manifest.
func StageDeletionVector(dv *DeletionVector) (key string, data []byte, err error) {
	data, err = dv.Encode()
	if err != nil {
		return "", nil, err
	}
	key = "deletions/" + contentHash(data) + ".dv"
	return key, data, nil
}
