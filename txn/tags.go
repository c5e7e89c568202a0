package txn

import (
	"context"
	"strconv"
	"strings"

	"github.com/contextframe/contextframe"
)

// tagPrefix is the object-store directory tags live under (spec §4.3's
// layout: "tags/ <tag_name> file containing a version number").
const tagPrefix = "tags/"

// Tags manages the git-like version labels described in spec §4.9's table
// ("tag(name, version?) / untag(name): auxiliary, does not create a
// version"). Tag updates are last-writer-wins (spec §5) and are written
// directly via Put rather than through Manager.Commit, since they never
// advance the manifest chain.
type Tags struct {
	store *Manager
}

// NewTags returns a Tags manager sharing m's object store.
func NewTags(m *Manager) *Tags {
	return &Tags{store: m}
}

// Create points name at version, overwriting any prior value for name.
func (t *Tags) Create(ctx context.Context, name string, version int64) error {
	if name == "" {
		return contextframe.NewError(contextframe.ValidationErr, "tag name must not be empty")
	}
	return t.store.store.Object().Put(ctx, tagKey(name), []byte(strconv.FormatInt(version, 10)))
}

// Update retargets an existing tag to version; semantically identical to
// Create (last-writer-wins), kept distinct to mirror the spec's separate
// "update" verb in the dataset-facing API.
func (t *Tags) Update(ctx context.Context, name string, version int64) error {
	return t.Create(ctx, name, version)
}

// Delete removes a tag. Not an error if name was never tagged.
func (t *Tags) Delete(ctx context.Context, name string) error {
	return t.store.store.Object().Delete(ctx, tagKey(name))
}

// Get resolves a tag to its version, returning NotFoundErr if untagged.
func (t *Tags) Get(ctx context.Context, name string) (int64, error) {
	data, err := t.store.store.Object().GetRange(ctx, tagKey(name), 0, -1)
	if err != nil {
		return 0, err
	}
	v, parseErr := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if parseErr != nil {
		return 0, contextframe.Wrap(contextframe.CorruptionErr, parseErr, "parsing tag %q", name)
	}
	return v, nil
}

// List returns every tag name to the version it currently points at.
func (t *Tags) List(ctx context.Context) (map[string]int64, error) {
	keys, err := t.store.store.Object().ListPrefix(ctx, tagPrefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		name := strings.TrimPrefix(k, tagPrefix)
		v, err := t.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// ImmuneVersions returns the set of versions currently referenced by any
// tag (spec §4.9: "cleanup_versions ... Tagged versions are immune").
func (t *Tags) ImmuneVersions(ctx context.Context) (map[int64]bool, error) {
	tags, err := t.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(tags))
	for _, v := range tags {
		out[v] = true
	}
	return out, nil
}

func tagKey(name string) string {
	return tagPrefix + name
}
