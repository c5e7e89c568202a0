package txn

import (
	"github.com/contextframe/contextframe/schema"
	"github.com/contextframe/contextframe/store"
)

// FragmentWrite is one new fragment staged as part of a commit: the
// manifest ref plus the raw bytes every file the commit must persist.
type FragmentWrite = store.WrittenFragment

// Request describes one proposed transaction. Built fresh against the
// current base version by the caller (dataset/maintenance packages);
// Manager.CommitWithRetry re-invokes a builder function to rebuild a
// Request against a newer base after a conflict.
type Request struct {
	Kind    Kind
	Message string

	// MutatedUUIDs lists every uuid this commit deletes or updates.
	// Leave nil/empty for append-only commits, which never conflict
	// (spec §4.4).
	MutatedUUIDs []string

	// NewFragments are staged fragment files to add to the manifest.
	NewFragments []*FragmentWrite

	// RemoveFragmentIDs lists fragments fully superseded by this commit
	// (compaction).
	RemoveFragmentIDs []int64

	// DeletionDeltas maps an existing fragment id to a deletion-vector
	// delta to union into its effective dv_ref.
	DeletionDeltas map[int64]*store.DeletionVector

	// SchemaChange, if non-nil, replaces the manifest's schema snapshot.
	SchemaChange *schema.Registry

	// AddIndex, if non-nil, appends/replaces a catalog entry.
	AddIndex *store.IndexCatalogEntry

	// DropIndexName, if set, removes a catalog entry by name.
	DropIndexName string

	// DropIndexNames removes every catalog entry named here, in addition
	// to DropIndexName. Used by maintenance.MergeIndexDeltas to retire an
	// arbitrary number of per-fragment delta entries in one commit.
	DropIndexNames []string
}
