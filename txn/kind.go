// Package txn implements the transaction manager (spec §4.4): atomic
// commit of append/delete/update/upsert/index/compact/tag operations via
// manifest-rename, record-level conflict detection, and retry-with-backoff.
package txn

// Kind enumerates the transaction kinds the manager commits (spec §4.4).
type Kind string

const (
	Append      Kind = "append"
	Delete      Kind = "delete"
	Update      Kind = "update"
	Upsert      Kind = "upsert"
	CreateIndex Kind = "create_index"
	DropIndex   Kind = "drop_index"
	Compact     Kind = "compact"
	Tag         Kind = "tag"
	Untag       Kind = "untag"
)
