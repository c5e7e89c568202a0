// Package schema implements the declarative column registry (spec §4.2):
// the mapping from logical record field to physical storage type, dataset
// embed_dim, and the schema-evolution rules enforced on every commit that
// changes the column set.
package schema

import (
	"fmt"
	"sync"

	"github.com/contextframe/contextframe"
)

// ColumnType enumerates the storage types the columnar store understands.
type ColumnType int

const (
	// Utf8 is a scalar UTF-8 string column.
	Utf8 ColumnType = iota
	// Int64 is a scalar signed 64-bit integer column.
	Int64
	// Float32 is a scalar 32-bit float column.
	Float32
	// Bool is a scalar boolean column.
	Bool
	// FixedFloat32List is a fixed-width list of float32 (the vector column).
	FixedFloat32List
	// VarStructList is a variable-length list of struct (relationships,
	// custom_metadata as key/value pairs).
	VarStructList
	// OpaqueBinary is opaque byte content with a blob-side-store hint
	// (raw_data).
	OpaqueBinary
)

func (t ColumnType) String() string {
	switch t {
	case Utf8:
		return "utf8"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Bool:
		return "bool"
	case FixedFloat32List:
		return "fixed_float32_list"
	case VarStructList:
		return "var_struct_list"
	case OpaqueBinary:
		return "opaque_binary"
	default:
		return "unknown"
	}
}

// Column describes one logical field's physical representation.
type Column struct {
	Name       string
	Type       ColumnType
	Nullable   bool
	FixedWidth int // meaningful only for FixedFloat32List (== embed_dim)
	BlobHint   bool
	// Dropped marks a column removed by schema evolution; it is kept
	// metadata-only until physically removed by compaction (spec §4.2).
	Dropped bool
}

// Registry holds the field→storage-type table, the alias table produced
// by renames, and the dataset-wide embed_dim. A Registry is the schema
// snapshot embedded in each manifest (spec §4.3).
type Registry struct {
	mu        sync.RWMutex
	embedDim  int
	columns   map[string]*Column
	order     []string          // insertion order, for deterministic manifest output
	aliases   map[string]string // alias name -> canonical name
	vectorSet bool              // true once any vector has been written; freezes embed_dim
}

// NewDefault returns the Registry for the standard Record fields (spec
// §3.1/§4.2), with embedDim fixing the width of the vector column.
func NewDefault(embedDim int) *Registry {
	r := &Registry{
		embedDim: embedDim,
		columns:  map[string]*Column{},
		aliases:  map[string]string{},
	}
	add := func(name string, t ColumnType, nullable bool) {
		r.columns[name] = &Column{Name: name, Type: t, Nullable: nullable}
		r.order = append(r.order, name)
	}
	add("uuid", Utf8, false)
	add("title", Utf8, false)
	add("text_content", Utf8, true)
	add("vector", FixedFloat32List, true)
	r.columns["vector"].FixedWidth = embedDim
	add("created_at", Utf8, false)
	add("updated_at", Utf8, false)
	add("version", Utf8, true)
	add("author", Utf8, true)
	add("status", Utf8, true)
	add("tags", VarStructList, true)
	add("contributors", VarStructList, true)
	add("record_type", Utf8, true)
	add("collection", Utf8, true)
	add("collection_id", Utf8, true)
	add("collection_position", Int64, true)
	add("custom_metadata", VarStructList, true)
	add("relationships", VarStructList, true)
	add("raw_data", OpaqueBinary, true)
	r.columns["raw_data"].BlobHint = true
	add("raw_data_type", Utf8, true)
	add("context", VarStructList, true)
	return r
}

// FromColumns reconstructs a Registry from a flat column list and alias
// table, as recovered from a manifest's embedded schema snapshot
// (spec §6.3). Dropped columns are preserved so DropColumn's
// metadata-only contract survives a reopen.
func FromColumns(embedDim int, cols []Column, aliases map[string]string) *Registry {
	r := &Registry{
		embedDim:  embedDim,
		vectorSet: true, // reopened registries treat embed_dim as already committed
		columns:   make(map[string]*Column, len(cols)),
		aliases:   make(map[string]string, len(aliases)),
	}
	for _, c := range cols {
		cp := c
		r.columns[cp.Name] = &cp
		r.order = append(r.order, cp.Name)
	}
	for k, v := range aliases {
		r.aliases[k] = v
	}
	return r
}

// EmbedDim satisfies record.SchemaChecker.
func (r *Registry) EmbedDim() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.embedDim
}

// MarkVectorWritten freezes embed_dim: once any vector has been
// committed, ChangeEmbedDim becomes illegal (spec §4.2).
func (r *Registry) MarkVectorWritten() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectorSet = true
}

// ChangeEmbedDim attempts to change the vector column's width. Forbidden
// once any vector has been written.
func (r *Registry) ChangeEmbedDim(newDim int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.vectorSet {
		return contextframe.NewError(contextframe.SchemaEvolutionErr,
			"embed_dim cannot change after a vector has been written (current=%d, requested=%d)", r.embedDim, newDim)
	}
	r.embedDim = newDim
	if c, ok := r.columns["vector"]; ok {
		c.FixedWidth = newDim
	}
	return nil
}

// resolve follows the alias table to a canonical column name. Caller
// must hold r.mu.
func (r *Registry) resolve(name string) string {
	if canon, ok := r.aliases[name]; ok {
		return canon
	}
	return name
}

// Column returns the column descriptor for name (following aliases), or
// NotFoundErr if it does not exist (or was dropped).
func (r *Registry) Column(name string) (*Column, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.columns[r.resolve(name)]
	if !ok || c.Dropped {
		return nil, contextframe.NewError(contextframe.NotFoundErr, "column %q not found", name)
	}
	return c, nil
}

// AddColumn adds a new nullable column. Non-nullable additions are
// rejected: older fragments have no way to backfill a required value
// for rows that predate the column (spec §4.2).
func (r *Registry) AddColumn(name string, t ColumnType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.columns[name]; exists {
		return contextframe.NewError(contextframe.SchemaEvolutionErr, "column %q already exists", name)
	}
	r.columns[name] = &Column{Name: name, Type: t, Nullable: true}
	r.order = append(r.order, name)
	return nil
}

// DropColumn marks a column dropped. This is metadata-only; physical
// removal happens on compaction (spec §4.2).
func (r *Registry) DropColumn(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.columns[r.resolve(name)]
	if !ok {
		return contextframe.NewError(contextframe.NotFoundErr, "column %q not found", name)
	}
	c.Dropped = true
	return nil
}

// RenameColumn records oldName as an alias of newName, and both continue
// to resolve (spec §4.2). newName must already exist as a column, or be
// a fresh name that takes over oldName's descriptor.
func (r *Registry) RenameColumn(oldName, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	canonOld := r.resolve(oldName)
	c, ok := r.columns[canonOld]
	if !ok {
		return contextframe.NewError(contextframe.NotFoundErr, "column %q not found", oldName)
	}
	if _, exists := r.columns[newName]; !exists {
		renamed := *c
		renamed.Name = newName
		r.columns[newName] = &renamed
		r.order = append(r.order, newName)
	}
	r.aliases[oldName] = newName
	r.aliases[canonOld] = newName
	return nil
}

// Columns returns the live (non-dropped) columns in declaration order.
func (r *Registry) Columns() []*Column {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Column, 0, len(r.order))
	for _, name := range r.order {
		if c, ok := r.columns[name]; ok && !c.Dropped {
			out = append(out, c)
		}
	}
	return out
}

// Aliases returns a copy of the alias table, for manifest serialization.
func (r *Registry) Aliases() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.aliases))
	for k, v := range r.aliases {
		out[k] = v
	}
	return out
}

// Clone returns a deep, independently-mutable copy of the registry, used
// when staging schema evolution inside a transaction before commit.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := &Registry{
		embedDim:  r.embedDim,
		vectorSet: r.vectorSet,
		columns:   make(map[string]*Column, len(r.columns)),
		order:     append([]string(nil), r.order...),
		aliases:   make(map[string]string, len(r.aliases)),
	}
	for k, v := range r.columns {
		cp := *v
		out.columns[k] = &cp
	}
	for k, v := range r.aliases {
		out.aliases[k] = v
	}
	return out
}

// String renders a compact human-readable summary, used in logs and
// debug output.
func (r *Registry) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("schema(embed_dim=%d, columns=%d, aliases=%d)", r.embedDim, len(r.columns), len(r.aliases))
}
