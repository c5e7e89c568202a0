package store

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/contextframe/contextframe"
	"github.com/contextframe/contextframe/schema"
	"github.com/contextframe/contextframe/util"
)

// FragmentRef names one fragment's files as recorded in a manifest (spec
// §4.3/§6.3).
type FragmentRef struct {
	ID      int64             `json:"id"`
	Rows    int64             `json:"rows"`
	Columns map[string]string `json:"columns"` // column name -> content-hashed file key
	BlobRef string            `json:"blob_ref,omitempty"`
	DVRef   string            `json:"dv_ref,omitempty"`
}

// IndexCatalogEntry describes one index valid as of a manifest version
// (spec §4.6/§6.3).
type IndexCatalogEntry struct {
	Name              string   `json:"name"`
	Kind              string   `json:"kind"`
	Column            string   `json:"column"`
	Params            string   `json:"params,omitempty"` // JSON-encoded params blob
	Files             []string `json:"files"`
	ValidForFragments []int64  `json:"valid_for_fragments"`
}

// SchemaSnapshot is the JSON-serializable projection of schema.Registry
// embedded in each manifest.
type SchemaSnapshot struct {
	EmbedDim int                        `json:"embed_dim"`
	Columns  []SchemaSnapshotColumn     `json:"columns"`
	Aliases  map[string]string          `json:"aliases,omitempty"`
}

// SchemaSnapshotColumn is the JSON-serializable projection of a single
// schema.Column.
type SchemaSnapshotColumn struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	FixedWidth int    `json:"fixed_width,omitempty"`
	BlobHint   bool   `json:"blob_hint,omitempty"`
	Dropped    bool   `json:"dropped,omitempty"`
}

// SnapshotSchema converts a live Registry into its manifest-embeddable
// form.
func SnapshotSchema(r *schema.Registry) SchemaSnapshot {
	cols := r.Columns()
	out := SchemaSnapshot{EmbedDim: r.EmbedDim(), Aliases: r.Aliases()}
	for _, c := range cols {
		out.Columns = append(out.Columns, SchemaSnapshotColumn{
			Name:       c.Name,
			Type:       c.Type.String(),
			Nullable:   c.Nullable,
			FixedWidth: c.FixedWidth,
			BlobHint:   c.BlobHint,
			Dropped:    c.Dropped,
		})
	}
	return out
}

// Manifest is the JSON document naming one committed snapshot version
// (spec §4.3/§6.3). Manifests are immutable once written; a new version
// is always a new file.
type Manifest struct {
	Version   int64               `json:"version"`
	Parent    *int64              `json:"parent"`
	Schema    SchemaSnapshot      `json:"schema"`
	Fragments []FragmentRef       `json:"fragments"`
	Indices   []IndexCatalogEntry `json:"indices"`
	CreatedAt string              `json:"created_at"`
	Message   string              `json:"message"`

	// MutatedUUIDs lists every uuid this commit deleted or updated, the
	// basis for the record-level conflict rule (spec §4.4): two commits
	// conflict iff both touch a common uuid. Append-only commits leave
	// this empty and therefore never conflict.
	MutatedUUIDs []string `json:"mutated_uuids,omitempty"`
}

// ManifestKey returns the object-store key for version v.
func ManifestKey(v int64) string {
	return manifestKeyOf(v)
}

func manifestKeyOf(v int64) string {
	return "manifest/V_" + itoa(v) + ".json"
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// SchemaRegistry reconstructs the live schema.Registry m's snapshot
// describes, so a reopened dataset evolves the same registry its writers
// left off on rather than starting over from schema.NewDefault.
func (m *Manifest) SchemaRegistry() *schema.Registry {
	cols := make([]schema.Column, len(m.Schema.Columns))
	for i, c := range m.Schema.Columns {
		cols[i] = schema.Column{
			Name:       c.Name,
			Type:       columnTypeFromString(c.Type),
			Nullable:   c.Nullable,
			FixedWidth: c.FixedWidth,
			BlobHint:   c.BlobHint,
			Dropped:    c.Dropped,
		}
	}
	return schema.FromColumns(m.Schema.EmbedDim, cols, m.Schema.Aliases)
}

func columnTypeFromString(s string) schema.ColumnType {
	switch s {
	case "utf8":
		return schema.Utf8
	case "int64":
		return schema.Int64
	case "float32":
		return schema.Float32
	case "bool":
		return schema.Bool
	case "fixed_float32_list":
		return schema.FixedFloat32List
	case "var_struct_list":
		return schema.VarStructList
	case "opaque_binary":
		return schema.OpaqueBinary
	default:
		return schema.Utf8
	}
}

// NewManifest constructs the manifest for the first commit after parent,
// stamped with the current time.
func NewManifest(version int64, parent *int64, schemaSnapshot SchemaSnapshot, fragments []FragmentRef, indices []IndexCatalogEntry, message string) *Manifest {
	return &Manifest{
		Version:   version,
		Parent:    parent,
		Schema:    schemaSnapshot,
		Fragments: fragments,
		Indices:   indices,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Message:   message,
	}
}

// WithMutatedUUIDs sets the conflict-detection uuid set and returns m
// for chaining.
func (m *Manifest) WithMutatedUUIDs(uuids []string) *Manifest {
	m.MutatedUUIDs = uuids
	return m
}

// Encode serializes the manifest to its canonical JSON form.
func (m *Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, contextframe.Wrap(contextframe.IOErr, err, "encoding manifest")
	}
	return buf.Bytes(), nil
}

// DecodeManifest parses manifest JSON using a json.Number-safe decoder so
// large row/version counters never round-trip through float64.
func DecodeManifest(data []byte) (*Manifest, error) {
	var raw struct {
		Version   json.Number         `json:"version"`
		Parent    *json.Number        `json:"parent"`
		Schema    SchemaSnapshot      `json:"schema"`
		Fragments []FragmentRef       `json:"fragments"`
		Indices   []IndexCatalogEntry `json:"indices"`
		CreatedAt string              `json:"created_at"`
		Message   string              `json:"message"`
		MutatedUUIDs []string         `json:"mutated_uuids,omitempty"`
	}
	if err := util.UnmarshalJSON(data, &raw); err != nil {
		return nil, contextframe.Wrap(contextframe.CorruptionErr, err, "decoding manifest")
	}
	version, err := raw.Version.Int64()
	if err != nil {
		return nil, contextframe.Wrap(contextframe.CorruptionErr, err, "parsing manifest version")
	}
	m := &Manifest{
		Version:      version,
		Schema:       raw.Schema,
		Fragments:    raw.Fragments,
		Indices:      raw.Indices,
		CreatedAt:    raw.CreatedAt,
		Message:      raw.Message,
		MutatedUUIDs: raw.MutatedUUIDs,
	}
	if raw.Parent != nil {
		p, err := raw.Parent.Int64()
		if err != nil {
			return nil, contextframe.Wrap(contextframe.CorruptionErr, err, "parsing manifest parent")
		}
		m.Parent = &p
	}
	return m, nil
}
