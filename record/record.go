// Package record implements the in-memory document model: typed fields,
// relationships, a chainable builder, and total/deterministic validation.
// The one check that needs the dataset's embed_dim (vector length) reaches
// it through the SchemaChecker interface, which schema.Registry
// satisfies; no other check consults the schema.
package record

import (
	"crypto/rand"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/contextframe/contextframe"
	"github.com/contextframe/contextframe/internal/uuid"
)

// RecordType enumerates the closed set of record kinds a Record may carry.
type RecordType string

const (
	TypeDocument        RecordType = "document"
	TypeCollectionHeader RecordType = "collection_header"
	TypeDatasetHeader    RecordType = "dataset_header"
	TypeFrameset         RecordType = "frameset"
)

func validRecordTypes() map[RecordType]bool {
	return map[RecordType]bool{
		TypeDocument:         true,
		TypeCollectionHeader: true,
		TypeDatasetHeader:    true,
		TypeFrameset:         true,
	}
}

// RelationshipType enumerates the closed set of relationship kinds.
type RelationshipType string

const (
	RelParent    RelationshipType = "parent"
	RelChild     RelationshipType = "child"
	RelRelated   RelationshipType = "related"
	RelReference RelationshipType = "reference"
	RelContains  RelationshipType = "contains"
	RelMemberOf  RelationshipType = "member_of"
)

func validRelationshipTypes() map[RelationshipType]bool {
	return map[RelationshipType]bool{
		RelParent:    true,
		RelChild:     true,
		RelRelated:   true,
		RelReference: true,
		RelContains:  true,
		RelMemberOf:  true,
	}
}

// Relationship is an ordered tuple {type, target} where target is exactly
// one of UUID, URI, Path, or CID. Title/Description are optional.
type Relationship struct {
	Type        RelationshipType
	UUID        string
	URI         string
	Path        string
	CID         string
	Title       string
	Description string
}

// targetCount returns how many of the exclusive target identifier fields
// are set. A valid Relationship has exactly one.
func (r Relationship) targetCount() int {
	n := 0
	if r.UUID != "" {
		n++
	}
	if r.URI != "" {
		n++
	}
	if r.Path != "" {
		n++
	}
	if r.CID != "" {
		n++
	}
	return n
}

func (r Relationship) clone() Relationship {
	return r
}

// Record is the atomic document unit (spec §3.1). Zero value is not
// usable directly; construct with New.
type Record struct {
	UUID      string
	Title     string
	TextContent string
	Vector    []float32

	CreatedAt string
	UpdatedAt string

	Version string
	Author  string
	Status  string

	Tags         []string
	Contributors []string

	RecordType RecordType

	Collection         string
	CollectionID       string
	CollectionPosition int64
	hasCollectionPos   bool

	CustomMetadata map[string]string

	Relationships []Relationship

	RawData     []byte
	RawDataType string

	Context map[string]string
}

// nowISO8601 returns the current time formatted as an ISO-8601 / RFC-3339
// timestamp, the textual form stored for created_at/updated_at.
func nowISO8601() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// New returns a Record with a freshly generated v4 UUID and
// created_at == updated_at == now, defaulting RecordType to "document".
// It fails validation-style (ValidationError) only on the title-required
// invariant; callers should still run Validate before committing since
// other invariants (vector length, custom_metadata types) may also fail.
func New(title string) (*Record, error) {
	if strings.TrimSpace(title) == "" {
		return nil, contextframe.NewValidationError([]string{"title must not be empty"})
	}
	id, err := uuid.New(rand.Reader)
	if err != nil {
		return nil, contextframe.Wrap(contextframe.InternalErr, err, "generating record uuid")
	}
	now := nowISO8601()
	return &Record{
		UUID:       id,
		Title:      title,
		CreatedAt:  now,
		UpdatedAt:  now,
		RecordType: TypeDocument,
	}, nil
}

// AddRelationship appends a relationship after validating its shape. It
// does not check referential integrity (spec §3.2: not enforced at write
// time).
func (r *Record) AddRelationship(rel Relationship) error {
	if !validRelationshipTypes()[rel.Type] {
		return contextframe.NewValidationError([]string{
			fmt.Sprintf("relationship type %q is not one of the enumerated kinds", rel.Type),
		})
	}
	switch rel.targetCount() {
	case 1:
		// exactly one identifier kind set; ok
	case 0:
		return contextframe.NewValidationError([]string{"relationship has no target identifier"})
	default:
		return contextframe.NewValidationError([]string{"relationship has more than one target identifier kind"})
	}
	r.Relationships = append(r.Relationships, rel)
	return nil
}

// Touch refreshes UpdatedAt to now. Used by update transactions to mirror
// spec §4.4's "new record's updated_at refreshes" rule.
func (r *Record) Touch() {
	r.UpdatedAt = nowISO8601()
}

// Clone returns a deep copy of r; slices and maps are independently
// owned so mutating the clone never affects r.
func (r *Record) Clone() *Record {
	cp := *r
	if r.Vector != nil {
		cp.Vector = append([]float32(nil), r.Vector...)
	}
	if r.Tags != nil {
		cp.Tags = append([]string(nil), r.Tags...)
	}
	if r.Contributors != nil {
		cp.Contributors = append([]string(nil), r.Contributors...)
	}
	if r.CustomMetadata != nil {
		m := make(map[string]string, len(r.CustomMetadata))
		for k, v := range r.CustomMetadata {
			m[k] = v
		}
		cp.CustomMetadata = m
	}
	if r.Relationships != nil {
		rels := make([]Relationship, len(r.Relationships))
		for i, rel := range r.Relationships {
			rels[i] = rel.clone()
		}
		cp.Relationships = rels
	}
	if r.RawData != nil {
		cp.RawData = append([]byte(nil), r.RawData...)
	}
	if r.Context != nil {
		m := make(map[string]string, len(r.Context))
		for k, v := range r.Context {
			m[k] = v
		}
		cp.Context = m
	}
	return &cp
}

// SetContextJSON stores jsonValue, which the caller has already
// serialized to JSON, under key in the auxiliary context map (§3.1).
// The value is stored as given; it is neither marshaled nor checked.
func (r *Record) SetContextJSON(key, jsonValue string) {
	if r.Context == nil {
		r.Context = map[string]string{}
	}
	r.Context[key] = jsonValue
}

// SchemaChecker is satisfied by schema.Registry; Record validation that
// requires knowledge of embed_dim is delegated through this narrow
// interface to avoid an import cycle between record and schema.
type SchemaChecker interface {
	EmbedDim() int
}

// Validate runs every invariant from spec §3.1 that can be checked
// without a schema (schemaless invariants) plus, when checker is
// non-nil, the embed_dim length check. Validation is total: every
// violation is collected and returned together, never short-circuited.
func (r *Record) Validate(checker SchemaChecker) error {
	var violations []string

	if strings.TrimSpace(r.UUID) == "" {
		violations = append(violations, "uuid must not be empty")
	}
	if strings.TrimSpace(r.Title) == "" {
		violations = append(violations, "title must not be empty")
	}
	if strings.TrimSpace(r.CreatedAt) == "" {
		violations = append(violations, "created_at must not be empty")
	} else if _, err := time.Parse(time.RFC3339, r.CreatedAt); err != nil {
		violations = append(violations, "created_at is not a valid ISO-8601 timestamp")
	}
	if strings.TrimSpace(r.UpdatedAt) == "" {
		violations = append(violations, "updated_at must not be empty")
	} else if _, err := time.Parse(time.RFC3339, r.UpdatedAt); err != nil {
		violations = append(violations, "updated_at is not a valid ISO-8601 timestamp")
	}

	if r.RecordType == "" {
		r.RecordType = TypeDocument
	} else if !validRecordTypes()[r.RecordType] {
		violations = append(violations, fmt.Sprintf("record_type %q is not a valid enum value", r.RecordType))
	}

	if checker != nil && r.Vector != nil {
		if d := checker.EmbedDim(); d > 0 && len(r.Vector) != d {
			violations = append(violations, fmt.Sprintf("vector length %d does not match dataset embed_dim %d", len(r.Vector), d))
		}
	}

	if r.RawData != nil && strings.TrimSpace(r.RawDataType) == "" {
		violations = append(violations, "raw_data_type is required when raw_data is present")
	}
	if r.RawData == nil && r.RawDataType != "" {
		violations = append(violations, "raw_data_type must not be set without raw_data")
	}

	for k, v := range r.CustomMetadata {
		if !utf8.ValidString(v) {
			violations = append(violations, fmt.Sprintf("custom_metadata[%q] is not valid UTF-8", k))
		}
	}

	for i, rel := range r.Relationships {
		if !validRelationshipTypes()[rel.Type] {
			violations = append(violations, fmt.Sprintf("relationships[%d].type %q is not one of the enumerated kinds", i, rel.Type))
		}
		switch rel.targetCount() {
		case 1:
		case 0:
			violations = append(violations, fmt.Sprintf("relationships[%d] has no target identifier", i))
		default:
			violations = append(violations, fmt.Sprintf("relationships[%d] has more than one target identifier kind", i))
		}
	}

	if len(violations) == 0 {
		return nil
	}
	sort.Strings(violations)
	return contextframe.NewValidationError(violations)
}
