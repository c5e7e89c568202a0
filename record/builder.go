package record

// Builder accumulates fields via chainable setters and produces a fully
// validated Record from Build. Mirrors the teacher's keyword-argument
// constructors, replaced with an explicit result value instead of panics
// (spec §9: "factory constructors and keyword-argument builders" become
// "a builder with chainable setters and a single build() that performs
// full validation, returning a flat error list").
type Builder struct {
	rec *Record
	err error
}

// NewBuilder starts a Builder, generating uuid/created_at/updated_at
// immediately the way New does.
func NewBuilder(title string) *Builder {
	rec, err := New(title)
	return &Builder{rec: rec, err: err}
}

func (b *Builder) WithTextContent(s string) *Builder {
	if b.rec != nil {
		b.rec.TextContent = s
	}
	return b
}

func (b *Builder) WithVector(v []float32) *Builder {
	if b.rec != nil {
		b.rec.Vector = v
	}
	return b
}

func (b *Builder) WithVersion(v string) *Builder {
	if b.rec != nil {
		b.rec.Version = v
	}
	return b
}

func (b *Builder) WithAuthor(author string) *Builder {
	if b.rec != nil {
		b.rec.Author = author
	}
	return b
}

func (b *Builder) WithStatus(status string) *Builder {
	if b.rec != nil {
		b.rec.Status = status
	}
	return b
}

func (b *Builder) WithTags(tags ...string) *Builder {
	if b.rec != nil {
		b.rec.Tags = tags
	}
	return b
}

func (b *Builder) WithContributors(contributors ...string) *Builder {
	if b.rec != nil {
		b.rec.Contributors = contributors
	}
	return b
}

func (b *Builder) WithRecordType(t RecordType) *Builder {
	if b.rec != nil {
		b.rec.RecordType = t
	}
	return b
}

func (b *Builder) WithCollection(collection, collectionID string, position int64) *Builder {
	if b.rec != nil {
		b.rec.Collection = collection
		b.rec.CollectionID = collectionID
		b.rec.CollectionPosition = position
		b.rec.hasCollectionPos = true
	}
	return b
}

func (b *Builder) WithCustomMetadata(m map[string]string) *Builder {
	if b.rec != nil {
		b.rec.CustomMetadata = m
	}
	return b
}

func (b *Builder) WithContext(m map[string]string) *Builder {
	if b.rec != nil {
		b.rec.Context = m
	}
	return b
}

func (b *Builder) WithRawData(data []byte, mimeType string) *Builder {
	if b.rec != nil {
		b.rec.RawData = data
		b.rec.RawDataType = mimeType
	}
	return b
}

func (b *Builder) WithRelationship(rel Relationship) *Builder {
	if b.rec != nil && b.err == nil {
		b.err = b.rec.AddRelationship(rel)
	}
	return b
}

// Build returns the first construction or relationship error if one
// occurred; otherwise it runs full validation and returns the Record or
// the ValidationError listing every violation.
func (b *Builder) Build(checker SchemaChecker) (*Record, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.rec.Validate(checker); err != nil {
		return nil, err
	}
	return b.rec, nil
}
