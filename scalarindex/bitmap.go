package scalarindex

import "github.com/contextframe/contextframe"

// BitmapIndex maps each distinct value of a low-cardinality scalar
// column (status, record_type, collection, ...) to the bitmap of row
// addresses holding it (spec §4.6's "bitmap" kind). Equality and IN
// predicates resolve to a single lookup (or union of lookups); an
// is-null predicate resolves to the reserved nullValue key. The value
// table is a util.HashMap (the teacher's generic hash-map) rather than a
// plain Go map, the same container this engine's other string-keyed
// index tables use.
type BitmapIndex struct {
	column string
	values *rowSetMap
}

const nullValue = "\x00__null__"

func BuildBitmap(column string, values []string, rows []int64, isNull []bool) (*BitmapIndex, error) {
	if len(values) != len(rows) || len(values) != len(isNull) {
		return nil, contextframe.NewError(contextframe.ValidationErr, "values/rows/isNull length mismatch")
	}
	idx := &BitmapIndex{column: column, values: newStringRowSetMap()}
	for i := range values {
		key := values[i]
		if isNull[i] {
			key = nullValue
		}
		rs, ok := idx.values.Get(key)
		if !ok {
			rs = NewRowSet()
			idx.values.Put(key, rs)
		}
		rs.Add(uint32(rows[i]))
	}
	return idx, nil
}

func (b *BitmapIndex) Column() string { return b.column }

func (b *BitmapIndex) Equal(v string) *RowSet {
	if rs, ok := b.values.Get(v); ok {
		return rs
	}
	return NewRowSet()
}

func (b *BitmapIndex) IsNull() *RowSet {
	if rs, ok := b.values.Get(nullValue); ok {
		return rs
	}
	return NewRowSet()
}

// In unions the row sets for every value in vs (the grammar's IN op).
func (b *BitmapIndex) In(vs []string) *RowSet {
	out := NewRowSet()
	for _, v := range vs {
		out = out.Or(b.Equal(v))
	}
	return out
}

// Cardinalities reports, for each distinct value (the null key
// included), how many rows hold it. The planner does not consult it.
func (b *BitmapIndex) Cardinalities() map[string]uint64 {
	out := make(map[string]uint64)
	b.values.Iter(func(v string, rs *RowSet) bool {
		out[v] = rs.Cardinality()
		return false
	})
	return out
}
