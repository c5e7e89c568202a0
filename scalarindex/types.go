// Package scalarindex implements the non-vector index kinds spec §4.6
// names: btree (ordered scalar columns), bitmap (low-cardinality scalar
// columns), label_list (array-valued tag columns), ngram (trigram
// acceleration for LIKE/contains predicates), and a BM25 full-text
// inverted index.
package scalarindex

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// Kind names one of the index families this package builds, matching
// the catalog entry kinds recorded in a store.Manifest (spec §4.3/§6.3).
type Kind string

const (
	BTree     Kind = "btree"
	Bitmap    Kind = "bitmap"
	LabelList Kind = "label_list"
	Ngram     Kind = "ngram"
	FTS       Kind = "fts"
)

// RowSet is the common row-address-set representation every index kind
// in this package returns, so the query planner can intersect/union
// results from different index kinds without caring which one produced
// them.
type RowSet struct {
	bitmap *roaring.Bitmap
}

func NewRowSet() *RowSet {
	return &RowSet{bitmap: roaring.New()}
}

func RowSetFromSlice(rows []uint32) *RowSet {
	rs := NewRowSet()
	rs.bitmap.AddMany(rows)
	return rs
}

func (r *RowSet) Add(row uint32)      { r.bitmap.Add(row) }
func (r *RowSet) Contains(row uint32) bool { return r.bitmap.Contains(row) }
func (r *RowSet) Cardinality() uint64 { return r.bitmap.GetCardinality() }

func (r *RowSet) And(other *RowSet) *RowSet {
	return &RowSet{bitmap: roaring.And(r.bitmap, other.bitmap)}
}

func (r *RowSet) Or(other *RowSet) *RowSet {
	return &RowSet{bitmap: roaring.Or(r.bitmap, other.bitmap)}
}

func (r *RowSet) AndNot(other *RowSet) *RowSet {
	return &RowSet{bitmap: roaring.AndNot(r.bitmap, other.bitmap)}
}

func (r *RowSet) ToSlice() []uint32 {
	return r.bitmap.ToArray()
}

func (r *RowSet) Iterator() roaring.IntPeekable {
	return r.bitmap.Iterator()
}

// Bitmap exposes the underlying roaring bitmap for callers (vectorindex's
// prefilter allow-list) that need to pass a candidate set across package
// boundaries without re-encoding it.
func (r *RowSet) Bitmap() *roaring.Bitmap {
	return r.bitmap
}
