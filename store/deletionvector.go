package store

import (
	"bytes"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/contextframe/contextframe"
)

// DeletionVector is a compressed bitmap of row indices within one
// fragment tombstoned at or before a given version (spec §4.3).
// Deletions are additive across versions: the effective deletion vector
// at V_k is the union of every dv update committed with version ≤ k.
type DeletionVector struct {
	bitmap *roaring.Bitmap
}

// NewDeletionVector returns an empty deletion vector.
func NewDeletionVector() *DeletionVector {
	return &DeletionVector{bitmap: roaring.New()}
}

// Delete marks row as tombstoned.
func (dv *DeletionVector) Delete(row uint32) {
	dv.bitmap.Add(row)
}

// DeleteRange marks [from, to) tombstoned.
func (dv *DeletionVector) DeleteRange(from, to uint64) {
	dv.bitmap.AddRange(from, to)
}

// IsDeleted reports whether row is tombstoned.
func (dv *DeletionVector) IsDeleted(row uint32) bool {
	return dv.bitmap.Contains(row)
}

// Cardinality returns the number of tombstoned rows.
func (dv *DeletionVector) Cardinality() uint64 {
	return dv.bitmap.GetCardinality()
}

// Union returns a new DeletionVector containing the tombstones of both
// dv and other, implementing the additive-across-versions rule.
func (dv *DeletionVector) Union(other *DeletionVector) *DeletionVector {
	out := roaring.Or(dv.bitmap, other.bitmap)
	return &DeletionVector{bitmap: out}
}

// Iterator returns an ascending iterator over tombstoned row indices.
func (dv *DeletionVector) Iterator() roaring.IntPeekable {
	return dv.bitmap.Iterator()
}

// Encode serializes the bitmap to its portable byte form.
func (dv *DeletionVector) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := dv.bitmap.WriteTo(&buf); err != nil {
		return nil, contextframe.Wrap(contextframe.IOErr, err, "encoding deletion vector")
	}
	return buf.Bytes(), nil
}

// DecodeDeletionVector parses a deletion vector previously produced by
// Encode.
func DecodeDeletionVector(data []byte) (*DeletionVector, error) {
	bm := roaring.New()
	if _, err := bm.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, contextframe.Wrap(contextframe.CorruptionErr, err, "decoding deletion vector")
	}
	return &DeletionVector{bitmap: bm}, nil
}
