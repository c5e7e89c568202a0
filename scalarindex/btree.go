package scalarindex

import (
	"sort"

	"github.com/contextframe/contextframe"
)

// btreeEntry pairs a scalar value with the row address it came from.
// Row addresses fit in uint32 (RowSet's underlying roaring.Bitmap
// domain); a dataset addressing more than 2^32 rows is out of scope.
type btreeEntry struct {
	value float64
	row   uint32
}

// BTreeIndex is an ordered index over one scalar column (spec §4.6's
// "btree" kind), used for comparison/range/BETWEEN predicates. It is
// implemented as a sorted slice with binary-search range lookup rather
// than a literal B+tree node structure — the same O(log n + k) lookup
// and range-scan cost the spec's grammar actually depends on, without
// needing a standalone B-tree library the example corpus doesn't carry.
type BTreeIndex struct {
	entries []btreeEntry
	column  string
}

// BuildBTree constructs an ordered index from parallel values/rows
// slices. NaN values are excluded (unorderable; consistent with the
// vector index's own NaN-exclusion convention).
func BuildBTree(column string, values []float64, rows []int64) (*BTreeIndex, error) {
	if len(values) != len(rows) {
		return nil, contextframe.NewError(contextframe.ValidationErr, "values and rows length mismatch")
	}
	idx := &BTreeIndex{column: column}
	for i, v := range values {
		if v != v { // NaN
			continue
		}
		idx.entries = append(idx.entries, btreeEntry{value: v, row: uint32(rows[i])})
	}
	sort.Slice(idx.entries, func(i, j int) bool {
		if idx.entries[i].value != idx.entries[j].value {
			return idx.entries[i].value < idx.entries[j].value
		}
		return idx.entries[i].row < idx.entries[j].row
	})
	return idx, nil
}

func (b *BTreeIndex) Column() string { return b.column }

// Equal returns every row whose value == v.
func (b *BTreeIndex) Equal(v float64) *RowSet {
	lo := sort.Search(len(b.entries), func(i int) bool { return b.entries[i].value >= v })
	rs := NewRowSet()
	for i := lo; i < len(b.entries) && b.entries[i].value == v; i++ {
		rs.Add(b.entries[i].row)
	}
	return rs
}

// Range returns every row whose value falls in [lo, hi] (or an open
// variant per loIncl/hiIncl), implementing the grammar's BETWEEN and
// </<=/>/>= operators (spec §6.1).
func (b *BTreeIndex) Range(lo, hi float64, loIncl, hiIncl bool) *RowSet {
	start := sort.Search(len(b.entries), func(i int) bool {
		if loIncl {
			return b.entries[i].value >= lo
		}
		return b.entries[i].value > lo
	})
	rs := NewRowSet()
	for i := start; i < len(b.entries); i++ {
		v := b.entries[i].value
		if hiIncl {
			if v > hi {
				break
			}
		} else if v >= hi {
			break
		}
		rs.Add(b.entries[i].row)
	}
	return rs
}
