package scalarindex

import "github.com/contextframe/contextframe"

// LabelListIndex indexes an array-valued column (tags, contributors) by
// exploding each row's elements into a label -> RowSet table (spec
// §4.6's "label_list" kind), supporting the grammar's array_has_any/
// array_has_all operators.
type LabelListIndex struct {
	column string
	labels *rowSetMap
}

func BuildLabelList(column string, rowLabels [][]string, rows []int64) (*LabelListIndex, error) {
	if len(rowLabels) != len(rows) {
		return nil, contextframe.NewError(contextframe.ValidationErr, "rowLabels and rows length mismatch")
	}
	idx := &LabelListIndex{column: column, labels: newStringRowSetMap()}
	for i, labels := range rowLabels {
		for _, l := range labels {
			rs, ok := idx.labels.Get(l)
			if !ok {
				rs = NewRowSet()
				idx.labels.Put(l, rs)
			}
			rs.Add(uint32(rows[i]))
		}
	}
	return idx, nil
}

func (l *LabelListIndex) Column() string { return l.column }

// HasAny returns rows whose array contains at least one of labels.
func (l *LabelListIndex) HasAny(labels []string) *RowSet {
	out := NewRowSet()
	for _, lab := range labels {
		if rs, ok := l.labels.Get(lab); ok {
			out = out.Or(rs)
		}
	}
	return out
}

// HasAll returns rows whose array contains every one of labels.
func (l *LabelListIndex) HasAll(labels []string) *RowSet {
	if len(labels) == 0 {
		return NewRowSet()
	}
	var out *RowSet
	for _, lab := range labels {
		rs, ok := l.labels.Get(lab)
		if !ok {
			return NewRowSet() // a missing label means no row can satisfy HasAll
		}
		if out == nil {
			out = rs
		} else {
			out = out.And(rs)
		}
	}
	return out
}
