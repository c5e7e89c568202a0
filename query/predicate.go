// Package query implements the filter grammar, scan planner, and lazy
// scanner of spec §4.7/§6.1: compiling a ScanRequest into an index
// probe plus a residual row-filter, and producing a finite, single-pass
// sequence of record batches.
package query

// Op names one grammar operator from spec §6.1.
type Op string

const (
	OpEq          Op = "eq"
	OpNe          Op = "ne"
	OpLt          Op = "lt"
	OpLe          Op = "le"
	OpGt          Op = "gt"
	OpGe          Op = "ge"
	OpIn          Op = "in"
	OpIsNull      Op = "is_null"
	OpIsNotNull   Op = "is_not_null"
	OpIsTrue      Op = "is_true"
	OpIsFalse     Op = "is_false"
	OpLike        Op = "like"
	OpNotLike     Op = "not_like"
	OpBetween     Op = "between"
	OpRegexpMatch Op = "regexp_match"
	OpContains    Op = "contains"
	OpArrayHasAny Op = "array_has_any"
	OpArrayHasAll Op = "array_has_all"
	OpCast        Op = "cast"
	OpAnd         Op = "and"
	OpOr          Op = "or"
	OpNot         Op = "not"
)

// Predicate is a node in a compiled filter expression tree (spec §6.1's
// grammar, represented programmatically rather than parsed from raw SQL
// text — the same "build the tree, don't parse a string" approach the
// teacher's own UCAST node type takes for its incoming filter trees).
type Predicate struct {
	Op       Op
	Field    string
	Value    any
	Values   []any
	Low      any
	High     any
	CastType string
	Children []*Predicate
}

func Eq(field string, v any) *Predicate  { return &Predicate{Op: OpEq, Field: field, Value: v} }
func Ne(field string, v any) *Predicate  { return &Predicate{Op: OpNe, Field: field, Value: v} }
func Lt(field string, v any) *Predicate  { return &Predicate{Op: OpLt, Field: field, Value: v} }
func Le(field string, v any) *Predicate  { return &Predicate{Op: OpLe, Field: field, Value: v} }
func Gt(field string, v any) *Predicate  { return &Predicate{Op: OpGt, Field: field, Value: v} }
func Ge(field string, v any) *Predicate  { return &Predicate{Op: OpGe, Field: field, Value: v} }

func In(field string, values ...any) *Predicate {
	return &Predicate{Op: OpIn, Field: field, Values: values}
}

func IsNull(field string) *Predicate    { return &Predicate{Op: OpIsNull, Field: field} }
func IsNotNull(field string) *Predicate { return &Predicate{Op: OpIsNotNull, Field: field} }
func IsTrue(field string) *Predicate    { return &Predicate{Op: OpIsTrue, Field: field} }
func IsFalse(field string) *Predicate   { return &Predicate{Op: OpIsFalse, Field: field} }

func Like(field, pattern string) *Predicate {
	return &Predicate{Op: OpLike, Field: field, Value: pattern}
}

func NotLike(field, pattern string) *Predicate {
	return &Predicate{Op: OpNotLike, Field: field, Value: pattern}
}

func Between(field string, lo, hi any) *Predicate {
	return &Predicate{Op: OpBetween, Field: field, Low: lo, High: hi}
}

func RegexpMatch(field, pattern string) *Predicate {
	return &Predicate{Op: OpRegexpMatch, Field: field, Value: pattern}
}

func Contains(field, substr string) *Predicate {
	return &Predicate{Op: OpContains, Field: field, Value: substr}
}

func ArrayHasAny(field string, values ...any) *Predicate {
	return &Predicate{Op: OpArrayHasAny, Field: field, Values: values}
}

func ArrayHasAll(field string, values ...any) *Predicate {
	return &Predicate{Op: OpArrayHasAll, Field: field, Values: values}
}

func Cast(field, toType string) *Predicate {
	return &Predicate{Op: OpCast, Field: field, CastType: toType}
}

func And(children ...*Predicate) *Predicate {
	return &Predicate{Op: OpAnd, Children: children}
}

func Or(children ...*Predicate) *Predicate {
	return &Predicate{Op: OpOr, Children: children}
}

func Not(child *Predicate) *Predicate {
	return &Predicate{Op: OpNot, Children: []*Predicate{child}}
}

// conjuncts flattens a top-level AND tree into its constituent clauses;
// a non-AND predicate flattens to itself as the sole clause. Used by
// the planner, which only decomposes conjunctions into independent
// index probes (spec §4.7 decision 1); OR/NOT remain a single residual
// clause evaluated row-by-row.
func conjuncts(p *Predicate) []*Predicate {
	if p == nil {
		return nil
	}
	if p.Op != OpAnd {
		return []*Predicate{p}
	}
	var out []*Predicate
	for _, c := range p.Children {
		out = append(out, conjuncts(c)...)
	}
	return out
}
