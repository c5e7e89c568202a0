package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gobwas/glob"

	"github.com/contextframe/contextframe"
)

// Eval evaluates predicate p against one row's decoded column values
// (column name -> value, as produced by store.RowToRecord/ToRow or a
// column-projected subset thereof). Used both for the residual
// row-filter left over after index selection and, in tests, for direct
// predicate evaluation.
func Eval(p *Predicate, row map[string]any) (bool, error) {
	if p == nil {
		return true, nil
	}
	switch p.Op {
	case OpAnd:
		for _, c := range p.Children {
			ok, err := Eval(c, row)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case OpOr:
		for _, c := range p.Children {
			ok, err := Eval(c, row)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case OpNot:
		if len(p.Children) != 1 {
			return false, contextframe.NewError(contextframe.ValidationErr, "not requires exactly one child")
		}
		ok, err := Eval(p.Children[0], row)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}

	v := row[p.Field]

	switch p.Op {
	case OpIsNull:
		return v == nil, nil
	case OpIsNotNull:
		return v != nil, nil
	case OpIsTrue:
		b, ok := v.(bool)
		return ok && b, nil
	case OpIsFalse:
		b, ok := v.(bool)
		return ok && !b, nil
	case OpEq:
		return compareEqual(v, p.Value), nil
	case OpNe:
		return !compareEqual(v, p.Value), nil
	case OpLt, OpLe, OpGt, OpGe:
		return compareOrdered(p.Op, v, p.Value)
	case OpIn:
		for _, want := range p.Values {
			if compareEqual(v, want) {
				return true, nil
			}
		}
		return false, nil
	case OpBetween:
		loOK, err := compareOrdered(OpGe, v, p.Low)
		if err != nil {
			return false, err
		}
		hiOK, err := compareOrdered(OpLe, v, p.High)
		if err != nil {
			return false, err
		}
		return loOK && hiOK, nil
	case OpLike:
		s, _ := v.(string)
		return matchLike(s, p.Value.(string)), nil
	case OpNotLike:
		s, _ := v.(string)
		return !matchLike(s, p.Value.(string)), nil
	case OpContains:
		s, _ := v.(string)
		return strings.Contains(s, p.Value.(string)), nil
	case OpRegexpMatch:
		s, _ := v.(string)
		re, err := regexp.Compile(p.Value.(string))
		if err != nil {
			return false, contextframe.Wrap(contextframe.ValidationErr, err, "invalid regexp_match pattern")
		}
		return re.MatchString(s), nil
	case OpArrayHasAny:
		arr := toSlice(v)
		for _, want := range p.Values {
			for _, elem := range arr {
				if compareEqual(elem, want) {
					return true, nil
				}
			}
		}
		return false, nil
	case OpArrayHasAll:
		arr := toSlice(v)
		for _, want := range p.Values {
			found := false
			for _, elem := range arr {
				if compareEqual(elem, want) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		}
		return true, nil
	case OpCast:
		return v != nil, nil
	default:
		return false, contextframe.NewError(contextframe.ValidationErr, "unrecognized operator: %s", p.Op)
	}
}

func toSlice(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

func compareEqual(a, b any) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareOrdered(op Op, a, b any) (bool, error) {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		as, bs := fmt.Sprint(a), fmt.Sprint(b)
		switch op {
		case OpLt:
			return as < bs, nil
		case OpLe:
			return as <= bs, nil
		case OpGt:
			return as > bs, nil
		case OpGe:
			return as >= bs, nil
		}
		return false, contextframe.NewError(contextframe.ValidationErr, "unsupported comparison operator: %s", op)
	}
	switch op {
	case OpLt:
		return af < bf, nil
	case OpLe:
		return af <= bf, nil
	case OpGt:
		return af > bf, nil
	case OpGe:
		return af >= bf, nil
	}
	return false, contextframe.NewError(contextframe.ValidationErr, "unsupported comparison operator: %s", op)
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// matchLike implements SQL LIKE semantics (% = any run, _ = any one
// char) by translating to a gobwas/glob pattern (* and ?) and compiling
// it there, rather than hand-rolling the equivalent regexp.
func matchLike(s, pattern string) bool {
	g, err := glob.Compile(likeToGlob(pattern))
	if err != nil {
		return false
	}
	return g.Match(s)
}

// likeToGlob rewrites a SQL LIKE pattern into gobwas/glob syntax,
// escaping glob metacharacters LIKE doesn't assign any meaning to so
// they match literally.
func likeToGlob(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteRune('*')
		case '_':
			b.WriteRune('?')
		case '*', '?', '[', ']', '{', '}', '\\':
			b.WriteRune('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
