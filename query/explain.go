package query

import (
	"fmt"

	"github.com/huandu/go-sqlbuilder"

	"github.com/contextframe/contextframe"
)

// Explain renders p to a canonical, human-readable debug/explain string
// (e.g. for query-plan logging), reusing go-sqlbuilder's condition
// builder the same way the teacher's UCAST-to-SQL transpiler does —
// adapted here to our own Predicate/Op shape rather than UCAST's, and
// to produce a debug string rather than an executable statement against
// any SQL backend (this core has none).
func Explain(p *Predicate) (string, error) {
	cond := sqlbuilder.NewCond()
	expr, err := explain(p, cond)
	if err != nil {
		return "", err
	}
	where := sqlbuilder.NewWhereClause()
	where.AddWhereExpr(cond.Args, expr)
	sql, args := where.BuildWithFlavor(sqlbuilder.SQLite)
	return sqlbuilder.SQLite.Interpolate(sql, args)
}

func explain(p *Predicate, cond *sqlbuilder.Cond) (string, error) {
	if p == nil {
		return "TRUE", nil
	}
	switch p.Op {
	case OpAnd:
		parts, err := explainChildren(p.Children, cond)
		if err != nil {
			return "", err
		}
		return cond.And(parts...), nil
	case OpOr:
		parts, err := explainChildren(p.Children, cond)
		if err != nil {
			return "", err
		}
		return cond.Or(parts...), nil
	case OpNot:
		if len(p.Children) != 1 {
			return "", contextframe.NewError(contextframe.ValidationErr, "not requires exactly one child")
		}
		inner, err := explain(p.Children[0], cond)
		if err != nil {
			return "", err
		}
		return cond.Not(inner), nil
	case OpEq:
		return cond.Equal(p.Field, p.Value), nil
	case OpNe:
		return cond.NotEqual(p.Field, p.Value), nil
	case OpLt:
		return cond.LessThan(p.Field, p.Value), nil
	case OpLe:
		return cond.LessEqualThan(p.Field, p.Value), nil
	case OpGt:
		return cond.GreaterThan(p.Field, p.Value), nil
	case OpGe:
		return cond.GreaterEqualThan(p.Field, p.Value), nil
	case OpIn:
		return cond.In(p.Field, p.Values...), nil
	case OpIsNull:
		return cond.IsNull(p.Field), nil
	case OpIsNotNull:
		return cond.IsNotNull(p.Field), nil
	case OpIsTrue:
		return cond.Equal(p.Field, true), nil
	case OpIsFalse:
		return cond.Equal(p.Field, false), nil
	case OpLike:
		return cond.Like(p.Field, p.Value), nil
	case OpNotLike:
		return cond.NotLike(p.Field, p.Value), nil
	case OpBetween:
		return cond.Between(p.Field, p.Low, p.High), nil
	case OpRegexpMatch:
		return cond.Var(sqlbuilder.Build("regexp_match($?, $?)", sqlbuilder.Raw(p.Field), p.Value)), nil
	case OpContains:
		return cond.Like(p.Field, fmt.Sprintf("%%%s%%", p.Value)), nil
	case OpArrayHasAny:
		return cond.Var(sqlbuilder.Build("array_has_any($?, $?)", sqlbuilder.Raw(p.Field), p.Values)), nil
	case OpArrayHasAll:
		return cond.Var(sqlbuilder.Build("array_has_all($?, $?)", sqlbuilder.Raw(p.Field), p.Values)), nil
	case OpCast:
		return cond.Var(sqlbuilder.Build(fmt.Sprintf("CAST($? AS %s)", p.CastType), sqlbuilder.Raw(p.Field))), nil
	default:
		return "", contextframe.NewError(contextframe.ValidationErr, "unrecognized operator: %s", p.Op)
	}
}

func explainChildren(children []*Predicate, cond *sqlbuilder.Cond) ([]string, error) {
	out := make([]string, 0, len(children))
	for _, c := range children {
		s, err := explain(c, cond)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
