package query

import (
	"github.com/nimburion/listquery/pkg/repository/document"
	"go.mongodb.org/mongo-driver/bson"
)

// Clauses collects the clauses of every channel, ordered by channel precedence.
func Clauses(base document.Filter, p Params, searchFields []string) ([]Clause, error) {
	clauses, err := equalityClauses(p)
	if err != nil {
		return nil, err
	}
	clauses = append(clauses, baseClauses(base)...)

	for _, spec := range []struct {
		param    string
		channel  Channel
		operator string
		elem     bool
	}{
		{ParamInList, ChannelIn, OpIn, false},
		{ParamNotInList, ChannelNotIn, OpNin, false},
		{ParamInListArrOfObj, ChannelElemIn, OpIn, true},
		{ParamNotInListArrOfObj, ChannelElemNotIn, OpNin, true},
	} {
		build := setClauses
		if spec.elem {
			build = elemClauses
		}
		built, err := build(p, spec.param, spec.channel, spec.operator)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, built...)
	}

	term, _ := p.Get(ParamSearch)
	clauses = append(clauses, searchClause(term, searchFields)...)

	raw, err := rawClauses(p)
	if err != nil {
		return nil, err
	}
	clauses = append(clauses, raw...)

	sortClauses(clauses)
	return clauses, nil
}

// Merge folds clauses into one predicate, last write wins per key.
// Keys written by the base filter are protected from the search and raw
// channels: a colliding constraint is ANDed instead of replacing the base value.
func Merge(clauses []Clause) document.Filter {
	ordered := append([]Clause(nil), clauses...)
	sortClauses(ordered)

	predicate := document.Filter{}
	owner := make(map[string]Channel, len(ordered))
	var guards bson.A

	for _, c := range ordered {
		expr := c.Expression()
		if prev, ok := owner[c.Field]; ok && prev == ChannelBase && (c.Channel == ChannelSearch || c.Channel == ChannelRaw) {
			guards = append(guards, bson.M{c.Field: expr})
			continue
		}
		predicate[c.Field] = expr
		owner[c.Field] = c.Channel
	}

	if len(guards) > 0 {
		predicate[OpAnd] = appendAnd(predicate[OpAnd], guards)
	}
	return predicate
}

// Build is the predicate builder entry point: Clauses followed by Merge.
func Build(base document.Filter, p Params, searchFields []string) (document.Filter, error) {
	clauses, err := Clauses(base, p, searchFields)
	if err != nil {
		return nil, err
	}
	return Merge(clauses), nil
}

func appendAnd(existing interface{}, guards bson.A) bson.A {
	var out bson.A
	switch v := existing.(type) {
	case nil:
	case bson.A:
		out = append(out, v...)
	case []interface{}:
		out = append(out, v...)
	case []bson.M:
		for _, m := range v {
			out = append(out, m)
		}
	default:
		out = append(out, v)
	}
	return append(out, guards...)
}
