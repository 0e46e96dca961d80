package query

import (
	"regexp"
	"sort"
	"strings"

	"github.com/nimburion/listquery/pkg/repository/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Channel identifies an independent source of filter clauses.
// Channels are folded in declaration order: later channels win on key collision.
type Channel int

const (
	ChannelEquality Channel = iota
	ChannelBase
	ChannelIn
	ChannelNotIn
	ChannelElemIn
	ChannelElemNotIn
	ChannelSearch
	ChannelRaw
)

func (c Channel) String() string {
	switch c {
	case ChannelEquality:
		return "equality"
	case ChannelBase:
		return "base"
	case ChannelIn:
		return "in"
	case ChannelNotIn:
		return "not_in"
	case ChannelElemIn:
		return "elem_in"
	case ChannelElemNotIn:
		return "elem_not_in"
	case ChannelSearch:
		return "search"
	case ChannelRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Store operators emitted by the builder.
const (
	OpEq        = "$eq"
	OpIn        = "$in"
	OpNin       = "$nin"
	OpElemMatch = "$elemMatch"
	OpOr        = "$or"
	OpAnd       = "$and"
	OpRegex     = "$regex"
)

// Clause is one field/operator/value triple contributed by a channel.
// Field is the top-level predicate key the clause writes.
type Clause struct {
	Channel  Channel
	Field    string
	Operator string
	Value    interface{}
}

// Expression renders the clause as the value stored under Field.
func (c Clause) Expression() interface{} {
	switch c.Operator {
	case OpIn, OpNin, OpElemMatch:
		return bson.M{c.Operator: c.Value}
	default:
		return c.Value
	}
}

func equalityClauses(p Params) ([]Clause, error) {
	var out []Clause
	for _, key := range sortedKeys(p.Values) {
		if IsReserved(key) {
			continue
		}
		if err := checkField(key, key); err != nil {
			return nil, err
		}
		out = append(out, equalityClause(ChannelEquality, key, p.Values[key]))
	}
	for _, name := range sortedKeys(p.Groups) {
		if IsReserved(name) {
			continue
		}
		group := p.Groups[name]
		for _, sub := range sortedKeys(group) {
			field := name + "." + sub
			if err := checkField(name, field); err != nil {
				return nil, err
			}
			out = append(out, equalityClause(ChannelEquality, field, group[sub]))
		}
	}
	return out, nil
}

// equalityClause matches one value directly and several with $in.
// Identity values that parse as ObjectID hex are compared as ObjectIDs.
func equalityClause(channel Channel, field string, values []string) Clause {
	cast := func(v string) interface{} { return v }
	if field == document.IDField {
		cast = func(v string) interface{} { return document.ParseID(v) }
	}
	if len(values) == 1 {
		return Clause{Channel: channel, Field: field, Operator: OpEq, Value: cast(values[0])}
	}
	unique := uniqueStrings(values)
	arr := make(bson.A, len(unique))
	for i, v := range unique {
		arr[i] = cast(v)
	}
	return Clause{Channel: channel, Field: field, Operator: OpIn, Value: arr}
}

// checkField rejects field paths with a segment starting with $, so query
// keys address document fields and never store operators.
func checkField(param, field string) error {
	for _, segment := range strings.Split(field, ".") {
		if strings.HasPrefix(segment, "$") {
			return NewValidationError("field_invalid",
				"field "+field+" is not allowed in "+param,
				map[string]interface{}{"param": param, "field": field})
		}
	}
	return nil
}

func baseClauses(base document.Filter) []Clause {
	out := make([]Clause, 0, len(base))
	for _, key := range sortedKeys(base) {
		out = append(out, Clause{Channel: ChannelBase, Field: key, Operator: OpEq, Value: base[key]})
	}
	return out
}

// setClauses builds $in/$nin clauses from a bracket group such as inList[email]=a,b.
// Repeated sub-keys union their sets.
func setClauses(p Params, param string, channel Channel, operator string) ([]Clause, error) {
	group, err := groupParam(p, param)
	if err != nil || len(group) == 0 {
		return nil, err
	}
	out := make([]Clause, 0, len(group))
	for _, field := range sortedKeys(group) {
		if err := checkField(param, field); err != nil {
			return nil, err
		}
		out = append(out, Clause{
			Channel:  channel,
			Field:    field,
			Operator: operator,
			Value:    toArray(splitCSV(group[field])),
		})
	}
	return out, nil
}

// elemClauses builds $elemMatch clauses from keys of the form <arrayField>.<elementField>.
// Conditions on the same array field share one $elemMatch.
func elemClauses(p Params, param string, channel Channel, operator string) ([]Clause, error) {
	group, err := groupParam(p, param)
	if err != nil || len(group) == 0 {
		return nil, err
	}

	matches := make(map[string]bson.M)
	for _, key := range sortedKeys(group) {
		arrayField, elemField, ok := strings.Cut(key, ".")
		if !ok || arrayField == "" || elemField == "" {
			return nil, NewValidationError("array_key_malformed",
				param+" keys must have the form <arrayField>.<elementField>",
				map[string]interface{}{"param": param, "key": key})
		}
		if err := checkField(param, key); err != nil {
			return nil, err
		}
		match, exists := matches[arrayField]
		if !exists {
			match = bson.M{}
			matches[arrayField] = match
		}
		match[elemField] = bson.M{operator: toArray(splitCSV(group[key]))}
	}

	out := make([]Clause, 0, len(matches))
	for _, arrayField := range sortedKeys(matches) {
		out = append(out, Clause{
			Channel:  channel,
			Field:    arrayField,
			Operator: OpElemMatch,
			Value:    matches[arrayField],
		})
	}
	return out, nil
}

// searchClause builds a case-insensitive substring disjunction across fields.
// It is absent when either the term or the field list is empty.
func searchClause(term string, fields []string) []Clause {
	if term == "" || len(fields) == 0 {
		return nil
	}
	pattern := regexp.QuoteMeta(term)
	alternatives := make(bson.A, 0, len(fields))
	for _, field := range uniqueStrings(fields) {
		if field == "" {
			continue
		}
		alternatives = append(alternatives, bson.M{field: primitive.Regex{Pattern: pattern, Options: "i"}})
	}
	if len(alternatives) == 0 {
		return nil
	}
	return []Clause{{Channel: ChannelSearch, Field: OpOr, Operator: OpOr, Value: alternatives}}
}

func rawClauses(p Params) ([]Clause, error) {
	if _, grouped := p.Groups[ParamMongoQuery]; grouped {
		return nil, NewValidationError("raw_not_string",
			ParamMongoQuery+" must be a JSON string",
			map[string]interface{}{"param": ParamMongoQuery})
	}
	raw, ok := p.Get(ParamMongoQuery)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	doc, err := ParseRawPredicate(raw)
	if err != nil {
		return nil, err
	}
	out := make([]Clause, 0, len(doc))
	for _, key := range sortedKeys(doc) {
		out = append(out, Clause{Channel: ChannelRaw, Field: key, Value: doc[key]})
	}
	return out, nil
}

func groupParam(p Params, param string) (map[string][]string, error) {
	if vals, plain := p.Values[param]; plain && len(vals) > 0 {
		return nil, NewValidationError("group_not_bracketed",
			param+" must use bracket notation, e.g. "+param+"[field]=a,b",
			map[string]interface{}{"param": param})
	}
	return p.Groups[param], nil
}

// splitCSV splits every value on commas, drops empty elements and duplicates.
func splitCSV(values []string) []string {
	var parts []string
	for _, v := range values {
		parts = append(parts, strings.Split(v, ",")...)
	}
	out := make([]string, 0, len(parts))
	for _, part := range uniqueStrings(parts) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func toArray(values []string) bson.A {
	out := make(bson.A, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func sortClauses(clauses []Clause) {
	sort.SliceStable(clauses, func(i, j int) bool {
		return clauses[i].Channel < clauses[j].Channel
	})
}
