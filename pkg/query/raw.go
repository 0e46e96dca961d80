package query

import (
	"github.com/nimburion/listquery/pkg/repository/document"
	"go.mongodb.org/mongo-driver/bson"
)

// forbiddenOperators run server-side JavaScript and are never accepted from a query string.
var forbiddenOperators = map[string]struct{}{
	"$where":       {},
	"$function":    {},
	"$accumulator": {},
}

// ParseRawPredicate parses the mongoQuery escape hatch: a MongoDB Extended JSON
// object holding a store-native predicate. Malformed JSON, non-object input and
// server-side JavaScript operators are validation errors.
func ParseRawPredicate(raw string) (bson.M, error) {
	var doc bson.M
	if err := bson.UnmarshalExtJSON([]byte(raw), false, &doc); err != nil {
		return nil, NewValidationError("raw_malformed",
			ParamMongoQuery+" is not a valid JSON object",
			map[string]interface{}{"param": ParamMongoQuery, "cause": err.Error()})
	}
	if doc == nil {
		return nil, NewValidationError("raw_malformed",
			ParamMongoQuery+" is not a valid JSON object",
			map[string]interface{}{"param": ParamMongoQuery})
	}
	if op, found := findForbiddenOperator(doc); found {
		return nil, NewValidationError("raw_operator_forbidden",
			"operator "+op+" is not allowed in "+ParamMongoQuery,
			map[string]interface{}{"param": ParamMongoQuery, "operator": op})
	}
	return doc, nil
}

func findForbiddenOperator(v interface{}) (string, bool) {
	switch node := v.(type) {
	case bson.M:
		return findInMap(node)
	case document.Filter:
		return findInMap(node)
	case map[string]interface{}:
		return findInMap(node)
	case bson.D:
		for _, e := range node {
			if _, bad := forbiddenOperators[e.Key]; bad {
				return e.Key, true
			}
			if op, found := findForbiddenOperator(e.Value); found {
				return op, true
			}
		}
	case bson.A:
		return findInSlice(node)
	case []interface{}:
		return findInSlice(node)
	}
	return "", false
}

func findInMap(m map[string]interface{}) (string, bool) {
	for _, key := range sortedKeys(m) {
		if _, bad := forbiddenOperators[key]; bad {
			return key, true
		}
		if op, found := findForbiddenOperator(m[key]); found {
			return op, true
		}
	}
	return "", false
}

func findInSlice(items []interface{}) (string, bool) {
	for _, item := range items {
		if op, found := findForbiddenOperator(item); found {
			return op, true
		}
	}
	return "", false
}
