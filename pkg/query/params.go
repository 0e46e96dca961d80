package query

import (
	"net/url"
	"sort"
	"strings"
)

// Reserved query parameter names. They never reach the equality channel.
const (
	ParamPage              = "page"
	ParamLimit             = "limit"
	ParamSkip              = "skip"
	ParamSort              = "sort"
	ParamSearch            = "q"
	ParamFields            = "fields"
	ParamInList            = "inList"
	ParamNotInList         = "notInList"
	ParamInListArrOfObj    = "inListArrOfObj"
	ParamNotInListArrOfObj = "notInListArrOfObj"
	ParamMongoQuery        = "mongoQuery"
)

var reservedParams = map[string]struct{}{
	ParamPage:              {},
	ParamLimit:             {},
	ParamSkip:              {},
	ParamSort:              {},
	ParamSearch:            {},
	ParamFields:            {},
	ParamInList:            {},
	ParamNotInList:         {},
	ParamInListArrOfObj:    {},
	ParamNotInListArrOfObj: {},
	ParamMongoQuery:        {},
}

// IsReserved reports whether name has a special meaning in list queries.
func IsReserved(name string) bool {
	_, ok := reservedParams[name]
	return ok
}

// Params is a decoded list query string.
// Values holds plain keys (?role=admin), Groups holds bracket keys (?inList[email]=...).
type Params struct {
	Values map[string][]string
	Groups map[string]map[string][]string
}

// ParseParams decodes url.Values, splitting bracket notation into groups.
// a[b][c] becomes group "a" with sub-key "b.c"; a[] is treated as plain "a".
func ParseParams(values url.Values) Params {
	p := Params{
		Values: make(map[string][]string),
		Groups: make(map[string]map[string][]string),
	}
	for key, vals := range values {
		name, sub, ok := splitBracketKey(key)
		if !ok || sub == "" {
			p.Values[name] = append(p.Values[name], vals...)
			continue
		}
		group, exists := p.Groups[name]
		if !exists {
			group = make(map[string][]string)
			p.Groups[name] = group
		}
		group[sub] = append(group[sub], vals...)
	}
	return p
}

// Get returns the first value of a plain key.
func (p Params) Get(name string) (string, bool) {
	vals, ok := p.Values[name]
	if !ok || len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// Group returns the sub-keys of a bracket group.
func (p Params) Group(name string) map[string][]string {
	return p.Groups[name]
}

func splitBracketKey(key string) (name, sub string, ok bool) {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return key, "", false
	}
	name = key[:open]
	rest := key[open:]

	parts := make([]string, 0, 2)
	for len(rest) > 0 {
		if rest[0] != '[' {
			return key, "", false
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return key, "", false
		}
		if part := rest[1:end]; part != "" {
			parts = append(parts, part)
		}
		rest = rest[end+1:]
	}
	return name, strings.Join(parts, "."), true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
