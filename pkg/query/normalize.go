package query

import (
	"math"
	"strconv"
	"strings"

	"github.com/nimburion/listquery/pkg/repository/document"
)

// Options holds the list query defaults.
type Options struct {
	// DefaultLimit applies when limit is absent or not a number.
	DefaultLimit int64
	// MaxLimit rejects larger page sizes; 0 disables the check.
	MaxLimit int64
	// DefaultSort applies when sort is absent, e.g. "-createdAt".
	DefaultSort string
}

// DefaultOptions returns limit 20, no maximum and newest-first ordering.
func DefaultOptions() Options {
	return Options{
		DefaultLimit: 20,
		DefaultSort:  "-createdAt",
	}
}

// Normalized is the type-coerced view of the reserved pagination, sort,
// search and projection parameters.
type Normalized struct {
	Page       int64
	Limit      int64
	Skip       int64
	Sort       document.Sort
	Search     string
	Projection document.Projection
}

// Normalize extracts the reserved parameters. Missing or non-numeric values fall
// back to defaults; an explicit non-positive or oversized limit, a negative skip
// or an invalid field list is a validation error.
func Normalize(p Params, opts Options) (Normalized, error) {
	opts = opts.withDefaults()

	page, ok := parseInt(p, ParamPage)
	if !ok || page < 1 {
		page = 1
	}

	limit, ok := parseInt(p, ParamLimit)
	if !ok {
		limit = opts.DefaultLimit
	}
	if limit <= 0 {
		return Normalized{}, NewValidationError("limit_not_positive",
			"limit must be greater than zero",
			map[string]interface{}{"limit": limit})
	}
	if opts.MaxLimit > 0 && limit > opts.MaxLimit {
		return Normalized{}, NewValidationError("limit_too_large",
			"limit exceeds the maximum page size",
			map[string]interface{}{"limit": limit, "max": opts.MaxLimit})
	}

	skip, ok := parseInt(p, ParamSkip)
	if ok && skip < 0 {
		return Normalized{}, NewValidationError("skip_negative",
			"skip must not be negative",
			map[string]interface{}{"skip": skip})
	}
	if !ok {
		if page-1 > math.MaxInt64/limit {
			return Normalized{}, NewValidationError("page_out_of_range",
				"page is out of range",
				map[string]interface{}{"page": page})
		}
		skip = (page - 1) * limit
	}

	sortParam, _ := p.Get(ParamSort)
	search, _ := p.Get(ParamSearch)
	fields, _ := p.Get(ParamFields)

	projection, err := ResolveProjection(fields)
	if err != nil {
		return Normalized{}, err
	}

	return Normalized{
		Page:       page,
		Limit:      limit,
		Skip:       skip,
		Sort:       ResolveSort(sortParam, opts.DefaultSort),
		Search:     search,
		Projection: projection,
	}, nil
}

func (o Options) withDefaults() Options {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 20
	}
	if strings.TrimSpace(o.DefaultSort) == "" {
		o.DefaultSort = "-createdAt"
	}
	return o
}

func parseInt(p Params, name string) (int64, bool) {
	raw, ok := p.Get(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
