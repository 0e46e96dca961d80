package query

import (
	"strings"

	"github.com/nimburion/listquery/pkg/repository/document"
)

// ResolveSort turns "field" or "-field" into a sort pair.
// Empty input, or a bare "-", resolves fallback instead.
func ResolveSort(sortParam, fallback string) document.Sort {
	s := strings.TrimSpace(sortParam)
	if s == "" || s == "-" {
		s = fallback
	}
	if strings.HasPrefix(s, "-") {
		return document.Sort{Field: s[1:], Order: document.SortDesc}
	}
	return document.Sort{Field: s, Order: document.SortAsc}
}

// ResolveProjection splits a comma separated field list, dropping empty entries
// and duplicates while keeping first-seen order. A leading "-" excludes a field.
// Inclusions and exclusions cannot be mixed, except for excluding _id.
func ResolveProjection(fieldsParam string) (document.Projection, error) {
	seen := make(map[string]struct{})
	var include, exclude []string

	for _, raw := range strings.Split(fieldsParam, ",") {
		field := strings.TrimSpace(raw)
		excluded := strings.HasPrefix(field, "-")
		if excluded {
			field = strings.TrimSpace(field[1:])
		}
		if field == "" {
			continue
		}
		key := field
		if excluded {
			key = "-" + field
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if excluded {
			exclude = append(exclude, field)
		} else {
			include = append(include, field)
		}
	}

	switch {
	case len(include) > 0 && len(exclude) > 0:
		if len(exclude) == 1 && exclude[0] == document.IDField {
			return document.Projection{Fields: include, IDExcluded: true}, nil
		}
		return document.Projection{}, NewValidationError("fields_mixed",
			"fields cannot mix included and excluded fields",
			map[string]interface{}{"include": include, "exclude": exclude})
	case len(exclude) > 0:
		return document.Projection{Fields: exclude, Exclude: true}, nil
	default:
		return document.Projection{Fields: include}, nil
	}
}
