package query

// PageInfo describes where a page sits in the full result set.
type PageInfo struct {
	CurrentPage     int64 `json:"currentPage"`
	PerPage         int64 `json:"perPage"`
	PageCount       int64 `json:"pageCount"`
	SkipCount       int64 `json:"skipCount"`
	ItemCount       int64 `json:"itemCount"`
	HasNextPage     bool  `json:"hasNextPage"`
	HasPreviousPage bool  `json:"hasPreviousPage"`
}

// Paginate computes page metadata. page is reported as given and is not
// reconciled with skip, since callers may pass skip independently of page.
// With no items, pageCount is 0 and both boundary flags are false.
func Paginate(page, limit, skip, total int64) (PageInfo, error) {
	if limit <= 0 {
		return PageInfo{}, NewValidationError("limit_not_positive",
			"limit must be greater than zero",
			map[string]interface{}{"limit": limit})
	}

	info := PageInfo{
		CurrentPage: page,
		PerPage:     limit,
		SkipCount:   skip,
		ItemCount:   total,
	}
	if total <= 0 {
		return info, nil
	}

	info.PageCount = total / limit
	if total%limit != 0 {
		info.PageCount++
	}
	info.HasNextPage = page < info.PageCount
	info.HasPreviousPage = page > 1
	return info, nil
}
