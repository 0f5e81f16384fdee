package shared

import (
	"net/http"
	"strconv"
)

const (
	// DefaultPageSize applies when the caller does not ask for one.
	DefaultPageSize = 20
	// MaxPageSize caps any requested page size.
	MaxPageSize = 50
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// NormalizePage clamps page and page size into their allowed ranges.
func NormalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// NewPagination computes pagination metadata.
func NewPagination(page, pageSize int, hasNext bool) Pagination {
	p := Pagination{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		p.PrevPage = page - 1
	}
	if hasNext {
		p.NextPage = page + 1
	}
	return p
}

// PageParams reads page and page_size query parameters.
func PageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	return NormalizePage(page, size)
}
