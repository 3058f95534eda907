package handlers

import (
	"strconv"
	"strings"

	"triageapp/internal/api"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PageRequest is a 1-based page of a listing
type PageRequest struct {
	Page     int
	PageSize int
}

// ParsePagination reads page and page_size. Missing or invalid values fall back to
// the first page of defaultSize, and sizes above maxSize are capped.
func ParsePagination(c *gin.Context, defaultSize, maxSize int) PageRequest {
	p := PageRequest{Page: 1, PageSize: defaultSize}
	if page, err := strconv.Atoi(c.Query("page")); err == nil && page > 0 {
		p.Page = page
	}
	if size, err := strconv.Atoi(c.Query("page_size")); err == nil && size > 0 {
		p.PageSize = min(size, maxSize)
	}
	return p
}

// Of builds the pagination block for a listing with total matching items
func (p PageRequest) Of(total int) api.Pagination {
	totalPages := 0
	if p.PageSize > 0 {
		totalPages = (total + p.PageSize - 1) / p.PageSize
	}
	return api.Pagination{Page: p.Page, PageSize: p.PageSize, Total: total, TotalPages: totalPages}
}

// ParseFilters returns the non-empty trimmed query params for the given keys
func ParseFilters(c *gin.Context, keys ...string) map[string]string {
	filters := make(map[string]string, len(keys))
	for _, key := range keys {
		if val := strings.TrimSpace(c.Query(key)); val != "" {
			filters[key] = val
		}
	}
	return filters
}
