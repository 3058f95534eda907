package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"triageapp/internal/api"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestParsePagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		query string
		want  PageRequest
	}{
		{"", PageRequest{Page: 1, PageSize: 20}},
		{"?page=abc&page_size=-5", PageRequest{Page: 1, PageSize: 20}},
		{"?page=0&page_size=0", PageRequest{Page: 1, PageSize: 20}},
		{"?page=3&page_size=50", PageRequest{Page: 3, PageSize: 50}},
		{"?page=2&page_size=5000", PageRequest{Page: 2, PageSize: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var got PageRequest
			r := gin.New()
			r.GET("/reports", func(c *gin.Context) {
				got = ParsePagination(c, 20, 100)
				c.Status(http.StatusOK)
			})
			req, _ := http.NewRequest("GET", "/reports"+tt.query, nil)
			r.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPageRequest_Of(t *testing.T) {
	assert.Equal(t, api.Pagination{Page: 1, PageSize: 20, Total: 0, TotalPages: 0}, PageRequest{Page: 1, PageSize: 20}.Of(0))
	assert.Equal(t, api.Pagination{Page: 2, PageSize: 20, Total: 41, TotalPages: 3}, PageRequest{Page: 2, PageSize: 20}.Of(41))
	assert.Equal(t, 0, PageRequest{Page: 1}.Of(5).TotalPages)
}

func TestParseFilters_OnlyNonEmptyTrimmed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var filters map[string]string

	r.GET("/filters", func(c *gin.Context) {
		filters = ParseFilters(c, "q", "report_type", "status", "category", "severity", "assigned_to")
		c.Status(http.StatusOK)
	})

	req, _ := http.NewRequest("GET", "/filters?q=checkout&report_type=bug&status=&category=%20billing%20&severity=high&assigned_to=%09%0A", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, map[string]string{
		"q":           "checkout",
		"report_type": "bug",
		"category":    "billing",
		"severity":    "high",
	}, filters)
}
