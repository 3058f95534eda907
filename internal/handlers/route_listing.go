package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"

	"triageapp/internal/observability"

	"github.com/gin-gonic/gin"
)

// RouteInfo describes one registered route
type RouteInfo struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Zone   string `json:"zone"`
}

// RouteListingHandler lists the routes a router serves
type RouteListingHandler struct {
	serviceName string
	routes      []RouteInfo
}

// NewRouteListingHandler creates a new route listing handler
func NewRouteListingHandler(serviceName string) *RouteListingHandler {
	return &RouteListingHandler{serviceName: serviceName, routes: []RouteInfo{}}
}

// routeZone classifies a path by the access it requires
func routeZone(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/admin/"), strings.HasPrefix(path, "/v1/worker/"):
		return "admin"
	case strings.HasPrefix(path, "/v1/"):
		return "user"
	default:
		return "public"
	}
}

// CollectRoutes snapshots the routes of engine, sorted by path then method
func (h *RouteListingHandler) CollectRoutes(engine *gin.Engine) {
	h.routes = []RouteInfo{}
	for _, route := range engine.Routes() {
		if strings.HasPrefix(route.Path, "/debug/") {
			continue
		}
		h.routes = append(h.routes, RouteInfo{Method: route.Method, Path: route.Path, Zone: routeZone(route.Path)})
	}
	sort.Slice(h.routes, func(i, j int) bool {
		if h.routes[i].Path == h.routes[j].Path {
			return h.routes[i].Method < h.routes[j].Method
		}
		return h.routes[i].Path < h.routes[j].Path
	})
}

// GetRouteListing answers with JSON when asked for it and a plain table otherwise
func (h *RouteListingHandler) GetRouteListing(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_route_listing")
	defer observability.FinishSpan(span, nil)

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	if c.Query("json") == "true" || strings.Contains(c.GetHeader("Accept"), "application/json") {
		c.JSON(http.StatusOK, gin.H{"service": h.serviceName, "routes": h.routes})
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d routes\n\n", h.serviceName, len(h.routes))
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "METHOD\tPATH\tACCESS")
	for _, r := range h.routes {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Method, r.Path, r.Zone)
	}
	_ = tw.Flush()
	c.String(http.StatusOK, b.String())
}
