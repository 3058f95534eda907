// Package deeplink builds and parses links that open a report thread in the web app.
package deeplink

import (
	"net/url"
	"strings"

	contextutils "triageapp/internal/utils"

	"github.com/google/uuid"
)

const reportsPath = "/support/reports/"

// Build returns {base}/support/reports/{id}
func Build(baseURL, reportID string) string {
	return strings.TrimRight(baseURL, "/") + reportsPath + url.PathEscape(reportID)
}

// Parse extracts the report id from a deep link, a ?reportId= query or a bare id
func Parse(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", contextutils.WrapError(contextutils.ErrInvalidInput, "empty report link")
	}
	if _, err := uuid.Parse(raw); err == nil {
		return strings.ToLower(raw), nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid report link %q", raw)
	}
	if id := u.Query().Get("reportId"); id != "" {
		return validID(id)
	}
	if idx := strings.Index(u.Path, reportsPath); idx != -1 {
		id := strings.Trim(u.Path[idx+len(reportsPath):], "/")
		return validID(id)
	}
	return "", contextutils.WrapErrorf(contextutils.ErrInvalidInput, "no report id in %q", raw)
}

func validID(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid report id %q", id)
	}
	return strings.ToLower(id), nil
}
