// Package apiclient is the Go client of the triage HTTP API. The composer, the
// conversation view and triagectl talk to the server through it.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"triageapp/internal/api"
	contextutils "triageapp/internal/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds one API call, uploads included
const DefaultTimeout = 60 * time.Second

// Client calls the triage API with a bearer API key
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the API at baseURL
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
			),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client talks to
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "failed to build request: %v", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends the request and decodes a 2xx JSON body into out. Error bodies become AppErrors.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeTimeout, contextutils.SeverityWarn,
				"request cancelled", req.URL.Path, err)
		}
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeServiceUnavailable, contextutils.SeverityError,
			"triage API unreachable", req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "failed to read response body: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, body)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to decode %s response: %v", req.URL.Path, err)
	}
	return nil
}

// decodeError maps an error response back onto the sentinel with the same code
func decodeError(status int, body []byte) error {
	var er api.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Code == "" {
		return statusError(status, strings.TrimSpace(string(body)))
	}
	message := er.Message
	if message == "" {
		message = er.Error
	}
	if sentinel := contextutils.SentinelForCode(contextutils.ErrorCode(er.Code)); sentinel != nil {
		if message == "" {
			message = sentinel.Message
		}
		return contextutils.NewAppError(sentinel.Code, sentinel.Severity, message, er.Details)
	}
	return contextutils.NewAppError(contextutils.ErrorCode(er.Code), contextutils.SeverityLevel(er.Severity), message, er.Details)
}

func statusError(status int, details string) error {
	if len(details) > 200 {
		details = details[:200]
	}
	switch {
	case status == http.StatusUnauthorized:
		return contextutils.WrapError(contextutils.ErrUnauthorized, details)
	case status == http.StatusForbidden:
		return contextutils.WrapError(contextutils.ErrForbidden, details)
	case status == http.StatusNotFound:
		return contextutils.WrapError(contextutils.ErrRecordNotFound, details)
	case status == http.StatusTooManyRequests:
		return contextutils.WrapError(contextutils.ErrRateLimit, details)
	case status >= 500:
		return contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "status %d: %s", status, details)
	default:
		return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "status %d: %s", status, details)
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "failed to encode request: %v", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func reportPath(id string, rest ...string) string {
	return "/v1/reports/" + url.PathEscape(id) + strings.Join(rest, "")
}

func adminReportPath(id string, rest ...string) string {
	return "/v1/admin/reports/" + url.PathEscape(id) + strings.Join(rest, "")
}

// Health calls GET /health
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var out api.HealthResponse
	if err := c.getJSON(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the user the API key belongs to
func (c *Client) Me(ctx context.Context) (*api.UserProfile, error) {
	var out api.UserProfile
	if err := c.getJSON(ctx, "/v1/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PresignUpload asks the server for an upload target
func (c *Client) PresignUpload(ctx context.Context, req api.PresignUploadRequest) (*api.PresignUploadResponse, error) {
	var out api.PresignUploadResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/v1/uploads/presign", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadBlob sends the raw blob for a presigned upload key and returns its public URL
func (c *Client) UploadBlob(ctx context.Context, uploadKey string, blob []byte, contentType string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPut, "/v1/uploads/"+url.PathEscape(uploadKey), bytes.NewReader(blob), contentType)
	if err != nil {
		return "", err
	}
	req.ContentLength = int64(len(blob))
	var out api.UploadBlobResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.PublicURL, nil
}

// UploadMedia presigns and uploads one blob. Failures other than an expired target come back as ErrUploadFailed.
func (c *Client) UploadMedia(ctx context.Context, blob []byte, contentType, filename, category string) (string, error) {
	target, err := c.PresignUpload(ctx, api.PresignUploadRequest{
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   int64(len(blob)),
		Category:    category,
	})
	if err != nil {
		return "", uploadError(err, filename)
	}
	publicURL, err := c.UploadBlob(ctx, target.UploadKey, blob, contentType)
	if err != nil {
		return "", uploadError(err, filename)
	}
	return publicURL, nil
}

func uploadError(err error, filename string) error {
	if contextutils.IsError(err, contextutils.ErrUploadExpired) {
		return err
	}
	return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeUploadFailed, contextutils.SeverityWarn,
		"media upload failed", filename, err)
}

// CreateReport submits a new report
func (c *Client) CreateReport(ctx context.Context, req api.CreateReportRequest) (*api.Report, error) {
	var out api.Report
	if err := c.sendJSON(ctx, http.MethodPost, "/v1/reports", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListReports lists the caller's own reports
func (c *Client) ListReports(ctx context.Context, page, pageSize int) (*api.ReportList, error) {
	q := url.Values{}
	setPage(q, page, pageSize)
	var out api.ReportList
	if err := c.getJSON(ctx, "/v1/reports"+encode(q), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReport returns the report with its messages, satisfaction and latest analysis job
func (c *Client) GetReport(ctx context.Context, reportID string) (*api.ReportThread, error) {
	var out api.ReportThread
	if err := c.getJSON(ctx, reportPath(reportID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddMessage posts to a report thread. Closed reports fail with ErrReportClosed.
func (c *Client) AddMessage(ctx context.Context, reportID, body string) (*api.Message, error) {
	var out api.Message
	if err := c.sendJSON(ctx, http.MethodPost, reportPath(reportID, "/messages"), api.CreateMessageRequest{Body: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitSatisfaction rates a resolved or closed report
func (c *Client) SubmitSatisfaction(ctx context.Context, reportID string, req api.SatisfactionRequest) (*api.SatisfactionRating, error) {
	var out api.SatisfactionRating
	if err := c.sendJSON(ctx, http.MethodPost, reportPath(reportID, "/satisfaction"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LatestAnalysis returns the newest analysis job of a report
func (c *Client) LatestAnalysis(ctx context.Context, reportID string) (*api.AnalysisJob, error) {
	var out api.AnalysisJob
	if err := c.getJSON(ctx, reportPath(reportID, "/analysis/latest"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminFilter narrows the staff report listing. Zero values are not sent.
type AdminFilter struct {
	Status          string
	Severity        string
	Category        string
	ReportType      string
	AssignedTo      int
	UserID          int
	IncludeArchived bool
	Search          string
	Page            int
	PageSize        int
}

func (f AdminFilter) values() url.Values {
	q := url.Values{}
	set := func(key, value string) {
		if value != "" {
			q.Set(key, value)
		}
	}
	set("status", f.Status)
	set("severity", f.Severity)
	set("category", f.Category)
	set("report_type", f.ReportType)
	set("q", f.Search)
	if f.AssignedTo > 0 {
		q.Set("assigned_to", strconv.Itoa(f.AssignedTo))
	}
	if f.UserID > 0 {
		q.Set("user_id", strconv.Itoa(f.UserID))
	}
	if f.IncludeArchived {
		q.Set("include_archived", "true")
	}
	setPage(q, f.Page, f.PageSize)
	return q
}

func setPage(q url.Values, page, pageSize int) {
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
}

func encode(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// AdminListReports lists every report matching the filter
func (c *Client) AdminListReports(ctx context.Context, filter AdminFilter) (*api.ReportList, error) {
	var out api.ReportList
	if err := c.getJSON(ctx, "/v1/admin/reports"+encode(filter.values()), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateStatus moves a report to a new status
func (c *Client) UpdateStatus(ctx context.Context, reportID, status string) (*api.Report, error) {
	var out api.Report
	if err := c.sendJSON(ctx, http.MethodPut, adminReportPath(reportID, "/status"), api.UpdateStatusRequest{Status: status}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignReport assigns a report to a staff member
func (c *Client) AssignReport(ctx context.Context, reportID string, assigneeID int) (*api.Report, error) {
	var out api.Report
	if err := c.sendJSON(ctx, http.MethodPut, adminReportPath(reportID, "/assignee"), api.AssignReportRequest{AssigneeID: assigneeID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ArchiveReport hides a report from the default listings
func (c *Client) ArchiveReport(ctx context.Context, reportID string) (*api.Report, error) {
	var out api.Report
	if err := c.sendJSON(ctx, http.MethodPost, adminReportPath(reportID, "/archive"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartAnalysis queues a new analysis job for a report
func (c *Client) StartAnalysis(ctx context.Context, reportID string, req api.StartAnalysisRequest) (*api.AnalysisJob, error) {
	var out api.AnalysisJob
	if err := c.sendJSON(ctx, http.MethodPost, adminReportPath(reportID, "/analysis"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListJobs returns every analysis job of a report, newest first
func (c *Client) ListJobs(ctx context.Context, reportID string) ([]api.AnalysisJob, error) {
	var out api.JobList
	if err := c.getJSON(ctx, adminReportPath(reportID, "/analysis"), &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// String is used in log fields
func (c *Client) String() string {
	return fmt.Sprintf("apiclient(%s)", c.baseURL)
}
