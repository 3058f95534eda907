package services

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"triageapp/internal/config"
	"triageapp/internal/helpdocs"
	"triageapp/internal/models"
	"triageapp/internal/observability"
	contextutils "triageapp/internal/utils"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

//go:embed templates/*.tmpl templates/*.json
var analyzerTemplatesFS embed.FS

const (
	triagePromptTemplate = "triage_prompt.tmpl"
	analysisSchemaFile   = "templates/analysis_schema.json"
	triageUserAgent      = "triageapp/1.0"
)

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// chatMessage content is either a plain string or a list of content parts
type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *jsonSchemaSpec `json:"json_schema,omitempty"`
}

type jsonSchemaSpec struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type promptData struct {
	models.AnalysisInput
	HasScreenshot bool
	DocsListing   string
	Schema        string
}

// TriageAnalyzer asks an OpenAI-compatible provider for a structured triage verdict
type TriageAnalyzer struct {
	httpClient  *http.Client
	provider    config.ProviderConfig
	temperature float64
	catalog     *helpdocs.Catalog
	prompt      *template.Template
	schema      []byte
	semaphore   chan struct{}
	logger      *observability.Logger
}

var _ Analyzer = (*TriageAnalyzer)(nil)

// NewTriageAnalyzer creates an analyzer for the configured provider
func NewTriageAnalyzer(cfg config.AnalysisConfig, catalog *helpdocs.Catalog, logger *observability.Logger) (*TriageAnalyzer, error) {
	if cfg.Provider.URL == "" {
		return nil, contextutils.WrapError(contextutils.ErrAIConfigInvalid, "analysis provider url is required")
	}
	if cfg.Provider.Model == "" {
		return nil, contextutils.WrapError(contextutils.ErrAIConfigInvalid, "analysis provider model is required")
	}
	if catalog == nil {
		catalog = helpdocs.Default()
	}

	prompt, err := template.ParseFS(analyzerTemplatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to parse analyzer templates")
	}
	schema, err := analyzerTemplatesFS.ReadFile(analysisSchemaFile)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to read analysis schema")
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &TriageAnalyzer{
		httpClient: &http.Client{
			Timeout: config.AIRequestTimeout - 5*time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
			),
		},
		provider:    cfg.Provider,
		temperature: cfg.Temperature,
		catalog:     catalog,
		prompt:      prompt,
		schema:      schema,
		semaphore:   make(chan struct{}, maxConcurrent),
		logger:      logger,
	}, nil
}

// Analyze runs one triage request. Only one request per semaphore slot is in flight.
func (a *TriageAnalyzer) Analyze(ctx context.Context, in models.AnalysisInput) (result *models.AnalysisOutput, err error) {
	ctx, span := observability.TraceAIFunction(ctx, "analyze",
		observability.AttributeReportID(in.ReportID),
		attribute.String("ai.provider", a.provider.Name),
		attribute.String("ai.model", a.provider.Model),
		attribute.Bool("ai.has_screenshot", in.ScreenshotURL != ""),
		attribute.Bool("ai.has_video", in.VideoURL != ""),
	)
	defer observability.FinishSpan(span, &err)

	select {
	case a.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, contextutils.WrapErrorf(contextutils.ErrTimeout, "cancelled while waiting for an analysis slot: %v", ctx.Err())
	}
	defer func() { <-a.semaphore }()

	ctx, cancel := context.WithTimeout(ctx, config.AIRequestTimeout)
	defer cancel()

	prompt, err := a.renderPrompt(in)
	if err != nil {
		return nil, err
	}

	content, model, err := a.complete(ctx, a.buildRequest(prompt, in))
	if err != nil {
		return nil, err
	}

	res, err := a.parseResult(content)
	if err != nil {
		return nil, err
	}
	a.normalize(res, in)

	if model == "" {
		model = a.provider.Model
	}
	span.SetAttributes(attribute.String("ai.model_used", model), attribute.Int("ai.related_docs", len(res.RelatedDocs)))
	return &models.AnalysisOutput{Result: *res, ModelUsed: model}, nil
}

func (a *TriageAnalyzer) renderPrompt(in models.AnalysisInput) (string, error) {
	data := promptData{
		AnalysisInput: in,
		HasScreenshot: in.ScreenshotURL != "",
		DocsListing:   a.catalog.Listing(),
		Schema:        string(a.schema),
	}
	// without vision the screenshot is only passed as a link
	if data.HasScreenshot && !a.provider.SupportsVision {
		data.HasScreenshot = false
		data.Description += "\n\nScreenshot: " + in.ScreenshotURL
	}
	var b bytes.Buffer
	if err := a.prompt.ExecuteTemplate(&b, triagePromptTemplate, data); err != nil {
		return "", contextutils.WrapErrorf(err, "failed to render %s", triagePromptTemplate)
	}
	return b.String(), nil
}

func (a *TriageAnalyzer) buildRequest(prompt string, in models.AnalysisInput) chatRequest {
	msg := chatMessage{Role: "user", Content: prompt}
	if in.ScreenshotURL != "" && a.provider.SupportsVision {
		msg.Content = []contentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &imageURL{URL: in.ScreenshotURL}},
		}
	}

	req := chatRequest{
		Model:       a.provider.Model,
		Messages:    []chatMessage{msg},
		Temperature: a.temperature,
		MaxTokens:   a.provider.MaxTokens,
	}
	if a.provider.SupportsJSONSchema {
		req.ResponseFormat = &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchemaSpec{Name: "triage_analysis", Schema: json.RawMessage(a.schema)},
		}
	}
	return req
}

// complete posts to /chat/completions and returns the first choice and the model that answered
func (a *TriageAnalyzer) complete(ctx context.Context, reqBody chatRequest) (string, string, error) {
	apiURL := strings.TrimSuffix(a.provider.URL, "/") + "/chat/completions"

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", "", contextutils.WrapErrorf(err, "failed to marshal request body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", "", contextutils.WrapErrorf(err, "failed to create HTTP request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", triageUserAgent)
	if a.provider.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.provider.APIKey)
	}

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		return "", "", contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "HTTP request failed after %v: %v", duration, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{"error": err.Error()})
		}
	}()

	a.logger.Info(ctx, "Analysis request completed", map[string]interface{}{
		"provider":    a.provider.Name,
		"model":       a.provider.Model,
		"duration":    duration.String(),
		"status_code": resp.StatusCode,
	})

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "failed to read response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "API request failed with status %d: %s", resp.StatusCode, truncate(string(body), 500))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", "", contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid, "failed to parse AI response as JSON: %v", err)
	}
	if chatResp.Error != nil {
		return "", "", contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "provider error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", "", contextutils.WrapError(contextutils.ErrAIResponseInvalid, "no choices in AI response")
	}
	content := chatResp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", "", contextutils.WrapError(contextutils.ErrAIResponseInvalid, "AI returned empty content")
	}
	return content, chatResp.Model, nil
}

// parseResult validates the model output against the embedded schema before decoding it
func (a *TriageAnalyzer) parseResult(content string) (*models.AnalysisResult, error) {
	cleaned := cleanJSONResponse(content)

	validation, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(a.schema),
		gojsonschema.NewStringLoader(cleaned),
	)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid, "AI response is not valid JSON: %v", err)
	}
	if !validation.Valid() {
		msgs := make([]string, 0, len(validation.Errors()))
		for _, e := range validation.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid, "AI response failed schema validation: %s", strings.Join(msgs, "; "))
	}

	var res models.AnalysisResult
	if err := json.Unmarshal([]byte(cleaned), &res); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid, "failed to decode analysis: %v", err)
	}
	if err := res.Validate(); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrAIResponseInvalid, err.Error())
	}
	return &res, nil
}

// normalize drops media sections for media that was not supplied and keeps only catalog docs
func (a *TriageAnalyzer) normalize(res *models.AnalysisResult, in models.AnalysisInput) {
	if in.ScreenshotURL == "" {
		res.ScreenshotAnalysis = nil
	}
	if in.VideoURL == "" {
		res.VideoAnalysis = nil
	}

	docs := make([]models.RelatedDoc, 0, len(res.RelatedDocs))
	for _, d := range res.RelatedDocs {
		section, article, ok := a.catalog.Lookup(d.SectionID, d.ArticleID)
		if !ok {
			a.logger.Debug(context.Background(), "Dropping unknown related doc", map[string]interface{}{
				"section_id": d.SectionID,
				"article_id": d.ArticleID,
			})
			continue
		}
		d.SectionTitle = section.Title
		d.ArticleTitle = article.Title
		docs = append(docs, d)
	}
	res.RelatedDocs = docs

	if res.SuggestedSolutions == nil {
		res.SuggestedSolutions = []models.SuggestedSolution{}
	}
	for i := range res.SuggestedSolutions {
		if res.SuggestedSolutions[i].Steps == nil {
			res.SuggestedSolutions[i].Steps = []string{}
		}
	}
}

// Close releases idle provider connections
func (a *TriageAnalyzer) Close() {
	a.httpClient.CloseIdleConnections()
}

// cleanJSONResponse strips markdown code fences some providers wrap around JSON
func cleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimSuffix(response, "```")
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(response, "```")
	}
	return strings.TrimSpace(response)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return contextutils.TruncateUTF8(s, n)
	}
	return contextutils.TruncateUTF8(s, n) + "..."
}
