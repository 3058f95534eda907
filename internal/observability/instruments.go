package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const analysisDurationMetric = "triage.analysis.duration_ms"

// TriageMetrics holds the counters and histograms recorded by the report and analysis services.
// Instruments come from the global meter provider, so they are no-ops until InitMetrics runs.
type TriageMetrics struct {
	reportsCreated   metric.Int64Counter
	messagesCreated  metric.Int64Counter
	statusChanges    metric.Int64Counter
	analysisJobs     metric.Int64Counter
	analysisDuration metric.Float64Histogram
	uploads          metric.Int64Counter
}

// NewTriageMetrics creates the instruments. Instrument creation errors fall back to no-op instruments.
func NewTriageMetrics() *TriageMetrics {
	meter := otel.Meter(tracerName)
	m := &TriageMetrics{}

	m.reportsCreated, _ = meter.Int64Counter("triage.reports.created",
		metric.WithDescription("Number of reports submitted"))
	m.messagesCreated, _ = meter.Int64Counter("triage.messages.created",
		metric.WithDescription("Number of thread messages appended"))
	m.statusChanges, _ = meter.Int64Counter("triage.reports.status_changes",
		metric.WithDescription("Number of report status transitions"))
	m.analysisJobs, _ = meter.Int64Counter("triage.analysis.jobs",
		metric.WithDescription("Number of analysis jobs by terminal status"))
	m.analysisDuration, _ = meter.Float64Histogram(analysisDurationMetric,
		metric.WithDescription("Analysis processing time"),
		metric.WithUnit("ms"))
	m.uploads, _ = meter.Int64Counter("triage.media.uploads",
		metric.WithDescription("Number of media uploads by category"))

	return m
}

// ReportCreated records a new report.
func (m *TriageMetrics) ReportCreated(ctx context.Context, severity, category string) {
	if m == nil || m.reportsCreated == nil {
		return
	}
	m.reportsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("severity", severity),
		attribute.String("category", category),
	))
}

// MessageCreated records an appended message.
func (m *TriageMetrics) MessageCreated(ctx context.Context, system bool, admin bool) {
	if m == nil || m.messagesCreated == nil {
		return
	}
	m.messagesCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("system", system),
		attribute.Bool("admin", admin),
	))
}

// StatusChanged records a status transition.
func (m *TriageMetrics) StatusChanged(ctx context.Context, from, to string) {
	if m == nil || m.statusChanges == nil {
		return
	}
	m.statusChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// AnalysisFinished records a job reaching a terminal state.
func (m *TriageMetrics) AnalysisFinished(ctx context.Context, status string, durationMs int64) {
	if m == nil || m.analysisJobs == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.analysisJobs.Add(ctx, 1, attrs)
	if m.analysisDuration != nil {
		m.analysisDuration.Record(ctx, float64(durationMs), attrs)
	}
}

// MediaUploaded records a stored upload.
func (m *TriageMetrics) MediaUploaded(ctx context.Context, category string) {
	if m == nil || m.uploads == nil {
		return
	}
	m.uploads.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}
