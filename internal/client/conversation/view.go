// Package conversation keeps the client-side view of a report thread in step with the server.
package conversation

import (
	"context"
	"sort"
	"strings"
	"sync"

	"triageapp/internal/api"
	contextutils "triageapp/internal/utils"
)

// FallbackAnalysisError is shown for failed jobs that carry no message
const FallbackAnalysisError = "Analysis failed. Please try again."

// API is the part of the triage API the view needs
type API interface {
	SatisfactionAPI
	GetReport(ctx context.Context, reportID string) (*api.ReportThread, error)
	AddMessage(ctx context.Context, reportID, body string) (*api.Message, error)
	StartAnalysis(ctx context.Context, reportID string, req api.StartAnalysisRequest) (*api.AnalysisJob, error)
}

// CardState is the display state of the analysis card
type CardState string

// Analysis card states
const (
	CardNone       CardState = "none"
	CardInProgress CardState = "in_progress"
	CardCompleted  CardState = "completed"
	CardFailed     CardState = "failed"
)

// AnalysisCard describes the job the view displays
type AnalysisCard struct {
	State     CardState
	Job       *api.AnalysisJob
	Error     string
	Retryable bool
}

// View is one report thread as seen by a reporter or a staff member
type View struct {
	mu       sync.Mutex
	api      API
	reportID string
	staff    bool
	report   *api.Report
	messages []api.Message
	seen     map[string]struct{}
	job      *api.AnalysisJob

	Satisfaction *SatisfactionCollector
}

// NewView creates an empty view; call Refresh to load it
func NewView(client API, reportID string, staff bool) *View {
	return &View{
		api:          client,
		reportID:     reportID,
		staff:        staff,
		seen:         make(map[string]struct{}),
		Satisfaction: NewSatisfactionCollector(client, reportID),
	}
}

// ReportID returns the id of the viewed report
func (v *View) ReportID() string { return v.reportID }

// Report returns the last fetched report
func (v *View) Report() (api.Report, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.report == nil {
		return api.Report{}, false
	}
	return *v.report, true
}

// Messages returns the thread ordered by sequence number
func (v *View) Messages() []api.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]api.Message, len(v.messages))
	copy(out, v.messages)
	return out
}

// merge adds unseen messages and keeps the thread in server order. Nothing is ever removed.
func (v *View) merge(incoming []api.Message) {
	changed := false
	for _, m := range incoming {
		if _, ok := v.seen[m.ID]; ok {
			continue
		}
		v.seen[m.ID] = struct{}{}
		v.messages = append(v.messages, m)
		changed = true
	}
	if changed {
		sort.SliceStable(v.messages, func(i, j int) bool { return v.messages[i].Seq < v.messages[j].Seq })
	}
}

// newer picks the authoritative job; the same job or a tie goes to the incoming copy
func newer(current, incoming *api.AnalysisJob) *api.AnalysisJob {
	switch {
	case incoming == nil:
		return current
	case current == nil, current.ID == incoming.ID:
		return incoming
	case current.CreatedAt.After(incoming.CreatedAt):
		return current
	default:
		return incoming
	}
}

// Refresh reloads the thread and merges it into the view
func (v *View) Refresh(ctx context.Context) error {
	thread, err := v.api.GetReport(ctx, v.reportID)
	if err != nil {
		return err
	}

	v.mu.Lock()
	report := thread.Report
	v.report = &report
	v.merge(thread.Messages)
	v.job = newer(v.job, thread.LatestJob)
	v.mu.Unlock()

	v.Satisfaction.Reconcile(report.Status, thread.Satisfaction)
	return nil
}

// Send posts a message and appends it; the next refresh will not duplicate it
func (v *View) Send(ctx context.Context, body string) (*api.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, contextutils.WrapError(contextutils.ErrValidation, "message body is empty")
	}
	msg, err := v.api.AddMessage(ctx, v.reportID, body)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.merge([]api.Message{*msg})
	v.mu.Unlock()
	return msg, nil
}

// AnalysisCard returns the display state of the newest known job
func (v *View) AnalysisCard() AnalysisCard {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.job == nil {
		return AnalysisCard{State: CardNone}
	}
	job := *v.job
	card := AnalysisCard{Job: &job}
	switch job.Status {
	case api.JobPending, api.JobProcessing:
		card.State = CardInProgress
	case api.JobCompleted:
		card.State = CardCompleted
		card.Retryable = true
	default:
		card.State = CardFailed
		card.Retryable = true
		card.Error = FallbackAnalysisError
		if job.Error != nil && *job.Error != "" {
			card.Error = *job.Error
		}
	}
	return card
}

// Reanalyze starts a new job and displays it. Only staff views may do this.
func (v *View) Reanalyze(ctx context.Context, opts api.StartAnalysisRequest) (*api.AnalysisJob, error) {
	if !v.staff {
		return nil, contextutils.WrapError(contextutils.ErrForbidden, "only staff can start an analysis")
	}
	job, err := v.api.StartAnalysis(ctx, v.reportID, opts)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	j := *job
	v.job = &j
	v.mu.Unlock()
	return job, nil
}
