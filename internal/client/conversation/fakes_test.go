package conversation

import (
	"context"
	"sync"
	"time"

	"triageapp/internal/api"
)

type fakeAPI struct {
	mu       sync.Mutex
	thread   api.ReportThread
	fetchErr error

	sendErr error
	nextSeq int64

	jobs []api.AnalysisJob

	ratingErr  error
	ratings    int
	onRating   func()
	ratingSeen *api.SatisfactionRating
}

func (f *fakeAPI) GetReport(ctx context.Context, reportID string) (*api.ReportThread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	t := f.thread
	t.Messages = append([]api.Message(nil), f.thread.Messages...)
	return &t, nil
}

func (f *fakeAPI) AddMessage(ctx context.Context, reportID, body string) (*api.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextSeq++
	m := api.Message{ID: "sent-" + body, ReportID: reportID, Seq: f.nextSeq, Body: body}
	f.thread.Messages = append(f.thread.Messages, m)
	return &m, nil
}

func (f *fakeAPI) StartAnalysis(ctx context.Context, reportID string, req api.StartAnalysisRequest) (*api.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	base := f.thread.Report.CreatedAt
	job := api.AnalysisJob{
		ID:        "job-" + string(rune('a'+len(f.jobs))),
		ReportID:  reportID,
		Status:    api.JobPending,
		CreatedAt: base.Add(time.Duration(len(f.jobs)+1) * time.Minute),
	}
	f.jobs = append(f.jobs, job)
	f.thread.LatestJob = &job
	return &job, nil
}

func (f *fakeAPI) SubmitSatisfaction(ctx context.Context, reportID string, req api.SatisfactionRequest) (*api.SatisfactionRating, error) {
	f.mu.Lock()
	f.ratings++
	hook := f.onRating
	err := f.ratingErr
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	r := &api.SatisfactionRating{ID: 1, ReportID: reportID, Rating: req.Rating, Feedback: req.Feedback}
	f.mu.Lock()
	f.ratingSeen = r
	f.mu.Unlock()
	return r, nil
}

func (f *fakeAPI) set(fn func(t *api.ReportThread)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.thread)
}
