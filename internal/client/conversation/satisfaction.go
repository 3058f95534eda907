package conversation

import (
	"context"
	"strings"
	"sync"

	"triageapp/internal/api"
	contextutils "triageapp/internal/utils"
)

// SatisfactionAPI submits a rating for a report
type SatisfactionAPI interface {
	SubmitSatisfaction(ctx context.Context, reportID string, req api.SatisfactionRequest) (*api.SatisfactionRating, error)
}

// SatisfactionCollector decides when to ask the reporter for a rating.
// A local submission suppresses the prompt at once; the server state wins on the next reconcile.
type SatisfactionCollector struct {
	mu        sync.Mutex
	api       SatisfactionAPI
	reportID  string
	status    string
	server    *api.SatisfactionRating
	pending   bool
	inFlight  bool
	dismissed bool
}

// NewSatisfactionCollector creates a collector for one report
func NewSatisfactionCollector(client SatisfactionAPI, reportID string) *SatisfactionCollector {
	return &SatisfactionCollector{api: client, reportID: reportID}
}

func acceptsFeedback(status string) bool {
	return status == api.StatusResolved || status == api.StatusClosed
}

// ShouldPrompt is true when the report is resolved or closed and no rating exists or is on its way
func (s *SatisfactionCollector) ShouldPrompt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return acceptsFeedback(s.status) && s.server == nil && !s.pending && !s.dismissed
}

// Rating returns the rating known from the server
func (s *SatisfactionCollector) Rating() *api.SatisfactionRating {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	r := *s.server
	return &r
}

// Dismiss hides the prompt for the lifetime of the collector without rating
func (s *SatisfactionCollector) Dismiss() {
	s.mu.Lock()
	s.dismissed = true
	s.mu.Unlock()
}

// Reconcile applies the latest server view of the report
func (s *SatisfactionCollector) Reconcile(status string, rating *api.SatisfactionRating) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	if rating != nil {
		r := *rating
		s.server = &r
		s.pending = false
		return
	}
	if !s.inFlight {
		s.pending = false
	}
}

// Submit records the rating. The prompt is suppressed before the call returns.
func (s *SatisfactionCollector) Submit(ctx context.Context, rating, feedback string) (*api.SatisfactionRating, error) {
	if rating != "positive" && rating != "negative" {
		return nil, contextutils.WrapErrorf(contextutils.ErrValidation, "rating must be positive or negative, got %q", rating)
	}

	s.mu.Lock()
	switch {
	case s.server != nil:
		s.mu.Unlock()
		return nil, contextutils.ErrSatisfactionExists
	case s.inFlight:
		s.mu.Unlock()
		return nil, contextutils.WrapError(contextutils.ErrConflict, "a rating is already being submitted")
	}
	s.pending = true
	s.inFlight = true
	s.mu.Unlock()

	req := api.SatisfactionRequest{Rating: rating}
	if fb := strings.TrimSpace(feedback); fb != "" {
		req.Feedback = &fb
	}
	out, err := s.api.SubmitSatisfaction(ctx, s.reportID, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err != nil {
		return nil, err
	}
	r := *out
	s.server = &r
	return out, nil
}
