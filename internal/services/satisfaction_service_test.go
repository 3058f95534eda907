package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"triageapp/internal/config"
	"triageapp/internal/models"
	contextutils "triageapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSatisfactionService_Submit(t *testing.T) {
	f := newReportFixture(t)
	svc := NewSatisfactionService(f.reports, f.ratings, testLogger())
	ctx := context.Background()
	report := f.create(t)

	_, err := svc.Submit(ctx, reporter, report.ID, models.RatingPositive, "")
	assert.True(t, errors.Is(err, contextutils.ErrSatisfactionNotAllowed), "open reports cannot be rated")

	_, err = f.svc.UpdateStatus(ctx, staff, report.ID, models.StatusResolved)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, stranger, report.ID, models.RatingPositive, "")
	assert.True(t, errors.Is(err, contextutils.ErrForbidden))

	rating, err := svc.Submit(ctx, reporter, report.ID, models.RatingNegative, "  slow fix  ")
	require.NoError(t, err)
	assert.Equal(t, models.RatingNegative, rating.Rating)
	assert.Equal(t, "slow fix", rating.Feedback.String)

	_, err = svc.Submit(ctx, reporter, report.ID, models.RatingPositive, "changed my mind")
	assert.True(t, errors.Is(err, contextutils.ErrSatisfactionExists))

	got, err := svc.Get(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RatingNegative, got.Rating, "the first rating stands")
}

func TestSatisfactionService_Submit_ClosedReport(t *testing.T) {
	f := newReportFixture(t)
	svc := NewSatisfactionService(f.reports, f.ratings, testLogger())
	ctx := context.Background()
	report := f.create(t)

	_, err := f.svc.UpdateStatus(ctx, staff, report.ID, models.StatusClosed)
	require.NoError(t, err)

	rating, err := svc.Submit(ctx, reporter, report.ID, models.RatingPositive, "")
	require.NoError(t, err)
	assert.False(t, rating.Feedback.Valid)
}

func TestSatisfactionService_Submit_Validation(t *testing.T) {
	f := newReportFixture(t)
	svc := NewSatisfactionService(f.reports, f.ratings, testLogger())
	ctx := context.Background()
	report := f.create(t)

	_, err := svc.Submit(ctx, reporter, report.ID, "neutral", "")
	assert.True(t, errors.Is(err, contextutils.ErrValidation))

	_, err = svc.Submit(ctx, reporter, report.ID, models.RatingPositive, strings.Repeat("x", config.MaxFeedbackLength+1))
	assert.True(t, errors.Is(err, contextutils.ErrValidation))

	_, err = svc.Get(ctx, report.ID)
	assert.True(t, errors.Is(err, contextutils.ErrRecordNotFound))
}
