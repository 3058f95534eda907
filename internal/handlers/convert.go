package handlers

import (
	"triageapp/internal/api"
	"triageapp/internal/models"
	contextutils "triageapp/internal/utils"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

func nullStringPtr(s string, valid bool) *string {
	if !valid {
		return nil
	}
	return &s
}

func convertReportToAPI(r *models.Report) api.Report {
	out := api.Report{
		ID:            r.ID,
		UserID:        r.UserID,
		ReportType:    string(r.ReportType),
		Title:         r.Title,
		Description:   r.Description,
		Severity:      string(r.Severity),
		Category:      string(r.Category),
		Status:        string(r.Status),
		PageURL:       r.PageURL,
		UserAgent:     r.UserAgent,
		ScreenshotURL: models.NullStringToPointer(r.ScreenshotURL),
		VideoURL:      models.NullStringToPointer(r.VideoURL),
		AssignedTo:    models.NullInt32ToIntPointer(r.AssignedTo),
		ResolvedAt:    models.NullTimeToPointer(r.ResolvedAt),
		ClosedAt:      models.NullTimeToPointer(r.ClosedAt),
		ArchivedAt:    models.NullTimeToPointer(r.ArchivedAt),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	return out
}

func convertReportsToAPI(reports []models.Report) []api.Report {
	out := make([]api.Report, 0, len(reports))
	for i := range reports {
		out = append(out, convertReportToAPI(&reports[i]))
	}
	return out
}

func convertMessageToAPI(m *models.Message) api.Message {
	return api.Message{
		ID:         m.ID,
		ReportID:   m.ReportID,
		Seq:        m.Seq,
		AuthorID:   models.NullInt32ToIntPointer(m.AuthorID),
		AuthorName: m.AuthorName,
		IsAdmin:    m.IsAdmin,
		SystemType: nullStringPtr(string(m.SystemType), m.IsSystem()),
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
	}
}

func convertSatisfactionToAPI(s *models.SatisfactionRating) *api.SatisfactionRating {
	if s == nil {
		return nil
	}
	return &api.SatisfactionRating{
		ID:        s.ID,
		ReportID:  s.ReportID,
		UserID:    s.UserID,
		Rating:    string(s.Rating),
		Feedback:  models.NullStringToPointer(s.Feedback),
		CreatedAt: s.CreatedAt,
	}
}

func convertJobToAPI(j *models.AnalysisJob) *api.AnalysisJob {
	if j == nil {
		return nil
	}
	out := &api.AnalysisJob{
		ID:                 j.ID,
		ReportID:           j.ReportID,
		RequestedBy:        models.NullInt32ToIntPointer(j.RequestedBy),
		Status:             string(j.Status),
		IncludeScreenshot:  j.IncludeScreenshot,
		IncludeVideo:       j.IncludeVideo,
		ModelUsed:          models.NullStringToPointer(j.ModelUsed),
		ProcessingTimeMs:   models.NullInt64ToPointer(j.ProcessingTimeMs),
		Error:              models.NullStringToPointer(j.Error),
		CreatedAt:          j.CreatedAt,
		StartedAt:          models.NullTimeToPointer(j.StartedAt),
		CompletedAt:        models.NullTimeToPointer(j.CompletedAt),
		SuggestedSolutions: []api.SuggestedSolution{},
		RelatedDocs:        []api.RelatedDoc{},
	}
	if r := j.Result; r != nil {
		out.Summary = &r.Summary
		out.SuggestedCause = &r.SuggestedCause
		confidence := string(r.Confidence)
		out.Confidence = &confidence
		if sa := r.ScreenshotAnalysis; sa != nil {
			out.ScreenshotAnalysis = &api.ScreenshotAnalysis{
				Description:     sa.Description,
				VisibleErrors:   nonNilStrings(sa.VisibleErrors),
				PotentialIssues: nonNilStrings(sa.PotentialIssues),
			}
		}
		if va := r.VideoAnalysis; va != nil {
			moments := make([]api.ErrorMoment, 0, len(va.ErrorMoments))
			for _, m := range va.ErrorMoments {
				moments = append(moments, api.ErrorMoment{Seconds: m.Seconds, Description: m.Description})
			}
			out.VideoAnalysis = &api.VideoAnalysis{
				Description:       va.Description,
				ReproductionSteps: nonNilStrings(va.ReproductionSteps),
				ErrorMoments:      moments,
			}
		}
		for _, s := range r.SuggestedSolutions {
			out.SuggestedSolutions = append(out.SuggestedSolutions, api.SuggestedSolution{
				Title:           s.Title,
				Description:     s.Description,
				Steps:           nonNilStrings(s.Steps),
				Confidence:      string(s.Confidence),
				EstimatedEffort: string(s.EstimatedEffort),
			})
		}
		for _, d := range r.RelatedDocs {
			out.RelatedDocs = append(out.RelatedDocs, api.RelatedDoc{
				SectionID:    d.SectionID,
				ArticleID:    d.ArticleID,
				SectionTitle: d.SectionTitle,
				ArticleTitle: d.ArticleTitle,
				Relevance:    d.Relevance,
				Excerpt:      d.Excerpt,
			})
		}
	}
	return out
}

func convertJobsToAPI(jobs []models.AnalysisJob) []api.AnalysisJob {
	out := make([]api.AnalysisJob, 0, len(jobs))
	for i := range jobs {
		out = append(out, *convertJobToAPI(&jobs[i]))
	}
	return out
}

func convertThreadToAPI(t *models.ReportThread) api.ReportThread {
	messages := make([]api.Message, 0, len(t.Messages))
	for i := range t.Messages {
		messages = append(messages, convertMessageToAPI(&t.Messages[i]))
	}
	return api.ReportThread{
		Report:       convertReportToAPI(t.Report),
		Messages:     messages,
		Satisfaction: convertSatisfactionToAPI(t.Satisfaction),
		LatestJob:    convertJobToAPI(t.LatestJob),
	}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// convertUserToProfile maps a user to the /v1/me body. A stored address that
// fails email validation is left out, since openapi_types.Email would refuse to marshal it.
func convertUserToProfile(u *models.User) api.UserProfile {
	out := api.UserProfile{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.Name(),
		IsAdmin:     u.IsAdmin,
	}
	if u.Email.Valid && contextutils.IsValidEmail(u.Email.String) {
		email := openapi_types.Email(u.Email.String)
		out.Email = &email
	}
	return out
}
