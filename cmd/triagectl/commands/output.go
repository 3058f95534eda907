package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"triageapp/internal/api"
	"triageapp/internal/client/conversation"
)

const timeLayout = "2006-01-02 15:04"

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func printReports(w io.Writer, list *api.ReportList) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSEVERITY\tCATEGORY\tTITLE\tCREATED")
	for _, r := range list.Reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Status, r.Severity, r.Category, truncate(r.Title, 48), r.CreatedAt.Local().Format(timeLayout))
	}
	_ = tw.Flush()
	p := list.Pagination
	fmt.Fprintf(w, "page %d of %d (%d reports)\n", p.Page, max(p.TotalPages, 1), p.Total)
}

func printReport(w io.Writer, r api.Report, link string) {
	fmt.Fprintf(w, "%s\n", r.Title)
	fmt.Fprintf(w, "  id:        %s\n", r.ID)
	fmt.Fprintf(w, "  status:    %s\n", r.Status)
	fmt.Fprintf(w, "  type:      %s  severity: %s  category: %s\n", r.ReportType, r.Severity, r.Category)
	if r.AssignedTo != nil {
		fmt.Fprintf(w, "  assignee:  %d\n", *r.AssignedTo)
	}
	if r.PageURL != "" {
		fmt.Fprintf(w, "  page:      %s\n", r.PageURL)
	}
	if r.ScreenshotURL != nil {
		fmt.Fprintf(w, "  screenshot: %s\n", *r.ScreenshotURL)
	}
	if r.VideoURL != nil {
		fmt.Fprintf(w, "  video:     %s\n", *r.VideoURL)
	}
	if link != "" {
		fmt.Fprintf(w, "  link:      %s\n", link)
	}
	fmt.Fprintf(w, "\n%s\n", r.Description)
}

func printMessages(w io.Writer, msgs []api.Message) {
	for _, m := range msgs {
		ts := m.CreatedAt.Local().Format(timeLayout)
		if m.SystemType != nil {
			fmt.Fprintf(w, "%s  -- %s --\n", ts, m.Body)
			continue
		}
		author := m.AuthorName
		if m.IsAdmin {
			author += " (support)"
		}
		fmt.Fprintf(w, "%s  %s:\n", ts, author)
		for _, line := range strings.Split(m.Body, "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
}

func printCard(w io.Writer, card conversation.AnalysisCard) {
	switch card.State {
	case conversation.CardNone:
		return
	case conversation.CardInProgress:
		fmt.Fprintf(w, "\nAnalysis: in progress (job %s)\n", card.Job.ID)
		return
	case conversation.CardFailed:
		fmt.Fprintf(w, "\nAnalysis failed: %s\n", card.Error)
		return
	}
	job := card.Job
	fmt.Fprintf(w, "\nAnalysis (%s confidence)\n", deref(job.Confidence))
	fmt.Fprintf(w, "  summary: %s\n", deref(job.Summary))
	fmt.Fprintf(w, "  cause:   %s\n", deref(job.SuggestedCause))
	for i, s := range job.SuggestedSolutions {
		fmt.Fprintf(w, "  %d. %s [%s, %s]\n", i+1, s.Title, s.Confidence, s.EstimatedEffort)
		for _, step := range s.Steps {
			fmt.Fprintf(w, "       - %s\n", step)
		}
	}
	for _, d := range job.RelatedDocs {
		fmt.Fprintf(w, "  see: %s / %s\n", d.SectionTitle, d.ArticleTitle)
	}
}

func printJobs(w io.Writer, jobs []api.AnalysisJob) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSTATUS\tMEDIA\tMODEL\tDURATION\tCREATED")
	for _, j := range jobs {
		var media []string
		if j.IncludeScreenshot {
			media = append(media, "screenshot")
		}
		if j.IncludeVideo {
			media = append(media, "video")
		}
		if len(media) == 0 {
			media = append(media, "text")
		}
		duration := "-"
		if j.ProcessingTimeMs != nil {
			duration = (time.Duration(*j.ProcessingTimeMs) * time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", j.ID, j.Status, strings.Join(media, "+"), deref(j.ModelUsed), duration, j.CreatedAt.Local().Format(timeLayout))
	}
	_ = tw.Flush()
}

func deref(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
