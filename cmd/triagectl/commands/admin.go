package commands

import (
	"strconv"

	"triageapp/internal/api"
	"triageapp/internal/client/apiclient"
	"triageapp/internal/models"
	contextutils "triageapp/internal/utils"

	"github.com/spf13/cobra"
)

// AdminCommands returns the staff commands
func AdminCommands(app *App) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Staff triage commands",
		Long: `Staff triage commands. The API key must belong to a staff account.

Available commands:
  list     - List reports with filters
  status   - Change the status of a report
  assign   - Assign a report to a staff member
  archive  - Archive a report
  analyze  - Start a new analysis job
  jobs     - List the analysis jobs of a report`,
	}
	adminCmd.AddCommand(adminListCmd(app))
	adminCmd.AddCommand(adminStatusCmd(app))
	adminCmd.AddCommand(adminAssignCmd(app))
	adminCmd.AddCommand(adminArchiveCmd(app))
	adminCmd.AddCommand(adminAnalyzeCmd(app))
	adminCmd.AddCommand(adminJobsCmd(app))
	return adminCmd
}

func adminListCmd(app *App) *cobra.Command {
	var filter apiclient.AdminFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			if filter.Status != "" && !models.ReportStatus(filter.Status).IsValid() {
				return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown status %q", filter.Status)
			}
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			list, err := client.AdminListReports(ctx, filter)
			if err != nil {
				return err
			}
			printReports(cmd.OutOrStdout(), list)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&filter.Status, "status", "", "Filter by status")
	f.StringVar(&filter.Severity, "severity", "", "Filter by severity")
	f.StringVar(&filter.Category, "category", "", "Filter by category")
	f.StringVar(&filter.ReportType, "type", "", "Filter by report type")
	f.IntVar(&filter.AssignedTo, "assigned-to", 0, "Filter by assignee user id")
	f.IntVar(&filter.UserID, "user", 0, "Filter by reporter user id")
	f.BoolVar(&filter.IncludeArchived, "archived", false, "Include archived reports")
	f.StringVarP(&filter.Search, "query", "q", "", "Search titles and descriptions")
	f.IntVar(&filter.Page, "page", 1, "Page number")
	f.IntVar(&filter.PageSize, "page-size", 20, "Reports per page")
	return cmd
}

func adminStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:       "status <report-id|link> <open|in_progress|resolved|closed>",
		Short:     "Change the status of a report",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{api.StatusOpen, api.StatusInProgress, api.StatusResolved, api.StatusClosed},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			id, err := reportID(args[0])
			if err != nil {
				return err
			}
			if !models.ReportStatus(args[1]).IsValid() {
				return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown status %q", args[1])
			}
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			report, err := client.UpdateStatus(ctx, id, args[1])
			if err != nil {
				return err
			}
			cmd.Printf("Report %s is now %s\n", report.ID, report.Status)
			return nil
		},
	}
}

func adminAssignCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <report-id|link> <user-id>",
		Short: "Assign a report to a staff member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			id, err := reportID(args[0])
			if err != nil {
				return err
			}
			assignee, err := strconv.Atoi(args[1])
			if err != nil || assignee < 1 {
				return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid user id %q", args[1])
			}
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			report, err := client.AssignReport(ctx, id, assignee)
			if err != nil {
				return err
			}
			cmd.Printf("Report %s assigned to user %d\n", report.ID, assignee)
			return nil
		},
	}
}

func adminArchiveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <report-id|link>",
		Short: "Archive a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			id, err := reportID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			report, err := client.ArchiveReport(ctx, id)
			if err != nil {
				return err
			}
			cmd.Printf("Report %s archived\n", report.ID)
			return nil
		},
	}
}

func adminAnalyzeCmd(app *App) *cobra.Command {
	var opts api.StartAnalysisRequest
	cmd := &cobra.Command{
		Use:   "analyze <report-id|link>",
		Short: "Start a new analysis job",
		Long: `Start a new analysis job. Earlier jobs are kept; the report shows the newest one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadView(cmd, app, args[0], true)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			job, err := v.Reanalyze(ctx, opts)
			if err != nil {
				return err
			}
			cmd.Printf("Analysis job %s is %s\n", job.ID, job.Status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.IncludeScreenshot, "screenshot", true, "Let the analyzer look at the screenshot")
	cmd.Flags().BoolVar(&opts.IncludeVideo, "video", false, "Let the analyzer look at the recording")
	return cmd
}

func adminJobsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs <report-id|link>",
		Short: "List the analysis jobs of a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			id, err := reportID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			jobs, err := client.ListJobs(ctx, id)
			if err != nil {
				return err
			}
			printJobs(cmd.OutOrStdout(), jobs)
			return nil
		},
	}
}
