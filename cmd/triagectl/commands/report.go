package commands

import (
	"net/http"
	"strings"

	"triageapp/internal/client/composer"
	"triageapp/internal/client/conversation"
	"triageapp/internal/client/draft"
	"triageapp/internal/deeplink"
	"triageapp/internal/models"
	contextutils "triageapp/internal/utils"

	"github.com/spf13/cobra"
)

// ReportCommands returns the reporter commands
func ReportCommands(app *App) *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "File and follow up on reports",
		Long: `File and follow up on reports.

Available commands:
  submit  - Submit a new report, optionally with a screenshot or recording
  list    - List your reports
  show    - Show a report thread with its analysis
  reply   - Add a message to a report
  rate    - Rate how a resolved report was handled
  open    - Print the web link of a report`,
	}
	reportCmd.AddCommand(submitCmd(app))
	reportCmd.AddCommand(listCmd(app))
	reportCmd.AddCommand(showCmd(app))
	reportCmd.AddCommand(replyCmd(app))
	reportCmd.AddCommand(rateCmd(app))
	reportCmd.AddCommand(openCmd(app))
	return reportCmd
}

// submitOptions are the form fields of report submit
type submitOptions struct {
	title       string
	description string
	descFile    string
	reportType  string
	severity    string
	category    string
	screenshot  string
	video       string
	capture     bool
	pageURL     string
}

// fillDraft copies the options into the draft. Media content types are sniffed from the files.
func fillDraft(store *draft.Store, opts submitOptions) error {
	description := opts.description
	if opts.descFile != "" {
		data, err := readInput(opts.descFile)
		if err != nil {
			return err
		}
		description = string(data)
	}
	if opts.reportType != "" {
		t := models.ReportType(opts.reportType)
		if !t.IsValid() {
			return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown report type %q", opts.reportType)
		}
		store.SetReportType(t)
	}
	if opts.severity != "" {
		sev := models.Severity(opts.severity)
		if !sev.IsValid() {
			return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown severity %q", opts.severity)
		}
		store.SetSeverity(sev)
	}
	if opts.category != "" {
		c := models.Category(opts.category)
		if !c.IsValid() {
			return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "unknown category %q", opts.category)
		}
		store.SetCategory(c)
	}
	store.SetTitle(opts.title)
	store.SetDescription(description)

	if opts.screenshot != "" {
		blob, contentType, err := readMedia(opts.screenshot, "image/")
		if err != nil {
			return err
		}
		store.SetScreenshot(blob, contentType)
	}
	if opts.video != "" {
		blob, contentType, err := readMedia(opts.video, "video/")
		if err != nil {
			return err
		}
		store.SetVideo(blob, contentType)
	}
	return nil
}

func readMedia(path, wantPrefix string) ([]byte, string, error) {
	blob, err := readInput(path)
	if err != nil {
		return nil, "", err
	}
	contentType := http.DetectContentType(blob)
	if !strings.HasPrefix(contentType, wantPrefix) {
		return nil, "", contextutils.WrapErrorf(contextutils.ErrInvalidInput, "%s is %s, expected %s*", path, contentType, wantPrefix)
	}
	return blob, contentType, nil
}

func submitCmd(app *App) *cobra.Command {
	var opts submitOptions

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new report",
		Example: `  triagectl report submit --title "Checkout hangs" --description "Spinner never stops" --severity high --screenshot shot.png
  git log -1 | triagectl report submit --title "Build broke" --description-file - --capture`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			settings, err := app.Settings()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()

			store := newDraftStore()
			store.OpenDialog()
			if err := fillDraft(store, opts); err != nil {
				return err
			}
			if opts.capture && opts.screenshot == "" {
				engine, err := app.newEngine(store)
				if err != nil {
					return err
				}
				if err := engine.TakeScreenshot(ctx); err != nil {
					return contextutils.WrapError(err, "screenshot failed")
				}
			}

			c := composer.New(store, client, composer.Environment{PageURL: opts.pageURL, UserAgent: UserAgent()})
			report, err := c.Submit(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("Submitted report %s\n", report.ID)
			cmd.Printf("  %s\n", deeplink.Build(settings.LinkBase(), report.ID))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.title, "title", "", "Short summary of the problem")
	f.StringVar(&opts.description, "description", "", "What happened and what you expected")
	f.StringVar(&opts.descFile, "description-file", "", "Read the description from a file, or - for stdin")
	f.StringVar(&opts.reportType, "type", "", "bug or support (default bug)")
	f.StringVar(&opts.severity, "severity", "", "low, medium, high or critical (default medium)")
	f.StringVar(&opts.category, "category", "", "ui, functionality, performance, data or other (default other)")
	f.StringVar(&opts.screenshot, "screenshot", "", "Attach an image file")
	f.StringVar(&opts.video, "video", "", "Attach a screen recording")
	f.BoolVar(&opts.capture, "capture", false, "Capture the screen with the configured screenshot command")
	f.StringVar(&opts.pageURL, "page-url", "", "Where the problem happened")
	return cmd
}

func listCmd(app *App) *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			list, err := client.ListReports(ctx, page, pageSize)
			if err != nil {
				return err
			}
			printReports(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Reports per page")
	return cmd
}

// loadView fetches a report thread; admin views can start analyses
func loadView(cmd *cobra.Command, app *App, ref string, staff bool) (*conversation.View, error) {
	client, err := app.Client()
	if err != nil {
		return nil, err
	}
	id, err := reportID(ref)
	if err != nil {
		return nil, err
	}
	v := conversation.NewView(client, id, staff)
	ctx, cancel := withTimeout(cmd.Context())
	defer cancel()
	if err := v.Refresh(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

func printView(cmd *cobra.Command, app *App, v *conversation.View) error {
	settings, err := app.Settings()
	if err != nil {
		return err
	}
	report, _ := v.Report()
	w := cmd.OutOrStdout()
	printReport(w, report, deeplink.Build(settings.LinkBase(), report.ID))
	cmd.Println()
	printMessages(w, v.Messages())
	printCard(w, v.AnalysisCard())
	if r := v.Satisfaction.Rating(); r != nil {
		cmd.Printf("\nYou rated this report %s.\n", r.Rating)
	} else if v.Satisfaction.ShouldPrompt() {
		cmd.Printf("\nHow did we do? triagectl report rate %s positive|negative\n", report.ID)
	}
	return nil
}

func showCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <report-id|link>",
		Short: "Show a report thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadView(cmd, app, args[0], false)
			if err != nil {
				return err
			}
			return printView(cmd, app, v)
		},
	}
}

func replyCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reply <report-id|link> <message>...",
		Short: "Add a message to a report",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}
			id, err := reportID(args[0])
			if err != nil {
				return err
			}
			body := strings.Join(args[1:], " ")
			if body == "-" {
				data, err := readInput("-")
				if err != nil {
					return err
				}
				body = string(data)
			}
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()

			msg, err := conversation.NewView(client, id, false).Send(ctx, body)
			if err != nil {
				if contextutils.IsError(err, contextutils.ErrReportClosed) {
					return contextutils.WrapError(err, "this report is closed; submit a new report instead")
				}
				return err
			}
			cmd.Printf("Message %d added\n", msg.Seq)
			return nil
		},
	}
}

func rateCmd(app *App) *cobra.Command {
	var feedback string
	cmd := &cobra.Command{
		Use:       "rate <report-id|link> <positive|negative>",
		Short:     "Rate how a resolved report was handled",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"positive", "negative"},
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadView(cmd, app, args[0], false)
			if err != nil {
				return err
			}
			report, _ := v.Report()
			if !v.Satisfaction.ShouldPrompt() && v.Satisfaction.Rating() == nil {
				return contextutils.WrapErrorf(contextutils.ErrSatisfactionNotAllowed, "report is %s", report.Status)
			}
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			rating, err := v.Satisfaction.Submit(ctx, strings.ToLower(args[1]), feedback)
			if err != nil {
				return err
			}
			cmd.Printf("Thanks! Rated %s as %s\n", report.ID, rating.Rating)
			return nil
		},
	}
	cmd.Flags().StringVar(&feedback, "feedback", "", "Optional comment")
	return cmd
}

func openCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "open <report-id|link>",
		Short: "Print the web link of a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := app.Settings()
			if err != nil {
				return err
			}
			id, err := reportID(args[0])
			if err != nil {
				return err
			}
			cmd.Println(deeplink.Build(settings.LinkBase(), id))
			return nil
		},
	}
}
