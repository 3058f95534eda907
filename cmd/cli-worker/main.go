// Package main provides a CLI tool that runs one triage analysis in-process and prints the result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"triageapp/internal/config"
	"triageapp/internal/di"
	"triageapp/internal/models"
	"triageapp/internal/observability"
)

func main() {
	var (
		reportID   = flag.String("report", "", "Report id to analyze (required)")
		screenshot = flag.Bool("screenshot", true, "Send the screenshot to the provider")
		video      = flag.Bool("video", false, "Send the video to the provider")
		model      = flag.String("model", "", "Override the configured model (optional)")
		timeout    = flag.Duration("timeout", 2*time.Minute, "Give up after this long")
		asJSON     = flag.Bool("json", false, "Print the stored job as JSON")
		help       = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		printUsage()
		return
	}
	if strings.TrimSpace(*reportID) == "" {
		fmt.Fprintln(os.Stderr, "Error: --report flag is required")
		os.Exit(1)
	}

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *model != "" {
		cfg.Analysis.Provider.Model = *model
	}
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false

	_, _, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "triage-cli-worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, cfg, logger, *reportID, models.JobOptions{IncludeScreenshot: *screenshot, IncludeVideo: *video}, *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger, reportID string, opts models.JobOptions, asJSON bool) error {
	container := di.NewServiceContainer(cfg, logger, di.RoleWorker)
	if err := container.Initialize(ctx); err != nil {
		return err
	}
	defer func() { _ = container.Shutdown(context.Background()) }()

	analysis, err := container.GetAnalysisService()
	if err != nil {
		return err
	}

	job, err := analysis.StartJob(ctx, models.Actor{Name: "cli-worker", IsAdmin: true}, reportID, opts)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	fmt.Printf("Job %s created for report %s, running...\n", job.ID, reportID)

	if _, err := analysis.ProcessJob(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to process job: %w", err)
	}
	latest, err := analysis.LatestJob(ctx, reportID)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(latest)
	}
	printJob(latest)
	return nil
}

func printJob(job *models.AnalysisJob) {
	fmt.Printf("Status: %s (%d ms)\n", job.Status, job.ProcessingTimeMs.Int64)
	if job.Status == models.JobFailed {
		fmt.Printf("Error: %s\n", job.Error.String)
		return
	}
	if job.Result == nil {
		return
	}
	r := job.Result
	fmt.Printf("Model: %s\n\n", job.ModelUsed.String)
	fmt.Printf("Summary:    %s\n", r.Summary)
	fmt.Printf("Cause:      %s\n", r.SuggestedCause)
	fmt.Printf("Confidence: %s\n", r.Confidence)
	for i, s := range r.SuggestedSolutions {
		fmt.Printf("\n%d. %s [%s, %s]\n   %s\n", i+1, s.Title, s.Confidence, s.EstimatedEffort, s.Description)
		for _, step := range s.Steps {
			fmt.Printf("   - %s\n", step)
		}
	}
	if len(r.RelatedDocs) > 0 {
		fmt.Println("\nRelated docs:")
		for _, d := range r.RelatedDocs {
			fmt.Printf("  %s / %s: %s\n", d.SectionTitle, d.ArticleTitle, d.Relevance)
		}
	}
}

func printUsage() {
	fmt.Println("Usage: cli-worker --report <id> [options]")
	fmt.Println()
	fmt.Println("Creates an analysis job for the report and processes it in this process,")
	fmt.Println("then prints the stored result. Requires the analysis provider to be configured.")
	fmt.Println()
	flag.PrintDefaults()
}
