// Package main provides a utility to set up the test database with initial data.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"triageapp/internal/config"
	"triageapp/internal/di"
	"triageapp/internal/observability"

	"go.uber.org/zap/zapcore"
)

func main() {
	var (
		fixturesPath = flag.String("fixtures", "cmd/setup-test-db/testdata/fixtures.yaml", "Seed data file")
		outputPath   = flag.String("output", "", "Write created ids and raw API keys as JSON to this file")
		reset        = flag.Bool("reset", true, "Truncate all tables before seeding")
	)
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if !strings.Contains(cfg.Database.URL, "test") {
		fmt.Fprintf(os.Stderr, "Refusing to seed %q: the database name must contain \"test\"\n", cfg.Database.URL)
		os.Exit(1)
	}

	logger := observability.NewLoggerWithLevel(&config.OpenTelemetryConfig{EnableLogging: false}, zapcore.WarnLevel)

	fixtures, err := LoadFixtures(*fixturesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load fixtures: %v\n", err)
		os.Exit(1)
	}

	// the API role runs migrations, so a fresh database gets the schema first
	container := di.NewServiceContainer(cfg, logger, di.RoleAPI)
	if err := container.Initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize services: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = container.Shutdown(ctx) }()

	if *reset {
		if _, err := container.GetDatabase().ExecContext(ctx,
			"TRUNCATE media_uploads, report_satisfaction, analysis_jobs, report_messages, reports, auth_api_keys, users RESTART IDENTITY CASCADE"); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to reset tables: %v\n", err)
			os.Exit(1)
		}
	}

	seeder, err := newSeeder(container)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get services: %v\n", err)
		os.Exit(1)
	}
	result, err := seeder.Apply(ctx, fixtures)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Seeding failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Seeded %d users and %d reports\n", len(result.Users), len(result.Reports))
	if *outputPath != "" {
		if err := writeResult(*outputPath, result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", *outputPath, err)
			os.Exit(1)
		}
		fmt.Printf("Wrote ids and keys to %s\n", *outputPath)
	}
}

func newSeeder(container *di.ServiceContainer) (*Seeder, error) {
	users, err := container.GetUserService()
	if err != nil {
		return nil, err
	}
	keys, err := container.GetAPIKeyService()
	if err != nil {
		return nil, err
	}
	reports, err := container.GetReportService()
	if err != nil {
		return nil, err
	}
	satisfaction, err := container.GetSatisfactionService()
	if err != nil {
		return nil, err
	}
	return &Seeder{Users: users, Keys: keys, Reports: reports, Satisfaction: satisfaction}, nil
}

func writeResult(path string, result *SeedResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
