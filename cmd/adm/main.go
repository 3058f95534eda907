// Package main provides the main entry point for the triage admin CLI tool.
package main

import (
	"context"
	"fmt"
	"os"

	"triageapp/cmd/adm/commands"
	"triageapp/internal/config"
	"triageapp/internal/di"
	"triageapp/internal/observability"
	"triageapp/internal/version"

	"github.com/spf13/cobra"
)

func main() {
	ctx := context.Background()

	// Set default config file if not already set
	if os.Getenv("TRIAGE_CONFIG_FILE") == "" {
		for _, path := range []string{"../../config.yaml", "config.yaml"} {
			if _, err := os.Stat(path); err == nil {
				if err := os.Setenv("TRIAGE_CONFIG_FILE", path); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to set TRIAGE_CONFIG_FILE environment variable: %v\n", err)
					os.Exit(1)
				}
				break
			}
		}
	}

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Override log level for admin tool
	cfg.OpenTelemetry.LogLevel = "error"

	// Disable all OpenTelemetry features for admin CLI to avoid connection errors
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	_, _, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "triage-admin")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}

	container := di.NewServiceContainer(cfg, logger, di.RoleCLI)
	initialized := false

	rootCmd := &cobra.Command{
		Use:     "adm",
		Short:   "Triage administration tool",
		Version: version.String("adm"),
		Long: `Triage administration tool

Provides commands for database migrations, user and API key management,
and report maintenance.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || initialized {
				return nil
			}
			if err := container.Initialize(cmd.Context()); err != nil {
				return err
			}
			initialized = true
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			// Show help if no subcommand provided
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}

	rootCmd.AddCommand(commands.DatabaseCommands(container))
	rootCmd.AddCommand(commands.UserCommands(container))
	rootCmd.AddCommand(commands.APIKeyCommands(container))
	rootCmd.AddCommand(commands.ReportCommands(container))

	err = rootCmd.ExecuteContext(ctx)
	if initialized {
		if shutdownErr := container.Shutdown(ctx); shutdownErr != nil {
			logger.Warn(ctx, "Warning: failed to close database connection", map[string]interface{}{"error": shutdownErr.Error()})
		}
	}
	if err != nil {
		os.Exit(1)
	}
}
