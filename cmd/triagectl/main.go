// Package main provides triagectl, the command line client for filing and triaging reports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"triageapp/cmd/triagectl/commands"
	"triageapp/internal/version"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &commands.App{}
	rootCmd := &cobra.Command{
		Use:     "triagectl",
		Short:   "Report problems and follow up with support",
		Version: version.String("triagectl"),
		Long: `triagectl files reports with screenshots or recordings, follows the
conversation with support, and gives staff the triage commands.

Settings are read from ` + commands.DefaultSettingsPath() + `;
TRIAGE_API_URL and TRIAGE_API_KEY override them.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&app.SettingsPath, "config", "", "Settings file")
	rootCmd.PersistentFlags().StringVar(&app.APIURL, "api-url", "", "Triage API URL")
	rootCmd.PersistentFlags().StringVar(&app.APIKey, "api-key", "", "API key (prefer triagectl login)")

	rootCmd.AddCommand(commands.LoginCommand(app))
	rootCmd.AddCommand(commands.ReportCommands(app))
	rootCmd.AddCommand(commands.CaptureCommands(app))
	rootCmd.AddCommand(commands.AdminCommands(app))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
