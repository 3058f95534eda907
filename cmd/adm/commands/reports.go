package commands

import (
	"triageapp/internal/di"
	contextutils "triageapp/internal/utils"

	"github.com/spf13/cobra"
)

// ReportCommands returns the report maintenance commands
func ReportCommands(container *di.ServiceContainer) *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "reports",
		Short: "Report maintenance commands",
	}
	reportCmd.AddCommand(autoCloseCmd(container))
	reportCmd.AddCommand(maintenanceCmd(container))
	return reportCmd
}

func autoCloseCmd(container *di.ServiceContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "auto-close",
		Short: "Close reports resolved longer than reports.auto_close_after ago",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			reports, err := container.GetReportService()
			if err != nil {
				return contextutils.WrapError(err, "report service unavailable")
			}
			after := container.GetConfig().Reports.AutoCloseAfter
			if after <= 0 {
				return contextutils.ErrorWithContextf("reports.auto_close_after is disabled")
			}
			n, err := reports.AutoCloseResolved(ctx, after)
			if err != nil {
				return contextutils.WrapError(err, "auto-close failed")
			}
			cmd.Printf("Closed %d report(s) resolved more than %s ago\n", n, after)
			return nil
		},
	}
}

func maintenanceCmd(container *di.ServiceContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "maintenance",
		Short: "Run the worker's full maintenance pass once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			maintenance, err := container.GetMaintenanceService()
			if err != nil {
				return contextutils.WrapError(err, "maintenance service unavailable")
			}
			stats, err := maintenance.RunFullMaintenance(ctx)
			if err != nil {
				return contextutils.WrapError(err, "maintenance failed")
			}
			cmd.Printf("Reports closed: %d\nStale jobs failed: %d\nUploads expired: %d\n",
				stats.ReportsClosed, stats.StaleJobsFailed, stats.UploadsExpired)
			return nil
		},
	}
}
