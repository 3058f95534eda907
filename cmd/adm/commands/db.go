// Package commands provides CLI commands for the admin tool
package commands

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"triageapp/internal/di"
	contextutils "triageapp/internal/utils"

	"github.com/spf13/cobra"
)

// DatabaseCommands returns the database management commands
func DatabaseCommands(container *di.ServiceContainer) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands.

Available commands:
  migrate   - Apply the schema and pending migrations
  stats     - Show database statistics
  reset     - Drop all triage data and re-apply the schema (development only)`,
	}

	dbCmd.AddCommand(migrateCmd(container))
	dbCmd.AddCommand(statsCmd(container))
	dbCmd.AddCommand(resetCmd(container))
	return dbCmd
}

func migrateCmd(container *di.ServiceContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := container.GetConfig()
			logger := container.GetLogger()

			logger.Info(ctx, "Running migrations", map[string]interface{}{"database_url": maskDatabaseURL(cfg.Database.URL)})
			if err := container.GetDatabaseManager().RunMigrations(container.GetDatabase(), cfg.Database.URL); err != nil {
				logger.Error(ctx, "Migration failed", err, nil)
				return contextutils.WrapError(err, "migration failed")
			}
			cmd.Println("Migrations applied")
			return nil
		},
	}
}

func statsCmd(container *di.ServiceContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db := container.GetDatabase()
			cmd.Println(getDatabaseInfo(ctx, db))

			counts := []struct {
				label string
				query string
			}{
				{"Users", "SELECT COUNT(*) FROM users"},
				{"Reports", "SELECT COUNT(*) FROM reports"},
				{"Open reports", "SELECT COUNT(*) FROM reports WHERE status IN ('open', 'in_progress') AND archived_at IS NULL"},
				{"Analysis jobs", "SELECT COUNT(*) FROM analysis_jobs"},
				{"Pending jobs", "SELECT COUNT(*) FROM analysis_jobs WHERE status = 'pending'"},
			}
			for _, c := range counts {
				var n int
				if err := db.QueryRowContext(ctx, c.query).Scan(&n); err != nil {
					return contextutils.WrapErrorf(err, "failed to count %s", c.label)
				}
				cmd.Printf("%-15s %d\n", c.label+":", n)
			}
			return nil
		},
	}
}

// resetTables lists the tables in dependency order for TRUNCATE ... CASCADE
var resetTables = []string{"media_uploads", "report_satisfaction", "analysis_jobs", "report_messages", "reports", "auth_api_keys", "users"}

func resetCmd(container *di.ServiceContainer) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all data and re-apply the schema",
		Long: `Delete all users, reports, messages, analysis jobs and uploads, then
re-apply the schema and migrations. Intended for local development only.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := container.GetConfig()
			logger := container.GetLogger()

			cmd.Println("This will PERMANENTLY DELETE ALL DATA in the database!")
			cmd.Printf("URL: %s\n", maskDatabaseURL(cfg.Database.URL))
			if !yes && !confirmReset(cmd.InOrStdin(), cmd.OutOrStdout()) {
				cmd.Println("Reset cancelled.")
				return nil
			}

			db := container.GetDatabase()
			logger.Info(ctx, "Truncating tables", map[string]interface{}{"tables": resetTables})
			if _, err := db.ExecContext(ctx, "TRUNCATE "+strings.Join(resetTables, ", ")+" RESTART IDENTITY CASCADE"); err != nil {
				return contextutils.WrapError(err, "failed to truncate tables")
			}
			if err := container.GetDatabaseManager().RunMigrations(db, cfg.Database.URL); err != nil {
				return contextutils.WrapError(err, "failed to run migrations")
			}
			cmd.Println("Database reset. Create a staff account with: adm user create <name> --admin")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	return cmd
}

func confirmReset(in io.Reader, out io.Writer) bool {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "Are you sure you want to reset the database? (type 'yes' to confirm): ")
		response, err := reader.ReadString('\n')
		if err != nil && response == "" {
			return false
		}

		switch strings.TrimSpace(strings.ToLower(response)) {
		case "yes":
			return true
		case "no", "":
			return false
		default:
			fmt.Fprintln(out, "Please type 'yes' to confirm or 'no' to cancel.")
		}
	}
}
