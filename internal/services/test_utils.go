//go:build integration

package services

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"triageapp/internal/config"
	"triageapp/internal/database"
	"triageapp/internal/observability"

	"github.com/stretchr/testify/require"
)

// SharedTestDBSetup provides a clean, migrated database for each integration test
func SharedTestDBSetup(t *testing.T) *sql.DB {
	observabilityLogger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	dbManager := database.NewManager(observabilityLogger)

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := dbManager.InitDB(databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	CleanupTestDatabase(db, t)
	return db
}

// cleanupDatabase empties every triage table in one transaction
func cleanupDatabase(db *sql.DB, logger *observability.Logger) {
	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		if logger != nil {
			logger.Error(ctx, "Failed to begin cleanup transaction", err)
		}
		return
	}

	// children first; CASCADE covers anything added later
	_, err = tx.ExecContext(ctx, `TRUNCATE TABLE media_uploads, report_satisfaction, analysis_jobs,
		report_messages, reports, auth_api_keys, users RESTART IDENTITY CASCADE`)
	if err != nil {
		if logger != nil {
			logger.Warn(ctx, "Could not truncate tables", map[string]interface{}{"error": err.Error()})
		}
		_ = tx.Rollback()
		return
	}

	if err = tx.Commit(); err != nil && logger != nil {
		logger.Error(ctx, "Failed to commit cleanup transaction", err)
	}
}

// CleanupTestDatabase cleans up the database for integration tests
func CleanupTestDatabase(db *sql.DB, t *testing.T) {
	t.Helper()
	cleanupDatabase(db, nil)
}
