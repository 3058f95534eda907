// Package database provides database connection and migration functionality.
package database

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"triageapp/internal/config"
	"triageapp/internal/observability"
	contextutils "triageapp/internal/utils"

	// Import PostgreSQL driver for database/sql
	_ "github.com/lib/pq"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // required for golang-migrate postgres driver
	_ "github.com/golang-migrate/migrate/v4/source/file"       // required for golang-migrate file source

	"go.nhat.io/otelsql"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Manager opens instrumented connections and applies the schema and migrations
type Manager struct {
	logger *observability.Logger
}

var (
	otelDriverNameCache string
	otelDriverOnce      sync.Once
	otelDriverErr       error
)

// NewManager creates a new database manager with the provided logger
func NewManager(logger *observability.Logger) *Manager {
	return &Manager{logger: logger}
}

// DefaultDatabaseConfig returns the default pool settings, picking up TEST_DATABASE_URL when set
func DefaultDatabaseConfig() config.DatabaseConfig {
	cfg := config.DatabaseConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: config.DatabaseConnMaxLifetime,
	}
	if testURL := os.Getenv("TEST_DATABASE_URL"); testURL != "" {
		cfg.URL = testURL
	}
	return cfg
}

// InitDB opens a connection with default pool settings and runs migrations
func (dm *Manager) InitDB(databaseURL string) (*sql.DB, error) {
	cfg := DefaultDatabaseConfig()
	cfg.URL = databaseURL
	return dm.InitDBWithConfig(cfg)
}

// InitDBWithConfig opens a connection and runs migrations
func (dm *Manager) InitDBWithConfig(cfg config.DatabaseConfig) (result0 *sql.DB, err error) {
	_, span := observability.TraceDatabaseFunction(context.Background(), "InitDBWithConfig",
		attribute.String("db.name", extractDatabaseName(cfg.URL)),
		attribute.String("db.system", "postgresql"),
		attribute.Int("db.max_open_conns", cfg.MaxOpenConns),
		attribute.Int("db.max_idle_conns", cfg.MaxIdleConns),
	)
	defer observability.FinishSpan(span, &err)

	db, err := dm.InitDBWithoutMigrations(cfg)
	if err != nil {
		return nil, err
	}
	if err := dm.RunMigrations(db, cfg.URL); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// extractDatabaseName extracts the database name from a PostgreSQL connection string
func extractDatabaseName(databaseURL string) string {
	if u, err := url.Parse(databaseURL); err == nil && u.Path != "" {
		if dbName := strings.TrimPrefix(u.Path, "/"); dbName != "" {
			return dbName
		}
	}
	return "triage_db"
}

// InitDBWithoutMigrations opens an otelsql-instrumented connection and verifies it with a ping
func (dm *Manager) InitDBWithoutMigrations(cfg config.DatabaseConfig) (result0 *sql.DB, err error) {
	ctx, span := observability.TraceDatabaseFunction(context.Background(), "InitDBWithoutMigrations",
		attribute.String("db.name", extractDatabaseName(cfg.URL)),
	)
	defer observability.FinishSpan(span, &err)

	if cfg.URL == "" {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseConnection, "database url is empty")
	}

	// The instrumented driver can only be registered once per process
	otelDriverOnce.Do(func() {
		otelDriverNameCache, otelDriverErr = otelsql.Register("postgres",
			otelsql.WithDatabaseName(extractDatabaseName(cfg.URL)),
			otelsql.WithSystem(semconv.DBSystemPostgreSQL),
			otelsql.TraceRowsAffected(),
		)
	})
	if otelDriverErr != nil {
		return nil, contextutils.WrapError(otelDriverErr, "failed to register otelsql driver")
	}

	db, err := sql.Open(otelDriverNameCache, cfg.URL)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to open database connection")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Failed to close database connection after ping failure", closeErr)
		}
		return nil, contextutils.WrapError(err, "failed to ping database")
	}

	dm.logger.Info(ctx, "Database connection established", map[string]interface{}{
		"max_open_conns":    cfg.MaxOpenConns,
		"max_idle_conns":    cfg.MaxIdleConns,
		"conn_max_lifetime": cfg.ConnMaxLifetime.String(),
	})

	return db, nil
}

// RunMigrations applies schema.sql and then any pending golang-migrate migrations
func (dm *Manager) RunMigrations(db *sql.DB, databaseURL string) (err error) {
	ctx, span := observability.TraceDatabaseFunction(context.Background(), "RunMigrations",
		attribute.String("db.system", "postgresql"),
	)
	defer observability.FinishSpan(span, &err)

	if err := dm.runApplicationSchema(ctx, db); err != nil {
		return contextutils.WrapError(err, "failed to run application schema")
	}
	dm.logger.Info(ctx, "Application schema applied")

	if err := dm.runGolangMigrate(ctx, databaseURL); err != nil {
		return contextutils.WrapError(err, "failed to run golang-migrate migrations")
	}

	dm.logger.Info(ctx, "Database migrations completed")
	return nil
}

func (dm *Manager) runGolangMigrate(ctx context.Context, databaseURL string) error {
	migrationsPath, err := dm.GetMigrationsPath()
	if err != nil {
		return err
	}

	files, err := os.ReadDir(migrationsPath)
	if err != nil {
		return contextutils.WrapError(err, "could not read migrations directory")
	}
	count := 0
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".up.sql") {
			count++
		}
	}
	if count == 0 {
		dm.logger.Info(ctx, "No migration files found, skipping golang-migrate", map[string]interface{}{
			"migrations_path": migrationsPath,
		})
		return nil
	}

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("TEST_DATABASE_URL")
	}
	if databaseURL == "" {
		return errors.New("a database url is required for migrations")
	}

	m, err := migrate.New("file://"+filepath.ToSlash(migrationsPath), databaseURL)
	if err != nil {
		return contextutils.WrapError(err, "failed to initialize golang-migrate")
	}
	defer func() {
		if _, closeErr := m.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Error closing migration", closeErr)
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		dm.logger.Info(ctx, "No new golang-migrate migrations to apply")
		return nil
	}
	if err != nil {
		return contextutils.WrapError(err, "golang-migrate up failed")
	}
	dm.logger.Info(ctx, "golang-migrate migrations applied", map[string]interface{}{
		"migration_files": count,
	})
	return nil
}

func (dm *Manager) runApplicationSchema(ctx context.Context, db *sql.DB) error {
	schemaPath, err := findUpwards("schema.sql")
	if err != nil {
		return err
	}

	schemaSQL, err := os.ReadFile(schemaPath)
	if err != nil {
		return contextutils.WrapError(err, "failed to read schema file")
	}

	statements := parseSchemaStatements(string(schemaSQL))

	// Indexes go last so every table they reference exists
	var indexStatements []string
	for _, statement := range statements {
		upper := strings.ToUpper(statement)
		if strings.HasPrefix(upper, "CREATE INDEX") || strings.HasPrefix(upper, "CREATE UNIQUE INDEX") {
			indexStatements = append(indexStatements, statement)
			continue
		}
		if _, execErr := db.ExecContext(ctx, statement); execErr != nil && !isAlreadyExistsError(execErr) {
			return contextutils.WrapErrorf(execErr, "failed to execute schema statement: %s", statement)
		}
	}
	for _, statement := range indexStatements {
		if _, execErr := db.ExecContext(ctx, statement); execErr != nil && !isAlreadyExistsError(execErr) {
			return contextutils.WrapErrorf(execErr, "failed to execute index statement: %s", statement)
		}
	}
	return nil
}

// GetMigrationsPath returns the nearest migrations directory at or above the working directory
func (dm *Manager) GetMigrationsPath() (string, error) {
	return findUpwards("migrations")
}

// findUpwards walks from the working directory to the filesystem root looking for name
func findUpwards(name string) (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(currentDir, name)
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, nil
		}
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return "", contextutils.ErrorWithContextf("%s not found in any parent directory", name)
		}
		currentDir = parentDir
	}
}

// parseSchemaStatements strips comments and splits the file into statements
func parseSchemaStatements(schemaSQL string) []string {
	var cleanedLines []string
	inComment := false

	for _, line := range strings.Split(schemaSQL, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/*"):
			inComment = !strings.HasSuffix(line, "*/")
			continue
		case inComment:
			if strings.HasSuffix(line, "*/") {
				inComment = false
			}
			continue
		case strings.HasPrefix(line, "--"):
			continue
		}
		if idx := strings.Index(line, "--"); idx != -1 {
			line = strings.TrimSpace(line[:idx])
		}
		cleanedLines = append(cleanedLines, line)
	}

	var result []string
	for _, stmt := range strings.Split(strings.Join(cleanedLines, " "), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			result = append(result, stmt)
		}
	}
	return result
}

func isAlreadyExistsError(err error) bool {
	return strings.Contains(err.Error(), "already exists")
}
