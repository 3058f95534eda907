package commands

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"triageapp/internal/di"
	"triageapp/internal/models"
	"triageapp/internal/serviceinterfaces"
	contextutils "triageapp/internal/utils"
)

// maskDatabaseURL masks sensitive parts of the database URL for display
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) == 2 {
			return "postgres://***:***@" + parts[1]
		}
	}
	return url
}

// getDatabaseInfo returns database connection information
func getDatabaseInfo(ctx context.Context, db *sql.DB) string {
	if db == nil {
		return "Not connected"
	}

	var dbName string
	if err := db.QueryRowContext(ctx, "SELECT current_database()").Scan(&dbName); err != nil {
		return "Connected (unknown database)"
	}

	var host string
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(inet_server_addr()::text, 'local socket')").Scan(&host); err != nil {
		return fmt.Sprintf("Connected to %s", dbName)
	}
	return fmt.Sprintf("Connected to %s on %s", dbName, host)
}

// resolveUser accepts a numeric id or a username
func resolveUser(ctx context.Context, users serviceinterfaces.UserServiceInterface, ref string) (*models.User, error) {
	if id, err := strconv.Atoi(ref); err == nil {
		return users.GetUserByID(ctx, id)
	}
	user, err := users.GetUserByUsername(ctx, ref)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, contextutils.ErrorWithContextf("user '%s' not found", ref)
	}
	return user, nil
}

func userService(container *di.ServiceContainer) (serviceinterfaces.UserServiceInterface, error) {
	users, err := container.GetUserService()
	if err != nil {
		return nil, contextutils.WrapError(err, "user service unavailable")
	}
	return users, nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
