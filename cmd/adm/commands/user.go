package commands

import (
	"strconv"
	"strings"

	"triageapp/internal/di"
	contextutils "triageapp/internal/utils"

	"github.com/spf13/cobra"
)

// UserCommands returns the user management commands
func UserCommands(container *di.ServiceContainer) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long: `User management commands.

Available commands:
  create     - Create a reporter or staff account
  list       - List all users
  set-admin  - Grant or revoke staff access`,
	}

	userCmd.AddCommand(createUserCmd(container))
	userCmd.AddCommand(listUsersCmd(container))
	userCmd.AddCommand(setAdminCmd(container))
	return userCmd
}

func createUserCmd(container *di.ServiceContainer) *cobra.Command {
	var email, displayName string
	var admin bool

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			users, err := userService(container)
			if err != nil {
				return err
			}
			username := strings.TrimSpace(args[0])
			if username == "" {
				return contextutils.ErrorWithContextf("username is required")
			}

			user, err := users.CreateUser(ctx, username, email, displayName, admin)
			if err != nil {
				container.GetLogger().Error(ctx, "Failed to create user", err, map[string]interface{}{"username": username})
				return contextutils.WrapErrorf(err, "failed to create user '%s'", username)
			}
			role := "reporter"
			if user.IsAdmin {
				role = "staff"
			}
			cmd.Printf("Created %s '%s' (ID: %d)\n", role, user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Notification email address")
	cmd.Flags().StringVar(&displayName, "name", "", "Display name shown on replies")
	cmd.Flags().BoolVar(&admin, "admin", false, "Create a staff account")
	return cmd
}

func listUsersCmd(container *di.ServiceContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			users, err := userService(container)
			if err != nil {
				return err
			}

			all, err := users.ListUsers(ctx)
			if err != nil {
				return contextutils.WrapError(err, "failed to get users")
			}
			if len(all) == 0 {
				cmd.Println("No users found in the database")
				return nil
			}

			cmd.Printf("%-5s %-20s %-30s %-20s %-6s %-10s\n", "ID", "Username", "Email", "Name", "Staff", "Created")
			cmd.Println(strings.Repeat("-", 96))
			for _, u := range all {
				staff := "No"
				if u.IsAdmin {
					staff = "Yes"
				}
				cmd.Printf("%-5d %-20s %-30s %-20s %-6s %-10s\n",
					u.ID,
					u.Username,
					orNA(u.Email.String),
					orNA(u.DisplayName),
					staff,
					u.CreatedAt.Format("2006-01-02"),
				)
			}
			return nil
		},
	}
}

func setAdminCmd(container *di.ServiceContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "set-admin <user> <true|false>",
		Short: "Grant or revoke staff access",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			users, err := userService(container)
			if err != nil {
				return err
			}
			isAdmin, err := strconv.ParseBool(args[1])
			if err != nil {
				return contextutils.ErrorWithContextf("expected true or false, got %q", args[1])
			}
			user, err := resolveUser(ctx, users, args[0])
			if err != nil {
				return err
			}
			if err := users.SetAdmin(ctx, user.ID, isAdmin); err != nil {
				return contextutils.WrapErrorf(err, "failed to update user '%s'", user.Username)
			}
			container.GetLogger().Info(ctx, "Updated staff flag", map[string]interface{}{"user_id": user.ID, "is_admin": isAdmin})
			cmd.Printf("User '%s' staff access: %t\n", user.Username, isAdmin)
			return nil
		},
	}
}
