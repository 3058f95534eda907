package commands

import (
	"strings"

	"triageapp/internal/di"
	"triageapp/internal/models"
	contextutils "triageapp/internal/utils"

	"github.com/spf13/cobra"
)

// APIKeyCommands returns the API key management commands
func APIKeyCommands(container *di.ServiceContainer) *cobra.Command {
	keyCmd := &cobra.Command{
		Use:   "apikey",
		Short: "API key management commands",
	}
	keyCmd.AddCommand(createKeyCmd(container))
	keyCmd.AddCommand(listKeysCmd(container))
	return keyCmd
}

func createKeyCmd(container *di.ServiceContainer) *cobra.Command {
	var name, permission string

	cmd := &cobra.Command{
		Use:   "create <user>",
		Short: "Issue a bearer key for a user",
		Long: `Issue a bearer key for a user. The raw key is printed once and
cannot be recovered later.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !models.IsValidPermissionLevel(permission) {
				return contextutils.ErrorWithContextf("permission must be %s or %s", models.PermissionLevelReadonly, models.PermissionLevelFull)
			}
			users, err := userService(container)
			if err != nil {
				return err
			}
			keys, err := container.GetAPIKeyService()
			if err != nil {
				return contextutils.WrapError(err, "API key service unavailable")
			}

			user, err := resolveUser(ctx, users, args[0])
			if err != nil {
				return err
			}
			key, raw, err := keys.CreateAPIKey(ctx, user.ID, name, permission)
			if err != nil {
				return contextutils.WrapErrorf(err, "failed to create key for '%s'", user.Username)
			}
			container.GetLogger().Info(ctx, "Issued API key", map[string]interface{}{"user_id": user.ID, "key_id": key.ID, "permission": permission})
			cmd.Printf("Key %d (%s) for '%s':\n%s\n", key.ID, key.PermissionLevel, user.Username, raw)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "triagectl", "Label shown in key listings")
	cmd.Flags().StringVar(&permission, "permission", models.PermissionLevelFull, "readonly or full")
	return cmd
}

func listKeysCmd(container *di.ServiceContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "list <user>",
		Short: "List a user's keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			users, err := userService(container)
			if err != nil {
				return err
			}
			keys, err := container.GetAPIKeyService()
			if err != nil {
				return contextutils.WrapError(err, "API key service unavailable")
			}
			user, err := resolveUser(ctx, users, args[0])
			if err != nil {
				return err
			}

			list, err := keys.ListAPIKeys(ctx, user.ID)
			if err != nil {
				return contextutils.WrapError(err, "failed to list keys")
			}
			if len(list) == 0 {
				cmd.Printf("'%s' has no API keys\n", user.Username)
				return nil
			}
			cmd.Printf("%-5s %-20s %-12s %-10s %-20s\n", "ID", "Name", "Prefix", "Level", "Last used")
			cmd.Println(strings.Repeat("-", 70))
			for _, k := range list {
				lastUsed := "never"
				if k.LastUsedAt.Valid {
					lastUsed = k.LastUsedAt.Time.Format("2006-01-02 15:04")
				}
				cmd.Printf("%-5d %-20s %-12s %-10s %-20s\n", k.ID, k.KeyName, k.KeyPrefix, k.PermissionLevel, lastUsed)
			}
			return nil
		},
	}
}
