package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"triageapp/internal/client/apiclient"
	contextutils "triageapp/internal/utils"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// LoginCommand stores the API URL and key after checking them against the server
func LoginCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Save the API URL and API key",
		Long: `Save the API URL and API key used by every other command.

The key is read without echo from the terminal, or as the first line of
stdin when stdin is not a terminal. It is checked against the server
before it is written to the settings file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := app.Settings()
			if err != nil {
				return err
			}
			in := bufio.NewReader(cmd.InOrStdin())

			apiURL := settings.APIURL
			if apiURL == "" {
				cmd.Print("API URL: ")
				line, err := in.ReadString('\n')
				if err != nil && line == "" {
					return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "failed to read API URL: %v", err)
				}
				apiURL = strings.TrimRight(strings.TrimSpace(line), "/")
			}

			key, err := readKey(cmd, in)
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			me, err := apiclient.New(apiURL, key).Me(ctx)
			if err != nil {
				return contextutils.WrapError(err, "API key rejected")
			}

			settings.APIURL = apiURL
			settings.APIKey = key
			path := app.SettingsPath
			if path == "" {
				path = DefaultSettingsPath()
			}
			if err := settings.Save(path); err != nil {
				return err
			}
			role := "reporter"
			if me.IsAdmin {
				role = "staff"
			}
			cmd.Printf("Logged in to %s as %s (%s) with key %s\n", apiURL, me.Username, role, contextutils.MaskAPIKey(key))
			return nil
		},
	}
}

func readKey(cmd *cobra.Command, in *bufio.Reader) (string, error) {
	var key string
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		cmd.Print("API key: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read API key: %v", err)
		}
		key = string(raw)
	} else {
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return "", contextutils.WrapErrorf(contextutils.ErrInvalidInput, "failed to read API key: %v", err)
		}
		key = line
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", contextutils.ErrorWithContextf("API key cannot be empty")
	}
	return key, nil
}
