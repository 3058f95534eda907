package commands

import (
	"os"

	contextutils "triageapp/internal/utils"

	"github.com/spf13/cobra"
)

// CaptureCommands returns the capture commands
func CaptureCommands(app *App) *cobra.Command {
	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture evidence without filing a report",
	}
	captureCmd.AddCommand(screenshotCmd(app))
	return captureCmd
}

func screenshotCmd(app *App) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "screenshot",
		Short: "Capture the screen with the configured screenshot command",
		Long: `Capture the screen with the configured screenshot command.

The command is taken from screenshot_command in the settings file and must
write the image to stdout. The default uses ImageMagick's import.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := newDraftStore()
			engine, err := app.newEngine(store)
			if err != nil {
				return err
			}
			if err := engine.TakeScreenshot(cmd.Context()); err != nil {
				return err
			}
			shot := store.Snapshot().Screenshot
			if shot == nil {
				return contextutils.WrapError(contextutils.ErrCaptureFailed, "no image captured")
			}
			if output == "-" {
				_, err := cmd.OutOrStdout().Write(shot.Blob)
				return err
			}
			if err := os.WriteFile(output, shot.Blob, 0o644); err != nil {
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to write %s: %v", output, err)
			}
			cmd.PrintErrf("Saved %d bytes to %s\n", len(shot.Blob), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "screenshot.png", "Output file, or - for stdout")
	return cmd
}
