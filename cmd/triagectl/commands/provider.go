package commands

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"triageapp/internal/client/capture"
	contextutils "triageapp/internal/utils"
)

// CommandScreenshotProvider captures the screen by running an external tool that writes the image to stdout.
// The tool decides scale and exclusions, so the options are ignored.
type CommandScreenshotProvider struct {
	Command []string
}

var deniedMarkers = []string{"permission denied", "not authorized", "not allowed", "cancelled by user"}

// Capture runs the command and returns its stdout
func (p CommandScreenshotProvider) Capture(ctx context.Context, _ capture.ScreenshotOptions) ([]byte, error) {
	if len(p.Command) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "no screenshot command configured")
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Command[0], p.Command[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.ToLower(stderr.String())
		for _, marker := range deniedMarkers {
			if strings.Contains(msg, marker) {
				return nil, errors.Join(capture.ErrPermissionDenied, err)
			}
		}
		return nil, contextutils.WrapErrorf(contextutils.ErrCaptureFailed, "%s: %v: %s", p.Command[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
