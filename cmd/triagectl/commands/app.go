// Package commands implements the triagectl subcommands.
package commands

import (
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"triageapp/internal/client/apiclient"
	"triageapp/internal/client/capture"
	"triageapp/internal/client/draft"
	"triageapp/internal/deeplink"
	contextutils "triageapp/internal/utils"
	"triageapp/internal/version"
)

// App carries the settings shared by every subcommand
type App struct {
	SettingsPath string
	APIURL       string
	APIKey       string

	settings *Settings
	client   *apiclient.Client
}

// Settings loads the settings file once and applies the flag overrides
func (a *App) Settings() (*Settings, error) {
	if a.settings != nil {
		return a.settings, nil
	}
	path := a.SettingsPath
	if path == "" {
		path = DefaultSettingsPath()
	}
	s, err := LoadSettings(path)
	if err != nil {
		return nil, err
	}
	if a.APIURL != "" {
		s.APIURL = a.APIURL
	}
	if a.APIKey != "" {
		s.APIKey = a.APIKey
	}
	a.settings = s
	return s, nil
}

// Client returns an API client for the configured server
func (a *App) Client() (*apiclient.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	s, err := a.Settings()
	if err != nil {
		return nil, err
	}
	if s.APIURL == "" {
		return nil, contextutils.ErrorWithContextf("no API URL configured: run 'triagectl login' or set TRIAGE_API_URL")
	}
	if s.APIKey == "" {
		return nil, contextutils.ErrorWithContextf("no API key configured: run 'triagectl login' or set TRIAGE_API_KEY")
	}
	a.client = apiclient.New(s.APIURL, s.APIKey)
	return a.client, nil
}

// UserAgent identifies triagectl in submitted reports
func UserAgent() string {
	return "triagectl/" + version.Version
}

// fileURLs stands in for browser object URLs; nothing needs revoking
type fileURLs struct{ n int }

func (f *fileURLs) Create([]byte, string) string {
	f.n++
	return "local:" + strconv.Itoa(f.n)
}

func (f *fileURLs) Revoke(string) {}

func newDraftStore() *draft.Store {
	return draft.NewStore(&fileURLs{})
}

// newEngine builds a screenshot-only engine around the external capture command
func (a *App) newEngine(store *draft.Store) (*capture.Engine, error) {
	s, err := a.Settings()
	if err != nil {
		return nil, err
	}
	provider := CommandScreenshotProvider{Command: s.Screenshot()}
	// external tools capture at native resolution
	viewport := capture.StaticViewport{PixelRatio: 1, WidthPx: 1920}
	return capture.NewEngine(store, provider, nil, nil, viewport, capture.Config{SettleDelay: time.Millisecond}), nil
}

// reportID accepts a bare id, a deep link or a ?reportId= link
func reportID(raw string) (string, error) {
	return deeplink.Parse(raw)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "failed to read stdin: %v", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "failed to read %s: %v", path, err)
	}
	return data, nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 2*apiclient.DefaultTimeout)
}
