package commands

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	contextutils "triageapp/internal/utils"

	"gopkg.in/yaml.v3"
)

// Settings is the triagectl configuration file
type Settings struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key,omitempty"`
	// AppURL is the web app root used for report links; defaults to APIURL
	AppURL            string   `yaml:"app_url,omitempty"`
	ScreenshotCommand []string `yaml:"screenshot_command,omitempty"`
}

// DefaultScreenshotCommand writes a PNG of the whole screen to stdout (ImageMagick)
var DefaultScreenshotCommand = []string{"import", "-window", "root", "png:-"}

// DefaultSettingsPath returns $XDG_CONFIG_HOME/triagectl/config.yaml or its platform equivalent
func DefaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".triagectl.yaml"
	}
	return filepath.Join(dir, "triagectl", "config.yaml")
}

// LoadSettings reads the settings file. A missing file yields empty settings.
// TRIAGE_API_URL and TRIAGE_API_KEY override the file.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read %s: %v", path, err)
	default:
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "failed to parse %s: %v", path, err)
		}
	}
	if v := os.Getenv("TRIAGE_API_URL"); v != "" {
		s.APIURL = v
	}
	if v := os.Getenv("TRIAGE_API_KEY"); v != "" {
		s.APIKey = v
	}
	s.APIURL = strings.TrimRight(s.APIURL, "/")
	return s, nil
}

// Save writes the settings with owner-only permissions
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to encode settings: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to write %s: %v", path, err)
	}
	return nil
}

// LinkBase is the root deep links are built on
func (s *Settings) LinkBase() string {
	if s.AppURL != "" {
		return s.AppURL
	}
	return s.APIURL
}

// Screenshot returns the configured capture command or the default
func (s *Settings) Screenshot() []string {
	if len(s.ScreenshotCommand) > 0 {
		return s.ScreenshotCommand
	}
	return DefaultScreenshotCommand
}
