// Package settings holds the upload configuration snapshot and its TOML
// persistence. A Settings value is immutable for the duration of one
// pipeline run; the file on disk is the durable copy.
package settings

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/imgmark/imgmark/internal/widthhint"
)

// PlaceholderAPIURL is the endpoint value shipped in the default config.
// Uploads refuse to run until it has been replaced.
const PlaceholderAPIURL = "https://your-image-host.example/api/upload"

// DefaultConcurrency is the number of upload pipelines in flight at once.
const DefaultConcurrency = 3

// Settings is one configuration snapshot for a pipeline run.
type Settings struct {
	// APIURL is the upload endpoint. The placeholder value is rejected
	// before any network call.
	APIURL string `toml:"api_url"`
	// Method is the upload request method, POST or PUT.
	Method string `toml:"method"`
	// JSONPath locates the hosted URL in the upload response, e.g. "data.url".
	JSONPath string `toml:"json_path"`
	// BlacklistDomains lists domains whose images are never uploaded.
	BlacklistDomains []string `toml:"blacklist_domains"`
	// CustomHeaders are "Key: Value" strings merged into upload requests.
	CustomHeaders []string `toml:"custom_headers"`
	// AutoUploadOnPaste makes the host trigger the single-item path on paste.
	AutoUploadOnPaste bool `toml:"auto_upload_on_paste"`
	// EnableAutoWidth annotates pasted images with a display-width hint.
	EnableAutoWidth bool `toml:"enable_auto_width"`
	// Concurrency bounds how many upload pipelines run at once.
	Concurrency int `toml:"concurrency"`

	WidthTiers WidthTiers `toml:"width_tiers"`
}

// WidthTiers configures the three size tiers for width annotation.
type WidthTiers struct {
	LargeThreshold  int `toml:"large_threshold"`
	MediumThreshold int `toml:"medium_threshold"`
	SmallThreshold  int `toml:"small_threshold"`
	LargeWidth      int `toml:"large_width"`
	MediumWidth     int `toml:"medium_width"`
	SmallWidth      int `toml:"small_width"`
}

// Tiers converts the persisted form into the classifier's form.
func (w WidthTiers) Tiers() widthhint.Tiers {
	return widthhint.Tiers{
		LargeThreshold:  w.LargeThreshold,
		MediumThreshold: w.MediumThreshold,
		SmallThreshold:  w.SmallThreshold,
		LargeWidth:      w.LargeWidth,
		MediumWidth:     w.MediumWidth,
		SmallWidth:      w.SmallWidth,
	}
}

// Default returns the shipped configuration, including the placeholder
// endpoint.
func Default() Settings {
	t := widthhint.DefaultTiers()
	return Settings{
		APIURL:            PlaceholderAPIURL,
		Method:            http.MethodPost,
		JSONPath:          "data.url",
		AutoUploadOnPaste: true,
		EnableAutoWidth:   true,
		Concurrency:       DefaultConcurrency,
		WidthTiers: WidthTiers{
			LargeThreshold:  t.LargeThreshold,
			MediumThreshold: t.MediumThreshold,
			SmallThreshold:  t.SmallThreshold,
			LargeWidth:      t.LargeWidth,
			MediumWidth:     t.MediumWidth,
			SmallWidth:      t.SmallWidth,
		},
	}
}

// IsConfigured reports whether the endpoint has been changed from the
// shipped placeholder.
func (s Settings) IsConfigured() bool {
	return s.APIURL != "" && s.APIURL != PlaceholderAPIURL
}

// Validate rejects settings that cannot drive a pipeline run.
func (s Settings) Validate() error {
	if s.Method != http.MethodPost && s.Method != http.MethodPut {
		return fmt.Errorf("method must be POST or PUT, got %q", s.Method)
	}
	if s.JSONPath == "" {
		return fmt.Errorf("json_path is required")
	}
	if s.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", s.Concurrency)
	}
	return nil
}

// DefaultPath returns ~/.imgmark/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".imgmark", "config.toml"), nil
}

// Load reads the TOML config at path, layering it over the defaults so a
// partial file keeps default values for unset keys. A missing file yields
// the defaults without error.
func Load(path string) (Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return s, nil
}

// Save writes the settings to path as TOML, creating the parent directory
// if needed.
func Save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
