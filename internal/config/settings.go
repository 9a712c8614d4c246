package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Settings holds all user-configurable client settings organized by category.
type Settings struct {
	General   GeneralSettings   `json:"general"`
	Discovery DiscoverySettings `json:"discovery"`
	History   HistorySettings   `json:"history"`

	// ServerConfig is the last server configuration fetched successfully,
	// kept as a fallback for getConfig when the live fetch fails.
	ServerConfig map[string]any `json:"server_config,omitempty"`
}

// GeneralSettings contains client behavior settings.
type GeneralSettings struct {
	Theme               int  `json:"theme"`
	ContentButtonHidden bool `json:"content_button_hidden"`
	ClipboardMonitor    bool `json:"clipboard_monitor"`
}

const (
	ThemeAdaptive = 0
	ThemeLight    = 1
	ThemeDark     = 2
)

// DiscoverySettings contains port-scan and polling parameters.
type DiscoverySettings struct {
	MinPort      int           `json:"min_port"`
	MaxPort      int           `json:"max_port"`
	BatchSize    int           `json:"batch_size"`
	ProbeTimeout time.Duration `json:"probe_timeout"`
	BaseBackoff  time.Duration `json:"base_backoff"`
	MaxBackoff   time.Duration `json:"max_backoff"`
	PollInterval time.Duration `json:"poll_interval"`
}

// HistorySettings contains the download-history preferences.
type HistorySettings struct {
	Enabled bool `json:"enabled"`
	Limit   int  `json:"limit"`
}

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	return &Settings{
		General: GeneralSettings{
			Theme:            ThemeAdaptive,
			ClipboardMonitor: true,
		},
		Discovery: DiscoverySettings{
			MinPort:      9090,
			MaxPort:      9190,
			BatchSize:    10,
			ProbeTimeout: 500 * time.Millisecond,
			BaseBackoff:  time.Second,
			MaxBackoff:   60 * time.Second,
			PollInterval: 2 * time.Second,
		},
		History: HistorySettings{
			Enabled: true,
			Limit:   500,
		},
	}
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetBridgeDir(), "settings.json")
}

// LoadSettings loads settings from disk. Returns defaults if file doesn't exist.
func LoadSettings() (*Settings, error) {
	data, err := os.ReadFile(GetSettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings() // Start with defaults to fill any missing fields
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}
	settings.normalize()

	return settings, nil
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(s *Settings) error {
	path := GetSettingsPath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// normalize clamps settings loaded from disk into usable ranges.
func (s *Settings) normalize() {
	def := DefaultSettings()
	d := &s.Discovery
	if d.MinPort <= 0 || d.MinPort > 65535 {
		d.MinPort = def.Discovery.MinPort
	}
	if d.MaxPort < d.MinPort || d.MaxPort > 65535 {
		d.MaxPort = def.Discovery.MaxPort
	}
	if d.BatchSize <= 0 {
		d.BatchSize = def.Discovery.BatchSize
	}
	if d.ProbeTimeout <= 0 {
		d.ProbeTimeout = def.Discovery.ProbeTimeout
	}
	if d.BaseBackoff <= 0 {
		d.BaseBackoff = def.Discovery.BaseBackoff
	}
	if d.MaxBackoff < d.BaseBackoff {
		d.MaxBackoff = def.Discovery.MaxBackoff
	}
	if d.PollInterval <= 0 {
		d.PollInterval = def.Discovery.PollInterval
	}
	if s.History.Limit <= 0 {
		s.History.Limit = def.History.Limit
	}
}
