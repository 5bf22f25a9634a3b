// Package config holds the persistent castwatch configuration. One value
// object is loaded at startup, validated, and passed into the supervisor;
// there are no ambient mutable settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config is the persistent application configuration.
type Config struct {
	// Channels to monitor at startup
	Channels []string `json:"channels"`

	// Hub (data-access collaborator) settings
	Hub HubConfig `json:"hub"`

	// Detector tuning
	Detect DetectConfig `json:"detect"`

	// Critical-slowing-down analysis tuning
	CSD CSDConfig `json:"csd"`

	// Monitor loop scheduling and alerting
	Monitor MonitorConfig `json:"monitor"`

	// Database path; ":memory:" for ephemeral runs
	DBPath string `json:"db_path"`
}

// HubConfig holds settings for the upstream cast hub.
type HubConfig struct {
	BaseURL           string  `json:"base_url"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerSecond float64 `json:"requests_per_second"` // shared across channels
	Simulate          bool    `json:"simulate"`            // use the simulated network instead of the hub
}

// DetectConfig holds detector thresholds.
type DetectConfig struct {
	SynchronyWindowMinutes int     `json:"synchrony_window_minutes"`
	MinSyncUsers           int     `json:"min_sync_users"`
	EchoMinSimilarity      float64 `json:"echo_min_similarity"`
	MinEchoUsers           int     `json:"min_echo_users"`
	CascadePerMinute       float64 `json:"cascade_engagement_per_minute"`
	BatchSizeCap           int     `json:"batch_size_cap"`
}

// CSDConfig holds rolling-analysis thresholds.
type CSDConfig struct {
	VarianceThreshold float64 `json:"variance_threshold"`
	AutocorrThreshold float64 `json:"autocorr_threshold"`
	RollingWindowSize int     `json:"rolling_window_size"`
	MinAutocorrPoints int     `json:"min_autocorr_points"`
}

// MonitorConfig holds loop scheduling and alert rate limiting.
type MonitorConfig struct {
	PollIntervalSeconds   int `json:"poll_interval_seconds"`
	BatchLimit            int `json:"batch_limit"` // max casts requested per poll
	AlertCooldownSeconds  int `json:"alert_cooldown_seconds"`
	StatusIntervalSeconds int `json:"status_interval_seconds"` // periodic health report; 0 disables
}

// DefaultConfig returns sensible defaults. Every numeric option is
// positive, per the configuration contract.
func DefaultConfig() *Config {
	return &Config{
		Channels: []string{"home"},
		Hub: HubConfig{
			BaseURL:           "http://localhost:8080",
			TimeoutSeconds:    15,
			RequestsPerSecond: 2,
		},
		Detect: DetectConfig{
			SynchronyWindowMinutes: 5,
			MinSyncUsers:           3,
			EchoMinSimilarity:      0.8,
			MinEchoUsers:           2,
			CascadePerMinute:       10,
			BatchSizeCap:           200,
		},
		CSD: CSDConfig{
			VarianceThreshold: 0.08,
			AutocorrThreshold: 0.5,
			RollingWindowSize: 30,
			MinAutocorrPoints: 5,
		},
		Monitor: MonitorConfig{
			PollIntervalSeconds:   30,
			BatchLimit:            100,
			AlertCooldownSeconds:  300,
			StatusIntervalSeconds: 300,
		},
		DBPath: filepath.Join(DataDir(), "castwatch.db"),
	}
}

// DataDir returns the castwatch data directory.
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".castwatch")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// Load reads config from disk, or returns defaults if the file does not
// exist. Environment overrides are applied either way. The result is NOT
// validated; callers must call Validate before starting any loop.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads config from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// Save writes config to disk.
func (c *Config) Save() error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnv fills in settings from environment variables. Only the knobs
// that differ per deployment are exposed; tuning lives in the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("CASTWATCH_HUB_URL"); v != "" {
		c.Hub.BaseURL = v
	}
	if v := os.Getenv("CASTWATCH_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("CASTWATCH_SIMULATE"); v != "" {
		c.Hub.Simulate = v != "0" && v != "false"
	}
	if v := os.Getenv("CASTWATCH_POLL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Monitor.PollIntervalSeconds = n
		}
	}
}

// Validate rejects configurations no loop should ever start with.
// Called once at startup; a failure here is fatal.
func (c *Config) Validate() error {
	if len(c.Channels) == 0 {
		return fmt.Errorf("config: no channels configured")
	}
	if c.Detect.SynchronyWindowMinutes <= 0 {
		return fmt.Errorf("config: synchrony_window_minutes must be positive, got %d", c.Detect.SynchronyWindowMinutes)
	}
	if c.Detect.MinSyncUsers < 2 {
		return fmt.Errorf("config: min_sync_users must be at least 2, got %d", c.Detect.MinSyncUsers)
	}
	if c.Detect.EchoMinSimilarity <= 0 || c.Detect.EchoMinSimilarity > 1 {
		return fmt.Errorf("config: echo_min_similarity must be in (0,1], got %g", c.Detect.EchoMinSimilarity)
	}
	if c.Detect.MinEchoUsers < 2 {
		return fmt.Errorf("config: min_echo_users must be at least 2, got %d", c.Detect.MinEchoUsers)
	}
	if c.Detect.CascadePerMinute <= 0 {
		return fmt.Errorf("config: cascade_engagement_per_minute must be positive, got %g", c.Detect.CascadePerMinute)
	}
	if c.Detect.BatchSizeCap <= 0 {
		return fmt.Errorf("config: batch_size_cap must be positive, got %d", c.Detect.BatchSizeCap)
	}
	if c.CSD.VarianceThreshold <= 0 {
		return fmt.Errorf("config: csd variance_threshold must be positive, got %g", c.CSD.VarianceThreshold)
	}
	if c.CSD.AutocorrThreshold <= 0 {
		return fmt.Errorf("config: csd autocorr_threshold must be positive, got %g", c.CSD.AutocorrThreshold)
	}
	if c.CSD.RollingWindowSize < 2 {
		return fmt.Errorf("config: rolling_window_size must be at least 2, got %d", c.CSD.RollingWindowSize)
	}
	if c.CSD.MinAutocorrPoints <= 0 {
		return fmt.Errorf("config: min_autocorr_points must be positive, got %d", c.CSD.MinAutocorrPoints)
	}
	if c.Monitor.PollIntervalSeconds <= 0 {
		return fmt.Errorf("config: poll_interval_seconds must be positive, got %d", c.Monitor.PollIntervalSeconds)
	}
	if c.Monitor.BatchLimit <= 0 {
		return fmt.Errorf("config: batch_limit must be positive, got %d", c.Monitor.BatchLimit)
	}
	if c.Monitor.AlertCooldownSeconds <= 0 {
		return fmt.Errorf("config: alert_cooldown_seconds must be positive, got %d", c.Monitor.AlertCooldownSeconds)
	}
	if c.Hub.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: hub timeout_seconds must be positive, got %d", c.Hub.TimeoutSeconds)
	}
	if c.Hub.RequestsPerSecond <= 0 {
		return fmt.Errorf("config: hub requests_per_second must be positive, got %g", c.Hub.RequestsPerSecond)
	}
	return nil
}
