package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Source is one watched announce log
type Source struct {
	Path   string `mapstructure:"path"`
	Module string `mapstructure:"module"`
	Offset int64  `mapstructure:"offset"`
}

// Tracker holds the per-module download credentials
type Tracker struct {
	PassKey      string `mapstructure:"passkey"`
	DownloadBase string `mapstructure:"download_base"`
}

// Config holds all application configuration
type Config struct {
	// Store
	DatabaseFile string

	// Ingestion
	Sources     []Source
	TailPoll    bool          // poll instead of inotify for live tailing
	IdleWarning time.Duration // warn when no line arrived for this long (default: 120s)

	// Download
	WatchDir      string             // downloaded .torrent files land here
	Trackers      map[string]Tracker // keyed by source module tag
	FetchTimeout  time.Duration      // per request (default: 30s)
	FetchRate     float64            // requests per second toward a tracker (default: 1)
	FetchAttempts int                // in-attempt tries on 5xx/network errors (default: 3)

	// Retry sweep
	RetryInterval time.Duration // minimum gap between deferred sweeps (default: 6m)

	// Schedules (cron specs, empty disables)
	RuleReloadSchedule       string
	OffsetCheckpointSchedule string

	// Server (empty port disables the HTTP surface)
	ServerPort string

	// Logging
	LogLevel string

	path string
	mu   sync.Mutex
}

// Load loads configuration from a YAML file and ANNOUNCARR_* environment variables.
// A missing file is not an error; everything can come from the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ANNOUNCARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("database_file", "announcarr.db")
	v.SetDefault("watch_dir", ".")
	v.SetDefault("log_level", "info")
	v.SetDefault("server_port", "")
	v.SetDefault("tail_poll", false)
	v.SetDefault("idle_warning", 120*time.Second)
	v.SetDefault("retry_interval", 6*time.Minute)
	v.SetDefault("fetch_timeout", 30*time.Second)
	v.SetDefault("fetch_rate", 1.0)
	v.SetDefault("fetch_attempts", 3)
	v.SetDefault("rule_reload_schedule", "@every 15m")
	v.SetDefault("offset_checkpoint_schedule", "@every 1m")

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := &Config{
		DatabaseFile: v.GetString("database_file"),

		TailPoll:    v.GetBool("tail_poll"),
		IdleWarning: v.GetDuration("idle_warning"),

		WatchDir:      v.GetString("watch_dir"),
		FetchTimeout:  v.GetDuration("fetch_timeout"),
		FetchRate:     v.GetFloat64("fetch_rate"),
		FetchAttempts: v.GetInt("fetch_attempts"),

		RetryInterval: v.GetDuration("retry_interval"),

		RuleReloadSchedule:       v.GetString("rule_reload_schedule"),
		OffsetCheckpointSchedule: v.GetString("offset_checkpoint_schedule"),

		ServerPort: v.GetString("server_port"),
		LogLevel:   v.GetString("log_level"),

		path: path,
	}

	if err := v.UnmarshalKey("sources", &config.Sources); err != nil {
		return nil, fmt.Errorf("invalid sources: %w", err)
	}
	if err := v.UnmarshalKey("trackers", &config.Trackers); err != nil {
		return nil, fmt.Errorf("invalid trackers: %w", err)
	}

	if config.FetchAttempts < 1 {
		config.FetchAttempts = 1
	}

	return config, nil
}

// ValidateRun checks the settings needed to run ingestion
func (c *Config) ValidateRun() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	for _, source := range c.Sources {
		if source.Path == "" {
			return fmt.Errorf("source path is required")
		}
		if source.Module == "" {
			return fmt.Errorf("module is required for source %s", source.Path)
		}
		if _, ok := c.Trackers[source.Module]; !ok {
			return fmt.Errorf("no tracker configured for module %s", source.Module)
		}
	}
	if c.WatchDir == "" {
		return fmt.Errorf("watch_dir is required")
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retry_interval must be positive")
	}
	return nil
}

// SaveOffsets records the read offset of each source path and writes the
// configuration back to disk. Best effort: correctness never depends on it.
func (c *Config) SaveOffsets(offsets map[string]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := false
	for i := range c.Sources {
		if offset, ok := offsets[c.Sources[i].Path]; ok && offset != c.Sources[i].Offset {
			c.Sources[i].Offset = offset
			changed = true
		}
	}
	if !changed {
		return nil
	}

	raw := make([]map[string]interface{}, 0, len(c.Sources))
	for _, source := range c.Sources {
		raw = append(raw, map[string]interface{}{
			"path":   source.Path,
			"module": source.Module,
			"offset": source.Offset,
		})
	}
	return c.writeSources(raw)
}

// writeSources rewrites the config file with only its own keys plus the
// updated sources, so defaults and environment overrides never leak into it.
func (c *Config) writeSources(sources []map[string]interface{}) error {
	data, err := os.ReadFile(c.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read config file %s: %w", c.path, err)
	}

	file := viper.New()
	file.SetConfigType("yaml")
	if err := file.ReadConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", c.path, err)
	}
	file.Set("sources", sources)

	// Write next to the file and rename so a crash never leaves half a config.
	// viper picks the encoding from the extension.
	tmpPath := c.path + ".tmp.yaml"
	if err := file.WriteConfigAs(tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// Offsets returns the last saved offset per source path
func (c *Config) Offsets() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	offsets := make(map[string]int64, len(c.Sources))
	for _, source := range c.Sources {
		offsets[source.Path] = source.Offset
	}
	return offsets
}
