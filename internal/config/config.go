// Package config loads lifetrack settings from the config file and the
// command line
package config

import (
	"io"
	"os"
	"time"
)

type (
	// Config holds all configuration settings.
	Config struct {
		Session       SessionConfig      `mapstructure:"session"       json:"session"`
		Reconcile     ReconcileConfig    `mapstructure:"reconcile"     json:"reconcile"`
		Storage       StorageConfig      `mapstructure:"storage"       json:"storage"`
		Broadcast     BroadcastConfig    `mapstructure:"broadcast"     json:"broadcast"`
		Hooks         HooksConfig        `mapstructure:"hooks"         json:"hooks"`
		Log           LogConfig          `mapstructure:"log"           json:"log"`
		Notifications NotificationConfig `mapstructure:"notifications" json:"notifications"`
		Display       DisplayConfig      `mapstructure:"display"       json:"display"`
		CLI           CLIConfig          `mapstructure:"-"             json:"-"`
		System        SystemConfig       `mapstructure:"-"             json:"-"`
	}

	// SessionConfig holds session ageing settings.
	SessionConfig struct {
		MaxAge time.Duration `mapstructure:"max_age" json:"max_age"`
	}

	ReconcileConfig struct {
		Debounce time.Duration `mapstructure:"debounce" json:"debounce"`
	}

	// StorageConfig selects the local store backend.
	StorageConfig struct {
		Backend string `mapstructure:"backend" json:"backend"`
		Quota   int    `mapstructure:"quota"   json:"quota"`
	}

	// BroadcastConfig selects how other lifetrack processes learn about
	// local storage changes.
	BroadcastConfig struct {
		Mode     string `mapstructure:"mode"      json:"mode"`
		RelayURL string `mapstructure:"relay_url" json:"relay_url"`
	}

	HooksConfig struct {
		OnEnd string `mapstructure:"on_end" json:"on_end"`
	}

	// LogConfig controls the rotating log file.
	LogConfig struct {
		Level      string `mapstructure:"level"       json:"level"`
		MaxSize    int    `mapstructure:"max_size"    json:"max_size"`
		MaxBackups int    `mapstructure:"max_backups" json:"max_backups"`
	}

	NotificationConfig struct {
		Enabled bool `mapstructure:"enabled" json:"enabled"`
	}

	DisplayConfig struct {
		TwentyFourHour bool `mapstructure:"twenty_four_hour" json:"twenty_four_hour"`
	}

	// CLIConfig holds values that only come from command-line flags.
	CLIConfig struct {
		StartTime time.Time
		Yes       string
	}

	// SystemConfig holds resolved file locations.
	SystemConfig struct {
		ConfigPath  string
		StoragePath string
		BoltPath    string
		RemotePath  string
		LogPath     string
	}

	// Option is a function that modifies Config.
	Option func(*Config) error
)

const Version = "v0.3.0"

// Storage backends.
const (
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Broadcast modes. Auto picks fsnotify for the file backend and the
// in-process bus otherwise.
const (
	ModeAuto      = "auto"
	ModeBus       = "bus"
	ModeFSNotify  = "fsnotify"
	ModeWebsocket = "websocket"
)

var (
	Stdin  io.Reader = os.Stdin
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

// New creates a Config and applies opts in order. The result is validated.
func New(opts ...Option) (*Config, error) {
	cfg := &Config{}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, errConfigOption.Wrap(err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errConfigValidation.Wrap(err)
	}

	return cfg, nil
}

// WithPaths records the resolved file locations.
func WithPaths(sys SystemConfig) Option {
	return func(c *Config) error {
		c.System = sys
		return nil
	}
}

// BroadcastMode resolves ModeAuto against the storage backend.
func (c *Config) BroadcastMode() string {
	if c.Broadcast.Mode != ModeAuto {
		return c.Broadcast.Mode
	}

	if c.Storage.Backend == BackendFile {
		return ModeFSNotify
	}

	return ModeBus
}
