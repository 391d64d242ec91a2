package config

import (
	"log/slog"
	"slices"
	"strings"
	"time"
)

const maxDebounce = 5 * time.Second

var (
	backends = []string{BackendFile, BackendBolt, BackendMemory}
	modes    = []string{ModeAuto, ModeBus, ModeFSNotify, ModeWebsocket}
)

// Validate performs validation checks on the Config struct and its fields.
func (c *Config) Validate() error {
	if c.Session.MaxAge <= 0 {
		return errInvalidMaxAge.Fmt(c.Session.MaxAge)
	}

	if c.Reconcile.Debounce < 0 || c.Reconcile.Debounce > maxDebounce {
		return errInvalidDebounce.Fmt(maxDebounce, c.Reconcile.Debounce)
	}

	if !slices.Contains(backends, c.Storage.Backend) {
		return errUnknownBackend.Fmt(
			c.Storage.Backend,
			strings.Join(backends, ", "),
		)
	}

	if c.Storage.Quota <= 0 {
		return errInvalidQuota.Fmt(c.Storage.Quota)
	}

	if !slices.Contains(modes, c.Broadcast.Mode) {
		return errUnknownMode.Fmt(c.Broadcast.Mode, strings.Join(modes, ", "))
	}

	if _, err := c.LogLevel(); err != nil {
		return err
	}

	return nil
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level

	err := l.UnmarshalText([]byte(c.Log.Level))
	if err != nil {
		return l, errUnknownLogLevel.Fmt(c.Log.Level)
	}

	return l, nil
}
