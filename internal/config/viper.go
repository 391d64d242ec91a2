package config

import (
	"errors"
	"os"

	"github.com/spf13/viper"
)

const (
	keyMaxAge               = "session.max_age"
	keyDebounce             = "reconcile.debounce"
	keyStorageBackend       = "storage.backend"
	keyStorageQuota         = "storage.quota"
	keyBroadcastMode        = "broadcast.mode"
	keyRelayURL             = "broadcast.relay_url"
	keyOnEnd                = "hooks.on_end"
	keyLogLevel             = "log.level"
	keyLogMaxSize           = "log.max_size"
	keyLogMaxBackups        = "log.max_backups"
	keyNotificationsEnabled = "notifications.enabled"
	keyTwentyFourHour       = "display.twenty_four_hour"
)

// Defaults.
const (
	DefaultQuota    = 5 << 20
	DefaultRelayURL = "ws://127.0.0.1:7777/ws"
)

// WithViperConfig returns an Option that loads configuration from the YAML
// file at configPath. A missing file is created with the defaults.
func WithViperConfig(configPath string) Option {
	return func(c *Config) error {
		v := viper.New()

		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		setupViper(v, c)

		err := v.ReadInConfig()
		if err == nil {
			return loadViperConfig(v, c)
		}

		if !errors.Is(err, os.ErrNotExist) {
			return errReadConfig.Wrap(err)
		}

		if err := v.WriteConfig(); err != nil {
			return errWriteConfig.Wrap(err)
		}

		return loadViperConfig(v, c)
	}
}

// setupViper sets the defaults. Values already present on c, such as those
// chosen in the first-run prompt, take their place.
func setupViper(v *viper.Viper, c *Config) {
	v.SetDefault(keyMaxAge, "24h")
	v.SetDefault(keyDebounce, "150ms")
	v.SetDefault(keyStorageBackend, BackendFile)
	v.SetDefault(keyStorageQuota, DefaultQuota)
	v.SetDefault(keyBroadcastMode, ModeAuto)
	v.SetDefault(keyRelayURL, DefaultRelayURL)
	v.SetDefault(keyOnEnd, "")
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogMaxSize, 10)
	v.SetDefault(keyLogMaxBackups, 3)
	v.SetDefault(keyNotificationsEnabled, true)
	v.SetDefault(keyTwentyFourHour, false)

	if c.Storage.Backend != "" {
		v.SetDefault(keyStorageBackend, c.Storage.Backend)
	}

	if c.Broadcast.Mode != "" {
		v.SetDefault(keyBroadcastMode, c.Broadcast.Mode)
	}

	if c.Hooks.OnEnd != "" {
		v.SetDefault(keyOnEnd, c.Hooks.OnEnd)
	}
}

func loadViperConfig(v *viper.Viper, c *Config) error {
	err := v.Unmarshal(c)
	if err != nil {
		return errReadConfig.Wrap(err)
	}

	return nil
}
