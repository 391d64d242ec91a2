package config_test

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/lifetrack/lifetrack/internal/apperr"
	"github.com/lifetrack/lifetrack/internal/config"
	"github.com/lifetrack/lifetrack/internal/testutil"
)

type TestCase struct {
	Name       string
	GoldenFile string
	Snapshot   []byte
}

func (t TestCase) Output() (out []byte, name string) {
	return t.Snapshot, t.GoldenFile
}

func defaultConfig() *config.Config {
	return &config.Config{
		Session:   config.SessionConfig{MaxAge: 24 * time.Hour},
		Reconcile: config.ReconcileConfig{Debounce: 150 * time.Millisecond},
		Storage: config.StorageConfig{
			Backend: config.BackendFile,
			Quota:   config.DefaultQuota,
		},
		Broadcast: config.BroadcastConfig{
			Mode:     config.ModeAuto,
			RelayURL: config.DefaultRelayURL,
		},
		Log: config.LogConfig{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 3,
		},
		Notifications: config.NotificationConfig{Enabled: true},
	}
}

func TestViperWriteConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yml")

	cfg, err := config.New(config.WithViperConfig(configPath))
	require.NoError(t, err)

	_, err = os.Stat(configPath)
	require.NoError(t, err, "default config is written")

	if diff := cmp.Diff(defaultConfig(), cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}

	snap, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)

	testutil.CompareGoldenFile(t, TestCase{
		Name:       "write default config to file",
		GoldenFile: "defaults",
		Snapshot:   append(snap, '\n'),
	})

	again, err := config.New(config.WithViperConfig(configPath))
	require.NoError(t, err)
	assert.Equal(t, cfg, again, "the written file reads back the same")
}

func TestViperReadConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yml")

	err := testutil.CopyFile("testdata/modified_config.yml", configPath)
	require.NoError(t, err)

	cfg, err := config.New(config.WithViperConfig(configPath))
	require.NoError(t, err)

	want := &config.Config{
		Session:   config.SessionConfig{MaxAge: 12 * time.Hour},
		Reconcile: config.ReconcileConfig{Debounce: 0},
		Storage:   config.StorageConfig{Backend: config.BackendBolt, Quota: 65536},
		Broadcast: config.BroadcastConfig{
			Mode:     config.ModeWebsocket,
			RelayURL: "ws://10.0.0.2:7777/ws",
		},
		Hooks: config.HooksConfig{OnEnd: `notify-send "done"`},
		Log: config.LogConfig{
			Level:      "debug",
			MaxSize:    5,
			MaxBackups: 1,
		},
		Display: config.DisplayConfig{TwentyFourHour: true},
	}

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, config.ModeWebsocket, cfg.BroadcastMode())
}

func TestViperRejectsInvalidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yml")

	err := testutil.CopyFile("testdata/bad_backend.yml", configPath)
	require.NoError(t, err)

	_, err = config.New(config.WithViperConfig(configPath))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown storage backend "redis"`)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		Name   string
		Modify func(c *config.Config)
		Err    string
	}{
		{
			Name:   "defaults are valid",
			Modify: func(*config.Config) {},
		},
		{
			Name:   "zero max age",
			Modify: func(c *config.Config) { c.Session.MaxAge = 0 },
			Err:    "session max age must be positive",
		},
		{
			Name:   "negative debounce",
			Modify: func(c *config.Config) { c.Reconcile.Debounce = -time.Millisecond },
			Err:    "reconcile debounce must be between",
		},
		{
			Name:   "debounce too long",
			Modify: func(c *config.Config) { c.Reconcile.Debounce = 6 * time.Second },
			Err:    "reconcile debounce must be between",
		},
		{
			Name:   "unknown mode",
			Modify: func(c *config.Config) { c.Broadcast.Mode = "carrier-pigeon" },
			Err:    "unknown broadcast mode",
		},
		{
			Name:   "zero quota",
			Modify: func(c *config.Config) { c.Storage.Quota = 0 },
			Err:    "storage quota must be positive",
		},
		{
			Name:   "unknown log level",
			Modify: func(c *config.Config) { c.Log.Level = "loud" },
			Err:    "unknown log level",
		},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.Modify(cfg)

			err := cfg.Validate()
			if tc.Err == "" {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.Err)
		})
	}
}

func TestBroadcastMode(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, config.ModeFSNotify, cfg.BroadcastMode())

	cfg.Storage.Backend = config.BackendBolt
	assert.Equal(t, config.ModeBus, cfg.BroadcastMode())

	cfg.Broadcast.Mode = config.ModeWebsocket
	assert.Equal(t, config.ModeWebsocket, cfg.BroadcastMode())
}

func cliContext(t *testing.T, flags map[string]string) *cli.Context {
	t.Helper()

	f := flag.NewFlagSet("lifetrack", flag.ContinueOnError)

	for _, name := range []string{
		"since",
		"storage",
		"broadcast",
		"relay-url",
		"hook",
		"log-level",
	} {
		_ = f.String(name, "", "")
	}

	for _, name := range []string{
		"disable-notification",
		"yes-continue",
		"yes-end",
	} {
		_ = f.Bool(name, false, "")
	}

	for k, v := range flags {
		require.NoError(t, f.Set(k, v))
	}

	return cli.NewContext(&cli.App{}, f, nil)
}

func TestCLIOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yml")

	ctx := cliContext(t, map[string]string{
		"storage":              "memory",
		"broadcast":            "bus",
		"hook":                 "true",
		"disable-notification": "true",
		"yes-end":              "true",
		"since":                "2026-10-18 08:30",
	})

	cfg, err := config.New(
		config.WithViperConfig(configPath),
		config.WithCLIConfig(ctx),
	)
	require.NoError(t, err)

	assert.Equal(t, config.BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, config.ModeBus, cfg.Broadcast.Mode)
	assert.Equal(t, "true", cfg.Hooks.OnEnd)
	assert.False(t, cfg.Notifications.Enabled)
	assert.Equal(t, config.YesEnd, cfg.CLI.Yes)

	assert.Equal(t, 2026, cfg.CLI.StartTime.Year())
	assert.Equal(t, time.October, cfg.CLI.StartTime.Month())
	assert.Equal(t, 18, cfg.CLI.StartTime.Day())
	assert.Equal(t, 8, cfg.CLI.StartTime.Hour())
	assert.Equal(t, 30, cfg.CLI.StartTime.Minute())

	if diff := cmp.Diff(
		defaultConfig().Session,
		cfg.Session,
		cmpopts.EquateEmpty(),
	); diff != "" {
		t.Fatalf("unset flags changed the file config:\n%s", diff)
	}
}

func TestCLIErrors(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yml")

	_, err := config.New(
		config.WithViperConfig(configPath),
		config.WithCLIConfig(cliContext(t, map[string]string{
			"yes-end":      "true",
			"yes-continue": "true",
		})),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be used together")

	_, err = config.New(
		config.WithViperConfig(configPath),
		config.WithCLIConfig(cliContext(t, map[string]string{
			"storage": "tape",
		})),
	)
	require.Error(t, err)

	var aerr *apperr.Error
	require.ErrorAs(t, err, &aerr)
}
