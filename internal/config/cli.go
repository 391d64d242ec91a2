package config

import (
	"github.com/urfave/cli/v2"

	"github.com/lifetrack/lifetrack/internal/timeutil"
)

// Answers to the expired session prompt that can be given up front.
const (
	YesContinue = "continue"
	YesEnd      = "end"
)

// CLIOptions represents command-line configuration options.
type CLIOptions struct {
	Since         string
	Storage       string
	Broadcast     string
	RelayURL      string
	Hook          string
	LogLevel      string
	DisableNotify bool
	YesContinue   bool
	YesEnd        bool
}

// WithCLIConfig returns an Option that loads configuration from CLI flags.
// Flags that were not set leave the file configuration alone.
func WithCLIConfig(ctx *cli.Context) Option {
	return func(c *Config) error {
		opts := CLIOptions{
			Since:         ctx.String("since"),
			Storage:       ctx.String("storage"),
			Broadcast:     ctx.String("broadcast"),
			RelayURL:      ctx.String("relay-url"),
			Hook:          ctx.String("hook"),
			LogLevel:      ctx.String("log-level"),
			DisableNotify: ctx.Bool("disable-notification"),
			YesContinue:   ctx.Bool("yes-continue"),
			YesEnd:        ctx.Bool("yes-end"),
		}

		return applyCLIOptions(c, opts)
	}
}

func applyCLIOptions(c *Config, opts CLIOptions) error {
	if opts.Storage != "" {
		c.Storage.Backend = opts.Storage
	}

	if opts.Broadcast != "" {
		c.Broadcast.Mode = opts.Broadcast
	}

	if opts.RelayURL != "" {
		c.Broadcast.RelayURL = opts.RelayURL
	}

	if opts.Hook != "" {
		c.Hooks.OnEnd = opts.Hook
	}

	if opts.LogLevel != "" {
		c.Log.Level = opts.LogLevel
	}

	if opts.DisableNotify {
		c.Notifications.Enabled = false
	}

	switch {
	case opts.YesContinue && opts.YesEnd:
		return errConflictingDecision
	case opts.YesContinue:
		c.CLI.Yes = YesContinue
	case opts.YesEnd:
		c.CLI.Yes = YesEnd
	}

	if opts.Since != "" {
		startTime, err := timeutil.FromStr(opts.Since)
		if err != nil {
			return errInvalidSince.Fmt(opts.Since).Wrap(err)
		}

		c.CLI.StartTime = startTime
	}

	return nil
}
