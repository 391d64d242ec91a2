package app

import (
	"github.com/urfave/cli/v2"

	"github.com/lifetrack/lifetrack/internal/config"
)

var (
	sinceFlag = &cli.StringFlag{
		Name:  "since",
		Usage: "Start the session in the past (e.g. '20 mins ago')",
	}

	noColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable coloured output",
	}

	disableNotificationFlag = &cli.BoolFlag{
		Name:    "disable-notification",
		Aliases: []string{"d"},
		Usage:   "Disable the system notification shown when a session changes in another window",
	}

	hookFlag = &cli.StringFlag{
		Name:    "hook",
		Aliases: []string{"cmd"},
		Usage:   "Execute an arbitrary command after a session ends",
	}

	storageFlag = &cli.StringFlag{
		Name:  "storage",
		Usage: "Storage backend for the running session: file, bolt or memory",
	}

	broadcastFlag = &cli.StringFlag{
		Name:  "broadcast",
		Usage: "How other windows learn about changes: auto, bus, fsnotify or websocket",
	}

	relayURLFlag = &cli.StringFlag{
		Name:        "relay-url",
		Usage:       "Relay address used by the websocket broadcast mode",
		DefaultText: config.DefaultRelayURL,
	}

	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn or error",
	}

	yesContinueFlag = &cli.BoolFlag{
		Name:  "yes-continue",
		Usage: "Keep an expired session running without asking",
	}

	yesEndFlag = &cli.BoolFlag{
		Name:  "yes-end",
		Usage: "End an expired session without asking",
	}

	labelFlag = &cli.StringFlag{
		Name:    "label",
		Aliases: []string{"l"},
		Usage:   "Workout type (e.g. push, legs)",
	}

	exerciseFlag = &cli.StringFlag{
		Name:     "exercise",
		Aliases:  []string{"e"},
		Usage:    "Name of the exercise",
		Required: true,
	}

	repsFlag = &cli.IntFlag{
		Name:    "reps",
		Aliases: []string{"r"},
		Usage:   "Number of repetitions",
	}

	weightFlag = &cli.Float64Flag{
		Name:    "weight",
		Aliases: []string{"w"},
		Usage:   "Weight lifted",
	}

	bucketFlag = &cli.StringFlag{
		Name:     "bucket",
		Aliases:  []string{"b"},
		Usage:    "Study bucket the session counts towards",
		Required: true,
	}

	notesFlag = &cli.StringFlag{
		Name:    "notes",
		Aliases: []string{"n"},
		Usage:   "Notes to store with the session, replacing those added with 'note'",
	}

	jsonFlag = &cli.BoolFlag{
		Name:  "json",
		Usage: "Print the output as JSON",
	}

	kindFlag = &cli.StringFlag{
		Name:    "kind",
		Aliases: []string{"k"},
		Usage:   "Session kind to reconcile: workout or study (default: both)",
	}

	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "Serve Prometheus metrics on this address (e.g. :9090)",
	}

	relayAddrFlag = &cli.StringFlag{
		Name:  "addr",
		Usage: "Address the relay listens on",
		Value: "127.0.0.1:7777",
	}
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		noColorFlag,
		disableNotificationFlag,
		hookFlag,
		storageFlag,
		broadcastFlag,
		relayURLFlag,
		logLevelFlag,
	}
}

func decisionFlags() []cli.Flag {
	return []cli.Flag{yesContinueFlag, yesEndFlag}
}
