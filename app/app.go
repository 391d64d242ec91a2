// Package app defines the lifetrack command-line interface
package app

import (
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/lifetrack/lifetrack/internal/config"
)

// disableStyling disables all styling provided by pterm.
func disableStyling() {
	pterm.DisableColor()
	pterm.DisableStyling()
	pterm.Debug.Prefix.Text = ""
	pterm.Info.Prefix.Text = ""
	pterm.Success.Prefix.Text = ""
	pterm.Warning.Prefix.Text = ""
	pterm.Error.Prefix.Text = ""
	pterm.Fatal.Prefix.Text = ""
}

// Get retrieves the lifetrack app instance.
func Get() *cli.App {
	return &cli.App{
		Name: "lifetrack",
		Usage: `
		lifetrack keeps one running workout or study session per device and
		keeps it in step with the remote record and with other windows.`,
		UsageText:            "[COMMAND] [OPTIONS]",
		Version:              config.Version,
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:  "workout",
				Usage: "Start, log sets for, and end a workout",
				Subcommands: []*cli.Command{
					{
						Name:   "start",
						Usage:  "Start a workout",
						Flags:  append([]cli.Flag{labelFlag, sinceFlag}, decisionFlags()...),
						Action: withEnv(workoutStartAction),
					},
					{
						Name:  "log",
						Usage: "Log a set in the running workout",
						Flags: append(
							[]cli.Flag{exerciseFlag, repsFlag, weightFlag},
							decisionFlags()...,
						),
						Action: withEnv(workoutLogAction),
					},
					{
						Name:   "end",
						Usage:  "End the running workout",
						Flags:  decisionFlags(),
						Action: withEnv(workoutEndAction),
					},
				},
			},
			{
				Name:  "study",
				Usage: "Start, annotate, and end a study session",
				Subcommands: []*cli.Command{
					{
						Name:   "start",
						Usage:  "Start a study session",
						Flags:  append([]cli.Flag{bucketFlag, sinceFlag}, decisionFlags()...),
						Action: withEnv(studyStartAction),
					},
					{
						Name:      "note",
						Usage:     "Add a note to the running study session",
						ArgsUsage: "TEXT",
						Flags:     decisionFlags(),
						Action:    withEnv(studyNoteAction),
					},
					{
						Name:   "end",
						Usage:  "End the running study session",
						Flags:  append([]cli.Flag{notesFlag}, decisionFlags()...),
						Action: withEnv(studyEndAction),
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Reconcile and print the running session",
				Flags:  []cli.Flag{jsonFlag},
				Action: withEnv(statusAction),
			},
			{
				Name:   "reconcile",
				Usage:  "Check the local session against the remote store and repair it",
				Flags:  append([]cli.Flag{kindFlag}, decisionFlags()...),
				Action: withEnv(reconcileAction),
			},
			{
				Name:   "watch",
				Usage:  "Follow session changes made in other windows",
				Flags:  []cli.Flag{metricsAddrFlag},
				Action: withEnv(watchAction),
			},
			{
				Name:   "relay",
				Usage:  "Run the relay used by the websocket broadcast mode",
				Flags:  []cli.Flag{relayAddrFlag},
				Action: relayAction,
			},
			{
				Name:  "storage",
				Usage: "Inspect the local session storage",
				Subcommands: []*cli.Command{
					{
						Name:   "ls",
						Usage:  "List stored keys",
						Flags:  []cli.Flag{jsonFlag},
						Action: withEnv(storageListAction),
					},
				},
			},
			{
				Name:   "edit-config",
				Usage:  "Edit the configuration file",
				Action: editConfigAction,
			},
		},
		Flags:  globalFlags(),
		Before: beforeAction,
		After:  afterAction,
	}
}
