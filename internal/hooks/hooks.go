// Package hooks runs the user's shell command when a session ends
package hooks

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/lifetrack/lifetrack/internal/apperr"
	"github.com/lifetrack/lifetrack/internal/models"
)

var errParse = &apperr.Error{
	Message: "unable to parse the hooks.on_end option",
}

// Event describes the session that ended.
type Event struct {
	StartedAt time.Time
	EndedAt   time.Time
	Kind      models.Kind
	ID        string
	Label     string
}

// Env returns the variables passed to the command.
func (e Event) Env() []string {
	return []string{
		"LIFETRACK_KIND=" + e.Kind.String(),
		"LIFETRACK_SESSION_ID=" + e.ID,
		"LIFETRACK_LABEL=" + e.Label,
		"LIFETRACK_STARTED_AT=" + e.StartedAt.Format(time.RFC3339),
		"LIFETRACK_ENDED_AT=" + e.EndedAt.Format(time.RFC3339),
		"LIFETRACK_DURATION_SECONDS=" + strconv.FormatInt(
			int64(e.EndedAt.Sub(e.StartedAt).Seconds()),
			10,
		),
	}
}

// Runner executes a command line. An empty command does nothing.
type Runner struct {
	Command string
}

// Run executes the command with the event in its environment and waits for
// it to exit.
func (r Runner) Run(ctx context.Context, ev Event) error {
	if r.Command == "" {
		return nil
	}

	cmdSlice, err := shellquote.Split(r.Command)
	if err != nil {
		return errParse.Wrap(err)
	}

	if len(cmdSlice) == 0 {
		return nil
	}

	name := cmdSlice[0]
	args := cmdSlice[1:]

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), ev.Env()...)

	return cmd.Run()
}
