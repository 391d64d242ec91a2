// Package report prints session state and reconciliation results to the
// terminal
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/maruel/natural"
	"github.com/pterm/pterm"

	"github.com/lifetrack/lifetrack/internal/models"
	"github.com/lifetrack/lifetrack/internal/timeutil"
	"github.com/lifetrack/lifetrack/internal/ui"
	"github.com/lifetrack/lifetrack/reconcile"
	"github.com/lifetrack/lifetrack/session"
)

const noSessionMsg = "No session is running"

// StatusView is the machine-readable form of the status command.
type StatusView struct {
	Session         *models.ActiveSession     `json:"session"`
	Validation      *session.ValidationResult `json:"validation,omitempty"`
	DurationSeconds int64                     `json:"duration_seconds"`
}

// NewStatusView describes sess as of now.
func NewStatusView(
	sess *models.ActiveSession,
	v session.Validator,
	now time.Time,
) StatusView {
	view := StatusView{Session: sess}
	if sess == nil {
		return view
	}

	res := v.Validate(sess.StartedAt, now)
	view.Validation = &res

	if d := now.Sub(sess.StartedAt); d > 0 {
		view.DurationSeconds = int64(d / time.Second)
	}

	return view
}

// StatusRows returns the status table, header first.
func StatusRows(view StatusView, twentyFour bool) [][]string {
	sess := view.Session

	link := sess.CorrelationID
	if link == "" {
		link = "not linked"
	}

	state := ui.Green("running")

	switch {
	case view.Validation == nil:
	case view.Validation.IsExpired:
		state = ui.Red("expired")
	case !view.Validation.IsValid:
		state = ui.Yellow("invalid start time")
	}

	return [][]string{
		{"KIND", "LABEL", "STARTED", "DURATION", "REMOTE ID", "STATE"},
		{
			sess.Kind.String(),
			sess.Label,
			timeutil.Clock(sess.StartedAt.Local(), twentyFour),
			timeutil.FormatDuration(
				time.Duration(view.DurationSeconds) * time.Second,
			),
			link,
			state,
		},
	}
}

// Status prints view as a table.
func Status(w io.Writer, view StatusView, twentyFour bool) error {
	if view.Session == nil {
		pterm.Info.Println(noSessionMsg)
		return nil
	}

	return ui.PrintTable(StatusRows(view, twentyFour), w)
}

// Outcome describes the result of a reconciliation pass.
func Outcome(o reconcile.Outcome) string {
	switch o.Diagnosis {
	case reconcile.StaleLocal:
		return fmt.Sprintf(
			"The local %s session had already ended elsewhere and was cleared",
			o.Kind,
		)
	case reconcile.Mismatch:
		return fmt.Sprintf(
			"The local %s session did not match the running one and was cleared",
			o.Kind,
		)
	case reconcile.MissingLocal:
		return fmt.Sprintf("A %s session is running elsewhere", o.Kind)
	case reconcile.Expired:
		return fmt.Sprintf(
			"The %s session has been running for %.1f hours",
			o.Kind,
			o.Validation.AgeHours,
		)
	default:
		return ""
	}
}

// PrintOutcome prints a line for passes that found something to report.
func PrintOutcome(o reconcile.Outcome) {
	msg := Outcome(o)
	if msg == "" {
		return
	}

	if o.Repaired || o.NeedsConfirmation {
		pterm.Warning.Println(msg)
		return
	}

	pterm.Info.Println(msg)
}

// StorageRows lists stored keys in natural order with their sizes, header
// first.
func StorageRows(sizes map[string]int) [][]string {
	keys := make([]string, 0, len(sizes))
	for k := range sizes {
		keys = append(keys, k)
	}

	sort.Sort(natural.StringSlice(keys))

	rows := [][]string{{"KEY", "BYTES"}}
	for _, k := range keys {
		rows = append(rows, []string{k, strconv.Itoa(sizes[k])})
	}

	return rows
}

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func Success(msg string, args ...any) {
	pterm.Success.Printfln(msg, args...)
}

func Error(err error) {
	pterm.Error.Println(err)
}

func Quit(err error) {
	pterm.Error.Println(err)
	os.Exit(1)
}
