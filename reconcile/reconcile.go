// Package reconcile compares the locally stored session with the remote
// record for one session kind and repairs the local side when they diverge.
//
// The engine only diagnoses a missing local session. Restoring it from the
// remote record is left to the kind tracker's Sync, which knows the shape of
// the payload.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lifetrack/lifetrack/internal/models"
	"github.com/lifetrack/lifetrack/remote"
	"github.com/lifetrack/lifetrack/session"
)

// Status is a state of the reconciliation state machine.
type Status int

const (
	Idle Status = iota
	Checking
	Valid
	StaleLocal
	MissingLocal
	Expired
	Mismatch
)

var statusNames = map[Status]string{
	Idle:         "idle",
	Checking:     "checking",
	Valid:        "valid",
	StaleLocal:   "stale_local",
	MissingLocal: "missing_local",
	Expired:      "expired",
	Mismatch:     "mismatch",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Decision is the user's answer for an expired session.
type Decision int

const (
	Continue Decision = iota
	End
)

// DefaultDebounce is the delay Trigger waits for further triggers.
const DefaultDebounce = 150 * time.Millisecond

var outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lifetrack_reconcile_outcomes_total",
	Help: "Reconciliation passes by session kind and diagnosis.",
}, []string{"kind", "diagnosis"})

// Outcome is the result of one reconciliation pass.
type Outcome struct {
	Local  *models.ActiveSession `json:"local,omitempty"`
	Remote *models.RemoteRecord  `json:"remote,omitempty"`
	Kind   models.Kind           `json:"kind"`
	// Diagnosis is the state the pass found
	Diagnosis Status `json:"diagnosis"`
	// Final is the state the engine settled in: Valid, or Expired while a
	// decision is pending
	Final             Status                   `json:"final"`
	Validation        session.ValidationResult `json:"validation"`
	NeedsConfirmation bool                     `json:"needs_confirmation"`
	// Repaired is set when local state was wiped
	Repaired bool `json:"repaired"`
}

// Engine runs reconciliation passes against one State.
type Engine struct {
	state    *session.State
	remote   remote.Service
	log      *slog.Logger
	pending  map[models.Kind]*debounced
	debounce time.Duration
	status   Status
	mu       sync.Mutex
	// run serialises passes
	run sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithDebounce sets the quiet period used by Trigger.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		e.debounce = d
	}
}

// New returns an idle engine.
func New(state *session.State, svc remote.Service, opts ...Option) *Engine {
	e := &Engine{
		state:    state,
		remote:   svc,
		log:      slog.Default(),
		pending:  make(map[models.Kind]*debounced),
		debounce: DefaultDebounce,
		status:   Idle,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Status returns the current state of the engine.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.status
}

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// Check runs one pass for kind. Stale or mismatched local state is wiped
// before Check returns. An expired session with a matching remote record is
// left untouched and the engine stays in Expired until Resolve is called.
//
// If the remote record cannot be fetched, the error is returned, nothing is
// repaired and the engine goes back to Idle.
func (e *Engine) Check(ctx context.Context, kind models.Kind) (Outcome, error) {
	e.run.Lock()
	defer e.run.Unlock()

	e.setStatus(Checking)

	local, res := e.state.Probe()

	rec, err := remote.ActiveFor(ctx, e.remote, kind)
	if err != nil {
		e.setStatus(Idle)

		e.log.Warn(
			"fetching the remote session",
			slog.String("kind", kind.String()),
			slog.Any("error", err),
		)

		return Outcome{}, err
	}

	out := Outcome{
		Kind:       kind,
		Local:      local,
		Remote:     rec,
		Validation: res,
		Final:      Valid,
	}

	switch {
	case local == nil && rec == nil:
		out.Diagnosis = Valid
	case local != nil && local.Kind != kind:
		// belongs to another kind and is checked when that kind is used
		out.Diagnosis = Valid
	case local != nil && rec == nil:
		out.Diagnosis = StaleLocal
	case local == nil:
		out.Diagnosis = MissingLocal
	case local.CorrelationID != rec.ID:
		out.Diagnosis = Mismatch
	case res.IsExpired:
		out.Diagnosis = Expired
		out.Final = Expired
		out.NeedsConfirmation = true
	default:
		out.Diagnosis = Valid
	}

	if out.Diagnosis == StaleLocal || out.Diagnosis == Mismatch {
		e.setStatus(out.Diagnosis)

		err = e.state.ClearImmediate()
		if err != nil {
			e.setStatus(Idle)
			return out, err
		}

		out.Repaired = true
	}

	e.setStatus(out.Final)

	outcomesTotal.WithLabelValues(kind.String(), out.Diagnosis.String()).Inc()

	e.log.Info(
		"reconciled session",
		slog.String("kind", kind.String()),
		slog.String("diagnosis", out.Diagnosis.String()),
		slog.Bool("repaired", out.Repaired),
	)

	return out, nil
}

// Resolve records the user's decision for an expired session and moves the
// engine back to Valid. Ending the session is the caller's job, through the
// kind tracker, so that the remote record is finalised too.
func (e *Engine) Resolve(d Decision) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != Expired {
		return errNoDecisionPending.Fmt(e.status)
	}

	e.status = Valid

	e.log.Info(
		"expired session resolved",
		slog.Bool("continue", d == Continue),
	)

	return nil
}

// Result is delivered by Trigger.
type Result struct {
	Err     error
	Outcome Outcome
}

type debounced struct {
	timer   *time.Timer
	ctx     context.Context
	waiters []chan Result
}

// Trigger schedules a pass for kind after the debounce period. Triggers for
// the same kind that arrive within the period are folded into one pass and
// every caller receives its result. The context of the latest trigger is
// used for the pass.
func (e *Engine) Trigger(ctx context.Context, kind models.Kind) <-chan Result {
	ch := make(chan Result, 1)

	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.pending[kind]
	if ok && d.timer.Stop() {
		d.ctx = ctx
		d.waiters = append(d.waiters, ch)
		d.timer.Reset(e.debounce)

		return ch
	}

	d = &debounced{ctx: ctx, waiters: []chan Result{ch}}
	e.pending[kind] = d

	d.timer = time.AfterFunc(e.debounce, func() {
		e.mu.Lock()
		if e.pending[kind] == d {
			delete(e.pending, kind)
		}
		pctx, waiters := d.ctx, d.waiters
		e.mu.Unlock()

		out, err := e.Check(pctx, kind)

		for _, w := range waiters {
			w <- Result{Outcome: out, Err: err}
		}
	})

	return ch
}
