// Package crosstab keeps a session.State in step with writes made to the
// shared local store by other lifetrack processes
package crosstab

import (
	"context"
	"log/slog"
	"sync"

	"github.com/davecgh/go-spew/spew"

	"github.com/lifetrack/lifetrack/broadcast"
	"github.com/lifetrack/lifetrack/internal/canon"
	"github.com/lifetrack/lifetrack/internal/models"
	"github.com/lifetrack/lifetrack/persist"
	"github.com/lifetrack/lifetrack/session"
)

// Change describes an update applied to the in-memory session in response to
// a storage event.
type Change struct {
	Session *models.ActiveSession
	Key     string
	Origin  string
	// Expired is set when the stored session was too old and got wiped
	Expired bool
}

// Listener re-hydrates a State from storage whenever another endpoint
// changes a session key.
type Listener struct {
	state    *session.State
	log      *slog.Logger
	onChange func(Change)
	cancels  []func()
	mu       sync.Mutex
}

// Option configures a Listener.
type Option func(*Listener)

func WithLogger(l *slog.Logger) Option {
	return func(lst *Listener) {
		lst.log = l
	}
}

// OnChange registers fn to run after each event that changed memory.
func OnChange(fn func(Change)) Option {
	return func(lst *Listener) {
		lst.onChange = fn
	}
}

// Listen subscribes to every session key on b. Call Close to stop.
func Listen(
	state *session.State,
	b broadcast.Broadcaster,
	opts ...Option,
) *Listener {
	l := &Listener{
		state: state,
		log:   slog.Default(),
	}

	for _, opt := range opts {
		opt(l)
	}

	for _, key := range persist.Keys() {
		l.cancels = append(l.cancels, b.Subscribe(key, l.Handle))
	}

	return l
}

// Close cancels the subscriptions.
func (l *Listener) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, cancel := range l.cancels {
		cancel()
	}

	l.cancels = nil
}

// Handle applies a single storage event.
func (l *Listener) Handle(ev broadcast.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.log.Enabled(context.Background(), slog.LevelDebug) {
		l.log.Debug("storage event", slog.String("event", spew.Sdump(ev)))
	}

	change := Change{Key: ev.Key, Origin: ev.Origin}

	// Only a removed metadata key means the session is gone. A removed
	// payload key is part of a larger write, so storage is read again.
	if ev.Key == persist.MetadataKey && !ev.Present {
		l.apply(change)
		return
	}

	sess, res := l.state.Probe()

	switch {
	case sess == nil:
	case res.IsValid:
		change.Session = sess
	default:
		l.log.Info(
			"stored session is no longer valid",
			slog.String("kind", sess.Kind.String()),
			slog.Float64("age_hours", res.AgeHours),
		)

		err := l.state.Store().ClearAll()
		if err != nil {
			l.log.Error("wiping stored session", slog.Any("error", err))
		}

		change.Expired = true
	}

	l.apply(change)
}

func (l *Listener) apply(change Change) {
	if same(l.state.Current(), change.Session) && !change.Expired {
		return
	}

	l.state.SetDirect(change.Session)

	if l.onChange != nil {
		l.onChange(change)
	}
}

// same compares sessions by their canonical JSON, so a payload that was only
// re-encoded does not count as a change.
func same(a, b *models.ActiveSession) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	da, err := canon.DigestOf(a)
	if err != nil {
		return false
	}

	db, err := canon.DigestOf(b)
	if err != nil {
		return false
	}

	return da == db
}
