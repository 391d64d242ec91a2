// Package session holds the in-memory active session of one lifetrack
// process and keeps it in step with local storage.
//
// Mutations take one of two paths. Start, End, UpdateSessionData and
// SetCorrelationID change memory and then persist the new value with exactly
// one storage write. RestoreFromBackup, ClearImmediate and SetDirect are the
// manual path: they write storage themselves (or not at all) and change memory
// silently, so that no second write follows.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lifetrack/lifetrack/internal/clock"
	"github.com/lifetrack/lifetrack/internal/models"
	"github.com/lifetrack/lifetrack/persist"
)

// StartOptions configure a new session.
type StartOptions struct {
	// StartedAt defaults to the current time
	StartedAt     time.Time
	CorrelationID string
	Label         string
	Payload       json.RawMessage
}

// Observer is notified with a copy of the session after each in-memory
// change. A nil session means there is none.
type Observer func(*models.ActiveSession)

// State is the in-memory authority for the active session. It is safe for
// concurrent use.
type State struct {
	store     *persist.Store
	clock     clock.Clock
	validator Validator
	log       *slog.Logger
	current   *models.ActiveSession
	observers map[int]Observer
	nextObs   int
	changed   bool
	mu        sync.Mutex
}

// Option configures a State.
type Option func(*State)

func WithClock(c clock.Clock) Option {
	return func(s *State) {
		s.clock = c
	}
}

func WithValidator(v Validator) Option {
	return func(s *State) {
		s.validator = v
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *State) {
		s.log = l
	}
}

// New returns an empty State persisting to p. Call Load or SetDirect to
// bring in a stored session.
func New(p *persist.Store, opts ...Option) *State {
	s := &State{
		store:     p,
		clock:     clock.System{},
		log:       slog.Default(),
		observers: make(map[int]Observer),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Now returns the current time of the state's clock.
func (s *State) Now() time.Time {
	return s.clock.Now()
}

// Validator returns the age policy used by the state.
func (s *State) Validator() Validator {
	return s.validator
}

// Store returns the persistent store behind the state.
func (s *State) Store() *persist.Store {
	return s.store
}

// Start replaces any current session with a new one of the given kind and
// persists it. If persisting fails, memory and storage keep their previous
// values and the error is returned.
func (s *State) Start(kind models.Kind, opts StartOptions) error {
	if !kind.Valid() {
		return errUnknownKind.Fmt(kind)
	}

	startedAt := opts.StartedAt
	if startedAt.IsZero() {
		startedAt = s.clock.Now()
	}

	next := &models.ActiveSession{
		Metadata: models.Metadata{
			Kind:          kind,
			StartedAt:     startedAt.UTC(),
			CorrelationID: opts.CorrelationID,
			Label:         opts.Label,
		},
		Payload: bytes.Clone(opts.Payload),
	}

	s.mu.Lock()
	defer s.unlock()

	return s.commit(next, false)
}

// End clears the session from memory and storage.
func (s *State) End() error {
	s.mu.Lock()
	defer s.unlock()

	return s.commit(nil, false)
}

// UpdateSessionData replaces the payload of the current session. Without a
// session it does nothing.
func (s *State) UpdateSessionData(payload json.RawMessage) error {
	s.mu.Lock()
	defer s.unlock()

	if s.current == nil {
		return nil
	}

	next := s.current.Clone()
	next.Payload = bytes.Clone(payload)

	return s.commit(next, false)
}

// SetCorrelationID attaches the id of the remote record to the current
// session.
func (s *State) SetCorrelationID(id string) error {
	s.mu.Lock()
	defer s.unlock()

	if s.current == nil {
		return ErrNoSession
	}

	if s.current.CorrelationID == id {
		return nil
	}

	next := s.current.Clone()
	next.CorrelationID = id

	return s.commit(next, false)
}

// Duration returns how long the current session has been running, or zero
// without one.
func (s *State) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return 0
	}

	d := s.clock.Now().Sub(s.current.StartedAt)
	if d < 0 {
		return 0
	}

	return d
}

// Current returns a copy of the current session, or nil.
func (s *State) Current() *models.ActiveSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current.Clone()
}

// Probe reads the stored session and classifies its age without changing
// memory or storage.
func (s *State) Probe() (*models.ActiveSession, ValidationResult) {
	meta := s.store.LoadMetadata()
	if meta == nil {
		return nil, ValidationResult{}
	}

	sess := &models.ActiveSession{
		Metadata: *meta,
		Payload:  s.store.LoadPayload(meta.Kind),
	}

	return sess, s.validator.Validate(meta.StartedAt, s.clock.Now())
}

// RecoverFromStore returns the stored session if its age is valid. A stored
// session that is expired, or dated in the future by any amount, is wiped
// from storage and nil is returned. Memory is never changed.
func (s *State) RecoverFromStore() *models.ActiveSession {
	sess, res := s.Probe()
	if sess == nil {
		return nil
	}

	if res.IsValid {
		return sess
	}

	s.log.Info(
		"discarding stored session",
		slog.String("kind", sess.Kind.String()),
		slog.Float64("age_hours", res.AgeHours),
		slog.Bool("expired", res.IsExpired),
	)

	err := s.store.ClearAll()
	if err != nil {
		s.log.Error("wiping stored session", slog.Any("error", err))
	}

	return nil
}

// Load puts the stored session into memory without judging its age, so an
// expired session is still there for reconciliation to offer. Only a
// session dated in the future is wiped and not loaded. Load returns the
// session now in memory.
func (s *State) Load() *models.ActiveSession {
	sess, res := s.Probe()
	if sess != nil && res.AgeHours < 0 {
		s.log.Info(
			"discarding future-dated session",
			slog.String("kind", sess.Kind.String()),
			slog.Float64("age_hours", res.AgeHours),
		)

		err := s.store.ClearAll()
		if err != nil {
			s.log.Error("wiping stored session", slog.Any("error", err))
		}

		sess = nil
	}

	s.SetDirect(sess)

	return s.Current()
}

// ClearImmediate wipes storage and then clears memory without a second
// write. It starts a teardown that the caller may undo with
// RestoreFromBackup. If the wipe fails, memory is left untouched.
func (s *State) ClearImmediate() error {
	s.mu.Lock()
	defer s.unlock()

	err := s.store.ClearAll()
	if err != nil {
		return errClear.Wrap(err)
	}

	return s.commit(nil, true)
}

// SetDirect replaces the in-memory session without writing storage. It is
// used when storage already holds sess.
func (s *State) SetDirect(sess *models.ActiveSession) {
	s.mu.Lock()
	defer s.unlock()

	// silent commits cannot fail
	_ = s.commit(sess.Clone(), true)
}

// Subscribe registers fn for in-memory changes on either path.
func (s *State) Subscribe(fn Observer) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn

	var once sync.Once

	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// commit sets next as the in-memory session and, unless silent, persists it.
// The caller must hold s.mu.
func (s *State) commit(next *models.ActiveSession, silent bool) error {
	prev := s.current

	if silent {
		s.set(next)
		return nil
	}

	before := s.store.Snapshot()

	err := s.persist(prev, next)
	if err != nil {
		// a failed write may have been partially applied
		if !before.Equal(s.store.Snapshot()) {
			rerr := s.store.Restore(before)
			if rerr != nil {
				err = errors.Join(err, rerr)
			}
		}

		return err
	}

	s.set(next)

	return nil
}

// persist writes the difference between prev and next as one storage batch.
func (s *State) persist(prev, next *models.ActiveSession) error {
	switch {
	case next == nil:
		return s.store.ClearAll()
	case prev == nil || prev.Kind != next.Kind:
		return s.store.Save(next.Metadata, next.Payload)
	case sameMetadata(prev.Metadata, next.Metadata):
		return s.store.SavePayload(next.Kind, next.Payload)
	case bytes.Equal(prev.Payload, next.Payload):
		return s.store.SaveMetadata(next.Metadata)
	default:
		return s.store.Save(next.Metadata, next.Payload)
	}
}

func (s *State) set(next *models.ActiveSession) {
	if !s.current.Equal(next) {
		s.changed = true
	}

	s.current = next
}

// unlock releases s.mu and then notifies observers of any change made while
// it was held.
func (s *State) unlock() {
	var (
		cur  *models.ActiveSession
		obs  []Observer
		fire bool
	)

	if s.changed {
		s.changed = false
		fire = true
		cur = s.current.Clone()

		for _, fn := range s.observers {
			obs = append(obs, fn)
		}
	}

	s.mu.Unlock()

	if !fire {
		return
	}

	for _, fn := range obs {
		fn(cur.Clone())
	}
}

func sameMetadata(a, b models.Metadata) bool {
	return a.Kind == b.Kind &&
		a.StartedAt.Equal(b.StartedAt) &&
		a.CorrelationID == b.CorrelationID &&
		a.Label == b.Label
}
