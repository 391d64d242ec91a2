// Package workout tracks a running workout and its logged sets
package workout

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/lifetrack/lifetrack/internal/hooks"
	"github.com/lifetrack/lifetrack/internal/lifecycle"
	"github.com/lifetrack/lifetrack/internal/models"
	"github.com/lifetrack/lifetrack/internal/optimistic"
	"github.com/lifetrack/lifetrack/remote"
	"github.com/lifetrack/lifetrack/session"
)

// Session is a typed view of a running workout.
type Session struct {
	models.Metadata
	Sets []models.Lift `json:"sets"`
}

// Tracker starts, updates and ends workouts, keeping the local session and
// the remote record together.
type Tracker struct {
	flow   *lifecycle.Flow
	remote remote.Service
}

// Option configures a Tracker.
type Option func(*lifecycle.Flow)

func WithLogger(l *slog.Logger) Option {
	return func(f *lifecycle.Flow) {
		f.Log = l
	}
}

// WithEndHook runs h after a workout has ended.
func WithEndHook(h hooks.Runner) Option {
	return func(f *lifecycle.Flow) {
		f.Hook = h
	}
}

func New(state *session.State, svc remote.Service, opts ...Option) *Tracker {
	f := &lifecycle.Flow{
		State: state,
		Log:   slog.Default(),
		Kind:  models.Workout,
	}

	for _, opt := range opts {
		opt(f)
	}

	return &Tracker{flow: f, remote: svc}
}

// Current returns the running workout, or nil.
func (t *Tracker) Current() *Session {
	sess, err := t.flow.Active()
	if err != nil {
		return nil
	}

	return view(sess)
}

// Start begins a workout at startedAt, or now when it is zero.
func (t *Tracker) Start(
	ctx context.Context,
	label string,
	startedAt time.Time,
) (*Session, error) {
	payload, err := encode(models.WorkoutPayload{Sets: []models.Lift{}})
	if err != nil {
		return nil, err
	}

	sess, err := t.flow.Start(
		ctx,
		session.StartOptions{
			StartedAt: startedAt,
			Label:     label,
			Payload:   payload,
		},
		func(ctx context.Context, opts session.StartOptions) (string, error) {
			return t.remote.StartWorkout(ctx, opts.Label, opts.StartedAt)
		},
	)
	if err != nil {
		return nil, err
	}

	return view(sess), nil
}

// LogLift adds a set to the running workout. The set shows up locally at
// once under a temporary id, which is swapped for the remote id when the
// remote store accepts it. If the remote call fails, the set is removed
// again. If only the final local save fails, the set is returned with its
// remote id along with the error; Sync later replaces the temporary id.
func (t *Tracker) LogLift(
	ctx context.Context,
	lift models.Lift,
) (models.Lift, error) {
	sess, err := t.flow.Active()
	if err != nil {
		return models.Lift{}, err
	}

	if sess.CorrelationID == "" {
		return models.Lift{}, errNotLinked
	}

	if lift.LoggedAt.IsZero() {
		lift.LoggedAt = t.flow.State.Now()
	}

	lift.LoggedAt = lift.LoggedAt.UTC()

	existing := view(sess).Sets
	items := make([]optimistic.Item[models.Lift], len(existing))

	for i, l := range existing {
		items[i] = optimistic.Item[models.Lift]{ID: l.ID, Value: l}
	}

	id, err := optimistic.Create(
		ctx,
		optimistic.NewList(items...),
		lift,
		func(ctx context.Context, l models.Lift) (string, error) {
			return t.remote.LogLift(ctx, sess.CorrelationID, l)
		},
		t.save,
	)
	if id == "" {
		return models.Lift{}, err
	}

	lift.ID = id

	return lift, err
}

// End finishes the running workout.
func (t *Tracker) End(ctx context.Context) (*Session, error) {
	sess, err := t.flow.End(
		ctx,
		func(ctx context.Context, sess *models.ActiveSession) error {
			return t.remote.EndWorkout(ctx, sess.CorrelationID, t.flow.State.Now())
		},
	)
	if err != nil {
		return nil, err
	}

	return view(sess), nil
}

// Sync restores a running remote workout locally when no local session
// exists, including the sets already stored remotely. A matching local
// workout is kept; if some of its sets still carry temporary ids, its sets
// are read again from the remote store.
func (t *Tracker) Sync(ctx context.Context) (lifecycle.SyncAction, error) {
	rec, err := t.remote.GetActiveWorkout(ctx)
	if err != nil {
		return lifecycle.Idle, err
	}

	action := t.flow.NeedsAdoption(rec)

	if action == lifecycle.Kept && rec != nil && pending(t.Current()) {
		return t.refresh(ctx, rec.ID)
	}

	if action != lifecycle.Adopted {
		return action, nil
	}

	payload, err := t.remoteSets(ctx, rec.ID)
	if err != nil {
		return lifecycle.Idle, err
	}

	err = t.flow.Adopt(rec, payload)
	if err != nil {
		return lifecycle.Idle, err
	}

	return lifecycle.Adopted, nil
}

// refresh replaces the local sets with those stored remotely.
func (t *Tracker) refresh(ctx context.Context, id string) (lifecycle.SyncAction, error) {
	payload, err := t.remoteSets(ctx, id)
	if err != nil {
		return lifecycle.Idle, err
	}

	err = t.flow.State.UpdateSessionData(payload)
	if err != nil {
		return lifecycle.Idle, err
	}

	t.flow.Log.Info("replaced unconfirmed sets", slog.String("id", id))

	return lifecycle.Kept, nil
}

func (t *Tracker) remoteSets(ctx context.Context, id string) (json.RawMessage, error) {
	sets, err := t.remote.ListLifts(ctx, id)
	if err != nil {
		return nil, err
	}

	if sets == nil {
		sets = []models.Lift{}
	}

	return encode(models.WorkoutPayload{Sets: sets})
}

// pending reports whether sess holds sets the remote store has not
// confirmed.
func pending(sess *Session) bool {
	if sess == nil {
		return false
	}

	return slices.ContainsFunc(sess.Sets, func(l models.Lift) bool {
		return optimistic.IsTemp(l.ID)
	})
}

func (t *Tracker) save(items []optimistic.Item[models.Lift]) error {
	sets := make([]models.Lift, len(items))

	for i, it := range items {
		sets[i] = it.Value
		sets[i].ID = it.ID
	}

	payload, err := encode(models.WorkoutPayload{Sets: sets})
	if err != nil {
		return err
	}

	return t.flow.State.UpdateSessionData(payload)
}

// Decode parses a workout payload. An empty or unreadable payload yields no
// sets.
func Decode(raw json.RawMessage) models.WorkoutPayload {
	var p models.WorkoutPayload

	if len(raw) == 0 {
		return p
	}

	err := json.Unmarshal(raw, &p)
	if err != nil {
		return models.WorkoutPayload{}
	}

	return p
}

func view(sess *models.ActiveSession) *Session {
	if sess == nil {
		return nil
	}

	return &Session{
		Metadata: sess.Metadata,
		Sets:     Decode(sess.Payload).Sets,
	}
}

func encode(p models.WorkoutPayload) (json.RawMessage, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	return json.RawMessage(b), nil
}
