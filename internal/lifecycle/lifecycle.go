// Package lifecycle holds the start and end sequences shared by the workout
// and study trackers. Each sequence changes the local session and the remote
// record together and puts the local session back when the remote call
// fails.
package lifecycle

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/lifetrack/lifetrack/internal/hooks"
	"github.com/lifetrack/lifetrack/internal/models"
	"github.com/lifetrack/lifetrack/internal/optimistic"
	"github.com/lifetrack/lifetrack/session"
)

// Flow runs session sequences for one kind.
type Flow struct {
	State *session.State
	Log   *slog.Logger
	Hook  hooks.Runner
	Kind  models.Kind
}

// Active returns the running session of the flow's kind. It fails when no
// session is running or the local slot holds another kind.
func (f *Flow) Active() (*models.ActiveSession, error) {
	cur := f.State.Current()
	if cur == nil || cur.Kind != f.Kind {
		return nil, ErrNotRunning.Fmt(f.Kind)
	}

	return cur, nil
}

// Start starts a local session and then creates the remote record with
// create. The id of the record is attached to the local session. If create
// fails, the local state from before the call is restored. If only attaching
// the id fails, the unlinked local session is kept and Sync links it later.
func (f *Flow) Start(
	ctx context.Context,
	opts session.StartOptions,
	create func(ctx context.Context, opts session.StartOptions) (string, error),
) (*models.ActiveSession, error) {
	if cur := f.State.Current(); cur != nil {
		return nil, ErrAlreadyRunning.Fmt(cur.Kind)
	}

	if opts.StartedAt.IsZero() {
		opts.StartedAt = f.State.Now()
	}

	opts.StartedAt = opts.StartedAt.UTC()

	var id string

	err := optimistic.Run(ctx, optimistic.Tx[session.Backup]{
		Snapshot: f.State.CreateBackup,
		Apply: func() error {
			return f.State.Start(f.Kind, opts)
		},
		Commit: func(ctx context.Context) error {
			var err error

			id, err = create(ctx, opts)

			return err
		},
		Settle: func() error {
			return f.State.SetCorrelationID(id)
		},
		Restore: f.State.RestoreFromBackup,
	})
	if err != nil {
		return nil, err
	}

	sess := f.State.Current()

	f.Log.Info(
		"session started",
		slog.String("kind", f.Kind.String()),
		slog.String("id", sess.CorrelationID),
	)

	return sess, nil
}

// End clears the local session and then ends the remote record with finish.
// If finish fails, the session is restored locally and the error returned.
// On success the end hook runs; its failure is only logged.
func (f *Flow) End(
	ctx context.Context,
	finish func(ctx context.Context, sess *models.ActiveSession) error,
) (*models.ActiveSession, error) {
	sess, err := f.Active()
	if err != nil {
		return nil, err
	}

	// the remote create never resolved, so there is nothing to end there
	if sess.CorrelationID == "" {
		return sess, f.State.End()
	}

	err = optimistic.Run(ctx, optimistic.Tx[session.Backup]{
		Snapshot: f.State.CreateBackup,
		Apply:    f.State.ClearImmediate,
		Commit: func(ctx context.Context) error {
			return finish(ctx, sess)
		},
		Restore: f.State.RestoreFromBackup,
	})
	if err != nil {
		return nil, err
	}

	ev := hooks.Event{
		Kind:      sess.Kind,
		ID:        sess.CorrelationID,
		Label:     sess.Label,
		StartedAt: sess.StartedAt,
		EndedAt:   f.State.Now(),
	}

	f.Log.Info(
		"session ended",
		slog.String("kind", f.Kind.String()),
		slog.String("id", sess.CorrelationID),
	)

	herr := f.Hook.Run(ctx, ev)
	if herr != nil {
		f.Log.Warn("running the end hook", slog.Any("error", herr))
	}

	return sess, nil
}

// Adopt makes the remote record the local session, with payload built by
// the tracker. It is used when reconciliation found a remote record but no
// local session.
func (f *Flow) Adopt(rec *models.RemoteRecord, payload json.RawMessage) error {
	err := f.State.Start(f.Kind, session.StartOptions{
		StartedAt:     rec.StartedAt,
		CorrelationID: rec.ID,
		Label:         rec.Label,
		Payload:       payload,
	})
	if err != nil {
		return err
	}

	f.Log.Info(
		"restored session from the remote record",
		slog.String("kind", f.Kind.String()),
		slog.String("id", rec.ID),
	)

	return nil
}

// SyncAction reports what Sync did.
type SyncAction int

const (
	// Kept means the local session already matched the remote record
	Kept SyncAction = iota
	// Adopted means the remote record was restored locally
	Adopted
	// Idle means neither side has a running session
	Idle
	// Occupied means the local slot holds a session of another kind, so
	// the remote record could not be restored
	Occupied
)

// NeedsAdoption reports whether rec should replace the local session.
func (f *Flow) NeedsAdoption(rec *models.RemoteRecord) SyncAction {
	cur := f.State.Current()

	switch {
	case rec == nil:
		if cur != nil && cur.Kind == f.Kind {
			return Kept
		}

		return Idle
	case cur == nil:
		return Adopted
	case cur.Kind != f.Kind:
		return Occupied
	case cur.CorrelationID == rec.ID:
		return Kept
	default:
		return Adopted
	}
}

func (a SyncAction) String() string {
	switch a {
	case Kept:
		return "kept"
	case Adopted:
		return "adopted"
	case Idle:
		return "idle"
	case Occupied:
		return "occupied"
	default:
		return "unknown"
	}
}
