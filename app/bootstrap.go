package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lifetrack/lifetrack/broadcast"
	"github.com/lifetrack/lifetrack/crosstab"
	"github.com/lifetrack/lifetrack/internal/config"
	"github.com/lifetrack/lifetrack/internal/hooks"
	"github.com/lifetrack/lifetrack/internal/lifecycle"
	"github.com/lifetrack/lifetrack/internal/models"
	"github.com/lifetrack/lifetrack/internal/notify"
	"github.com/lifetrack/lifetrack/internal/static"
	"github.com/lifetrack/lifetrack/persist"
	"github.com/lifetrack/lifetrack/reconcile"
	"github.com/lifetrack/lifetrack/remote"
	"github.com/lifetrack/lifetrack/session"
	"github.com/lifetrack/lifetrack/store"
	"github.com/lifetrack/lifetrack/study"
	"github.com/lifetrack/lifetrack/workout"
)

const appName = "lifetrack"

// env is everything a command needs, wired from one Config.
type env struct {
	cfg      *config.Config
	log      *slog.Logger
	base     store.Storage
	bc       broadcast.Broadcaster
	store    *persist.Store
	state    *session.State
	listener *crosstab.Listener
	notifier *notify.Notifier
	remote   *remote.SQLite
	engine   *reconcile.Engine
	workouts *workout.Tracker
	studies  *study.Tracker
	closers  []func() error
}

// open builds the environment. On failure, everything opened so far is
// closed again.
func open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*env, error) {
	e := &env{cfg: cfg, log: log}

	err := e.wire(ctx)
	if err != nil {
		_ = e.Close()
		return nil, err
	}

	return e, nil
}

func (e *env) wire(ctx context.Context) error {
	var err error

	cfg, log := e.cfg, e.log

	e.base, err = openStorage(cfg)
	if err != nil {
		return errOpenStorage.Wrap(err)
	}

	e.onClose(e.base.Close)

	e.bc, err = openBroadcaster(ctx, cfg, e.base, log)
	if err != nil {
		return errOpenBroadcast.Fmt(cfg.BroadcastMode()).Wrap(err)
	}

	e.onClose(e.bc.Close)

	quota := store.WithQuota(e.base, cfg.Storage.Quota)

	e.store, err = persist.New(broadcast.Notify(quota, e.bc), log)
	if err != nil {
		return err
	}

	e.state = session.New(
		e.store,
		session.WithLogger(log),
		session.WithValidator(session.Validator{MaxAge: cfg.Session.MaxAge}),
	)

	e.state.Load()

	e.notifier = notify.New(
		cfg.Notifications.Enabled,
		static.IconPath(appName),
		log,
	)

	e.listener = crosstab.Listen(
		e.state,
		e.bc,
		crosstab.WithLogger(log),
		crosstab.OnChange(e.notifier.Changed),
	)

	e.onClose(func() error {
		e.listener.Close()
		return nil
	})

	e.remote, err = remote.Open(cfg.System.RemotePath)
	if err != nil {
		return err
	}

	e.onClose(e.remote.Close)

	e.engine = reconcile.New(
		e.state,
		e.remote,
		reconcile.WithLogger(log),
		reconcile.WithDebounce(cfg.Reconcile.Debounce),
	)

	hook := hooks.Runner{Command: cfg.Hooks.OnEnd}

	e.workouts = workout.New(
		e.state,
		e.remote,
		workout.WithLogger(log),
		workout.WithEndHook(hook),
	)

	e.studies = study.New(
		e.state,
		e.remote,
		study.WithLogger(log),
		study.WithEndHook(hook),
	)

	return nil
}

func (e *env) onClose(fn func() error) {
	e.closers = append(e.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (e *env) Close() error {
	var errs []error

	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}

	e.closers = nil

	return errors.Join(errs...)
}

func openStorage(cfg *config.Config) (store.Storage, error) {
	switch cfg.Storage.Backend {
	case config.BackendBolt:
		return store.NewClient(cfg.System.BoltPath)
	case config.BackendMemory:
		return store.NewMemory(), nil
	default:
		return store.NewDir(cfg.System.StoragePath)
	}
}

func openBroadcaster(
	ctx context.Context,
	cfg *config.Config,
	base store.Storage,
	log *slog.Logger,
) (broadcast.Broadcaster, error) {
	switch cfg.BroadcastMode() {
	case config.ModeFSNotify:
		dir, ok := base.(*store.Dir)
		if !ok {
			return nil, errWatchNeedsDir.Fmt(cfg.Storage.Backend)
		}

		return broadcast.Watch(dir, log)
	case config.ModeWebsocket:
		return broadcast.Dial(ctx, cfg.Broadcast.RelayURL, "", log)
	default:
		return broadcast.NewBus().Endpoint(""), nil
	}
}

// tracker is the part of the workout and study trackers that does not
// depend on the kind.
type tracker interface {
	Sync(ctx context.Context) (lifecycle.SyncAction, error)
}

func (e *env) tracker(kind models.Kind) tracker {
	if kind == models.Workout {
		return e.workouts
	}

	return e.studies
}

// end finishes the running session of kind through its tracker, so that the
// remote record is closed too.
func (e *env) end(ctx context.Context, kind models.Kind) error {
	if kind == models.Workout {
		_, err := e.workouts.End(ctx)
		return err
	}

	_, err := e.studies.End(ctx, "")

	return err
}
