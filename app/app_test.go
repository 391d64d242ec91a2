package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifetrack/lifetrack/broadcast"
	"github.com/lifetrack/lifetrack/internal/config"
	"github.com/lifetrack/lifetrack/internal/logging"
	"github.com/lifetrack/lifetrack/internal/models"
	"github.com/lifetrack/lifetrack/internal/pathutil"
	"github.com/lifetrack/lifetrack/reconcile"
	"github.com/lifetrack/lifetrack/report"
	"github.com/lifetrack/lifetrack/session"
)

func testConfig(t *testing.T, backend, mode string) *config.Config {
	t.Helper()

	dir := t.TempDir()

	return &config.Config{
		Session:   config.SessionConfig{MaxAge: 24 * time.Hour},
		Reconcile: config.ReconcileConfig{Debounce: 10 * time.Millisecond},
		Storage:   config.StorageConfig{Backend: backend, Quota: config.DefaultQuota},
		Broadcast: config.BroadcastConfig{Mode: mode},
		Log:       config.LogConfig{Level: "info"},
		System: config.SystemConfig{
			StoragePath: filepath.Join(dir, "storage"),
			BoltPath:    filepath.Join(dir, "storage.db"),
			RemotePath:  filepath.Join(dir, "remote.db"),
		},
	}
}

func openEnv(t *testing.T, cfg *config.Config) *env {
	t.Helper()

	e, err := open(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)

	t.Cleanup(func() { _ = e.Close() })

	return e
}

func TestOpenPicksBroadcaster(t *testing.T) {
	e := openEnv(t, testConfig(t, config.BackendFile, config.ModeAuto))
	assert.IsType(t, &broadcast.Watcher{}, e.bc)

	e = openEnv(t, testConfig(t, config.BackendBolt, config.ModeAuto))
	assert.IsType(t, &broadcast.Endpoint{}, e.bc)
}

func TestOpenRejectsWatchWithoutDir(t *testing.T) {
	_, err := open(
		context.Background(),
		testConfig(t, config.BackendMemory, config.ModeFSNotify),
		logging.Discard(),
	)
	require.ErrorIs(t, err, errOpenBroadcast)
	assert.ErrorIs(t, err, errWatchNeedsDir)
}

func TestSessionSurvivesRestart(t *testing.T) {
	cfg := testConfig(t, config.BackendBolt, config.ModeBus)
	ctx := context.Background()

	first, err := open(ctx, cfg, logging.Discard())
	require.NoError(t, err)

	sess, err := first.workouts.Start(ctx, "push", time.Time{})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := openEnv(t, cfg)

	cur := second.workouts.Current()
	require.NotNil(t, cur)
	assert.Equal(t, sess.CorrelationID, cur.CorrelationID)
	assert.Equal(t, "push", cur.Label)
}

func TestMountRepairsStaleLocal(t *testing.T) {
	e := openEnv(t, testConfig(t, config.BackendMemory, config.ModeBus))
	ctx := context.Background()

	require.NoError(t, e.state.Start(models.Workout, session.StartOptions{
		CorrelationID: "gone",
	}))

	require.NoError(t, e.mount(ctx, models.Workout))

	assert.Nil(t, e.state.Current())
	assert.Nil(t, e.store.LoadMetadata())
}

func TestMountAdoptsRemote(t *testing.T) {
	e := openEnv(t, testConfig(t, config.BackendMemory, config.ModeBus))
	ctx := context.Background()

	id, err := e.remote.StartStudySession(
		ctx,
		"maths",
		time.Now().Add(-time.Hour),
	)
	require.NoError(t, err)

	require.NoError(t, e.mount(ctx, models.Study))

	cur := e.studies.Current()
	require.NotNil(t, cur)
	assert.Equal(t, id, cur.CorrelationID)
	assert.Equal(t, "maths", cur.Bucket())
}

func TestMountExpiredSession(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		yes      string
		survives bool
	}{
		{yes: config.YesContinue, survives: true},
		{yes: config.YesEnd, survives: false},
	} {
		t.Run(tc.yes, func(t *testing.T) {
			cfg := testConfig(t, config.BackendMemory, config.ModeBus)
			cfg.CLI.Yes = tc.yes

			e := openEnv(t, cfg)

			_, err := e.workouts.Start(ctx, "legs", time.Now().Add(-30*time.Hour))
			require.NoError(t, err)

			require.NoError(t, e.mount(ctx, models.Workout))

			assert.Equal(t, reconcile.Valid, e.engine.Status())

			rec, err := e.remote.GetActiveWorkout(ctx)
			require.NoError(t, err)

			if tc.survives {
				assert.NotNil(t, e.workouts.Current())
				assert.NotNil(t, rec)

				return
			}

			assert.Nil(t, e.workouts.Current())
			assert.Nil(t, rec)
		})
	}
}

func TestExpiredSessionSurvivesRestart(t *testing.T) {
	cfg := testConfig(t, config.BackendBolt, config.ModeBus)
	ctx := context.Background()

	first, err := open(ctx, cfg, logging.Discard())
	require.NoError(t, err)

	sess, err := first.studies.Start(ctx, "history", time.Now().Add(-30*time.Hour))
	require.NoError(t, err)

	_, err = first.studies.Note(ctx, "chapter 3 done")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	cfg.CLI.Yes = config.YesContinue
	second := openEnv(t, cfg)

	require.NotNil(t, second.store.LoadMetadata(), "opening keeps the stored session")

	out, err := second.engine.Check(ctx, models.Study)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Expired, out.Diagnosis)
	assert.True(t, out.NeedsConfirmation)
	require.NoError(t, second.engine.Resolve(reconcile.Continue))

	require.NoError(t, second.mount(ctx, models.Study))

	cur := second.studies.Current()
	require.NotNil(t, cur)
	assert.Equal(t, sess.CorrelationID, cur.CorrelationID)
	assert.Equal(t, "chapter 3 done", cur.Notes)
}

func TestOpenDropsFutureSession(t *testing.T) {
	cfg := testConfig(t, config.BackendBolt, config.ModeBus)
	ctx := context.Background()

	first, err := open(ctx, cfg, logging.Discard())
	require.NoError(t, err)

	require.NoError(t, first.state.Start(models.Workout, session.StartOptions{
		StartedAt:     time.Now().Add(time.Hour),
		CorrelationID: "ahead",
	}))
	require.NoError(t, first.Close())

	second := openEnv(t, cfg)

	assert.Nil(t, second.state.Current())
	assert.Nil(t, second.store.LoadMetadata())
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("stale local session is cleared", func(t *testing.T) {
		e := openEnv(t, testConfig(t, config.BackendMemory, config.ModeBus))

		require.NoError(t, e.state.Start(models.Workout, session.StartOptions{
			CorrelationID: "gone",
		}))

		require.NoError(t, e.refresh(ctx, true))
		assert.Nil(t, e.state.Current())
	})

	t.Run("remote session is picked up", func(t *testing.T) {
		e := openEnv(t, testConfig(t, config.BackendMemory, config.ModeBus))

		id, err := e.remote.StartWorkout(ctx, "pull", time.Now().Add(-time.Hour))
		require.NoError(t, err)

		require.NoError(t, e.refresh(ctx, true))

		cur := e.state.Current()
		require.NotNil(t, cur)
		assert.Equal(t, id, cur.CorrelationID)
	})

	t.Run("expired session waits for a decision", func(t *testing.T) {
		e := openEnv(t, testConfig(t, config.BackendMemory, config.ModeBus))

		sess, err := e.workouts.Start(ctx, "legs", time.Now().Add(-30*time.Hour))
		require.NoError(t, err)

		require.NoError(t, e.refresh(ctx, true))

		cur := e.state.Current()
		require.NotNil(t, cur)
		assert.Equal(t, sess.CorrelationID, cur.CorrelationID)
		assert.Equal(t, reconcile.Expired, e.engine.Status())
	})
}

func TestRun(t *testing.T) {
	configHome, dataHome := t.TempDir(), t.TempDir()

	t.Cleanup(xdg.Reload)
	t.Setenv("XDG_CONFIG_HOME", configHome)
	t.Setenv("XDG_DATA_HOME", dataHome)
	t.Setenv(pathutil.EnvVar, "test")
	t.Setenv(envNoColor, "1")
	xdg.Reload()

	// an existing config file skips the first-run prompt
	configPath := filepath.Join(configHome, "lifetrack", "config_test.yml")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o755))
	require.NoError(t, os.WriteFile(
		configPath,
		[]byte("storage:\n  backend: bolt\nnotifications:\n  enabled: false\n"),
		0o600,
	))

	var out bytes.Buffer

	stdout := config.Stdout
	config.Stdout = &out

	t.Cleanup(func() { config.Stdout = stdout })

	run := func(args ...string) {
		t.Helper()

		err := Get().Run(append([]string{"lifetrack"}, args...))
		require.NoError(t, err)
	}

	run("workout", "start", "--label", "push", "--since", "5 minutes ago")
	run("workout", "log", "--exercise", "bench", "--reps", "5", "--weight", "80")

	out.Reset()
	run("status", "--json")

	var view report.StatusView

	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	require.NotNil(t, view.Session)
	assert.Equal(t, models.Workout, view.Session.Kind)
	assert.Equal(t, "push", view.Session.Label)
	assert.NotEmpty(t, view.Session.CorrelationID)
	assert.GreaterOrEqual(t, view.DurationSeconds, int64(4*60))
	assert.Contains(t, string(view.Session.Payload), `"bench"`)

	run("workout", "end")

	out.Reset()
	run("status", "--json")

	view = report.StatusView{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	assert.Nil(t, view.Session)

	err := Get().Run([]string{"lifetrack", "reconcile", "--kind", "nap"})
	require.ErrorIs(t, err, errUnknownKind)
}
