package persist_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifetrack/lifetrack/internal/models"
	"github.com/lifetrack/lifetrack/persist"
	"github.com/lifetrack/lifetrack/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newStore(t *testing.T, s store.Storage) *persist.Store {
	t.Helper()

	p, err := persist.New(s, discard)
	require.NoError(t, err)

	return p
}

func TestMetadataRoundTrip(t *testing.T) {
	start := time.Date(2026, 10, 18, 7, 30, 15, 250, time.UTC)

	cases := []models.Metadata{
		{Kind: models.Workout, StartedAt: start},
		{Kind: models.Workout, StartedAt: start, CorrelationID: "w1", Label: "push"},
		{Kind: models.Study, StartedAt: start, CorrelationID: "s1", Label: "bucket-7"},
		{
			Kind:      models.Study,
			StartedAt: start.In(time.FixedZone("UTC+2", 2*60*60)),
		},
	}

	for _, want := range cases {
		p := newStore(t, store.NewMemory())

		require.NoError(t, p.SaveMetadata(want))

		got := p.LoadMetadata()
		require.NotNil(t, got)

		if diff := cmp.Diff(want, *got); diff != "" {
			t.Errorf("LoadMetadata() mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestPayloadsAreIndependent(t *testing.T) {
	p := newStore(t, store.NewMemory())

	meta := models.Metadata{Kind: models.Study, StartedAt: time.Now().UTC()}

	require.NoError(t, p.SaveMetadata(meta))
	require.NoError(t, p.SavePayload(models.Study, json.RawMessage(`{"elapsed_seconds":5}`)))
	require.NoError(t, p.SavePayload(models.Workout, json.RawMessage(`{"sets":[]}`)))

	assert.JSONEq(t, `{"elapsed_seconds":5}`, string(p.LoadPayload(models.Study)))
	assert.JSONEq(t, `{"sets":[]}`, string(p.LoadPayload(models.Workout)))

	require.NoError(t, p.ClearPayload(models.Workout))
	assert.Nil(t, p.LoadPayload(models.Workout))
	assert.NotNil(t, p.LoadMetadata(), "clearing a payload keeps metadata")

	require.NoError(t, p.ClearMetadata())
	assert.Nil(t, p.LoadMetadata())
	assert.NotNil(t, p.LoadPayload(models.Study), "clearing metadata keeps payloads")
}

func TestClearAllIsIdempotent(t *testing.T) {
	m := store.NewMemory()
	p := newStore(t, m)

	require.NoError(t, p.Save(
		models.Metadata{Kind: models.Workout, StartedAt: time.Now().UTC()},
		json.RawMessage(`{"sets":[]}`),
	))
	require.NoError(t, p.SavePayload(models.Study, json.RawMessage(`{}`)))

	require.NoError(t, p.ClearAll())

	once, err := m.Keys()
	require.NoError(t, err)

	require.NoError(t, p.ClearAll())

	twice, err := m.Keys()
	require.NoError(t, err)

	assert.Empty(t, once)
	assert.Equal(t, once, twice)
	assert.Nil(t, p.LoadMetadata())
}

func TestCorruptedValuesAreWiped(t *testing.T) {
	cases := []struct {
		name string
		key  string
		raw  string
		load func(p *persist.Store) bool
	}{
		{
			name: "malformed metadata",
			key:  persist.MetadataKey,
			raw:  `{"kind":"study",`,
			load: func(p *persist.Store) bool { return p.LoadMetadata() == nil },
		},
		{
			name: "unknown kind",
			key:  persist.MetadataKey,
			raw:  `{"kind":"yoga","started_at":"2026-10-18T07:00:00Z"}`,
			load: func(p *persist.Store) bool { return p.LoadMetadata() == nil },
		},
		{
			name: "missing start time",
			key:  persist.MetadataKey,
			raw:  `{"kind":"study"}`,
			load: func(p *persist.Store) bool { return p.LoadMetadata() == nil },
		},
		{
			name: "malformed start time",
			key:  persist.MetadataKey,
			raw:  `{"kind":"study","started_at":"yesterday"}`,
			load: func(p *persist.Store) bool { return p.LoadMetadata() == nil },
		},
		{
			name: "malformed payload",
			key:  persist.PayloadKey(models.Workout),
			raw:  `{"sets":[`,
			load: func(p *persist.Store) bool {
				return p.LoadPayload(models.Workout) == nil
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := store.NewMemory()
			require.NoError(t, store.Set(m, tc.key, []byte(tc.raw)))

			p := newStore(t, m)

			assert.True(t, tc.load(p))

			v, err := m.Get(tc.key)
			require.NoError(t, err)
			assert.Nil(t, v, "corrupted key must be removed")
		})
	}
}

func TestQuotaExceeded(t *testing.T) {
	m := store.NewMemory()
	p := newStore(t, store.WithQuota(m, 128))

	meta := models.Metadata{Kind: models.Workout, StartedAt: time.Now().UTC()}
	require.NoError(t, p.SaveMetadata(meta))

	big := json.RawMessage(`{"sets":[],"pad":"` + strings.Repeat("x", 256) + `"}`)

	err := p.SavePayload(models.Workout, big)
	require.ErrorIs(t, err, store.ErrQuotaExceeded)

	assert.Nil(t, p.LoadPayload(models.Workout))

	err = p.Save(meta, big)
	require.ErrorIs(t, err, store.ErrQuotaExceeded)

	assert.NotNil(t, p.LoadMetadata(), "a rejected save leaves the old value")
}

type failingStorage struct {
	store.Storage
}

var errDisk = errors.New("disk on fire")

func (failingStorage) Apply(store.Batch) error {
	return errDisk
}

func TestWriteFailureIsReturned(t *testing.T) {
	p := newStore(t, failingStorage{store.NewMemory()})

	err := p.SaveMetadata(models.Metadata{Kind: models.Study, StartedAt: time.Now()})
	require.ErrorIs(t, err, errDisk)
	assert.NotErrorIs(t, err, store.ErrQuotaExceeded)
}

func TestRejectsUnknownKind(t *testing.T) {
	p := newStore(t, store.NewMemory())

	assert.Error(t, p.SaveMetadata(models.Metadata{Kind: "yoga"}))
	assert.Error(t, p.SavePayload("yoga", json.RawMessage(`{}`)))
	assert.Nil(t, p.LoadPayload("yoga"))
}

func TestSnapshotRestore(t *testing.T) {
	m := store.NewMemory()
	p := newStore(t, m)

	require.NoError(t, p.Save(
		models.Metadata{Kind: models.Study, StartedAt: time.Now().UTC(), CorrelationID: "s1"},
		json.RawMessage(`{"elapsed_seconds":60}`),
	))

	snap := p.Snapshot()
	assert.Nil(t, snap[persist.PayloadKey(models.Workout)])

	require.NoError(t, p.ClearAll())
	require.NoError(t, p.SavePayload(models.Workout, json.RawMessage(`{"sets":[]}`)))

	require.NoError(t, p.Restore(snap))

	assert.True(t, snap.Equal(p.Snapshot()))
	assert.Nil(t, p.LoadPayload(models.Workout), "keys absent from the snapshot are removed")
	assert.Equal(t, "s1", p.LoadMetadata().CorrelationID)
}

func TestOwns(t *testing.T) {
	assert.True(t, persist.Owns(persist.MetadataKey))
	assert.True(t, persist.Owns("lifetrack.session.payload.study"))
	assert.True(t, persist.Owns("lifetrack.session.payload.workout"))
	assert.False(t, persist.Owns("lifetrack.session.payload.yoga"))
}
