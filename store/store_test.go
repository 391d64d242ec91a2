package store_test

import (
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifetrack/lifetrack/store"
)

type backend struct {
	name string
	open func(t *testing.T) store.Storage
}

var backends = []backend{
	{
		name: "memory",
		open: func(t *testing.T) store.Storage {
			return store.NewMemory()
		},
	},
	{
		name: "dir",
		open: func(t *testing.T) store.Storage {
			d, err := store.NewDir(filepath.Join(t.TempDir(), "local"))
			require.NoError(t, err)

			return d
		},
	},
	{
		name: "bolt",
		open: func(t *testing.T) store.Storage {
			c, err := store.NewClient(filepath.Join(t.TempDir(), "local.db"))
			require.NoError(t, err)

			return c
		},
	},
}

func TestStorageBackends(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()

			v, err := s.Get("missing")
			require.NoError(t, err)
			assert.Nil(t, v)

			err = s.Apply(store.Batch{}.
				Put("a.meta", []byte(`{"kind":"study"}`)).
				Put("a.payload", []byte(`{}`)))
			require.NoError(t, err)

			v, err = s.Get("a.meta")
			require.NoError(t, err)
			assert.Equal(t, `{"kind":"study"}`, string(v))

			keys, err := s.Keys()
			require.NoError(t, err)
			slices.Sort(keys)
			assert.Equal(t, []string{"a.meta", "a.payload"}, keys)

			require.NoError(t, store.Remove(s, "a.meta"))
			require.NoError(t, store.Remove(s, "a.meta"))

			v, err = s.Get("a.meta")
			require.NoError(t, err)
			assert.Nil(t, v)

			require.NoError(t, store.Set(s, "a.payload", []byte(`{"x":1}`)))

			v, err = s.Get("a.payload")
			require.NoError(t, err)
			assert.Equal(t, `{"x":1}`, string(v))
		})
	}
}

func TestStorageRejectsEmptyKey(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)

			err := store.Set(s, "", []byte("x"))
			assert.Error(t, err)
		})
	}
}

func TestQuota(t *testing.T) {
	s := store.WithQuota(store.NewMemory(), 20)

	require.NoError(t, store.Set(s, "k", []byte("0123456789")))

	// overwriting a key only counts the difference
	require.NoError(t, store.Set(s, "k", []byte("0123456789abcdef")))

	err := store.Set(s, "other", []byte("0123456789"))
	require.ErrorIs(t, err, store.ErrQuotaExceeded)

	v, err := s.Get("other")
	require.NoError(t, err)
	assert.Nil(t, v, "rejected batch must not be applied")

	require.NoError(t, store.Remove(s, "k"))
	require.NoError(t, store.Set(s, "other", []byte("0123456789")))

	used, err := store.Usage(s)
	require.NoError(t, err)
	assert.Equal(t, len("other")+10, used)
}

func TestQuotaDisabled(t *testing.T) {
	m := store.NewMemory()

	assert.Same(t, m, store.WithQuota(m, 0))
}

func TestDirKeyFromPath(t *testing.T) {
	root := t.TempDir()

	d, err := store.NewDir(root)
	require.NoError(t, err)

	key, ok := d.KeyFromPath(filepath.Join(root, "lifetrack.session.meta"))
	assert.True(t, ok)
	assert.Equal(t, "lifetrack.session.meta", key)

	_, ok = d.KeyFromPath(filepath.Join(root, ".lifetrack.session.meta.tmp-123"))
	assert.False(t, ok)

	_, ok = d.KeyFromPath(filepath.Join(root, ".lock"))
	assert.False(t, ok)

	_, ok = d.KeyFromPath(filepath.Join(root, "nested", "key"))
	assert.False(t, ok)
}

func TestDirRejectsPathKeys(t *testing.T) {
	d, err := store.NewDir(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Set(d, "../escape", []byte("x")))
	assert.Error(t, store.Set(d, ".hidden", []byte("x")))
}

func TestBoltSharedBetweenClients(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")

	a, err := store.NewClient(path)
	require.NoError(t, err)

	b, err := store.NewClient(path)
	require.NoError(t, err)

	require.NoError(t, store.Set(a, "k", []byte("v")))

	v, err := b.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))
}
