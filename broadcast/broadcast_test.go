package broadcast_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifetrack/lifetrack/broadcast"
	"github.com/lifetrack/lifetrack/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type recorder struct {
	events []broadcast.Event
	mu     sync.Mutex
}

func (r *recorder) handle(ev broadcast.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
}

func (r *recorder) got() []broadcast.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]broadcast.Event(nil), r.events...)
}

func (r *recorder) len() int {
	return len(r.got())
}

func TestBusDeliversToOtherEndpoints(t *testing.T) {
	bus := broadcast.NewBus()

	a := bus.Endpoint("a")
	b := bus.Endpoint("b")
	c := bus.Endpoint("c")

	defer a.Close()
	defer b.Close()
	defer c.Close()

	var ra, rb, rc recorder

	a.Subscribe("k", ra.handle)
	b.Subscribe("k", rb.handle)
	c.Subscribe("k", rc.handle)

	require.NoError(t, a.Publish("k", []byte("1")))
	require.NoError(t, a.Publish("k", nil))
	require.NoError(t, a.Publish("other", []byte("x")))

	bus.Settle()

	assert.Empty(t, ra.got(), "publisher must not see its own events")

	want := []broadcast.Event{
		{Key: "k", Origin: "a", Value: []byte("1"), Present: true},
		{Key: "k", Origin: "a"},
	}

	assert.Equal(t, want, rb.got())
	assert.Equal(t, want, rc.got())
}

func TestBusCancelAndClose(t *testing.T) {
	bus := broadcast.NewBus()

	a := bus.Endpoint("")
	b := bus.Endpoint("")

	assert.NotEmpty(t, a.Origin())
	assert.NotEqual(t, a.Origin(), b.Origin())

	var rb recorder

	cancel := b.Subscribe("k", rb.handle)

	require.NoError(t, a.Publish("k", []byte("1")))
	bus.Settle()

	cancel()
	cancel()

	require.NoError(t, a.Publish("k", []byte("2")))
	bus.Settle()

	assert.Equal(t, 1, rb.len())

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	// publishing to a closed endpoint must not block Settle
	require.NoError(t, a.Publish("k", []byte("3")))
	bus.Settle()
}

func TestNotifyingStorage(t *testing.T) {
	bus := broadcast.NewBus()

	a := bus.Endpoint("a")
	b := bus.Endpoint("b")

	defer a.Close()
	defer b.Close()

	var meta, payload recorder

	b.Subscribe("meta", meta.handle)
	b.Subscribe("payload", payload.handle)

	s := broadcast.Notify(store.WithQuota(store.NewMemory(), 16), a)

	err := s.Apply(store.Batch{}.
		Put("meta", []byte("m")).
		Put("payload", []byte("p")))
	require.NoError(t, err)

	// rejected writes are not announced
	err = store.Set(s, "payload", []byte(strings.Repeat("x", 32)))
	require.ErrorIs(t, err, store.ErrQuotaExceeded)

	require.NoError(t, store.Remove(s, "meta"))

	bus.Settle()

	assert.Equal(t, []broadcast.Event{
		{Key: "meta", Origin: "a", Value: []byte("m"), Present: true},
		{Key: "meta", Origin: "a"},
	}, meta.got())

	assert.Equal(t, []broadcast.Event{
		{Key: "payload", Origin: "a", Value: []byte("p"), Present: true},
	}, payload.got())
}

func TestWatcherSeesOtherProcesses(t *testing.T) {
	root := t.TempDir()

	mine, err := store.NewDir(root)
	require.NoError(t, err)

	theirs, err := store.NewDir(root)
	require.NoError(t, err)

	w, err := broadcast.Watch(mine, discard)
	require.NoError(t, err)

	defer w.Close()

	var r recorder

	w.Subscribe("k", r.handle)

	require.NoError(t, store.Set(theirs, "k", []byte("v1")))

	assert.Eventually(t, func() bool {
		return r.len() > 0
	}, 2*time.Second, 10*time.Millisecond)

	ev := r.got()[0]
	assert.Equal(t, "k", ev.Key)
	assert.Equal(t, "v1", string(ev.Value))
	assert.True(t, ev.Present)

	require.NoError(t, store.Remove(theirs, "k"))

	assert.Eventually(t, func() bool {
		evs := r.got()
		return !evs[len(evs)-1].Present
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherIgnoresOwnWrites(t *testing.T) {
	d, err := store.NewDir(t.TempDir())
	require.NoError(t, err)

	w, err := broadcast.Watch(d, discard)
	require.NoError(t, err)

	defer w.Close()

	var r recorder

	w.Subscribe("k", r.handle)

	s := broadcast.Notify(d, w)

	require.NoError(t, store.Set(s, "k", []byte("mine")))

	assert.Never(t, func() bool {
		return r.len() > 0
	}, 300*time.Millisecond, 10*time.Millisecond)
}

func TestRelay(t *testing.T) {
	relay := broadcast.NewRelay(discard)

	srv := httptest.NewServer(relay)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + broadcast.RelayPath
	ctx := context.Background()

	a, err := broadcast.Dial(ctx, url, "a", discard)
	require.NoError(t, err)

	defer a.Close()

	b, err := broadcast.Dial(ctx, url, "b", discard)
	require.NoError(t, err)

	defer b.Close()

	assert.Eventually(t, func() bool {
		return relay.ClientCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	var ra, rb recorder

	a.Subscribe("k", ra.handle)
	b.Subscribe("k", rb.handle)

	require.NoError(t, a.Publish("k", []byte(`{"kind":"study"}`)))
	require.NoError(t, a.Publish("k", nil))

	assert.Eventually(t, func() bool {
		return rb.len() == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []broadcast.Event{
		{Key: "k", Origin: "a", Value: []byte(`{"kind":"study"}`), Present: true},
		{Key: "k", Origin: "a"},
	}, rb.got())

	assert.Empty(t, ra.got())

	require.NoError(t, b.Close())

	assert.Eventually(t, func() bool {
		return relay.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
