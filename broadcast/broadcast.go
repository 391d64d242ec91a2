// Package broadcast carries storage mutation notifications between session
// holders that share a local store but not a process or memory, the way
// browsers deliver storage events to other tabs of the same origin
package broadcast

import (
	"bytes"
	"sync"

	"github.com/google/uuid"

	"github.com/lifetrack/lifetrack/store"
)

// Event describes a change to one storage key made by another endpoint.
type Event struct {
	Key     string `json:"key"`
	Origin  string `json:"origin"`
	Value   []byte `json:"value,omitempty"`
	Present bool   `json:"present"`
}

// Handler receives events for a subscribed key.
type Handler func(Event)

// Broadcaster publishes storage changes and delivers changes made elsewhere.
// An endpoint never receives the events it published itself.
type Broadcaster interface {
	// Publish announces the new value of key. A nil value announces removal.
	Publish(key string, value []byte) error
	// Subscribe registers h for changes to key and returns a function that
	// cancels the subscription
	Subscribe(key string, h Handler) (cancel func())
	// Close stops delivery and releases resources
	Close() error
}

// NewOrigin returns a unique endpoint identifier.
func NewOrigin() string {
	return uuid.NewString()
}

// registry is the subscription table shared by every Broadcaster
// implementation in this package.
type registry struct {
	subs map[string]map[int]Handler
	next int
	mu   sync.RWMutex
}

func newRegistry() *registry {
	return &registry{subs: make(map[string]map[int]Handler)}
}

func (r *registry) add(key string, h Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.subs[key] == nil {
		r.subs[key] = make(map[int]Handler)
	}

	id := r.next
	r.next++
	r.subs[key][id] = h

	var once sync.Once

	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs[key], id)
			r.mu.Unlock()
		})
	}
}

func (r *registry) handlers(key string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hs := make([]Handler, 0, len(r.subs[key]))
	for _, h := range r.subs[key] {
		hs = append(hs, h)
	}

	return hs
}

func (r *registry) dispatch(ev Event) {
	for _, h := range r.handlers(ev.Key) {
		h(ev)
	}
}

func (r *registry) clear() {
	r.mu.Lock()
	r.subs = make(map[string]map[int]Handler)
	r.mu.Unlock()
}

func newEvent(origin, key string, value []byte) Event {
	ev := Event{Key: key, Origin: origin}
	if value != nil {
		ev.Value = bytes.Clone(value)
		ev.Present = true
	}

	return ev
}

// NotifyingStorage publishes every committed change of the wrapped storage.
type NotifyingStorage struct {
	store.Storage
	b Broadcaster
}

// Notify wraps s so that each applied batch is announced through b, one
// event per key in lexical key order.
func Notify(s store.Storage, b Broadcaster) *NotifyingStorage {
	return &NotifyingStorage{Storage: s, b: b}
}

func (n *NotifyingStorage) Apply(batch store.Batch) error {
	err := n.Storage.Apply(batch)
	if err != nil {
		return err
	}

	// The write has already succeeded, so a failed publish only delays other
	// endpoints until their next reconciliation.
	for _, k := range batch.SortedKeys() {
		_ = n.b.Publish(k, batch[k])
	}

	return nil
}
