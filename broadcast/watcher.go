package broadcast

import (
	"bytes"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/lifetrack/lifetrack/store"
)

// fsOrigin marks events observed on the file system, whose writer is unknown.
const fsOrigin = "fs"

const maxPendingOwn = 16

type keyState struct {
	value   []byte
	present bool
}

func (k keyState) equal(o keyState) bool {
	return k.present == o.present && bytes.Equal(k.value, o.value)
}

// Watcher turns file system notifications on a store.Dir into events, so
// that separate lifetrack processes sharing the directory see each other's
// writes. Writes announced through Publish by this process are recognised
// when they come back from the file system and are not delivered.
type Watcher struct {
	dir  *store.Dir
	fsw  *fsnotify.Watcher
	reg  *registry
	log  *slog.Logger
	own  map[string][]keyState
	last map[string]keyState
	done chan struct{}
	wg   sync.WaitGroup
	mu   sync.Mutex
}

// Watch starts watching the storage directory.
func Watch(dir *store.Dir, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	err = fsw.Add(dir.Root())
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		dir:  dir,
		fsw:  fsw,
		reg:  newRegistry(),
		log:  log,
		own:  make(map[string][]keyState),
		last: make(map[string]keyState),
		done: make(chan struct{}),
	}

	w.wg.Add(1)

	go w.watchLoop()

	return w, nil
}

// Publish records a write made by this process so that its echo from the
// file system is ignored.
func (w *Watcher) Publish(key string, value []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := keyState{present: value != nil, value: bytes.Clone(value)}

	// echoes can be coalesced by the kernel, so only a bounded number of
	// pending own writes is remembered
	own := append(w.own[key], st)
	if len(own) > maxPendingOwn {
		own = own[len(own)-maxPendingOwn:]
	}

	w.own[key] = own
	w.last[key] = st

	return nil
}

func (w *Watcher) Subscribe(key string, h Handler) func() {
	return w.reg.add(key, h)
}

func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}

	close(w.done)

	err := w.fsw.Close()

	w.wg.Wait()
	w.reg.clear()

	return err
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			w.handleFSEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

			w.log.Warn("storage watcher error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	key, ok := w.dir.KeyFromPath(event.Name)
	if !ok {
		return
	}

	if !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) &&
		!event.Has(fsnotify.Rename) {
		return
	}

	// the file content is the source of truth; the op only says that
	// something changed
	value, err := w.dir.Get(key)
	if err != nil {
		w.log.Warn(
			"reading changed storage key",
			slog.String("key", key),
			slog.Any("error", err),
		)

		return
	}

	st := keyState{present: value != nil, value: value}

	if !w.observe(key, st) {
		return
	}

	w.reg.dispatch(newEvent(fsOrigin, key, value))
}

// observe reports whether st is a change made by another process that has
// not been delivered yet.
func (w *Watcher) observe(key string, st keyState) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, own := range w.own[key] {
		if own.equal(st) {
			w.own[key] = w.own[key][i+1:]
			return false
		}
	}

	if last, seen := w.last[key]; seen && last.equal(st) {
		return false
	}

	w.last[key] = st

	return true
}
