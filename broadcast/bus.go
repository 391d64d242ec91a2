package broadcast

import "sync"

// Bus is a process-local event bus. Each endpoint behaves like one browser
// tab: it receives every event published by the other endpoints, in publish
// order, on its own goroutine.
type Bus struct {
	endpoints map[string]*Endpoint
	pending   sync.WaitGroup
	mu        sync.RWMutex
}

func NewBus() *Bus {
	return &Bus{endpoints: make(map[string]*Endpoint)}
}

// Endpoint returns a new Broadcaster attached to the bus. An empty origin is
// replaced by a generated one.
func (b *Bus) Endpoint(origin string) *Endpoint {
	if origin == "" {
		origin = NewOrigin()
	}

	e := &Endpoint{
		bus:    b,
		origin: origin,
		reg:    newRegistry(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	b.endpoints[origin] = e
	b.mu.Unlock()

	go e.run()

	return e
}

// Settle blocks until every event published so far has been handled.
func (b *Bus) Settle() {
	b.pending.Wait()
}

func (b *Bus) deliver(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for origin, e := range b.endpoints {
		if origin != ev.Origin {
			b.pending.Add(1)
			e.enqueue(ev)
		}
	}
}

func (b *Bus) detach(origin string) {
	b.mu.Lock()
	delete(b.endpoints, origin)
	b.mu.Unlock()
}

// Endpoint is one participant on a Bus.
type Endpoint struct {
	bus    *Bus
	reg    *registry
	wake   chan struct{}
	done   chan struct{}
	origin string
	queue  []Event
	mu     sync.Mutex
	closed bool
}

// Origin returns the identifier attached to events published here.
func (e *Endpoint) Origin() string {
	return e.origin
}

// Publish queues the change for every other endpoint.
func (e *Endpoint) Publish(key string, value []byte) error {
	e.bus.deliver(newEvent(e.origin, key, value))

	return nil
}

func (e *Endpoint) Subscribe(key string, h Handler) func() {
	return e.reg.add(key, h)
}

func (e *Endpoint) Close() error {
	e.bus.detach(e.origin)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}

	e.closed = true
	dropped := len(e.queue)
	e.queue = nil
	e.mu.Unlock()

	for range dropped {
		e.bus.pending.Done()
	}

	close(e.done)
	e.reg.clear()

	return nil
}

func (e *Endpoint) enqueue(ev Event) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.bus.pending.Done()

		return
	}

	e.queue = append(e.queue, ev)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Endpoint) next() (Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 || e.closed {
		return Event{}, false
	}

	ev := e.queue[0]
	e.queue = e.queue[1:]

	return ev, true
}

func (e *Endpoint) run() {
	for {
		select {
		case <-e.done:
			return
		case <-e.wake:
		}

		for {
			ev, ok := e.next()
			if !ok {
				break
			}

			e.reg.dispatch(ev)
			e.bus.pending.Done()
		}
	}
}
