package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBufferSize = 256
)

// RelayPath is the HTTP path on which a Relay accepts connections.
const RelayPath = "/ws"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// relays listen on loopback by default and carry no credentials
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// envelope is the wire format shared by Relay and its clients.
type envelope struct {
	Key     string `json:"key"`
	Origin  string `json:"origin"`
	Value   []byte `json:"value,omitempty"`
	Present bool   `json:"present"`
}

func (e envelope) event() Event {
	return Event(e)
}

// Relay forwards every event it receives to all other connected clients.
// It lets lifetrack processes on different hosts, or with private storage,
// follow each other.
type Relay struct {
	log     *slog.Logger
	clients map[*peer]bool
	mu      sync.RWMutex
}

func NewRelay(log *slog.Logger) *Relay {
	return &Relay{
		log:     log,
		clients: make(map[*peer]bool),
	}
}

// ClientCount returns the number of connected clients.
func (r *Relay) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("relay upgrade failed", slog.Any("error", err))
		return
	}

	p := &peer{
		relay: r,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
	}

	r.mu.Lock()
	r.clients[p] = true
	r.mu.Unlock()

	r.log.Debug("relay client connected", slog.Int("total", r.ClientCount()))

	go p.writePump()
	go p.readPump()
}

// ListenAndServe runs the relay on addr until ctx is cancelled.
func (r *Relay) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle(RelayPath, r)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: writeWait,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			writeWait,
		)
		defer cancel()

		r.closeAll()

		err := srv.Shutdown(shutdownCtx)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	}
}

func (r *Relay) forward(from *peer, message []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for p := range r.clients {
		if p == from {
			continue
		}

		select {
		case p.send <- message:
		default:
			// a client that cannot keep up is dropped; it will resync on
			// its next reconciliation
			close(p.send)
			delete(r.clients, p)
		}
	}
}

func (r *Relay) unregister(p *peer) {
	r.mu.Lock()
	if _, ok := r.clients[p]; ok {
		delete(r.clients, p)
		close(p.send)
	}
	r.mu.Unlock()

	r.log.Debug("relay client disconnected", slog.Int("total", r.ClientCount()))
}

func (r *Relay) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for p := range r.clients {
		close(p.send)
		delete(r.clients, p)
	}
}

type peer struct {
	relay *Relay
	conn  *websocket.Conn
	send  chan []byte
}

func (p *peer) readPump() {
	defer func() {
		p.relay.unregister(p)
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				p.relay.log.Warn("relay read error", slog.Any("error", err))
			}

			return
		}

		var env envelope

		err = json.Unmarshal(message, &env)
		if err != nil || env.Key == "" {
			p.relay.log.Warn("relay dropped malformed message")
			continue
		}

		p.relay.forward(p, message)
	}
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case message, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			err := p.conn.WriteMessage(websocket.TextMessage, message)
			if err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))

			err := p.conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				return
			}
		}
	}
}

// Client is a Broadcaster connected to a Relay.
type Client struct {
	conn   *websocket.Conn
	reg    *registry
	log    *slog.Logger
	origin string
	done   chan struct{}
	wg     sync.WaitGroup
	// gorilla connections support one concurrent writer
	writeMu sync.Mutex
	once    sync.Once
}

// Dial connects to the relay at url. Events published through the returned
// client carry origin, which is generated when empty.
func Dial(
	ctx context.Context,
	url, origin string,
	log *slog.Logger,
) (*Client, error) {
	if origin == "" {
		origin = NewOrigin()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c := &Client{
		conn:   conn,
		reg:    newRegistry(),
		log:    log,
		origin: origin,
		done:   make(chan struct{}),
	}

	c.wg.Add(2)

	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

func (c *Client) Origin() string {
	return c.origin
}

func (c *Client) Publish(key string, value []byte) error {
	ev := newEvent(c.origin, key, value)

	data, err := json.Marshal(envelope(ev))
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) Subscribe(key string, h Handler) func() {
	return c.reg.add(key, h)
}

func (c *Client) Close() error {
	var err error

	c.once.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		c.writeMu.Unlock()

		err = c.conn.Close()

		c.wg.Wait()
		c.reg.clear()
	})

	return err
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	// the relay pings too; answering resets our own deadline
	c.conn.SetPingHandler(func(data string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		c.writeMu.Lock()
		defer c.writeMu.Unlock()

		return c.conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(writeWait),
		)
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn("relay connection lost", slog.Any("error", err))
			}

			return
		}

		var env envelope

		err = json.Unmarshal(message, &env)
		if err != nil {
			c.log.Warn("relay sent malformed message", slog.Any("error", err))
			continue
		}

		if env.Origin == c.origin {
			continue
		}

		c.reg.dispatch(env.event())
	}
}

func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(
				websocket.PingMessage,
				nil,
				time.Now().Add(writeWait),
			)
			c.writeMu.Unlock()

			if err != nil {
				return
			}
		}
	}
}
