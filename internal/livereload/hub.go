// Package livereload pushes rebuilt userscript code to open browser tabs
// over WebSocket and provides a headless client that speaks the same
// protocol.
package livereload

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/conneroisu/scriptsmith/internal/logging"
)

const (
	sendBufferSize = 16
	pingInterval   = 54 * time.Second
	writeTimeout   = 10 * time.Second
)

// Hub tracks connected clients and broadcasts reload payloads to them.
//
// Invariants:
//   - clients is only mutated under mu, by the connecting goroutine on
//     connect and by the same goroutine on disconnect
//   - a client's send channel is never closed, so Broadcast cannot panic
//   - after Shutdown no new client is accepted
type Hub struct {
	clients map[uuid.UUID]*client
	mu      sync.RWMutex
	closed  bool

	logger logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

type client struct {
	id          uuid.UUID
	conn        *websocket.Conn
	send        chan []byte
	open        atomic.Bool
	remoteAddr  string
	connectedAt time.Time
}

// NewHub creates a hub with no clients.
func NewHub(logger logging.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients: make(map[uuid.UUID]*client),
		logger:  logger.WithComponent("livereload"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ServeHTTP lets the hub be mounted directly as the live-reload server's handler.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.HandleWebSocket(w, r)
}

// HandleWebSocket upgrades the request and serves the client until it
// disconnects. Origins are not checked: the channel only ever carries code
// the developer is building locally.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.acquire() {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	defer h.wg.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "websocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	c := &client{
		id:          uuid.New(),
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		remoteAddr:  r.RemoteAddr,
		connectedAt: time.Now(),
	}
	c.open.Store(true)

	if !h.registerClient(c) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	h.serveClient(c)
}

// acquire reserves a slot in wg unless the hub is shut down.
func (h *Hub) acquire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.wg.Add(1)
	return true
}

// registerClient adds c unless the hub is shut down. It runs before the
// client's pumps start, so a disconnect can never be processed first.
func (h *Hub) registerClient(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info(h.ctx, "client connected", "client", c.id.String(), "remote", c.remoteAddr, "clients", total)
	return true
}

func (h *Hub) unregisterClient(c *client) {
	h.mu.Lock()
	_, exists := h.clients[c.id]
	delete(h.clients, c.id)
	total := len(h.clients)
	h.mu.Unlock()

	if exists {
		h.logger.Info(h.ctx, "client disconnected",
			"client", c.id.String(),
			"clients", total,
			"connected_for", time.Since(c.connectedAt).Round(time.Millisecond).String(),
		)
	}
}

// serveClient runs the write pump in the background and the read pump in
// the calling goroutine. Either side failing tears down both.
func (h *Hub) serveClient(c *client) {
	ctx, cancel := context.WithCancel(h.ctx)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer cancel()
		h.writePump(ctx, c)
	}()

	h.readPump(ctx, c)
	cancel()

	c.open.Store(false)
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
	h.unregisterClient(c)
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	for {
		_, message, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					h.logger.Debug(ctx, "websocket read ended", "client", c.id.String(), "error", err.Error())
				}
			}
			return
		}
		// Clients have nothing to say on this channel.
		h.logger.Debug(ctx, "ignoring client message", "client", c.id.String(), "bytes", len(message))
	}
}

func (h *Hub) writePump(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.open.Store(false)
				if ctx.Err() == nil {
					h.logger.Warn(ctx, err, "websocket write failed", "client", c.id.String())
				}
				_ = c.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.open.Store(false)
				_ = c.conn.Close(websocket.StatusGoingAway, "ping failed")
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// Broadcast queues payload for every open client and returns how many
// clients it was queued for. Clients that are closing are skipped, and a
// client whose send buffer is full misses this payload.
func (h *Hub) Broadcast(payload *Payload) int {
	data, err := payload.Marshal()
	if err != nil {
		h.logger.Error(h.ctx, err, "cannot encode reload payload")
		return 0
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		if !c.open.Load() {
			continue
		}
		select {
		case c.send <- data:
			delivered++
		default:
			h.logger.Warn(h.ctx, nil, "client send buffer full, dropping reload", "client", c.id.String())
		}
	}

	h.logger.Debug(h.ctx, "broadcast reload", "clients", len(clients), "delivered", delivered, "bytes", len(data))
	return delivered
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection and waits for client goroutines to
// exit or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	var err error
	h.shutdownOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		clients := make([]*client, 0, len(h.clients))
		for _, c := range h.clients {
			clients = append(clients, c)
		}
		h.clients = make(map[uuid.UUID]*client)
		h.mu.Unlock()

		// Close waits for the peer's close frame, so close concurrently and
		// only then cancel the pumps.
		var closing sync.WaitGroup
		for _, c := range clients {
			c.open.Store(false)
			if c.conn == nil {
				continue
			}
			closing.Add(1)
			go func(c *client) {
				defer closing.Done()
				_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
			}(c)
		}
		closed := make(chan struct{})
		go func() {
			closing.Wait()
			close(closed)
		}()
		select {
		case <-closed:
		case <-ctx.Done():
		}
		h.cancel()

		done := make(chan struct{})
		go func() {
			h.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			h.logger.Debug(ctx, "hub shut down", "clients_closed", len(clients))
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}
