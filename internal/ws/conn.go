package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
)

const (
	// sendBufferSize is the number of frames that can be queued per client.
	sendBufferSize = 16

	// writeTimeout is the max time to wait for a single write to complete.
	writeTimeout = 5 * time.Second
)

// Client is one live listener.
type Client struct {
	conn       *websocket.Conn
	send       chan []byte
	id         string
	remoteAddr string
}

// connEntry holds per-connection metadata alongside the cancel function.
type connEntry struct {
	cancel      context.CancelFunc
	connectedAt time.Time
}

// ConnStats holds point-in-time connection statistics.
type ConnStats struct {
	Active          int   `json:"active"`
	MaxConns        int   `json:"max_conns"`
	Rejected        int64 `json:"rejected"`
	DroppedMessages int64 `json:"dropped_messages"`
}

// ConnManager tracks live connections: per-client buffered send channels,
// a connection limit and graceful shutdown.
type ConnManager struct {
	mu       sync.Mutex
	clients  map[*Client]*connEntry
	closed   bool
	maxConns int

	rejected        atomic.Int64
	droppedMessages atomic.Int64
}

// ConnManagerOption configures a ConnManager.
type ConnManagerOption func(*ConnManager)

// WithMaxConns sets the maximum number of concurrent connections. When the
// limit is reached new connections are closed with StatusTryAgainLater.
// Zero means unlimited.
func WithMaxConns(n int) ConnManagerOption {
	return func(cm *ConnManager) {
		cm.maxConns = n
	}
}

// NewConnManager creates a connection manager.
func NewConnManager(opts ...ConnManagerOption) *ConnManager {
	cm := &ConnManager{
		clients: make(map[*Client]*connEntry),
	}
	for _, opt := range opts {
		opt(cm)
	}
	return cm
}

// Add registers a client and starts its write pump. The returned context
// is cancelled when the client is removed or the manager shuts down. If
// the manager is closed or at capacity the connection is closed and an
// already cancelled context is returned.
func (cm *ConnManager) Add(c *Client) context.Context {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		return cancelledContext()
	}
	if cm.maxConns > 0 && len(cm.clients) >= cm.maxConns {
		cm.rejected.Add(1)
		log.Warn().Str("client", c.id).Int("max", cm.maxConns).Msg("ws: at capacity, rejecting connection")
		c.conn.Close(websocket.StatusTryAgainLater, "server at capacity")
		return cancelledContext()
	}

	c.send = make(chan []byte, sendBufferSize)
	ctx, cancel := context.WithCancel(context.Background())
	cm.clients[c] = &connEntry{
		cancel:      cancel,
		connectedAt: time.Now(),
	}
	go cm.writePump(ctx, c)
	return ctx
}

// Remove stops a client's write pump.
func (cm *ConnManager) Remove(c *Client) {
	cm.mu.Lock()
	entry, ok := cm.clients[c]
	if ok {
		delete(cm.clients, c)
	}
	cm.mu.Unlock()

	if ok {
		entry.cancel()
	}
}

// Send queues a frame for the client. It returns false when the client's
// buffer is full; the frame is dropped rather than blocking the caller.
func (cm *ConnManager) Send(c *Client, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		cm.droppedMessages.Add(1)
		log.Warn().Str("client", c.id).Msg("ws: send buffer full, dropping frame")
		return false
	}
}

// Count returns the number of active connections.
func (cm *ConnManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.clients)
}

// Stats returns point-in-time connection statistics.
func (cm *ConnManager) Stats() ConnStats {
	cm.mu.Lock()
	active := len(cm.clients)
	maxConns := cm.maxConns
	cm.mu.Unlock()
	return ConnStats{
		Active:          active,
		MaxConns:        maxConns,
		Rejected:        cm.rejected.Load(),
		DroppedMessages: cm.droppedMessages.Load(),
	}
}

// ConnInfo holds metadata about a single connection.
type ConnInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Clients returns metadata for all active connections.
func (cm *ConnManager) Clients() []ConnInfo {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	result := make([]ConnInfo, 0, len(cm.clients))
	for c, entry := range cm.clients {
		result = append(result, ConnInfo{
			ID:          c.id,
			RemoteAddr:  c.remoteAddr,
			ConnectedAt: entry.connectedAt,
		})
	}
	return result
}

// targets returns the currently registered clients.
func (cm *ConnManager) targets() []*Client {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	out := make([]*Client, 0, len(cm.clients))
	for c := range cm.clients {
		out = append(out, c)
	}
	return out
}

// Shutdown cancels every write pump and closes each connection with
// StatusGoingAway. Later Adds are refused.
func (cm *ConnManager) Shutdown() {
	cm.mu.Lock()
	cm.closed = true
	clients := cm.clients
	cm.clients = make(map[*Client]*connEntry)
	cm.mu.Unlock()

	for c, entry := range clients {
		entry.cancel()
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	if len(clients) > 0 {
		log.Info().Int("clients", len(clients)).Msg("ws: closed live connections")
	}
}

// writePump drains the client's send channel until ctx is cancelled. A
// failed write closes the connection.
func (cm *ConnManager) writePump(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				log.Debug().Err(err).Str("client", c.id).Msg("ws: write failed")
				c.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func cancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
