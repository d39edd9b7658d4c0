package live

import (
	"context"
	"net/http"

	"nhooyr.io/websocket"
)

// defaultReadLimit caps the size of a single inbound frame.
const defaultReadLimit = 1 << 20

// Conn is a receive-only live channel transport.
type Conn interface {
	// Read blocks until the next text frame arrives or the connection fails.
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens a new transport for every connection attempt.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// WebSocketDialer dials the live channel with nhooyr.io/websocket.
type WebSocketDialer struct {
	HTTPClient *http.Client
	Header     http.Header
	ReadLimit  int64
}

// Dial opens a websocket connection to url.
func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
		HTTPHeader: d.Header,
	})
	if err != nil {
		return nil, err
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	conn.SetReadLimit(limit)
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

// Read skips binary frames; the live channel only carries JSON text.
func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ != websocket.MessageText {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
