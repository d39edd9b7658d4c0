package ws

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
)

// Handler upgrades HTTP requests to receive-only live connections.
type Handler struct {
	hub     *Hub
	origins []string
}

// NewHandler creates a Handler. origins are host patterns accepted in the
// Origin header besides the request's own host; with none, any origin is
// allowed.
func NewHandler(hub *Hub, origins ...string) *Handler {
	return &Handler{hub: hub, origins: origins}
}

// ServeHTTP upgrades the connection, registers it with the hub and holds
// it open until the client goes away or the hub drops it. Frames sent by
// the client close the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.origins,
		InsecureSkipVerify: len(h.origins) == 0,
	})
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ws: accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	client := &Client{
		conn:       conn,
		id:         uuid.NewString(),
		remoteAddr: r.RemoteAddr,
	}

	connCtx := h.hub.addClient(client)
	if connCtx.Err() != nil {
		return
	}
	defer h.hub.removeClient(client)

	readCtx := conn.CloseRead(r.Context())
	select {
	case <-connCtx.Done():
	case <-readCtx.Done():
	}
}
