// Package ws serves the live channel: every connected client receives each
// stored message as a {"type":"message","data":...} text frame.
package ws

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/christopherjohns/groupchat/internal/message"
)

// Hub fans messages out to every live client.
type Hub struct {
	conns *ConnManager
}

// NewHub creates a Hub; opts configure its connection manager.
func NewHub(opts ...ConnManagerOption) *Hub {
	return &Hub{conns: NewConnManager(opts...)}
}

// ConnMgr returns the connection manager for this hub.
func (h *Hub) ConnMgr() *ConnManager {
	return h.conns
}

func (h *Hub) addClient(c *Client) context.Context {
	ctx := h.conns.Add(c)
	if ctx.Err() == nil {
		log.Debug().Str("client", c.id).Str("remote", c.remoteAddr).Msg("ws: client connected")
	}
	return ctx
}

func (h *Hub) removeClient(c *Client) {
	h.conns.Remove(c)
	log.Debug().Str("client", c.id).Msg("ws: client disconnected")
}

// Broadcast queues m for every connected client and returns how many
// clients it was queued for.
func (h *Hub) Broadcast(m message.Message) int {
	data, err := message.NewMessageEvent(m)
	if err != nil {
		log.Error().Err(err).Int64("id", m.ID).Msg("ws: encode message event")
		return 0
	}

	sent := 0
	for _, c := range h.conns.targets() {
		if h.conns.Send(c, data) {
			sent++
		}
	}
	return sent
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return h.conns.Count()
}

// Shutdown closes every live connection.
func (h *Hub) Shutdown() {
	h.conns.Shutdown()
}
