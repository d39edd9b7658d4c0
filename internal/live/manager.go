// Package live maintains the persistent channel that delivers chat
// messages in real time and reconnects it whenever it drops.
package live

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/christopherjohns/groupchat/internal/message"
	"github.com/rs/zerolog/log"
)

// DefaultReconnectDelay is the fixed pause between a drop and the next attempt.
const DefaultReconnectDelay = 3 * time.Second

// State is the health of the live channel.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MessageHandler receives every "message" event read from the channel.
type MessageHandler func(message.Message)

// StatusHandler receives every state transition.
type StatusHandler func(State)

// Stats holds point-in-time channel statistics.
type Stats struct {
	Attempts  int64
	Opens     int64
	Drops     int64
	Malformed int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithReconnectDelay sets the pause between a drop and the next attempt.
func WithReconnectDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.delay = d
		}
	}
}

// WithDialTimeout bounds each connection attempt. A value of 0 (default)
// lets a hung attempt stay in StateConnecting until Disconnect.
func WithDialTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.dialTimeout = d
	}
}

// Manager owns a single live channel connection. It cycles
// Connecting → Open → Closed → Connecting until Disconnect is called,
// dialling a brand-new transport on every attempt.
//
// Handlers are single-slot (the last registration wins) and are invoked on
// the manager's goroutines, one at a time, never while its state lock is
// held. They must not call Disconnect or Wait.
type Manager struct {
	url         string
	dialer      Dialer
	delay       time.Duration
	dialTimeout time.Duration

	// dispatch serializes handler calls with Disconnect.
	dispatch sync.Mutex

	mu        sync.Mutex
	state     State
	running   bool
	gen       uint64
	cancel    context.CancelFunc
	conn      Conn
	timer     *time.Timer
	onMessage MessageHandler
	onStatus  StatusHandler

	wg sync.WaitGroup

	attempts  atomic.Int64
	opens     atomic.Int64
	drops     atomic.Int64
	malformed atomic.Int64
}

// New creates a Manager for the given live channel URL. Call Connect to start it.
func New(url string, opts ...Option) *Manager {
	m := &Manager{
		url:    url,
		dialer: WebSocketDialer{},
		delay:  DefaultReconnectDelay,
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// URL returns the live channel endpoint.
func (m *Manager) URL() string {
	return m.url
}

// OnMessage registers the message handler, replacing any previous one.
func (m *Manager) OnMessage(h MessageHandler) {
	m.mu.Lock()
	m.onMessage = h
	m.mu.Unlock()
}

// OnStatusChange registers the status handler, replacing any previous one.
func (m *Manager) OnStatusChange(h StatusHandler) {
	m.mu.Lock()
	m.onStatus = h
	m.mu.Unlock()
}

// State returns the current channel state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the channel is open.
func (m *Manager) Connected() bool {
	return m.State() == StateOpen
}

// Stats returns point-in-time channel statistics.
func (m *Manager) Stats() Stats {
	return Stats{
		Attempts:  m.attempts.Load(),
		Opens:     m.opens.Load(),
		Drops:     m.drops.Load(),
		Malformed: m.malformed.Load(),
	}
}

// Connect starts the connection cycle. It returns immediately; progress is
// reported through the status handler. Calling Connect on a running
// manager is a no-op.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.startLocked()
}

// Disconnect tears the channel down: the pending reconnect timer is
// stopped, an in-flight attempt is cancelled and the open connection is
// closed. A handler call already in progress is waited for; no handler is
// invoked after Disconnect returns.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	cancel, conn := m.cancel, m.conn
	m.cancel, m.conn = nil, nil
	m.state = StateClosed
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	// Wait out a handler call that is already running.
	m.dispatch.Lock()
	m.dispatch.Unlock()
	log.Info().Str("url", m.url).Msg("live: disconnected")
}

// Wait blocks until every connection goroutine has exited. Call it after
// Disconnect.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// startLocked begins a fresh connection attempt. Must be called while holding mu.
func (m *Manager) startLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.conn = nil
	m.state = StateConnecting
	m.attempts.Add(1)

	m.wg.Add(1)
	go m.run(ctx, m.gen)
}

// run drives one attempt from Connecting to Closed.
func (m *Manager) run(ctx context.Context, gen uint64) {
	defer m.wg.Done()

	if !m.notify(gen, StateConnecting) {
		return
	}

	dialCtx, cancel := ctx, context.CancelFunc(func() {})
	if m.dialTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, m.dialTimeout)
	}
	conn, err := m.dialer.Dial(dialCtx, m.url)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Str("url", m.url).Msg("live: connect failed")
		}
		m.closed(gen)
		return
	}

	m.mu.Lock()
	if gen != m.gen || !m.running {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()

	m.opens.Add(1)
	log.Info().Str("url", m.url).Msg("live: connected")
	if m.notify(gen, StateOpen) {
		m.readLoop(ctx, gen, conn)
	}
	_ = conn.Close()
	m.closed(gen)
}

// readLoop delivers inbound message events until the connection fails.
func (m *Manager) readLoop(ctx context.Context, gen uint64, conn Conn) {
	for {
		frame, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Info().Err(err).Str("url", m.url).Msg("live: connection dropped")
			}
			return
		}

		ev, err := message.ParseEvent(frame)
		if err != nil {
			m.malformed.Add(1)
			log.Warn().Err(err).Int("bytes", len(frame)).Msg("live: dropping malformed frame")
			continue
		}
		if ev.Type != message.EventMessage {
			continue
		}

		if !m.deliver(gen, ev.Message) {
			return
		}
	}
}

// deliver hands msg to the message handler unless gen has been torn down.
func (m *Manager) deliver(gen uint64, msg message.Message) bool {
	m.dispatch.Lock()
	defer m.dispatch.Unlock()

	m.mu.Lock()
	h := m.onMessage
	current := gen == m.gen && m.running
	m.mu.Unlock()
	if !current {
		return false
	}
	if h != nil {
		h(msg)
	}
	return true
}

// closed reports the drop and arms exactly one reconnect timer.
func (m *Manager) closed(gen uint64) {
	if !m.notify(gen, StateClosed) {
		return
	}
	m.drops.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || !m.running {
		return
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.conn = nil
	m.timer = time.AfterFunc(m.delay, func() { m.reconnect(gen) })
}

// reconnect is the timer callback for the attempt that closed as gen.
func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || !m.running {
		return
	}
	m.timer = nil
	m.startLocked()
}

// notify records the transition and calls the status handler, unless the
// attempt identified by gen has been superseded or torn down.
func (m *Manager) notify(gen uint64, s State) bool {
	m.dispatch.Lock()
	defer m.dispatch.Unlock()

	m.mu.Lock()
	if gen != m.gen || !m.running {
		m.mu.Unlock()
		return false
	}
	m.state = s
	h := m.onStatus
	m.mu.Unlock()

	if h != nil {
		h(s)
	}
	return true
}
