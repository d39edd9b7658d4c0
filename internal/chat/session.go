// Package chat ties the snapshot fetch, the live channel and the composer
// to a single message feed.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/christopherjohns/groupchat/internal/api"
	"github.com/christopherjohns/groupchat/internal/feed"
	"github.com/christopherjohns/groupchat/internal/live"
	"github.com/christopherjohns/groupchat/internal/message"
	"github.com/christopherjohns/groupchat/internal/user"
	"github.com/rs/zerolog/log"
)

// ErrEmptyMessage is returned by Send for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// UpdateKind says what changed.
type UpdateKind int

const (
	UpdateFeed UpdateKind = iota
	UpdateStatus
)

// Update is delivered to the update handler after every feed mutation and
// every live channel transition.
type Update struct {
	Kind   UpdateKind
	Status live.State
}

// Fetcher retrieves the snapshot and sends messages. *api.Client implements it.
type Fetcher interface {
	FetchMessages(ctx context.Context) ([]message.Message, error)
	PostMessage(ctx context.Context, d message.Draft) (*message.SendResponse, error)
}

// Options configures a Session.
type Options struct {
	API      Fetcher
	Live     *live.Manager
	Username string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Session is one user's view of the group chat.
type Session struct {
	api      Fetcher
	live     *live.Manager
	feed     *feed.Feed
	username string
	now      func() time.Time

	mu         sync.Mutex
	onUpdate   func(Update)
	fetching   int
	racing     []message.Message
	snapshotOK bool
}

// New creates a Session and registers it as the live channel's message and
// status handler.
func New(opts Options) *Session {
	s := &Session{
		api:      opts.API,
		live:     opts.Live,
		feed:     feed.New(),
		username: opts.Username,
		now:      opts.Now,
	}
	if s.username == "" {
		s.username = user.DefaultName()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.feed.OnChange(func() { s.emit(Update{Kind: UpdateFeed}) })
	s.live.OnMessage(s.handleIncoming)
	s.live.OnStatusChange(s.handleStatus)
	return s
}

// OnUpdate registers the update handler, replacing any previous one.
func (s *Session) OnUpdate(fn func(Update)) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// Username returns the display name used for sending.
func (s *Session) Username() string {
	return s.username
}

// Feed returns the session's message feed.
func (s *Session) Feed() *feed.Feed {
	return s.feed
}

// Status returns the live channel state.
func (s *Session) Status() live.State {
	return s.live.State()
}

// SnapshotOK reports whether the last snapshot fetch succeeded.
func (s *Session) SnapshotOK() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotOK
}

// Start opens the live channel and fetches the initial snapshot. A failed
// fetch is returned but leaves the live channel running.
func (s *Session) Start(ctx context.Context) error {
	s.live.Connect()
	return s.Refresh(ctx)
}

// Refresh fetches the snapshot and replaces the feed with it. Messages that
// arrive over the live channel before the replace completes are merged back
// afterwards, and local entries from failed sends are kept. On failure the
// feed is left untouched.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.fetching++
	s.mu.Unlock()

	msgs, err := s.api.FetchMessages(ctx)
	if err == nil {
		s.feed.Replace(msgs)
	}

	s.mu.Lock()
	s.fetching--
	racing := s.racing
	if s.fetching == 0 {
		s.racing = nil
	}
	s.snapshotOK = err == nil
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("chat: fetch messages failed")
		s.emit(Update{Kind: UpdateStatus, Status: s.live.State()})
		return err
	}
	for _, m := range racing {
		s.feed.ApplyIncoming(m)
	}
	log.Debug().Int("count", len(msgs)).Msg("chat: snapshot loaded")
	return nil
}

// Send posts text as a new message. On success nothing is added locally:
// the message arrives through the live channel. When the request fails the
// message is kept in the feed as a local entry so the user's input is not
// lost.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	d := message.Draft{
		Text:      text,
		Username:  s.username,
		Timestamp: message.Timestamp(s.now()),
	}

	resp, err := s.api.PostMessage(ctx, d)
	switch {
	case err == nil:
		log.Debug().Int64("id", resp.Message.ID).Msg("chat: message sent")
		return nil
	case errors.Is(err, api.ErrRejected):
		log.Warn().Err(err).Msg("chat: message rejected")
		return err
	default:
		log.Error().Err(err).Msg("chat: send failed, keeping local copy")
		s.feed.AddLocal(d)
		return err
	}
}

// Close tears down the live channel and waits for it to stop.
func (s *Session) Close() {
	s.live.Disconnect()
	s.live.Wait()
}

func (s *Session) handleIncoming(m message.Message) {
	s.mu.Lock()
	if s.fetching > 0 {
		s.racing = append(s.racing, m)
	}
	s.mu.Unlock()
	s.feed.ApplyIncoming(m)
}

func (s *Session) handleStatus(st live.State) {
	s.emit(Update{Kind: UpdateStatus, Status: st})
}

func (s *Session) emit(u Update) {
	s.mu.Lock()
	fn := s.onUpdate
	s.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}
