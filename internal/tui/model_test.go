package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/christopherjohns/groupchat/internal/api"
	"github.com/christopherjohns/groupchat/internal/chat"
	"github.com/christopherjohns/groupchat/internal/live"
	"github.com/christopherjohns/groupchat/internal/message"
)

type stubAPI struct {
	mu       sync.Mutex
	snapshot []message.Message
	fetchErr error
	postErr  error
	posted   []message.Draft
}

func (s *stubAPI) FetchMessages(ctx context.Context) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, s.fetchErr
}

func (s *stubAPI) PostMessage(ctx context.Context, d message.Draft) (*message.SendResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posted = append(s.posted, d)
	if s.postErr != nil {
		return nil, s.postErr
	}
	return &message.SendResponse{Success: true, Message: d.WithID(int64(len(s.posted)))}, nil
}

func newTestModel(t *testing.T, stub *stubAPI) (Model, *chat.Session) {
	t.Helper()
	dialer := live.DialerFunc(func(ctx context.Context, url string) (live.Conn, error) {
		return nil, errors.New("offline")
	})
	lm := live.New("ws://127.0.0.1:1/ws", live.WithDialer(dialer), live.WithReconnectDelay(time.Hour))
	sess := chat.New(chat.Options{API: stub, Live: lm, Username: "me"})
	t.Cleanup(sess.Close)

	m := New(sess)
	m.loc = time.UTC
	return m, sess
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestViewEmptyFeed(t *testing.T) {
	m, _ := newTestModel(t, &stubAPI{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	view := m.View()
	for _, want := range []string{"Group Chat", "Connecting...", emptyFeedText, "history: loading"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q\n%s", want, view)
		}
	}
}

func TestStatusUpdate(t *testing.T) {
	m, _ := newTestModel(t, &stubAPI{})

	m, _ = update(t, m, updateMsg{Kind: chat.UpdateStatus, Status: live.StateOpen})
	if !strings.Contains(m.View(), "Connected") || strings.Contains(m.View(), "Connecting...") {
		t.Errorf("expected connected header\n%s", m.View())
	}

	m, _ = update(t, m, updateMsg{Kind: chat.UpdateStatus, Status: live.StateClosed})
	if !strings.Contains(m.View(), "Connecting...") {
		t.Errorf("closed should read as connecting\n%s", m.View())
	}
}

func TestFeedRendering(t *testing.T) {
	m, sess := newTestModel(t, &stubAPI{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	sess.Feed().Replace([]message.Message{
		{ID: 1, Text: "hi there", Username: "bob", Timestamp: "2024-05-01T09:05:00.000Z"},
		{ID: 2, Text: "hello bob", Username: "me", Timestamp: "2024-05-01T09:07:30.000Z"},
	})
	m, _ = update(t, m, updateMsg{Kind: chat.UpdateFeed})

	view := m.View()
	for _, want := range []string{"09:05", "bob", "hi there", "09:07", "hello bob"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q\n%s", want, view)
		}
	}
	if strings.Contains(view, emptyFeedText) {
		t.Error("placeholder should be gone once messages exist")
	}
	if !m.viewport.AtBottom() {
		t.Error("expected feed scrolled to newest entry")
	}
}

func TestEnterSends(t *testing.T) {
	stub := &stubAPI{}
	m, _ := newTestModel(t, stub)

	m.input.SetValue("   ")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatal("blank input must not send")
	}

	m.input.SetValue("hello")
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected send command")
	}
	if m.input.Value() != "" {
		t.Errorf("expected input cleared, got %q", m.input.Value())
	}

	msg := cmd()
	sent, ok := msg.(sentMsg)
	if !ok || sent.err != nil {
		t.Fatalf("unexpected result %#v", msg)
	}
	if len(stub.posted) != 1 || stub.posted[0].Text != "hello" || stub.posted[0].Username != "me" {
		t.Errorf("unexpected posts %+v", stub.posted)
	}
}

func TestSendFailureShowsNotice(t *testing.T) {
	m, _ := newTestModel(t, &stubAPI{})

	m, _ = update(t, m, sentMsg{err: errors.New("connection refused")})
	if !strings.Contains(m.View(), "Send failed, kept locally") {
		t.Errorf("expected failure notice\n%s", m.View())
	}

	m, _ = update(t, m, sentMsg{err: api.ErrRejected})
	if !strings.Contains(m.View(), "Message rejected") {
		t.Errorf("expected rejection notice\n%s", m.View())
	}
}

func TestLocalEntryMarked(t *testing.T) {
	stub := &stubAPI{postErr: errors.New("connection refused")}
	m, sess := newTestModel(t, stub)

	if err := sess.Send(context.Background(), "offline"); err == nil {
		t.Fatal("expected send error")
	}
	m, _ = update(t, m, updateMsg{Kind: chat.UpdateFeed})
	if !strings.Contains(m.View(), "offline") || !strings.Contains(m.View(), "(not sent)") {
		t.Errorf("expected local entry marked\n%s", m.View())
	}
}

func TestSnapshotResult(t *testing.T) {
	stub := &stubAPI{snapshot: []message.Message{{ID: 1, Text: "earlier", Username: "bob", Timestamp: "2024-05-01T09:00:00.000Z"}}}
	m, _ := newTestModel(t, stub)

	msg := m.start()()
	m, _ = update(t, m, msg)
	if !strings.Contains(m.View(), "history: ok") || !strings.Contains(m.View(), "earlier") {
		t.Errorf("expected loaded history\n%s", m.View())
	}

	m, _ = update(t, m, snapshotMsg{err: errors.New("server down")})
	if !strings.Contains(m.View(), "Could not load history") {
		t.Errorf("expected history error\n%s", m.View())
	}
	m.notice = ""
	if !strings.Contains(m.View(), "history: unavailable") {
		t.Errorf("expected unavailable indicator\n%s", m.View())
	}
}

func TestQuitKeys(t *testing.T) {
	m, _ := newTestModel(t, &stubAPI{})
	for _, key := range []tea.KeyType{tea.KeyCtrlC, tea.KeyEsc} {
		_, cmd := update(t, m, tea.KeyMsg{Type: key})
		if cmd == nil {
			t.Fatalf("expected quit command for %v", key)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("expected QuitMsg for %v", key)
		}
	}
}

func TestClockTime(t *testing.T) {
	if got := clockTime("2024-05-01T23:59:59.999Z", time.UTC); got != "23:59" {
		t.Errorf("expected 23:59, got %s", got)
	}
	loc := time.FixedZone("UTC+2", 2*60*60)
	if got := clockTime("2024-05-01T23:30:00.000Z", loc); got != "01:30" {
		t.Errorf("expected 01:30, got %s", got)
	}
	if got := clockTime("yesterday", time.UTC); got != "--:--" {
		t.Errorf("expected placeholder, got %s", got)
	}
}
