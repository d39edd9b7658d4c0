// Package tui renders a chat session in the terminal with bubbletea.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/christopherjohns/groupchat/internal/api"
	"github.com/christopherjohns/groupchat/internal/chat"
	"github.com/christopherjohns/groupchat/internal/live"
)

const (
	defaultWidth  = 80
	defaultHeight = 24

	// header, footer and input line
	chromeHeight = 4

	requestTimeout = 15 * time.Second
)

// updateMsg carries a session update into the program.
type updateMsg chat.Update

// sentMsg reports the outcome of a send.
type sentMsg struct{ err error }

// snapshotMsg reports the outcome of a snapshot fetch.
type snapshotMsg struct{ err error }

// Model is the bubbletea model for a chat session.
type Model struct {
	sess     *chat.Session
	viewport viewport.Model
	input    textinput.Model

	status     live.State
	snapshotOK bool
	loaded     bool
	notice     string
	width      int
	height     int
	loc        *time.Location
}

// New creates a model for sess. The session is started by Init.
func New(sess *chat.Session) Model {
	in := textinput.New()
	in.Placeholder = "Type a message..."
	in.Prompt = "> "
	in.CharLimit = 2000
	in.Focus()

	m := Model{
		sess:   sess,
		input:  in,
		status: sess.Status(),
		loc:    time.Local,
	}
	m.resize(defaultWidth, defaultHeight)
	return m
}

// Run starts a full-screen program for sess and blocks until the user
// quits. Session updates are forwarded to the program.
func Run(sess *chat.Session, opts ...tea.ProgramOption) error {
	p := tea.NewProgram(New(sess), append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)
	sess.OnUpdate(func(u chat.Update) {
		p.Send(updateMsg(u))
	})
	_, err := p.Run()
	sess.OnUpdate(nil)
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.start())
}

func (m Model) start() tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return snapshotMsg{err: sess.Start(ctx)}
	}
}

func (m Model) refresh() tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return snapshotMsg{err: sess.Refresh(ctx)}
	}
}

func (m Model) send(text string) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return sentMsg{err: sess.Send(ctx, text)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.renderFeed()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyCtrlR:
			m.notice = "Refreshing history..."
			return m, m.refresh()
		case tea.KeyEnter:
			text := m.input.Value()
			if strings.TrimSpace(text) == "" {
				return m, nil
			}
			m.input.Reset()
			m.notice = ""
			return m, m.send(text)
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case updateMsg:
		switch msg.Kind {
		case chat.UpdateStatus:
			m.status = msg.Status
		case chat.UpdateFeed:
			m.renderFeed()
		}
		return m, nil

	case snapshotMsg:
		m.loaded = true
		m.snapshotOK = msg.err == nil
		m.notice = ""
		if msg.err != nil {
			m.notice = "Could not load history: " + msg.err.Error()
		}
		m.renderFeed()
		return m, nil

	case sentMsg:
		switch {
		case msg.err == nil:
		case errors.Is(msg.err, chat.ErrEmptyMessage):
		case errors.Is(msg.err, api.ErrRejected):
			m.notice = "Message rejected: " + msg.err.Error()
		default:
			m.notice = "Send failed, kept locally: " + msg.err.Error()
			m.renderFeed()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	vh := max(height-chromeHeight, 1)
	if m.viewport.Width == 0 {
		m.viewport = viewport.New(width, vh)
	} else {
		m.viewport.Width = width
		m.viewport.Height = vh
	}
	m.input.Width = max(width-len(m.input.Prompt)-1, 10)
}

// renderFeed redraws the feed and scrolls to the newest entry.
func (m *Model) renderFeed() {
	m.viewport.SetContent(m.feedContent())
	m.viewport.GotoBottom()
}
