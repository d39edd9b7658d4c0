package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/christopherjohns/groupchat/internal/feed"
	"github.com/christopherjohns/groupchat/internal/live"
)

const emptyFeedText = "No messages yet. Start the conversation!"

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	connectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	connectingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	ownNameStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	otherNameStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	timeStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	localStyle      = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8"))
	emptyStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	footerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	noticeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	ruleStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteByte('\n')
	b.WriteString(m.viewport.View())
	b.WriteByte('\n')
	b.WriteString(ruleStyle.Render(strings.Repeat("─", max(m.width, 1))))
	b.WriteByte('\n')
	b.WriteString(m.input.View())
	b.WriteByte('\n')
	b.WriteString(m.footer())
	return b.String()
}

func (m Model) header() string {
	status := connectingStyle.Render("○ " + statusText(m.status))
	if m.status == live.StateOpen {
		status = connectedStyle.Render("● " + statusText(m.status))
	}
	title := titleStyle.Render("Group Chat")
	gap := max(m.width-lipgloss.Width(title)-lipgloss.Width(status), 1)
	return title + strings.Repeat(" ", gap) + status
}

func statusText(s live.State) string {
	if s == live.StateOpen {
		return "Connected"
	}
	return "Connecting..."
}

func (m Model) footer() string {
	if m.notice != "" {
		return noticeStyle.Render(m.notice)
	}
	history := "history: loading"
	if m.loaded {
		history = "history: unavailable"
		if m.snapshotOK {
			history = "history: ok"
		}
	}
	return footerStyle.Render("as " + m.sess.Username() + " · " + history + " · enter send · ctrl+r refresh · esc quit")
}

func (m Model) feedContent() string {
	entries := m.sess.Feed().Entries()
	if len(entries) == 0 {
		return emptyStyle.Render(emptyFeedText)
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, m.renderEntry(e))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderEntry(e feed.Entry) string {
	nameStyle := otherNameStyle
	if e.Username == m.sess.Username() {
		nameStyle = ownNameStyle
	}
	line := timeStyle.Render(clockTime(e.Timestamp, m.loc)) + " " + nameStyle.Render(e.Username) + ": " + e.Text
	if e.Local() {
		line += " " + localStyle.Render("(not sent)")
	}
	return line
}

// clockTime renders an ISO-8601 timestamp as HH:MM in loc.
func clockTime(ts string, loc *time.Location) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return "--:--"
	}
	return t.In(loc).Format("15:04")
}
