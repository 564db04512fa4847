// Package notifications renders the notification panel.
package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/powerboard/tui/internal/api"
	"github.com/powerboard/tui/internal/theme"
)

// Model is the panel state. Items are owned by the store; the panel keeps
// a copy and a cursor.
type Model struct {
	Items    []api.Notification
	Selected int
	Loading  bool
	Err      string
	Width    int
	Height   int
	Now      func() time.Time
}

// New creates an empty panel.
func New() Model {
	return Model{Now: time.Now}
}

// SetItems replaces the list, keeping the cursor on the same id when it
// is still present.
func (m *Model) SetItems(items []api.Notification) {
	var keep int64 = -1
	if cur, ok := m.Current(); ok {
		keep = cur.ID
	}
	m.Items = items
	m.Selected = 0
	for i, it := range items {
		if it.ID == keep {
			m.Selected = i
			break
		}
	}
}

// Current returns the notification under the cursor.
func (m Model) Current() (api.Notification, bool) {
	if m.Selected < 0 || m.Selected >= len(m.Items) {
		return api.Notification{}, false
	}
	return m.Items[m.Selected], true
}

func (m *Model) Down() {
	if len(m.Items) > 0 {
		m.Selected = (m.Selected + 1) % len(m.Items)
	}
}

func (m *Model) Up() {
	if len(m.Items) > 0 {
		m.Selected = (m.Selected - 1 + len(m.Items)) % len(m.Items)
	}
}

// View renders the panel.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}
	inner := width - 4

	unread := 0
	for _, it := range m.Items {
		if !it.Read {
			unread++
		}
	}
	title := theme.StyleHeader.Render(fmt.Sprintf(" NOTIFICATIONS (%d unread) ", unread))
	help := theme.StyleDimmed.Render("j/k:move  enter:mark read  A:mark all read  r:refresh  esc:close")

	var body string
	switch {
	case m.Loading && len(m.Items) == 0:
		body = theme.StyleDimmed.Render("  Loading...")
	case len(m.Items) == 0:
		body = theme.StyleDimmed.Render("  No notifications")
	default:
		body = m.renderList(inner)
	}

	parts := []string{title, "", body}
	if m.Err != "" {
		parts = append(parts, "", lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("  "+m.Err))
	}
	parts = append(parts, "", help)

	return lipgloss.NewStyle().
		Width(inner).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) renderList(width int) string {
	visible := m.Height - 8
	if visible < 3 {
		visible = 3
	}
	start := 0
	if m.Selected >= visible {
		start = m.Selected - visible + 1
	}
	end := start + visible
	if end > len(m.Items) {
		end = len(m.Items)
	}

	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	var lines []string
	for i := start; i < end; i++ {
		it := m.Items[i]
		prefix := "  "
		if i == m.Selected {
			prefix = "> "
		}
		dot := " "
		msgStyle := lipgloss.NewStyle().Foreground(theme.ColorRead)
		if !it.Read {
			dot = theme.StyleUnread.Render("●")
			msgStyle = theme.StyleSelected
		}
		age := theme.StyleDimmed.Render(Age(now(), it.CreatedAt))
		msg := truncate(firstLine(it.Message), width-16)
		lines = append(lines, fmt.Sprintf("%s%s %s  %s", prefix, dot, msgStyle.Render(msg), age))
	}
	return strings.Join(lines, "\n")
}

// Age renders a short relative time such as "5m" or "3d".
func Age(now, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
