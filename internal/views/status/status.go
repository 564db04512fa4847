// Package status renders the top bar: connection state, unread badge and
// the signed-in user.
package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/powerboard/tui/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	State    string
	Attempts int
	Unread   int
	User     string
	Width    int
}

// New creates a status bar model.
func New() Model {
	return Model{State: "idle"}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	color := theme.StateColor(m.State)
	label := m.State
	switch m.State {
	case "open":
		label = "Live"
	case "connecting":
		label = "Connecting..."
	case "backing_off":
		label = fmt.Sprintf("Reconnecting (attempt %d)", m.Attempts)
	case "closed":
		label = "Offline"
	}
	connStr := lipgloss.NewStyle().Foreground(color).Render(theme.StateGlyph(m.State) + " " + label)

	badge := theme.StyleDimmed.Render("no unread")
	if m.Unread > 0 {
		badge = theme.StyleUnread.Bold(true).Render(fmt.Sprintf("✉ %d unread", m.Unread))
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + badge
	if m.User != "" {
		content += sep + theme.StyleDimmed.Render(m.User)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
