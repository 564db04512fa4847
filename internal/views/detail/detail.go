// Package detail renders one notification in a flyout, formatting its
// message as markdown.
package detail

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/powerboard/tui/internal/api"
	"github.com/powerboard/tui/internal/theme"
)

const (
	panelWidth = 64
	labelWidth = 10
)

var (
	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1)

	styleLabel = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed).
			Width(labelWidth)

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorBright)

	styleFooter = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed)
)

// Model holds the notification shown in the flyout.
type Model struct {
	Note *api.Notification
}

// New creates a detail model for n.
func New(n api.Notification) Model {
	return Model{Note: &n}
}

// View renders the flyout, or "" when nothing is selected.
func (m Model) View() string {
	if m.Note == nil {
		return ""
	}
	n := m.Note
	var b strings.Builder

	b.WriteString(styleTitle.Render(fmt.Sprintf("Notification #%d", n.ID)) + "\n")
	b.WriteString(strings.Repeat("─", panelWidth-4) + "\n")

	state := theme.StyleUnread.Render("unread")
	if n.Read {
		state = theme.StyleDimmed.Render("read")
	}
	writeRow(&b, "Status", state)
	if !n.CreatedAt.IsZero() {
		writeRow(&b, "Received", n.CreatedAt.Local().Format(time.DateTime))
	}
	b.WriteString("\n")
	b.WriteString(RenderMarkdown(n.Message, panelWidth-4))
	b.WriteString("\n")

	footer := "[esc] close"
	if !n.Read {
		footer = "[enter] mark read  " + footer
	}
	b.WriteString(styleFooter.Render(footer))

	return stylePanel.Width(panelWidth).Render(b.String())
}

// RenderMarkdown formats md for the terminal, falling back to the raw
// text if rendering fails.
func RenderMarkdown(md string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}

func writeRow(b *strings.Builder, label, value string) {
	b.WriteString(styleLabel.Render(label) + value + "\n")
}
