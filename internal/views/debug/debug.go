// Package debug renders the in-app log overlay fed from the logger sink.
package debug

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/powerboard/tui/internal/logging"
	"github.com/powerboard/tui/internal/theme"
)

const maxEntries = 200

var levelTags = map[string]string{
	"trace": "TRC",
	"debug": "DBG",
	"info":  "INF",
	"warn":  "WRN",
	"error": "ERR",
	"fatal": "FTL",
}

// Model is a bounded, scrollable log buffer.
type Model struct {
	Entries []logging.Line
	Offset  int // lines scrolled up from the newest
}

// New creates an empty log.
func New() Model {
	return Model{}
}

// Add appends a line, dropping the oldest past maxEntries. A scrolled view
// stays on the same lines.
func (m *Model) Add(l logging.Line) {
	m.Entries = append(m.Entries, l)
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	if m.Offset > 0 {
		m.ScrollUp(1)
	}
}

func (m *Model) ScrollUp(n int) {
	m.Offset += n
	if max := len(m.Entries) - 1; m.Offset > max {
		m.Offset = max
	}
	if m.Offset < 0 {
		m.Offset = 0
	}
}

func (m *Model) ScrollDown(n int) {
	m.Offset -= n
	if m.Offset < 0 {
		m.Offset = 0
	}
}

// View renders the overlay.
func (m Model) View(width, height int) string {
	inner := width - 4
	if inner < 20 {
		inner = 20
	}
	rows := height - 6
	if rows < 3 {
		rows = 3
	}

	title := theme.StyleHeader.Render(" LOG ")
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  esc:close  %d lines", len(m.Entries)))

	var body string
	if len(m.Entries) == 0 {
		body = theme.StyleDimmed.Render("  Nothing logged yet.")
	} else {
		end := len(m.Entries) - m.Offset
		start := end - rows
		if start < 0 {
			start = 0
		}
		lines := make([]string, 0, end-start)
		for _, e := range m.Entries[start:end] {
			lines = append(lines, renderLine(e, inner))
		}
		body = strings.Join(lines, "\n")
		if m.Offset > 0 {
			body += "\n" + theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d newer", m.Offset))
		}
	}

	return lipgloss.NewStyle().
		Width(inner).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, body, help))
}

func renderLine(e logging.Line, width int) string {
	tag, ok := levelTags[e.Level]
	if !ok {
		tag = "???"
	}
	msg := e.Message
	if e.Err != "" {
		msg += ": " + e.Err
	}
	if max := width - 18; max > 3 && len(msg) > max {
		msg = msg[:max-3] + "..."
	}
	return fmt.Sprintf("%s %s %s",
		theme.StyleDimmed.Render(e.Time.Format("15:04:05.000")),
		lipgloss.NewStyle().Foreground(theme.LevelColor(e.Level)).Render(tag),
		msg)
}
