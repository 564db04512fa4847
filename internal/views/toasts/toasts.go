// Package toasts renders the transient alert stack. New toasts slide in
// from the right on a spring.
package toasts

import (
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/powerboard/tui/internal/theme"
	"github.com/powerboard/tui/internal/toast"
)

const (
	// FPS is the animation tick rate.
	FPS        = 60
	toastWidth = 40
	slideFrom  = 24.0
)

var styleToast = lipgloss.NewStyle().
	Width(toastWidth).
	Padding(0, 1).
	BorderStyle(lipgloss.RoundedBorder()).
	BorderForeground(theme.ColorAccent).
	Foreground(theme.ColorBright)

type slide struct {
	pos, vel float64
}

// Model tracks the visible toasts and their slide offsets.
type Model struct {
	Toasts []toast.Toast
	spring harmonica.Spring
	slides map[string]*slide
}

// New creates an empty stack.
func New() Model {
	return Model{
		spring: harmonica.NewSpring(harmonica.FPS(FPS), 6.0, 0.7),
		slides: make(map[string]*slide),
	}
}

// Interval is the delay between animation frames.
func Interval() time.Duration {
	return time.Second / FPS
}

// Sync adopts the dispatcher's visible set. Toasts not seen before start
// off to the right.
func (m *Model) Sync(visible []toast.Toast) {
	seen := make(map[string]bool, len(visible))
	for _, t := range visible {
		seen[t.ID] = true
		if _, ok := m.slides[t.ID]; !ok {
			m.slides[t.ID] = &slide{pos: slideFrom}
		}
	}
	for id := range m.slides {
		if !seen[id] {
			delete(m.slides, id)
		}
	}
	m.Toasts = visible
}

// Tick advances every slide by one frame and reports whether any is
// still moving.
func (m *Model) Tick() bool {
	moving := false
	for _, s := range m.slides {
		s.pos, s.vel = m.spring.Update(s.pos, s.vel, 0)
		if math.Abs(s.pos) < 0.5 && math.Abs(s.vel) < 0.5 {
			s.pos, s.vel = 0, 0
			continue
		}
		moving = true
	}
	return moving
}

// Animating reports whether a slide is still in progress.
func (m Model) Animating() bool {
	for _, s := range m.slides {
		if s.pos != 0 || s.vel != 0 {
			return true
		}
	}
	return false
}

// View renders the stack right-aligned within width.
func (m Model) View(width int) string {
	if len(m.Toasts) == 0 {
		return ""
	}
	var boxes []string
	for _, t := range m.Toasts {
		box := styleToast.Render("🔔 " + t.Message)
		offset := 0
		if s, ok := m.slides[t.ID]; ok && s.pos > 0 {
			offset = int(math.Round(s.pos))
		}
		boxW := lipgloss.Width(box)
		pad := width - boxW + offset
		if pad < 0 {
			pad = 0
		}
		boxes = append(boxes, indent(box, pad))
	}
	return lipgloss.JoinVertical(lipgloss.Left, boxes...)
}

func indent(block string, n int) string {
	if n == 0 {
		return block
	}
	pad := strings.Repeat(" ", n)
	lines := strings.Split(block, "\n")
	for i, l := range lines {
		lines[i] = pad + l
	}
	return strings.Join(lines, "\n")
}
