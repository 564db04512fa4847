package debug

import (
	"strings"
	"testing"
	"time"

	"github.com/powerboard/tui/internal/logging"
)

func line(level, msg string) logging.Line {
	return logging.Line{Time: time.Now(), Level: level, Message: msg}
}

func TestMaxEntries(t *testing.T) {
	m := New()
	for i := 0; i < maxEntries+50; i++ {
		m.Add(line("info", "msg"))
	}
	if len(m.Entries) != maxEntries {
		t.Errorf("expected %d entries, got %d", maxEntries, len(m.Entries))
	}
}

func TestScrollBounds(t *testing.T) {
	m := New()
	for i := 0; i < 5; i++ {
		m.Add(line("info", "msg"))
	}
	m.ScrollUp(100)
	if m.Offset != 4 {
		t.Errorf("Offset = %d, want 4", m.Offset)
	}
	m.ScrollDown(10)
	if m.Offset != 0 {
		t.Errorf("Offset = %d, want 0", m.Offset)
	}
}

func TestScrolledViewStaysPut(t *testing.T) {
	m := New()
	for i := 0; i < 10; i++ {
		m.Add(line("info", "msg"))
	}
	m.ScrollUp(3)
	m.Add(line("warn", "new"))
	if m.Offset != 4 {
		t.Errorf("Offset = %d, want 4", m.Offset)
	}
}

func TestView(t *testing.T) {
	m := New()
	if !strings.Contains(m.View(80, 24), "Nothing logged yet") {
		t.Error("empty view missing placeholder")
	}
	m.Add(logging.Line{Time: time.Now(), Level: "error", Message: "gateway open failed", Err: "refused"})
	v := m.View(80, 24)
	if !strings.Contains(v, "ERR") || !strings.Contains(v, "gateway open failed: refused") {
		t.Errorf("View() = %s", v)
	}
}
