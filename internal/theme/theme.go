// Package theme provides the Lip Gloss palette and shared styles for the
// Powerboard TUI. It is a leaf package with no internal imports.
package theme

import "github.com/charmbracelet/lipgloss"

// Connection state colors.
var (
	ColorConnecting = lipgloss.Color("#7c3aed")
	ColorOpen       = lipgloss.Color("#16a34a")
	ColorBackingOff = lipgloss.Color("#d97706")
	ColorClosed     = lipgloss.Color("#dc2626")
	ColorIdle       = lipgloss.Color("#4b5563")
)

// Notification colors.
var (
	ColorUnread = lipgloss.Color("#3b82f6")
	ColorRead   = lipgloss.Color("#6b7280")
	ColorToast  = lipgloss.Color("#1f2937")
	ColorAccent = lipgloss.Color("#a855f7")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StateColor returns the color for a gateway state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "connecting":
		return ColorConnecting
	case "open":
		return ColorOpen
	case "backing_off":
		return ColorBackingOff
	case "closed":
		return ColorClosed
	default:
		return ColorIdle
	}
}

// StateGlyph returns a glyph for a gateway state name.
func StateGlyph(state string) string {
	switch state {
	case "connecting":
		return "◎"
	case "open":
		return "●"
	case "backing_off":
		return "◌"
	case "closed":
		return "✗"
	default:
		return "○"
	}
}

// LevelColor returns the color for a log level.
func LevelColor(level string) lipgloss.Color {
	switch level {
	case "error", "fatal", "panic":
		return ColorDanger
	case "warn":
		return ColorWarning
	case "info":
		return ColorUnread
	default:
		return ColorDimmed
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleUnread = lipgloss.NewStyle().
			Foreground(ColorUnread)
)
