package ui

import "fmt"

// Style is an ANSI 256-color foreground style.
type Style uint8

// Palette used across silod terminal output.
const (
	Accent  Style = 74  // blue: section headers, object coordinates
	Command Style = 250 // light gray: command names
	Muted   Style = 245 // medium gray: metadata, defaults, timestamps
	Derived Style = 179 // amber: derived-copy markers
	Open    Style = 114 // green: open sessions, healthy status
	Alert   Style = 167 // red: errors, closed or unhealthy state
)

var noColor bool

// Render wraps s in the style's ANSI sequence, or returns it unchanged when
// color output is disabled.
func (st Style) Render(s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", st, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return Accent.Render(s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return Muted.Render(s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return Command.Render(s) }

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
