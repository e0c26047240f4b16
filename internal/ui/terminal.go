package ui

import (
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

var (
	colorOnce sync.Once
	colorOn   bool
)

// ShouldUseColor reports whether ANSI colors should be used on stdout. The
// decision is made once per process; flags that toggle color mid-run should
// call ForceNoColor instead.
func ShouldUseColor() bool {
	colorOnce.Do(func() { colorOn = detectColor() })
	return colorOn
}

func detectColor() bool {
	// https://no-color.org — any non-empty value disables color.
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	// CLICOLOR_FORCE=1 forces color even without a TTY.
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	// CLICOLOR=0 explicitly disables color.
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
