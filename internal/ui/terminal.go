// Package ui detects terminal capabilities and asks the user questions.
package ui

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal returns true if stdout is connected to a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// IsInteractive returns true if both stdin and stdout are terminals.
func IsInteractive() bool {
	return IsTerminal() && term.IsTerminal(int(os.Stdin.Fd()))
}

// ShouldUseColor determines if ANSI color codes should be used.
// Respects NO_COLOR (https://no-color.org/), CLICOLOR, and CLICOLOR_FORCE conventions.
func ShouldUseColor() bool {
	// NO_COLOR takes precedence - any value disables color
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if _, exists := os.LookupEnv("CLICOLOR_FORCE"); exists {
		return true
	}
	return IsTerminal()
}

// ShouldUseEmoji determines if symbol decorations should be used.
// Disabled in non-TTY mode so cron mails and init scripts stay plain.
func ShouldUseEmoji() bool {
	if _, exists := os.LookupEnv("EMSM_NO_EMOJI"); exists {
		return false
	}
	return IsTerminal()
}

// Icon returns symbol when decorations are enabled and fallback otherwise.
func Icon(symbol, fallback string) string {
	if ShouldUseEmoji() {
		return symbol
	}
	return fallback
}
