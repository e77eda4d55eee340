// Package style provides consistent terminal styling for emsm output.
package style

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/emsm/emsm/internal/ui"
)

func init() {
	if !ui.ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

var (
	// Success is used for online worlds and completed operations.
	Success = lipgloss.NewStyle().Foreground(lipgloss.Color("76")).Bold(true)

	// Warning is used for recoverable problems.
	Warning = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)

	// Error is used for failures and offline worlds.
	Error = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	// Info is used for world and server headings.
	Info = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	// Dim is used for secondary information.
	Dim = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))

	// Bold emphasizes text without colour.
	Bold = lipgloss.NewStyle().Bold(true)

	SuccessPrefix = Success.Render(ui.Icon("✓", "ok"))
	WarningPrefix = Warning.Render(ui.Icon("⚠", "!"))
	ErrorPrefix   = Error.Render(ui.Icon("✗", "x"))
	ArrowPrefix   = Info.Render(ui.Icon("→", ">"))
)

// SetColor forces colour on or off, overriding the environment.
func SetColor(enabled bool) {
	if enabled {
		lipgloss.SetColorProfile(termenv.ANSI256)
	} else {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// PrintWarning prints a warning line to stderr.
func PrintWarning(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s %s\n", WarningPrefix, fmt.Sprintf(format, args...))
}

// Heading renders the "<name>:" line that starts a per-world or
// per-server block.
func Heading(name string) string {
	return Info.Render(name + ":")
}
