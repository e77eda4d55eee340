package cmd

import (
	"github.com/charmbracelet/glamour"

	"github.com/emsm/emsm/internal/ui"
)

// helpWidth is the wrap width of rendered plugin descriptions.
const helpWidth = 80

// renderMarkdown renders a plugin description for the terminal. Plain
// output without colour is used when colour is off; the raw text is
// returned if rendering fails.
func renderMarkdown(text string) string {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(helpWidth)}
	if ui.ShouldUseColor() {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle("notty"))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return text + "\n"
	}
	out, err := r.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}
