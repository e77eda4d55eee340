// Package plugin loads plugins and dispatches the command line to them.
//
// A plugin is an instance of a Class. Classes are compiled in and
// registered in a Catalog; the Loader binds names to classes, either
// directly for built-in plugins or through descriptor files found in the
// plugin directories. Each loaded plugin is instantiated once per run in
// ascending InitPriority, the selected one is run, and all of them are
// finished in ascending FinishPriority.
package plugin

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emsm/emsm/internal/config"
	"github.com/emsm/emsm/internal/eventbus"
	"github.com/emsm/emsm/internal/paths"
	"github.com/emsm/emsm/internal/server"
	"github.com/emsm/emsm/internal/world"
)

// Plugin is a loaded plugin instance.
type Plugin interface {
	Name() string

	// Run executes the plugin's subcommand.
	Run(ctx context.Context, args Args) error

	// Finish is called on every plugin at the end of each run, even when
	// Run failed.
	Finish(ctx context.Context) error
}

// Commander is implemented by plugins that add flags or argument rules
// to their subcommand.
type Commander interface {
	Command(cmd *cobra.Command)
}

// Uninstaller is implemented by plugins that clean up after themselves
// when they are uninstalled.
type Uninstaller interface {
	Uninstall(ctx context.Context) error
}

// Args is the parsed command line handed to Run.
type Args struct {
	Worlds     []string
	AllWorlds  bool
	Servers    []string
	AllServers bool

	// Positional holds the arguments after the plugin name.
	Positional []string
}

// Host is the application as seen by plugins.
type Host interface {
	Paths() *paths.Layout
	Config() *config.Manager
	Bus() *eventbus.Bus
	Worlds() *world.Registry
	Servers() *server.Registry
	Plugins() *Loader
	Logger() *zap.Logger

	// Out receives user-facing output.
	Out() io.Writer

	// Confirm asks a yes/no question on the terminal.
	Confirm(question string) (bool, error)

	// Choose asks for one of options and returns its index, -1 when the
	// user picked none.
	Choose(question string, options []string) (int, error)

	// SetExitCode sets the process exit code of a run that does not fail.
	SetExitCode(code int)
}

// Base implements the bookkeeping every plugin needs. Embed it and
// override Run and Finish as required.
type Base struct {
	host Host
	name string
	log  *zap.Logger
}

// NewBase returns a Base for the plugin called name.
func NewBase(h Host, name string) Base {
	return Base{host: h, name: name, log: h.Logger().Named(name)}
}

// Name returns the plugin name.
func (b *Base) Name() string { return b.name }

// Host returns the application.
func (b *Base) Host() Host { return b.host }

// Log returns the plugin's logger.
func (b *Base) Log() *zap.Logger { return b.log }

// GlobalConf returns the plugin's section in main.conf, creating it.
func (b *Base) GlobalConf() *config.Section {
	main := b.host.Config().Main()
	if !main.HasSection(b.name) {
		b.log.Info("creating configuration section", zap.String("file", main.Path()))
	}
	return main.Section(b.name)
}

// WorldConf returns the [plugin:<name>] section of a world file,
// creating it.
func (b *Base) WorldConf(w *world.World) *config.Section {
	return w.File().Section(WorldSection(b.name))
}

// WorldSection is the name of a plugin's section in world files.
func WorldSection(plugin string) string {
	return "plugin:" + plugin
}

// DataDir returns the plugin's private data directory, creating it when
// create is set.
func (b *Base) DataDir(create bool) (string, error) {
	dir := b.host.Paths().PluginData(b.name)
	if create {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("creating data directory of %s: %w", b.name, err)
		}
	}
	return dir, nil
}

// Run does nothing.
func (b *Base) Run(ctx context.Context, args Args) error { return nil }

// Finish does nothing.
func (b *Base) Finish(ctx context.Context) error { return nil }
