// Package paths describes the directory layout of an emsm instance.
//
//	<instance>/
//	    app.lock
//	    conf/          main.conf, server.conf, <world>.world.conf
//	    logs/          emsm.log
//	    plugins/       plugin descriptor files
//	    plugins_data/  one directory per plugin
//	    server/        one directory per server flavor
//	    worlds/        one directory per world
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout resolves the locations inside one instance directory.
type Layout struct {
	root string
}

// New returns the layout rooted at dir. Relative roots are made absolute
// so later working directory changes do not move the instance.
func New(dir string) (*Layout, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving instance directory: %w", err)
	}
	return &Layout{root: abs}, nil
}

// Create makes every top-level directory of the layout.
func (l *Layout) Create() error {
	for _, dir := range []string{l.Conf(), l.Logs(), l.Plugins(), l.PluginsData(), l.Server(), l.Worlds()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// Instance returns the instance root.
func (l *Layout) Instance() string { return l.root }

// Lock returns the application lock file.
func (l *Layout) Lock() string { return filepath.Join(l.root, "app.lock") }

// Conf returns the configuration directory.
func (l *Layout) Conf() string { return filepath.Join(l.root, "conf") }

// Logs returns the directory of the emsm log, not of the game servers.
func (l *Layout) Logs() string { return filepath.Join(l.root, "logs") }

// LogFile returns the emsm log file.
func (l *Layout) LogFile() string { return filepath.Join(l.Logs(), "emsm.log") }

// Plugins returns the plugin descriptor directory.
func (l *Layout) Plugins() string { return filepath.Join(l.root, "plugins") }

// PluginsData returns the parent of all plugin data directories.
func (l *Layout) PluginsData() string { return filepath.Join(l.root, "plugins_data") }

// PluginData returns the private data directory of a plugin.
func (l *Layout) PluginData(plugin string) string { return filepath.Join(l.PluginsData(), plugin) }

// Server returns the parent of all server software directories.
func (l *Layout) Server() string { return filepath.Join(l.root, "server") }

// ServerDir returns the software directory of a server flavor.
func (l *Layout) ServerDir(flavor string) string { return filepath.Join(l.Server(), flavor) }

// Worlds returns the parent of all world directories.
func (l *Layout) Worlds() string { return filepath.Join(l.root, "worlds") }

// World returns the data directory of a world.
func (l *Layout) World(name string) string { return filepath.Join(l.Worlds(), name) }
