package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/emsm/emsm/internal/eventbus"
)

// File names inside the configuration directory.
const (
	MainFile    = "main.conf"
	ServerFile  = "server.conf"
	WorldSuffix = ".world.conf"
)

// Defaults of the [emsm] section in main.conf.
const (
	DefaultUser        = "minecraft"
	DefaultTimeout     = "0"
	DefaultMultiplexer = "screen"
	DefaultLogLevel    = "info"
)

// Defaults of the [world] section of a world file.
const (
	DefaultStopTimeout = "10"
	DefaultStopDelay   = "5"
	DefaultStopMessage = "The server is going down.\nHope to see you soon."
	DefaultServer      = "vanilla 1.11"
	DefaultPort        = AutoPort
)

const mainEpilog = `This file contains the settings for the emsm core application and
the plugins.

The section of the emsm looks like this per default:

[emsm]
user = "minecraft"
timeout = "0"
screenrc = ""
multiplexer = "screen"
log_level = "info"

The configuration section of each plugin is titled with the plugin's
name.`

const serverEpilog = `["server name"]
url = "string"
start_command = "string"

emsm comes with tested default settings for each server,
so you should only overwrite these values if you have to.`

const worldEpilog = `This configuration file contains the configuration for the world

    **%s**

This file can be used to override global configuration values in
the server.conf and main.conf configuration files.

[world]
stop_timeout = "int"
stop_message = "string"
stop_delay = "int"
server = "a server in server.conf"
port = "int or <auto>"

Custom options for the initd plugin:

["plugin:initd"]
enable = "true"

Custom options for the vanilla 1.8 server:

["server:vanilla 1.8"]
start_command = "java -Xms512m -Xmx1G -jar {server_exe} nogui"`

// Manager owns every configuration file of an instance.
type Manager struct {
	dir    string
	log    *zap.Logger
	main   *File
	server *File
	worlds map[string]*File
}

// NewManager discovers the configuration files in dir. Nothing is read
// until Read is called. World files whose name starts with an underscore
// are ignored.
func NewManager(dir string, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		dir:    dir,
		log:    log,
		main:   newMainFile(filepath.Join(dir, MainFile)),
		server: NewFile(filepath.Join(dir, ServerFile), serverEpilog),
		worlds: make(map[string]*File),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "_") || !strings.HasSuffix(name, WorldSuffix) {
			continue
		}
		world := strings.TrimSuffix(name, WorldSuffix)
		if world == "" {
			continue
		}
		m.worlds[world] = newWorldFile(filepath.Join(dir, name), world)
	}
	return m, nil
}

func newMainFile(path string) *File {
	f := NewFile(path, mainEpilog)
	s := f.Section("emsm")
	s.Set("user", DefaultUser)
	s.Set("timeout", DefaultTimeout)
	s.Set("screenrc", "")
	s.Set("multiplexer", DefaultMultiplexer)
	s.Set("log_level", DefaultLogLevel)
	return f
}

func newWorldFile(path, world string) *File {
	f := NewFile(path, fmt.Sprintf(worldEpilog, world))
	s := f.Section("world")
	s.Set("stop_timeout", DefaultStopTimeout)
	s.Set("stop_delay", DefaultStopDelay)
	s.Set("stop_message", DefaultStopMessage)
	s.Set("server", DefaultServer)
	s.Set("port", DefaultPort)
	return f
}

// Dir returns the configuration directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Main returns main.conf.
func (m *Manager) Main() *File {
	return m.main
}

// Server returns server.conf.
func (m *Manager) Server() *File {
	return m.server
}

// World returns the file of the named world, or nil.
func (m *Manager) World(name string) *File {
	return m.worlds[name]
}

// Worlds returns the names of all configured worlds in sorted order.
func (m *Manager) Worlds() []string {
	names := make([]string, 0, len(m.worlds))
	for name := range m.worlds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddWorld registers a world file with default values and returns it.
// An existing file is returned unchanged.
func (m *Manager) AddWorld(name string) *File {
	if f, ok := m.worlds[name]; ok {
		return f
	}
	f := newWorldFile(filepath.Join(m.dir, name+WorldSuffix), name)
	m.worlds[name] = f
	return f
}

// Read reads main.conf, server.conf and every world file, in that order.
func (m *Manager) Read() error {
	m.log.Info("reading configuration", zap.String("dir", m.dir))

	if err := m.main.Read(); err != nil {
		return err
	}
	if err := m.server.Read(); err != nil {
		return err
	}
	for _, name := range m.Worlds() {
		if err := m.worlds[name].Read(); err != nil {
			return err
		}
	}
	return nil
}

// Write stores every file.
func (m *Manager) Write() error {
	m.log.Info("writing configuration", zap.String("dir", m.dir))

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", m.dir, err)
	}
	if err := m.main.Write(); err != nil {
		return err
	}
	if err := m.server.Write(); err != nil {
		return err
	}
	for _, name := range m.Worlds() {
		if err := m.worlds[name].Write(); err != nil {
			return err
		}
	}
	return nil
}

// named is implemented by signal senders that carry a world name.
type named interface {
	Name() string
}

// HandleSignal forgets the file of an uninstalled world so a later
// Write does not recreate it.
func (m *Manager) HandleSignal(sig eventbus.Signal, sender any) error {
	if sig != eventbus.WorldUninstalled {
		return nil
	}
	w, ok := sender.(named)
	if !ok {
		return nil
	}
	if _, ok := m.worlds[w.Name()]; ok {
		delete(m.worlds, w.Name())
		m.log.Debug("dropped world configuration", zap.String("world", w.Name()))
	}
	return nil
}
