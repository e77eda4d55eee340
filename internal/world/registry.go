package world

import (
	"fmt"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/emsm/emsm/internal/config"
	"github.com/emsm/emsm/internal/eventbus"
	"github.com/emsm/emsm/internal/server"
	"github.com/emsm/emsm/internal/session"
)

// RegistryConfig holds the collaborators shared by all worlds.
type RegistryConfig struct {
	// Root is the directory holding one directory per world.
	Root    string
	Configs *config.Manager
	Flavors *server.Registry
	Host    session.Host
	Bus     *eventbus.Bus
	Log     *zap.Logger
}

// Registry holds the worlds of the instance by name.
type Registry struct {
	cfg    RegistryConfig
	log    *zap.Logger
	worlds map[string]*World
}

// NewRegistry creates an empty registry and subscribes it to
// WorldUninstalled.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Bus == nil {
		cfg.Bus = eventbus.New()
	}
	r := &Registry{
		cfg:    cfg,
		log:    cfg.Log.Named("world"),
		worlds: make(map[string]*World),
	}
	cfg.Bus.Connect(eventbus.WorldUninstalled, r)
	return r
}

// Load creates a World for every world file and makes sure its directory
// exists. An invalid world file aborts the load.
func (r *Registry) Load() error {
	for _, name := range r.cfg.Configs.Worlds() {
		if _, ok := r.worlds[name]; ok {
			continue
		}
		w, err := r.newWorld(name)
		if err != nil {
			return err
		}
		if !w.IsInstalled() {
			if err := w.Install(); err != nil {
				return err
			}
		}
		r.worlds[name] = w
	}
	return nil
}

func (r *Registry) newWorld(name string) (*World, error) {
	file := r.cfg.Configs.World(name)
	if file == nil {
		return nil, fmt.Errorf("no configuration for world %q", name)
	}
	conf := file.Section("world")
	for _, key := range []string{"stop_timeout", "stop_delay"} {
		n, err := conf.Int(key, 0)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("%s: [world] %s must not be negative", name, key)
		}
	}
	flavor, err := r.cfg.Flavors.Get(conf.String("server", config.DefaultServer))
	if err != nil {
		return nil, fmt.Errorf("%s: [world] server: %w", name, err)
	}
	r.log.Debug("loaded world", zap.String("world", name), zap.String("server", flavor.Name()))
	return &World{
		name:    name,
		dir:     filepath.Join(r.cfg.Root, name),
		file:    file,
		conf:    conf,
		configs: r.cfg.Configs,
		flavor:  flavor,
		host:    r.cfg.Host,
		bus:     r.cfg.Bus,
		log:     r.log.With(zap.String("world", name)),
	}, nil
}

// Get returns the named world.
func (r *Registry) Get(name string) (*World, error) {
	w, ok := r.worlds[name]
	if !ok {
		return nil, &LookupError{Name: name}
	}
	return w, nil
}

// Names returns the world names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.worlds))
	for name := range r.worlds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every world, sorted by name.
func (r *Registry) All() []*World {
	out := make([]*World, 0, len(r.worlds))
	for _, name := range r.Names() {
		out = append(out, r.worlds[name])
	}
	return out
}

// Selected returns all worlds when all is set, otherwise exactly the
// named ones. An unknown name fails the whole selection.
func (r *Registry) Selected(names []string, all bool) ([]*World, error) {
	if all {
		return r.All(), nil
	}
	out := make([]*World, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		w, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, w)
		}
	}
	return out, nil
}

// Filter returns the worlds, sorted by name, for which keep is true.
func (r *Registry) Filter(keep func(*World) bool) []*World {
	var out []*World
	for _, w := range r.All() {
		if keep(w) {
			out = append(out, w)
		}
	}
	return out
}

// Online returns the worlds with a running session.
func (r *Registry) Online() ([]*World, error) {
	var firstErr error
	out := r.Filter(func(w *World) bool {
		online, err := w.IsOnline()
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return online
	})
	return out, firstErr
}

// UsingServer returns the worlds run by f.
func (r *Registry) UsingServer(f *server.Flavor) []*World {
	return r.Filter(func(w *World) bool { return w.Server() == f })
}

// FlavorOnline implements server.OnlineChecker.
func (r *Registry) FlavorOnline(f *server.Flavor) (bool, error) {
	for _, w := range r.UsingServer(f) {
		online, err := w.IsOnline()
		if err != nil {
			return false, err
		}
		if online {
			return true, nil
		}
	}
	return false, nil
}

// HandleSignal forgets uninstalled worlds.
func (r *Registry) HandleSignal(sig eventbus.Signal, sender any) error {
	if sig != eventbus.WorldUninstalled {
		return nil
	}
	if w, ok := sender.(*World); ok && r.worlds[w.name] == w {
		delete(r.worlds, w.name)
		r.log.Debug("dropped world", zap.String("world", w.name))
	}
	return nil
}
