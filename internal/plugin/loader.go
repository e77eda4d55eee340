package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/emsm/emsm/internal/eventbus"
	"github.com/emsm/emsm/internal/util"
	"github.com/emsm/emsm/internal/version"
)

// Registration is a plugin name bound to its class.
type Registration struct {
	Name  string
	Class Class

	// Descriptor is nil for built-in plugins.
	Descriptor *Descriptor

	// Instance is set by InstantiateAll.
	Instance Plugin
}

// InitPriority returns the class priority unless the descriptor
// overrides it.
func (r *Registration) InitPriority() int {
	if r.Descriptor != nil && r.Descriptor.InitPriority != nil {
		return *r.Descriptor.InitPriority
	}
	return r.Class.InitPriority
}

// FinishPriority returns the class priority unless the descriptor
// overrides it.
func (r *Registration) FinishPriority() int {
	if r.Descriptor != nil && r.Descriptor.FinishPriority != nil {
		return *r.Descriptor.FinishPriority
	}
	return r.Class.FinishPriority
}

// Hidden reports whether the plugin has no subcommand.
func (r *Registration) Hidden() bool {
	if r.Descriptor != nil && r.Descriptor.Hidden != nil {
		return *r.Descriptor.Hidden
	}
	return r.Class.Hidden
}

// Description returns the descriptor description, else the class one.
func (r *Registration) Description() string {
	if r.Descriptor != nil && r.Descriptor.Description != "" {
		return r.Descriptor.Description
	}
	return r.Class.Description
}

// Version returns the version the plugin declares.
func (r *Registration) Version() string {
	if r.Descriptor != nil && r.Descriptor.Version != "" {
		return r.Descriptor.Version
	}
	return r.Class.Version
}

// Loader holds the plugins of a run by name.
type Loader struct {
	catalog     *Catalog
	host        Host
	log         *zap.Logger
	hostVersion string
	regs        map[string]*Registration
}

// NewLoader creates an empty loader and subscribes it to
// PluginUninstalled.
func NewLoader(catalog *Catalog, h Host) *Loader {
	l := &Loader{
		catalog:     catalog,
		host:        h,
		log:         h.Logger().Named("plugin"),
		hostVersion: version.Version,
		regs:        make(map[string]*Registration),
	}
	h.Bus().Connect(eventbus.PluginUninstalled, l)
	return l
}

// Catalog returns the classes available to descriptors.
func (l *Loader) Catalog() *Catalog {
	return l.catalog
}

// AddBuiltin loads the class with the given ID under name, without a
// descriptor file.
func (l *Loader) AddBuiltin(name, classID string) error {
	class, ok := l.catalog.Lookup(classID)
	if !ok {
		return &ImplementationError{Plugin: name, Reason: fmt.Sprintf("no plugin class %q", classID)}
	}
	return l.add(&Registration{Name: name, Class: class})
}

// Import loads the descriptor at path.
func (l *Loader) Import(path string) error {
	desc, err := ReadDescriptor(path)
	if err != nil {
		return err
	}
	class, ok := l.catalog.Lookup(desc.Plugin)
	if !ok {
		return &ImplementationError{
			Plugin: desc.Name,
			Reason: fmt.Sprintf("the declared plugin class %q does not exist", desc.Plugin),
		}
	}
	return l.add(&Registration{Name: desc.Name, Class: class, Descriptor: desc})
}

func (l *Loader) add(reg *Registration) error {
	if _, ok := l.regs[reg.Name]; ok {
		return &ImplementationError{Plugin: reg.Name, Reason: "a plugin with this name is already loaded"}
	}
	if v := reg.Version(); !version.CompatibleWith(l.hostVersion, v) {
		return &OutdatedError{Plugin: reg.Name, Version: v, Host: l.hostVersion}
	}
	l.regs[reg.Name] = reg
	return nil
}

// ScanDirectory imports every descriptor file in dir. A broken plugin is
// logged and skipped; the scan itself only fails when dir cannot be
// listed. A missing directory holds no plugins.
func (l *Loader) ScanDirectory(dir string) error {
	l.log.Info("loading plugins", zap.String("dir", dir))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("listing plugins in %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !IsDescriptorFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := l.Import(path); err != nil {
			l.log.Warn("skipped plugin", zap.String("path", path), zap.Error(err))
			continue
		}
		l.log.Info("loaded plugin", zap.String("path", path))
	}
	return nil
}

// InstantiateAll creates an instance of every loaded plugin that has
// none yet, in ascending init priority.
func (l *Loader) InstantiateAll() error {
	queue := l.sorted(func(r *Registration) int { return r.InitPriority() })
	for _, reg := range queue {
		if reg.Instance != nil {
			continue
		}
		l.log.Debug("initialising plugin", zap.String("plugin", reg.Name))
		p, err := reg.Class.New(l.host, reg.Name, reg.Descriptor)
		if err != nil {
			return fmt.Errorf("initialising plugin %s: %w", reg.Name, err)
		}
		reg.Instance = p
	}
	return nil
}

// Dispatch runs the named plugin. An empty name selects nothing and is
// not an error.
func (l *Loader) Dispatch(ctx context.Context, name string, args Args) error {
	if name == "" {
		l.log.Info("no plugin selected")
		return nil
	}
	reg, err := l.Get(name)
	if err != nil {
		return err
	}
	if reg.Instance == nil {
		return fmt.Errorf("plugin %s is not initialised", name)
	}
	l.log.Info("running plugin", zap.String("plugin", name))
	return reg.Instance.Run(ctx, args)
}

// FinishAll calls Finish on every instance in ascending finish priority.
// All plugins are finished; the first error is returned.
func (l *Loader) FinishAll(ctx context.Context) error {
	var first error
	for _, reg := range l.sorted(func(r *Registration) int { return r.FinishPriority() }) {
		if reg.Instance == nil {
			continue
		}
		if err := reg.Instance.Finish(ctx); err != nil {
			l.log.Error("finishing plugin failed", zap.String("plugin", reg.Name), zap.Error(err))
			if first == nil {
				first = fmt.Errorf("finishing plugin %s: %w", reg.Name, err)
			}
		}
	}
	return first
}

// sorted returns the registrations ordered by key, ties by name.
func (l *Loader) sorted(key func(*Registration) int) []*Registration {
	out := make([]*Registration, 0, len(l.regs))
	for _, reg := range l.regs {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := key(out[i]), key(out[j])
		if ki != kj {
			return ki < kj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Get returns the registration of the named plugin.
func (l *Loader) Get(name string) (*Registration, error) {
	reg, ok := l.regs[name]
	if !ok {
		return nil, &LookupError{Name: name}
	}
	return reg, nil
}

// Plugin returns the instance of the named plugin, or nil.
func (l *Loader) Plugin(name string) Plugin {
	if reg, ok := l.regs[name]; ok {
		return reg.Instance
	}
	return nil
}

// Available reports whether a plugin called name is loaded.
func (l *Loader) Available(name string) bool {
	_, ok := l.regs[name]
	return ok
}

// Names returns the loaded plugin names in sorted order.
func (l *Loader) Names() []string {
	names := make([]string, 0, len(l.regs))
	for name := range l.regs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registrations returns all registrations sorted by name.
func (l *Loader) Registrations() []*Registration {
	out := make([]*Registration, 0, len(l.regs))
	for _, name := range l.Names() {
		out = append(out, l.regs[name])
	}
	return out
}

// Remove unloads the named plugin, finishing it first when finish is set.
func (l *Loader) Remove(ctx context.Context, name string, finish bool) error {
	reg, ok := l.regs[name]
	if !ok {
		return nil
	}
	if finish && reg.Instance != nil {
		if err := reg.Instance.Finish(ctx); err != nil {
			return err
		}
	}
	delete(l.regs, name)
	l.log.Info("unloaded plugin", zap.String("plugin", name))
	return nil
}

// Uninstall removes the named plugin after confirmation: its descriptor
// file, optionally its data directory and configuration, and finally the
// plugin's own state through Uninstaller. PluginUninstalled is emitted
// so the loader forgets it.
func (l *Loader) Uninstall(ctx context.Context, name string) error {
	reg, err := l.Get(name)
	if err != nil {
		return err
	}
	log := l.log.With(zap.String("plugin", name))

	ok, err := l.host.Confirm(fmt.Sprintf("Do you really want to remove %q?", name))
	if err != nil {
		return err
	}
	if !ok {
		log.Info("uninstallation cancelled")
		return nil
	}

	if reg.Descriptor != nil {
		if err := os.Remove(reg.Descriptor.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", reg.Descriptor.Path, err)
		}
		log.Info("removed descriptor", zap.String("path", reg.Descriptor.Path))
	}

	if ok, err := l.host.Confirm("Do you want to remove the data directory?"); err != nil {
		return err
	} else if ok {
		dir := l.host.Paths().PluginData(name)
		if err := util.RemoveAll(ctx, dir); err != nil {
			return fmt.Errorf("removing %s: %w", dir, err)
		}
		log.Info("removed data directory", zap.String("dir", dir))
	}

	if ok, err := l.host.Confirm("Do you want to remove the configuration?"); err != nil {
		return err
	} else if ok {
		conf := l.host.Config()
		conf.Main().RemoveSection(name)
		for _, w := range conf.Worlds() {
			conf.World(w).RemoveSection(WorldSection(name))
		}
		log.Info("removed configuration")
	}

	if u, ok := reg.Instance.(Uninstaller); ok {
		if err := u.Uninstall(ctx); err != nil {
			return err
		}
	}
	return l.host.Bus().Emit(eventbus.PluginUninstalled, reg)
}

// HandleSignal forgets uninstalled plugins.
func (l *Loader) HandleSignal(sig eventbus.Signal, sender any) error {
	if sig != eventbus.PluginUninstalled {
		return nil
	}
	reg, ok := sender.(*Registration)
	if !ok || l.regs[reg.Name] != reg {
		return nil
	}
	return l.Remove(context.Background(), reg.Name, false)
}
