// Package app wires the components of an emsm run together.
//
// A run has three phases. Setup reads the configuration, drops
// privileges, takes the instance lock and loads servers, worlds and
// plugins. Run dispatches the selected plugin. Finish finishes every
// plugin, stores the configuration and releases the lock.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/emsm/emsm/internal/config"
	"github.com/emsm/emsm/internal/eventbus"
	"github.com/emsm/emsm/internal/lock"
	"github.com/emsm/emsm/internal/logging"
	"github.com/emsm/emsm/internal/paths"
	"github.com/emsm/emsm/internal/plugin"
	"github.com/emsm/emsm/internal/screen"
	"github.com/emsm/emsm/internal/server"
	"github.com/emsm/emsm/internal/session"
	"github.com/emsm/emsm/internal/tmux"
	"github.com/emsm/emsm/internal/ui"
	"github.com/emsm/emsm/internal/version"
	"github.com/emsm/emsm/internal/world"
)

// TmuxSocket is the tmux server used when [emsm] multiplexer = tmux.
const TmuxSocket = "emsm"

// Options configure an Application.
type Options struct {
	// InstanceDir is the root of the instance. Empty means the working
	// directory.
	InstanceDir string

	// Out receives user-facing output. Defaults to os.Stdout.
	Out io.Writer

	// Sessions overrides the multiplexer selected in main.conf.
	Sessions session.Host

	// Confirm overrides the terminal prompt.
	Confirm func(question string) (bool, error)

	// Choose overrides the terminal selection menu.
	Choose func(question string, options []string) (int, error)

	// Builtins overrides the built-in plugins. Nil means Builtins().
	Builtins []Builtin
}

// Application is the context of one emsm run. It implements plugin.Host.
type Application struct {
	opts Options

	paths    *paths.Layout
	lock     *lock.AppLock
	log      *zap.Logger
	runID    string
	conf     *config.Manager
	bus      *eventbus.Bus
	sessions session.Host
	flavors  *server.Registry
	worlds   *world.Registry
	catalog  *plugin.Catalog
	loader   *plugin.Loader

	exitCode int
}

var _ plugin.Host = (*Application)(nil)

// New returns an application that has not been set up.
func New(opts Options) *Application {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Confirm == nil {
		opts.Confirm = ui.Confirm
	}
	if opts.Choose == nil {
		opts.Choose = ui.Choose
	}
	if opts.Builtins == nil {
		opts.Builtins = Builtins()
	}
	return &Application{opts: opts, log: zap.NewNop(), bus: eventbus.New()}
}

// Setup initialises every component. It blocks until the instance lock
// is free or the [emsm] timeout has passed.
func (a *Application) Setup(ctx context.Context) error {
	dir := a.opts.InstanceDir
	if dir == "" {
		dir = "."
	}
	layout, err := paths.New(dir)
	if err != nil {
		return err
	}
	a.paths = layout
	a.lock = lock.New(layout.Lock())

	// The settings needed before the lock is held come from a first read.
	// The files are read again once no other run can change them.
	early, err := config.NewManager(layout.Conf(), nil)
	if err != nil {
		return err
	}
	if err := early.Read(); err != nil {
		return err
	}
	emsm := early.Main().Section("emsm")

	if err := switchUser(emsm.String("user", config.DefaultUser)); err != nil {
		return err
	}
	if err := layout.Create(); err != nil {
		return err
	}

	timeout, err := emsm.Int("timeout", 0)
	if err != nil {
		return err
	}
	if err := a.lock.Acquire(ctx, time.Duration(timeout)*time.Second); err != nil {
		return err
	}

	a.runID = logging.RunID()
	log, err := logging.New(layout.LogFile(), emsm.String("log_level", config.DefaultLogLevel), a.runID)
	if err != nil {
		return err
	}
	a.log = log
	a.log.Info("setting up", zap.String("version", version.Version), zap.String("instance", layout.Instance()))

	if a.conf, err = config.NewManager(layout.Conf(), a.log); err != nil {
		return err
	}
	if err := a.conf.Read(); err != nil {
		return err
	}
	a.bus.Connect(eventbus.WorldUninstalled, a.conf)

	if a.sessions, err = a.multiplexer(); err != nil {
		return err
	}

	a.flavors = server.NewRegistry(layout.Server(), a.conf.Server(), a.log)
	if err := a.flavors.RegisterBuiltin(); err != nil {
		return err
	}
	a.worlds = world.NewRegistry(world.RegistryConfig{
		Root:    layout.Worlds(),
		Configs: a.conf,
		Flavors: a.flavors,
		Host:    a.sessions,
		Bus:     a.bus,
		Log:     a.log,
	})
	a.flavors.SetOnlineChecker(a.worlds)
	if err := a.worlds.Load(); err != nil {
		return err
	}

	return a.loadPlugins()
}

// multiplexer returns the session host named by [emsm] multiplexer.
func (a *Application) multiplexer() (session.Host, error) {
	if a.opts.Sessions != nil {
		return a.opts.Sessions, nil
	}
	name := a.conf.Main().Section("emsm").String("multiplexer", config.DefaultMultiplexer)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "screen":
		return screen.New(), nil
	case "tmux":
		return tmux.New(TmuxSocket), nil
	default:
		return nil, fmt.Errorf("[emsm] multiplexer: unknown multiplexer %q (want screen or tmux)", name)
	}
}

func (a *Application) loadPlugins() error {
	a.catalog = plugin.NewCatalog()
	for _, c := range Classes() {
		if err := a.catalog.Register(c); err != nil {
			return err
		}
	}
	for _, b := range a.opts.Builtins {
		if _, ok := a.catalog.Lookup(b.Class.ID); !ok {
			if err := a.catalog.Register(b.Class); err != nil {
				return err
			}
		}
	}

	a.loader = plugin.NewLoader(a.catalog, a)
	for _, b := range a.opts.Builtins {
		if err := a.loader.AddBuiltin(b.Name, b.Class.ID); err != nil {
			return err
		}
	}
	if err := a.loader.ScanDirectory(a.paths.Plugins()); err != nil {
		return err
	}
	return a.loader.InstantiateAll()
}

// Run dispatches the named plugin. An empty name runs nothing.
func (a *Application) Run(ctx context.Context, name string, args plugin.Args) error {
	return a.loader.Dispatch(ctx, name, args)
}

// Finish finishes every plugin and, unless the run failed, writes the
// configuration. The lock is always released. Finish is safe after a
// failed or partial Setup.
func (a *Application) Finish(ctx context.Context, failed bool) error {
	var first error
	if a.loader != nil {
		first = a.loader.FinishAll(ctx)
	}
	if a.conf != nil && !failed && first == nil {
		if err := a.conf.Write(); err != nil {
			first = err
		}
	}
	if a.lock != nil {
		if err := a.lock.Release(); err != nil && first == nil {
			first = err
		}
	}
	a.log.Info("finished", zap.Int("exit_code", a.exitCode), zap.Bool("failed", failed || first != nil))
	_ = a.log.Sync()
	return first
}

// ExitCode returns the exit code plugins set for a successful run.
func (a *Application) ExitCode() int { return a.exitCode }

// LogFile returns the log path, or "" before Setup.
func (a *Application) LogFile() string {
	if a.paths == nil {
		return ""
	}
	return a.paths.LogFile()
}

func (a *Application) Paths() *paths.Layout { return a.paths }
func (a *Application) Config() *config.Manager { return a.conf }
func (a *Application) Bus() *eventbus.Bus { return a.bus }
func (a *Application) Worlds() *world.Registry { return a.worlds }
func (a *Application) Servers() *server.Registry { return a.flavors }
func (a *Application) Plugins() *plugin.Loader { return a.loader }
func (a *Application) Logger() *zap.Logger { return a.log }
func (a *Application) Out() io.Writer { return a.opts.Out }
func (a *Application) SetExitCode(code int) { a.exitCode = code }
func (a *Application) Sessions() session.Host { return a.sessions }
func (a *Application) Confirm(q string) (bool, error) { return a.opts.Confirm(q) }

func (a *Application) Choose(q string, options []string) (int, error) {
	return a.opts.Choose(q, options)
}
