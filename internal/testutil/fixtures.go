// Package testutil provides a complete emsm instance for tests of code
// that runs on top of the application.
package testutil

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/emsm/emsm/internal/config"
	"github.com/emsm/emsm/internal/eventbus"
	"github.com/emsm/emsm/internal/paths"
	"github.com/emsm/emsm/internal/plugin"
	"github.com/emsm/emsm/internal/server"
	"github.com/emsm/emsm/internal/session"
	"github.com/emsm/emsm/internal/world"
)

// TestFlavor is the server every fixture world runs. Installing it writes
// an empty jar; the start command is never executed.
const TestFlavor = "test"

// Instance is an emsm instance in a temporary directory, hosting worlds in
// a session.Double. It implements plugin.Host.
type Instance struct {
	Root     string
	Layout   *paths.Layout
	Conf     *config.Manager
	Flavors  *server.Registry
	Sessions *session.Double
	EventBus *eventbus.Bus
	Registry *world.Registry
	Catalog  *plugin.Catalog
	Loader   *plugin.Loader
	Logs     *observer.ObservedLogs

	// Output collects everything written to Out.
	Output bytes.Buffer

	// Answers are returned by Confirm in order; once used up Confirm
	// answers no. Questions records what was asked.
	Answers   []bool
	Questions []string

	// Choices are returned by Choose in order; once used up Choose
	// picks nothing (-1). Menus records the offered options.
	Choices []int
	Menus   [][]string

	// ExitCode is the last value passed to SetExitCode.
	ExitCode int

	log *zap.Logger
	t   *testing.T
}

var _ plugin.Host = (*Instance)(nil)

// NewInstance creates an instance with the given worlds, each run by
// TestFlavor with stop_timeout=1, stop_delay=0 and ports from 25570 up.
// Sessions exit when they receive "stop".
func NewInstance(t *testing.T, worlds ...string) *Instance {
	t.Helper()

	root := t.TempDir()
	layout, err := paths.New(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := layout.Create(); err != nil {
		t.Fatal(err)
	}

	core, logs := observer.New(zap.DebugLevel)
	log := zap.New(core)

	conf, err := config.NewManager(layout.Conf(), log)
	if err != nil {
		t.Fatal(err)
	}
	for i, name := range worlds {
		sec := conf.AddWorld(name).Section("world")
		sec.Set("server", TestFlavor)
		sec.Set("stop_timeout", "1")
		sec.Set("stop_delay", "0")
		sec.Set("port", strconv.Itoa(25570+i))
	}

	flavors := server.NewRegistry(layout.Server(), conf.Server(), log)
	if _, err := flavors.Register(Definition(TestFlavor)); err != nil {
		t.Fatal(err)
	}

	inst := &Instance{
		Root:     root,
		Layout:   layout,
		Conf:     conf,
		Flavors:  flavors,
		Sessions: session.NewDouble(),
		EventBus: eventbus.New(),
		Catalog:  plugin.NewCatalog(),
		Logs:     logs,
		log:      log,
		t:        t,
	}
	inst.Sessions.OnText = func(name, text string) {
		if text == "stop" {
			inst.Sessions.Exit(name)
		}
	}
	inst.EventBus.Connect(eventbus.WorldUninstalled, conf)
	inst.Registry = world.NewRegistry(world.RegistryConfig{
		Root:    layout.Worlds(),
		Configs: conf,
		Flavors: flavors,
		Host:    inst.Sessions,
		Bus:     inst.EventBus,
		Log:     log,
	})
	flavors.SetOnlineChecker(inst.Registry)
	if err := inst.Registry.Load(); err != nil {
		t.Fatal(err)
	}
	inst.Loader = plugin.NewLoader(inst.Catalog, inst)
	return inst
}

// Definition returns a flavor that installs an empty jar and merges
// server.properties like the vanilla server.
func Definition(name string) server.Definition {
	return server.Definition{
		Name:           name,
		LogPath:        "logs/latest.log",
		StartPattern:   `^.*Starting minecraft server version.*`,
		ErrorPattern:   `.* \[SEVERE\] .*`,
		StartCommand:   "java -jar " + server.PlaceholderExe + " nogui",
		PropertiesFile: "server.properties",
		Address:        server.PropertiesAddress,
		Exe:            func(dir string) (string, error) { return filepath.Join(dir, "server.jar"), nil },
		Install: func(ctx context.Context, f *server.Flavor) error {
			exe, _ := f.ExePath()
			if err := os.MkdirAll(f.Directory(), 0755); err != nil {
				return err
			}
			return os.WriteFile(exe, nil, 0644)
		},
	}
}

// World returns the named world or fails the test.
func (i *Instance) World(name string) *world.World {
	i.t.Helper()
	w, err := i.Registry.Get(name)
	if err != nil {
		i.t.Fatal(err)
	}
	return w
}

// StartWorld starts the named world or fails the test.
func (i *Instance) StartWorld(name string) *world.World {
	i.t.Helper()
	w := i.World(name)
	if err := w.Start(context.Background(), world.StartOptions{}); err != nil {
		i.t.Fatalf("starting %s: %v", name, err)
	}
	return w
}

func (i *Instance) Paths() *paths.Layout { return i.Layout }
func (i *Instance) Config() *config.Manager { return i.Conf }
func (i *Instance) Bus() *eventbus.Bus { return i.EventBus }
func (i *Instance) Worlds() *world.Registry { return i.Registry }
func (i *Instance) Servers() *server.Registry { return i.Flavors }
func (i *Instance) Plugins() *plugin.Loader { return i.Loader }
func (i *Instance) Logger() *zap.Logger { return i.log }
func (i *Instance) Out() io.Writer { return &i.Output }
func (i *Instance) SetExitCode(code int) { i.ExitCode = code }

// Confirm pops the next answer.
func (i *Instance) Confirm(question string) (bool, error) {
	i.Questions = append(i.Questions, question)
	if len(i.Answers) == 0 {
		return false, nil
	}
	ok := i.Answers[0]
	i.Answers = i.Answers[1:]
	return ok, nil
}

// Choose pops the next choice.
func (i *Instance) Choose(question string, options []string) (int, error) {
	i.Questions = append(i.Questions, question)
	i.Menus = append(i.Menus, options)
	if len(i.Choices) == 0 {
		return -1, nil
	}
	c := i.Choices[0]
	i.Choices = i.Choices[1:]
	return c, nil
}

// RequireBinary skips the test when name is not on PATH.
func RequireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not installed", name)
	}
}
