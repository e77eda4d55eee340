// Package exec implements plugins backed by an external executable.
//
// A descriptor selects the class and names the programs:
//
//	plugin = "exec"
//	version = "5.0"
//	description = "Renders the world map."
//
//	[options]
//	run = "/usr/local/bin/render-map --quiet"
//	finish = "/usr/local/bin/render-map --cleanup"
//
// run is executed when the plugin's subcommand is selected, with the
// positional arguments appended. finish, when set, is executed at the end
// of every emsm run. Both are split like a shell would split them but are
// not run through a shell.
package exec

import (
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emsm/emsm/internal/exitcode"
	"github.com/emsm/emsm/internal/plugin"
	"github.com/emsm/emsm/internal/version"
)

// Environment variables handed to the programs.
const (
	EnvRoot    = "EMSM_ROOT"
	EnvPlugin  = "EMSM_PLUGIN"
	EnvDataDir = "EMSM_DATA_DIR"
	EnvWorlds  = "EMSM_WORLDS"
	EnvServers = "EMSM_SERVERS"
)

// Class is the exec plugin class. It is only loaded through descriptors.
var Class = plugin.Class{
	ID:          "exec",
	Version:     version.Version,
	Description: "Runs an external program.",
	New:         New,
}

// Plugin runs the programs named in its descriptor.
type Plugin struct {
	plugin.Base

	run    []string
	finish []string
}

func New(h plugin.Host, name string, desc *plugin.Descriptor) (plugin.Plugin, error) {
	if desc == nil {
		return nil, &plugin.ImplementationError{Plugin: name, Reason: "exec plugins need a descriptor"}
	}
	p := &Plugin{Base: plugin.NewBase(h, name)}

	var err error
	if p.run, err = split(desc.Option("run")); err != nil {
		return nil, &plugin.ImplementationError{Plugin: name, Reason: "option run", Err: err}
	}
	if len(p.run) == 0 {
		return nil, &plugin.ImplementationError{Plugin: name, Reason: "option run is empty"}
	}
	if p.finish, err = split(desc.Option("finish")); err != nil {
		return nil, &plugin.ImplementationError{Plugin: name, Reason: "option finish", Err: err}
	}
	return p, nil
}

func split(cmdline string) ([]string, error) {
	if strings.TrimSpace(cmdline) == "" {
		return nil, nil
	}
	return shlex.Split(cmdline)
}

// Command passes every positional argument on to the program.
func (p *Plugin) Command(cmd *cobra.Command) {
	cmd.Args = cobra.ArbitraryArgs
}

func (p *Plugin) Run(ctx context.Context, args plugin.Args) error {
	env, err := p.environ(args)
	if err != nil {
		return err
	}
	argv := append(append([]string(nil), p.run...), args.Positional...)
	return p.exec(ctx, argv, env)
}

func (p *Plugin) Finish(ctx context.Context) error {
	if len(p.finish) == 0 {
		return nil
	}
	env, err := p.environ(plugin.Args{})
	if err != nil {
		return err
	}
	return p.exec(ctx, p.finish, env)
}

// environ resolves the world and server selection so the program sees
// concrete names instead of --all-worlds.
func (p *Plugin) environ(args plugin.Args) ([]string, error) {
	dir, err := p.DataDir(true)
	if err != nil {
		return nil, err
	}
	env := append(os.Environ(),
		EnvRoot+"="+p.Host().Paths().Instance(),
		EnvPlugin+"="+p.Name(),
		EnvDataDir+"="+dir,
	)

	if len(args.Worlds) > 0 || args.AllWorlds {
		worlds, err := p.Host().Worlds().Selected(args.Worlds, args.AllWorlds)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(worlds))
		for i, w := range worlds {
			names[i] = w.Name()
		}
		env = append(env, EnvWorlds+"="+strings.Join(names, "\n"))
	}
	if len(args.Servers) > 0 || args.AllServers {
		flavors, err := p.Host().Servers().Selected(args.Servers, args.AllServers)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(flavors))
		for i, f := range flavors {
			names[i] = f.Name()
		}
		env = append(env, EnvServers+"="+strings.Join(names, "\n"))
	}
	return env, nil
}

// exec runs argv in the data directory with the output going to the
// terminal. A non-zero exit status becomes the exit code of the run.
func (p *Plugin) exec(ctx context.Context, argv, env []string) error {
	dir, err := p.DataDir(true)
	if err != nil {
		return err
	}
	cmd := osexec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = p.Host().Out()
	cmd.Stderr = p.Host().Out()

	log := p.Log().With(zap.Strings("argv", argv))
	log.Info("running program")
	err = cmd.Run()

	var exitErr *osexec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		log.Warn("program failed", zap.Int("status", code))
		if code < 0 {
			code = exitcode.ErrGeneral
		}
		p.Host().SetExitCode(code)
		return nil
	}
	if err != nil {
		return exitcode.Wrap(exitcode.ErrGeneral, fmt.Sprintf("running %s", argv[0]), err)
	}
	return nil
}
