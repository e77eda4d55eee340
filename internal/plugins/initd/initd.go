// Package initd implements the built-in plugin called by the init system.
// It starts, stops and restarts every world whose [plugin:initd] section
// enables it, and sets a non-zero exit code when one of them fails.
package initd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emsm/emsm/internal/plugin"
	"github.com/emsm/emsm/internal/style"
	"github.com/emsm/emsm/internal/version"
	"github.com/emsm/emsm/internal/world"
)

// ExitFailed is the exit code of a run in which a world failed.
const ExitFailed = 2

const description = `Interface for the init system.

Enable a world in its configuration file:

    [plugin:initd]
    enable = "yes"

*emsm initd --start* is run at boot, *--stop* at shutdown. Stopping kills
worlds that do not stop in time, since the system will do so anyway.`

// Class is the initd plugin class. It finishes after every other
// plugin so their Finish hooks see the worlds in their final state.
var Class = plugin.Class{
	ID:             "initd",
	Version:        version.Version,
	Description:    description,
	FinishPriority: 100,
	New:            New,
}

// Plugin is the initd plugin.
type Plugin struct {
	plugin.Base

	start, stop, restart, status bool
}

func New(h plugin.Host, name string, _ *plugin.Descriptor) (plugin.Plugin, error) {
	return &Plugin{Base: plugin.NewBase(h, name)}, nil
}

func (p *Plugin) Command(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVar(&p.start, "start", false, "start all worlds with initd enabled")
	f.BoolVar(&p.stop, "stop", false, "stop all worlds with initd enabled")
	f.BoolVar(&p.restart, "restart", false, "restart all worlds with initd enabled")
	f.BoolVar(&p.status, "status", false, "print the status of all worlds with initd enabled")
	cmd.MarkFlagsMutuallyExclusive("start", "stop", "restart", "status")
}

// Enabled returns the worlds with initd enabled, sorted by name. The
// enable option is written to every world file so it is easy to find.
func (p *Plugin) Enabled() ([]*world.World, error) {
	var out []*world.World
	for _, w := range p.Host().Worlds().All() {
		conf := p.WorldConf(w)
		enable, err := conf.Bool("enable", false)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", w.Name(), err)
		}
		if enable {
			conf.Set("enable", "yes")
			out = append(out, w)
		} else {
			conf.Set("enable", "no")
		}
	}
	return out, nil
}

func (p *Plugin) Run(ctx context.Context, args plugin.Args) error {
	worlds, err := p.Enabled()
	if err != nil {
		return err
	}
	out := p.Host().Out()
	switch {
	case p.start:
		p.each(ctx, out, worlds, "starting", func(w *world.World) error {
			return w.Start(ctx, world.StartOptions{})
		})
	case p.stop:
		p.each(ctx, out, worlds, "stopping", func(w *world.World) error {
			opts := w.DefaultStopOptions()
			opts.Force = true
			return w.Stop(ctx, opts)
		})
	case p.restart:
		p.each(ctx, out, worlds, "restarting", func(w *world.World) error {
			opts := w.DefaultStopOptions()
			opts.Force = true
			return w.Restart(ctx, opts)
		})
	case p.status:
		for _, w := range worlds {
			online, err := w.IsOnline()
			if err != nil {
				return err
			}
			if online {
				fmt.Fprintf(out, "[ %s ] the minecraft world '%s' is online.\n", style.Success.Render("ok  "), w.Name())
			} else {
				fmt.Fprintf(out, "[ %s ] the minecraft world '%s' is offline.\n", style.Error.Render("fail"), w.Name())
			}
		}
	}
	return ctx.Err()
}

// each applies fn to every world, printing one status line per world.
func (p *Plugin) each(ctx context.Context, out io.Writer, worlds []*world.World, verb string, fn func(*world.World) error) {
	p.Log().Info("initd "+verb, zap.Int("worlds", len(worlds)))
	for _, w := range worlds {
		if ctx.Err() != nil {
			return
		}
		msg := fmt.Sprintf("%s the minecraft world '%s'", verb, w.Name())
		if err := fn(w); err != nil {
			p.Log().Error("initd failed", zap.String("world", w.Name()), zap.Error(err))
			fmt.Fprintf(out, "[ %s ] %s\n", style.Error.Render("fail"), msg)
			p.Host().SetExitCode(ExitFailed)
			continue
		}
		fmt.Fprintf(out, "[ %s ] %s\n", style.Success.Render("ok  "), msg)
	}
}
