// Package server implements the built-in plugin that manages the server
// software of the instance.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emsm/emsm/internal/exitcode"
	"github.com/emsm/emsm/internal/plugin"
	flavors "github.com/emsm/emsm/internal/server"
	"github.com/emsm/emsm/internal/style"
	"github.com/emsm/emsm/internal/version"
	"github.com/emsm/emsm/internal/world"
)

// DefaultUpdateMessage is said in the chat of worlds stopped for an update.
const DefaultUpdateMessage = "The server is going down for an update.\nCome back soon."

const description = `Manage the server software.

*--list* prints every supported server. *--usage* and *--update* act on
the servers selected with *--server* or *--all-servers*.

An update stops the online worlds using the server, reinstalls it and
starts the worlds again. If a world cannot be stopped the server is left
untouched.`

// Class is the server plugin class.
var Class = plugin.Class{
	ID:          "server",
	Version:     version.Version,
	Description: description,
	New:         New,
}

// Plugin is the server plugin.
type Plugin struct {
	plugin.Base

	updateMessage string

	list, usage, update bool
}

func New(h plugin.Host, name string, _ *plugin.Descriptor) (plugin.Plugin, error) {
	p := &Plugin{Base: plugin.NewBase(h, name)}
	p.updateMessage = p.GlobalConf().String("update_message", DefaultUpdateMessage)
	return p, nil
}

func (p *Plugin) Command(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVar(&p.list, "list", false, "print the names of all supported servers")
	f.BoolVar(&p.usage, "usage", false, "print the worlds powered by the server")
	f.BoolVar(&p.update, "update", false, "reinstall the server software")
	cmd.MarkFlagsMutuallyExclusive("list", "usage", "update")
}

func (p *Plugin) Run(ctx context.Context, args plugin.Args) error {
	out := p.Host().Out()
	if p.list {
		names := p.Host().Servers().Names()
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "* %s\n", name)
		}
		return nil
	}
	selected, err := p.Host().Servers().Selected(args.Servers, args.AllServers)
	if err != nil {
		return err
	}
	for _, f := range selected {
		switch {
		case p.usage:
			if err := p.printUsage(out, f); err != nil {
				return err
			}
		case p.update:
			if err := p.updateServer(ctx, out, f); err != nil {
				p.Log().Error("update failed", zap.String("server", f.Name()), zap.Error(err))
				p.Host().SetExitCode(exitcode.Code(err))
			}
		}
	}
	return ctx.Err()
}

func (p *Plugin) printUsage(out io.Writer, f *flavors.Flavor) error {
	worlds := p.Host().Worlds().UsingServer(f)
	var online, offline []string
	for _, w := range worlds {
		ok, err := w.IsOnline()
		if err != nil {
			return err
		}
		if ok {
			online = append(online, w.Name())
		} else {
			offline = append(offline, w.Name())
		}
	}
	fmt.Fprintln(out, style.Heading(f.Name()))
	fmt.Fprintf(out, "\t* %d worlds\n", len(worlds))
	fmt.Fprintf(out, "\t* %d online worlds\n", len(online))
	for _, name := range online {
		fmt.Fprintf(out, "\t\t- %s\n", name)
	}
	fmt.Fprintf(out, "\t* %d offline worlds\n", len(offline))
	for _, name := range offline {
		fmt.Fprintf(out, "\t\t- %s\n", name)
	}
	return nil
}

// updateServer stops the online worlds of f, reinstalls f and restarts
// the worlds that were stopped, whether or not the reinstall worked.
func (p *Plugin) updateServer(ctx context.Context, out io.Writer, f *flavors.Flavor) error {
	fmt.Fprintln(out, style.Heading(f.Name()))

	var stopped []*world.World
	defer func() {
		for _, w := range stopped {
			fmt.Fprintf(out, "\trestarting the world '%s' ...\n", w.Name())
			if err := w.Start(ctx, world.StartOptions{}); err != nil {
				fmt.Fprintf(out, "\t%s the world '%s' could not be started.\n", style.Error.Render("error:"), w.Name())
				p.Log().Error("restart after update failed", zap.String("world", w.Name()), zap.Error(err))
			}
		}
	}()

	for _, w := range p.Host().Worlds().UsingServer(f) {
		online, err := w.IsOnline()
		if err != nil {
			return err
		}
		if !online {
			continue
		}
		fmt.Fprintf(out, "\tstopping the world '%s' ...\n", w.Name())
		opts := w.DefaultStopOptions()
		opts.Message = p.updateMessage
		if err := w.Stop(ctx, opts); err != nil {
			if errors.Is(err, world.ErrStopFailed) {
				fmt.Fprintf(out, "\t%s the world '%s' could not be stopped.\n", style.Error.Render("error:"), w.Name())
			}
			return err
		}
		stopped = append(stopped, w)
	}

	fmt.Fprintln(out, "\treinstalling the server ...")
	if err := p.Host().Servers().Reinstall(ctx, f); err != nil {
		fmt.Fprintf(out, "\t%s %v\n", style.Error.Render("error:"), err)
		return err
	}
	return nil
}
