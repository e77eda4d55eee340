// Package worlds implements the built-in plugin that manages and interacts
// with the selected worlds.
package worlds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/emsm/emsm/internal/exitcode"
	"github.com/emsm/emsm/internal/plugin"
	"github.com/emsm/emsm/internal/style"
	"github.com/emsm/emsm/internal/version"
	"github.com/emsm/emsm/internal/world"
)

const description = `Manage and interact with worlds.

The action is applied to every world selected with *--world* or
*--all-worlds*, in alphabetical order. Only one action runs per call.

* **--start**, **--stop**, **--restart**, **--kill** change the status.
* **--force-stop** and **--force-restart** kill the server when the
  smooth stop does not finish in time.
* **--send** and **--verbose-send** talk to the server console.
* **--log** prints the latest log; **--log-start -20** prints the last
  twenty lines.`

// Class is the worlds plugin class.
var Class = plugin.Class{
	ID:          "worlds",
	Version:     version.Version,
	Description: description,
	New:         New,
}

// Plugin is the worlds plugin.
type Plugin struct {
	plugin.Base

	logStart     int
	logLimit     int
	consoleDelay time.Duration
	replyTimeout time.Duration

	flags flags

	// attachDelay is waited before attaching; tests set it to zero.
	attachDelay func(time.Duration)
}

type flags struct {
	address, configuration, directory bool

	log                bool
	logStart, logLimit int

	send, verboseSend string
	console           bool

	pid, status                      bool
	start, stop, forceStop, kill     bool
	restart, forceRestart, uninstall bool
}

// New creates the plugin and fills its section of main.conf with the
// defaults it uses.
func New(h plugin.Host, name string, _ *plugin.Descriptor) (plugin.Plugin, error) {
	p := &Plugin{Base: plugin.NewBase(h, name), attachDelay: time.Sleep}
	conf := p.GlobalConf()
	var err error
	if p.logStart, err = conf.Int("default_log_start", 0); err != nil {
		return nil, err
	}
	if p.logLimit, err = conf.Int("default_log_limit", 10); err != nil {
		return nil, err
	}
	delay, err := conf.Int("open_console_delay", 1)
	if err != nil {
		return nil, err
	}
	timeout, err := conf.Int("send_command_timeout", 10)
	if err != nil {
		return nil, err
	}
	p.consoleDelay = time.Duration(delay) * time.Second
	p.replyTimeout = time.Duration(timeout) * time.Second
	return p, nil
}

// Command adds the action flags.
func (p *Plugin) Command(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVar(&p.flags.address, "address", false, "print the binding (ip, port) of the world")
	f.BoolVar(&p.flags.configuration, "configuration", false, "print the configuration of the world")
	f.BoolVar(&p.flags.directory, "directory", false, "print the path to the world's directory")

	f.BoolVar(&p.flags.log, "log", false, "print the latest log")
	f.IntVar(&p.flags.logStart, "log-start", 0, "first printed line of the log (-2 starts with the 2nd last line)")
	f.IntVar(&p.flags.logLimit, "log-limit", 0, "number of printed log lines (0 prints all)")

	f.StringVar(&p.flags.send, "send", "", "send `COMMAND` to the world, e.g. \"say Hello\"")
	f.StringVar(&p.flags.verboseSend, "verbose-send", "", "send `COMMAND` to the world and print the log echo")
	f.BoolVar(&p.flags.console, "console", false, "open the server console of the world")

	f.BoolVar(&p.flags.pid, "pid", false, "print the pids of the world's sessions")
	f.BoolVar(&p.flags.status, "status", false, "print the status of the world")
	f.BoolVar(&p.flags.start, "start", false, "start the world")
	f.BoolVar(&p.flags.stop, "stop", false, "stop the world")
	f.BoolVar(&p.flags.forceStop, "force-stop", false, "like --stop, but kill the server if the smooth stop fails")
	f.BoolVar(&p.flags.kill, "kill", false, "kill the processes of the world")
	f.BoolVar(&p.flags.restart, "restart", false, "restart the world, starting it if it is offline")
	f.BoolVar(&p.flags.forceRestart, "force-restart", false, "like --restart, but kill the server if the smooth stop fails")
	f.BoolVar(&p.flags.uninstall, "uninstall", false, "remove the world")

	cmd.MarkFlagsMutuallyExclusive("start", "stop", "force-stop", "kill", "restart", "force-restart", "uninstall")
}

// Run applies the selected action to every selected world. Failures of
// single worlds are reported and set the exit code; the remaining worlds
// are still handled.
func (p *Plugin) Run(ctx context.Context, args plugin.Args) error {
	worlds, err := p.Host().Worlds().Selected(args.Worlds, args.AllWorlds)
	if err != nil {
		return err
	}
	sortByName(worlds)

	var failed error
	for _, w := range worlds {
		if err := p.apply(ctx, w); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log().Warn("world action failed", zap.String("world", w.Name()), zap.Error(err))
			if failed == nil {
				failed = err
			}
		}
	}
	if failed != nil {
		p.Host().SetExitCode(exitcode.Code(failed))
	}
	return nil
}

func (p *Plugin) apply(ctx context.Context, w *world.World) error {
	out := p.Host().Out()
	f := p.flags
	switch {
	case f.address:
		return printAddress(out, w)
	case f.configuration:
		return printConf(out, w)
	case f.directory:
		return printDirectory(out, w)
	case f.log || f.logStart != 0 || f.logLimit != 0:
		start, limit := p.logStart, p.logLimit
		if f.logStart != 0 {
			start = f.logStart
		}
		if f.logLimit != 0 {
			limit = f.logLimit
		}
		return printLog(out, w, start, limit)
	case f.pid:
		return printPIDs(out, w)
	case f.status:
		return printStatus(out, w)
	case f.send != "":
		return p.send(out, w, f.send)
	case f.verboseSend != "":
		return p.verboseSend(ctx, out, w, f.verboseSend)
	case f.console:
		return p.console(out, w)
	case f.start:
		return p.start(ctx, out, w)
	case f.stop, f.forceStop:
		return p.stop(ctx, out, w, f.forceStop)
	case f.kill:
		return p.kill(ctx, out, w)
	case f.restart, f.forceRestart:
		return p.restart(ctx, out, w, f.forceRestart)
	case f.uninstall:
		return p.uninstall(ctx, out, w)
	}
	return nil
}

var title = cases.Title(language.English)

// statusLabel renders the world status for humans.
func statusLabel(online bool) string {
	if online {
		return style.Success.Render(title.String("online"))
	}
	return style.Error.Render(title.String("offline"))
}

func failure(out io.Writer, msg string) {
	fmt.Fprintf(out, "\t%s %s\n", style.Error.Render("error:"), msg)
}

func (p *Plugin) send(out io.Writer, w *world.World, cmd string) error {
	fmt.Fprintln(out, style.Heading(w.Name()))
	if err := w.SendCommand(cmd); err != nil {
		if errors.Is(err, world.ErrIsOffline) {
			failure(out, "the world is offline")
		}
		return err
	}
	fmt.Fprintln(out, "\tdone.")
	return nil
}

func (p *Plugin) verboseSend(ctx context.Context, out io.Writer, w *world.World, cmd string) error {
	fmt.Fprintln(out, style.Heading(w.Name()))
	output, err := w.SendCommandAndWait(ctx, cmd, p.replyTimeout, 0)
	switch {
	case errors.Is(err, world.ErrIsOffline):
		failure(out, "the world is offline")
	case errors.Is(err, world.ErrCommandTimeout):
		failure(out, "the world did not react")
	case err == nil:
		for _, line := range splitLines(output) {
			fmt.Fprintf(out, "\t%s\n", line)
		}
	}
	return err
}

func (p *Plugin) console(out io.Writer, w *world.World) error {
	fmt.Fprintln(out, style.Heading(w.Name()))
	online, err := w.IsOnline()
	if err != nil {
		return err
	}
	if !online {
		failure(out, "the world is offline")
		return nil
	}
	fmt.Fprintf(out, "\t%s detach from the console with the multiplexer's detach key (screen: ctrl+a d, tmux: ctrl+b d).\n",
		style.Warning.Render("note:"))
	fmt.Fprintf(out, "\t%s stopping the server in the console may confuse emsm.\n", style.Error.Render("warning:"))
	p.attachDelay(p.consoleDelay)
	return w.OpenConsole()
}

func (p *Plugin) start(ctx context.Context, out io.Writer, w *world.World) error {
	fmt.Fprintln(out, style.Heading(w.Name()))
	if err := w.Start(ctx, world.StartOptions{}); err != nil {
		failure(out, "the world could not be started.")
		return err
	}
	fmt.Fprintf(out, "\tthe world is now %s\n", statusLabel(true))
	return nil
}

func (p *Plugin) stop(ctx context.Context, out io.Writer, w *world.World, force bool) error {
	fmt.Fprintln(out, style.Heading(w.Name()))
	opts := w.DefaultStopOptions()
	opts.Force = force
	if err := w.Stop(ctx, opts); err != nil {
		failure(out, "the world could not be stopped.")
		if !force && errors.Is(err, world.ErrStopFailed) {
			fmt.Fprintln(out, "\t       try: --force-stop")
		}
		return err
	}
	fmt.Fprintf(out, "\tthe world is now %s\n", statusLabel(false))
	return nil
}

func (p *Plugin) kill(ctx context.Context, out io.Writer, w *world.World) error {
	fmt.Fprintln(out, style.Heading(w.Name()))
	if err := w.KillProcesses(ctx); err != nil {
		failure(out, "the world could not be stopped.")
		return err
	}
	fmt.Fprintf(out, "\tthe world is now %s\n", statusLabel(false))
	return nil
}

func (p *Plugin) restart(ctx context.Context, out io.Writer, w *world.World, force bool) error {
	fmt.Fprintln(out, style.Heading(w.Name()))
	opts := w.DefaultStopOptions()
	opts.Force = force
	err := w.Restart(ctx, opts)
	switch {
	case errors.Is(err, world.ErrStopFailed):
		failure(out, "the world could not be stopped.")
		if !force {
			fmt.Fprintln(out, "\t       try: --force-restart")
		}
	case errors.Is(err, world.ErrStartFailed):
		failure(out, "the world could not be restarted.")
	case err == nil:
		fmt.Fprintf(out, "\tthe world has been %s\n", style.Warning.Render("restarted."))
	}
	return err
}

func (p *Plugin) uninstall(ctx context.Context, out io.Writer, w *world.World) error {
	fmt.Fprintln(out, style.Heading(w.Name()))
	ok, err := p.Host().Confirm(fmt.Sprintf("Are you sure you want to remove the world %q?", w.Name()))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(out, "\t- aborted -")
		return nil
	}
	if err := w.Uninstall(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "\tthe world has been removed.")
	return nil
}
