// Package cmd provides the emsm command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/emsm/emsm/internal/app"
	"github.com/emsm/emsm/internal/exitcode"
	"github.com/emsm/emsm/internal/plugin"
	"github.com/emsm/emsm/internal/style"
	"github.com/emsm/emsm/internal/version"
)

// EnvRoot names the instance directory when --instance-dir is not given.
const EnvRoot = "EMSM_ROOT"

// Execute runs emsm with the process arguments and returns the exit code.
// The caller (main) should call os.Exit with this code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr, app.Options{})
}

// run sets the application up, executes the command line and finishes
// the application. The plugin subcommands only exist after setup, so the
// instance directory is picked from args before cobra parses them.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, opts app.Options) int {
	opts.InstanceDir = instanceDir(args)
	if opts.Out == nil {
		opts.Out = stdout
	}
	a := app.New(opts)

	if err := a.Setup(ctx); err != nil {
		a.Logger().Error("setup failed", zap.Error(err))
		_ = a.Finish(ctx, true)
		return report(stderr, a, err)
	}

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err != nil {
		a.Logger().Error("run failed", zap.String("detail", fmt.Sprintf("%+v", err)))
	}
	if ferr := a.Finish(ctx, err != nil); err == nil {
		err = ferr
	}
	if err != nil {
		return report(stderr, a, err)
	}
	return a.ExitCode()
}

// report prints the one-line summary of err and returns its exit code.
func report(w io.Writer, a *app.Application, err error) int {
	fmt.Fprintf(w, "%s %v\n", style.Error.Render("emsm:"), err)
	if path := a.LogFile(); path != "" {
		fmt.Fprintf(w, "%s\n", style.Dim.Render("  details are in "+path))
	}
	return exitcode.Code(err)
}

// instanceDir returns the value of --instance-dir in args, else $EMSM_ROOT.
func instanceDir(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--instance-dir="); ok {
			return v
		}
		if arg == "--instance-dir" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv(EnvRoot)
}

// newRootCmd builds the command tree: the global selection flags and one
// subcommand per visible plugin.
func newRootCmd(a *app.Application) *cobra.Command {
	var sel plugin.Args
	var dir string

	root := &cobra.Command{
		Use:     "emsm",
		Short:   "Extendable Minecraft Server Manager",
		Version: version.Version,
		Long: `emsm manages Minecraft worlds and the server software that runs them.

Every feature is a plugin. Select worlds with --world or --all-worlds and
servers with --server or --all-servers, then name the plugin:

  emsm worlds --all-worlds --status
  emsm server --server "vanilla 1.11" --update`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return exitcode.PluginNotFound(args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return exitcode.Wrap(exitcode.ErrUsage, cmd.CommandPath(), err)
	})

	pf := root.PersistentFlags()
	pf.StringArrayVarP(&sel.Worlds, "world", "w", nil, "select the world `NAME` (repeatable)")
	pf.BoolVarP(&sel.AllWorlds, "all-worlds", "W", false, "select all worlds")
	pf.StringArrayVarP(&sel.Servers, "server", "s", nil, "select the server `NAME` (repeatable)")
	pf.BoolVarP(&sel.AllServers, "all-servers", "S", false, "select all servers")
	pf.StringVar(&dir, "instance-dir", "", "the instance `DIR` (default $"+EnvRoot+" or the working directory)")

	for _, reg := range a.Plugins().Registrations() {
		if reg.Hidden() || reg.Instance == nil {
			continue
		}
		root.AddCommand(pluginCmd(a, reg, &sel))
	}
	return root
}

// pluginCmd returns the subcommand of a plugin. The plugin adds its own
// flags through plugin.Commander.
func pluginCmd(a *app.Application, reg *plugin.Registration, sel *plugin.Args) *cobra.Command {
	var longHelp bool
	name := reg.Name
	description := reg.Description()
	short, _, _ := strings.Cut(description, "\n")

	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Long:  description,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if longHelp {
				fmt.Fprint(cmd.OutOrStdout(), renderMarkdown(description))
				return nil
			}
			pargs := *sel
			pargs.Positional = args
			return a.Run(cmd.Context(), name, pargs)
		},
	}
	if c, ok := reg.Instance.(plugin.Commander); ok {
		c.Command(cmd)
	}
	cmd.Flags().BoolVar(&longHelp, "long-help", false, "print the full plugin description")
	return cmd
}
