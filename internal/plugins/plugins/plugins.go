// Package plugins implements the built-in plugin that lists, installs and
// removes plugins.
package plugins

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emsm/emsm/internal/exitcode"
	"github.com/emsm/emsm/internal/plugin"
	"github.com/emsm/emsm/internal/style"
	"github.com/emsm/emsm/internal/util"
	"github.com/emsm/emsm/internal/version"
)

const description = `Install, remove and list plugins.

A plugin is installed by copying its descriptor into the plugin
directory:

    emsm plugins --install ./mapper.toml

The descriptor is checked before it is copied: it must name a known
plugin class and declare a compatible version.`

// Class is the plugins plugin class.
var Class = plugin.Class{
	ID:          "plugins",
	Version:     version.Version,
	Description: description,
	New:         New,
}

// Plugin is the plugins plugin.
type Plugin struct {
	plugin.Base

	list      bool
	install   string
	uninstall string
}

func New(h plugin.Host, name string, _ *plugin.Descriptor) (plugin.Plugin, error) {
	return &Plugin{Base: plugin.NewBase(h, name)}, nil
}

func (p *Plugin) Command(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVar(&p.list, "list", false, "print all loaded plugins")
	f.StringVar(&p.install, "install", "", "install the plugin descriptor at `PATH`")
	f.StringVar(&p.uninstall, "uninstall", "", "remove the plugin `NAME`")
	cmd.MarkFlagsMutuallyExclusive("list", "install", "uninstall")
}

func (p *Plugin) Run(ctx context.Context, args plugin.Args) error {
	switch {
	case p.list:
		p.printList()
	case p.install != "":
		return p.Install(ctx, p.install)
	case p.uninstall != "":
		if p.uninstall == p.Name() {
			return exitcode.Newf(exitcode.ErrUsage, "%s cannot uninstall itself", p.Name())
		}
		return p.Host().Plugins().Uninstall(ctx, p.uninstall)
	}
	return nil
}

func (p *Plugin) printList() {
	tbl := style.NewTable(
		style.Column{Name: "NAME", Width: 16},
		style.Column{Name: "VERSION", Width: 12},
		style.Column{Name: "SOURCE", Width: 10},
		style.Column{Name: "DESCRIPTION", Width: 44},
	).SetIndent("")
	for _, reg := range p.Host().Plugins().Registrations() {
		source := "builtin"
		if reg.Descriptor != nil {
			source = reg.Class.ID
		}
		summary, _, _ := strings.Cut(reg.Description(), "\n")
		tbl.AddRow(reg.Name, reg.Version(), source, summary)
	}
	fmt.Fprint(p.Host().Out(), tbl.Render())
}

// Install copies the descriptor at src into the plugin directory and
// loads it. A descriptor that does not load is removed again. Replacing
// an installed plugin asks for confirmation.
func (p *Plugin) Install(ctx context.Context, src string) error {
	name := filepath.Base(src)
	if !plugin.IsDescriptorFile(name) {
		return exitcode.Newf(exitcode.ErrUsage, "%s is not a plugin descriptor (want <name>%s)", src, plugin.DescriptorExt)
	}
	desc, err := plugin.ReadDescriptor(src)
	if err != nil {
		return err
	}
	if _, ok := p.Host().Plugins().Catalog().Lookup(desc.Plugin); !ok {
		return &plugin.ImplementationError{Plugin: desc.Name, Reason: fmt.Sprintf("the declared plugin class %q does not exist", desc.Plugin)}
	}

	loader := p.Host().Plugins()
	if loader.Available(desc.Name) {
		ok, err := p.Host().Confirm(fmt.Sprintf("The plugin %q is already installed. Replace it?", desc.Name))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(p.Host().Out(), "- aborted -")
			return nil
		}
		if err := loader.Remove(ctx, desc.Name, true); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	dst := filepath.Join(p.Host().Paths().Plugins(), name)
	if err := util.AtomicWriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("installing %s: %w", name, err)
	}
	if err := loader.Import(dst); err != nil {
		if rerr := os.Remove(dst); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			p.Log().Error("could not remove rejected descriptor", zap.String("path", dst), zap.Error(rerr))
		}
		return err
	}
	if err := loader.InstantiateAll(); err != nil {
		return err
	}
	p.Log().Info("installed plugin", zap.String("plugin", desc.Name), zap.String("path", dst))
	fmt.Fprintf(p.Host().Out(), "%s installed the plugin %q.\n", style.SuccessPrefix, desc.Name)
	return nil
}
