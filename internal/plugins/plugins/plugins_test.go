package plugins

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/emsm/emsm/internal/exitcode"
	"github.com/emsm/emsm/internal/plugin"
	"github.com/emsm/emsm/internal/testutil"
)

// noop is a class external descriptors can name.
var noop = plugin.Class{
	ID:          "noop",
	Version:     "5.0.0",
	Description: "Does nothing.",
	New: func(h plugin.Host, name string, _ *plugin.Descriptor) (plugin.Plugin, error) {
		b := plugin.NewBase(h, name)
		return &b, nil
	},
}

func setup(t *testing.T) (*testutil.Instance, *Plugin) {
	t.Helper()
	inst := testutil.NewInstance(t, "alpha")
	for _, c := range []plugin.Class{Class, noop} {
		if err := inst.Catalog.Register(c); err != nil {
			t.Fatal(err)
		}
	}
	if err := inst.Loader.AddBuiltin("plugins", Class.ID); err != nil {
		t.Fatal(err)
	}
	if err := inst.Loader.InstantiateAll(); err != nil {
		t.Fatal(err)
	}
	return inst, inst.Loader.Plugin("plugins").(*Plugin)
}

func run(t *testing.T, p *Plugin, flags ...string) error {
	t.Helper()
	cmd := &cobra.Command{Use: "plugins"}
	p.Command(cmd)
	if err := cmd.ParseFlags(flags); err != nil {
		t.Fatal(err)
	}
	return p.Run(context.Background(), plugin.Args{})
}

func descriptor(t *testing.T, file, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), file)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInstall(t *testing.T) {
	inst, p := setup(t)
	src := descriptor(t, "mapper.toml", "plugin = \"noop\"\nversion = \"5.1\"\ndescription = \"Renders maps.\"\n")

	if err := run(t, p, "--install", src); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(inst.Layout.Plugins(), "mapper.toml")); err != nil {
		t.Errorf("descriptor not copied: %v", err)
	}
	if inst.Loader.Plugin("mapper") == nil {
		t.Error("installed plugin not instantiated")
	}

	inst.Output.Reset()
	if err := run(t, p, "--list"); err != nil {
		t.Fatal(err)
	}
	out := inst.Output.String()
	if !strings.Contains(out, "mapper") || !strings.Contains(out, "Renders maps.") || !strings.Contains(out, "builtin") {
		t.Errorf("list output:\n%s", out)
	}
}

func TestInstallRejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		check   func(error) bool
	}{
		{
			name:    "outdated",
			file:    "old.toml",
			content: "plugin = \"noop\"\nversion = \"4.0.16\"",
			check: func(err error) bool {
				var oe *plugin.OutdatedError
				return errors.As(err, &oe)
			},
		},
		{
			name:    "unknown class",
			file:    "odd.toml",
			content: "plugin = \"python\"\nversion = \"5.0\"",
			check: func(err error) bool {
				var ie *plugin.ImplementationError
				return errors.As(err, &ie)
			},
		},
		{
			name:    "not a descriptor",
			file:    "mapper.py",
			content: "print('hi')",
			check:   func(err error) bool { return exitcode.Code(err) == exitcode.ErrUsage },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, p := setup(t)
			err := run(t, p, "--install", descriptor(t, tt.file, tt.content))
			if !tt.check(err) {
				t.Fatalf("Run = %v", err)
			}
			entries, _ := os.ReadDir(inst.Layout.Plugins())
			if len(entries) != 0 {
				t.Errorf("plugin directory not clean: %v", entries)
			}
		})
	}
}

func TestReinstallAsksFirst(t *testing.T) {
	inst, p := setup(t)
	src := descriptor(t, "mapper.toml", "plugin = \"noop\"\nversion = \"5.0\"")
	if err := run(t, p, "--install", src); err != nil {
		t.Fatal(err)
	}
	first := inst.Loader.Plugin("mapper")

	if err := run(t, p, "--install", src); err != nil {
		t.Fatal(err)
	}
	if inst.Loader.Plugin("mapper") != first {
		t.Error("plugin replaced without confirmation")
	}

	inst.Answers = []bool{true}
	if err := run(t, p, "--install", src); err != nil {
		t.Fatal(err)
	}
	if got := inst.Loader.Plugin("mapper"); got == nil || got == first {
		t.Error("plugin not replaced after confirmation")
	}
}

func TestUninstall(t *testing.T) {
	inst, p := setup(t)
	if err := run(t, p, "--install", descriptor(t, "mapper.toml", "plugin = \"noop\"\nversion = \"5.0\"")); err != nil {
		t.Fatal(err)
	}
	inst.Answers = []bool{true, false, false}
	if err := run(t, p, "--uninstall", "mapper"); err != nil {
		t.Fatal(err)
	}
	if inst.Loader.Available("mapper") {
		t.Error("plugin still loaded")
	}
	if _, err := os.Stat(filepath.Join(inst.Layout.Plugins(), "mapper.toml")); !os.IsNotExist(err) {
		t.Error("descriptor still installed")
	}

	if err := run(t, p, "--uninstall", "plugins"); exitcode.Code(err) != exitcode.ErrUsage {
		t.Errorf("self uninstall = %v", err)
	}
	if err := run(t, p, "--uninstall", "ghost"); !errors.Is(err, plugin.ErrUnknownPlugin) {
		t.Errorf("unknown uninstall = %v", err)
	}
}
