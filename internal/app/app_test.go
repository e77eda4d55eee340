package app

import (
	"bytes"
	"context"
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/emsm/emsm/internal/exitcode"
	"github.com/emsm/emsm/internal/lock"
	"github.com/emsm/emsm/internal/plugin"
	"github.com/emsm/emsm/internal/session"
)

// instanceDir returns an instance whose main.conf holds the given [emsm]
// lines. The user is the current one unless a line sets it.
func instanceDir(t *testing.T, emsm ...string) string {
	t.Helper()
	u, err := user.Current()
	if err != nil {
		t.Skipf("no current user: %v", err)
	}
	lines := []string{"[emsm]"}
	if !slices.ContainsFunc(emsm, func(l string) bool { return strings.HasPrefix(l, "user") }) {
		lines = append(lines, "user = \""+u.Username+"\"")
	}
	lines = append(lines, emsm...)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "conf", "main.conf"), strings.Join(lines, "\n")+"\n")
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newApp(dir string, out *bytes.Buffer) *Application {
	return New(Options{
		InstanceDir: dir,
		Out:         out,
		Sessions:    session.NewDouble(),
		Confirm:     func(string) (bool, error) { return false, nil },
	})
}

func TestSetupRunFinish(t *testing.T) {
	dir := instanceDir(t)
	writeFile(t, filepath.Join(dir, "conf", "alpha.world.conf"), "[world]\nport = \"25565\"\n")
	writeFile(t, filepath.Join(dir, "conf", "_draft.world.conf"), "[world]\n")

	var out bytes.Buffer
	a := newApp(dir, &out)
	ctx := context.Background()
	if err := a.Setup(ctx); err != nil {
		t.Fatal(err)
	}

	if got := a.Worlds().Names(); !slices.Equal(got, []string{"alpha"}) {
		t.Errorf("worlds = %v", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "worlds", "alpha")); err != nil {
		t.Errorf("world directory not created: %v", err)
	}
	for _, name := range []string{"worlds", "server", "plugins", "initd", "guard", "backups"} {
		if !a.Plugins().Available(name) || a.Plugins().Plugin(name) == nil {
			t.Errorf("builtin %s not loaded", name)
		}
	}
	if _, err := a.Servers().Get("vanilla 1.11"); err != nil {
		t.Error(err)
	}

	if err := a.Run(ctx, "", plugin.Args{}); err != nil {
		t.Fatal(err)
	}
	if err := a.Finish(ctx, false); err != nil {
		t.Fatal(err)
	}

	main, err := os.ReadFile(filepath.Join(dir, "conf", "main.conf"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"[emsm]", "[server]", "update_message", "[worlds]"} {
		if !strings.Contains(string(main), want) {
			t.Errorf("main.conf lacks %q:\n%s", want, main)
		}
	}
	logData, err := os.ReadFile(a.LogFile())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(logData), "setting up") {
		t.Errorf("log:\n%s", logData)
	}

	// The lock is free again.
	l := lock.New(filepath.Join(dir, "app.lock"))
	if ok, err := l.TryAcquire(); err != nil || !ok {
		t.Errorf("lock still held: %v", err)
	}
	_ = l.Release()
}

func TestDescriptorPlugins(t *testing.T) {
	dir := instanceDir(t)
	writeFile(t, filepath.Join(dir, "plugins", "mapper.toml"),
		"plugin = \"exec\"\nversion = \"5.0\"\n\n[options]\nrun = \"true\"\n")
	writeFile(t, filepath.Join(dir, "plugins", "ancient.toml"), "plugin = \"exec\"\nversion = \"3.0\"\n")
	writeFile(t, filepath.Join(dir, "plugins", "second_guard.toml"), "plugin = \"guard\"\nversion = \"5.0\"\n")

	a := newApp(dir, &bytes.Buffer{})
	if err := a.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer a.Finish(context.Background(), true)

	if !a.Plugins().Available("mapper") || !a.Plugins().Available("second_guard") {
		t.Errorf("plugins = %v", a.Plugins().Names())
	}
	if a.Plugins().Available("ancient") {
		t.Error("outdated plugin loaded")
	}
}

func TestSetupFailures(t *testing.T) {
	tests := []struct {
		name string
		emsm []string
		hold bool
		code int
	}{
		{name: "unknown user", emsm: []string{"user = \"no-such-emsm-user\""}, code: exitcode.ErrWrongUser},
		{name: "lock held", emsm: []string{"timeout = \"1\""}, hold: true, code: exitcode.ErrLockTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := instanceDir(t, tt.emsm...)
			if tt.hold {
				l := lock.New(filepath.Join(dir, "app.lock"))
				if ok, err := l.TryAcquire(); err != nil || !ok {
					t.Fatalf("could not take the lock: %v", err)
				}
				defer l.Release()
			}

			a := newApp(dir, &bytes.Buffer{})
			err := a.Setup(context.Background())
			if got := exitcode.Code(err); got != tt.code {
				t.Errorf("Setup = %v (code %d), want code %d", err, got, tt.code)
			}
			if err := a.Finish(context.Background(), true); err != nil {
				t.Errorf("Finish after failed setup = %v", err)
			}
		})
	}
}

func TestUnknownMultiplexer(t *testing.T) {
	dir := instanceDir(t, "multiplexer = \"zellij\"")
	a := New(Options{InstanceDir: dir, Out: &bytes.Buffer{}})
	err := a.Setup(context.Background())
	if err == nil || !strings.Contains(err.Error(), "zellij") {
		t.Errorf("Setup = %v", err)
	}
	_ = a.Finish(context.Background(), true)
}
