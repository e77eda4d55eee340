package config

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/emsm/emsm/internal/eventbus"
)

func TestSectionAccessors(t *testing.T) {
	s := newSection("world")

	if got := s.String("server", "vanilla 1.11"); got != "vanilla 1.11" {
		t.Errorf("String default = %q", got)
	}
	if v, ok := s.Get("server"); !ok || v != "vanilla 1.11" {
		t.Errorf("default not stored back: (%q, %v)", v, ok)
	}

	n, err := s.Int("stop_timeout", 10)
	if err != nil || n != 10 {
		t.Errorf("Int default = (%d, %v)", n, err)
	}
	s.Set("stop_timeout", " 3 ")
	if n, err := s.Int("stop_timeout", 10); err != nil || n != 3 {
		t.Errorf("Int = (%d, %v), want 3", n, err)
	}
	s.Set("stop_timeout", "soon")
	if _, err := s.Int("stop_timeout", 10); err == nil {
		t.Error("Int accepted a non-integer")
	}

	for _, v := range []string{"yes", "On", "1", "true"} {
		s.Set("enable", v)
		if b, err := s.Bool("enable", false); err != nil || !b {
			t.Errorf("Bool(%q) = (%v, %v)", v, b, err)
		}
	}
	s.Set("enable", "maybe")
	if _, err := s.Bool("enable", false); err == nil {
		t.Error("Bool accepted maybe")
	}

	s.Delete("enable")
	if s.Has("enable") {
		t.Error("Delete did not remove key")
	}
	if got := strings.Join(s.Keys(), ","); got != "server,stop_timeout" {
		t.Errorf("Keys = %s", got)
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alpha.world.conf")
	f := NewFile(path, "header line\n\nsecond paragraph")
	f.Section("world").Set("stop_message", "line one\nline two")
	f.Section("server:vanilla 1.8").Set("start_command", "java -jar {server_exe} nogui")

	if err := f.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "# header line\n#\n# second paragraph\n") {
		t.Errorf("epilog not written as comment:\n%s", data)
	}

	g := NewFile(path, "")
	if err := g.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v, _ := g.Section("world").Get("stop_message"); v != "line one\nline two" {
		t.Errorf("stop_message = %q", v)
	}
	if v, _ := g.Section("server:vanilla 1.8").Get("start_command"); v != "java -jar {server_exe} nogui" {
		t.Errorf("start_command = %q", v)
	}
}

func TestFileReadScalars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.conf")
	content := "[emsm]\ntimeout = 5\nverbose = true\nuser = \"mc\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	f := NewFile(path, "")
	if err := f.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	s := f.Section("emsm")
	if n, err := s.Int("timeout", 0); err != nil || n != 5 {
		t.Errorf("timeout = (%d, %v)", n, err)
	}
	if b, err := s.Bool("verbose", false); err != nil || !b {
		t.Errorf("verbose = (%v, %v)", b, err)
	}
}

func TestFileReadRejectsTopLevelKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.conf")
	_ = os.WriteFile(path, []byte("user = \"mc\"\n"), 0644)
	if err := NewFile(path, "").Read(); err == nil {
		t.Error("Read accepted a key outside of a section")
	}
}

func TestFileReadMissing(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "nope.conf"), "")
	if err := f.Read(); err != nil {
		t.Errorf("Read(missing) = %v", err)
	}
	if err := f.Remove(); err != nil {
		t.Errorf("Remove(missing) = %v", err)
	}
}

func TestManagerDiscoversWorlds(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"alpha.world.conf", "beta.world.conf", "_template.world.conf", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("[world]\nstop_delay = \"0\"\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	m, err := NewManager(dir, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if got := strings.Join(m.Worlds(), ","); got != "alpha,beta" {
		t.Errorf("Worlds = %s, want alpha,beta", got)
	}
	if err := m.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}

	w := m.World("alpha").Section("world")
	if v, _ := w.Get("stop_delay"); v != "0" {
		t.Errorf("stop_delay = %q, want file value 0", v)
	}
	if v, _ := w.Get("stop_timeout"); v != DefaultStopTimeout {
		t.Errorf("stop_timeout = %q, want default", v)
	}
	if v, _ := m.Main().Section("emsm").Get("user"); v != DefaultUser {
		t.Errorf("[emsm] user = %q", v)
	}
}

func TestManagerWriteCreatesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "conf")
	m, err := NewManager(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.AddWorld("gamma")
	if err := m.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}
	for _, name := range []string{MainFile, ServerFile, "gamma" + WorldSuffix} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "gamma"+WorldSuffix))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "**gamma**") || !strings.Contains(string(data), `["plugin:initd"]`) {
		t.Errorf("world file header:\n%s", data)
	}
}

type fakeWorld string

func (w fakeWorld) Name() string { return string(w) }

func TestManagerForgetsUninstalledWorld(t *testing.T) {
	m, _ := NewManager(t.TempDir(), nil)
	m.AddWorld("alpha")

	bus := eventbus.New()
	bus.Connect(eventbus.WorldUninstalled, m)
	if err := bus.Emit(eventbus.WorldUninstalled, fakeWorld("alpha")); err != nil {
		t.Fatal(err)
	}
	if m.World("alpha") != nil {
		t.Error("world configuration still present after world_uninstalled")
	}
}

func TestPortExplicit(t *testing.T) {
	m, _ := NewManager(t.TempDir(), nil)
	m.AddWorld("alpha").Section("world").Set("port", "25570")

	port, err := m.Port("alpha")
	if err != nil || port != 25570 {
		t.Errorf("Port = (%d, %v), want 25570", port, err)
	}

	m.World("alpha").Section("world").Set("port", "70000")
	if _, err := m.Port("alpha"); err == nil {
		t.Error("Port accepted 70000")
	}
}

func TestPortAuto(t *testing.T) {
	m, _ := NewManager(t.TempDir(), nil)
	m.AddWorld("alpha")
	m.AddWorld("beta").Section("world").Set("port", strconv.Itoa(firstAutoPort))

	port, err := m.Port("alpha")
	if err != nil {
		t.Fatalf("Port: %v", err)
	}
	if port == firstAutoPort {
		t.Errorf("auto port %d collides with beta", port)
	}
	if v, _ := m.World("alpha").Section("world").Get("port"); v != strconv.Itoa(port) {
		t.Errorf("auto port not written back: %q", v)
	}
	again, _ := m.Port("alpha")
	if again != port {
		t.Errorf("second Port = %d, want stable %d", again, port)
	}
}

func TestUnusedPortSkipsBound(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	defer l.Close()
	busy := l.Addr().(*net.TCPAddr).Port

	port, err := unusedPort(busy, busy, nil)
	if err == nil {
		t.Errorf("unusedPort returned bound port %d", port)
	}
}
