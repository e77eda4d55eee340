package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "emsm.log")
	log, err := New(path, "debug", "abcd1234")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Named("world").Debug("starting world")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	out := string(data)
	for _, want := range []string{"DEBUG", "world", "starting world", "abcd1234"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q missing %q", out, want)
		}
	}
}

func TestNewLevelFiltersAndFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emsm.log")
	log, err := New(path, "nonsense", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("hidden")
	log.Info("shown")
	_ = log.Sync()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "hidden") {
		t.Error("debug line written at fallback info level")
	}
	if !strings.Contains(string(data), "shown") {
		t.Error("info line missing")
	}
}

func TestRunID(t *testing.T) {
	a, b := RunID(), RunID()
	if len(a) != 8 {
		t.Errorf("RunID length = %d, want 8", len(a))
	}
	if a == b {
		t.Errorf("RunID repeated: %s", a)
	}
}
