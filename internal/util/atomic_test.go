package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAtomicWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.properties")
	for _, content := range []string{"server-port=25565\n", "server-port=25566\nmotd=lobby\n"} {
		if err := AtomicWriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != content {
			t.Errorf("content = %q, want %q", got, content)
		}
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}
}

func TestAtomicWriteFileMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worlds", "lobby", "server.properties")
	if err := AtomicWriteFile(path, []byte("x"), 0644); err == nil {
		t.Error("write into a missing directory succeeded")
	}
}

func TestAtomicWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard.json")
	db := map[string]int{"lobby": 2}
	if err := AtomicWriteJSON(path, db); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := "{\n  \"lobby\": 2\n}"; string(got) != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}
