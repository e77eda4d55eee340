package backups

import (
	"archive/tar"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExcluded(t *testing.T) {
	patterns := []string{"crash-reports/", "*.lck", "plugins/dynmap"}
	tests := []struct {
		rel  string
		want bool
	}{
		{"crash-reports", true},
		{"session.lck", true},
		{"region/session.lck", true},
		{"plugins/dynmap", true},
		{"plugins/essentials", false},
		{"level.dat", false},
		{"logs", false},
	}
	for _, tt := range tests {
		if got := excluded(tt.rel, patterns); got != tt.want {
			t.Errorf("excluded(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	src := t.TempDir()
	for rel, content := range map[string]string{
		"level.dat":        "level",
		"region/r.0.0.mca": "region",
		"session.lck":      "lock",
	} {
		path := filepath.Join(src, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink("level.dat", filepath.Join(src, "level.link")); err != nil {
		t.Fatal(err)
	}

	for _, format := range []string{FormatTar, FormatTarGz} {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "backup"+extensions[format])
			a, err := createArchive(path, format)
			if err != nil {
				t.Fatal(err)
			}
			if err := a.addTree(src, worldEntry, []string{"*.lck"}); err != nil {
				t.Fatal(err)
			}
			if err := a.Close(); err != nil {
				t.Fatal(err)
			}

			dst := t.TempDir()
			if err := extractArchive(path, dst); err != nil {
				t.Fatal(err)
			}
			if got := readFile(t, filepath.Join(dst, "world", "region", "r.0.0.mca")); got != "region" {
				t.Errorf("region = %q", got)
			}
			if link, err := os.Readlink(filepath.Join(dst, "world", "level.link")); err != nil || link != "level.dat" {
				t.Errorf("level.link = (%q, %v)", link, err)
			}
			if _, err := os.Stat(filepath.Join(dst, "world", "session.lck")); !os.IsNotExist(err) {
				t.Errorf("excluded file extracted: %v", err)
			}
		})
	}
}

func TestExtractRejectsEscapingPaths(t *testing.T) {
	for _, name := range []string{"../evil", "world/../../evil"} {
		path := filepath.Join(t.TempDir(), "evil.tar")
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		tw := tar.NewWriter(f)
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: 4, Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte("evil")); err != nil {
			t.Fatal(err)
		}
		if err := tw.Close(); err != nil {
			t.Fatal(err)
		}
		f.Close()

		parent := t.TempDir()
		dst := filepath.Join(parent, "out")
		if err := os.Mkdir(dst, 0755); err != nil {
			t.Fatal(err)
		}
		err = extractArchive(path, dst)
		if err == nil || !strings.Contains(err.Error(), "invalid path") {
			t.Errorf("extract %q = %v", name, err)
		}
		if _, err := os.Stat(filepath.Join(parent, "evil")); !os.IsNotExist(err) {
			t.Errorf("%q written outside the target: %v", name, err)
		}
	}
}
