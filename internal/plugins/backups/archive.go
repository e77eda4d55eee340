package backups

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Archive formats.
const (
	FormatTarGz = "gztar"
	FormatTar   = "tar"
)

// extensions maps the archive formats to their file name extension.
var extensions = map[string]string{
	FormatTarGz: ".tar.gz",
	FormatTar:   ".tar",
}

// archiveWriter writes a tar stream, gzip compressed for FormatTarGz.
type archiveWriter struct {
	file *os.File
	gz   *gzip.Writer
	tw   *tar.Writer
}

func createArchive(dst, format string) (*archiveWriter, error) {
	f, err := os.Create(dst)
	if err != nil {
		return nil, err
	}
	a := &archiveWriter{file: f}
	var w io.Writer = f
	if format == FormatTarGz {
		a.gz = gzip.NewWriter(f)
		w = a.gz
	}
	a.tw = tar.NewWriter(w)
	return a, nil
}

// addTree adds the tree below src under the name prefix. Entries whose
// name or path relative to src matches one of exclude are skipped with
// everything below them.
func (a *archiveWriter) addTree(src, prefix string, exclude []string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel != "." && excluded(filepath.ToSlash(rel), exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name := prefix
		if rel != "." {
			name = path.Join(prefix, filepath.ToSlash(rel))
		}
		return a.add(p, name)
	})
}

// add writes one file, directory or symlink as name.
func (a *archiveWriter) add(src, name string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	var link string
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		if link, err = os.Readlink(src); err != nil {
			return err
		}
	case !info.Mode().IsRegular() && !info.IsDir():
		// Sockets, pipes and devices have no place in a world backup.
		return nil
	}
	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := a.tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(a.tw, f)
	return err
}

// Close flushes the archive. The file is closed even when flushing fails.
func (a *archiveWriter) Close() error {
	err := a.tw.Close()
	if a.gz != nil {
		err = errors.Join(err, a.gz.Close())
	}
	return errors.Join(err, a.file.Close())
}

func excluded(rel string, patterns []string) bool {
	base := path.Base(rel)
	for _, pat := range patterns {
		if ok, _ := path.Match(pat, base); ok {
			return true
		}
		if ok, _ := path.Match(strings.TrimSuffix(pat, "/"), rel); ok {
			return true
		}
	}
	return false
}

// extractArchive unpacks src into the existing directory dst. The
// compression is detected from the content.
func extractArchive(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if gz, err := gzip.NewReader(f); err == nil {
		defer gz.Close()
		r = gz
	} else {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
	}

	root := filepath.Clean(dst) + string(os.PathSeparator)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", src, err)
		}
		target := filepath.Join(dst, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(target+string(os.PathSeparator), root) {
			return fmt.Errorf("invalid path in archive: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := writeEntry(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		}
	}
}

func writeEntry(target string, r io.Reader, perm fs.FileMode) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
