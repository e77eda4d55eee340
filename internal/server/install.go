package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/emsm/emsm/internal/exitcode"
	"github.com/emsm/emsm/internal/session"
	"github.com/emsm/emsm/internal/util"
)

// runJava runs the java tool; replaced in tests.
var runJava = func(dir string, args ...string) (string, error) {
	return util.ExecWithOutput(dir, "java", args...)
}

var errExeNotFound = errors.New("executable not found")

func fixedExe(name string) func(dir string) (string, error) {
	return func(dir string) (string, error) {
		return filepath.Join(dir, name), nil
	}
}

// globExe finds the first file in dir whose name matches pattern.
// Used for installers that embed their version in the file name.
func globExe(pattern string) func(dir string) (string, error) {
	re := regexp.MustCompile(pattern)
	return func(dir string) (string, error) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return "", fmt.Errorf("%w in %s: %v", errExeNotFound, dir, err)
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && re.MatchString(e.Name()) {
				names = append(names, e.Name())
			}
		}
		if len(names) == 0 {
			return "", fmt.Errorf("%w in %s", errExeNotFound, dir)
		}
		sort.Strings(names)
		return filepath.Join(dir, names[0]), nil
	}
}

// download fetches the flavor URL into dst, retrying transient failures.
// Failures of the transfer itself carry exitcode.ErrNetwork.
func (f *Flavor) download(ctx context.Context, dst string) error {
	err := util.Do(ctx, util.DefaultRetryConfig(), func() error {
		return f.fetch(ctx, f.URL(), dst)
	})
	if err == nil || util.IsPermanent(err) || ctx.Err() != nil {
		return err
	}
	return exitcode.Wrap(exitcode.ErrNetwork, "GET "+f.URL(), err)
}

func (f *Flavor) fetch(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return util.MarkPermanent(err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New(resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return util.MarkPermanent(err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	f.log.Debug("downloaded", zap.String("url", url), zap.Int64("bytes", n))
	return os.Rename(tmp.Name(), dst)
}

// downloadJar stores the jar behind the flavor URL as the executable.
func downloadJar(ctx context.Context, f *Flavor) error {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return installErr(f, "%w", err)
	}
	exe, err := f.ExePath()
	if err != nil {
		return installErr(f, "%w", err)
	}
	if err := f.download(ctx, exe); err != nil {
		return installErr(f, "download: %w", err)
	}
	return nil
}

// runForgeInstaller downloads the forge installer and runs it in a clean
// flavor directory. A failed run leaves no directory behind.
func runForgeInstaller(ctx context.Context, f *Flavor) (err error) {
	tmpDir, err := os.MkdirTemp("", "emsm-forge-")
	if err != nil {
		return installErr(f, "%w", err)
	}
	defer os.RemoveAll(tmpDir)

	installer := filepath.Join(tmpDir, "installer.jar")
	if err := f.download(ctx, installer); err != nil {
		return installErr(f, "download: %w", err)
	}

	defer func() {
		if err != nil {
			_ = os.RemoveAll(f.dir)
		}
	}()
	if err := os.RemoveAll(f.dir); err != nil {
		return installErr(f, "%w", err)
	}
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return installErr(f, "%w", err)
	}

	err = session.InDir(f.dir, func() error {
		out, err := runJava(f.dir, "-jar", installer, "--installServer")
		f.log.Info("forge installer finished", zap.String("output", out))
		return err
	})
	if err != nil {
		return installErr(f, "installer: %w", err)
	}
	if _, err := f.ExePath(); err != nil {
		return installErr(f, "%w", err)
	}
	return nil
}

// buildSpigot runs BuildTools in the configured build_dir (or a
// temporary directory) and moves the resulting jar into place.
func buildSpigot(ctx context.Context, f *Flavor) error {
	raw, _ := f.conf.Get("build_dir")
	buildDir, keep := strings.TrimSpace(raw), true
	if buildDir == "" {
		dir, err := os.MkdirTemp("", "spigotmc")
		if err != nil {
			return installErr(f, "%w", err)
		}
		buildDir, keep = dir, false
	} else if strings.HasPrefix(buildDir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			buildDir = filepath.Join(home, buildDir[2:])
		}
	}
	if !keep {
		defer func() {
			f.log.Info("removing build directory", zap.String("dir", buildDir))
			_ = os.RemoveAll(buildDir)
		}()
	}
	if err := os.MkdirAll(buildDir, 0755); err != nil {
		return installErr(f, "%w", err)
	}
	f.log.Info("building spigot", zap.String("dir", buildDir))

	tools := filepath.Join(buildDir, "BuildTools.jar")
	if err := f.download(ctx, tools); err != nil {
		return installErr(f, "download: %w", err)
	}
	out, err := runJava(buildDir, "-jar", tools)
	f.log.Info("BuildTools finished", zap.String("output", out))
	if err != nil {
		return installErr(f, "BuildTools: %w", err)
	}

	jars, _ := filepath.Glob(filepath.Join(buildDir, "Spigot", "Spigot-Server", "target", "spigot-*.jar"))
	if len(jars) == 0 {
		return installErr(f, "could not find the built spigot-*.jar")
	}
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return installErr(f, "%w", err)
	}
	exe, _ := f.ExePath()
	if err := moveFile(jars[0], exe); err != nil {
		return installErr(f, "%w", err)
	}
	return nil
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
