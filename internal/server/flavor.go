// Package server describes the server software that powers worlds.
//
// A Flavor is a plain record: log layout, start command template, command
// translation, address parsing and an install routine. Variants are built
// by combining these pieces (see Builtin), not by subclassing.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/shlex"
	"go.uber.org/zap"

	"github.com/emsm/emsm/internal/config"
	"github.com/emsm/emsm/internal/session"
)

// Flavor is a registered server software variant of one instance.
// It is shared by all worlds using it and must not be copied.
type Flavor struct {
	def     Definition
	dir     string
	conf    *config.Section
	startRe *regexp.Regexp
	errorRe *regexp.Regexp
	client  *http.Client
	log     *zap.Logger
}

func newFlavor(def Definition, dir string, conf *config.Section, client *http.Client, log *zap.Logger) (*Flavor, error) {
	if def.Name == "" {
		return nil, errors.New("server definition without name")
	}
	startRe, err := regexp.Compile(def.StartPattern)
	if err != nil {
		return nil, fmt.Errorf("%s: start pattern: %w", def.Name, err)
	}
	errorRe, err := regexp.Compile(def.ErrorPattern)
	if err != nil {
		return nil, fmt.Errorf("%s: error pattern: %w", def.Name, err)
	}
	return &Flavor{
		def:     def,
		dir:     dir,
		conf:    conf,
		startRe: startRe,
		errorRe: errorRe,
		client:  client,
		log:     log.With(zap.String("server", def.Name)),
	}, nil
}

// Name returns the unique flavor name.
func (f *Flavor) Name() string { return f.def.Name }

// Directory returns where the software is installed.
func (f *Flavor) Directory() string { return f.dir }

// Conf returns the flavor's section in server.conf.
func (f *Flavor) Conf() *config.Section { return f.conf }

// StartRe matches the first log line after a fresh start.
func (f *Flavor) StartRe() *regexp.Regexp { return f.startRe }

// ErrorRe matches severe error lines.
func (f *Flavor) ErrorRe() *regexp.Regexp { return f.errorRe }

// PropertiesFile returns the name of the world property file that
// receives forced values before a start, or "".
func (f *Flavor) PropertiesFile() string { return f.def.PropertiesFile }

// URL returns the download location, honouring a url override in
// server.conf.
func (f *Flavor) URL() string {
	if u, ok := f.conf.Get("url"); ok && strings.TrimSpace(u) != "" {
		return strings.TrimSpace(u)
	}
	return f.def.URL
}

// ExePath returns the server executable.
func (f *Flavor) ExePath() (string, error) {
	return f.def.Exe(f.dir)
}

// IsInstalled reports whether the executable is present.
func (f *Flavor) IsInstalled() bool {
	exe, err := f.ExePath()
	if err != nil {
		return false
	}
	info, err := os.Stat(exe)
	return err == nil && !info.IsDir()
}

// Install installs the software unless it is already present.
func (f *Flavor) Install(ctx context.Context) error {
	if f.IsInstalled() {
		return nil
	}
	f.log.Info("installing server", zap.String("url", f.URL()))
	if err := f.def.Install(ctx, f); err != nil {
		f.log.Error("installation failed", zap.Error(err))
		return err
	}
	f.log.Info("server installed")
	return nil
}

// LogPath returns the server log of the world in worldDir.
func (f *Flavor) LogPath(worldDir string) string {
	return filepath.Join(worldDir, filepath.FromSlash(f.def.LogPath))
}

// Translate maps a vanilla console command to this flavor.
func (f *Flavor) Translate(cmd string) string {
	if f.def.Translate == nil {
		return cmd
	}
	return f.def.Translate(cmd)
}

// Address returns the address bound by the world in worldDir.
func (f *Flavor) Address(worldDir string) Address {
	if f.def.Address == nil {
		return Address{}
	}
	return f.def.Address(worldDir)
}

// StartCommand returns the expanded start command. The template is taken
// from the world file ([server:<name>] start_command), then from
// server.conf, then from the definition.
func (f *Flavor) StartCommand(world *config.File) (string, error) {
	tmpl := ""
	if world != nil {
		section := "server:" + f.Name()
		if world.HasSection(section) {
			tmpl, _ = world.Section(section).Get("start_command")
		}
	}
	if strings.TrimSpace(tmpl) == "" {
		tmpl, _ = f.conf.Get("start_command")
	}
	if strings.TrimSpace(tmpl) == "" {
		tmpl = f.def.StartCommand
	}

	exe, err := f.ExePath()
	if err != nil && strings.Contains(tmpl, PlaceholderExe) {
		return "", fmt.Errorf("%s: %w", f.Name(), err)
	}
	r := strings.NewReplacer(
		PlaceholderExe, session.Quote(exe),
		PlaceholderDir, session.Quote(f.dir),
	)
	return r.Replace(tmpl), nil
}

// StartArgv returns StartCommand split into arguments.
func (f *Flavor) StartArgv(world *config.File) ([]string, error) {
	cmd, err := f.StartCommand(world)
	if err != nil {
		return nil, err
	}
	argv, err := shlex.Split(cmd)
	if err != nil {
		return nil, fmt.Errorf("%s: parsing start command %q: %w", f.Name(), cmd, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%s: empty start command", f.Name())
	}
	return argv, nil
}
