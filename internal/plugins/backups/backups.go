// Package backups implements the built-in plugin that creates, lists and
// restores archives of the worlds.
package backups

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emsm/emsm/internal/exitcode"
	"github.com/emsm/emsm/internal/plugin"
	"github.com/emsm/emsm/internal/style"
	"github.com/emsm/emsm/internal/version"
	"github.com/emsm/emsm/internal/world"
)

const description = `Creates and restores backups of the worlds.

Every selected world is processed in alphabetical order.

* **--create** archives the world directory and its configuration file.
  An online world saves its data first and keeps running.
* **--list** prints the backups, newest first.
* **--restore PATH**, **--restore-latest** and **--restore-menu** replace
  the world with a backup. An online world is stopped with the
  *restore_message* and started again afterwards.

Old backups are removed once more than *max_storage_size* exist.
A world file can override *archive_format*, *max_storage_size*,
*backup_logs* and *exclude_paths*:

    [plugin:backups]
    max_storage_size = "10"
    exclude_paths = "crash-reports\nbanned-ips.json"

Create daily backups with cron:

    0 2 * * * emsm --all-worlds backups --create`

// DefaultRestoreMessage is said in the chat before a restore.
const DefaultRestoreMessage = "This world is about to be reset to an earlier state."

// Class is the backups plugin class.
var Class = plugin.Class{
	ID:          "backups",
	Version:     version.Version,
	Description: description,
	New:         New,
}

// Plugin is the backups plugin.
type Plugin struct {
	plugin.Base

	defaults       Settings
	restoreMessage string
	restoreDelay   time.Duration

	list, create, restoreLatest, restoreMenu bool
	restore                                  string

	// saveTimeout is handed to every Manager; shortened by tests.
	saveTimeout time.Duration
}

// New creates the plugin and normalises its section of main.conf.
func New(h plugin.Host, name string, _ *plugin.Descriptor) (plugin.Plugin, error) {
	p := &Plugin{Base: plugin.NewBase(h, name), saveTimeout: 30 * time.Second}
	if err := p.readGlobalConf(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Plugin) readGlobalConf() error {
	conf := p.GlobalConf()

	format := conf.String("archive_format", FormatTarGz)
	if _, ok := extensions[format]; !ok {
		p.Log().Warn("unknown archive format, using "+FormatTarGz, zap.String("archive_format", format))
		format = FormatTarGz
	}
	conf.Set("archive_format", format)

	p.restoreMessage = conf.String("restore_message", DefaultRestoreMessage)

	delay, err := conf.Int("restore_delay", 5)
	if err != nil {
		return err
	}
	delay = max(delay, 0)
	conf.Set("restore_delay", fmt.Sprint(delay))
	p.restoreDelay = time.Duration(delay) * time.Second

	size, err := conf.Int("max_storage_size", 30)
	if err != nil {
		return err
	}
	size = max(size, 0)
	conf.Set("max_storage_size", fmt.Sprint(size))

	logs, err := conf.Bool("backup_logs", true)
	if err != nil {
		return err
	}
	conf.Set("backup_logs", yesNo(logs))

	exclude := splitPaths(conf.String("exclude_paths", ""))
	conf.Set("exclude_paths", strings.Join(exclude, "\n"))

	p.defaults = Settings{Format: format, MaxStorageSize: size, BackupLogs: logs, ExcludePaths: exclude}
	return nil
}

// settings merges the [plugin:backups] section of w's file over the
// global defaults. Only options the world sets are normalised.
func (p *Plugin) settings(w *world.World) (Settings, error) {
	conf := p.WorldConf(w)
	s := p.defaults
	s.ExcludePaths = slices.Clone(s.ExcludePaths)

	if v, ok := conf.Get("archive_format"); ok {
		if _, known := extensions[v]; !known {
			return s, fmt.Errorf("%s: [%s] archive_format: %q is not available", w.Name(), conf.Name(), v)
		}
		s.Format = v
	}
	if conf.Has("max_storage_size") {
		n, err := conf.Int("max_storage_size", 0)
		if err != nil {
			return s, fmt.Errorf("%s: %w", w.Name(), err)
		}
		s.MaxStorageSize = max(n, 0)
		conf.Set("max_storage_size", fmt.Sprint(s.MaxStorageSize))
	}
	if conf.Has("backup_logs") {
		b, err := conf.Bool("backup_logs", true)
		if err != nil {
			return s, fmt.Errorf("%s: %w", w.Name(), err)
		}
		s.BackupLogs = b
		conf.Set("backup_logs", yesNo(b))
	}
	if v, ok := conf.Get("exclude_paths"); ok {
		s.ExcludePaths = splitPaths(v)
		conf.Set("exclude_paths", strings.Join(s.ExcludePaths, "\n"))
	}
	return s, nil
}

// Manager returns the backup manager of w. The backups live in
// <plugins_data>/backups/<world>.
func (p *Plugin) Manager(w *world.World) (*Manager, error) {
	s, err := p.settings(w)
	if err != nil {
		return nil, err
	}
	dir, err := p.DataDir(true)
	if err != nil {
		return nil, err
	}
	m, err := NewManager(w, filepath.Join(dir, w.Name()), s, p.Log())
	if err != nil {
		return nil, err
	}
	m.saveTimeout = p.saveTimeout
	return m, nil
}

func (p *Plugin) Command(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVar(&p.list, "list", false, "list all available backups")
	f.BoolVar(&p.create, "create", false, "create a new backup")
	f.StringVar(&p.restore, "restore", "", "restore the backup at `PATH`")
	f.BoolVar(&p.restoreLatest, "restore-latest", false, "restore the latest backup")
	f.BoolVar(&p.restoreMenu, "restore-menu", false, "select the backup to restore from a menu")
	cmd.MarkFlagsMutuallyExclusive("list", "create", "restore", "restore-latest", "restore-menu")
}

func (p *Plugin) Run(ctx context.Context, args plugin.Args) error {
	worlds, err := p.Host().Worlds().Selected(args.Worlds, args.AllWorlds)
	if err != nil {
		return err
	}
	slices.SortFunc(worlds, func(a, b *world.World) int { return strings.Compare(a.Name(), b.Name()) })

	restorePath := p.restore
	if restorePath != "" {
		if restorePath, err = filepath.Abs(restorePath); err != nil {
			return err
		}
		if _, err := os.Stat(restorePath); err != nil {
			return exitcode.FileNotFound(p.restore)
		}
	}

	out := p.Host().Out()
	for _, w := range worlds {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m, err := p.Manager(w)
		if err != nil {
			return err
		}
		switch {
		case p.list:
			err = p.printList(out, m)
		case p.create:
			err = p.runCreate(ctx, out, m)
		case restorePath != "":
			fmt.Fprintln(out, style.Heading(w.Name()))
			fmt.Fprintf(out, "\tbackup path: %s\n", restorePath)
			err = p.runRestore(ctx, out, m, restorePath)
		case p.restoreLatest:
			err = p.runRestoreLatest(ctx, out, m)
		case p.restoreMenu:
			err = p.runRestoreMenu(ctx, out, m)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Plugin) printList(out io.Writer, m *Manager) error {
	list, err := m.List()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, style.Heading(m.world.Name()))
	if len(list) == 0 {
		fmt.Fprintln(out, "\t- no backups found -")
		return nil
	}
	for _, b := range list {
		fmt.Fprintf(out, "\t* %s\n", b.Created.Format(time.ANSIC))
	}
	return nil
}

func (p *Plugin) runCreate(ctx context.Context, out io.Writer, m *Manager) error {
	fmt.Fprintln(out, style.Heading(m.world.Name()))
	if _, err := m.Create(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "\tdone.")
	return nil
}

func (p *Plugin) runRestoreLatest(ctx context.Context, out io.Writer, m *Manager) error {
	fmt.Fprintln(out, style.Heading(m.world.Name()))
	b, ok, err := m.Latest()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(out, "\t%s no backup available.\n", style.Error.Render("error:"))
		return nil
	}
	fmt.Fprintf(out, "\tbackup date: %s\n", b.Created.Format(time.ANSIC))
	return p.runRestore(ctx, out, m, b.Path)
}

func (p *Plugin) runRestoreMenu(ctx context.Context, out io.Writer, m *Manager) error {
	fmt.Fprintln(out, style.Heading(m.world.Name()))
	list, err := m.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintf(out, "\t%s no backup available.\n", style.Error.Render("error:"))
		return nil
	}
	options := make([]string, len(list))
	for i, b := range list {
		options[i] = b.Created.Format(time.ANSIC)
	}
	i, err := p.Host().Choose("Which backup do you want to restore?", options)
	if err != nil {
		return err
	}
	if i < 0 || i >= len(list) {
		return nil
	}
	return p.runRestore(ctx, out, m, list[i].Path)
}

// runRestore asks before overwriting the world. A world that cannot be
// stopped or started again is reported and sets the exit code; the
// other worlds are still processed.
func (p *Plugin) runRestore(ctx context.Context, out io.Writer, m *Manager, path string) error {
	q := fmt.Sprintf("Do you really want to restore and overwrite the world '%s'?", m.world.Name())
	ok, err := p.Host().Confirm(q)
	if err != nil || !ok {
		return err
	}

	err = m.Restore(ctx, path, RestoreOptions{Message: p.restoreMessage, Delay: p.restoreDelay})
	switch {
	case errors.Is(err, world.ErrStopFailed):
		fmt.Fprintf(out, "\t%s the world could not be stopped.\n", style.Error.Render("error:"))
		p.Host().SetExitCode(exitcode.ErrStopFailed)
	case errors.Is(err, world.ErrStartFailed):
		fmt.Fprintf(out, "\t%s the world could not be restarted.\n", style.Error.Render("error:"))
		p.Host().SetExitCode(exitcode.ErrStartFailed)
	case err != nil:
		return err
	default:
		fmt.Fprintln(out, "\tdone.")
	}
	return nil
}

func splitPaths(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
