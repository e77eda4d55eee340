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

	"go.uber.org/zap"

	"github.com/emsm/emsm/internal/util"
	"github.com/emsm/emsm/internal/world"
)

// Names inside a backup archive.
const (
	worldEntry = "world"
	confEntry  = "world.conf"
)

// stampLayout starts every backup file name, followed by "-<world>".
const stampLayout = "2006_01_02-15_04_05"

// Backup is one archive in the backup directory of a world.
type Backup struct {
	Path    string
	Created time.Time
}

// Settings are the backup options of one world.
type Settings struct {
	Format         string
	MaxStorageSize int // 0 keeps every backup
	BackupLogs     bool
	ExcludePaths   []string
}

// Manager manages the backups of one world.
type Manager struct {
	world    *world.World
	dir      string
	settings Settings
	log      *zap.Logger

	// saveTimeout bounds the wait for the server to flush the world.
	saveTimeout time.Duration
	now         func() time.Time
}

// NewManager returns the manager of w's backups, stored in dir.
func NewManager(w *world.World, dir string, s Settings, log *zap.Logger) (*Manager, error) {
	if _, ok := extensions[s.Format]; !ok {
		return nil, fmt.Errorf("%s: unknown archive format %q", w.Name(), s.Format)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Manager{
		world:       w,
		dir:         dir,
		settings:    s,
		log:         log.With(zap.String("world", w.Name())),
		saveTimeout: 30 * time.Second,
		now:         time.Now,
	}, nil
}

// Dir returns the backup directory.
func (m *Manager) Dir() string { return m.dir }

// List returns the backups, newest first. Files whose name does not
// carry a creation stamp for this world are ignored, as are unfinished
// archives.
func (m *Manager) List() ([]Backup, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}
	var out []Backup
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		created, ok := m.parseName(e.Name())
		if !ok {
			continue
		}
		out = append(out, Backup{Path: filepath.Join(m.dir, e.Name()), Created: created})
	}
	slices.SortFunc(out, func(a, b Backup) int { return b.Created.Compare(a.Created) })
	return out, nil
}

// Latest returns the newest backup. ok is false when there is none.
func (m *Manager) Latest() (b Backup, ok bool, err error) {
	list, err := m.List()
	if err != nil || len(list) == 0 {
		return Backup{}, false, err
	}
	return list[0], true, nil
}

func (m *Manager) fileName(t time.Time) string {
	return t.Format(stampLayout) + "-" + m.world.Name() + extensions[m.settings.Format]
}

func (m *Manager) parseName(name string) (time.Time, bool) {
	for _, ext := range extensions {
		if base, ok := strings.CutSuffix(name, ext); ok {
			stamp, ok := strings.CutSuffix(base, "-"+m.world.Name())
			if !ok {
				return time.Time{}, false
			}
			t, err := time.ParseInLocation(stampLayout, stamp, time.Local)
			return t, err == nil
		}
	}
	return time.Time{}, false
}

// Create archives the world directory and its configuration file and
// returns the new backup. An online world is told to flush its data
// first and has auto-save turned off while the archive is written. The
// backup directory is cleaned afterwards.
func (m *Manager) Create(ctx context.Context) (Backup, error) {
	online, err := m.world.IsOnline()
	if err != nil {
		return Backup{}, err
	}
	if online {
		m.flush(ctx)
		defer func() {
			for _, cmd := range []string{"save-on", "save-all"} {
				if err := m.world.SendCommand(cmd); err != nil {
					m.log.Warn("could not re-enable auto-save", zap.Error(err))
				}
			}
		}()
	}

	exclude := slices.Clone(m.settings.ExcludePaths)
	if !m.settings.BackupLogs {
		exclude = append(exclude, "logs")
	}

	created := m.now()
	dst := filepath.Join(m.dir, m.fileName(created))
	tmp := dst + ".tmp"
	if err := m.write(tmp, exclude); err != nil {
		_ = os.Remove(tmp)
		return Backup{}, fmt.Errorf("creating backup of %s: %w", m.world.Name(), err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return Backup{}, err
	}
	m.log.Info("backup created", zap.String("path", dst))
	return Backup{Path: dst, Created: created.Truncate(time.Second)}, m.Clean()
}

// flush disables auto-save and waits until the server has saved. A
// server that does not answer in time is backed up anyway.
func (m *Manager) flush(ctx context.Context) {
	if err := m.world.SendCommand("save-off"); err != nil {
		m.log.Warn("could not disable auto-save", zap.Error(err))
		return
	}
	if _, err := m.world.SendCommandAndWait(ctx, "save-all", m.saveTimeout, 0); err != nil {
		m.log.Warn("world did not confirm the save", zap.Error(err))
	}
}

func (m *Manager) write(dst string, exclude []string) error {
	a, err := createArchive(dst, m.settings.Format)
	if err != nil {
		return err
	}
	err = a.addTree(m.world.Directory(), worldEntry, exclude)
	if err == nil {
		err = m.addConf(a)
	}
	return errors.Join(err, a.Close())
}

func (m *Manager) addConf(a *archiveWriter) error {
	path := m.world.File().Path()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return a.add(path, confEntry)
}

// Clean removes the oldest backups beyond MaxStorageSize and the
// leftovers of failed runs.
func (m *Manager) Clean() error {
	list, err := m.List()
	if err != nil {
		return err
	}
	if keep := m.settings.MaxStorageSize; keep > 0 && len(list) > keep {
		for _, b := range list[keep:] {
			if err := os.Remove(b.Path); err != nil {
				return err
			}
			m.log.Info("backup removed", zap.String("path", b.Path))
		}
	}
	tmps, err := filepath.Glob(filepath.Join(m.dir, "*.tmp"))
	if err != nil {
		return err
	}
	for _, p := range tmps {
		_ = os.Remove(p)
	}
	return nil
}

// RestoreOptions control how an online world is taken down for a restore.
type RestoreOptions struct {
	Message string
	Delay   time.Duration
}

// Restore replaces the world directory and configuration with the
// content of the archive at path. An online world is stopped first,
// forcefully if needed, and started again afterwards; the errors of
// these steps match world.ErrStopFailed and world.ErrStartFailed.
func (m *Manager) Restore(ctx context.Context, path string, opts RestoreOptions) error {
	tmp, err := os.MkdirTemp(m.dir, ".restore-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	if err := extractArchive(path, tmp); err != nil {
		return fmt.Errorf("unpacking %s: %w", path, err)
	}
	data := filepath.Join(tmp, worldEntry)
	if info, err := os.Stat(data); err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a backup of a world", path)
	}

	w := m.world
	online, err := w.IsOnline()
	if err != nil {
		return err
	}
	if online {
		stop := w.DefaultStopOptions()
		stop.Message = opts.Message
		stop.Delay = opts.Delay
		stop.Force = true
		if err := w.Stop(ctx, stop); err != nil {
			return err
		}
	}

	if err := util.RemoveAll(ctx, w.Directory()); err != nil {
		return err
	}
	if err := os.Rename(data, w.Directory()); err != nil {
		return err
	}
	if err := m.restoreConf(filepath.Join(tmp, confEntry)); err != nil {
		return err
	}
	m.log.Info("backup restored", zap.String("path", path))

	if online {
		return w.Start(ctx, world.StartOptions{})
	}
	return nil
}

// restoreConf replaces the world file with the one in the backup, if
// any, and reloads it. The sections stay the same objects so the world
// keeps seeing its [world] section.
func (m *Manager) restoreConf(src string) error {
	in, err := os.Open(src)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer in.Close()

	file := m.world.File()
	out, err := os.Create(file.Path())
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

	for _, name := range file.Sections() {
		sec := file.Section(name)
		for _, key := range sec.Keys() {
			sec.Delete(key)
		}
	}
	return file.Read()
}
