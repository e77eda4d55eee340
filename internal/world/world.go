// Package world runs game worlds inside terminal multiplexer sessions.
//
// A World has two states, online and offline. The state is never stored:
// every query asks the session host for the pids of the world's session.
// Transitions are driven by Start, Stop, KillProcesses and Restart, which
// emit lifecycle signals on the event bus and fail with a typed *Error
// when the session does not reach the requested state in time.
package world

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/emsm/emsm/internal/config"
	"github.com/emsm/emsm/internal/eventbus"
	"github.com/emsm/emsm/internal/logtail"
	"github.com/emsm/emsm/internal/server"
	"github.com/emsm/emsm/internal/session"
	"github.com/emsm/emsm/internal/util"
)

// Timing of the polling loops; shortened by tests.
var (
	startSettle  = 100 * time.Millisecond
	stopPoll     = 250 * time.Millisecond
	killGrace    = 2 * time.Second
	defaultPoll  = 200 * time.Millisecond
	defaultReply = 10 * time.Second
)

// World is one configured world of the instance.
type World struct {
	name    string
	dir     string
	file    *config.File
	conf    *config.Section
	configs *config.Manager
	flavor  *server.Flavor
	host    session.Host
	bus     *eventbus.Bus
	log     *zap.Logger
}

// Status is a snapshot of the world's sessions.
type Status struct {
	PIDs []int
}

// Online reports whether at least one session runs.
func (s Status) Online() bool { return len(s.PIDs) > 0 }

// LaunchedMultipleTimes reports more than one session for the world.
// IsOnline still reports true; monitoring code treats this as a failure.
func (s Status) LaunchedMultipleTimes() bool { return len(s.PIDs) > 1 }

// StartOptions configures Start.
type StartOptions struct {
	// Properties are merged into the flavor's property file in addition
	// to the configured port.
	Properties map[string]string
}

// StopOptions configures Stop. DefaultStopOptions fills it from the
// world configuration.
type StopOptions struct {
	// Message is said in the chat before stopping, one command per line.
	Message string
	// Delay is waited between the save and the stop command.
	Delay time.Duration
	// Timeout bounds the wait for the sessions to end.
	Timeout time.Duration
	// Force kills the sessions when they survive the timeout.
	Force bool
}

// Name returns the world name. It is also the name of its directory and
// configuration file.
func (w *World) Name() string { return w.name }

// Directory returns where the server keeps the world data.
func (w *World) Directory() string { return w.dir }

// Conf returns the [world] section of the world file.
func (w *World) Conf() *config.Section { return w.conf }

// File returns the world configuration file.
func (w *World) File() *config.File { return w.file }

// Server returns the flavor running the world.
func (w *World) Server() *server.Flavor { return w.flavor }

// SessionName returns the name of the world's sessions.
func (w *World) SessionName() string { return session.Name(w.name) }

// Path converts a path relative to the world directory.
func (w *World) Path(rel string) string {
	return filepath.Join(w.dir, filepath.FromSlash(rel))
}

// SetServer assigns another flavor. The world must be offline.
func (w *World) SetServer(f *server.Flavor) error {
	online, err := w.IsOnline()
	if err != nil {
		return err
	}
	if online {
		return newError(ErrIsOnline, w, nil)
	}
	if f == w.flavor {
		return nil
	}
	w.flavor = f
	w.conf.Set("server", f.Name())
	w.log.Info("assigned server", zap.String("server", f.Name()))
	return nil
}

// PIDs returns the pids of the world's sessions.
func (w *World) PIDs() ([]int, error) {
	pids, err := w.host.ListPIDs(w.SessionName())
	if err != nil {
		return nil, fmt.Errorf("listing sessions of %s: %w", w.name, err)
	}
	return pids, nil
}

// Status returns the current session snapshot.
func (w *World) Status() (Status, error) {
	pids, err := w.PIDs()
	return Status{PIDs: pids}, err
}

// IsOnline reports whether a session of the world runs.
func (w *World) IsOnline() (bool, error) {
	pids, err := w.PIDs()
	return len(pids) > 0, err
}

// IsOffline is the negation of IsOnline.
func (w *World) IsOffline() (bool, error) {
	online, err := w.IsOnline()
	return !online, err
}

// Address returns the network binding read from the world's files.
func (w *World) Address() server.Address {
	return w.flavor.Address(w.dir)
}

// LogPath returns the server log of the world.
func (w *World) LogPath() string {
	return w.flavor.LogPath(w.dir)
}

// LatestLog returns the log since the last start of the server.
func (w *World) LatestLog() (string, error) {
	return logtail.LatestSegment(w.LogPath(), w.flavor.StartRe())
}

// IsInstalled reports whether the world directory exists.
func (w *World) IsInstalled() bool {
	info, err := os.Stat(w.dir)
	return err == nil && info.IsDir()
}

// Install creates the world directory.
func (w *World) Install() error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("creating world directory: %w", err)
	}
	return nil
}

// Uninstall kills the world, deletes its directory and configuration and
// emits WorldUninstalled.
func (w *World) Uninstall(ctx context.Context) error {
	if err := w.KillProcesses(ctx); err != nil {
		return err
	}
	if err := util.RemoveAll(ctx, w.dir); err != nil {
		return fmt.Errorf("removing %s: %w", w.dir, err)
	}
	if err := w.file.Remove(); err != nil {
		return err
	}
	w.log.Info("world uninstalled")
	return w.bus.Emit(eventbus.WorldUninstalled, w)
}

// SendCommand types a vanilla console command into every session of the
// world, translated for its flavor. Delivery is not confirmed.
func (w *World) SendCommand(cmd string) error {
	pids, err := w.PIDs()
	if err != nil {
		return err
	}
	if len(pids) == 0 {
		return newError(ErrIsOffline, w, nil)
	}
	cmd = w.flavor.Translate(cmd)
	for _, pid := range pids {
		if err := w.host.SendText(pid, w.SessionName(), cmd); err != nil {
			return fmt.Errorf("sending to %s (pid %d): %w", w.name, pid, err)
		}
	}
	w.log.Debug("sent command", zap.String("command", cmd), zap.Ints("pids", pids))
	return nil
}

// SendCommandAndWait is SendCommand followed by waiting for the log to
// grow. It returns the new log content. Non-positive timeout or poll use
// defaults of 10s and 200ms.
func (w *World) SendCommandAndWait(ctx context.Context, cmd string, timeout, poll time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = defaultReply
	}
	if poll <= 0 {
		poll = defaultPoll
	}
	path := w.LogPath()
	offset, err := logtail.Size(path)
	if err != nil {
		return "", err
	}
	if err := w.SendCommand(cmd); err != nil {
		return "", err
	}
	out, err := logtail.WaitForGrowth(ctx, path, offset, timeout, poll)
	if errors.Is(err, logtail.ErrTimeout) {
		return "", newError(ErrCommandTimeout, w, nil)
	}
	return out, err
}

// OpenConsole attaches the terminal to every session of the world.
func (w *World) OpenConsole() error {
	pids, err := w.PIDs()
	if err != nil {
		return err
	}
	if len(pids) == 0 {
		return newError(ErrIsOffline, w, nil)
	}
	for _, pid := range pids {
		if err := w.host.Attach(pid, w.SessionName()); err != nil {
			return err
		}
	}
	return nil
}

// Start launches the server if the world is offline. An online world is
// left alone. The configured port is written to the flavor's property
// file first so manual edits cannot move the world.
func (w *World) Start(ctx context.Context, opts StartOptions) error {
	online, err := w.IsOnline()
	if err != nil || online {
		return err
	}
	if !w.IsInstalled() {
		return newError(ErrStartFailed, w, fmt.Errorf("directory %s does not exist", w.dir))
	}
	if err := w.flavor.Install(ctx); err != nil {
		return err
	}
	if err := w.bus.Emit(eventbus.WorldAboutToStart, w); err != nil {
		return err
	}

	if err := w.mergeProperties(opts.Properties); err != nil {
		return err
	}
	argv, err := w.flavor.StartArgv(w.file)
	if err != nil {
		return err
	}
	w.log.Info("starting world", zap.Strings("argv", argv))
	err = w.host.Spawn(w.SessionName(), argv, session.SpawnOptions{
		WorkDir: w.dir,
		RCFile:  w.screenrc(),
	})
	if err != nil {
		return w.startFailed(err)
	}

	if err := sleep(ctx, startSettle); err != nil {
		return err
	}
	online, err = w.IsOnline()
	if err != nil {
		return err
	}
	if !online {
		return w.startFailed(nil)
	}
	w.log.Info("world started")
	return w.bus.Emit(eventbus.WorldStarted, w)
}

func (w *World) startFailed(detail error) error {
	w.log.Error("world start failed", zap.Error(detail))
	failure := newError(ErrStartFailed, w, detail)
	if err := w.bus.Emit(eventbus.WorldStartFailed, w); err != nil {
		w.log.Warn("start failure subscriber", zap.Error(err))
	}
	return failure
}

func (w *World) mergeProperties(extra map[string]string) error {
	file := w.flavor.PropertiesFile()
	if file == "" {
		return nil
	}
	props := make(map[string]string, len(extra)+1)
	for k, v := range extra {
		props[k] = v
	}
	port, err := w.configs.Port(w.name)
	if err != nil {
		return err
	}
	props["server-port"] = strconv.Itoa(port)
	return server.MergeProperties(w.Path(file), props)
}

// screenrc returns the multiplexer rc file: [emsm] screenrc of the world
// file, else of main.conf.
func (w *World) screenrc() string {
	if w.file.HasSection("emsm") {
		if rc, _ := w.file.Section("emsm").Get("screenrc"); strings.TrimSpace(rc) != "" {
			return strings.TrimSpace(rc)
		}
	}
	rc, _ := w.configs.Main().Section("emsm").Get("screenrc")
	return strings.TrimSpace(rc)
}

// DefaultStopOptions returns the stop settings of the world file.
func (w *World) DefaultStopOptions() StopOptions {
	delay, err := w.conf.Int("stop_delay", 5)
	if err != nil || delay < 0 {
		delay = 5
	}
	timeout, err := w.conf.Int("stop_timeout", 10)
	if err != nil || timeout < 0 {
		timeout = 10
	}
	return StopOptions{
		Message: w.conf.String("stop_message", config.DefaultStopMessage),
		Delay:   time.Duration(delay) * time.Second,
		Timeout: time.Duration(timeout) * time.Second,
	}
}

// Stop asks the server to save and stop and waits for its sessions to
// end. An offline world is left alone and no signal is emitted. When the
// sessions survive opts.Timeout they are killed if opts.Force is set;
// otherwise, or when the kill fails too, Stop fails with ErrStopFailed.
func (w *World) Stop(ctx context.Context, opts StopOptions) error {
	online, err := w.IsOnline()
	if err != nil || !online {
		return err
	}
	if err := w.bus.Emit(eventbus.WorldAboutToStop, w); err != nil {
		return err
	}
	w.log.Info("stopping world", zap.Duration("timeout", opts.Timeout), zap.Bool("force", opts.Force))

	// A session ending early is fine; the final check decides.
	send := func(cmd string) {
		if err := w.SendCommand(cmd); err != nil {
			w.log.Debug("stop command not delivered", zap.String("command", cmd), zap.Error(err))
		}
	}
	for _, line := range strings.Split(opts.Message, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			send("say " + line)
		}
	}
	send("save-all")
	if err := sleep(ctx, opts.Delay); err != nil {
		return err
	}
	send("stop")

	online, err = w.waitOffline(ctx, opts.Timeout)
	if err != nil {
		return err
	}
	if online && opts.Force {
		w.log.Warn("world did not stop in time, killing it")
		if online, err = w.kill(ctx); err != nil {
			return err
		}
	}
	if online {
		return w.stopFailed()
	}
	w.log.Info("world stopped")
	return w.bus.Emit(eventbus.WorldStopped, w)
}

// KillProcesses terminates every session of the world. An offline world
// is left alone.
func (w *World) KillProcesses(ctx context.Context) error {
	online, err := w.IsOnline()
	if err != nil || !online {
		return err
	}
	if err := w.bus.Emit(eventbus.WorldAboutToStop, w); err != nil {
		return err
	}
	if online, err = w.kill(ctx); err != nil {
		return err
	}
	if online {
		return w.stopFailed()
	}
	w.log.Info("world killed")
	return w.bus.Emit(eventbus.WorldStopped, w)
}

// kill signals every session and reports whether one survived.
func (w *World) kill(ctx context.Context) (bool, error) {
	pids, err := w.PIDs()
	if err != nil {
		return false, err
	}
	for _, pid := range pids {
		if err := w.host.Kill(pid); err != nil {
			w.log.Warn("kill failed", zap.Int("pid", pid), zap.Error(err))
		}
	}
	return w.waitOffline(ctx, killGrace)
}

// waitOffline polls until the world is offline or timeout elapses and
// reports whether it is still online.
func (w *World) waitOffline(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		online, err := w.IsOnline()
		if err != nil || !online {
			return online, err
		}
		if !time.Now().Before(deadline) {
			return true, nil
		}
		if err := sleep(ctx, stopPoll); err != nil {
			return true, err
		}
	}
}

func (w *World) stopFailed() error {
	w.log.Error("world stop failed")
	if err := w.bus.Emit(eventbus.WorldStopFailed, w); err != nil {
		w.log.Warn("stop failure subscriber", zap.Error(err))
	}
	return newError(ErrStopFailed, w, nil)
}

// Restart stops and starts the world. Errors of either step are
// returned as they are.
func (w *World) Restart(ctx context.Context, opts StopOptions) error {
	if err := w.Stop(ctx, opts); err != nil {
		return err
	}
	return w.Start(ctx, StartOptions{})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
