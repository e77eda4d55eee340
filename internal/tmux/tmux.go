// Package tmux hosts world sessions in tmux.
package tmux

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/emsm/emsm/internal/session"
)

// validSessionNameRe validates session names to prevent shell injection
var validSessionNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Common errors
var (
	ErrNoServer           = errors.New("no tmux server running")
	ErrSessionExists      = errors.New("session already exists")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidSessionName = errors.New("invalid session name")
)

// validateSessionName checks that a session name contains only safe characters.
// tmux treats dots and colons as target separators.
func validateSessionName(name string) error {
	if name == "" || !validSessionNameRe.MatchString(name) {
		return fmt.Errorf("%w %q: must match %s", ErrInvalidSessionName, name, validSessionNameRe.String())
	}
	return nil
}

// Tmux implements session.Host with the tmux binary.
type Tmux struct {
	socketName string // tmux socket name (-L flag), empty = default socket
}

// New creates a Tmux host. An empty socket uses the default server.
func New(socket string) *Tmux {
	return &Tmux{socketName: socket}
}

var _ session.Host = (*Tmux)(nil)

// run executes a tmux command and returns stdout.
// All commands include -u flag for UTF-8 support regardless of locale settings.
func (t *Tmux) run(args ...string) (string, error) {
	allArgs := []string{"-u"}
	if t.socketName != "" {
		allArgs = append(allArgs, "-L", t.socketName)
	}
	allArgs = append(allArgs, args...)
	cmd := exec.Command("tmux", allArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", t.wrapError(err, stderr.String(), args)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// wrapError wraps tmux errors with context.
func (t *Tmux) wrapError(err error, stderr string, args []string) error {
	stderr = strings.TrimSpace(stderr)

	if strings.Contains(stderr, "no server running") ||
		strings.Contains(stderr, "error connecting to") ||
		strings.Contains(stderr, "server exited unexpectedly") {
		return ErrNoServer
	}
	if strings.Contains(stderr, "duplicate session") {
		return ErrSessionExists
	}
	if strings.Contains(stderr, "session not found") ||
		strings.Contains(stderr, "can't find session") ||
		strings.Contains(stderr, "can't find pane") {
		return ErrSessionNotFound
	}

	if stderr != "" {
		return fmt.Errorf("tmux %s: %s", args[0], stderr)
	}
	return fmt.Errorf("tmux %s: %w", args[0], err)
}

// pane is one line of list-panes output.
type pane struct {
	session   string
	pid       int
	paneID    string
	sessionID string
}

const paneFormat = "#{session_name}\t#{pane_pid}\t#{pane_id}\t#{session_id}"

func parsePanes(out string) []pane {
	var panes []pane
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			continue
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		panes = append(panes, pane{session: fields[0], pid: pid, paneID: fields[2], sessionID: fields[3]})
	}
	return panes
}

func (t *Tmux) panes() ([]pane, error) {
	out, err := t.run("list-panes", "-a", "-F", paneFormat)
	if err != nil {
		if errors.Is(err, ErrNoServer) {
			return nil, nil // No server = no sessions
		}
		return nil, err
	}
	return parsePanes(out), nil
}

func (t *Tmux) findPane(pid int, name string) (pane, error) {
	panes, err := t.panes()
	if err != nil {
		return pane{}, err
	}
	for _, p := range panes {
		if p.pid == pid && p.session == name {
			return p, nil
		}
	}
	return pane{}, fmt.Errorf("%w: %d.%s", ErrSessionNotFound, pid, name)
}

// ListPIDs returns the pane pids of sessions called name.
func (t *Tmux) ListPIDs(name string) ([]int, error) {
	panes, err := t.panes()
	if err != nil {
		return nil, err
	}
	var pids []int
	for _, p := range panes {
		if p.session == name {
			pids = append(pids, p.pid)
		}
	}
	return pids, nil
}

// Spawn creates a detached session whose only pane runs argv.
// The rc file option is ignored: tmux reads its configuration once per server.
func (t *Tmux) Spawn(name string, argv []string, opts session.SpawnOptions) error {
	if err := validateSessionName(name); err != nil {
		return err
	}
	if len(argv) == 0 {
		return errors.New("tmux: empty command")
	}
	info, err := os.Stat(opts.WorkDir)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrWrongDirectory, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", session.ErrWrongDirectory, opts.WorkDir)
	}

	if _, err := t.run(spawnArgs(name, argv, opts.WorkDir)...); err != nil {
		return err
	}
	// Detached sessions default to a fixed 80x24 window on tmux 3.3+.
	_, _ = t.run("set-option", "-wt", name, "window-size", "latest")
	return nil
}

func spawnArgs(name string, argv []string, workDir string) []string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = session.Quote(a)
	}
	return []string{"new-session", "-d", "-s", name, "-c", workDir, strings.Join(quoted, " ")}
}

// SendText types text literally into the session's pane, then presses Enter.
func (t *Tmux) SendText(pid int, name, text string) error {
	p, err := t.findPane(pid, name)
	if err != nil {
		return err
	}
	if _, err := t.run("send-keys", "-t", p.paneID, "-l", text); err != nil {
		return err
	}
	_, err = t.run("send-keys", "-t", p.paneID, "Enter")
	return err
}

// Attach attaches the calling terminal to the session owning pid.
func (t *Tmux) Attach(pid int, name string) error {
	p, err := t.findPane(pid, name)
	if err != nil {
		return err
	}
	args := []string{"-u"}
	if t.socketName != "" {
		args = append(args, "-L", t.socketName)
	}
	args = append(args, "attach-session", "-t", p.sessionID)

	cmd := exec.Command("tmux", args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Kill terminates the pane process and its process group.
func (t *Tmux) Kill(pid int) error {
	if err := terminate(pid); err != nil {
		return fmt.Errorf("kill %d: %w", pid, err)
	}
	return nil
}
