// Package screen hosts world sessions in GNU screen.
package screen

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/emsm/emsm/internal/session"
)

// Screen implements session.Host with the screen binary.
type Screen struct {
	bin string
}

// New returns a Screen using the screen binary found in PATH.
func New() *Screen {
	return &Screen{bin: "screen"}
}

var _ session.Host = (*Screen)(nil)

// ListPIDs parses `screen -ls`. screen exits non-zero whenever sessions
// exist (and when none do), so only the output is trusted.
func (s *Screen) ListPIDs(name string) ([]int, error) {
	out, err := exec.Command(s.bin, "-ls").Output()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("screen -ls: %w", err)
		}
	}
	return parsePIDs(string(out), name), nil
}

// parsePIDs extracts the pids of lines like "\t1234.name\t(Detached)".
func parsePIDs(out, name string) []int {
	re := regexp.MustCompile(`(?m)^\s*(\d+)\.` + regexp.QuoteMeta(name) + `(?:\s|$)`)

	var pids []int
	for _, m := range re.FindAllStringSubmatch(out, -1) {
		pid, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}

// Spawn starts argv in a detached screen session from within opts.WorkDir.
func (s *Screen) Spawn(name string, argv []string, opts session.SpawnOptions) error {
	if len(argv) == 0 {
		return errors.New("screen: empty command")
	}
	return session.InDir(opts.WorkDir, func() error {
		return s.run(spawnArgs(name, argv, opts.RCFile)...)
	})
}

func spawnArgs(name string, argv []string, rcFile string) []string {
	var args []string
	if rcFile != "" {
		args = append(args, "-c", rcFile)
	}
	args = append(args, "-dmS", name)
	return append(args, argv...)
}

// SendText stuffs text into the first window of the session.
func (s *Screen) SendText(pid int, name, text string) error {
	return s.run(sendArgs(pid, name, text)...)
}

func sendArgs(pid int, name, text string) []string {
	target := strconv.Itoa(pid) + "." + name
	return []string{"-S", target, "-p", "0", "-X", "stuff", escapeStuff(text) + "\r"}
}

// escapeStuff protects text from screen's own argument processing,
// which expands $VARS, ^X control notation and backslash escapes.
func escapeStuff(text string) string {
	return strings.NewReplacer(`\`, `\\`, `^`, `\^`, `$`, `\$`).Replace(text)
}

// Attach attaches the calling terminal. When screen refuses because the
// terminal is not owned by the current user (typically after su), the
// attach is retried through script(1), which provides a fresh pty.
func (s *Screen) Attach(pid int, name string) error {
	if err := s.interactive(s.bin, "-x", strconv.Itoa(pid)); err == nil {
		return nil
	}
	inner := session.Quote(s.bin) + " -x " + strconv.Itoa(pid)
	if err := s.interactive("script", "-q", "-c", inner, "/dev/null"); err != nil {
		return fmt.Errorf("attaching to %d.%s: %w", pid, name, err)
	}
	return nil
}

// Kill sends SIGTERM to the screen process.
func (s *Screen) Kill(pid int) error {
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("kill %d: %w", pid, err)
	}
	return nil
}

func (s *Screen) run(args ...string) error {
	cmd := exec.Command(s.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("screen %s: %s", args[0], msg)
		}
		return fmt.Errorf("screen %s: %w", args[0], err)
	}
	return nil
}

func (s *Screen) interactive(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
