// Package session provides the contract for hosting world processes in
// detachable terminal sessions. GNU screen is the primary implementation;
// tmux is supported as an alternative, and Double serves tests.
package session

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Prefix is the common prefix of every world session name.
const Prefix = "minecraft_"

// Name returns the session name of a world.
func Name(world string) string {
	return Prefix + world
}

// ErrWrongDirectory is returned when a spawn could not run in the
// requested working directory.
var ErrWrongDirectory = errors.New("working directory mismatch")

// SpawnOptions configures a new detached session.
type SpawnOptions struct {
	// WorkDir is the directory the command runs in. Required.
	WorkDir string
	// RCFile is an optional multiplexer configuration file.
	// Hosts that cannot apply it per session ignore it.
	RCFile string
}

// Host is the portable interface to a terminal multiplexer.
//
// A session is addressed by name and by the pid of its host process;
// several sessions may share one name, in which case ListPIDs returns all
// of them. No method verifies the effect of a mutation: callers re-query
// ListPIDs to learn whether a session came up or went away.
type Host interface {
	// ListPIDs returns the pids of all sessions called name.
	// No matching session yields an empty slice and a nil error.
	ListPIDs(name string) ([]int, error)

	// Spawn starts argv inside a new detached session called name.
	Spawn(name string, argv []string, opts SpawnOptions) error

	// SendText types text into the session followed by Enter.
	SendText(pid int, name, text string) error

	// Attach connects the calling terminal to the session.
	Attach(pid int, name string) error

	// Kill sends a termination signal to the session process.
	Kill(pid int) error
}

// InDir runs fn with the process working directory set to dir and
// restores the previous directory afterwards.
//
// The change is verified against dir before fn runs. Restoring is best
// effort: after a privilege drop the old directory may be unreachable.
func InDir(dir string, fn func() error) error {
	old, _ := os.Getwd()

	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("changing into %s: %w", dir, err)
	}
	if old != "" {
		defer func() { _ = os.Chdir(old) }()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrongDirectory, err)
	}
	want, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrongDirectory, err)
	}
	got, err := os.Stat(cwd)
	if err != nil || !os.SameFile(want, got) {
		return fmt.Errorf("%w: in %s, want %s", ErrWrongDirectory, cwd, dir)
	}
	return fn()
}

// Quote returns s quoted for a POSIX shell.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("@%+=:,./-_", r)
}
