//go:build !windows

package tmux

import (
	"golang.org/x/sys/unix"
)

// terminate sends SIGTERM to the process group led by pid, so a wrapper
// script and the server it started both receive it. Falls back to pid
// alone when the group cannot be determined.
func terminate(pid int) error {
	pgid, err := unix.Getpgid(pid)
	if err == nil && pgid > 1 {
		if err := unix.Kill(-pgid, unix.SIGTERM); err == nil {
			return nil
		}
	}
	return unix.Kill(pid, unix.SIGTERM)
}
