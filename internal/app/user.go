package app

import (
	"fmt"
	"os"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/emsm/emsm/internal/exitcode"
)

// wrongUser is the message of a failed switch to the [emsm] user.
const wrongUser = "emsm must run as the user %q"

// switchUser changes the group and user of the process to name. Nothing
// happens when the process already runs as name; anybody but root gets
// an ErrWrongUser error otherwise.
func switchUser(name string) error {
	u, err := user.Lookup(name)
	if err != nil {
		return exitcode.Wrapf(exitcode.ErrWrongUser, err, wrongUser, name)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return exitcode.Wrapf(exitcode.ErrWrongUser, err, wrongUser, name)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return exitcode.Wrapf(exitcode.ErrWrongUser, err, wrongUser, name)
	}

	if os.Getegid() != gid {
		if err := unix.Setgid(gid); err != nil {
			return exitcode.Wrapf(exitcode.ErrWrongUser, err, wrongUser, name)
		}
	}
	if os.Geteuid() != uid {
		if err := unix.Setuid(uid); err != nil {
			return exitcode.Wrapf(exitcode.ErrWrongUser, err, wrongUser, name)
		}
		if err := os.Setenv("HOME", u.HomeDir); err != nil {
			return fmt.Errorf("setting HOME: %w", err)
		}
	}
	return nil
}
