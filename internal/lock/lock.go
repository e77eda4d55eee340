// Package lock guards an emsm instance against concurrent runs.
//
// Worlds are not locked individually: a run holds the instance lock from
// setup to exit, so two overlapping cron invocations never drive the same
// session at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/emsm/emsm/internal/exitcode"
)

// retryDelay is the interval between lock attempts while waiting.
var retryDelay = 250 * time.Millisecond

// ErrHeld is returned when the lock is held by another run.
var ErrHeld = errors.New("another emsm run holds the instance lock")

// AppLock is the instance-wide file lock.
type AppLock struct {
	fl *flock.Flock
}

// New returns an unlocked AppLock on path.
func New(path string) *AppLock {
	return &AppLock{fl: flock.New(path)}
}

// Path returns the lock file location.
func (l *AppLock) Path() string {
	return l.fl.Path()
}

// Acquire waits for the lock. A timeout of zero or less waits until ctx
// ends; otherwise the wait gives up after timeout with a coded
// ErrLockTimeout error wrapping ErrHeld.
func (l *AppLock) Acquire(ctx context.Context, timeout time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(l.Path()), 0755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	locked, err := l.fl.TryLockContext(ctx, retryDelay)
	if locked {
		return nil
	}
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		return exitcode.Wrapf(exitcode.ErrLockTimeout, ErrHeld, "waited %s for %s", timeout, l.Path())
	}
	return fmt.Errorf("acquiring lock %s: %w", l.Path(), err)
}

// TryAcquire takes the lock without waiting. Reports whether it was taken.
func (l *AppLock) TryAcquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.Path()), 0755); err != nil {
		return false, fmt.Errorf("creating lock directory: %w", err)
	}
	return l.fl.TryLock()
}

// Release drops the lock. Safe to call when not locked.
func (l *AppLock) Release() error {
	return l.fl.Unlock()
}
