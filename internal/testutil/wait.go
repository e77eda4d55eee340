package testutil

import (
	"strings"
	"testing"
	"time"

	"github.com/emsm/emsm/internal/session"
)

// WaitFor polls cond every 10ms until it holds or timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

// WaitForSession waits until host lists a session called name.
func WaitForSession(t *testing.T, host session.Host, name string, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		pids, _ := host.ListPIDs(name)
		return len(pids) > 0
	})
}

// WaitForNoSession waits until host lists no session called name.
func WaitForNoSession(t *testing.T, host session.Host, name string, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		pids, _ := host.ListPIDs(name)
		return len(pids) == 0
	})
}

// Truncate shortens s to n bytes for log output, escaping newlines.
func Truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	if len(s) > n {
		return s[:n]
	}
	return s
}
