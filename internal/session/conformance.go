package session

import (
	"os"
	"strings"
	"testing"
	"time"
)

// ConformanceConfig configures the conformance test suite.
type ConformanceConfig struct {
	// SettleDelay is the time to wait after a mutation before re-querying.
	// Use 0 for test doubles, ~200ms for real multiplexers.
	SettleDelay time.Duration
}

// RunConformanceTests runs the Host interface conformance test suite.
// Real multiplexers and the test double must pass these tests.
func RunConformanceTests(t *testing.T, factory func() Host, cfg ConformanceConfig) {
	t.Run("ListPIDs", func(t *testing.T) {
		runListTests(t, factory, cfg)
	})

	t.Run("Spawn", func(t *testing.T) {
		runSpawnTests(t, factory, cfg)
	})

	t.Run("SendText", func(t *testing.T) {
		runSendTextTests(t, factory, cfg)
	})

	t.Run("Kill", func(t *testing.T) {
		runKillTests(t, factory, cfg)
	})
}

func conformanceUniqueName(t *testing.T) string {
	// Dots separate pid from name in screen listings; keep them out.
	return "emsm-test-" + strings.NewReplacer("/", "-", ".", "-", " ", "-").Replace(t.Name()) +
		"-" + time.Now().Format("150405_000")
}

func settle(cfg ConformanceConfig) {
	if cfg.SettleDelay > 0 {
		time.Sleep(cfg.SettleDelay)
	}
}

func killAll(host Host, name string) {
	pids, _ := host.ListPIDs(name)
	for _, pid := range pids {
		_ = host.Kill(pid)
	}
}

func spawnSleeper(t *testing.T, host Host, name string, cfg ConformanceConfig) int {
	t.Helper()
	t.Cleanup(func() { killAll(host, name) })

	if err := host.Spawn(name, []string{"sleep", "60"}, SpawnOptions{WorkDir: os.TempDir()}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	settle(cfg)

	pids, err := host.ListPIDs(name)
	if err != nil {
		t.Fatalf("ListPIDs: %v", err)
	}
	if len(pids) != 1 {
		t.Fatalf("ListPIDs after Spawn = %v, want one pid", pids)
	}
	return pids[0]
}

func runListTests(t *testing.T, factory func() Host, cfg ConformanceConfig) {
	t.Run("unknown session is empty", func(t *testing.T) {
		host := factory()
		pids, err := host.ListPIDs(conformanceUniqueName(t))
		if err != nil {
			t.Fatalf("ListPIDs: %v", err)
		}
		if len(pids) != 0 {
			t.Errorf("ListPIDs = %v, want empty", pids)
		}
	})

	t.Run("name is matched exactly", func(t *testing.T) {
		host := factory()
		name := conformanceUniqueName(t)
		spawnSleeper(t, host, name, cfg)

		pids, err := host.ListPIDs(name[:len(name)-1])
		if err != nil {
			t.Fatalf("ListPIDs: %v", err)
		}
		if len(pids) != 0 {
			t.Errorf("prefix of a session name matched: %v", pids)
		}
	})
}

func runSpawnTests(t *testing.T, factory func() Host, cfg ConformanceConfig) {
	t.Run("spawned session is listed", func(t *testing.T) {
		host := factory()
		pid := spawnSleeper(t, host, conformanceUniqueName(t), cfg)
		if pid <= 0 {
			t.Errorf("pid = %d, want positive", pid)
		}
	})

	t.Run("empty command fails", func(t *testing.T) {
		host := factory()
		if err := host.Spawn(conformanceUniqueName(t), nil, SpawnOptions{WorkDir: os.TempDir()}); err == nil {
			t.Error("Spawn with empty argv succeeded")
		}
	})
}

func runSendTextTests(t *testing.T, factory func() Host, cfg ConformanceConfig) {
	t.Run("text to a live session", func(t *testing.T) {
		host := factory()
		name := conformanceUniqueName(t)
		pid := spawnSleeper(t, host, name, cfg)

		if err := host.SendText(pid, name, "say hello 'world'"); err != nil {
			t.Errorf("SendText: %v", err)
		}
	})
}

func runKillTests(t *testing.T, factory func() Host, cfg ConformanceConfig) {
	t.Run("killed session disappears", func(t *testing.T) {
		host := factory()
		name := conformanceUniqueName(t)
		pid := spawnSleeper(t, host, name, cfg)

		if err := host.Kill(pid); err != nil {
			t.Fatalf("Kill: %v", err)
		}

		deadline := time.Now().Add(5 * time.Second)
		for {
			pids, err := host.ListPIDs(name)
			if err != nil {
				t.Fatalf("ListPIDs: %v", err)
			}
			if len(pids) == 0 {
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("session still listed after Kill: %v", pids)
			}
			time.Sleep(50 * time.Millisecond)
		}
	})
}
