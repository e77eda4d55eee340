package session

import (
	"testing"
)

// TestDouble_Conformance verifies the test double matches the Host contract.
func TestDouble_Conformance(t *testing.T) {
	RunConformanceTests(t, func() Host { return NewDouble() }, ConformanceConfig{})
}

func TestDouble_DuplicateNames(t *testing.T) {
	d := NewDouble()
	opts := SpawnOptions{WorkDir: t.TempDir()}
	_ = d.Spawn("minecraft_a", []string{"java"}, opts)
	_ = d.Spawn("minecraft_a", []string{"java"}, opts)

	pids, _ := d.ListPIDs("minecraft_a")
	if len(pids) != 2 {
		t.Fatalf("ListPIDs = %v, want two pids", pids)
	}
	if d.Spawned() != 2 {
		t.Errorf("Spawned = %d, want 2", d.Spawned())
	}
}

func TestDouble_OnTextMayExit(t *testing.T) {
	d := NewDouble()
	d.OnText = func(name, text string) {
		if text == "stop" {
			d.Exit(name)
		}
	}
	_ = d.Spawn("minecraft_a", []string{"java"}, SpawnOptions{WorkDir: t.TempDir()})
	pids, _ := d.ListPIDs("minecraft_a")

	if err := d.SendText(pids[0], "minecraft_a", "save-all"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if got := d.Sent("minecraft_a"); len(got) != 1 || got[0] != "save-all" {
		t.Errorf("Sent = %v", got)
	}
	if err := d.SendText(pids[0], "minecraft_a", "stop"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if pids, _ := d.ListPIDs("minecraft_a"); len(pids) != 0 {
		t.Errorf("session alive after stop: %v", pids)
	}
}

func TestDouble_FailSpawnAndIgnoreKill(t *testing.T) {
	d := NewDouble()
	d.FailSpawn = true
	if err := d.Spawn("minecraft_a", []string{"java"}, SpawnOptions{}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if pids, _ := d.ListPIDs("minecraft_a"); len(pids) != 0 {
		t.Errorf("FailSpawn left pids %v", pids)
	}

	d.FailSpawn = false
	d.IgnoreKill = true
	_ = d.Spawn("minecraft_a", []string{"java"}, SpawnOptions{})
	pids, _ := d.ListPIDs("minecraft_a")
	if err := d.Kill(pids[0]); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if pids, _ := d.ListPIDs("minecraft_a"); len(pids) != 1 {
		t.Errorf("IgnoreKill: pids = %v, want still one", pids)
	}
}

func TestDouble_Attach(t *testing.T) {
	d := NewDouble()
	_ = d.Spawn("minecraft_a", []string{"java"}, SpawnOptions{})
	pids, _ := d.ListPIDs("minecraft_a")

	if err := d.Attach(pids[0], "minecraft_a"); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := d.Attach(pids[0]+1, "minecraft_a"); err == nil {
		t.Error("Attach to unknown pid succeeded")
	}
	if got := d.Attached(); len(got) != 1 || got[0] != pids[0] {
		t.Errorf("Attached = %v", got)
	}
}
