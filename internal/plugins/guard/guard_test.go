package guard

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/emsm/emsm/internal/plugin"
	"github.com/emsm/emsm/internal/session"
	"github.com/emsm/emsm/internal/testutil"
)

func setup(t *testing.T, worlds ...string) (*testutil.Instance, *Plugin) {
	t.Helper()
	inst := testutil.NewInstance(t, worlds...)
	if err := inst.Catalog.Register(Class); err != nil {
		t.Fatal(err)
	}
	if err := inst.Loader.AddBuiltin("guard", Class.ID); err != nil {
		t.Fatal(err)
	}
	if err := inst.Loader.InstantiateAll(); err != nil {
		t.Fatal(err)
	}
	p := inst.Loader.Plugin("guard").(*Plugin)
	p.dialAttempts = 1
	p.dialTimeout = 200 * time.Millisecond
	return inst, p
}

func run(t *testing.T, p *Plugin, worlds []string, flags ...string) error {
	t.Helper()
	cmd := &cobra.Command{Use: "guard"}
	p.Command(cmd)
	if err := cmd.ParseFlags(flags); err != nil {
		t.Fatal(err)
	}
	return p.Run(context.Background(), plugin.Args{Worlds: worlds})
}

func TestOfflineWorldRecorded(t *testing.T) {
	inst, p := setup(t, "alpha")

	if err := run(t, p, []string{"alpha"}, "--test-status"); err != nil {
		t.Fatal(err)
	}
	rec := p.DB()["alpha"]
	if rec == nil || rec.FailedTest != "status" || rec.TestMessage != "world is offline" {
		t.Fatalf("record = %+v", rec)
	}
	if !strings.Contains(inst.Output.String(), "failed_test") {
		t.Errorf("output:\n%s", inst.Output.String())
	}

	db, err := loadDB(filepath.Join(inst.Layout.PluginData("guard"), "errors.json"))
	if err != nil {
		t.Fatal(err)
	}
	if db["alpha"] == nil || !db["alpha"].WarningPrinted {
		t.Errorf("saved db = %+v", db)
	}

	inst.Output.Reset()
	if err := run(t, p, []string{"alpha"}, "--test-status", "--output-only-new-warnings"); err != nil {
		t.Fatal(err)
	}
	if inst.Output.Len() != 0 {
		t.Errorf("warning printed twice:\n%s", inst.Output.String())
	}
}

func TestHealthyWorldDropsRecord(t *testing.T) {
	inst, p := setup(t, "alpha")
	p.db["alpha"] = &Record{FailedTest: "status", ErrorAction: ActionNone}
	inst.StartWorld("alpha")

	if err := run(t, p, []string{"alpha"}, "--test-status"); err != nil {
		t.Fatal(err)
	}
	if _, ok := p.DB()["alpha"]; ok {
		t.Error("record kept for a healthy world")
	}
}

func TestMultipleLaunchesFail(t *testing.T) {
	inst, p := setup(t, "alpha")
	w := inst.StartWorld("alpha")
	if err := inst.Sessions.Spawn(session.Name("alpha"), []string{"java"}, session.SpawnOptions{WorkDir: w.Directory()}); err != nil {
		t.Fatal(err)
	}

	if err := run(t, p, []string{"alpha"}, "--test-status"); err != nil {
		t.Fatal(err)
	}
	rec := p.DB()["alpha"]
	if rec == nil || !strings.Contains(rec.TestMessage, "more than one time") {
		t.Errorf("record = %+v", rec)
	}
}

func TestErrorActionRunsOnce(t *testing.T) {
	inst, p := setup(t, "alpha")
	inst.Sessions.FailSpawn = true

	for i := 0; i < 2; i++ {
		if err := run(t, p, []string{"alpha"}, "--test-status", "--error-action", ActionRestart); err != nil {
			t.Fatal(err)
		}
	}
	if n := inst.Sessions.Spawned(); n != 1 {
		t.Errorf("spawned %d times, want 1", n)
	}
	if rec := p.DB()["alpha"]; rec == nil || rec.ErrorAction != ActionRestart {
		t.Errorf("record = %+v", rec)
	}
}

func TestRestartAction(t *testing.T) {
	inst, p := setup(t, "alpha")
	if err := run(t, p, []string{"alpha"}, "--test-status", "--error-action", ActionRestart); err != nil {
		t.Fatal(err)
	}
	if online, _ := inst.World("alpha").IsOnline(); !online {
		t.Error("restart action did not start the world")
	}
}

func TestLogTest(t *testing.T) {
	inst, p := setup(t, "alpha")
	w := inst.StartWorld("alpha")
	log := "[INFO] Starting minecraft server version 1.11\n2024-01-01 [SEVERE] out of memory\n"
	if err := os.MkdirAll(filepath.Dir(w.LogPath()), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(w.LogPath(), []byte(log), 0644); err != nil {
		t.Fatal(err)
	}

	if err := run(t, p, []string{"alpha"}, "--test-log"); err != nil {
		t.Fatal(err)
	}
	rec := p.DB()["alpha"]
	if rec == nil || rec.FailedTest != "log" || !strings.Contains(rec.TestMessage, "out of memory") {
		t.Errorf("record = %+v", rec)
	}
}

func TestPortTest(t *testing.T) {
	inst, p := setup(t, "alpha")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	props := fmt.Sprintf("server-ip=127.0.0.1\nserver-port=%d\n", port)
	if err := os.WriteFile(inst.World("alpha").Path("server.properties"), []byte(props), 0644); err != nil {
		t.Fatal(err)
	}

	if err := run(t, p, []string{"alpha"}, "--test-port"); err != nil {
		t.Fatal(err)
	}
	if rec := p.DB()["alpha"]; rec != nil {
		t.Fatalf("open port failed the test: %+v", rec)
	}

	ln.Close()
	if err := run(t, p, []string{"alpha"}, "--test-port"); err != nil {
		t.Fatal(err)
	}
	if rec := p.DB()["alpha"]; rec == nil || rec.FailedTest != "port" {
		t.Errorf("record = %+v", rec)
	}
}

func TestTextFormat(t *testing.T) {
	inst, p := setup(t, "alpha")
	if err := run(t, p, []string{"alpha"}, "--output-format", FormatText); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(inst.Output.String(), "alpha\n=====\n") {
		t.Errorf("output:\n%s", inst.Output.String())
	}
}

func TestInvalidFlags(t *testing.T) {
	_, p := setup(t, "alpha")
	if err := run(t, p, []string{"alpha"}, "--error-action", "explode"); err == nil {
		t.Error("accepted an unknown error action")
	}
}
