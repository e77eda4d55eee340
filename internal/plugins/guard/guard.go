// Package guard implements the built-in plugin that monitors worlds and
// reacts to failures. It is meant to run from cron.
package guard

import (
	"context"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emsm/emsm/internal/plugin"
	"github.com/emsm/emsm/internal/style"
	"github.com/emsm/emsm/internal/version"
	"github.com/emsm/emsm/internal/world"
)

const description = `Monitors the worlds and reacts on issues.

Three tests are available. Without a test flag all of them run.

* **status** fails if the world is offline or has been launched more
  than once.
* **log** fails if the latest log contains a severe error.
* **port** fails if the world's address does not accept connections.

A failing world is stopped or restarted according to *--error-action*.
The reaction happens once per failure; the failure is remembered until
the world passes all tests again.

    */5 * * * * emsm guard --all-worlds --error-action restart --output-only-new-warnings`

// Error actions.
const (
	ActionNone    = "none"
	ActionStop    = "stop"
	ActionRestart = "restart"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatText    = "text"
)

// Class is the guard plugin class.
var Class = plugin.Class{
	ID:          "guard",
	Version:     version.Version,
	Description: description,
	New:         New,
}

// Plugin is the guard plugin.
type Plugin struct {
	plugin.Base

	testStatus, testLog, testPort bool
	action                        string
	format                        string
	onlyNew                       bool

	dbPath string
	db     DB

	// Port probing; shortened by tests.
	dialTimeout  time.Duration
	dialAttempts int
	now          func() time.Time
}

// TestFailure is a failed world test.
type TestFailure struct {
	World   string
	Test    string
	Message string
}

func (f *TestFailure) Error() string {
	if f.Message == "" {
		return fmt.Sprintf("the world %q did not pass the guard test %q", f.World, f.Test)
	}
	return fmt.Sprintf("the world %q did not pass the guard test %q: %s", f.World, f.Test, f.Message)
}

// New creates the plugin and loads its database from the data directory.
func New(h plugin.Host, name string, _ *plugin.Descriptor) (plugin.Plugin, error) {
	p := &Plugin{
		Base:         plugin.NewBase(h, name),
		action:       ActionNone,
		format:       FormatConsole,
		dialTimeout:  time.Second,
		dialAttempts: 5,
		now:          time.Now,
	}
	dir, err := p.DataDir(true)
	if err != nil {
		return nil, err
	}
	p.dbPath = filepath.Join(dir, "errors.json")
	if p.db, err = loadDB(p.dbPath); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Plugin) Command(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVar(&p.testStatus, "test-status", false, "check if the world is online")
	f.BoolVar(&p.testLog, "test-log", false, "check if the log contains an error")
	f.BoolVar(&p.testPort, "test-port", false, "check if the world's server is reachable")
	f.StringVar(&p.action, "error-action", ActionNone, "reaction on detected errors: none, stop or restart")
	f.StringVar(&p.format, "output-format", FormatConsole, "output format: console or text")
	f.BoolVar(&p.onlyNew, "output-only-new-warnings", false, "print only new warnings")
}

// DB returns the failure records.
func (p *Plugin) DB() DB { return p.db }

// Run tests every selected world in alphabetical order, reacts on
// failures and prints the warnings. The database is saved afterwards.
func (p *Plugin) Run(ctx context.Context, args plugin.Args) error {
	switch p.action {
	case ActionNone, ActionStop, ActionRestart:
	default:
		return fmt.Errorf("invalid --error-action %q", p.action)
	}
	switch p.format {
	case FormatConsole, FormatText:
	default:
		return fmt.Errorf("invalid --output-format %q", p.format)
	}

	worlds, err := p.Host().Worlds().Selected(args.Worlds, args.AllWorlds)
	if err != nil {
		return err
	}
	for _, w := range sortedByName(worlds) {
		if err := p.guard(ctx, w); err != nil {
			return err
		}
		p.printStatus(p.Host().Out(), w.Name())
	}
	return p.db.save(p.dbPath)
}

func (p *Plugin) guard(ctx context.Context, w *world.World) error {
	failure, err := p.test(w)
	if err != nil {
		return err
	}
	if failure == nil {
		delete(p.db, w.Name())
		return nil
	}
	p.Log().Warn("world failed guard test", zap.String("world", w.Name()), zap.String("test", failure.Test),
		zap.String("message", failure.Message))

	rec, ok := p.db[w.Name()]
	if !ok {
		rec = &Record{}
		p.db[w.Name()] = rec
	}
	if !ok || rec.ErrorAction != p.action {
		p.react(ctx, w)
	}
	rec.FailedTest = failure.Test
	rec.TestMessage = failure.Message
	rec.TestTime = p.now()
	rec.ErrorAction = p.action
	return ctx.Err()
}

// react applies the error action. Its own failures are logged; the
// record stays so the next run does not repeat the reaction.
func (p *Plugin) react(ctx context.Context, w *world.World) {
	opts := w.DefaultStopOptions()
	opts.Force = true
	var err error
	switch p.action {
	case ActionStop:
		err = w.Stop(ctx, opts)
	case ActionRestart:
		err = w.Restart(ctx, opts)
	}
	if err != nil {
		p.Log().Error("guard error action failed", zap.String("world", w.Name()), zap.String("action", p.action),
			zap.Error(err))
	}
}

// test runs the selected tests and returns the first failure.
func (p *Plugin) test(w *world.World) (*TestFailure, error) {
	all := !p.testStatus && !p.testLog && !p.testPort
	if all || p.testStatus {
		if f, err := p.checkStatus(w); f != nil || err != nil {
			return f, err
		}
	}
	if all || p.testLog {
		if f, err := p.checkLog(w); f != nil || err != nil {
			return f, err
		}
	}
	if all || p.testPort {
		return p.checkPort(w), nil
	}
	return nil, nil
}

func (p *Plugin) checkStatus(w *world.World) (*TestFailure, error) {
	st, err := w.Status()
	if err != nil {
		return nil, err
	}
	switch {
	case !st.Online():
		return &TestFailure{World: w.Name(), Test: "status", Message: "world is offline"}, nil
	case st.LaunchedMultipleTimes():
		return &TestFailure{World: w.Name(), Test: "status", Message: "world has been launched more than one time"}, nil
	}
	return nil, nil
}

func (p *Plugin) checkLog(w *world.World) (*TestFailure, error) {
	re := w.Server().ErrorRe()
	if re == nil {
		return nil, nil
	}
	log, err := w.LatestLog()
	if err != nil {
		return nil, err
	}
	if m := re.FindString(log); m != "" {
		return &TestFailure{World: w.Name(), Test: "log", Message: strings.TrimSpace(m)}, nil
	}
	return nil, nil
}

func (p *Plugin) checkPort(w *world.World) *TestFailure {
	addr := w.Address()
	if addr.Port == 0 {
		p.Log().Warn("port test skipped, the world's address is unknown", zap.String("world", w.Name()))
		return nil
	}
	host := addr.Host
	if host == "" {
		host = "localhost"
	}
	target := net.JoinHostPort(host, strconv.Itoa(addr.Port))
	if !p.portOpen(target) {
		return &TestFailure{World: w.Name(), Test: "port", Message: target + " is not reachable"}
	}
	return nil
}

func (p *Plugin) portOpen(addr string) bool {
	for i := 0; i < p.dialAttempts; i++ {
		conn, err := net.DialTimeout("tcp", addr, p.dialTimeout)
		if err == nil {
			conn.Close()
			return true
		}
	}
	return false
}

func (p *Plugin) printStatus(out io.Writer, name string) {
	rec, ok := p.db[name]
	if !ok || (rec.WarningPrinted && p.onlyNew) {
		return
	}
	stamp := rec.TestTime.Format(time.ANSIC)
	if p.format == FormatText {
		fmt.Fprintln(out, name)
		fmt.Fprintln(out, strings.Repeat("=", len(name)))
		fmt.Fprintln(out)
		fmt.Fprintf(out, "failed_test:   %s\n", rec.FailedTest)
		fmt.Fprintf(out, "test_message:  %s\n", rec.TestMessage)
		fmt.Fprintf(out, "test_time:     %s\n", stamp)
		fmt.Fprintf(out, "error_action:  %s\n\n\n", rec.ErrorAction)
	} else {
		fmt.Fprintln(out, style.Heading(name))
		fmt.Fprintf(out, "\tfailed_test:   %s\n", style.Error.Render(rec.FailedTest))
		fmt.Fprintf(out, "\ttest_message:  %s\n", rec.TestMessage)
		fmt.Fprintf(out, "\ttest_time:     %s\n", stamp)
		fmt.Fprintf(out, "\terror_action:  %s\n", rec.ErrorAction)
	}
	rec.WarningPrinted = true
}

func sortedByName(ws []*world.World) []*world.World {
	out := slices.Clone(ws)
	slices.SortFunc(out, func(a, b *world.World) int { return strings.Compare(a.Name(), b.Name()) })
	return out
}
