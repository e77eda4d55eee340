package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Double is a FAKE with SPY capabilities for the Host interface.
//
// Sessions live in memory; spawned sessions get increasing fake pids.
// Like screen, spawning a name twice yields two sessions with that name.
// Hooks let tests model how the hosted process reacts to input.
type Double struct {
	mu       sync.Mutex
	nextPID  int
	sessions map[string][]*doubleSession
	attached []int

	// OnText, when set, is called after text is recorded for a session.
	// It runs without the Double's lock held, so it may call Exit.
	OnText func(name, text string)

	// FailSpawn makes spawned processes die immediately.
	FailSpawn bool

	// IgnoreKill makes Kill succeed without ending the session.
	IgnoreKill bool
}

type doubleSession struct {
	pid  int
	argv []string
	opts SpawnOptions
	sent []string
}

// NewDouble creates an empty Double.
func NewDouble() *Double {
	return &Double{
		nextPID:  1000,
		sessions: make(map[string][]*doubleSession),
	}
}

var _ Host = (*Double)(nil)

// ListPIDs returns the pids of the sessions called name, in spawn order.
func (d *Double) ListPIDs(name string) ([]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var pids []int
	for _, s := range d.sessions[name] {
		pids = append(pids, s.pid)
	}
	return pids, nil
}

// Spawn records a new session.
func (d *Double) Spawn(name string, argv []string, opts SpawnOptions) error {
	if name == "" {
		return errors.New("session name cannot be empty")
	}
	if len(argv) == 0 {
		return errors.New("empty command")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextPID++
	if d.FailSpawn {
		return nil
	}
	d.sessions[name] = append(d.sessions[name], &doubleSession{
		pid:  d.nextPID,
		argv: slices.Clone(argv),
		opts: opts,
	})
	return nil
}

// SendText records text for the session identified by pid and name.
func (d *Double) SendText(pid int, name, text string) error {
	d.mu.Lock()
	s := d.find(pid, name)
	if s == nil {
		d.mu.Unlock()
		return fmt.Errorf("no session %d.%s", pid, name)
	}
	s.sent = append(s.sent, text)
	hook := d.OnText
	d.mu.Unlock()

	if hook != nil {
		hook(name, text)
	}
	return nil
}

// Attach records the attach request.
func (d *Double) Attach(pid int, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.find(pid, name) == nil {
		return fmt.Errorf("no session %d.%s", pid, name)
	}
	d.attached = append(d.attached, pid)
	return nil
}

// Kill ends the session with the given pid.
func (d *Double) Kill(pid int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name, list := range d.sessions {
		for i, s := range list {
			if s.pid != pid {
				continue
			}
			if d.IgnoreKill {
				return nil
			}
			d.remove(name, i)
			return nil
		}
	}
	return fmt.Errorf("kill %d: no such process", pid)
}

// Exit ends every session called name, as if the hosted process quit.
func (d *Double) Exit(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, name)
}

// Sent returns every text sent to sessions called name.
func (d *Double) Sent(name string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []string
	for _, s := range d.sessions[name] {
		out = append(out, s.sent...)
	}
	return out
}

// Argv returns the command of the most recent session called name.
func (d *Double) Argv(name string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.sessions[name]
	if len(list) == 0 {
		return nil
	}
	return slices.Clone(list[len(list)-1].argv)
}

// Options returns the spawn options of the most recent session called name.
func (d *Double) Options(name string) SpawnOptions {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.sessions[name]
	if len(list) == 0 {
		return SpawnOptions{}
	}
	return list[len(list)-1].opts
}

// Spawned returns how many sessions were spawned in total.
func (d *Double) Spawned() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nextPID - 1000
}

// Attached returns the pids passed to Attach.
func (d *Double) Attached() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.attached)
}

func (d *Double) find(pid int, name string) *doubleSession {
	for _, s := range d.sessions[name] {
		if s.pid == pid {
			return s
		}
	}
	return nil
}

func (d *Double) remove(name string, i int) {
	list := append(d.sessions[name][:i:i], d.sessions[name][i+1:]...)
	if len(list) == 0 {
		delete(d.sessions, name)
		return
	}
	d.sessions[name] = list
}
