package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// AutoPort asks for a free port to be chosen once and written back.
const AutoPort = "<auto>"

// First port probed for automatic assignment, the game's default.
const firstAutoPort = 25565

// ErrNoFreePort is returned when automatic port assignment finds nothing.
var ErrNoFreePort = errors.New("no unused port found")

// Port returns the port of the named world. The AutoPort sentinel is
// resolved by probing for a port that is neither bound on this host nor
// configured for another world; the result is stored in the world file.
func (m *Manager) Port(world string) (int, error) {
	f := m.World(world)
	if f == nil {
		return 0, fmt.Errorf("no configuration for world %q", world)
	}
	sec := f.Section("world")
	raw := strings.TrimSpace(sec.String("port", DefaultPort))

	if raw != AutoPort {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 0 || port > 65535 {
			return 0, fmt.Errorf("[world] port of %q: %q is neither a port nor %s", world, raw, AutoPort)
		}
		return port, nil
	}

	port, err := unusedPort(firstAutoPort, 65535, m.takenPorts(world))
	if err != nil {
		return 0, fmt.Errorf("assigning port to %q: %w", world, err)
	}
	sec.Set("port", strconv.Itoa(port))
	m.log.Sugar().Infof("assigned port %d to world %s", port, world)
	return port, nil
}

func (m *Manager) takenPorts(except string) map[int]bool {
	taken := make(map[int]bool)
	for name, f := range m.worlds {
		if name == except {
			continue
		}
		raw, ok := f.Section("world").Get("port")
		if !ok {
			continue
		}
		if port, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			taken[port] = true
		}
	}
	return taken
}

func unusedPort(min, max int, taken map[int]bool) (int, error) {
	for port := min; port <= max; port++ {
		if taken[port] {
			continue
		}
		l, err := net.Listen("tcp", ":"+strconv.Itoa(port))
		if err != nil {
			continue
		}
		_ = l.Close()
		return port, nil
	}
	return 0, ErrNoFreePort
}
