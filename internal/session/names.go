package session

import "strings"

// WorldFromName returns the world a session name belongs to.
// The second result is false for sessions not managed by emsm.
func WorldFromName(name string) (string, bool) {
	world, ok := strings.CutPrefix(name, Prefix)
	if !ok || world == "" {
		return "", false
	}
	return world, true
}
