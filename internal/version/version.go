// Package version holds the emsm release version and the compatibility rule
// plugins are checked against.
package version

import (
	"strings"
)

// Version is the emsm release. Plugins declare the release they were written
// for; only the major component has to match.
const Version = "5.0.0"

// Commit is the git commit the binary was built from, set via -ldflags.
var Commit = ""

// Major returns the leading dotted component of v ("5" for "5.0.0-beta").
func Major(v string) string {
	v = strings.TrimSpace(strings.TrimPrefix(v, "v"))
	major, _, _ := strings.Cut(v, ".")
	return major
}

// Compatible reports whether a plugin declaring version v can run on this host.
// A version needs at least a major and a minor component.
func Compatible(v string) bool {
	return CompatibleWith(Version, v)
}

// CompatibleWith is Compatible against an explicit host version.
func CompatibleWith(host, v string) bool {
	parts := strings.Split(strings.TrimSpace(strings.TrimPrefix(v, "v")), ".")
	if len(parts) < 2 || parts[0] == "" {
		return false
	}
	return Major(host) == parts[0]
}

// ShortCommit truncates a commit hash to 12 characters.
func ShortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// String renders the version with the short commit when known.
func String() string {
	if Commit == "" {
		return Version
	}
	return Version + " (" + ShortCommit(Commit) + ")"
}
