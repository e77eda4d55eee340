package plugin

import (
	"errors"
	"fmt"

	"github.com/emsm/emsm/internal/exitcode"
)

// ErrUnknownPlugin is matched by lookups of plugins that are not loaded.
var ErrUnknownPlugin = errors.New("unknown plugin")

// ImplementationError reports a plugin file that does not describe a
// usable plugin. Scans log it and continue.
type ImplementationError struct {
	Plugin string
	Reason string
	Err    error
}

func (e *ImplementationError) Error() string {
	msg := fmt.Sprintf("plugin %q is not correctly implemented: %s", e.Plugin, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ImplementationError) Unwrap() error {
	return e.Err
}

// OutdatedError reports a plugin written for another major version.
type OutdatedError struct {
	Plugin  string
	Version string
	Host    string
}

func (e *OutdatedError) Error() string {
	return fmt.Sprintf("plugin %q is outdated: written for %s, running %s", e.Plugin, e.Version, e.Host)
}

// LookupError reports a plugin name that is not loaded.
type LookupError struct {
	Name string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("unknown plugin %q", e.Name)
}

// Is matches ErrUnknownPlugin.
func (e *LookupError) Is(target error) bool {
	return target == ErrUnknownPlugin
}

// ExitCode implements exitcode.Coder.
func (e *LookupError) ExitCode() int {
	return exitcode.ErrPluginNotFound
}
