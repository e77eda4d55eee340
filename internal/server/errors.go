package server

import (
	"errors"
	"fmt"

	"github.com/emsm/emsm/internal/exitcode"
)

var (
	// ErrUnknownFlavor is matched by lookups of unregistered flavors.
	ErrUnknownFlavor = errors.New("unknown server")

	// ErrDuplicateFlavor is returned when a name is registered twice.
	ErrDuplicateFlavor = errors.New("server already registered")

	// ErrFlavorOnline is returned when a destructive operation is refused
	// because a world powered by the flavor is running.
	ErrFlavorOnline = errors.New("server is in use by an online world")
)

// LookupError reports an unregistered flavor name.
type LookupError struct {
	Name string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("unknown server %q", e.Name)
}

// Is matches ErrUnknownFlavor.
func (e *LookupError) Is(target error) bool {
	return target == ErrUnknownFlavor
}

// ExitCode implements exitcode.Coder.
func (e *LookupError) ExitCode() int {
	return exitcode.ErrServerNotFound
}

// InstallationError is returned when server software could not be
// downloaded, built or unpacked.
type InstallationError struct {
	Flavor string
	Err    error
}

func (e *InstallationError) Error() string {
	return fmt.Sprintf("installing %s: %v", e.Flavor, e.Err)
}

func (e *InstallationError) Unwrap() error {
	return e.Err
}

func installErr(f *Flavor, format string, args ...interface{}) error {
	return &InstallationError{Flavor: f.Name(), Err: fmt.Errorf(format, args...)}
}
