// Package exitcode defines structured exit codes for emsm runs.
// Scripts (cron jobs, init systems) can react to specific failures without
// parsing error messages.
//
// # Exit Code Ranges
//
//   - 0: Success
//   - 1-9: General errors (usage)
//   - 10-19: Resource not found (world, server, plugin, file)
//   - 20-29: Permission/access errors
//   - 30-39: Network/connectivity errors
//   - 40-49: Timeout errors
//   - 50-59: Conflict/state errors
//   - 60-69: World lifecycle failures
//
// # Usage
//
//	return exitcode.PluginNotFound("mapper") // Exit code 12
//	return exitcode.Newf(exitcode.ErrUsage, "invalid flag: %s", flag)
//
//	code := exitcode.Code(err) // ErrGeneral for non-coded errors
//
// Errors defined elsewhere can carry their own code by implementing Coder.
package exitcode

import (
	"errors"
	"fmt"
)

const (
	// Success indicates the run completed successfully.
	Success = 0

	// General errors (1-9)
	ErrGeneral = 1 // General/unknown error
	ErrUsage   = 2 // Invalid arguments or usage

	// Resource not found (10-19)
	ErrWorldNotFound  = 10 // World not found
	ErrServerNotFound = 11 // Server flavor not found
	ErrPluginNotFound = 12 // Plugin not found
	ErrFileNotFound   = 13 // File or path not found

	// Permission/access errors (20-29)
	ErrWrongUser = 21 // Could not switch to the configured user

	// Network/connectivity (30-39)
	ErrNetwork = 30 // Network/connectivity error

	// Timeout errors (40-49)
	ErrTimeout     = 40 // Operation timed out
	ErrLockTimeout = 41 // Application lock not acquired in time

	// Conflict/state errors (50-59)
	ErrConflict = 50 // Resource conflict (e.g. world is online)

	// World lifecycle failures (60-69)
	ErrStartFailed = 60 // World did not come online
	ErrStopFailed  = 61 // World did not go offline
)

// Coder is implemented by errors that know their own exit code.
type Coder interface {
	ExitCode() int
}

// Error wraps an error with a specific exit code.
type Error struct {
	Code    int
	Message string
	Cause   error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode implements Coder.
func (e *Error) ExitCode() int {
	return e.Code
}

// Wrap wraps an existing error with a code and message.
func Wrap(code int, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Wrapf wraps an existing error with a code and printf-style message.
func Wrapf(code int, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Newf creates a new coded error with printf-style formatting.
func Newf(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Code extracts the exit code from an error.
// Returns ErrGeneral (1) if nothing in the chain carries a code.
func Code(err error) int {
	if err == nil {
		return Success
	}
	var coded Coder
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	return ErrGeneral
}

// PluginNotFound returns an error for an unknown plugin.
func PluginNotFound(name string) *Error {
	return Newf(ErrPluginNotFound, "plugin not found: %s", name)
}

// FileNotFound returns an error for a missing file.
func FileNotFound(path string) *Error {
	return Newf(ErrFileNotFound, "file not found: %s", path)
}
