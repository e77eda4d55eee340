package world

import (
	"errors"
	"fmt"

	"github.com/emsm/emsm/internal/exitcode"
)

// Error kinds. Match them with errors.Is.
var (
	// ErrIsOnline: the operation needs an offline world.
	ErrIsOnline = errors.New("world is online")

	// ErrIsOffline: the operation needs an online world.
	ErrIsOffline = errors.New("world is offline")

	// ErrStartFailed: no session was found after the start.
	ErrStartFailed = errors.New("world start failed")

	// ErrStopFailed: the sessions survived the stop.
	ErrStopFailed = errors.New("world stop failed")

	// ErrCommandTimeout: the log did not grow after a command. The
	// server may still be healthy.
	ErrCommandTimeout = errors.New("world did not react")

	// ErrUnknownWorld is matched by lookups of unregistered worlds.
	ErrUnknownWorld = errors.New("unknown world")
)

// Error is a status conflict or failed transition of one world.
type Error struct {
	Kind  error
	World *World
	Err   error // optional detail
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.World.Name(), e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the error kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExitCode implements exitcode.Coder.
func (e *Error) ExitCode() int {
	switch e.Kind {
	case ErrIsOnline, ErrIsOffline:
		return exitcode.ErrConflict
	case ErrStartFailed:
		return exitcode.ErrStartFailed
	case ErrStopFailed:
		return exitcode.ErrStopFailed
	case ErrCommandTimeout:
		return exitcode.ErrTimeout
	}
	return exitcode.ErrGeneral
}

func newError(kind error, w *World, detail error) *Error {
	return &Error{Kind: kind, World: w, Err: detail}
}

// LookupError reports an unregistered world name.
type LookupError struct {
	Name string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("unknown world %q", e.Name)
}

// Is matches ErrUnknownWorld.
func (e *LookupError) Is(target error) bool {
	return target == ErrUnknownWorld
}

// ExitCode implements exitcode.Coder.
func (e *LookupError) ExitCode() int {
	return exitcode.ErrWorldNotFound
}
