// Package ccerr implements control chain's structured error taxonomy.
// Failures never propagate as panics or exceptions to caller callbacks;
// they surface as returned *Error values (or -1 sentinels at the public
// API boundary) that callers inspect with errors.Is/As against a Kind.
package ccerr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	SerialUnavailable Kind = "serial unavailable"
	FrameCorrupt      Kind = "frame corrupt"
	ProtocolMismatch  Kind = "protocol mismatch"
	Timeout           Kind = "timeout"
	CapacityExhausted Kind = "capacity exhausted"
	UnknownDevice     Kind = "unknown device"
	UnknownAssignment Kind = "unknown assignment"
)

// Error carries an operation name, a Kind, an optional device id, a
// human-readable message, and an optional wrapped cause.
type Error struct {
	Op     string
	Kind   Kind
	Device int
	Msg    string
	Inner  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Device != 0 {
		return fmt.Sprintf("controlchain: %s: %s (device %d)", e.Op, msg, e.Device)
	}
	return fmt.Sprintf("controlchain: %s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func New(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

func NewDevice(op string, kind Kind, device int, msg string) *Error {
	return &Error{Op: op, Kind: kind, Device: device, Msg: msg}
}

func Wrap(op string, kind Kind, inner error) *Error {
	if inner == nil {
		return nil
	}
	msg := inner.Error()
	return &Error{Op: op, Kind: kind, Msg: msg, Inner: inner}
}

// Is reports whether err's Kind matches kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
