// Package errors provides the typed error model for the node.
//
// Every failure surfaced across a package boundary is an *Error carrying a
// Code drawn from the three classes of the error handling design: local
// recoverable (protocol/validation violations that stay at the peer
// boundary), state-corrupting (MMR/kernel-sum failures that force a reset to
// genesis), and fatal (supervisor shutdown failures).
package errors

import (
	"errors"
	"fmt"
)

// Code identifies the broad failure class and reason of an Error.
type Code int

const (
	// Unknown is the zero value; New always sets a real code.
	Unknown Code = iota

	// Local recoverable — never escapes the peer boundary.
	InvalidHeader
	InvalidBlock
	InvalidTransaction
	ProtocolViolation

	// State-corrupting — the node resets to genesis and notifies via the
	// error callback.
	StateCorrupt

	// Fatal — recorded as "closing" with error_occurred visible via the
	// public API.
	IO
	Fatal
)

func (c Code) String() string {
	switch c {
	case InvalidHeader:
		return "InvalidHeader"
	case InvalidBlock:
		return "InvalidBlock"
	case InvalidTransaction:
		return "InvalidTransaction"
	case ProtocolViolation:
		return "ProtocolViolation"
	case StateCorrupt:
		return "StateCorrupt"
	case IO:
		return "IO"
	case Fatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Error is the node's uniform error type. It wraps an underlying cause
// (possibly nil) and carries a Code so callers can branch on failure class
// without string matching.
type Error struct {
	Code       Code
	Message    string
	WrappedErr error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.WrappedErr == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.WrappedErr)
}

// Unwrap lets errors.Is/errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.WrappedErr
}

// Is reports whether target shares this error's Code, following wrapped
// causes when it doesn't.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var te *Error
	if errors.As(target, &te) && te.Code == e.Code {
		return true
	}
	if e.WrappedErr != nil {
		return errors.Is(e.WrappedErr, target)
	}
	return false
}

// New builds an Error. The last argument may be an error to wrap.
func New(code Code, format string, args ...interface{}) *Error {
	var wrapped error
	if n := len(args); n > 0 {
		if err, ok := args[n-1].(error); ok {
			wrapped = err
			args = args[:n-1]
		}
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Code: code, Message: msg, WrappedErr: wrapped}
}

func NewInvalidHeader(format string, args ...interface{}) *Error {
	return New(InvalidHeader, format, args...)
}

func NewInvalidBlock(format string, args ...interface{}) *Error {
	return New(InvalidBlock, format, args...)
}

func NewInvalidTransaction(format string, args ...interface{}) *Error {
	return New(InvalidTransaction, format, args...)
}

func NewProtocolViolation(format string, args ...interface{}) *Error {
	return New(ProtocolViolation, format, args...)
}

func NewStateCorrupt(format string, args ...interface{}) *Error {
	return New(StateCorrupt, format, args...)
}

func NewIO(format string, args ...interface{}) *Error {
	return New(IO, format, args...)
}

func NewFatal(format string, args ...interface{}) *Error {
	return New(Fatal, format, args...)
}

// Is reports whether err's chain contains target, delegating to the
// standard library so callers don't need to import both packages.
func Is(err, target error) bool { return errors.Is(err, target) }

// As delegates to the standard library's errors.As.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// IsLocalRecoverable reports whether err is one of the local-recoverable
// classes (§7): individual message parse errors, per-peer protocol
// violations, or validation failures in an incoming tx/block/header.
func IsLocalRecoverable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case InvalidHeader, InvalidBlock, InvalidTransaction, ProtocolViolation:
		return true
	default:
		return false
	}
}

// IsStateCorrupting reports whether err demands a reset to genesis.
func IsStateCorrupting(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == StateCorrupt
}
