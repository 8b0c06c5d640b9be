// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the failure categories the API and
// the streaming relay distinguish between.
type Kind string

const (
	// KindNotFound indicates a missing session, sprint item, or segment.
	KindNotFound Kind = "not_found"
	// KindValidation indicates malformed input: bad patch JSON, an invalid
	// status value, or missing required arguments.
	KindValidation Kind = "validation"
	// KindInvalidTransition indicates an illegal phase transition request.
	KindInvalidTransition Kind = "invalid_transition"
	// KindBusy indicates a turn is already in flight on the session.
	KindBusy Kind = "busy"
	// KindStoreIO indicates an underlying document read/write failure.
	KindStoreIO Kind = "store_io"
	// KindEngine indicates the reasoning-engine invocation failed or was cancelled.
	KindEngine Kind = "engine"
)

// Error is a classified error. The zero Kind is never produced; every
// constructor below tags its kind explicitly.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound returns a KindNotFound error.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Validation returns a KindValidation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// InvalidTransition returns a KindInvalidTransition error.
func InvalidTransition(format string, args ...any) error {
	return &Error{Kind: KindInvalidTransition, Msg: fmt.Sprintf(format, args...)}
}

// Busy returns a KindBusy error.
func Busy(format string, args ...any) error {
	return &Error{Kind: KindBusy, Msg: fmt.Sprintf(format, args...)}
}

// StoreIO wraps an underlying storage failure.
func StoreIO(msg string, err error) error {
	return &Error{Kind: KindStoreIO, Msg: msg, Err: err}
}

// Engine wraps a reasoning-engine failure.
func Engine(msg string, err error) error {
	return &Error{Kind: KindEngine, Msg: msg, Err: err}
}

// KindOf extracts the kind of err, or "" if err carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err is classified as KindNotFound.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsValidation reports whether err is classified as KindValidation.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsInvalidTransition reports whether err is classified as KindInvalidTransition.
func IsInvalidTransition(err error) bool { return KindOf(err) == KindInvalidTransition }

// IsBusy reports whether err is classified as KindBusy.
func IsBusy(err error) bool { return KindOf(err) == KindBusy }

// IsStoreIO reports whether err is classified as KindStoreIO.
func IsStoreIO(err error) bool { return KindOf(err) == KindStoreIO }

// IsEngine reports whether err is classified as KindEngine.
func IsEngine(err error) bool { return KindOf(err) == KindEngine }
