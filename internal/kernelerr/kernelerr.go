// Package kernelerr defines the kind-tagged error type shared by every
// orchestration package, so callers can dispatch on error kind with
// errors.Is instead of parsing message strings.
package kernelerr

import (
	"errors"
	"fmt"
)

// Kind identifies a category of failure recognized across the kernel.
type Kind string

const (
	NotFound          Kind = "not_found"
	NotAGitRepo       Kind = "not_a_git_repo"
	PathEscape        Kind = "path_escape"
	InvalidPath       Kind = "invalid_path"
	SessionLimit      Kind = "session_limit"
	SessionExists     Kind = "session_exists"
	RunningWorkspace  Kind = "running_workspace"
	GitFailure        Kind = "git_failure"
	Untrusted         Kind = "untrusted"
	TrustStale        Kind = "trust_stale"
	TrustDrift        Kind = "trust_drift"
	IoError           Kind = "io_error"
	SerializationErr  Kind = "serialization_error"
	LockPoisoned      Kind = "lock_poisoned"
	SecretError       Kind = "secret_error"
)

// Error is a kind-tagged error. It wraps an optional underlying cause so
// errors.Is/errors.As and %w formatting keep working against both the
// Kind sentinel and the original cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, kernelerr.Sentinel(kernelerr.NotFound)) work by
// comparing Kind against the Kind of a target *Error.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs a kind-tagged error with a message and no cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs a kind-tagged error around an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Sentinel returns a bare *Error carrying only a Kind, suitable for use as
// the target of errors.Is(err, kernelerr.Sentinel(kernelerr.NotFound)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Has reports whether err is a kernelerr.Error of the given kind.
func Has(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
