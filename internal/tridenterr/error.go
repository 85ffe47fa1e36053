// Package tridenterr implements Trident's error taxonomy: a closed set
// of kinds (not Go types) that every error surfaced
// across the storage graph, COSI validation, encryption planning, and
// servicing control plane gets tagged with, plus a Cause chain in the
// style of github.com/pkg/errors so the original failure point is never
// lost under a pile of "failed to X" wrapping.
package tridenterr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the closed sum of error categories.
type Kind int

const (
	// InvalidInput covers static and dynamic host-configuration
	// problems: every storagegraph.BuildError kind, invalid
	// encryption-key file conditions, PCR mis-selection, architecture
	// mismatches.
	InvalidInput Kind = iota
	// InvalidCosi covers every cosi.ErrorKind.
	InvalidCosi
	// Servicing covers runtime failures while applying an already
	// validated plan: pcrlock generation, crypttab write, policy
	// generation.
	Servicing
	// Management covers mount/unmount, block-device lookup, filesystem
	// creation.
	Management
	// Internal covers invariants that should not have been reachable.
	// Always surfaced, never swallowed.
	Internal
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case InvalidCosi:
		return "InvalidCosi"
	case Servicing:
		return "Servicing"
	case Management:
		return "Management"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is a single tagged, causally-chained failure.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.cause)
}

// Unwrap exposes the immediate cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Cause exposes the immediate cause for github.com/pkg/errors-style
// callers that still use Cause() rather than Unwrap().
func (e *Error) Cause() error {
	return e.cause
}

// New builds a Kind-tagged error with no further cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags cause with a Kind and message, preserving it as the error's
// Cause/Unwrap target.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Internalf builds an Internal error, reserved for invariant violations a caller should treat as a bug report, not a retryable
// condition.
func Internalf(format string, args ...interface{}) *Error {
	return &Error{Kind: Internal, Message: fmt.Sprintf(format, args...)}
}

// KindOf walks err's cause chain (via both Unwrap and pkg/errors' Cause)
// looking for a tagged *Error, returning its Kind and true if found.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if te, ok := err.(*Error); ok {
			return te.Kind, true
		}
		cause := errors.Unwrap(err)
		if cause == nil {
			if c, ok := err.(interface{ Cause() error }); ok {
				cause = c.Cause()
			}
		}
		if cause == nil {
			break
		}
		err = cause
	}
	return Internal, false
}
