package core

import (
	"errors"
	"fmt"
)

// Kind classifies a failure surfaced by the acquisition subsystem.
type Kind string

const (
	// KindInvalidKeyFormat indicates unparseable user input. Never retried.
	KindInvalidKeyFormat Kind = "INVALID_KEY_FORMAT"
	// KindAuthenticationFailed indicates the portal explicitly rejected the credentials.
	KindAuthenticationFailed Kind = "AUTHENTICATION_FAILED"
	// KindSessionRejected indicates a logged-out view was served despite a cached session.
	KindSessionRejected Kind = "SESSION_REJECTED"
	// KindDateSelectionFailed indicates the explicit-date affordance could not be used.
	KindDateSelectionFailed Kind = "DATE_SELECTION_FAILED"
	// KindAcquisitionFailed covers every other pipeline failure.
	KindAcquisitionFailed Kind = "ACQUISITION_FAILED"
)

// Reason refines KindAcquisitionFailed.
type Reason string

const (
	ReasonNone    Reason = ""
	ReasonTimeout Reason = "TIMEOUT"
	ReasonOther   Reason = "OTHER"
)

// Error is the structured error returned across package boundaries.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	label := string(e.Kind)
	if e.Reason != ReasonNone {
		label = fmt.Sprintf("%s(%s)", e.Kind, e.Reason)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", label, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", label, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind and reason, so sentinel-style
// comparisons such as errors.Is(err, ErrSessionRejected) work.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && (t.Reason == ReasonNone || e.Reason == t.Reason)
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidKeyFormat     = &Error{Kind: KindInvalidKeyFormat}
	ErrAuthenticationFailed = &Error{Kind: KindAuthenticationFailed}
	ErrSessionRejected      = &Error{Kind: KindSessionRejected}
	ErrDateSelectionFailed  = &Error{Kind: KindDateSelectionFailed}
	ErrAcquisitionFailed    = &Error{Kind: KindAcquisitionFailed}
	ErrTimeout              = &Error{Kind: KindAcquisitionFailed, Reason: ReasonTimeout}
)

// InvalidKeyFormat creates an invalid key error for the given input.
func InvalidKeyFormat(input string) *Error {
	return &Error{
		Kind:    KindInvalidKeyFormat,
		Message: fmt.Sprintf("invalid date format %q, expected a week offset (e.g. `1`, `-1`) or a date like `31/12/2021`", input),
	}
}

// AuthenticationFailed creates an authentication error carrying the portal's message.
func AuthenticationFailed(portalMsg string) *Error {
	return &Error{Kind: KindAuthenticationFailed, Message: fmt.Sprintf("can't log in: `%s`", portalMsg)}
}

// SessionRejected creates a silent-rejection error.
func SessionRejected(msg string) *Error {
	return &Error{Kind: KindSessionRejected, Message: msg}
}

// DateSelectionFailed creates a date selection error.
func DateSelectionFailed(msg string, cause error) *Error {
	return &Error{Kind: KindDateSelectionFailed, Message: msg, Cause: cause}
}

// AcquisitionFailed wraps any other pipeline failure.
func AcquisitionFailed(msg string, cause error) *Error {
	return &Error{Kind: KindAcquisitionFailed, Reason: ReasonOther, Message: msg, Cause: cause}
}

// Timeout reports that the caller stopped waiting for an acquisition.
func Timeout(msg string, cause error) *Error {
	return &Error{Kind: KindAcquisitionFailed, Reason: ReasonTimeout, Message: msg, Cause: cause}
}

// KindOf returns the Kind of err, or KindAcquisitionFailed for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindAcquisitionFailed
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Classify returns err unchanged when it already carries a Kind, otherwise
// wraps it as AcquisitionFailed(Other).
func Classify(msg string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return AcquisitionFailed(msg, err)
}
