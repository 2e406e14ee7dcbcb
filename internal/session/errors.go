// ABOUTME: Error taxonomy for session event handling
// ABOUTME: ErrorKind classifies failures; SurfacePolicy decides which ones reach the client

package session

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a session failure.
type ErrorKind int

const (
	// ExecutionFailure is an error raised while running an event.
	ExecutionFailure ErrorKind = iota
	// AuthorizationDenied refuses an anonymous or over-quota caller.
	AuthorizationDenied
	// ResolutionFailure means an app or asset lookup found nothing.
	ResolutionFailure
	// ProtocolViolation is a malformed inbound frame.
	ProtocolViolation
	// TranscodingFailure is an audio decode or resample error.
	TranscodingFailure
)

func (k ErrorKind) String() string {
	switch k {
	case AuthorizationDenied:
		return "authorization_denied"
	case ResolutionFailure:
		return "resolution_failure"
	case ProtocolViolation:
		return "protocol_violation"
	case TranscodingFailure:
		return "transcoding_failure"
	default:
		return "execution_failure"
	}
}

// Error is a classified session failure.
type Error struct {
	Kind ErrorKind
	Op   string // event or phase that failed
	Msg  string // message shown to the client; defaults to Err's text
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the text a surfaced error frame carries.
func (e *Error) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Err.Error()
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, ExecutionFailure when err is not an *Error.
func KindOf(err error) ErrorKind {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return ExecutionFailure
}

// errorMessage returns the client-facing text for err.
func errorMessage(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Message()
	}
	return err.Error()
}

// SurfacePolicy decides whether an event handler's error becomes a client frame.
type SurfacePolicy int

const (
	// Swallow logs the error and sends nothing.
	Swallow SurfacePolicy = iota
	// Surface sends an errors frame carrying the event's correlation id.
	Surface
)

// Policies maps inbound event names to their surface policy. Events that are
// not listed are swallowed.
type Policies map[string]SurfacePolicy

// DefaultPolicies surfaces create_asset failures and swallows run failures.
func DefaultPolicies() Policies {
	return Policies{
		EventRun:         Swallow,
		EventCreateAsset: Surface,
	}
}

// For returns the policy for event.
func (p Policies) For(event string) SurfacePolicy {
	if p == nil {
		return DefaultPolicies()[event]
	}
	return p[event]
}
