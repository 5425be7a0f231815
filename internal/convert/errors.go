package convert

import (
	"errors"
	"fmt"
)

// Kind classifies a conversion failure.
type Kind int

const (
	// KindInput is a missing or malformed request field.
	KindInput Kind = iota + 1
	// KindValidation is a keystore that failed the integrity or password probe.
	KindValidation
	// KindExternalTool is a conversion stage that failed.
	KindExternalTool
	// KindResource is a workspace that could not be created or written.
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "InputError"
	case KindValidation:
		return "ValidationError"
	case KindExternalTool:
		return "ExternalToolError"
	case KindResource:
		return "ResourceError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrInput        = &Error{Kind: KindInput}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrExternalTool = &Error{Kind: KindExternalTool}
	ErrResource     = &Error{Kind: KindResource}
)

// Error is the single error type returned by Pipeline.Run.
type Error struct {
	Kind Kind
	// State is the last state the pipeline reached before failing.
	State State
	// Msg is safe to show to the caller for input and validation errors.
	Msg string
	// Err is the underlying cause. It is logged, never shown to the caller.
	Err error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Msg != "" || t.Err != nil || t.State != "" {
		return false
	}
	return t.Kind == e.Kind
}

// UserMessage returns the message for the caller. Tool and resource failures
// get a generic message with no paths, exit codes, or tool output.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindInput, KindValidation:
		if e.Msg != "" {
			return e.Msg
		}
		return "invalid request"
	case KindExternalTool:
		return "conversion failed"
	default:
		return "internal error"
	}
}

// KindOf returns the kind of err, or 0 if err is not a *Error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}

func inputError(msg string) *Error {
	return &Error{Kind: KindInput, State: StateReceived, Msg: msg}
}
