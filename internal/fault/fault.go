// Package fault defines the error kinds shared by the key store, the engine
// invoker, the file registry and the HTTP surface.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure independently of the component that produced it
type Kind string

const (
	InvalidKey      Kind = "InvalidKey"
	InvalidRequest  Kind = "InvalidRequest"
	Unauthorized    Kind = "Unauthorized"
	NotFound        Kind = "NotFound"
	PayloadTooLarge Kind = "PayloadTooLarge"
	LaunchError     Kind = "LaunchError"
	EngineFailure   Kind = "EngineFailure"
	Timeout         Kind = "Timeout"
	DecodeError     Kind = "DecodeError"
	Internal        Kind = "Internal"
)

// Error is a classified failure. Op names the operation that failed
// (e.g. "ingest", "invoke"), Message is the human readable reason.
type Error struct {
	Kind     Kind
	Op       string
	Message  string
	ExitCode int // only meaningful for EngineFailure
	Err      error
}

// New creates a classified error without an underlying cause
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies an underlying error
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf creates a classified error with a formatted message
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Message
	switch {
	case msg == "" && e.Err != nil:
		msg = e.Err.Error()
	case msg != "" && e.Err != nil:
		msg = msg + ": " + e.Err.Error()
	case msg == "":
		msg = string(e.Kind)
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so that errors.Is(err, fault.New(fault.NotFound, "", ""))
// and errors.Is(err, fault.NotFound) style sentinels both work.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case *Error:
		return t.Kind == e.Kind
	case Kind:
		return t == e.Kind
	}
	return false
}

// Error lets a bare Kind act as an errors.Is sentinel
func (k Kind) Error() string {
	return string(k)
}

// KindOf returns the kind of the first classified error in err's chain,
// or Internal if there is none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
