package model

import (
	"errors"
	"fmt"
)

type Kind int

const (
	UnknownFailure Kind = iota
	AlignmentFailure
	NotInitialized
	ProcessingTimeout
	ResourceExhausted
)

func (k Kind) String() string {
	switch k {
	case AlignmentFailure:
		return "AlignmentFailure"
	case NotInitialized:
		return "NotInitialized"
	case ProcessingTimeout:
		return "ProcessingTimeout"
	case ResourceExhausted:
		return "ResourceExhausted"
	default:
		return "UnknownFailure"
	}
}

// Error is a transfer failure reported by a Capability or by the code
// supervising it.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func NewError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrAlignmentFailure  = &Error{Kind: AlignmentFailure}
	ErrNotInitialized    = &Error{Kind: NotInitialized}
	ErrProcessingTimeout = &Error{Kind: ProcessingTimeout}
	ErrResourceExhausted = &Error{Kind: ResourceExhausted}
	ErrUnknownFailure    = &Error{Kind: UnknownFailure}
)

// AsError converts any error into an *Error. Errors that carry no kind
// become UnknownFailure.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: UnknownFailure, Err: err}
}

type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("InitializationError: %v", e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }
