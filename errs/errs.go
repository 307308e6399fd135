// Package errs defines the tagged error taxonomy used at collaborator
// boundaries. Classification is carried on the error value itself so the
// orchestrator never has to inspect message text.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error into a user-mappable category.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindRateLimit
	KindNetwork
	KindRetrieval
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindNetwork:
		return "network"
	case KindRetrieval:
		return "retrieval"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error carries a kind plus an internal cause. The cause is for logs only;
// user-facing text comes from UserMessage.
type Error struct {
	kind Kind
	msg  string
	err  error
}

// New creates a tagged error with an internal message.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Newf creates a tagged error with a formatted internal message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an existing error. A nil err yields a nil error interface,
// so the result is safe to return directly.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

// KindOf returns the kind of err, walking the wrap chain. Untagged errors
// classify as internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// UserMessage returns the safe templated message for an error's kind. Raw
// internal error text never reaches the end user.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindValidation:
		return "Your message could not be processed. Please check it and try again."
	case KindAuth:
		return "The assistant is temporarily unavailable. Please contact support if this persists."
	case KindRateLimit:
		return "The assistant is receiving too many requests right now. Please try again shortly."
	case KindNetwork:
		return "The assistant could not reach a required service. Please try again shortly."
	case KindRetrieval:
		return "I couldn't search the knowledge base right now. Please try again in a moment."
	default:
		return "Something went wrong while generating a response. Please try again."
	}
}
