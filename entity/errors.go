package entity

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable class of a failure returned by the core.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindDuplicateName Kind = "duplicate_name"
	KindInvalidState  Kind = "invalid_state"
	KindAlreadyVoted  Kind = "already_voted"
	KindDuplicateVote Kind = "duplicate_vote"
	KindForbidden     Kind = "forbidden"
	KindConflict      Kind = "conflict"
	KindInternal      Kind = "internal"
)

// Error is a recoverable failure with a kind and a human message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches any *Error of the same kind when target is a bare sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrDuplicateName = &Error{Kind: KindDuplicateName}
	ErrInvalidState  = &Error{Kind: KindInvalidState}
	ErrAlreadyVoted  = &Error{Kind: KindAlreadyVoted}
	ErrDuplicateVote = &Error{Kind: KindDuplicateVote}
	ErrForbidden     = &Error{Kind: KindForbidden}
	ErrConflict      = &Error{Kind: KindConflict}
)

// Repository sentinels, translated by the core into the taxonomy above.
var (
	ErrDuplicateKey = errors.New("duplicate key")
	ErrStaleState   = errors.New("stale state")
)

func newError(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error {
	return newError(KindValidation, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return newError(KindNotFound, format, args...)
}

func DuplicateName(format string, args ...interface{}) error {
	return newError(KindDuplicateName, format, args...)
}

func InvalidState(format string, args ...interface{}) error {
	return newError(KindInvalidState, format, args...)
}

func AlreadyVoted(format string, args ...interface{}) error {
	return newError(KindAlreadyVoted, format, args...)
}

func DuplicateVote(format string, args ...interface{}) error {
	return newError(KindDuplicateVote, format, args...)
}

func Forbidden(format string, args ...interface{}) error {
	return newError(KindForbidden, format, args...)
}

func Conflict(format string, args ...interface{}) error {
	return newError(KindConflict, format, args...)
}

// KindOf returns the kind of err, KindInternal for anything outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
