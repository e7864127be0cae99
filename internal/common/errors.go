// Package common defines shared sentinel errors and the typed error value
// used across sessionkeeper layers. Repositories return sentinels matched
// with errors.Is; services wrap outcomes into *Error, which carries the
// classification the transport layer maps to a response.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound     = errors.New("not found")
	ErrAlreadyRevoked = errors.New("already revoked")
	ErrDuplicateToken = errors.New("duplicate token")

	// Access-token errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Kind classifies a failure for callers that need to decide how to react
// (retry, reject, re-authenticate) without parsing messages.
type Kind int

const (
	// KindFailure is an unclassified failure.
	KindFailure Kind = iota
	// KindValidation marks malformed input or wrong credentials.
	KindValidation
	// KindNotFound marks an absent principal or record.
	KindNotFound
	// KindConflict marks a state conflict (e.g. concurrent update lost).
	KindConflict
	// KindUnauthenticated marks an invalid, expired, revoked or reused token.
	KindUnauthenticated
	// KindDatabase marks a persistence or commit failure. Only this kind is
	// safe to retry as a whole logical operation.
	KindDatabase
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindDatabase:
		return "database"
	default:
		return "failure"
	}
}

// Error is the typed failure value returned by services. Code is a stable
// machine-readable identifier, Message is human-readable, Kind classifies
// the failure and Err optionally keeps the underlying cause for logs.
type Error struct {
	Code    string
	Message string
	Kind    Kind
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes two typed errors with the same Code match under errors.Is, so
// services can export error values as comparison targets.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewError builds a typed error without an underlying cause.
func NewError(code, message string, kind Kind) *Error {
	return &Error{Code: code, Message: message, Kind: kind}
}

// WrapError builds a typed error keeping err as the cause.
func WrapError(code, message string, kind Kind, err error) *Error {
	return &Error{Code: code, Message: message, Kind: kind, Err: err}
}

// KindOf extracts the Kind from err, or KindFailure when err is not typed.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFailure
}
