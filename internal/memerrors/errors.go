// Package memerrors defines the failure taxonomy shared by the memory engine.
//
// Validation errors are returned to callers. The other kinds are absorbed by the
// component that observes them and logged; callers see an empty result instead.
package memerrors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected before any I/O, e.g. a non-numeric ID.
	ErrValidation = errors.New("validation error")
	// ErrProviderUnavailable marks an embedding provider that timed out, refused or answered non-2xx.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	// ErrCorruptRecord marks a stored file that exists but cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt record")
	// ErrIndexMissing marks a namespace whose index file does not exist yet.
	ErrIndexMissing = errors.New("index missing")
)

// Kind names a taxonomy bucket for logs and metric labels.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindCorruptRecord       Kind = "corrupt_record"
	KindIndexMissing        Kind = "index_missing"
	KindOther               Kind = "other"
)

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindProviderUnavailable:
		return ErrProviderUnavailable
	case KindCorruptRecord:
		return ErrCorruptRecord
	case KindIndexMissing:
		return ErrIndexMissing
	}
	return nil
}

// Error carries the operation that failed alongside its kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// E builds an *Error. err may be nil, in which case the kind's sentinel is the cause.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Op != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrValidation) and friends match on kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// Validation is shorthand for a validation error with a formatted message.
func Validation(op, format string, args ...any) *Error {
	return E(KindValidation, op, fmt.Errorf(format, args...))
}

// KindOf classifies err. Unknown errors report KindOther.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrProviderUnavailable):
		return KindProviderUnavailable
	case errors.Is(err, ErrCorruptRecord):
		return KindCorruptRecord
	case errors.Is(err, ErrIndexMissing):
		return KindIndexMissing
	}
	return KindOther
}
