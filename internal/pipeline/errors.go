package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rumbo-ai/rumbo/internal/validate"
)

// Kind is the internal error taxonomy, independent of any surface
// representation.
type Kind string

const (
	KindInvalidSession       Kind = "INVALID_SESSION"
	KindInvalidQuery         Kind = "INVALID_QUERY"
	KindUnsupportedLanguage  Kind = "UNSUPPORTED_LANGUAGE"
	KindInvalidLocation      Kind = "INVALID_LOCATION"
	KindMemoryUnavailable    Kind = "MEMORY_UNAVAILABLE"
	KindClassificationFailed Kind = "CLASSIFICATION_FAILED"
	KindModelError           Kind = "MODEL_ERROR"
	KindToolError            Kind = "TOOL_ERROR"
	KindTimeout              Kind = "TIMEOUT"
	KindCancelled            Kind = "CANCELLED"
	KindOverloaded           Kind = "OVERLOADED"
	KindPersistenceFailed    Kind = "PERSISTENCE_FAILED"
	KindInternal             Kind = "INTERNAL"
)

// Error couples a taxonomy kind with its cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// MessageKey maps a kind to its i18n catalog key.
func (k Kind) MessageKey() string {
	switch k {
	case KindInvalidSession:
		return "error.invalid_session"
	case KindInvalidQuery:
		return "error.invalid_query"
	case KindUnsupportedLanguage:
		return "error.unsupported_language"
	case KindInvalidLocation:
		return "error.invalid_location"
	case KindMemoryUnavailable:
		return "error.memory_unavailable"
	case KindModelError:
		return "error.model_error"
	case KindTimeout:
		return "error.timeout"
	case KindCancelled:
		return "error.cancelled"
	case KindOverloaded:
		return "error.overloaded"
	case KindPersistenceFailed:
		return "error.persistence_failed"
	default:
		return "error.internal"
	}
}

// validationKind maps validator sentinels to taxonomy kinds.
func validationKind(err error) Kind {
	switch {
	case errors.Is(err, validate.ErrInvalidSession), errors.Is(err, validate.ErrEmptyUser):
		return KindInvalidSession
	case errors.Is(err, validate.ErrInvalidQuery):
		return KindInvalidQuery
	case errors.Is(err, validate.ErrUnsupportedLanguage):
		return KindUnsupportedLanguage
	case errors.Is(err, validate.ErrInvalidLocation):
		return KindInvalidLocation
	default:
		return KindInternal
	}
}

// contextKind distinguishes a blown deadline from a client cancel.
func contextKind(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindCancelled
}
