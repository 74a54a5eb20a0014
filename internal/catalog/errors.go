package catalog

import "errors"

// Failure kinds surfaced by the repository and enricher. Handlers translate
// these into HTTP status codes; everything else maps to a 500.
var (
	ErrDuplicateLink   = errors.New("course link already exists")
	ErrNotFound        = errors.New("course not found")
	ErrVersionConflict = errors.New("course version conflict")
	ErrFetch           = errors.New("course page unreachable")
	ErrSchema          = errors.New("model output failed schema validation")
	ErrUpstream        = errors.New("upstream unavailable")
	ErrValidation      = errors.New("invalid input")
	ErrTaskNotFound    = errors.New("task not found")
)

// ErrorKind is the stable classification of a failure, stored on task
// records so handlers never have to parse error text.
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindDuplicateLink   ErrorKind = "duplicate_link"
	KindNotFound        ErrorKind = "not_found"
	KindVersionConflict ErrorKind = "version_conflict"
	KindFetch           ErrorKind = "fetch"
	KindSchema          ErrorKind = "schema"
	KindUpstream        ErrorKind = "upstream"
	KindValidation      ErrorKind = "validation"
	KindInternal        ErrorKind = "internal"
)

// KindOf maps an error to its classification via the sentinel chain.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrDuplicateLink):
		return KindDuplicateLink
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrTaskNotFound):
		return KindNotFound
	case errors.Is(err, ErrVersionConflict):
		return KindVersionConflict
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrFetch):
		return KindFetch
	case errors.Is(err, ErrSchema):
		return KindSchema
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	default:
		return KindInternal
	}
}
