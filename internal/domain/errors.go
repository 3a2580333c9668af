package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an expected domain failure. The set is closed: every kind
// maps to exactly one HTTP status and one generic user-facing message, and
// the HTTP layer treats anything outside this set as a server fault.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindUnauthorized
	KindNotFound
	KindConflict
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the failure value use cases hand back to the HTTP layer.
// Detail is diagnostic text for logs only and must never reach a response
// body. Fields carries per-field validation messages safe to render inline.
type Error struct {
	Kind       Kind
	Detail     string
	Fields     map[string]string
	RetryAfter int // seconds, set when Kind is KindRateLimited
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// WithCause attaches an underlying error for logging without changing the kind.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// NewValidation reports bad input shape or content. Fields maps form field
// names to messages shown next to the field.
func NewValidation(detail string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Detail: detail, Fields: fields}
}

// NewUnauthorized reports failed authentication.
func NewUnauthorized(detail string) *Error {
	return &Error{Kind: KindUnauthorized, Detail: detail}
}

// NewNotFound reports a missing resource.
func NewNotFound(detail string) *Error {
	return &Error{Kind: KindNotFound, Detail: detail}
}

// NewConflict reports a uniqueness collision, such as a duplicate account.
func NewConflict(detail string) *Error {
	return &Error{Kind: KindConflict, Detail: detail}
}

// NewRateLimited reports a limiter denial. retryAfter is the backoff the
// limiter decided, in seconds, surfaced verbatim as Retry-After.
func NewRateLimited(detail string, retryAfter int) *Error {
	return &Error{Kind: KindRateLimited, Detail: detail, RetryAfter: retryAfter}
}

// AsError unwraps err to the domain Error in its chain, if any.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
