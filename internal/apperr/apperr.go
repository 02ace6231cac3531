package apperr

import "fmt"

// Kind is the error taxonomy exposed on the wire. Every failed response
// carries exactly one of these codes.
type Kind string

const (
	BadInput     Kind = "BAD_INPUT"
	NotFound     Kind = "NOT_FOUND"
	RateLimited  Kind = "RATE_LIMITED"
	Internal     Kind = "INTERNAL"
	Contract     Kind = "CONTRACT"
	Unauthorized Kind = "UNAUTHORIZED"
)

// Error is a tagged error that crosses service boundaries without leaking
// internal detail. Message is safe to show to callers; Cause is logged only.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an error with the given kind and public message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates an error with a formatted public message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an internal cause to a public-safe error. The cause never
// reaches the response body.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to Internal for plain errors.
func KindOf(err error) Kind {
	if ae, ok := err.(*Error); ok {
		return ae.Kind
	}
	return Internal
}

// PublicMessage returns the caller-safe message for err. Plain errors map to
// a generic message so database details and file paths never leak.
func PublicMessage(err error) string {
	if ae, ok := err.(*Error); ok {
		return ae.Message
	}
	return "An internal error occurred"
}
