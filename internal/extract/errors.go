package extract

import (
	"errors"
)

// Error kinds. Every error returned by the pipeline matches exactly one of
// these with errors.Is.
var (
	ErrMalformedResponse   = errors.New("malformed model response")
	ErrUpstreamUnavailable = errors.New("extraction service unavailable")
	ErrRateLimited         = errors.New("extraction service rate limited")
	ErrInvalidInput        = errors.New("invalid input")
)

// Error pairs an error kind with the upstream detail.
type Error struct {
	Kind    error
	Message string
	Err     error
}

// NewError creates an Error of the given kind.
func NewError(kind error, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns a short code for err, used in responses and metric labels.
func KindOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	}
	return "internal"
}

// classify wraps errors from a Model that carry no kind as upstream failures.
func classify(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return NewError(ErrUpstreamUnavailable, "", err)
}
