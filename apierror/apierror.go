// Package apierror defines the chat endpoint's error taxonomy and the fiber
// error handler that renders it as JSON.
package apierror

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Kind classifies a terminal request failure.
type Kind string

const (
	KindMethodNotAllowed   Kind = "MethodNotAllowed"
	KindClientUnidentified Kind = "ClientUnidentified"
	KindRateLimitExceeded  Kind = "RateLimitExceeded"
	KindInvalidRequest     Kind = "InvalidRequest"
	KindUpstreamError      Kind = "UpstreamError"
	KindInternalError      Kind = "InternalError"
)

// User-facing messages.
const (
	MsgMethodNotAllowed   = "Method Not Allowed"
	MsgClientUnidentified = "Could not identify user IP address."
	MsgRateLimitExceeded  = "To make things work for everyone, limits are applied. I am sorry but this community tool is for everyone to benefit from it for a quick AI question and not your daily model."
	MsgMessageRequired    = "Message is required"
	MsgUpstreamError      = "The AI service returned an error."
	MsgInternalError      = "Failed to communicate with the AI service."
)

var statusByKind = map[Kind]int{
	KindMethodNotAllowed:   fiber.StatusMethodNotAllowed,
	KindClientUnidentified: fiber.StatusBadRequest,
	KindRateLimitExceeded:  fiber.StatusTooManyRequests,
	KindInvalidRequest:     fiber.StatusBadRequest,
	KindUpstreamError:      fiber.StatusInternalServerError,
	KindInternalError:      fiber.StatusInternalServerError,
}

// Error is a classified failure carrying the message returned to the caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status code for the error's kind.
func (e *Error) Status() int {
	if status, ok := statusByKind[e.Kind]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func MethodNotAllowed() *Error {
	return New(KindMethodNotAllowed, MsgMethodNotAllowed, nil)
}

func ClientUnidentified() *Error {
	return New(KindClientUnidentified, MsgClientUnidentified, nil)
}

// RateLimitExceeded always carries the same text, however close the window is to expiring.
func RateLimitExceeded() *Error {
	return New(KindRateLimitExceeded, MsgRateLimitExceeded, nil)
}

func InvalidRequest(message string, err error) *Error {
	if message == "" {
		message = MsgMessageRequired
	}
	return New(KindInvalidRequest, message, err)
}

func Upstream(err error) *Error {
	return New(KindUpstreamError, MsgUpstreamError, err)
}

func Internal(err error) *Error {
	return New(KindInternalError, MsgInternalError, err)
}

// From classifies any error. Unknown errors become InternalError, and
// fiber's own errors (404 from the router, 413 from the body limit) keep
// their status as an InvalidRequest or InternalError equivalent.
func From(err error) (*Error, int) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, apiErr.Status()
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		kind := KindInvalidRequest
		switch {
		case fiberErr.Code == fiber.StatusMethodNotAllowed:
			kind = KindMethodNotAllowed
		case fiberErr.Code >= fiber.StatusInternalServerError:
			kind = KindInternalError
		}
		return New(kind, fiberErr.Message, err), fiberErr.Code
	}

	internal := Internal(err)
	return internal, internal.Status()
}
