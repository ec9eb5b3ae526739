// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Kind classifies an authentication failure as client-caused or system-caused.
type Kind uint8

// Failure kinds.
const (
	KindInternal Kind = iota
	KindUnauthorized
	KindUnprocessable
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindUnprocessable:
		return "unprocessable"
	default:
		return "internal"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUnprocessable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error is the kind-tagged failure at the root of every error this package
// produces. It is wrapped in an oops error carrying the code and context.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Unauthorized builds a client error for a failed or missing credential match.
func Unauthorized(code, format string, args ...any) error {
	return newError(KindUnauthorized, oops.Code(code), format, args...)
}

// Unprocessable builds a client error for a malformed request.
func Unprocessable(code, format string, args ...any) error {
	return newError(KindUnprocessable, oops.Code(code), format, args...)
}

// Internal builds a system error for misconfiguration or a broken invariant.
func Internal(code, format string, args ...any) error {
	return newError(KindInternal, oops.Code(code), format, args...)
}

// InternalWith is Internal with structured context attached.
func InternalWith(code string, kv map[string]any, format string, args ...any) error {
	b := oops.Code(code)
	for k, v := range kv {
		b = b.With(k, v)
	}
	return newError(KindInternal, b, format, args...)
}

func newError(kind Kind, b oops.OopsErrorBuilder, format string, args ...any) error {
	return b.Wrap(&Error{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// KindOf returns the kind of err. Errors that did not originate from this
// package are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps err to the status code callers should respond with.
func HTTPStatus(err error) int {
	return KindOf(err).Status()
}

// PublicMessage returns the message safe to show a client. Internal errors
// are reduced to a generic message.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return http.StatusText(http.StatusInternalServerError)
}
