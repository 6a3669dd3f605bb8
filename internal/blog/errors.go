// Package blog implements the application services of the publishing
// platform: posts, categories, validation and cache invalidation.
package blog

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error so the HTTP layer can map it to a
// status code without string matching.
type Kind int

const (
	// KindValidation marks rejected input (400).
	KindValidation Kind = iota
	// KindNotFound marks a missing record (404).
	KindNotFound
	// KindConflict marks a uniqueness or state conflict (409).
	KindConflict
	// KindUnauthorized marks failed authentication (401).
	KindUnauthorized
)

// Error is a domain-level error with a user-presentable message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Validationf builds a validation error.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a not-found error.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflictf builds a conflict error.
func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Unauthorizedf builds an authentication error.
func Unauthorizedf(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the domain error kind, if err carries one.
func KindOf(err error) (Kind, bool) {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind, true
	}

	return 0, false
}
