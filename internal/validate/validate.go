// SPDX-License-Identifier: MIT

// Package validate carries the business-rule error kind. A validation error
// holds a single human-readable reason that the host shows to the operator;
// everything else (store, serialization) propagates as ordinary errors.
package validate

import (
	"errors"
	"fmt"
)

// Error is a business-rule violation.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

// Errorf builds a validation error from a format string.
func Errorf(format string, args ...any) error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// New builds a validation error from a fixed reason.
func New(reason string) error {
	return &Error{Reason: reason}
}

// Is reports whether err is (or wraps) a validation error.
func Is(err error) bool {
	var v *Error
	return errors.As(err, &v)
}
