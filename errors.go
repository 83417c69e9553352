// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package warren

import (
	"errors"
	"fmt"
)

// TransientError signals that the broker session, not the message being
// processed, is at fault. Consumers react to it by tearing down their
// connection so the unacknowledged message is redelivered after reconnecting.
type TransientError struct {
	Message string
	Cause   error
}

// Transient initializes a [TransientError] with a formatted message.
func Transient(format string, args ...any) *TransientError {
	return &TransientError{
		Message: fmt.Sprintf(format, args...),
	}
}

// Error implements the [error] interface.
func (e *TransientError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

// Unwrap returns the underlying cause, if any.
func (e *TransientError) Unwrap() error {
	return e.Cause
}

// IsTransient reports whether any error in err's tree is a [TransientError].
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
