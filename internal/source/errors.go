// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"errors"
	"fmt"
)

// TransientError reports a retryable source failure: rate limiting that
// survived the backoff budget, a request timeout, or a server error.
type TransientError struct {
	Source string
	Err    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient source error: %v", e.Source, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FormatError reports a malformed source response. It is non-retryable;
// the affected page is skipped with a logged reason.
type FormatError struct {
	Source string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: malformed source response: %v", e.Source, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable source failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFormat reports whether err is a malformed-response failure.
func IsFormat(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
