package transport

import (
	"errors"
	"fmt"
)

// Permanent marks an error as non-retryable.
//
// Adapters wrap authentication rejections and other hopeless failures with
// Permanent so the dispatch engine won't waste attempts on them.
//
// Example:
//
//	return transport.Permanent(fmt.Errorf("auth: %w", err))
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err is wrapped with Permanent.
func IsPermanent(err error) bool {
	var e permanentError
	return errors.As(err, &e)
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return fmt.Sprintf("permanent: %v", e.err) }
func (e permanentError) Unwrap() error { return e.err }
