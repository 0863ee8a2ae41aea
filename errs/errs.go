// Package errs holds the error taxonomy shared by the analyzer packages.
// Only input errors abort an operation; everything else degrades to
// partial results carrying diagnostics.
package errs

import (
	"errors"
	"fmt"
)

// ErrSeedUnreachable is wrapped in an InputError when a crawl could not
// complete a single page, not even the seed.
var ErrSeedUnreachable = errors.New("seed url unreachable")

// InputError reports malformed or unreadable input: an invalid URL, an
// unreadable keyword source, a source without a Keyword column.
type InputError struct {
	Op  string
	Err error
}

func (e *InputError) Error() string {
	if e.Op == "" {
		return "invalid input: " + e.Err.Error()
	}
	return fmt.Sprintf("%s: invalid input: %v", e.Op, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// Input wraps err as an InputError for operation op.
func Input(op string, err error) error {
	if err == nil {
		return nil
	}
	return &InputError{Op: op, Err: err}
}

// Inputf builds an InputError from a format string.
func Inputf(op, format string, args ...any) error {
	return &InputError{Op: op, Err: fmt.Errorf(format, args...)}
}

// IsInput reports whether err (or anything it wraps) is an InputError.
func IsInput(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
