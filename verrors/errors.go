// Package verrors defines the error classes shared across the validation
// engine. Errors are classified by marking them with a sentinel so that
// callers can test with errors.Is without losing the wrapped detail.
package verrors

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	// ErrConfig marks a malformed or contradictory validation config.
	// Reported before any backend call is attempted.
	ErrConfig = errors.New("invalid validation config")
	// ErrColumnNotFound marks a plan referencing a column absent from the
	// table's column catalog.
	ErrColumnNotFound = errors.New("column not found")
	// ErrUnsupportedCast marks a cast request the backend cannot express.
	ErrUnsupportedCast = errors.New("unsupported cast")
	// ErrBackendExecution marks a failure raised by a backend client while
	// running a compiled query.
	ErrBackendExecution = errors.New("backend execution failed")
	// ErrTimeout marks a backend execution cut short by cancellation. It is
	// a subtype of ErrBackendExecution for reporting purposes.
	ErrTimeout = errors.New("backend execution timed out")
	// ErrUnsupportedOperation marks a capability the backend adapter does
	// not implement (e.g. native join support for Row validations).
	ErrUnsupportedOperation = errors.New("operation not supported by backend")
)

func Configf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfig)
}

func ColumnNotFoundf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrColumnNotFound)
}

func UnsupportedCastf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrUnsupportedCast)
}

// MarkBackendExecution classifies err as a backend execution failure,
// additionally marking it as a timeout when the error chain carries a
// context cancellation or deadline.
func MarkBackendExecution(err error) error {
	if err == nil {
		return nil
	}
	err = errors.Mark(err, ErrBackendExecution)
	if errors.IsAny(err, context.Canceled, context.DeadlineExceeded) {
		err = errors.Mark(err, ErrTimeout)
	}
	return err
}
