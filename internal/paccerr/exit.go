package paccerr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Exit codes returned to the operating system.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0

	// ExitUser indicates a user-correctable error (invalid input, conflict, validation).
	ExitUser = 1

	// ExitSystem indicates a system error (I/O, network, permissions).
	ExitSystem = 2
)

// ExitError wraps an error with an exit code for the CLI boundary.
// It supports unwrapping via errors.Unwrap.
type ExitError struct {
	// Err is the underlying error.
	Err error

	// Code is the exit code to return to the operating system.
	Code int
}

// Error returns the message of the underlying error.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error { return e.Err }

// ToExit classifies err into an ExitError using the taxonomy kind.
// Filesystem, network, and timeout failures are system errors; everything
// else is considered user-correctable. A nil err returns nil.
func ToExit(err error) *ExitError {
	if err == nil {
		return nil
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee
	}
	code := ExitUser
	var pe *Error
	if errors.As(err, &pe) {
		switch pe.Kind() {
		case KindFilesystem, KindNetwork, KindTimeout:
			code = ExitSystem
		}
	}
	return &ExitError{Err: err, Code: code}
}
