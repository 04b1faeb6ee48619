package diag

import (
	"errors"
	"fmt"
)

// UsageError is a violation of the binding or invocation contract by the
// caller. Expected and Actual describe the mismatch when there is one.
type UsageError struct {
	Code     Code
	Name     string
	Expected string
	Actual   string
	Err      error
}

func (e *UsageError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Code.ID(), e.Code.Title())
	if e.Name != "" {
		msg += fmt.Sprintf(" %q", e.Name)
	}
	if e.Expected != "" || e.Actual != "" {
		msg += fmt.Sprintf(": expected %s, got %s", e.Expected, e.Actual)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UsageError) Unwrap() error { return e.Err }

// Usage builds a UsageError.
func Usage(code Code, name, expected, actual string) *UsageError {
	return &UsageError{Code: code, Name: name, Expected: expected, Actual: actual}
}

// IsCode reports whether err carries a UsageError with the given code.
func IsCode(err error, code Code) bool {
	var ue *UsageError
	if errors.As(err, &ue) {
		return ue.Code == code
	}
	return false
}
