package suite

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSkipped is wrapped by errors that skip a test.
var ErrSkipped = errors.New("test skipped")

// AssertionError is a failed expectation. It maps to the failed status;
// every other error maps to errored.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string {
	return "assertion failed: " + e.Message
}

// Failf returns an *AssertionError with a formatted message.
func Failf(format string, args ...any) error {
	return &AssertionError{Message: fmt.Sprintf(format, args...)}
}

// Assert returns an *AssertionError when cond is false, nil otherwise.
func Assert(cond bool, format string, args ...any) error {
	if cond {
		return nil
	}
	return Failf(format, args...)
}

// Equal asserts got == want.
func Equal[T comparable](got, want T, what string) error {
	if got == want {
		return nil
	}
	return Failf("%s: got %v, want %v", what, got, want)
}

// Contains asserts that s contains substr.
func Contains(s, substr, what string) error {
	if strings.Contains(s, substr) {
		return nil
	}
	return Failf("%s: %q does not contain %q", what, s, substr)
}

// Skip returns an error that marks the test skipped with reason.
func Skip(reason string) error {
	return fmt.Errorf("%w: %s", ErrSkipped, reason)
}
