package forecast

import "fmt"

// ValidationError reports a malformed query: bad identifiers or an
// unrecognized metric selection. Never retried, never fatal.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
