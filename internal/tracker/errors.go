package tracker

import (
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when an operation references a session that
// does not exist or is not in the state the operation requires.
var ErrSessionNotFound = errors.New("session not found")

// ValidationError reports malformed input. No state is mutated when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// InvalidTimeRangeError reports an end time before the start time
type InvalidTimeRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidTimeRangeError) Error() string {
	return fmt.Sprintf("end time %s is before start time %s",
		e.End.Format(time.RFC3339), e.Start.Format(time.RFC3339))
}

// IsValidationError reports whether err is (or wraps) a ValidationError or InvalidTimeRangeError
func IsValidationError(err error) bool {
	var ve *ValidationError
	var tre *InvalidTimeRangeError
	return errors.As(err, &ve) || errors.As(err, &tre)
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
