package vm

import (
	"errors"
	"fmt"

	"github.com/jbweber/anvil/internal/script"
	"github.com/jbweber/anvil/internal/store"
)

var (
	// ErrNotFound is returned when an instance id does not exist.
	ErrNotFound = store.ErrNotFound

	// ErrDuplicateName is returned when an instance name is already taken.
	ErrDuplicateName = store.ErrDuplicateName

	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
)

// ValidationError reports a missing or malformed request field. It is
// returned before any external script runs.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ExternalError reports a failed script run. It unwraps to the runner's
// sentinel for the failure kind (script.ErrTimeout, script.ErrExitStatus...).
type ExternalError struct {
	Result script.Result
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Result.Command, e.Result.Diagnostic())
}

func (e *ExternalError) Unwrap() error {
	return e.Result.Err()
}

// Diagnostic returns the user-visible failure text.
func (e *ExternalError) Diagnostic() string {
	return e.Result.Diagnostic()
}

// StatsParseError is returned when get_vm_stats.sh succeeds but its output
// is not a JSON document.
type StatsParseError struct {
	Raw string
}

func (e *StatsParseError) Error() string {
	return "failed to parse stats output"
}

func newExternalError(res script.Result) error {
	return &ExternalError{Result: res}
}

// outcome labels an error for metrics and logs.
func outcome(err error) string {
	var extErr *ExternalError
	var parseErr *StatsParseError

	switch {
	case err == nil:
		return "success"
	case errors.As(err, &extErr):
		return "external_failure"
	case errors.As(err, &parseErr):
		return "parse_error"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateName):
		return "duplicate"
	default:
		return "error"
	}
}
