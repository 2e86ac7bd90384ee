package script

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors returned by Result.Err.
var (
	ErrNotFound               = errors.New("script not found")
	ErrInterpreterUnavailable = errors.New("no interpreter available")
	ErrTimeout                = errors.New("script timed out")
	ErrExecution              = errors.New("script execution failed")
	ErrExitStatus             = errors.New("script exited with non-zero status")
)

// FailureKind classifies why a run did not succeed.
type FailureKind int

const (
	// None means the script exited 0.
	None FailureKind = iota
	NotFound
	InterpreterUnavailable
	Timeout
	ExecutionError
	ExitStatus
)

// String returns the kind as used for the metrics outcome label.
func (k FailureKind) String() string {
	switch k {
	case None:
		return "success"
	case NotFound:
		return "not_found"
	case InterpreterUnavailable:
		return "interpreter_unavailable"
	case Timeout:
		return "timeout"
	case ExecutionError:
		return "execution_error"
	case ExitStatus:
		return "exit_status"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Result is the normalized outcome of one script invocation.
type Result struct {
	Command  Command
	Success  bool
	Stdout   string
	Stderr   string
	ExitCode *int // nil when the process never reported one
	Message  string
	Kind     FailureKind
	Duration time.Duration
}

// Err returns nil on success, otherwise an error wrapping the sentinel for Kind.
func (r Result) Err() error {
	var sentinel error
	switch r.Kind {
	case None:
		return nil
	case NotFound:
		sentinel = ErrNotFound
	case InterpreterUnavailable:
		sentinel = ErrInterpreterUnavailable
	case Timeout:
		sentinel = ErrTimeout
	case ExecutionError:
		sentinel = ErrExecution
	case ExitStatus:
		sentinel = ErrExitStatus
	default:
		sentinel = ErrExecution
	}
	return fmt.Errorf("%s: %w", r.Command, sentinel)
}

// Diagnostic returns the most useful human-readable failure text:
// stderr, then the runner message, then stdout.
func (r Result) Diagnostic() string {
	for _, s := range []string{r.Stderr, r.Message, r.Stdout} {
		if s != "" {
			return s
		}
	}
	return "Unknown error"
}

// LastLine returns the last non-empty line of out, trimmed. Scripts that
// create a VM print its UUID there.
func LastLine(out string) string {
	lines := strings.Split(out, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func exitCode(code int) *int {
	return &code
}
