// Package status models the lifecycle state of a managed instance.
//
// An instance is either stopped or running. There are no transient states:
// while an external start or stop command is in flight the caller is simply
// blocked, and the recorded status only moves once the command reports
// success.
package status

import "fmt"

// Status is the recorded state of an instance.
type Status string

const (
	// Stopped is the state of every newly created or cloned instance.
	Stopped Status = "stopped"
	// Running is recorded after a successful external start.
	Running Status = "running"
)

// Event is the outcome of an external lifecycle command.
type Event int

const (
	// StartSucceeded means the external start command exited 0.
	StartSucceeded Event = iota
	// StopSucceeded means the external stop command exited 0.
	StopSucceeded
	// CommandFailed means the external command failed in any way.
	CommandFailed
)

// String returns the event name used in logs.
func (e Event) String() string {
	switch e {
	case StartSucceeded:
		return "start-succeeded"
	case StopSucceeded:
		return "stop-succeeded"
	case CommandFailed:
		return "command-failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(e))
	}
}

// Parse converts a stored or user-supplied value into a Status.
func Parse(s string) (Status, error) {
	switch Status(s) {
	case Stopped, Running:
		return Status(s), nil
	default:
		return "", fmt.Errorf("invalid status %q (valid: stopped, running)", s)
	}
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	return s == Stopped || s == Running
}

// Next returns the status after event has been observed in state current.
//
// Start success always lands in Running and stop success always lands in
// Stopped, including when the instance was already in that state. A failed
// command never moves the state.
func Next(current Status, event Event) Status {
	switch event {
	case StartSucceeded:
		return Running
	case StopSucceeded:
		return Stopped
	default:
		return current
	}
}

// IsRunning returns true if the instance is recorded as running.
func IsRunning(s Status) bool {
	return s == Running
}
