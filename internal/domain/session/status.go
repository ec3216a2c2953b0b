package session

import (
	"errors"
	"fmt"
)

// Status represents the current state of a supervised session. It tracks the
// external client process from spawn through connection establishment to exit.
type Status string

// ErrStatusUnknown is returned when a session status is unknown.
var ErrStatusUnknown = errors.New("session status unknown")

const (
	// StatusUnspecified is the zero value and never a valid state.
	StatusUnspecified Status = "UNSPECIFIED"

	// StatusStarting indicates the client process is being spawned.
	StatusStarting Status = "STARTING"

	// StatusWaitingForWindow indicates the process is running but has not
	// yet exposed a main window handle.
	StatusWaitingForWindow Status = "WAITING_FOR_WINDOW"

	// StatusWaitingForModal indicates a bounded watch for a trust popup is
	// in progress.
	StatusWaitingForModal Status = "WAITING_FOR_MODAL"

	// StatusRunning indicates the client is connecting or connected and is
	// being polled for popups and progress.
	StatusRunning Status = "RUNNING"

	// StatusExited is the normal terminal state.
	StatusExited Status = "EXITED"

	// StatusKilled is the alternate terminal state reached when hang
	// detection forcibly terminates the process.
	StatusKilled Status = "KILLED"
)

func (s Status) String() string { return string(s) }

// Terminal reports whether the status is one of the two terminal states.
func (s Status) Terminal() bool { return s == StatusExited || s == StatusKilled }

// ParseStatus converts a string to a Status.
func ParseStatus(s string) Status {
	switch s {
	case "STARTING":
		return StatusStarting
	case "WAITING_FOR_WINDOW":
		return StatusWaitingForWindow
	case "WAITING_FOR_MODAL":
		return StatusWaitingForModal
	case "RUNNING":
		return StatusRunning
	case "EXITED":
		return StatusExited
	case "KILLED":
		return StatusKilled
	default:
		return StatusUnspecified
	}
}

// validateTransition checks if a status transition is valid and returns an
// error if not.
func (s Status) validateTransition(target Status) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid session status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition enumerates the legal forward edges of the supervision
// state machine. Both terminal states are reachable from every live state
// because the process can die or hang at any point.
func (s Status) isValidTransition(target Status) bool {
	switch s {
	case StatusUnspecified:
		return target == StatusStarting
	case StatusStarting:
		return target == StatusWaitingForWindow || target == StatusExited || target == StatusKilled
	case StatusWaitingForWindow:
		return target == StatusWaitingForModal || target == StatusRunning ||
			target == StatusExited || target == StatusKilled
	case StatusWaitingForModal:
		return target == StatusRunning || target == StatusExited || target == StatusKilled
	case StatusRunning:
		return target == StatusExited || target == StatusKilled
	default:
		return false
	}
}
