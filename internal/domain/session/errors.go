package session

import (
	"errors"
	"fmt"
)

// The session error taxonomy. No single session's failure aborts siblings or
// the batch; these types exist so callers can decide which conditions surface
// to the user and which are only logged.
var (
	// ErrConfigConflict rejects a resolution configuration that disables
	// recursion while exclusion groups are set. Detected before traversal,
	// never silently dropped.
	ErrConfigConflict = errors.New("recursion disabled while exclusion groups are set")

	// ErrConnectionFailed is the terminal failure reported when the client
	// shows its connection-failed dialog.
	ErrConnectionFailed = errors.New("client reported connection failed")

	// ErrHangDetected is reported after escalating exit waits are exhausted
	// and the process is forcibly terminated. Non-fatal to the batch.
	ErrHangDetected = errors.New("client presumed hung, process terminated")
)

// ParseError marks an unusable target string. The user is notified via a
// modal, the entry is skipped, and the batch continues.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unusable target %q: %v", e.Raw, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SpawnError marks a failed client process launch. Fatal to its session only;
// OS-level failure reporting is considered sufficient, so no custom dialog is
// raised.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning client %q: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
