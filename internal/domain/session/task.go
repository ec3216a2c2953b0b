// Package session holds the domain model for supervised client sessions: the
// identity key, the task handle the registry tracks, the supervision status
// machine, and the session error taxonomy.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// keySeparator joins the host and username parts of a composite key. A unit
// separator cannot occur in either part.
const keySeparator = "\x1f"

// Key identifies a session for deduplication. Two submissions with the same
// key intentionally collide: the newer one replaces the older.
//
// When a credential was resolved for the session the key is the target host
// plus the resolved username, so the same host may be open under different
// identities. Without a resolved credential the host alone identifies the
// session.
type Key struct {
	Host     string
	Username string
}

// String renders the key in its canonical map form.
func (k Key) String() string {
	if k.Username == "" {
		return k.Host
	}
	return k.Host + keySeparator + k.Username
}

// Task is one attempt to launch and supervise a single external client
// process for one resolved target+credential pair. It owns a cancellation
// handle and completion state; the registry guarantees at most one live Task
// per Key.
type Task struct {
	id  uuid.UUID
	key Key

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}

	mu        sync.Mutex
	status    Status
	completed bool
	err       error
}

// ErrSuperseded is the cancellation cause used when a newer submission
// replaces a task.
var ErrSuperseded = errors.New("session superseded by newer submission")

// NewTask creates a task attached to the given parent context. Cancelling the
// parent cancels the task cooperatively.
func NewTask(parent context.Context, key Key) *Task {
	ctx, cancel := context.WithCancelCause(parent)
	return &Task{
		id:     uuid.New(),
		key:    key,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		status: StatusUnspecified,
	}
}

// ID returns the task's unique identity.
func (t *Task) ID() uuid.UUID { return t.id }

// Key returns the deduplication key.
func (t *Task) Key() Key { return t.key }

// Context returns the task's cancellation context. Supervision loops observe
// it at their suspension points.
func (t *Task) Context() context.Context { return t.ctx }

// Done is closed when the task completes, on any exit path.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel requests cooperative cancellation with the given cause. Cancellation
// halts further TTL extension and polling; it does not interrupt an OS call
// already in flight.
func (t *Task) Cancel(cause error) {
	t.cancel(cause)
}

// Cancelled reports whether cancellation has been requested.
func (t *Task) Cancelled() bool {
	return t.ctx.Err() != nil
}

// Completed reports whether the task has finished. The error return exists
// for probe symmetry with external task sources; the in-process implementation
// never fails.
func (t *Task) Completed() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed, nil
}

// Err returns the terminal error, nil until completion or on success.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Status returns the last recorded supervision status.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// SetStatus records a supervision state transition. Illegal transitions are
// rejected so a terminal state can never be overwritten.
func (t *Task) SetStatus(next Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.status.validateTransition(next); err != nil {
		return err
	}
	t.status = next
	return nil
}

// Complete marks the task finished with the given terminal error and closes
// Done. It is idempotent; only the first call records the error.
func (t *Task) Complete(err error) {
	t.mu.Lock()
	if t.completed {
		t.mu.Unlock()
		return
	}
	t.completed = true
	t.err = err
	t.mu.Unlock()

	close(t.done)
}
