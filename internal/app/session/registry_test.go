package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	domain "github.com/remsec/connwarden/internal/domain/session"
	"github.com/remsec/connwarden/pkg/common/logger"
)

// fakeTask lets tests control the completion probe, including its error
// return, which the in-process domain task never exercises.
type fakeTask struct {
	mu        sync.Mutex
	cancelled bool
	cause     error
	completed bool
	probeErr  error

	done     chan struct{}
	doneOnce sync.Once
}

func newFakeTask() *fakeTask { return &fakeTask{done: make(chan struct{})} }

func (t *fakeTask) Cancel(cause error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
	t.cause = cause
}

func (t *fakeTask) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *fakeTask) Completed() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed, t.probeErr
}

func (t *fakeTask) Done() <-chan struct{} { return t.done }

func (t *fakeTask) complete() {
	t.mu.Lock()
	t.completed = true
	t.mu.Unlock()
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *fakeTask) cancelCause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cause
}

func newTestRegistry(drainWait time.Duration) *Registry {
	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	return NewRegistry(drainWait, noop.NewTracerProvider().Tracer(""), log)
}

func TestTryGetEmpty(t *testing.T) {
	r := newTestRegistry(time.Second)

	_, ok := r.TryGet(domain.Key{Host: "srv01"})
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())
}

func TestReplaceRegistersAndSupersedes(t *testing.T) {
	r := newTestRegistry(time.Second)
	key := domain.Key{Host: "srv01", Username: "alice"}

	first := newFakeTask()
	require.Nil(t, r.Replace(context.Background(), key, first))
	assert.Equal(t, 1, r.Count())

	second := newFakeTask()
	old := r.Replace(context.Background(), key, second)
	require.NotNil(t, old)
	assert.Same(t, first, old.(*fakeTask))
	assert.Equal(t, 1, r.Count())

	got, ok := r.TryGet(key)
	require.True(t, ok)
	assert.Same(t, second, got.(*fakeTask))

	// The superseded task is cancelled with the dedicated cause.
	require.Eventually(t, first.Cancelled, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, first.cancelCause(), domain.ErrSuperseded)

	first.complete()
}

func TestReplaceSameTaskIsNoop(t *testing.T) {
	r := newTestRegistry(time.Second)
	key := domain.Key{Host: "srv01"}
	task := newFakeTask()

	r.Replace(context.Background(), key, task)
	assert.Nil(t, r.Replace(context.Background(), key, task))
	assert.False(t, task.Cancelled())
}

func TestRemoveOnlyEvictsOwnRegistration(t *testing.T) {
	r := newTestRegistry(time.Second)
	key := domain.Key{Host: "srv01"}

	first := newFakeTask()
	r.Replace(context.Background(), key, first)

	second := newFakeTask()
	r.Replace(context.Background(), key, second)
	first.complete()

	// The replaced task finishing must not evict its successor.
	assert.Nil(t, r.Remove(key, first))
	assert.Equal(t, 1, r.Count())

	removed := r.Remove(key, second)
	require.NotNil(t, removed)
	assert.Same(t, second, removed.(*fakeTask))
	assert.Equal(t, 0, r.Count())
}

func TestIsCompleted(t *testing.T) {
	r := newTestRegistry(time.Second)

	assert.True(t, r.IsCompleted())

	pending := newFakeTask()
	r.Replace(context.Background(), domain.Key{Host: "a"}, pending)
	assert.False(t, r.IsCompleted())

	pending.complete()
	assert.True(t, r.IsCompleted())

	// A failing probe counts as completed rather than blocking the aggregate.
	unknown := newFakeTask()
	unknown.probeErr = errors.New("probe unavailable")
	r.Replace(context.Background(), domain.Key{Host: "b"}, unknown)
	assert.True(t, r.IsCompleted())
}

func TestCancelAll(t *testing.T) {
	r := newTestRegistry(time.Second)
	cause := errors.New("batch cancelled")

	pending := newFakeTask()
	finished := newFakeTask()
	finished.complete()
	unknown := newFakeTask()
	unknown.probeErr = errors.New("probe unavailable")

	r.Replace(context.Background(), domain.Key{Host: "a"}, pending)
	r.Replace(context.Background(), domain.Key{Host: "b"}, finished)
	r.Replace(context.Background(), domain.Key{Host: "c"}, unknown)

	r.CancelAll(context.Background(), cause)

	assert.True(t, pending.Cancelled())
	assert.ErrorIs(t, pending.cancelCause(), cause)
	assert.False(t, finished.Cancelled())
	// A task in unknown state must still hear the signal.
	assert.True(t, unknown.Cancelled())
}

func TestWaitAllZeroTimeoutPollsOnce(t *testing.T) {
	r := newTestRegistry(time.Second)

	assert.True(t, r.WaitAll(context.Background(), 0))

	pending := newFakeTask()
	r.Replace(context.Background(), domain.Key{Host: "a"}, pending)
	assert.False(t, r.WaitAll(context.Background(), 0))

	pending.complete()
	assert.True(t, r.WaitAll(context.Background(), 0))
}

func TestWaitAllBoundedTimeout(t *testing.T) {
	r := newTestRegistry(time.Second)

	pending := newFakeTask()
	r.Replace(context.Background(), domain.Key{Host: "a"}, pending)

	assert.False(t, r.WaitAll(context.Background(), 20*time.Millisecond))

	go func() {
		time.Sleep(10 * time.Millisecond)
		pending.complete()
	}()
	assert.True(t, r.WaitAll(context.Background(), time.Second))
}

func TestWaitAllIndefinite(t *testing.T) {
	r := newTestRegistry(time.Second)

	pending := newFakeTask()
	r.Replace(context.Background(), domain.Key{Host: "a"}, pending)

	go func() {
		time.Sleep(10 * time.Millisecond)
		pending.complete()
	}()
	assert.True(t, r.WaitAll(context.Background(), -1))
}

func TestWaitAllTreatsProbeErrorAsCompleted(t *testing.T) {
	r := newTestRegistry(time.Second)

	unknown := newFakeTask()
	unknown.probeErr = errors.New("probe unavailable")
	r.Replace(context.Background(), domain.Key{Host: "a"}, unknown)

	assert.True(t, r.WaitAll(context.Background(), 0))
}

func TestWaitAllObservesContextCancellation(t *testing.T) {
	r := newTestRegistry(time.Second)

	pending := newFakeTask()
	r.Replace(context.Background(), domain.Key{Host: "a"}, pending)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, r.WaitAll(ctx, -1))
}

func TestRegistryAcceptsDomainTasks(t *testing.T) {
	r := newTestRegistry(time.Second)
	key := domain.Key{Host: "srv01", Username: "alice"}

	task := domain.NewTask(context.Background(), key)
	r.Replace(context.Background(), key, task)

	assert.False(t, r.WaitAll(context.Background(), 0))

	task.Complete(nil)
	assert.True(t, r.WaitAll(context.Background(), 0))
	require.NotNil(t, r.Remove(key, task))
}
