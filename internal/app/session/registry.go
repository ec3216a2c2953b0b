// Package session implements the concurrent, deduplicating registry of
// in-flight session tasks. The registry is owned by the orchestrator and
// passed explicitly to each session; there is no ambient singleton.
package session

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/remsec/connwarden/internal/domain/session"
	"github.com/remsec/connwarden/pkg/common/logger"
)

// Task is the registry's view of a session: cancellation, a completion probe,
// and a done channel to wait on. The probe may fail for task sources whose
// completion state is not directly observable; the registry then falls back
// to conservative defaults that never deadlock and never skip a cancellation.
type Task interface {
	Cancel(cause error)
	Cancelled() bool
	Completed() (bool, error)
	Done() <-chan struct{}
}

var _ Task = (*domain.Task)(nil)

// Registry is a thread-safe associative store of live session tasks keyed by
// session identity. At most one task is registered per key at any instant;
// Replace atomically swaps in the newer submission and drains the superseded
// one asynchronously so registry mutation never blocks under churn.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Task

	// drainWait bounds how long a superseded task is waited on before it is
	// forcibly released to garbage collection.
	drainWait time.Duration

	tracer trace.Tracer
	logger *logger.Logger
}

// NewRegistry creates an empty registry. drainWait bounds the asynchronous
// drain of superseded tasks.
func NewRegistry(drainWait time.Duration, tracer trace.Tracer, log *logger.Logger) *Registry {
	return &Registry{
		tasks:     make(map[string]Task),
		drainWait: drainWait,
		tracer:    tracer,
		logger:    log.With("component", "session.registry"),
	}
}

// TryGet returns the live task for the key, if any.
func (r *Registry) TryGet(key domain.Key) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[key.String()]
	return t, ok
}

// Replace atomically swaps the task registered under key and returns the
// superseded task, or nil if the key was free. Last writer wins. The old task
// is cancelled and drained on a background goroutine: a bounded wait for
// completion, then forced release, so Replace itself never blocks.
func (r *Registry) Replace(ctx context.Context, key domain.Key, t Task) Task {
	_, span := r.tracer.Start(ctx, "session_registry.replace",
		trace.WithAttributes(attribute.String("session_key", key.String())))
	defer span.End()

	r.mu.Lock()
	old := r.tasks[key.String()]
	r.tasks[key.String()] = t
	r.mu.Unlock()

	if old == nil || old == t {
		return nil
	}

	span.AddEvent("previous_task_superseded")
	go r.drain(context.WithoutCancel(ctx), key, old)
	return old
}

// Remove unregisters and returns the task under key, if the given task is
// still the registered one. A session removing itself after a replacement
// must not evict its successor.
func (r *Registry) Remove(key domain.Key, t Task) Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.tasks[key.String()]
	if !ok || (t != nil && cur != t) {
		return nil
	}
	delete(r.tasks, key.String())
	return cur
}

// Count returns the number of registered tasks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// IsCompleted reports whether every registered task has finished. A probing
// error counts as completed, matching WaitAll's conservative aggregate.
func (r *Registry) IsCompleted() bool {
	for _, t := range r.snapshot() {
		done, err := t.Completed()
		if err != nil {
			continue
		}
		if !done {
			return false
		}
	}
	return true
}

// CancelAll signals every task whose probe reports not-completed and
// not-already-cancelled. A probe that fails is conservatively treated as
// cancellation-eligible: a task in unknown state must still hear the signal.
func (r *Registry) CancelAll(ctx context.Context, cause error) {
	ctx, span := r.tracer.Start(ctx, "session_registry.cancel_all")
	defer span.End()

	tasks := r.snapshot()
	cancelled := 0
	for _, t := range tasks {
		done, err := t.Completed()
		if err == nil && done {
			continue
		}
		if t.Cancelled() {
			continue
		}
		t.Cancel(cause)
		cancelled++
	}

	span.SetAttributes(attribute.Int("cancelled", cancelled))
	r.logger.Info(ctx, "Cancelled pending sessions", "count", cancelled, "total", len(tasks))
}

// WaitAll blocks until every pending task completes, up to timeout. A zero
// timeout polls once; a negative timeout waits indefinitely. Tasks whose
// probe fails are treated as completed for this aggregate, to avoid
// deadlocking on unobservable state. It returns true when nothing remained
// pending within the bound.
func (r *Registry) WaitAll(ctx context.Context, timeout time.Duration) bool {
	ctx, span := r.tracer.Start(ctx, "session_registry.wait_all",
		trace.WithAttributes(attribute.String("timeout", timeout.String())))
	defer span.End()

	var pending []Task
	for _, t := range r.snapshot() {
		done, err := t.Completed()
		if err != nil {
			continue
		}
		if !done {
			pending = append(pending, t)
		}
	}
	span.SetAttributes(attribute.Int("pending", len(pending)))

	if len(pending) == 0 {
		return true
	}
	if timeout == 0 {
		return false
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for _, t := range pending {
		select {
		case <-t.Done():
		case <-deadline:
			span.AddEvent("wait_all_timed_out")
			return false
		case <-ctx.Done():
			span.AddEvent("wait_all_context_cancelled")
			return false
		}
	}

	span.AddEvent("all_sessions_completed")
	return true
}

// drain cancels a superseded task and waits for it within the drain bound.
// Past the bound the task is released regardless; its own cleanup still runs
// whenever it finishes.
func (r *Registry) drain(ctx context.Context, key domain.Key, old Task) {
	old.Cancel(domain.ErrSuperseded)

	timer := time.NewTimer(r.drainWait)
	defer timer.Stop()

	select {
	case <-old.Done():
	case <-timer.C:
		r.logger.Warn(ctx, "Superseded session did not finish within drain bound, releasing",
			"session_key", key.String(),
			"drain_wait", r.drainWait,
		)
	}
}

func (r *Registry) snapshot() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t)
	}
	return tasks
}
