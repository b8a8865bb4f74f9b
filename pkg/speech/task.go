package speech

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Task is a handle to backgrounded speech.
type Task struct {
	ID string

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func newTask(cancel context.CancelFunc) *Task {
	return &Task{
		ID:     uuid.New().String(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Cancel stops the task after the current wait step.
func (t *Task) Cancel() { t.cancel() }

// Done is closed once the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Active reports whether the task is still running.
func (t *Task) Active() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Err returns the error the task ended with, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) finish(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	close(t.done)
}
