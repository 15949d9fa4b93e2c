package task

import (
	"context"
	"fmt"
	"sync"
)

// Step is a unit of work within a task.
type Step interface {
	Execute(ctx context.Context) error
}

// StepFunc is a synchronous step: it has finished by the time it returns.
type StepFunc func(ctx context.Context) error

// Execute runs the function.
func (f StepFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// AsyncFunc is an asynchronous step: it starts work and hands back a Future
// that settles later. A nil Future counts as immediate success.
type AsyncFunc func(ctx context.Context) *Future

// Execute starts the step and waits for its future to settle.
func (f AsyncFunc) Execute(ctx context.Context) error {
	fut := f(ctx)
	if fut == nil {
		return nil
	}
	return fut.Await(ctx)
}

// Future is the pending result of an asynchronous step.
type Future struct {
	done   chan struct{}
	err    error
	once   sync.Once
	cancel context.CancelFunc
}

// NewFuture returns an unsettled future and the function that settles it.
// Only the first call to settle has an effect. cancel may be nil.
func NewFuture(cancel context.CancelFunc) (*Future, func(error)) {
	f := &Future{
		done:   make(chan struct{}),
		cancel: cancel,
	}
	return f, f.settle
}

// Go runs fn on its own goroutine and returns a future for its result.
// Cancelling the future cancels the context handed to fn.
func Go(ctx context.Context, fn func(ctx context.Context) error) *Future {
	ctx, cancel := context.WithCancel(ctx)
	f, settle := NewFuture(cancel)
	go func() {
		defer cancel()
		settle(safeCall(ctx, fn))
	}()
	return f
}

// Resolved returns a future that already succeeded.
func Resolved() *Future {
	f, settle := NewFuture(nil)
	settle(nil)
	return f
}

// Rejected returns a future that already failed with err.
func Rejected(err error) *Future {
	f, settle := NewFuture(nil)
	settle(err)
	return f
}

func (f *Future) settle(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the settled error. It is nil while the future is pending.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Cancel asks the underlying work to stop. The future still settles with
// whatever the work returns.
func (f *Future) Cancel() {
	if f.cancel != nil {
		f.cancel()
	}
}

// Await blocks until the future settles or ctx is done. When ctx wins the
// future is cancelled and ctx's error returned.
func (f *Future) Await(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		f.Cancel()
		return ctx.Err()
	}
}

func safeCall(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func executeStep(ctx context.Context, s Step) error {
	return safeCall(ctx, s.Execute)
}
