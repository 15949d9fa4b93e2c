package task

import (
	"context"
	"time"
)

// Outcome is how a run ended.
type Outcome int

const (
	Running Outcome = iota
	Succeeded
	Failed
	TimedOut
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed out"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Execution tracks one run of a task.
type Execution struct {
	id      string
	name    string
	started time.Time

	done     chan struct{}
	outcome  Outcome
	err      error
	finished time.Time
}

func newExecution(id, name string, started time.Time) *Execution {
	return &Execution{
		id:      id,
		name:    name,
		started: started,
		done:    make(chan struct{}),
	}
}

// ID is unique per run.
func (e *Execution) ID() string { return e.id }

// Name is the task name.
func (e *Execution) Name() string { return e.name }

// Done is closed after the run settled and its callbacks returned.
func (e *Execution) Done() <-chan struct{} { return e.done }

// Wait blocks until the run settles or ctx is done. It returns the run's
// error, nil on success.
func (e *Execution) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return e.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the run's error once settled.
func (e *Execution) Err() error {
	select {
	case <-e.done:
		return e.err
	default:
		return nil
	}
}

// Outcome returns Running until the run settles.
func (e *Execution) Outcome() Outcome {
	select {
	case <-e.done:
		return e.outcome
	default:
		return Running
	}
}

// Duration is the wall time of a settled run, or the time elapsed so far.
func (e *Execution) Duration() time.Duration {
	select {
	case <-e.done:
		return e.finished.Sub(e.started)
	default:
		return time.Since(e.started)
	}
}

func (e *Execution) finish(outcome Outcome, err error) {
	e.outcome = outcome
	e.err = err
	e.finished = time.Now()
	close(e.done)
}
