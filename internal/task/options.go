package task

import (
	"time"

	"github.com/maxkimambo/qtask/internal/timer"
)

// DefaultTimeout bounds a run when no other deadline is configured.
const DefaultTimeout = 20 * time.Second

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithScheduler sets the scheduler used for run deadlines.
func WithScheduler(s timer.Scheduler) RegistryOption {
	return func(r *Registry) {
		if s != nil {
			r.scheduler = s
		}
	}
}

// WithDefaultTimeout sets the deadline used by runs that do not pass one.
func WithDefaultTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

// WithObserver adds an observer notified about run and step progress.
func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// RunOption configures a single run. All callbacks are fixed when the run
// starts, so none of them can be missed by a step that finishes early.
type RunOption func(*runConfig)

type runConfig struct {
	timeout   time.Duration
	onDone    func()
	onFail    func(error)
	onTimeout func()
}

// WithTimeout overrides the run deadline. Non-positive values are ignored.
func WithTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDone is called once when every step completed.
func WithDone(fn func()) RunOption {
	return func(c *runConfig) { c.onDone = fn }
}

// WithFail is called once with the failure reason when a step fails or the
// deadline passes.
func WithFail(fn func(error)) RunOption {
	return func(c *runConfig) { c.onFail = fn }
}

// WithTimeoutCallback is called when the deadline passes, right before the
// fail callback.
func WithTimeoutCallback(fn func()) RunOption {
	return func(c *runConfig) { c.onTimeout = fn }
}
