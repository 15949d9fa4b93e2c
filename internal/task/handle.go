package task

import (
	"context"
	"time"
)

// Handle is bound to one task name of a registry.
type Handle struct {
	registry *Registry
	name     string
}

// Name returns the task name.
func (h *Handle) Name() string { return h.name }

// Steps returns the number of registered steps.
func (h *Handle) Steps() int { return h.registry.Steps(h.name) }

// Run starts the task.
func (h *Handle) Run(ctx context.Context, opts ...RunOption) (*Execution, error) {
	return h.registry.Run(ctx, h.name, opts...)
}

// Abort stops bookkeeping for the live run.
func (h *Handle) Abort() bool { return h.registry.Abort(h.name) }

// OnDone attaches a completion callback to the live run.
func (h *Handle) OnDone(fn func()) bool { return h.registry.OnDone(h.name, fn) }

// OnFail attaches a failure callback to the live run.
func (h *Handle) OnFail(fn func(error)) bool { return h.registry.OnFail(h.name, fn) }

// OnTimeout attaches a timeout callback to the live run.
func (h *Handle) OnTimeout(fn func()) bool { return h.registry.OnTimeout(h.name, fn) }

// SetTimeout changes the live run's deadline.
func (h *Handle) SetTimeout(d time.Duration) bool { return h.registry.SetTimeout(h.name, d) }
