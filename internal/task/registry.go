// Package task runs named, ordered step lists against a deadline.
//
// A Registry owns task definitions and at most one live run per name. A run
// executes its steps one after another; a step starts only after the
// previous one settled. The pipeline races a deadline timer and the first to
// settle decides the outcome: done when every step completed, fail when a
// step failed or the deadline passed. Abort drops the run silently.
package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maxkimambo/qtask/internal/logger"
	"github.com/maxkimambo/qtask/internal/timer"
)

// Registry holds task definitions and their live runs.
type Registry struct {
	mu      sync.Mutex
	tasks   map[string][]Step
	running map[string]*runState

	scheduler      timer.Scheduler
	defaultTimeout time.Duration
	observers      []Observer
}

type runState struct {
	info RunInfo

	timeout    time.Duration
	onDone     func()
	onFail     func(error)
	onTimeout  func()
	deadline   timer.Stopper
	generation int
	cancel     context.CancelFunc
	settled    bool
	announced  chan struct{}

	exec *Execution
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tasks:          make(map[string][]Step),
		running:        make(map[string]*runState),
		scheduler:      timer.RealScheduler(),
		defaultTimeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Define appends steps to the named task, creating it if needed, and returns
// a handle for it. Nil steps are skipped.
func (r *Registry) Define(name string, steps ...Step) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[name]; !ok {
		r.tasks[name] = nil
	}
	for i, s := range steps {
		if s == nil {
			logger.Op.WithFields(map[string]interface{}{
				"task": name,
				"arg":  i,
			}).Warn("Skipping nil step")
			continue
		}
		r.tasks[name] = append(r.tasks[name], s)
	}

	return &Handle{registry: r, name: name}
}

// Task returns a handle for name without registering steps.
func (r *Registry) Task(name string) *Handle {
	return &Handle{registry: r, name: name}
}

// Names returns the defined task names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Steps returns the number of steps registered under name.
func (r *Registry) Steps(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks[name])
}

// Running reports whether name has a live run.
func (r *Registry) Running(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[name]
	return ok
}

// Run starts the named task and returns without waiting for it. It fails
// with ErrNoSteps when nothing is registered under name and with
// ErrAlreadyRunning while a previous run of name is live. Every other
// failure is reported through the fail callback and the Execution.
func (r *Registry) Run(ctx context.Context, name string, opts ...RunOption) (*Execution, error) {
	cfg := runConfig{timeout: r.defaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	r.mu.Lock()
	registered := r.tasks[name]
	if len(registered) == 0 {
		r.mu.Unlock()
		logger.Op.WithFields(map[string]interface{}{"task": name}).Error("No steps registered for task")
		return nil, fmt.Errorf("task %s: %w", name, ErrNoSteps)
	}
	if live, ok := r.running[name]; ok {
		r.mu.Unlock()
		logger.Op.WithFields(map[string]interface{}{
			"task": name,
			"run":  live.info.ID,
		}).Warn("Task is already running")
		return nil, fmt.Errorf("task %s: %w", name, ErrAlreadyRunning)
	}

	steps := make([]Step, len(registered))
	copy(steps, registered)

	runCtx, cancel := context.WithCancel(ctx)
	now := time.Now()
	rs := &runState{
		info: RunInfo{
			ID:      uuid.NewString(),
			Name:    name,
			Steps:   len(steps),
			Timeout: cfg.timeout,
			Started: now,
		},
		timeout:   cfg.timeout,
		onDone:    cfg.onDone,
		onFail:    cfg.onFail,
		onTimeout: cfg.onTimeout,
		cancel:    cancel,
		announced: make(chan struct{}),
	}
	rs.exec = newExecution(rs.info.ID, name, now)
	r.running[name] = rs
	r.armDeadline(rs, cfg.timeout)
	r.mu.Unlock()

	logger.Op.WithFields(map[string]interface{}{
		"task":    name,
		"run":     rs.info.ID,
		"steps":   len(steps),
		"timeout": cfg.timeout,
	}).Debug("Run started")
	for _, o := range r.observers {
		o.RunStarted(rs.info)
	}
	close(rs.announced)

	go r.pipeline(runCtx, rs, steps)
	return rs.exec, nil
}

// armDeadline must be called with r.mu held.
func (r *Registry) armDeadline(rs *runState, remaining time.Duration) {
	if rs.deadline != nil {
		rs.deadline.Stop()
	}
	if remaining < 0 {
		remaining = 0
	}
	rs.generation++
	gen := rs.generation
	rs.deadline = r.scheduler.AfterFunc(remaining, func() {
		r.expire(rs, gen)
	})
}

func (r *Registry) pipeline(ctx context.Context, rs *runState, steps []Step) {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			r.settle(rs, Failed, err)
			return
		}

		for _, o := range r.observers {
			o.StepStarted(rs.info, i)
		}
		started := time.Now()
		err := executeStep(ctx, step)
		elapsed := time.Since(started)
		for _, o := range r.observers {
			o.StepFinished(rs.info, i, err, elapsed)
		}

		logger.Op.WithFields(map[string]interface{}{
			"task":    rs.info.Name,
			"run":     rs.info.ID,
			"step":    i + 1,
			"elapsed": elapsed.Round(time.Millisecond),
		}).Debug("Step settled")

		if err != nil {
			r.settle(rs, Failed, err)
			return
		}
	}
	r.settle(rs, Succeeded, nil)
}

func (r *Registry) expire(rs *runState, gen int) {
	r.mu.Lock()
	if rs.settled || rs.generation != gen {
		r.mu.Unlock()
		return
	}
	timeout := rs.timeout
	r.mu.Unlock()

	r.settle(rs, TimedOut, fmt.Errorf("task %s: %w after %s", rs.info.Name, ErrTimeout, timeout))
}

// settle tears the run down. The first caller wins; later calls report false
// and have no effect.
func (r *Registry) settle(rs *runState, outcome Outcome, err error) bool {
	r.mu.Lock()
	if rs.settled {
		r.mu.Unlock()
		return false
	}
	rs.settled = true
	if rs.deadline != nil {
		rs.deadline.Stop()
	}
	if r.running[rs.info.Name] == rs {
		delete(r.running, rs.info.Name)
	}
	onDone, onFail, onTimeout := rs.onDone, rs.onFail, rs.onTimeout
	r.mu.Unlock()

	rs.cancel()

	fields := map[string]interface{}{
		"task": rs.info.Name,
		"run":  rs.info.ID,
	}
	switch outcome {
	case Succeeded:
		logger.Op.WithFields(fields).Debug("Run completed")
		invoke(rs.info, "done", func() {
			if onDone != nil {
				onDone()
			}
		})
	case Failed:
		logger.Op.WithFields(fields).WithError(err).Error("Run failed")
		invoke(rs.info, "fail", func() {
			if onFail != nil {
				onFail(err)
			}
		})
	case TimedOut:
		logger.Op.WithFields(fields).WithError(err).Error("Run timed out")
		invoke(rs.info, "timeout", func() {
			if onTimeout != nil {
				onTimeout()
			}
		})
		invoke(rs.info, "fail", func() {
			if onFail != nil {
				onFail(err)
			}
		})
	case Aborted:
		logger.Op.WithFields(fields).Warn("Run aborted")
	}

	elapsed := time.Since(rs.info.Started)
	// Observers see RunStarted before RunFinished even when the run
	// settles while Run is still announcing it.
	<-rs.announced
	for _, o := range r.observers {
		o.RunFinished(rs.info, outcome, err, elapsed)
	}
	rs.exec.finish(outcome, err)
	return true
}

// invoke keeps a panicking callback from taking the run goroutine down.
func invoke(info RunInfo, kind string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			logger.Op.WithFields(map[string]interface{}{
				"task":     info.Name,
				"run":      info.ID,
				"callback": kind,
			}).Errorf("Callback panicked: %v", p)
		}
	}()
	fn()
}

// Abort drops the live run of name: its deadline is stopped, its context is
// cancelled and none of its callbacks fire. Steps already running are not
// interrupted beyond the context cancellation. It reports whether a live run
// was aborted.
func (r *Registry) Abort(name string) bool {
	r.mu.Lock()
	rs, ok := r.running[name]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return r.settle(rs, Aborted, fmt.Errorf("task %s: %w", name, ErrAborted))
}

// OnDone replaces the completion callback of the live run of name. It
// reports false when no run is live.
func (r *Registry) OnDone(name string, fn func()) bool {
	return r.withLive(name, func(rs *runState) { rs.onDone = fn })
}

// OnFail replaces the failure callback of the live run of name.
func (r *Registry) OnFail(name string, fn func(error)) bool {
	return r.withLive(name, func(rs *runState) { rs.onFail = fn })
}

// OnTimeout replaces the timeout callback of the live run of name.
func (r *Registry) OnTimeout(name string, fn func()) bool {
	return r.withLive(name, func(rs *runState) { rs.onTimeout = fn })
}

// SetTimeout changes the deadline of the live run of name. The new deadline
// counts from the start of the run, so a value shorter than the time already
// spent expires the run right away.
func (r *Registry) SetTimeout(name string, d time.Duration) bool {
	if d <= 0 {
		return false
	}
	return r.withLive(name, func(rs *runState) {
		rs.timeout = d
		r.armDeadline(rs, d-time.Since(rs.info.Started))
	})
}

func (r *Registry) withLive(name string, fn func(rs *runState)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.running[name]
	if !ok || rs.settled {
		return false
	}
	fn(rs)
	return true
}
