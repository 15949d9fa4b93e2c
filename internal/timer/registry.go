package timer

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maxkimambo/qtask/internal/logger"
)

// ErrTimerActive is returned when starting a timer whose id is still live
// without asking to interrupt it.
var ErrTimerActive = errors.New("timer already active")

const defaultDelay = time.Second

// Options controls a named timer.
type Options struct {
	// Ticks is the number of times the callback fires before the timer
	// removes itself. Zero or negative repeats until stopped.
	Ticks int
	// Delay between ticks. Defaults to one second.
	Delay time.Duration
	// Interrupt replaces a live timer registered under the same id.
	Interrupt bool
}

// DefaultOptions fires once after one second.
func DefaultOptions() Options {
	return Options{Ticks: 1, Delay: defaultDelay}
}

type entry struct {
	stop chan struct{}
	once sync.Once
}

func (e *entry) halt() {
	e.once.Do(func() { close(e.stop) })
}

// Registry keeps named interval timers.
type Registry struct {
	mu     sync.Mutex
	active map[string]*entry
}

// NewRegistry creates an empty timer registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]*entry),
	}
}

// Start arms fn under id.
func (r *Registry) Start(id string, fn func(), opts Options) error {
	if fn == nil {
		return fmt.Errorf("timer %s: callback cannot be nil", id)
	}
	if opts.Delay <= 0 {
		opts.Delay = defaultDelay
	}

	r.mu.Lock()
	if old, ok := r.active[id]; ok {
		if !opts.Interrupt {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrTimerActive, id)
		}
		old.halt()
		logger.Op.Debugf("Timer %s interrupted", id)
	}
	e := &entry{stop: make(chan struct{})}
	r.active[id] = e
	r.mu.Unlock()

	go r.loop(id, e, fn, opts)
	return nil
}

func (r *Registry) loop(id string, e *entry, fn func(), opts Options) {
	ticker := time.NewTicker(opts.Delay)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
		}

		// Stop may race with the tick
		select {
		case <-e.stop:
			return
		default:
		}

		fn()
		ticks++
		if opts.Ticks > 0 && ticks >= opts.Ticks {
			r.remove(id, e)
			return
		}
	}
}

func (r *Registry) remove(id string, e *entry) {
	r.mu.Lock()
	if r.active[id] == e {
		delete(r.active, id)
	}
	r.mu.Unlock()
	e.halt()
}

// Stop halts the timer registered under id. It reports whether one was live.
func (r *Registry) Stop(id string) bool {
	r.mu.Lock()
	e, ok := r.active[id]
	if ok {
		delete(r.active, id)
	}
	r.mu.Unlock()

	if ok {
		e.halt()
	}
	return ok
}

// StopAll halts every live timer.
func (r *Registry) StopAll() {
	r.mu.Lock()
	entries := r.active
	r.active = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.halt()
	}
}

// Active returns the ids of live timers in sorted order.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
