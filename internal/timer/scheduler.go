package timer

import "time"

// Stopper cancels a callback armed by a Scheduler. Stop reports whether the
// call stopped the callback before it fired.
type Stopper interface {
	Stop() bool
}

// Scheduler arms single-shot callbacks.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// RealScheduler returns a Scheduler backed by the runtime timers.
func RealScheduler() Scheduler {
	return realScheduler{}
}
