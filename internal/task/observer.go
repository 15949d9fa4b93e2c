package task

import "time"

// RunInfo describes a run to observers.
type RunInfo struct {
	ID      string
	Name    string
	Steps   int
	Timeout time.Duration
	Started time.Time
}

// Observer receives run and step progress. RunStarted is delivered before
// any other call for the same run. After that, calls for one run may overlap:
// RunFinished can come from the deadline timer or an Abort caller while the
// step goroutine is still reporting. Implementations must be safe for
// concurrent use and must not call back into the Registry from RunStarted.
type Observer interface {
	RunStarted(info RunInfo)
	StepStarted(info RunInfo, index int)
	StepFinished(info RunInfo, index int, err error, elapsed time.Duration)
	RunFinished(info RunInfo, outcome Outcome, err error, elapsed time.Duration)
}
