package task

import "errors"

var (
	// ErrNoSteps is returned by Run for a name with no registered steps.
	ErrNoSteps = errors.New("no steps registered")
	// ErrAlreadyRunning is returned by Run while a run of the same name is live.
	ErrAlreadyRunning = errors.New("already running")
	// ErrTimeout marks a run that lost the race against its deadline.
	ErrTimeout = errors.New("timed out")
	// ErrAborted marks a run stopped through Abort.
	ErrAborted = errors.New("aborted")
)
