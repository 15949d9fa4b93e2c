package progress

import (
	"sync"
	"time"

	"github.com/maxkimambo/qtask/internal/logger"
	"github.com/maxkimambo/qtask/internal/task"
	"github.com/maxkimambo/qtask/internal/timer"
)

const timerPrefix = "progress:"

type runProgress struct {
	info      task.RunInfo
	completed int
	current   int
}

// Tracker follows runs of a task registry and prints periodic progress lines.
type Tracker struct {
	mu       sync.Mutex
	runs     map[string]*runProgress
	timers   *timer.Registry
	interval time.Duration
	reporter *Reporter
}

// NewTracker returns a tracker that reports every interval through timers.
// A non-positive interval disables periodic lines; step events still log.
func NewTracker(timers *timer.Registry, interval time.Duration) *Tracker {
	return &Tracker{
		runs:     make(map[string]*runProgress),
		timers:   timers,
		interval: interval,
		reporter: NewReporter(),
	}
}

var _ task.Observer = (*Tracker)(nil)

func (t *Tracker) RunStarted(info task.RunInfo) {
	t.mu.Lock()
	t.runs[info.ID] = &runProgress{info: info}
	t.mu.Unlock()

	logger.User.Startingf("Running task %s (%d steps, timeout %s)", info.Name, info.Steps, info.Timeout)

	if t.interval > 0 && t.timers != nil {
		err := t.timers.Start(timerPrefix+info.ID, func() { t.report(info.ID) }, timer.Options{Delay: t.interval})
		if err != nil {
			logger.Op.Warnf("Progress reporting disabled for run %s: %v", info.ID, err)
		}
	}
}

func (t *Tracker) StepStarted(info task.RunInfo, index int) {
	t.mu.Lock()
	if rp, ok := t.runs[info.ID]; ok {
		rp.current = index + 1
	}
	t.mu.Unlock()

	logger.Op.WithFields(map[string]interface{}{"run": info.ID}).Debug(t.reporter.ReportStepStart(info.Name, index, info.Steps))
}

func (t *Tracker) StepFinished(info task.RunInfo, index int, err error, elapsed time.Duration) {
	t.mu.Lock()
	if rp, ok := t.runs[info.ID]; ok {
		rp.current = 0
		if err == nil {
			rp.completed = index + 1
		}
	}
	t.mu.Unlock()

	line := t.reporter.ReportStepComplete(info.Name, index, info.Steps, elapsed, err)
	if err != nil {
		logger.Op.WithFields(map[string]interface{}{"run": info.ID}).WithError(err).Warn(line)
		return
	}
	logger.User.Stepf("%s", line)
}

func (t *Tracker) RunFinished(info task.RunInfo, outcome task.Outcome, err error, elapsed time.Duration) {
	if t.timers != nil {
		t.timers.Stop(timerPrefix + info.ID)
	}

	t.mu.Lock()
	delete(t.runs, info.ID)
	t.mu.Unlock()

	took := FormatDuration(elapsed)
	switch outcome {
	case task.Succeeded:
		logger.User.Successf("Task %s completed in %s", info.Name, took)
	case task.TimedOut:
		logger.User.TimedOutf("Task %s timed out after %s", info.Name, took)
	case task.Aborted:
		logger.User.Abortedf("Task %s aborted after %s", info.Name, took)
	default:
		logger.User.Errorf("Task %s failed after %s: %v", info.Name, took, err)
	}
}

// Snapshot returns the current progress of a live run.
func (t *Tracker) Snapshot(runID string) (ProgressInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rp, ok := t.runs[runID]
	if !ok {
		return ProgressInfo{}, false
	}
	elapsed := time.Since(rp.info.Started)
	return ProgressInfo{
		Task:              rp.info.Name,
		RunID:             rp.info.ID,
		TotalSteps:        rp.info.Steps,
		CompletedSteps:    rp.completed,
		CurrentStep:       rp.current,
		ElapsedTime:       elapsed,
		Timeout:           rp.info.Timeout,
		EstimatedTimeLeft: CalculateETA(rp.completed, rp.info.Steps, elapsed),
	}, true
}

func (t *Tracker) report(runID string) {
	info, ok := t.Snapshot(runID)
	if !ok {
		return
	}
	logger.User.Info(t.reporter.Report(info))
}
