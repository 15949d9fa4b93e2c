package progress

import (
	"fmt"
	"strings"
	"time"
)

// ProgressInfo contains the state of one run
type ProgressInfo struct {
	Task              string
	RunID             string
	TotalSteps        int
	CompletedSteps    int
	CurrentStep       int // 1-based, 0 when no step is running
	ElapsedTime       time.Duration
	Timeout           time.Duration
	EstimatedTimeLeft time.Duration
}

// Reporter formats progress lines
type Reporter struct{}

// NewReporter creates a new progress reporter
func NewReporter() *Reporter {
	return &Reporter{}
}

// Report generates a formatted progress report
func (r *Reporter) Report(info ProgressInfo) string {
	var sb strings.Builder

	percentage := 0.0
	if info.TotalSteps > 0 {
		percentage = float64(info.CompletedSteps) / float64(info.TotalSteps) * 100
	}

	sb.WriteString(fmt.Sprintf("%s: %d/%d steps completed (%.1f%%)",
		info.Task, info.CompletedSteps, info.TotalSteps, percentage))

	if info.CurrentStep > 0 {
		sb.WriteString(fmt.Sprintf(" | Step %d running", info.CurrentStep))
	}

	sb.WriteString(fmt.Sprintf(" | Elapsed: %s", FormatDuration(info.ElapsedTime)))

	if info.Timeout > 0 {
		left := info.Timeout - info.ElapsedTime
		if left < 0 {
			left = 0
		}
		sb.WriteString(fmt.Sprintf(" | Deadline in: %s", FormatDuration(left)))
	}

	if info.EstimatedTimeLeft > 0 {
		sb.WriteString(fmt.Sprintf(" | ETA: %s", FormatDuration(info.EstimatedTimeLeft)))
	}

	return sb.String()
}

// ReportStepStart reports the start of a step
func (r *Reporter) ReportStepStart(task string, index, total int) string {
	return fmt.Sprintf("%s: starting step %d/%d", task, index+1, total)
}

// ReportStepComplete reports step completion
func (r *Reporter) ReportStepComplete(task string, index, total int, duration time.Duration, err error) string {
	status := "COMPLETED"
	if err != nil {
		status = "FAILED"
	}
	return fmt.Sprintf("%s: step %d/%d %s (took %s)", task, index+1, total, status, FormatDuration(duration))
}

// CalculateETA estimates time remaining based on current progress
func CalculateETA(completed, total int, elapsed time.Duration) time.Duration {
	if completed <= 0 || total <= 0 || completed >= total {
		return 0
	}

	averageTimePerStep := elapsed / time.Duration(completed)
	return averageTimePerStep * time.Duration(total-completed)
}

// FormatDuration formats a duration in a user-friendly way
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
