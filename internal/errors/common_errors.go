package errors

import (
	"fmt"
	"time"
)

// Common error codes
const (
	// Task registry error codes
	CodeNoSteps        = "001"
	CodeAlreadyRunning = "002"
	CodeAborted        = "003"
	CodeUnknownTask    = "004"

	// Step error codes
	CodeStepFailed = "001"

	// Timeout error codes
	CodeRunTimeout = "001"

	// GCP error codes
	CodeComputeClient = "001"

	// Configuration error codes
	CodeConfigRead    = "001"
	CodeConfigParse   = "002"
	CodeConfigInvalid = "003"
)

// NewNoStepsError creates an error for runs requested on a task without steps
func NewNoStepsError(taskName string) *TaskError {
	return NewTaskError(ErrorCategoryTask, CodeNoSteps,
		fmt.Sprintf("No steps registered for task '%s'", taskName),
		"Task run").
		WithContext("task", taskName).
		WithTroubleshooting(
			"Check the task name for typos",
			"Run 'qtask list' to see the tasks defined in the pipeline file",
		)
}

// NewAlreadyRunningError creates an error for a second run of a live task
func NewAlreadyRunningError(taskName string) *TaskError {
	return NewTaskError(ErrorCategoryTask, CodeAlreadyRunning,
		fmt.Sprintf("Task '%s' is already running", taskName),
		"Task run").
		WithContext("task", taskName).
		WithTroubleshooting(
			"Wait for the current run to finish or abort it first",
			"List the task only once on the command line",
		)
}

// NewTaskAbortedError creates an error for a run that was aborted by the caller
func NewTaskAbortedError(taskName string) *TaskError {
	return NewTaskError(ErrorCategoryTask, CodeAborted,
		fmt.Sprintf("Task '%s' was aborted", taskName),
		"Task run").
		WithContext("task", taskName)
}

// NewUnknownTaskError creates an error for task names missing from a pipeline
func NewUnknownTaskError(taskName, pipelinePath string) *TaskError {
	return NewTaskError(ErrorCategoryTask, CodeUnknownTask,
		fmt.Sprintf("Task '%s' is not defined", taskName),
		"Task lookup").
		WithContext("task", taskName).
		WithContext("pipeline", pipelinePath).
		WithTroubleshooting("Run 'qtask list -f " + pipelinePath + "' to see available tasks")
}

// NewStepFailedError creates an error for a run that stopped on a failing step
func NewStepFailedError(taskName, runID string, originalErr error) *TaskError {
	return NewTaskError(ErrorCategoryStep, CodeStepFailed,
		fmt.Sprintf("Task '%s' failed", taskName),
		"Step execution").
		WithContext("task", taskName).
		WithContext("run", runID).
		WithOriginalError(originalErr).
		WithTroubleshooting(
			"Check the operational log for the failing step",
			"Run with --verbose to see every step start and finish",
		)
}

// NewTaskTimeoutError creates an error for a run that exceeded its deadline
func NewTaskTimeoutError(taskName string, timeout time.Duration, originalErr error) *TaskError {
	return NewTaskError(ErrorCategoryTimeout, CodeRunTimeout,
		fmt.Sprintf("Task '%s' did not finish within %s", taskName, timeout),
		"Task run").
		WithContext("task", taskName).
		WithContext("timeout", timeout.String()).
		WithOriginalError(originalErr).
		WithTroubleshooting(
			"Raise the task timeout in the pipeline file or with --timeout",
			"Check whether a step is waiting on an unreachable resource",
		)
}

// NewPipelineReadError creates an error for pipeline files that cannot be read
func NewPipelineReadError(path string, originalErr error) *TaskError {
	return NewTaskError(ErrorCategoryConfiguration, CodeConfigRead,
		fmt.Sprintf("Cannot read pipeline file '%s'", path),
		"Pipeline load").
		WithContext("path", path).
		WithOriginalError(originalErr).
		WithTroubleshooting("Verify the path passed with --file exists and is readable")
}

// NewPipelineParseError creates an error for malformed pipeline YAML
func NewPipelineParseError(path string, originalErr error) *TaskError {
	return NewTaskError(ErrorCategoryConfiguration, CodeConfigParse,
		fmt.Sprintf("Cannot parse pipeline file '%s'", path),
		"Pipeline load").
		WithContext("path", path).
		WithOriginalError(originalErr).
		WithTroubleshooting("Validate the YAML syntax of the pipeline file")
}

// NewInvalidStepError creates an error for a step definition that cannot be built
func NewInvalidStepError(taskName string, index int, kind, reason string) *TaskError {
	return NewTaskError(ErrorCategoryConfiguration, CodeConfigInvalid,
		fmt.Sprintf("Invalid step %d (%s) in task '%s': %s", index+1, kind, taskName, reason),
		"Pipeline validation").
		WithContext("task", taskName).
		WithContext("step", index+1).
		WithContext("kind", kind).
		WithTroubleshooting(
			"Supported step kinds: sleep, fail, http, gce_start, gce_stop, gce_wait",
			"Run 'qtask validate' to check the whole pipeline",
		)
}

// NewInvalidTaskError creates an error for a task definition that cannot be registered
func NewInvalidTaskError(taskName, reason string) *TaskError {
	return NewTaskError(ErrorCategoryConfiguration, CodeConfigInvalid,
		fmt.Sprintf("Invalid task '%s': %s", taskName, reason),
		"Pipeline validation").
		WithContext("task", taskName).
		WithTroubleshooting("Every task needs a unique name and at least one step")
}

// NewComputeClientError creates an error for a Compute Engine client that cannot be created
func NewComputeClientError(originalErr error) *TaskError {
	return NewTaskError(ErrorCategoryGCP, CodeComputeClient,
		"Cannot connect to the Compute Engine API",
		"Client initialization").
		WithOriginalError(originalErr).
		WithTroubleshooting(
			"Run 'gcloud auth application-default login' to create default credentials",
			"Or point GOOGLE_APPLICATION_CREDENTIALS at a service account key",
		)
}

// GetErrorSeverity returns the severity level of an error
func GetErrorSeverity(err error) string {
	if taskErr, ok := AsTaskError(err); ok {
		switch taskErr.Category {
		case ErrorCategoryConfiguration:
			return "WARNING"
		case ErrorCategoryStep, ErrorCategoryTimeout:
			return "CRITICAL"
		default:
			return "ERROR"
		}
	}
	return "ERROR"
}
