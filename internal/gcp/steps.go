package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
	"github.com/maxkimambo/qtask/internal/logger"
	"github.com/maxkimambo/qtask/internal/task"
)

const (
	StatusRunning    = "RUNNING"
	StatusTerminated = "TERMINATED"

	defaultPollInterval = 5 * time.Second
	maxPollInterval     = 30 * time.Second
)

// StartInstanceStep starts the instance and waits for the operation.
func StartInstanceStep(ops InstanceOperations, ref InstanceRef) task.AsyncFunc {
	return func(ctx context.Context) *task.Future {
		return task.Go(ctx, func(ctx context.Context) error {
			return ops.StartInstance(ctx, ref)
		})
	}
}

// StopInstanceStep stops the instance and waits for the operation.
func StopInstanceStep(ops InstanceOperations, ref InstanceRef) task.AsyncFunc {
	return func(ctx context.Context) *task.Future {
		return task.Go(ctx, func(ctx context.Context) error {
			return ops.StopInstance(ctx, ref)
		})
	}
}

// WaitForStatusStep polls the instance until it reports status. The poll
// interval grows from poll up to 30s. A zero poll uses 5s.
func WaitForStatusStep(ops InstanceOperations, ref InstanceRef, status string, poll time.Duration) task.AsyncFunc {
	return func(ctx context.Context) *task.Future {
		return task.Go(ctx, func(ctx context.Context) error {
			return WaitForStatus(ctx, ops, ref, status, poll)
		})
	}
}

// WaitForStatus blocks until the instance reports status or ctx ends.
func WaitForStatus(ctx context.Context, ops InstanceOperations, ref InstanceRef, status string, poll time.Duration) error {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	maxPoll := maxPollInterval
	if maxPoll < poll {
		maxPoll = poll
	}
	backoff := gax.Backoff{
		Initial:    poll,
		Max:        maxPoll,
		Multiplier: 1.5,
	}
	want := strings.ToUpper(status)

	for {
		instance, err := ops.GetInstance(ctx, ref)
		if err != nil {
			return err
		}
		current := instance.GetStatus()
		if current == want {
			logger.Op.WithFields(ref.fields()).Debugf("Instance reached status %s", want)
			return nil
		}

		pause := backoff.Pause()
		logger.Op.WithFields(ref.fields()).Debugf("Instance is %s, waiting %s for %s", current, pause, want)
		if err := gax.Sleep(ctx, pause); err != nil {
			return fmt.Errorf("instance %s did not reach %s (last status %s): %w", ref, want, current, err)
		}
	}
}
