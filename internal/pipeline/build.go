package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
	"github.com/maxkimambo/qtask/internal/fetch"
	"github.com/maxkimambo/qtask/internal/gcp"
	"github.com/maxkimambo/qtask/internal/logger"
	"github.com/maxkimambo/qtask/internal/task"
)

// Builder turns step definitions into task steps.
type Builder struct {
	// HTTPClient is used by http steps. Nil uses http.DefaultClient.
	HTTPClient *http.Client
	// Compute serves gce_* steps. Required only when the pipeline has them.
	Compute gcp.InstanceOperations
}

// Register defines every task of p in registry.
func (b Builder) Register(registry *task.Registry, p *Pipeline) error {
	for _, t := range p.Tasks {
		steps := make([]task.Step, 0, len(t.Steps))
		for i, s := range t.Steps {
			step, err := b.Build(s)
			if err != nil {
				return fmt.Errorf("task %s step %d: %w", t.Name, i+1, err)
			}
			steps = append(steps, step)
		}
		registry.Define(t.Name, steps...)
		logger.Op.WithFields(map[string]interface{}{
			"task":  t.Name,
			"steps": len(steps),
		}).Debug("Task registered")
	}
	return nil
}

// Build returns the step described by s.
func (b Builder) Build(s StepSpec) (task.Step, error) {
	switch s.Kind {
	case KindSleep:
		return SleepStep(s.Duration), nil
	case KindFail:
		return FailStep(s.Message), nil
	case KindHTTP:
		return fetch.Step(s.URL, b.fetchOptions(s), nil), nil
	case KindGCEStart, KindGCEStop, KindGCEWait:
		if b.Compute == nil {
			return nil, fmt.Errorf("%s step needs a Compute Engine client", s.Kind)
		}
		ref := s.instanceRef()
		switch s.Kind {
		case KindGCEStart:
			return gcp.StartInstanceStep(b.Compute, ref), nil
		case KindGCEStop:
			return gcp.StopInstanceStep(b.Compute, ref), nil
		default:
			status := s.Status
			if status == "" {
				status = gcp.StatusRunning
			}
			return gcp.WaitForStatusStep(b.Compute, ref, status, s.PollInterval), nil
		}
	}
	return nil, fmt.Errorf("unknown step kind %q", s.Kind)
}

func (b Builder) fetchOptions(s StepSpec) fetch.Options {
	opts := fetch.Options{
		Method:       strings.ToUpper(s.Method),
		Headers:      s.Headers,
		ContentType:  s.ContentType,
		ResponseType: fetch.ResponseType(s.ResponseType),
		Retries:      s.Retries,
		RetryDelay:   s.RetryDelay,
		Timeout:      s.RequestTimeout,
		ExpectStatus: s.ExpectStatus,
		Client:       b.HTTPClient,
	}
	if s.Body != "" {
		opts.Body = []byte(s.Body)
	}
	return opts
}

// SleepStep waits for d or until the run ends.
func SleepStep(d time.Duration) task.StepFunc {
	return func(ctx context.Context) error {
		return gax.Sleep(ctx, d)
	}
}

// FailStep always fails with message.
func FailStep(message string) task.StepFunc {
	if message == "" {
		message = defaultFailMessage
	}
	return func(ctx context.Context) error {
		return errors.New(message)
	}
}

// RunOptions returns the run options implied by the task definition.
func (t TaskSpec) RunOptions() []task.RunOption {
	if t.Timeout <= 0 {
		return nil
	}
	return []task.RunOption{task.WithTimeout(t.Timeout)}
}
