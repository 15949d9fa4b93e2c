package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	taskerrors "github.com/maxkimambo/qtask/internal/errors"
	"github.com/maxkimambo/qtask/internal/gcp"
	"github.com/maxkimambo/qtask/internal/logger"
	"github.com/maxkimambo/qtask/internal/pipeline"
	"github.com/maxkimambo/qtask/internal/progress"
	"github.com/maxkimambo/qtask/internal/task"
	"github.com/maxkimambo/qtask/internal/timer"
	"github.com/maxkimambo/qtask/internal/utils"
	"github.com/spf13/cobra"
)

const defaultProgressInterval = 10 * time.Second

// computeFactory is replaced in tests.
var computeFactory = func(ctx context.Context) (gcp.InstanceOperations, error) {
	return gcp.NewClient(ctx)
}

type runResult struct {
	spec    pipeline.TaskSpec
	timeout time.Duration
	exec    *task.Execution
	err     error
}

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Run tasks from the pipeline file",
		Long: `Run the named tasks from the pipeline file, or every task when none is named.

Tasks run concurrently unless --sequential is set. Each task races its steps
against its deadline: the pipeline value, --timeout when given, or 20s. An
interrupt (Ctrl-C) aborts every running task without further step callbacks.

EXAMPLES:
# Run every task in pipeline.yaml
qtask run

# Run two tasks from another file, one after the other
qtask run -f deploy.yaml build deploy --sequential

# Give every task five minutes
QTASK_TIMEOUT=5m qtask run deploy
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTasks(cmd, args)
		},
	}

	cmd.Flags().Duration("timeout", 0, "Deadline for every task, overriding the pipeline file (0 keeps the file's values)")
	cmd.Flags().Bool("sequential", false, "Run tasks one after another and stop at the first one that does not succeed")
	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation before stopping instances")
	cmd.Flags().Duration("progress-interval", defaultProgressInterval, "Interval between progress lines (0 disables them)")
	return cmd
}

func (a *app) runTasks(cmd *cobra.Command, args []string) error {
	path := a.pipelineFile()
	p, err := pipeline.Load(path)
	if err != nil {
		return err
	}

	specs, err := selectTasks(p, args)
	if err != nil {
		return err
	}

	approved, err := confirmStops(cmd, specs, a.settings.GetBool("yes"))
	if err != nil {
		return err
	}
	if !approved {
		if !a.settings.GetBool("quiet") {
			fmt.Fprintln(cmd.OutOrStdout(), utils.Warning("Run cancelled", "No task was started."))
		}
		return nil
	}

	ctx := cmd.Context()
	selected := &pipeline.Pipeline{Path: p.Path, Tasks: specs}

	builder := pipeline.Builder{}
	if selected.UsesCompute() {
		compute, err := computeFactory(ctx)
		if err != nil {
			return taskerrors.NewComputeClientError(err)
		}
		defer compute.Close()
		builder.Compute = compute
	}

	timers := timer.NewRegistry()
	defer timers.StopAll()

	registry := task.NewRegistry(
		task.WithObserver(progress.NewTracker(timers, a.settings.GetDuration("progress-interval"))),
	)
	if err := builder.Register(registry, selected); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-sigCtx.Done():
			logger.User.Warn("Interrupt received, aborting running tasks...")
			for _, spec := range specs {
				registry.Abort(spec.Name)
			}
		case <-finished:
		}
	}()

	override := a.settings.GetDuration("timeout")
	start := func(spec pipeline.TaskSpec) runResult {
		res := runResult{spec: spec, timeout: effectiveTimeout(spec, override)}
		opts := spec.RunOptions()
		if override > 0 {
			opts = append(opts, task.WithTimeout(override))
		}
		res.exec, res.err = launch(ctx, sigCtx, registry, spec.Name, opts...)
		return res
	}

	results := make([]runResult, 0, len(specs))
	if a.settings.GetBool("sequential") {
		for _, spec := range specs {
			if sigCtx.Err() != nil {
				break
			}
			res := start(spec)
			if res.exec != nil {
				<-res.exec.Done()
			}
			results = append(results, res)
			if resultError(res) != nil {
				break
			}
		}
	} else {
		for _, spec := range specs {
			results = append(results, start(spec))
		}
		for _, res := range results {
			if res.exec != nil {
				<-res.exec.Done()
			}
		}
	}

	return a.summarize(cmd, results)
}

// launch starts name and aborts it right away when interrupted is already
// done, so a run registered after the abort pass still stops.
func launch(ctx, interrupted context.Context, registry *task.Registry, name string, opts ...task.RunOption) (*task.Execution, error) {
	exec, err := registry.Run(ctx, name, opts...)
	if err != nil {
		return nil, err
	}
	if interrupted.Err() != nil {
		registry.Abort(name)
	}
	return exec, nil
}

// selectTasks resolves names against the pipeline. Duplicate names run once.
func selectTasks(p *pipeline.Pipeline, names []string) ([]pipeline.TaskSpec, error) {
	if len(names) == 0 {
		return p.Tasks, nil
	}

	seen := make(map[string]bool, len(names))
	specs := make([]pipeline.TaskSpec, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		spec, ok := p.Task(name)
		if !ok {
			return nil, taskerrors.NewUnknownTaskError(name, p.Path)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func confirmStops(cmd *cobra.Command, specs []pipeline.TaskSpec, autoApprove bool) (bool, error) {
	var items []string
	for _, spec := range specs {
		for _, s := range spec.Steps {
			if s.Kind == pipeline.KindGCEStop {
				ref := gcp.InstanceRef{Project: s.Project, Zone: s.Zone, Name: s.Instance}
				items = append(items, fmt.Sprintf("%s (task %s)", ref, spec.Name))
			}
		}
	}
	if len(items) == 0 {
		return true, nil
	}
	return utils.ConfirmItems(cmd.InOrStdin(), cmd.OutOrStdout(), autoApprove, "stop", items)
}

func effectiveTimeout(spec pipeline.TaskSpec, override time.Duration) time.Duration {
	switch {
	case override > 0:
		return override
	case spec.Timeout > 0:
		return spec.Timeout
	default:
		return task.DefaultTimeout
	}
}

func resultError(res runResult) error {
	name := res.spec.Name
	if res.err != nil {
		switch {
		case stderrors.Is(res.err, task.ErrAlreadyRunning):
			return taskerrors.NewAlreadyRunningError(name)
		case stderrors.Is(res.err, task.ErrNoSteps):
			return taskerrors.NewNoStepsError(name)
		default:
			return res.err
		}
	}

	switch res.exec.Outcome() {
	case task.Succeeded:
		return nil
	case task.TimedOut:
		return taskerrors.NewTaskTimeoutError(name, res.timeout, res.exec.Err())
	case task.Aborted:
		return taskerrors.NewTaskAbortedError(name)
	default:
		return taskerrors.NewStepFailedError(name, res.exec.ID(), res.exec.Err())
	}
}

func (a *app) summarize(cmd *cobra.Command, results []runResult) error {
	table := utils.NewTable("TASK", "OUTCOME", "DURATION", "RUN")
	var failures []error
	for _, res := range results {
		if res.exec == nil {
			table.AddRow(res.spec.Name, "not started")
		} else {
			table.AddRow(res.spec.Name, res.exec.Outcome().String(),
				progress.FormatDuration(res.exec.Duration()), res.exec.ID())
		}
		if err := resultError(res); err != nil {
			failures = append(failures, err)
		}
	}

	if !a.settings.GetBool("quiet") {
		out := cmd.OutOrStdout()
		fmt.Fprint(out, table.String())
		if len(failures) == 0 {
			fmt.Fprintln(out, utils.Success(fmt.Sprintf("%d task(s) succeeded", len(results))))
		} else {
			box := utils.NewBox(utils.ErrorMessage,
				fmt.Sprintf("%d of %d task(s) did not succeed", len(failures), len(results)))
			for _, err := range failures {
				box.AddBullet(taskerrors.DisplayErrorSummary(err))
			}
			fmt.Fprintln(out, box.Render())
		}
	}

	if len(failures) > 0 {
		return failures[0]
	}
	return nil
}
