package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/maxkimambo/qtask/internal/pipeline"
	"github.com/maxkimambo/qtask/internal/progress"
	"github.com/maxkimambo/qtask/internal/task"
	"github.com/maxkimambo/qtask/internal/utils"
	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tasks defined in the pipeline file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline.Load(a.pipelineFile())
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), taskTable(p).String())
			return err
		},
	}
}

func taskTable(p *pipeline.Pipeline) *utils.Table {
	table := utils.NewTable("TASK", "STEPS", "TIMEOUT", "KINDS", "DESCRIPTION")
	for _, spec := range p.Tasks {
		timeout := progress.FormatDuration(task.DefaultTimeout) + " (default)"
		if spec.Timeout > 0 {
			timeout = progress.FormatDuration(spec.Timeout)
		}
		table.AddRow(spec.Name, strconv.Itoa(len(spec.Steps)), timeout, stepKinds(spec), spec.Description)
	}
	return table
}

// stepKinds lists the distinct step kinds of spec in first-use order.
func stepKinds(spec pipeline.TaskSpec) string {
	seen := make(map[string]bool)
	var kinds []string
	for _, s := range spec.Steps {
		if !seen[s.Kind] {
			seen[s.Kind] = true
			kinds = append(kinds, s.Kind)
		}
	}
	return strings.Join(kinds, ",")
}
