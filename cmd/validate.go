package cmd

import (
	"fmt"

	"github.com/maxkimambo/qtask/internal/logger"
	"github.com/maxkimambo/qtask/internal/pipeline"
	"github.com/maxkimambo/qtask/internal/utils"
	"github.com/spf13/cobra"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the pipeline file without running anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.pipelineFile()
			p, err := pipeline.Load(path)
			if err != nil {
				return err
			}

			steps := 0
			for _, spec := range p.Tasks {
				steps += len(spec.Steps)
			}
			logger.Op.WithFields(map[string]interface{}{
				"path":  path,
				"tasks": len(p.Tasks),
				"steps": steps,
			}).Debug("Pipeline validated")

			box := utils.NewBox(utils.SuccessMessage, fmt.Sprintf("Pipeline %s is valid", path)).
				AddField("Tasks", fmt.Sprintf("%d", len(p.Tasks))).
				AddField("Steps", fmt.Sprintf("%d", steps))
			if p.UsesCompute() {
				box.AddBullet("Compute Engine steps need application default credentials at run time")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), box.Render())
			return err
		},
	}
}
