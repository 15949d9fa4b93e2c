package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	taskerrors "github.com/maxkimambo/qtask/internal/errors"
	"github.com/maxkimambo/qtask/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix           = "QTASK"
	defaultPipelineFile = "pipeline.yaml"
)

var version = "v0.1.0"

// app carries the settings shared by every command.
type app struct {
	settings *viper.Viper
}

// Execute runs the qtask CLI.
func Execute() error {
	root := newRootCmd()
	err := root.ExecuteContext(context.Background())
	if err != nil {
		printError(root.ErrOrStderr(), err)
	}
	return err
}

func printError(w io.Writer, err error) {
	fmt.Fprint(w, taskerrors.FormatForCLI(err))
	if taskerrors.IsUserError(err) {
		fmt.Fprintln(w, "Run 'qtask validate' to check the pipeline file before running it.")
	}
}

func newRootCmd() *cobra.Command {
	a := &app{settings: newSettings()}

	rootCmd := &cobra.Command{
		Use:   "qtask",
		Short: "Run named step pipelines against a deadline",
		Long: `qtask runs named tasks defined in a YAML pipeline file. Each task is an
ordered list of steps (HTTP checks, sleeps, Compute Engine instance actions)
raced against a deadline. A task succeeds when every step completed before the
deadline and fails on the first failing step or when the deadline passes.

Every flag can also be set through a QTASK_ environment variable, for example
QTASK_FILE=deploy.yaml or QTASK_TIMEOUT=2m.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.bindFlags(cmd.Flags()); err != nil {
				return err
			}
			logger.Setup(a.settings.GetBool("verbose") || a.settings.GetBool("debug"),
				a.settings.GetBool("json"),
				a.settings.GetBool("quiet"))
			logger.Op.Debugf("Using pipeline file %s", a.pipelineFile())
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("file", "f", defaultPipelineFile, "Path to the pipeline file")
	flags.Bool("debug", false, "Enable debug logging")
	flags.BoolP("verbose", "v", false, "Enable verbose logging")
	flags.Bool("json", false, "Output logs in JSON format")
	flags.BoolP("quiet", "q", false, "Suppress non-error output")

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newListCmd(a))
	rootCmd.AddCommand(newValidateCmd(a))
	return rootCmd
}

func newSettings() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// bindFlags makes the merged flag set of the executing command visible
// through the settings, with environment variables as fallback.
func (a *app) bindFlags(flags *pflag.FlagSet) error {
	if err := a.settings.BindPFlags(flags); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

func (a *app) pipelineFile() string {
	if path := a.settings.GetString("file"); path != "" {
		return path
	}
	return defaultPipelineFile
}

