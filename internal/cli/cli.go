package cli

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vk/nodepipe/internal/app"
	"github.com/vk/nodepipe/internal/scheduler"
)

const envPrefix = "NODEPIPE"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// PipelineFailed converts an unsuccessful run into exit code 1, listing the
// failed and skipped nodes.
func PipelineFailed(res *scheduler.Result) *ExitError {
	return &ExitError{Code: 1, Message: app.FailureSummary(res)}
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
//
// Every flag can also be set from the environment (NODEPIPE_LOG_LEVEL and so
// on) or from a YAML file given with --config. Flags take precedence over the
// environment, which takes precedence over the file.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	v := viper.New()
	var config *app.Config

	cmd := &cobra.Command{
		Use:   "nodepipe [flags] [PIPELINE_PATH...]",
		Short: "Run file-based command pipelines as a dependency graph.",
		Long: `nodepipe runs pipelines of external commands declared in HCL files.

Each node runs its commands in a private working directory and only moves
declared outputs into place when every command succeeded. Nodes run as soon
as their dependencies are done, up to --workers at a time.

Arguments:
  PIPELINE_PATH
    Path to a single .hcl file or a directory containing .hcl files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile := v.GetString("config"); cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("reading config file: %w", err)
				}
			}

			paths := args
			if len(paths) == 0 {
				paths = v.GetStringSlice("pipeline")
			}
			if len(paths) == 0 {
				slog.Debug("No pipeline path provided, printing usage and exiting.")
				return cmd.Help()
			}

			cfg, err := app.NewConfig(app.Config{
				PipelinePaths:   paths,
				TempRoot:        v.GetString("temp-root"),
				LogFormat:       strings.ToLower(v.GetString("log-format")),
				LogLevel:        strings.ToLower(v.GetString("log-level")),
				LogFile:         v.GetString("log-file"),
				LogFileLevel:    strings.ToLower(v.GetString("log-file-level")),
				WorkerCount:     v.GetInt("workers"),
				KeepFailedTemp:  v.GetBool("keep-failed-temp"),
				Force:           v.GetBool("force"),
				DryRun:          v.GetBool("dry-run"),
				HealthcheckPort: v.GetInt("healthcheck-port"),
				NotifyURL:       v.GetString("notify-url"),
				NotifyNamespace: v.GetString("notify-namespace"),
				ReportPath:      v.GetString("report"),
			})
			if err != nil {
				return err
			}
			config = cfg
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "YAML file with default values for any flag.")
	flags.StringSliceP("pipeline", "p", nil, "Path to a pipeline file or directory. May be repeated.")
	flags.String("temp-root", "", "Directory for per-node working directories and log files. Defaults to the system temp dir.")
	flags.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	flags.String("log-level", "info", "Console logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flags.String("log-file", "", "Write log records to this file. By default nodepipe.<n>.log is created in --temp-root when a record reaches --log-file-level.")
	flags.String("log-file-level", "warn", "Log file level. Options: 'debug', 'info', 'warn', 'error'.")
	flags.IntP("workers", "w", runtime.NumCPU(), "Maximum number of nodes running at once.")
	flags.Bool("keep-failed-temp", false, "Keep working directories of failed nodes for inspection.")
	flags.Bool("force", false, "Run nodes even when their outputs are newer than their inputs.")
	flags.Bool("dry-run", false, "Print the execution plan without running anything.")
	flags.Int("healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	flags.String("notify-url", "", "socket.io server receiving node progress events.")
	flags.String("notify-namespace", "/", "socket.io namespace for progress events.")
	flags.String("report", "", "Write a YAML run report to this path.")

	if err := v.BindPFlags(flags); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(output)
	cmd.SetErr(output)
	if err := cmd.Execute(); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if config == nil {
		return nil, true, nil
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
