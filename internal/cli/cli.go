// Package cli parses command-line arguments into an app configuration.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/airpipe/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// Parse processes command-line arguments. It returns a populated Config, a
// boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("airpipe", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
airpipe - a declarative DAG runner for EPA air-quality data pipelines.

Usage:
  airpipe [options] PIPELINE

Arguments:
  PIPELINE
    Name of the pipeline to run (e.g. 'airnow' or 'aqs').

Options:
`)
		flagSet.PrintDefaults()
	}

	catalogFlag := flagSet.String("catalog", "pipelines", "Path to a catalog .hcl file or directory.")
	pipelineFlag := flagSet.String("pipeline", "", "Name of the pipeline to run.")
	workspaceFlag := flagSet.String("workspace", ".", "Workspace root directory for step and run directories.")
	inputsFlag := flagSet.String("inputs", "", "Path to a YAML file of pipeline input values.")
	var setFlags stringList
	flagSet.Var(&setFlags, "set", "Pipeline input as name=value. Repeatable; overrides the inputs file.")
	workersFlag := flagSet.Int("workers", 4, "Number of concurrent workers for the executor.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	pipelineName := *pipelineFlag
	if pipelineName == "" && flagSet.NArg() > 0 {
		pipelineName = flagSet.Arg(0)
	}
	if pipelineName == "" {
		slog.Debug("No pipeline provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		CatalogPath: *catalogFlag,
		Pipeline:    pipelineName,
		Workspace:   *workspaceFlag,
		InputsFile:  *inputsFlag,
		SetInputs:   setFlags,
		LogFormat:   logFormat,
		LogLevel:    logLevel,
		Workers:     *workersFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.")
	return config, false, nil
}
