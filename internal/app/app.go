// Package app wires the application together: logger construction, catalog
// loading, input collection, and the pipeline run itself.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/airpipe/internal/catalog"
	"github.com/vk/airpipe/internal/ctxlog"
	"github.com/vk/airpipe/internal/invoke"
	"github.com/vk/airpipe/internal/pipeline"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	catalog *catalog.Catalog
	invoker invoke.Invoker
}

// New constructs the application: it builds an isolated logger and loads
// the pipeline catalog. A nil invoker selects the production process
// invoker; tests inject their own.
func New(outW io.Writer, cfg *Config, invoker invoke.Invoker) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	cat, err := catalog.Load(ctx, cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	if len(cat.Pipelines) == 0 {
		return nil, fmt.Errorf("no pipelines found under %s", cfg.CatalogPath)
	}

	if invoker == nil {
		invoker = invoke.NewExecInvoker()
	}

	return &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		catalog: cat,
		invoker: invoker,
	}, nil
}

// Catalog returns the loaded catalog. This is primarily for testing.
func (a *App) Catalog() *catalog.Catalog {
	return a.catalog
}

// Run executes the configured pipeline end to end and reports the outcome.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	inputs := make(map[string]string)
	if a.config.InputsFile != "" {
		loaded, err := pipeline.LoadInputsFile(a.config.InputsFile)
		if err != nil {
			return err
		}
		inputs = loaded
	}
	inputs, err := pipeline.MergeSetFlags(inputs, a.config.SetInputs)
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner(a.catalog, a.invoker, a.config.Workspace, a.config.Workers)

	result, err := runner.Run(ctx, a.config.Pipeline, inputs)
	if err != nil {
		return fmt.Errorf("pipeline did not start: %w", err)
	}

	for name, art := range result.Outputs {
		a.logger.Info("Pipeline output resolved.", "output", name, "kind", art.Kind, "path", art.Path)
	}
	if !result.Succeeded {
		return fmt.Errorf("pipeline %s run %s failed: %w", result.Pipeline, result.RunID, result.Err)
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}
