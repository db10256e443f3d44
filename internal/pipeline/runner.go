// Package pipeline composes a named pipeline from the catalog, runs it end
// to end through the executor, and surfaces the declared outputs at the
// pipeline boundary together with the full set of run records.
package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/vk/airpipe/internal/artifact"
	"github.com/vk/airpipe/internal/catalog"
	"github.com/vk/airpipe/internal/ctxlog"
	"github.com/vk/airpipe/internal/executor"
	"github.com/vk/airpipe/internal/graph"
	"github.com/vk/airpipe/internal/invoke"
)

// Runner runs pipelines from a loaded catalog inside a workspace directory.
type Runner struct {
	catalog   *catalog.Catalog
	invoker   invoke.Invoker
	workspace string
	workers   int
}

// NewRunner creates a pipeline runner. The workspace directory hosts stable
// step directories and a runs/ tree with one directory per run.
func NewRunner(cat *catalog.Catalog, invoker invoke.Invoker, workspace string, workers int) *Runner {
	return &Runner{catalog: cat, invoker: invoker, workspace: workspace, workers: workers}
}

// Result is the outcome of one pipeline run.
type Result struct {
	RunID    string
	Pipeline string
	RunDir   string

	// Succeeded is true only when every step succeeded and every
	// non-optional pipeline output resolved.
	Succeeded bool

	// Outputs holds the resolved pipeline-boundary artifacts.
	Outputs map[string]artifact.Artifact

	// Records are the per-step run records in topological order.
	Records []*executor.Record

	// Err carries the root cause when the run did not succeed.
	Err error
}

// Run executes the named pipeline with the given input values. Validation
// problems (unknown pipeline, bad inputs, invalid graph) return a nil Result
// and an error: the pipeline never started. A started pipeline always
// returns a Result, with partial artifacts and every step's log preserved
// even when it failed.
func (r *Runner) Run(ctx context.Context, name string, inputs map[string]string) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("pipeline", name)

	p, ok := r.catalog.Pipelines[name]
	if !ok {
		known := make([]string, 0, len(r.catalog.Pipelines))
		for n := range r.catalog.Pipelines {
			known = append(known, n)
		}
		sort.Strings(known)
		return nil, &UnknownPipelineError{Name: name, Known: known}
	}

	if err := validateInputs(p, inputs); err != nil {
		return nil, err
	}

	g, err := graph.Build(ctx, p)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	runDir := filepath.Join(r.workspace, "runs", runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, err
	}
	logger.Info("Pipeline run starting.", "run_id", runID, "steps", len(g.Nodes))

	pool := artifact.NewPool()
	inputArtifacts := make(map[string]artifact.Artifact, len(inputs))
	for k, v := range inputs {
		inputArtifacts[k] = artifact.Scalar(v)
	}

	exec := executor.New(g, executor.Options{
		Pool:         pool,
		Inputs:       inputArtifacts,
		Invoker:      r.invoker,
		Workers:      r.workers,
		WorkspaceDir: r.workspace,
		RunDir:       runDir,
	})

	runErr := exec.Run(ctx)

	result := &Result{
		RunID:    runID,
		Pipeline: name,
		RunDir:   runDir,
		Outputs:  make(map[string]artifact.Artifact),
		Records:  exec.Records(),
		Err:      runErr,
	}

	// Resolve pipeline-boundary outputs against the final pool. The graph
	// builder guarantees each reference names exactly one step output.
	var unresolved error
	for _, out := range p.Outputs {
		ref := catalog.StepRefs(out.From)[0]
		key := ref.Step + "." + ref.Output
		if a, ok := pool.Get(key); ok {
			result.Outputs[out.Name] = a
			continue
		}
		if !out.Optional {
			err := &UnresolvedPipelineOutputError{Pipeline: name, Output: out.Name, Step: ref.Step}
			logger.Error("Pipeline output unresolved.", "output", out.Name, "step", ref.Step)
			if unresolved == nil {
				unresolved = err
			}
		}
	}
	if result.Err == nil {
		result.Err = unresolved
	}
	result.Succeeded = result.Err == nil

	if err := writeSummary(result); err != nil {
		logger.Warn("Failed to write run summary.", "error", err)
	}

	if result.Succeeded {
		logger.Info("Pipeline run succeeded.", "run_id", runID, "outputs", len(result.Outputs))
	} else {
		logger.Error("Pipeline run failed.", "run_id", runID, "error", result.Err)
	}
	return result, nil
}

// UnknownPipelineError reports a run request for a pipeline the catalog does
// not contain.
type UnknownPipelineError struct {
	Name  string
	Known []string
}

func (e *UnknownPipelineError) Error() string {
	return "unknown pipeline " + e.Name
}

// validateInputs checks the run's input values against the pipeline's
// declarations before anything is built.
func validateInputs(p *catalog.Pipeline, inputs map[string]string) error {
	inputErr := &InputError{Pipeline: p.Name}

	for _, in := range p.Inputs {
		if _, ok := inputs[in.Name]; !ok && !in.Optional {
			inputErr.Missing = append(inputErr.Missing, in.Name)
		}
	}
	for name := range inputs {
		if p.Input(name) == nil {
			inputErr.Unknown = append(inputErr.Unknown, name)
		}
	}
	sort.Strings(inputErr.Missing)
	sort.Strings(inputErr.Unknown)

	if len(inputErr.Missing) > 0 || len(inputErr.Unknown) > 0 {
		return inputErr
	}
	return nil
}

// IsValidation reports whether the error is a build- or input-time
// validation failure, i.e. the pipeline never started.
func IsValidation(err error) bool {
	var ve *graph.ValidationError
	var ie *InputError
	var ue *UnknownPipelineError
	return errors.As(err, &ve) || errors.As(err, &ie) || errors.As(err, &ue)
}
