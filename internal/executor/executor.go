// Package executor schedules and runs the steps of a validated pipeline
// graph. Steps whose dependencies are all satisfied are pulled from a ready
// channel by a bounded worker pool; each step's inputs are bound against the
// shared artifact pool, its executable is invoked through the Invoker
// capability, and its declared outputs are harvested from its working
// directory. A failed step marks its transitive dependents Skipped; running
// independent steps are always allowed to finish so partial artifacts
// survive for inspection.
package executor

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vk/airpipe/internal/artifact"
	"github.com/vk/airpipe/internal/ctxlog"
	"github.com/vk/airpipe/internal/graph"
	"github.com/vk/airpipe/internal/invoke"
)

// Options configures an executor run.
type Options struct {
	// Pool receives every produced artifact. Required.
	Pool *artifact.Pool

	// Inputs are the pipeline's external inputs, keyed by input name.
	Inputs map[string]artifact.Artifact

	// Invoker runs step executables. Required.
	Invoker invoke.Invoker

	// Workers bounds step concurrency; values below 1 mean one worker.
	Workers int

	// WorkspaceDir hosts dir-pinned steps; RunDir hosts everything else,
	// one subdirectory per step.
	WorkspaceDir string
	RunDir       string
}

// Executor orchestrates one end-to-end run over a dependency graph.
type Executor struct {
	graph   *graph.Graph
	pool    *artifact.Pool
	inputs  map[string]artifact.Artifact
	invoker invoke.Invoker
	workers int

	workspaceDir string
	runDir       string

	tasks map[string]*task
	ready chan *task
	wg    sync.WaitGroup
}

// task pairs a graph node with its runtime scheduling state.
type task struct {
	node     *graph.Node
	rec      *Record
	depCount atomic.Int32
	skipOnce sync.Once
}

// New creates an executor for the given graph.
func New(g *graph.Graph, opts Options) *Executor {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	e := &Executor{
		graph:        g,
		pool:         opts.Pool,
		inputs:       opts.Inputs,
		invoker:      opts.Invoker,
		workers:      workers,
		workspaceDir: opts.WorkspaceDir,
		runDir:       opts.RunDir,
		tasks:        make(map[string]*task, len(g.Nodes)),
	}
	for id, node := range g.Nodes {
		t := &task{node: node, rec: &Record{StepID: id}}
		t.depCount.Store(int32(len(node.Deps)))
		e.tasks[id] = t
	}
	return e
}

// Records returns the run records in topological order.
func (e *Executor) Records() []*Record {
	records := make([]*Record, 0, len(e.tasks))
	for _, id := range e.graph.TopologicalOrder() {
		records = append(records, e.tasks[id].rec)
	}
	return records
}

// Record returns the run record for one step.
func (e *Executor) Record(stepID string) *Record {
	if t, ok := e.tasks[stepID]; ok {
		return t.rec
	}
	return nil
}

// Run executes the graph to completion: every step ends in a terminal state.
// It returns a non-nil error when at least one step failed; skipped steps
// are a symptom, not a cause, and never contribute to the returned error.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	// Buffered to the graph size so releases never block a worker.
	e.ready = make(chan *task, len(e.tasks))

	rootCount := 0
	for _, t := range e.tasks {
		if t.depCount.Load() == 0 {
			e.ready <- t
			rootCount++
		}
	}
	logger.Debug("Executor initialized.", "steps", len(e.tasks), "roots", rootCount, "workers", e.workers)

	e.wg.Add(len(e.tasks))
	for i := 0; i < e.workers; i++ {
		go e.worker(ctx, i)
	}

	e.wg.Wait()
	close(e.ready)
	logger.Debug("All steps terminal.")

	var failed []string
	var rootCause error
	for _, id := range e.graph.TopologicalOrder() {
		rec := e.tasks[id].rec
		if rec.Status() == StatusFailed {
			logger.Error("Step failed.", "step", id, "error", rec.Err)
			failed = append(failed, id)
			if rootCause == nil {
				rootCause = rec.Err
			}
		}
	}
	if rootCause != nil {
		return &RunError{Failed: failed, Cause: rootCause}
	}
	return nil
}

// RunError summarizes a run in which one or more steps failed.
type RunError struct {
	Failed []string
	Cause  error
}

func (e *RunError) Error() string {
	return "execution failed for " + strings.Join(e.Failed, ", ") + ": " + e.Cause.Error()
}

func (e *RunError) Unwrap() error { return e.Cause }

// worker is the processing loop of one concurrent worker.
func (e *Executor) worker(ctx context.Context, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "worker", workerID)

	for t := range e.ready {
		workerLogger := logger.With("worker", workerID, "step", t.node.ID)

		if ctx.Err() != nil {
			e.markSkipped(ctx, t, ctx.Err())
			continue
		}

		// A released task may have been skipped by a sibling failure
		// between enqueue and pickup.
		if !t.rec.transition(StatusPending, StatusRunning) {
			continue
		}

		workerLogger.Debug("Worker picked up step.")
		err := e.runStep(ctx, t)
		if err != nil {
			workerLogger.Error("Step execution failed.", "error", err)
			t.rec.Err = err
			t.rec.setStatus(StatusFailed)
			e.skipDependents(ctx, t, t.node.Step.ContinueOnFailure)
			e.wg.Done()
			continue
		}

		workerLogger.Debug("Step execution succeeded.")
		t.rec.setStatus(StatusSucceeded)

		for depID := range t.node.Dependents {
			dependent := e.tasks[depID]
			if dependent.depCount.Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent step.", "dependent", depID)
				e.ready <- dependent
			}
		}

		e.wg.Done()
	}
	logger.Debug("Worker finished.", "worker", workerID)
}

// markSkipped transitions a not-yet-started task to Skipped exactly once.
func (e *Executor) markSkipped(ctx context.Context, t *task, cause error) {
	t.skipOnce.Do(func() {
		if !t.rec.transition(StatusPending, StatusSkipped) {
			return
		}
		ctxlog.FromContext(ctx).Warn("Skipping step.", "step", t.node.ID, "cause", cause)
		t.rec.Err = cause
		e.wg.Done()
		e.skipDependents(ctx, t, false)
	})
}

// skipDependents propagates a failure downstream. When the failed step
// declares continue_on_failure, dependents connected only by ordering edges
// are released instead of skipped; data dependents can never bind their
// inputs and are skipped regardless. Skipped steps cascade unconditionally.
func (e *Executor) skipDependents(ctx context.Context, t *task, continueOrderingDeps bool) {
	for depID, depNode := range t.node.Dependents {
		dependent := e.tasks[depID]
		if continueOrderingDeps && !depNode.DataDeps[t.node.ID] {
			if dependent.depCount.Add(-1) == 0 {
				e.ready <- dependent
			}
			continue
		}
		e.markSkipped(ctx, dependent, &SkipError{Step: depID, Upstream: t.node.ID})
	}
}
