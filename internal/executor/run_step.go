package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/airpipe/internal/artifact"
	"github.com/vk/airpipe/internal/catalog"
	"github.com/vk/airpipe/internal/ctxlog"
	"github.com/vk/airpipe/internal/fsutil"
	"github.com/vk/airpipe/internal/invoke"
)

// runStep binds, invokes, and harvests a single step. Any returned error is
// the step's failure cause; the worker owns the status transition.
func (e *Executor) runStep(ctx context.Context, t *task) error {
	logger := ctxlog.FromContext(ctx).With("step", t.node.ID)
	step := t.node.Step
	rec := t.rec

	rec.StartedAt = time.Now()
	defer func() { rec.FinishedAt = time.Now() }()

	stepDir := e.stepDir(step)
	if err := os.MkdirAll(stepDir, 0o755); err != nil {
		return fmt.Errorf("creating step directory: %w", err)
	}

	rec.LogPath = filepath.Join(stepDir, step.Name+".log")
	rec.ErrPath = filepath.Join(stepDir, step.Name+".err")

	args, env, err := e.bind(ctx, step)
	if err != nil {
		return err
	}

	if step.Ensure != nil {
		return e.runEnsureStep(ctx, t, stepDir, args, env)
	}

	logger.Info("Starting step.", "run", step.Run)
	if err := e.invokeStep(ctx, step, stepDir, args, env, rec); err != nil {
		return err
	}
	if err := e.harvest(step, stepDir, rec); err != nil {
		return err
	}
	logger.Info("Finished step.", "artifacts", len(rec.Produced))
	return nil
}

// runEnsureStep applies the idempotency contract of a provisioning step:
// when the declared resource already exists, the executable is not invoked
// and the step succeeds as a no-op with created=false.
func (e *Executor) runEnsureStep(ctx context.Context, t *task, stepDir string, args []string, env map[string]string) error {
	logger := ctxlog.FromContext(ctx).With("step", t.node.ID)
	step := t.node.Step
	rec := t.rec

	created := false
	marker := filepath.Join(stepDir, step.Ensure.Creates)

	if fsutil.Exists(marker) {
		logger.Info("Resource already provisioned, skipping invocation.", "resource", marker)
		line := fmt.Sprintf("resource %s already exists, nothing to do\n", step.Ensure.Creates)
		if err := os.WriteFile(rec.LogPath, []byte(line), 0o644); err != nil {
			return &ResourceEnsureError{Step: step.Name, Err: err}
		}
	} else {
		logger.Info("Provisioning resource.", "run", step.Run, "resource", marker)
		if err := e.invokeStep(ctx, step, stepDir, args, env, rec); err != nil {
			return &ResourceEnsureError{Step: step.Name, Err: err}
		}
		if !fsutil.Exists(marker) {
			return &ResourceEnsureError{
				Step: step.Name,
				Err:  fmt.Errorf("executable succeeded but resource %s was not created", step.Ensure.Creates),
			}
		}
		created = true
	}
	rec.Created = &created

	if err := e.harvest(step, stepDir, rec); err != nil {
		return &ResourceEnsureError{Step: step.Name, Err: err}
	}
	logger.Info("Resource ensured.", "created", created)
	return nil
}

// invokeStep runs the step executable through the invoker and maps a
// non-zero exit to an ExecutionError.
func (e *Executor) invokeStep(ctx context.Context, step *catalog.Step, stepDir string, args []string, env map[string]string, rec *Record) error {
	result, err := e.invoker.Invoke(ctx, invoke.Invocation{
		Step:    step.Name,
		Command: step.Run,
		Args:    args,
		Env:     env,
		Dir:     stepDir,
		LogPath: rec.LogPath,
		ErrPath: rec.ErrPath,
	})
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return &ExecutionError{Step: step.Name, ExitCode: result.ExitCode}
	}
	return nil
}

// harvest collects the step's declared outputs from its working directory
// and appends them to the shared pool under "<step>.<output>" keys.
func (e *Executor) harvest(step *catalog.Step, stepDir string, rec *Record) error {
	for _, out := range step.Outputs {
		key := step.Name + "." + out.Name

		if out.Capture != "" {
			path := rec.LogPath
			if out.Capture == "stderr" {
				path = rec.ErrPath
			}
			if !fsutil.Exists(path) {
				// An ensure no-op writes only its log; a declared stderr
				// capture may legitimately have no file behind it.
				if out.Optional {
					continue
				}
				if err := os.WriteFile(path, nil, 0o644); err != nil {
					return fmt.Errorf("creating capture file for output %s: %w", key, err)
				}
			}
			if err := e.pool.Put(key, artifact.File(path)); err != nil {
				return err
			}
			rec.Produced = append(rec.Produced, key)
			continue
		}

		matches, err := fsutil.Glob(stepDir, out.Glob)
		if err != nil {
			return fmt.Errorf("matching output %s: %w", key, err)
		}
		if len(matches) == 0 {
			if out.Optional {
				continue
			}
			return &MissingOutputError{Step: step.Name, Output: out.Name, Pattern: out.Glob}
		}
		primary := matches[0]

		var a artifact.Artifact
		switch out.Kind {
		case artifact.KindDir:
			info, err := os.Stat(primary)
			if err != nil || !info.IsDir() {
				return &BindingError{Step: step.Name, Param: out.Name, Err: fmt.Errorf("%s is not a directory", primary)}
			}
			a = artifact.Dir(primary)
		case artifact.KindFileGroup:
			a, err = artifact.Group(primary, out.Sidecars, out.OptionalSidecars)
			if err != nil {
				return &BindingError{Step: step.Name, Param: out.Name, Err: err}
			}
		default:
			a = artifact.File(primary)
		}

		if err := e.pool.Put(key, a); err != nil {
			return err
		}
		rec.Produced = append(rec.Produced, key)
	}
	return nil
}

// stepDir resolves the working directory of a step: a stable workspace
// subdirectory when the step pins one, otherwise a per-run directory.
func (e *Executor) stepDir(step *catalog.Step) string {
	if step.Dir != "" {
		return filepath.Join(e.workspaceDir, step.Dir)
	}
	return filepath.Join(e.runDir, step.Name)
}
