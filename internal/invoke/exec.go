package invoke

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/vk/airpipe/internal/ctxlog"
)

// ExecInvoker runs step executables as child processes.
type ExecInvoker struct{}

// NewExecInvoker creates the production process invoker.
func NewExecInvoker() *ExecInvoker {
	return &ExecInvoker{}
}

// Invoke spawns the step executable with the bound arguments and environment
// overlay, capturing stdout and stderr to the invocation's log and error
// files. The overlay is applied to the child only; the parent process
// environment is left untouched.
func (e *ExecInvoker) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("step", inv.Step, "command", inv.Command)
	logger.Debug("Invoking step executable.", "args", inv.Args, "dir", inv.Dir)

	cmd := exec.CommandContext(ctx, inv.Command, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = overlayEnv(os.Environ(), inv.Env)

	logFile, err := os.Create(inv.LogPath)
	if err != nil {
		return nil, fmt.Errorf("creating log file for step %s: %w", inv.Step, err)
	}
	defer logFile.Close()

	errFile, err := os.Create(inv.ErrPath)
	if err != nil {
		return nil, fmt.Errorf("creating error file for step %s: %w", inv.Step, err)
	}
	defer errFile.Close()

	cmd.Stdout = logFile
	cmd.Stderr = errFile

	runErr := cmd.Run()
	if runErr == nil {
		logger.Debug("Step executable finished.", "exit_code", 0)
		return &Result{ExitCode: 0}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		logger.Debug("Step executable finished.", "exit_code", exitErr.ExitCode())
		return &Result{ExitCode: exitErr.ExitCode()}, nil
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("step %s cancelled: %w", inv.Step, ctx.Err())
	}
	return nil, fmt.Errorf("failed to start %s for step %s: %w", inv.Command, inv.Step, runErr)
}

// overlayEnv layers the overlay entries on top of a base environment,
// replacing any base entry with the same variable name. The result is
// sorted for deterministic invocation records.
func overlayEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return base
	}

	merged := make(map[string]string, len(base)+len(overlay))
	for _, entry := range base {
		for i := 0; i < len(entry); i++ {
			if entry[i] == '=' {
				merged[entry[:i]] = entry[i+1:]
				break
			}
		}
	}
	for name, value := range overlay {
		merged[name] = value
	}

	out := make([]string, 0, len(merged))
	for name, value := range merged {
		out = append(out, name+"="+value)
	}
	sort.Strings(out)
	return out
}
