// Package invoke defines the capability interface between the executor and
// the external tools that do the actual work of a step. The executor calls
// it polymorphically: the production implementation spawns a child process,
// tests substitute a scripted fake.
package invoke

import "context"

// Invocation is one fully-bound request to run a step executable.
type Invocation struct {
	// Step is the ID of the step being executed, for logging.
	Step string

	// Command is the executable to run.
	Command string

	// Args are the rendered command-line arguments.
	Args []string

	// Env is the environment overlay for this invocation only. It is
	// layered over the ambient process environment of the child; the
	// parent's environment is never mutated.
	Env map[string]string

	// Dir is the working directory the step runs in.
	Dir string

	// LogPath and ErrPath receive the child's stdout and stderr verbatim.
	LogPath string
	ErrPath string
}

// Result reports the outcome of a completed invocation. A non-nil Result
// with a non-zero exit code is a step failure but not an invoker error.
type Result struct {
	ExitCode int
}

// Invoker runs one bound invocation to completion.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) (*Result, error)
}
