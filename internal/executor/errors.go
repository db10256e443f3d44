package executor

import "fmt"

// BindingError reports that a step's inputs could not be bound: a reference
// that did not resolve against the artifact pool, a kind mismatch between
// the bound artifact and the declared parameter, or an invalid filegroup.
// It is fatal for the affected step only.
type BindingError struct {
	Step  string
	Param string
	Err   error
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("step %s: binding %s: %v", e.Step, e.Param, e.Err)
}

func (e *BindingError) Unwrap() error { return e.Err }

// ExecutionError reports a non-zero exit status from the step executable.
type ExecutionError struct {
	Step     string
	ExitCode int
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("step %s: executable exited with code %d", e.Step, e.ExitCode)
}

// MissingOutputError reports that a required output pattern matched nothing
// even though the executable exited successfully.
type MissingOutputError struct {
	Step    string
	Output  string
	Pattern string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("step %s: required output %q matched no files (pattern %q)", e.Step, e.Output, e.Pattern)
}

// ResourceEnsureError wraps a failure of an idempotent provisioning step.
// It is fatal for every downstream consumer of the resource.
type ResourceEnsureError struct {
	Step string
	Err  error
}

func (e *ResourceEnsureError) Error() string {
	return fmt.Sprintf("step %s: resource provisioning failed: %v", e.Step, e.Err)
}

func (e *ResourceEnsureError) Unwrap() error { return e.Err }

// SkipError records why a step was never run.
type SkipError struct {
	Step     string
	Upstream string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("step %s skipped: upstream %s did not succeed", e.Step, e.Upstream)
}
