// Package catalog loads and models the declarative pipeline catalog.
//
// A catalog is a set of HCL documents containing `pipeline` blocks. Each
// pipeline declares its external inputs, its steps, and the artifacts it
// surfaces at the pipeline boundary. Step argument and environment values
// are kept as raw hcl.Expression fields rather than evaluated eagerly: the
// graph builder analyzes their variable traversals to derive data-dependency
// edges, and the executor evaluates them at bind time against the artifacts
// produced so far. The loaded catalog is immutable after process start.
package catalog

import (
	"github.com/hashicorp/hcl/v2"

	"github.com/vk/airpipe/internal/artifact"
)

// Catalog is the full set of pipelines known to the process.
type Catalog struct {
	Pipelines map[string]*Pipeline
}

// Pipeline is a named, ordered set of step descriptors plus the pipeline's
// boundary declarations.
type Pipeline struct {
	Name        string
	Description string
	Inputs      []*Input
	Steps       []*Step
	Outputs     []*OutputRef
}

// Input declares one external pipeline input. Optional inputs may be absent
// at run time; expressions referencing them then evaluate to null.
type Input struct {
	Name     string
	Optional bool
}

// Step is the static definition of one pipeline unit: which executable to
// invoke, how to bind its parameters and environment, which artifacts it
// declares, and which steps must complete first.
type Step struct {
	Name string

	// Run names the external executable for this step.
	Run string

	// Dir optionally pins the step to a stable directory under the
	// workspace root instead of a per-run directory. Ensure steps use this
	// so their created resources survive across runs.
	Dir string

	// DependsOn lists ordering-only prerequisites by step name.
	DependsOn []string

	// ContinueOnFailure lets ordering-only dependents proceed when this
	// step fails. Data dependents still cannot bind and are skipped.
	ContinueOnFailure bool

	// Ensure, when set, marks this step as an idempotent resource
	// provisioner.
	Ensure *Ensure

	Args    []*Arg
	Env     []*EnvVar
	Outputs []*Output
}

// Ensure describes the idempotency contract of a provisioning step: when
// Creates already exists in the step directory, the executable is not
// invoked and the step succeeds as a no-op.
type Ensure struct {
	Creates string
}

// Arg binds one command-line parameter of the step executable.
type Arg struct {
	Name string

	// From is the unevaluated binding expression.
	From hcl.Expression

	// Kind, when non-empty, constrains the kind of the bound artifact.
	Kind artifact.Kind

	// Flag overrides the rendered flag; empty means "--<name>".
	Flag string

	// Positional renders the bound value bare, after all flagged args.
	Positional bool
}

// EnvVar contributes one entry to the step's environment overlay. A null
// value at bind time (an absent optional input) drops the entry.
type EnvVar struct {
	Name string
	From hcl.Expression
}

// Output declares one artifact the step produces. Exactly one of Glob or
// Capture is set.
type Output struct {
	Name string

	// Glob is matched against the step directory after the executable
	// exits successfully.
	Glob string

	// Capture is "stdout" or "stderr" and wraps the corresponding capture
	// file as a file artifact.
	Capture string

	// Kind of the produced artifact; defaults to file for glob outputs.
	Kind artifact.Kind

	// Sidecars and OptionalSidecars declare the companion suffixes of a
	// filegroup output.
	Sidecars         []string
	OptionalSidecars []string

	// Optional outputs are omitted, not failed, when nothing matches.
	Optional bool
}

// OutputRef surfaces a step artifact at the pipeline boundary.
type OutputRef struct {
	Name     string
	From     hcl.Expression
	Optional bool
}

// Step returns the step with the given name, or nil.
func (p *Pipeline) Step(name string) *Step {
	for _, s := range p.Steps {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Input returns the input with the given name, or nil.
func (p *Pipeline) Input(name string) *Input {
	for _, in := range p.Inputs {
		if in.Name == name {
			return in
		}
	}
	return nil
}

// Output returns the declared output with the given name, or nil.
func (s *Step) Output(name string) *Output {
	for _, out := range s.Outputs {
		if out.Name == name {
			return out
		}
	}
	return nil
}
