package catalog

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/airpipe/internal/artifact"
	"github.com/vk/airpipe/internal/ctxlog"
	"github.com/vk/airpipe/internal/fsutil"
)

// fileRoot decodes the top-level blocks of a catalog document.
type fileRoot struct {
	Pipelines []*pipelineHCL `hcl:"pipeline,block"`
}

type pipelineHCL struct {
	Name        string          `hcl:"name,label"`
	Description *string         `hcl:"description,optional"`
	Inputs      []*inputHCL     `hcl:"input,block"`
	Steps       []*stepHCL      `hcl:"step,block"`
	Outputs     []*outputRefHCL `hcl:"output,block"`
}

type inputHCL struct {
	Name     string `hcl:"name,label"`
	Optional *bool  `hcl:"optional,optional"`
}

type stepHCL struct {
	Name              string       `hcl:"name,label"`
	Run               string       `hcl:"run"`
	Dir               *string      `hcl:"dir,optional"`
	DependsOn         []string     `hcl:"depends_on,optional"`
	ContinueOnFailure *bool        `hcl:"continue_on_failure,optional"`
	Ensure            *ensureHCL   `hcl:"ensure,block"`
	Args              []*argHCL    `hcl:"arg,block"`
	Env               []*envHCL    `hcl:"env,block"`
	Outputs           []*outputHCL `hcl:"output,block"`
}

type ensureHCL struct {
	Creates string `hcl:"creates"`
}

type argHCL struct {
	Name       string         `hcl:"name,label"`
	From       hcl.Expression `hcl:"from"`
	Kind       *string        `hcl:"kind,optional"`
	Flag       *string        `hcl:"flag,optional"`
	Positional *bool          `hcl:"positional,optional"`
}

type envHCL struct {
	Name string         `hcl:"name,label"`
	From hcl.Expression `hcl:"from"`
}

type outputHCL struct {
	Name             string   `hcl:"name,label"`
	Glob             *string  `hcl:"glob,optional"`
	Capture          *string  `hcl:"capture,optional"`
	Kind             *string  `hcl:"kind,optional"`
	Sidecars         []string `hcl:"sidecars,optional"`
	OptionalSidecars []string `hcl:"optional_sidecars,optional"`
	Optional         *bool    `hcl:"optional,optional"`
}

type outputRefHCL struct {
	Name     string         `hcl:"name,label"`
	From     hcl.Expression `hcl:"from"`
	Optional *bool          `hcl:"optional,optional"`
}

// Load parses every .hcl document under the given paths (files or
// directories) and merges their pipeline blocks into a single catalog.
func Load(ctx context.Context, paths ...string) (*Catalog, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Catalog loader started.", "path_count", len(paths))

	var files []string
	seen := make(map[string]struct{})
	for _, path := range paths {
		found, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("error accessing catalog path %s: %w", path, err)
		}
		for _, f := range found {
			if _, dup := seen[f]; !dup {
				files = append(files, f)
				seen[f] = struct{}{}
			}
		}
	}
	logger.Debug("Discovered catalog files.", "count", len(files))

	cat := &Catalog{Pipelines: make(map[string]*Pipeline)}
	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse catalog file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode catalog file %s: %w", file, diags)
		}

		for _, p := range root.Pipelines {
			pipeline, err := translatePipeline(p)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			if _, exists := cat.Pipelines[pipeline.Name]; exists {
				return nil, fmt.Errorf("%s: duplicate pipeline %q", file, pipeline.Name)
			}
			cat.Pipelines[pipeline.Name] = pipeline
			logger.Debug("Loaded pipeline definition.", "pipeline", pipeline.Name, "steps", len(pipeline.Steps))
		}
	}

	logger.Info("Catalog loaded.", "pipelines", len(cat.Pipelines), "files", len(files))
	return cat, nil
}

// Parse decodes a single in-memory catalog document. Used by tests and by
// callers that assemble catalogs programmatically.
func Parse(src []byte, filename string) (*Catalog, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %w", filename, diags)
	}

	cat := &Catalog{Pipelines: make(map[string]*Pipeline)}
	for _, p := range root.Pipelines {
		pipeline, err := translatePipeline(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		if _, exists := cat.Pipelines[pipeline.Name]; exists {
			return nil, fmt.Errorf("%s: duplicate pipeline %q", filename, pipeline.Name)
		}
		cat.Pipelines[pipeline.Name] = pipeline
	}
	return cat, nil
}

func translatePipeline(p *pipelineHCL) (*Pipeline, error) {
	pipeline := &Pipeline{Name: p.Name}
	if p.Description != nil {
		pipeline.Description = *p.Description
	}

	for _, in := range p.Inputs {
		input := &Input{Name: in.Name}
		if in.Optional != nil {
			input.Optional = *in.Optional
		}
		pipeline.Inputs = append(pipeline.Inputs, input)
	}

	for _, s := range p.Steps {
		step, err := translateStep(s)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", p.Name, err)
		}
		pipeline.Steps = append(pipeline.Steps, step)
	}

	for _, out := range p.Outputs {
		ref := &OutputRef{Name: out.Name, From: out.From}
		if out.Optional != nil {
			ref.Optional = *out.Optional
		}
		pipeline.Outputs = append(pipeline.Outputs, ref)
	}

	return pipeline, nil
}

func translateStep(s *stepHCL) (*Step, error) {
	step := &Step{
		Name:      s.Name,
		Run:       s.Run,
		DependsOn: s.DependsOn,
	}
	if s.Dir != nil {
		step.Dir = *s.Dir
	}
	if s.ContinueOnFailure != nil {
		step.ContinueOnFailure = *s.ContinueOnFailure
	}
	if s.Ensure != nil {
		if s.Ensure.Creates == "" {
			return nil, fmt.Errorf("step %q: ensure block requires a creates path", s.Name)
		}
		// Idempotence across runs only works when the marker lives in a
		// stable directory; a per-run directory never has it pre-existing.
		if step.Dir == "" {
			return nil, fmt.Errorf("step %q: ensure steps require a stable dir", s.Name)
		}
		step.Ensure = &Ensure{Creates: s.Ensure.Creates}
	}

	for _, a := range s.Args {
		arg := &Arg{Name: a.Name, From: a.From}
		if a.Kind != nil {
			kind, err := artifact.ParseKind(*a.Kind)
			if err != nil {
				return nil, fmt.Errorf("step %q arg %q: %w", s.Name, a.Name, err)
			}
			arg.Kind = kind
		}
		if a.Flag != nil {
			arg.Flag = *a.Flag
		}
		if a.Positional != nil {
			arg.Positional = *a.Positional
		}
		step.Args = append(step.Args, arg)
	}

	for _, e := range s.Env {
		step.Env = append(step.Env, &EnvVar{Name: e.Name, From: e.From})
	}

	for _, o := range s.Outputs {
		out, err := translateOutput(s.Name, o)
		if err != nil {
			return nil, err
		}
		step.Outputs = append(step.Outputs, out)
	}

	return step, nil
}

func translateOutput(stepName string, o *outputHCL) (*Output, error) {
	out := &Output{Name: o.Name}

	hasGlob := o.Glob != nil && *o.Glob != ""
	hasCapture := o.Capture != nil && *o.Capture != ""
	switch {
	case hasGlob && hasCapture:
		return nil, fmt.Errorf("step %q output %q: glob and capture are mutually exclusive", stepName, o.Name)
	case !hasGlob && !hasCapture:
		return nil, fmt.Errorf("step %q output %q: one of glob or capture is required", stepName, o.Name)
	case hasGlob:
		out.Glob = *o.Glob
	default:
		if *o.Capture != "stdout" && *o.Capture != "stderr" {
			return nil, fmt.Errorf("step %q output %q: capture must be 'stdout' or 'stderr'", stepName, o.Name)
		}
		out.Capture = *o.Capture
	}

	out.Kind = artifact.KindFile
	if o.Kind != nil {
		kind, err := artifact.ParseKind(*o.Kind)
		if err != nil {
			return nil, fmt.Errorf("step %q output %q: %w", stepName, o.Name, err)
		}
		if kind == artifact.KindScalar {
			return nil, fmt.Errorf("step %q output %q: scalar outputs are not producible by glob or capture", stepName, o.Name)
		}
		out.Kind = kind
	}

	if len(o.Sidecars) > 0 || len(o.OptionalSidecars) > 0 {
		if out.Kind != artifact.KindFileGroup {
			return nil, fmt.Errorf("step %q output %q: sidecars require kind = \"filegroup\"", stepName, o.Name)
		}
	}
	if out.Kind == artifact.KindFileGroup && !hasGlob {
		return nil, fmt.Errorf("step %q output %q: filegroup outputs require a glob", stepName, o.Name)
	}
	out.Sidecars = o.Sidecars
	out.OptionalSidecars = o.OptionalSidecars

	if o.Optional != nil {
		out.Optional = *o.Optional
	}

	return out, nil
}
