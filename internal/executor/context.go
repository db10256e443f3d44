package executor

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/airpipe/internal/artifact"
	"github.com/vk/airpipe/internal/catalog"
	"github.com/vk/airpipe/internal/ctxlog"
)

// evalContext builds the HCL evaluation context for bind time. It exposes
// `input.<name>` for pipeline inputs (null when an optional input is absent)
// and `step.<id>.<output>` for every artifact in the pool so far. The
// context is rebuilt per step so late-produced artifacts are visible.
func (e *Executor) evalContext() *hcl.EvalContext {
	inputVals := make(map[string]cty.Value, len(e.graph.Pipeline.Inputs))
	for _, in := range e.graph.Pipeline.Inputs {
		if a, ok := e.inputs[in.Name]; ok {
			inputVals[in.Name] = a.CtyValue()
		} else {
			inputVals[in.Name] = cty.NullVal(cty.String)
		}
	}

	stepVals := make(map[string]cty.Value)
	for id, node := range e.graph.Nodes {
		outs := make(map[string]cty.Value)
		for _, out := range node.Step.Outputs {
			if a, ok := e.pool.Get(id + "." + out.Name); ok {
				outs[out.Name] = a.CtyValue()
			}
		}
		if len(outs) > 0 {
			stepVals[id] = cty.ObjectVal(outs)
		}
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"input": cty.ObjectVal(inputVals),
			"step":  cty.ObjectVal(stepVals),
		},
	}
}

// bind evaluates the step's argument and environment expressions against
// the current pool and renders the command line and env overlay. Kind
// mismatches and unresolved references surface as BindingErrors.
func (e *Executor) bind(ctx context.Context, step *catalog.Step) ([]string, map[string]string, error) {
	logger := ctxlog.FromContext(ctx).With("step", step.Name)
	evalCtx := e.evalContext()

	var flagged []string
	var positional []string
	for _, arg := range step.Args {
		a, err := evalArtifact(arg.From, evalCtx)
		if err != nil {
			return nil, nil, &BindingError{Step: step.Name, Param: arg.Name, Err: err}
		}
		if arg.Kind != "" && a.Kind != arg.Kind {
			return nil, nil, &BindingError{
				Step:  step.Name,
				Param: arg.Name,
				Err:   fmt.Errorf("declared kind %s does not match bound artifact kind %s", arg.Kind, a.Kind),
			}
		}
		if arg.Positional {
			positional = append(positional, a.Render())
			continue
		}
		flag := arg.Flag
		if flag == "" {
			flag = "--" + arg.Name
		}
		flagged = append(flagged, flag, a.Render())
	}
	args := append(flagged, positional...)

	env := make(map[string]string, len(step.Env))
	for _, ev := range step.Env {
		val, diags := ev.From.Value(evalCtx)
		if diags.HasErrors() {
			return nil, nil, &BindingError{Step: step.Name, Param: "env " + ev.Name, Err: diags}
		}
		if val.IsNull() {
			// Unset optional input: the overlay entry is dropped rather
			// than exported empty.
			logger.Debug("Dropping null environment overlay entry.", "var", ev.Name)
			continue
		}
		a, err := artifact.FromCty(val)
		if err != nil {
			return nil, nil, &BindingError{Step: step.Name, Param: "env " + ev.Name, Err: err}
		}
		env[ev.Name] = a.Render()
	}

	return args, env, nil
}

// evalArtifact evaluates one binding expression into an artifact.
func evalArtifact(expr hcl.Expression, evalCtx *hcl.EvalContext) (artifact.Artifact, error) {
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return artifact.Artifact{}, diags
	}
	return artifact.FromCty(val)
}
