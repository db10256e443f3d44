package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/airpipe/internal/catalog"
	"github.com/vk/airpipe/internal/ctxlog"
)

// Build constructs a complete, validated dependency graph for the pipeline.
// All validation findings — duplicate identifiers, unresolved references,
// cycles — are aggregated into a single ValidationError so a broken catalog
// fails fast and completely, before any step runs.
func Build(ctx context.Context, pipeline *catalog.Pipeline) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Graph build started.", "pipeline", pipeline.Name, "steps", len(pipeline.Steps))

	g := &Graph{Pipeline: pipeline, Nodes: make(map[string]*Node)}
	var findings []Finding

	// First pass: create all nodes, catching duplicate identifiers.
	findings = append(findings, createNodes(pipeline, g)...)

	// Second pass: link ordering and data edges against the created nodes.
	for _, step := range pipeline.Steps {
		node, ok := g.Nodes[step.Name]
		if !ok {
			continue // duplicate already reported
		}
		findings = append(findings, linkExplicitDeps(ctx, g, node)...)
		findings = append(findings, linkImplicitDeps(ctx, g, pipeline, node)...)
	}

	// Pipeline boundary references resolve against the same namespace.
	findings = append(findings, validatePipelineOutputs(pipeline, g)...)

	// Cycle detection only makes sense over fully linked nodes.
	findings = append(findings, g.detectCycles()...)

	if len(findings) > 0 {
		logger.Debug("Graph build failed validation.", "pipeline", pipeline.Name, "findings", len(findings))
		return nil, &ValidationError{Pipeline: pipeline.Name, Findings: findings}
	}

	g.order = g.topologicalSort()
	logger.Debug("Graph build complete.", "pipeline", pipeline.Name, "nodes", len(g.Nodes))
	return g, nil
}

// createNodes adds one node per step and reports duplicate step names and
// duplicate output names within a step.
func createNodes(pipeline *catalog.Pipeline, g *Graph) []Finding {
	var findings []Finding
	for _, step := range pipeline.Steps {
		if _, exists := g.Nodes[step.Name]; exists {
			findings = append(findings, Finding{
				Subject: step.Name,
				Detail:  "duplicate step name",
			})
			continue
		}

		// Pool keys are "<step>.<output>" and references address steps and
		// outputs as attribute names, so a dot inside a label would both
		// alias pool keys and be unreferenceable from expressions.
		if strings.Contains(step.Name, ".") {
			findings = append(findings, Finding{
				Subject: step.Name,
				Detail:  "step name must not contain '.'",
			})
			continue
		}

		seenOutputs := make(map[string]bool)
		for _, out := range step.Outputs {
			if strings.Contains(out.Name, ".") {
				findings = append(findings, Finding{
					Subject: fmt.Sprintf("%s.%s", step.Name, out.Name),
					Detail:  "output name must not contain '.'",
				})
				continue
			}
			if seenOutputs[out.Name] {
				findings = append(findings, Finding{
					Subject: fmt.Sprintf("%s.%s", step.Name, out.Name),
					Detail:  "duplicate output name",
				})
			}
			seenOutputs[out.Name] = true
		}

		g.Nodes[step.Name] = &Node{
			ID:         step.Name,
			Step:       step,
			Deps:       make(map[string]*Node),
			Dependents: make(map[string]*Node),
			DataDeps:   make(map[string]bool),
		}
	}
	return findings
}

// linkExplicitDeps resolves `depends_on` entries into ordering-only edges.
func linkExplicitDeps(ctx context.Context, g *Graph, node *Node) []Finding {
	logger := ctxlog.FromContext(ctx)
	var findings []Finding

	for _, depName := range node.Step.DependsOn {
		if depName == node.ID {
			findings = append(findings, Finding{
				Subject: node.ID,
				Detail:  "step depends on itself",
			})
			continue
		}
		depNode, found := g.Nodes[depName]
		if !found {
			findings = append(findings, Finding{
				Subject: node.ID,
				Detail:  fmt.Sprintf("depends_on references unknown step %q", depName),
			})
			continue
		}
		if _, exists := node.Deps[depName]; !exists {
			logger.Debug("Linking ordering dependency.", "from", node.ID, "to", depName)
			node.Deps[depName] = depNode
			depNode.Dependents[node.ID] = node
		}
	}
	return findings
}

// linkImplicitDeps derives data edges from the step's binding expressions.
// Every step.* traversal must name an existing step and, when present, one
// of its declared outputs; every input.* traversal must name a declared
// pipeline input.
func linkImplicitDeps(ctx context.Context, g *Graph, pipeline *catalog.Pipeline, node *Node) []Finding {
	logger := ctxlog.FromContext(ctx)
	var findings []Finding

	link := func(subject string, refs []catalog.StepRef, inputs []string) {
		for _, ref := range refs {
			if ref.Step == node.ID {
				findings = append(findings, Finding{
					Subject: subject,
					Detail:  "step references its own output",
				})
				continue
			}
			depNode, found := g.Nodes[ref.Step]
			if !found {
				findings = append(findings, Finding{
					Subject: subject,
					Detail:  fmt.Sprintf("reference to unknown step %q", ref.Step),
				})
				continue
			}
			if ref.Output != "" && depNode.Step.Output(ref.Output) == nil {
				findings = append(findings, Finding{
					Subject: subject,
					Detail:  fmt.Sprintf("reference to undeclared output %q of step %q", ref.Output, ref.Step),
				})
				continue
			}
			if _, exists := node.Deps[ref.Step]; !exists {
				logger.Debug("Linking data dependency.", "from", node.ID, "to", ref.Step)
				node.Deps[ref.Step] = depNode
				depNode.Dependents[node.ID] = node
			}
			node.DataDeps[ref.Step] = true
		}
		for _, name := range inputs {
			if pipeline.Input(name) == nil {
				findings = append(findings, Finding{
					Subject: subject,
					Detail:  fmt.Sprintf("reference to undeclared pipeline input %q", name),
				})
			}
		}
	}

	for _, arg := range node.Step.Args {
		subject := fmt.Sprintf("%s.arg.%s", node.ID, arg.Name)
		link(subject, catalog.StepRefs(arg.From), catalog.InputRefs(arg.From))
	}
	for _, env := range node.Step.Env {
		subject := fmt.Sprintf("%s.env.%s", node.ID, env.Name)
		link(subject, catalog.StepRefs(env.From), catalog.InputRefs(env.From))
	}
	return findings
}

// validatePipelineOutputs checks that every pipeline-boundary output names a
// unique key and resolves to a declared step output.
func validatePipelineOutputs(pipeline *catalog.Pipeline, g *Graph) []Finding {
	var findings []Finding
	seen := make(map[string]bool)

	for _, out := range pipeline.Outputs {
		subject := fmt.Sprintf("output.%s", out.Name)
		if seen[out.Name] {
			findings = append(findings, Finding{Subject: subject, Detail: "duplicate pipeline output name"})
		}
		seen[out.Name] = true

		refs := catalog.StepRefs(out.From)
		if len(refs) != 1 || refs[0].Output == "" {
			findings = append(findings, Finding{
				Subject: subject,
				Detail:  "pipeline outputs must reference exactly one step output",
			})
			continue
		}
		ref := refs[0]
		depNode, found := g.Nodes[ref.Step]
		if !found {
			findings = append(findings, Finding{
				Subject: subject,
				Detail:  fmt.Sprintf("reference to unknown step %q", ref.Step),
			})
			continue
		}
		if depNode.Step.Output(ref.Output) == nil {
			findings = append(findings, Finding{
				Subject: subject,
				Detail:  fmt.Sprintf("reference to undeclared output %q of step %q", ref.Output, ref.Step),
			})
		}
	}
	return findings
}
