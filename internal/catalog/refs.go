package catalog

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// StepRef is a reference to another step's declared output, extracted from a
// binding expression. Output is empty when the expression references the
// step as a whole (`step.download`) rather than a named output.
type StepRef struct {
	Step   string
	Output string

	// Range locates the traversal for diagnostics.
	Range hcl.Range
}

// StepRefs analyzes an expression's variable traversals and returns every
// `step.<name>[.<output>]` reference it contains. References like
// `step.setup.cfg.path` report output "cfg"; deeper attributes address the
// artifact's own fields, not catalog entities.
func StepRefs(expr hcl.Expression) []StepRef {
	var refs []StepRef
	for _, traversal := range expr.Variables() {
		if traversal.RootName() != "step" || len(traversal) < 2 {
			continue
		}
		nameAttr, ok := traversal[1].(hcl.TraverseAttr)
		if !ok {
			continue
		}
		ref := StepRef{Step: nameAttr.Name, Range: traversal.SourceRange()}
		if len(traversal) > 2 {
			if outAttr, ok := traversal[2].(hcl.TraverseAttr); ok {
				ref.Output = outAttr.Name
			}
		}
		refs = append(refs, ref)
	}
	return refs
}

// InputRefs returns the names of every `input.<name>` reference in the
// expression.
func InputRefs(expr hcl.Expression) []string {
	var names []string
	for _, traversal := range expr.Variables() {
		if traversal.RootName() != "input" || len(traversal) < 2 {
			continue
		}
		if nameAttr, ok := traversal[1].(hcl.TraverseAttr); ok {
			names = append(names, nameAttr.Name)
		}
	}
	return names
}

// FormatTraversal converts an hcl.Traversal to a human-readable string for
// diagnostics and logging.
func FormatTraversal(t hcl.Traversal) string {
	var sb strings.Builder
	for i, part := range t {
		switch p := part.(type) {
		case hcl.TraverseRoot:
			sb.WriteString(p.Name)
		case hcl.TraverseAttr:
			sb.WriteRune('.')
			sb.WriteString(p.Name)
		case hcl.TraverseIndex:
			sb.WriteRune('[')
			if p.Key.Type() == cty.String {
				sb.WriteString(fmt.Sprintf("%q", p.Key.AsString()))
			} else if p.Key.Type() == cty.Number {
				sb.WriteString(p.Key.AsBigFloat().Text('f', -1))
			} else {
				sb.WriteString("...")
			}
			sb.WriteRune(']')
		default:
			if i > 0 {
				sb.WriteRune('.')
			}
			sb.WriteString("?")
		}
	}
	return sb.String()
}
