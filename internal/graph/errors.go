package graph

import (
	"fmt"
	"strings"
)

// Finding is a single validation problem discovered while building a graph.
type Finding struct {
	// Subject names the step, output, or reference at fault.
	Subject string

	// Detail describes the problem.
	Detail string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s", f.Subject, f.Detail)
}

// ValidationError aggregates every problem found during graph construction.
// The builder collects all findings in one pass instead of stopping at the
// first, so a broken catalog surfaces completely before anything runs.
type ValidationError struct {
	Pipeline string
	Findings []Finding
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Findings))
	for i, f := range e.Findings {
		msgs[i] = f.String()
	}
	return fmt.Sprintf("pipeline %q is invalid: %s", e.Pipeline, strings.Join(msgs, "; "))
}
