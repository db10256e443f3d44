package pipeline

import (
	"fmt"
	"strings"
)

// InputError reports missing required or unknown pipeline inputs, detected
// before anything is built or run.
type InputError struct {
	Pipeline string
	Missing  []string
	Unknown  []string
}

func (e *InputError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required inputs: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown inputs: "+strings.Join(e.Unknown, ", "))
	}
	return fmt.Sprintf("pipeline %q: %s", e.Pipeline, strings.Join(parts, "; "))
}

// UnresolvedPipelineOutputError reports that a non-optional pipeline output
// could not be resolved because its source step did not succeed or omitted
// the artifact.
type UnresolvedPipelineOutputError struct {
	Pipeline string
	Output   string
	Step     string
}

func (e *UnresolvedPipelineOutputError) Error() string {
	return fmt.Sprintf("pipeline %q: output %q could not be resolved from step %q", e.Pipeline, e.Output, e.Step)
}
