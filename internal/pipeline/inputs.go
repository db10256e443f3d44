package pipeline

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadInputsFile reads a YAML document of pipeline input values, a flat
// mapping of input name to string value.
func LoadInputsFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inputs file: %w", err)
	}

	inputs := make(map[string]string)
	if err := yaml.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("parsing inputs file %s: %w", path, err)
	}
	return inputs, nil
}

// MergeSetFlags applies "name=value" assignments on top of the given input
// map, mirroring the usual precedence of command-line flags over files.
func MergeSetFlags(inputs map[string]string, assignments []string) (map[string]string, error) {
	if inputs == nil {
		inputs = make(map[string]string)
	}
	for _, assignment := range assignments {
		name, value, found := strings.Cut(assignment, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("invalid input assignment %q, expected name=value", assignment)
		}
		inputs[name] = value
	}
	return inputs, nil
}
