package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// CatalogPath points at a .hcl file or a directory of catalog files.
	CatalogPath string

	// Pipeline names the pipeline to run.
	Pipeline string

	// Workspace is the root directory for stable step directories and the
	// runs/ tree.
	Workspace string

	// InputsFile optionally points at a YAML document of input values.
	InputsFile string

	// SetInputs holds "name=value" assignments, applied over InputsFile.
	SetInputs []string

	LogFormat string
	LogLevel  string

	// Workers bounds step concurrency.
	Workers int
}

// NewConfig validates a Config and returns it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.CatalogPath == "" {
		return nil, errors.New("CatalogPath is a required configuration field and cannot be empty")
	}
	if cfg.Pipeline == "" {
		return nil, errors.New("Pipeline is a required configuration field and cannot be empty")
	}
	if cfg.Workspace == "" {
		cfg.Workspace = "."
	}
	return &cfg, nil
}
