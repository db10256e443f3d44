package pipeline

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vk/airpipe/internal/executor"
)

// summaryDoc is the YAML shape of the persisted run summary.
type summaryDoc struct {
	RunID    string                   `yaml:"run_id"`
	Pipeline string                   `yaml:"pipeline"`
	Status   string                   `yaml:"status"`
	Error    string                   `yaml:"error,omitempty"`
	Steps    []stepSummary            `yaml:"steps"`
	Outputs  map[string]outputSummary `yaml:"outputs,omitempty"`
}

type stepSummary struct {
	Step       string   `yaml:"step"`
	Status     string   `yaml:"status"`
	StartedAt  string   `yaml:"started_at,omitempty"`
	FinishedAt string   `yaml:"finished_at,omitempty"`
	Created    *bool    `yaml:"created,omitempty"`
	Produced   []string `yaml:"produced,omitempty"`
	Log        string   `yaml:"log,omitempty"`
	Errors     string   `yaml:"errors,omitempty"`
	Failure    string   `yaml:"failure,omitempty"`
}

type outputSummary struct {
	Kind  string `yaml:"kind"`
	Path  string `yaml:"path,omitempty"`
	Value string `yaml:"value,omitempty"`
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// writeSummary persists run.yaml into the run directory so every run leaves
// an inspectable record behind, successful or not.
func writeSummary(result *Result) error {
	doc := summaryDoc{
		RunID:    result.RunID,
		Pipeline: result.Pipeline,
		Status:   "succeeded",
		Outputs:  make(map[string]outputSummary, len(result.Outputs)),
	}
	if !result.Succeeded {
		doc.Status = "failed"
		if result.Err != nil {
			doc.Error = result.Err.Error()
		}
	}

	for _, rec := range result.Records {
		s := stepSummary{
			Step:     rec.StepID,
			Status:   rec.Status().String(),
			Created:  rec.Created,
			Produced: rec.Produced,
			Log:      rec.LogPath,
			Errors:   rec.ErrPath,
		}
		if !rec.StartedAt.IsZero() {
			s.StartedAt = rec.StartedAt.Format(timeLayout)
			s.FinishedAt = rec.FinishedAt.Format(timeLayout)
		}
		if rec.Err != nil && rec.Status() != executor.StatusSucceeded {
			s.Failure = rec.Err.Error()
		}
		doc.Steps = append(doc.Steps, s)
	}

	for name, a := range result.Outputs {
		doc.Outputs[name] = outputSummary{Kind: string(a.Kind), Path: a.Path, Value: a.Value}
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(result.RunDir, "run.yaml"), data, 0o644)
}
