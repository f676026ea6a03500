package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"storyguard/internal/storage"
)

// Outcome is one guard's result in a chain run.
type Outcome struct {
	Order     int            `json:"order"`
	Guard     string         `json:"guard"`
	Passed    bool           `json:"passed"`
	Skipped   string         `json:"skipped,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Violation string         `json:"violation,omitempty"`
	Flags     map[string]any `json:"flags,omitempty"`
	Attempts  int            `json:"attempts,omitempty"`
	History   []string       `json:"history,omitempty"`
}

// Report is the full record of one chain run over one episode.
type Report struct {
	Project     string    `json:"project"`
	Episode     int       `json:"episode"`
	GeneratedAt time.Time `json:"generated_at"`
	Passed      bool      `json:"passed"`
	Outcomes    []Outcome `json:"outcomes"`
}

// Violations returns the failed outcomes.
func (r *Report) Violations() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.Passed {
			out = append(out, o)
		}
	}
	return out
}

// WriteReport persists a report as JSON under the project's outputs
// directory and returns the written path.
func WriteReport(base string, rep *Report) (string, error) {
	name := fmt.Sprintf("guard_report_ep%03d.json", rep.Episode)
	path := storage.OutPath(base, rep.Project, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create outputs dir: %w", err)
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
