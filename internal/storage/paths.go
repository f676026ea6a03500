package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultBase is the root directory holding all project state.
const DefaultBase = "projects"

// DataPath returns the path of a data document:
// <base>/<project>/data/<name>.
func DataPath(base, project, name string) string {
	if base == "" {
		base = DefaultBase
	}
	return filepath.Join(base, project, "data", name)
}

// OutPath returns the path of an output artifact (reports, rendered
// episodes): <base>/<project>/outputs/<name>.
func OutPath(base, project, name string) string {
	if base == "" {
		base = DefaultBase
	}
	return filepath.Join(base, project, "outputs", name)
}

// EnsureProjectDirs creates the data and outputs directories for a project.
func EnsureProjectDirs(base, project string) error {
	if base == "" {
		base = DefaultBase
	}
	for _, dir := range []string{
		filepath.Join(base, project, "data"),
		filepath.Join(base, project, "outputs"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create project dir %s: %w", dir, err)
		}
	}
	return nil
}
