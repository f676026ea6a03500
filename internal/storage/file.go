package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists documents as pretty-printed JSON files under
// <base>/<project>/data/<name>. Writes go through a temp file and rename
// so a crash mid-write never leaves a half-written document behind.
type FileStore struct {
	base string
}

// NewFileStore creates a file-backed store rooted at base.
// An empty base uses DefaultBase ("projects").
func NewFileStore(base string) *FileStore {
	if base == "" {
		base = DefaultBase
	}
	return &FileStore{base: base}
}

// Base returns the root directory of the store.
func (s *FileStore) Base() string { return s.base }

// Load reads and decodes a document. Missing files map to ErrNotFound,
// undecodable content to ErrCorrupt.
func (s *FileStore) Load(ctx context.Context, project, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(DataPath(s.base, project, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, project, name)
		}
		return fmt.Errorf("read %s/%s: %w", project, name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrCorrupt, project, name, err)
	}
	return nil
}

// Save encodes and atomically replaces a document, creating the project
// data directory on first use.
func (s *FileStore) Save(ctx context.Context, project, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := DataPath(s.base, project, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", project, name, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s/%s: %w", project, name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s/%s: %w", project, name, err)
	}
	return nil
}
