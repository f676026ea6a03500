// Package storage provides the persisted-state layer for guard data.
// Every document is read and written whole, namespaced by project id and
// document name. Backends are swappable: a JSON-file store for the normal
// projects/<id>/data layout and a SQLite store for embedded deployments.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document does not exist for the
// project. Guards treat this as "no prior state".
var ErrNotFound = errors.New("storage: document not found")

// ErrCorrupt is returned when a document exists but cannot be decoded.
// Guards degrade to empty state on corruption, but callers can tell the
// two cases apart and should log this one.
var ErrCorrupt = errors.New("storage: document corrupt")

// Store is the read-full/write-full persistence contract.
// Load decodes the named document into v; Save replaces it atomically.
// There is no partial update: callers load the full structure, mutate it,
// and save the full structure back.
type Store interface {
	Load(ctx context.Context, project, name string, v any) error
	Save(ctx context.Context, project, name string, v any) error
}

// IsEmptyState reports whether err means the document should be treated
// as absent (missing or corrupt).
func IsEmptyState(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorrupt)
}
