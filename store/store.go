// Package store defines the record store interface and its backends.
package store

import (
	"context"
	"errors"

	"github.com/stevemurr/dataset-server/dataset"
	"github.com/stevemurr/dataset-server/document"
)

// ErrOrderingUnsupported is returned by FetchSortedByField when a backend
// cannot push ordering down for the requested field. Callers fall back to
// sorting FetchAll output themselves.
var ErrOrderingUnsupported = errors.New("field ordering push-down unsupported")

// Store is the interface that all record stores must implement. Records in a
// dataset are returned in insertion order, which is also ID order.
type Store interface {
	// Save persists one document and returns the stored record.
	Save(ctx context.Context, name dataset.Name, doc document.Document) (dataset.Record, error)

	// SaveAll persists documents in order. Backends that can do so commit the
	// batch atomically; others may leave a prefix behind on failure.
	SaveAll(ctx context.Context, name dataset.Name, docs []document.Document) ([]dataset.Record, error)

	// FetchAll returns every readable record of a dataset.
	FetchAll(ctx context.Context, name dataset.Name) ([]dataset.Record, error)

	// FetchFirst returns at most limit readable records, starting from the
	// oldest. Unreadable records are skipped and do not count toward limit.
	FetchFirst(ctx context.Context, name dataset.Name, limit int) ([]dataset.Record, error)

	// Count returns the number of stored records, readable or not.
	Count(ctx context.Context, name dataset.Name) (int64, error)

	// ListDatasetNames returns every dataset holding at least one record,
	// sorted by name.
	ListDatasetNames(ctx context.Context) ([]dataset.Name, error)

	Close() error
}

// FieldOrderer is implemented by stores that can order records by a
// top-level document field themselves. Records whose field is absent, null,
// an object or an array are left out. Ordering ranks numbers before strings
// before booleans; ties keep insertion order in both directions.
type FieldOrderer interface {
	FetchSortedByField(ctx context.Context, name dataset.Name, field string, dir dataset.Direction) ([]dataset.Record, error)
}
