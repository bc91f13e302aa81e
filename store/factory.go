package store

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
)

// Options carries backend settings for New.
type Options struct {
	DataDir     string
	PostgresDSN string
	Logger      *zap.Logger
}

// New creates a Store based on the backend name.
//
// Supported backends:
//
//	"json"     - JSON files in DataDir (default)
//	"sqlite"   - SQLite database at DataDir/datasets.db
//	"badger"   - Badger key-value store in DataDir/badger
//	"postgres" - PostgreSQL at PostgresDSN
//	"memory"   - In-memory (ephemeral, for testing)
func New(ctx context.Context, backend string, opts Options) (Store, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("backend", backend))

	switch backend {
	case "json", "":
		return NewJsonFileStore(opts.DataDir, log)
	case "sqlite":
		return NewSqliteStore(filepath.Join(opts.DataDir, "datasets.db"), log)
	case "badger":
		return NewBadgerStore(filepath.Join(opts.DataDir, "badger"), log)
	case "postgres":
		if opts.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres backend requires a DSN")
		}
		return NewPostgresStore(ctx, opts.PostgresDSN, log)
	case "memory":
		return NewMemoryStore().WithLogger(log), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: json, sqlite, badger, postgres, memory)", backend)
	}
}
