package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"

	"github.com/stevemurr/dataset-server/dataset"
	"github.com/stevemurr/dataset-server/document"
)

// SqliteStore stores all datasets in a single SQLite database and pushes
// field ordering down to SQLite's JSON functions.
//
// Tables:
//
//	dataset_records(id, dataset_name, record_data, created_at, updated_at)
type SqliteStore struct {
	mu  sync.RWMutex
	db  *sql.DB
	log *zap.Logger
}

func NewSqliteStore(dbPath string, log *zap.Logger) (*SqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS dataset_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset_name TEXT NOT NULL,
		record_data TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_dataset_name ON dataset_records (dataset_name, id)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteStore{db: db, log: log}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) Save(ctx context.Context, name dataset.Name, doc document.Document) (dataset.Record, error) {
	recs, err := s.SaveAll(ctx, name, []document.Document{doc})
	if err != nil {
		return dataset.Record{}, err
	}
	return recs[0], nil
}

// SaveAll inserts the batch in a single transaction.
func (s *SqliteStore) SaveAll(ctx context.Context, name dataset.Name, docs []document.Document) ([]dataset.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := nowUTC()
	stamp := now.Format(time.RFC3339Nano)
	saved := make([]storedRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := newStoredRecord(0, doc, now)
		if err != nil {
			return nil, err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO dataset_records (dataset_name, record_data, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			string(name), rec.Data, stamp, stamp,
		)
		if err != nil {
			return nil, err
		}
		if rec.ID, err = res.LastInsertId(); err != nil {
			return nil, err
		}
		saved = append(saved, rec)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return decodeAll(s.log, name, saved, 0), nil
}

func (s *SqliteStore) FetchAll(ctx context.Context, name dataset.Name) ([]dataset.Record, error) {
	return s.FetchFirst(ctx, name, 0)
}

// FetchFirst scans in id order and stops once limit readable records are
// collected, so unreadable rows never shrink the sample.
func (s *SqliteStore) FetchFirst(ctx context.Context, name dataset.Name, limit int) ([]dataset.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, record_data, created_at, updated_at FROM dataset_records
		 WHERE dataset_name = ? ORDER BY id`,
		string(name),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanRecords(rows, name, limit)
}

func (s *SqliteStore) scanRecords(rows *sql.Rows, name dataset.Name, limit int) ([]dataset.Record, error) {
	out := []dataset.Record{}
	for rows.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var rec storedRecord
		var created, updated string
		if err := rows.Scan(&rec.ID, &rec.Data, &created, &updated); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		if r, ok := rec.decode(s.log, name); ok {
			out = append(out, r)
		}
	}
	return out, rows.Err()
}

// FetchSortedByField implements FieldOrderer using json_type and
// json_extract on the stored payload.
func (s *SqliteStore) FetchSortedByField(ctx context.Context, name dataset.Name, field string, dir dataset.Direction) ([]dataset.Record, error) {
	// JSON paths cannot quote these characters.
	if field == "" || strings.ContainsAny(field, `"\`) {
		return nil, ErrOrderingUnsupported
	}
	path := `$."` + field + `"`
	order := "ASC"
	if dir == dataset.Descending {
		order = "DESC"
	}
	query := fmt.Sprintf(`SELECT id, record_data, created_at, updated_at FROM (
		SELECT id, record_data, created_at, updated_at,
		       json_type(record_data, ?1) AS t,
		       json_extract(record_data, ?1) AS v
		FROM dataset_records
		WHERE dataset_name = ?2 AND json_valid(record_data)
	) WHERE t IN ('integer', 'real', 'text', 'true', 'false')
	ORDER BY CASE t WHEN 'text' THEN 1 WHEN 'true' THEN 2 WHEN 'false' THEN 2 ELSE 0 END %[1]s,
	         v %[1]s,
	         id ASC`, order)

	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, query, path, string(name))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanRecords(rows, name, 0)
}

func (s *SqliteStore) Count(ctx context.Context, name dataset.Name) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM dataset_records WHERE dataset_name = ?", string(name),
	).Scan(&n)
	return n, err
}

func (s *SqliteStore) ListDatasetNames(ctx context.Context) ([]dataset.Name, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT dataset_name FROM dataset_records ORDER BY dataset_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []dataset.Name
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, dataset.Name(name))
	}
	return names, rows.Err()
}
