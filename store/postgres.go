package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/stevemurr/dataset-server/dataset"
	"github.com/stevemurr/dataset-server/document"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS dataset_records (
	id BIGSERIAL PRIMARY KEY,
	dataset_name TEXT NOT NULL,
	record_data JSON NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dataset_records_name ON dataset_records (dataset_name, id);
`

// PostgresStore keeps records in PostgreSQL. Payloads use the json type so
// the original text, and with it field order, is kept; ordering push-down
// casts to jsonb.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewPostgresStore(ctx context.Context, dsn string, log *zap.Logger) (*PostgresStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{pool: pool, log: log}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, name dataset.Name, doc document.Document) (dataset.Record, error) {
	recs, err := s.SaveAll(ctx, name, []document.Document{doc})
	if err != nil {
		return dataset.Record{}, err
	}
	return recs[0], nil
}

func (s *PostgresStore) SaveAll(ctx context.Context, name dataset.Name, docs []document.Document) ([]dataset.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// timestamptz keeps microseconds.
	now := nowUTC().Truncate(time.Microsecond)
	saved := make([]storedRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := newStoredRecord(0, doc, now)
		if err != nil {
			return nil, err
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO dataset_records (dataset_name, record_data, created_at, updated_at)
			 VALUES ($1, $2::text::json, $3, $3) RETURNING id`,
			string(name), rec.Data, now,
		).Scan(&rec.ID)
		if err != nil {
			return nil, err
		}
		saved = append(saved, rec)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return decodeAll(s.log, name, saved, 0), nil
}

func (s *PostgresStore) FetchAll(ctx context.Context, name dataset.Name) ([]dataset.Record, error) {
	return s.FetchFirst(ctx, name, 0)
}

func (s *PostgresStore) FetchFirst(ctx context.Context, name dataset.Name, limit int) ([]dataset.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, record_data::text, created_at, updated_at FROM dataset_records
		 WHERE dataset_name = $1 ORDER BY id`,
		string(name),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanRecords(rows, name, limit)
}

func (s *PostgresStore) scanRecords(rows pgx.Rows, name dataset.Name, limit int) ([]dataset.Record, error) {
	out := []dataset.Record{}
	for rows.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var rec storedRecord
		if err := rows.Scan(&rec.ID, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		rec.UpdatedAt = rec.UpdatedAt.UTC()
		if r, ok := rec.decode(s.log, name); ok {
			out = append(out, r)
		}
	}
	return out, rows.Err()
}

// FetchSortedByField implements FieldOrderer with jsonb operators. Strings
// use the C collation so they order by codepoint.
func (s *PostgresStore) FetchSortedByField(ctx context.Context, name dataset.Name, field string, dir dataset.Direction) ([]dataset.Record, error) {
	order := "ASC"
	if dir == dataset.Descending {
		order = "DESC"
	}
	query := fmt.Sprintf(`SELECT id, record_data::text, created_at, updated_at FROM (
		SELECT id, record_data, created_at, updated_at, record_data::jsonb -> $2::text AS v
		FROM dataset_records WHERE dataset_name = $1
	) r
	WHERE jsonb_typeof(v) IN ('number', 'string', 'boolean')
	ORDER BY CASE jsonb_typeof(v) WHEN 'number' THEN 0 WHEN 'string' THEN 1 ELSE 2 END %[1]s,
	         CASE WHEN jsonb_typeof(v) = 'number' THEN (v #>> '{}')::numeric END %[1]s,
	         CASE WHEN jsonb_typeof(v) = 'string' THEN (v #>> '{}') END COLLATE "C" %[1]s,
	         CASE WHEN jsonb_typeof(v) = 'boolean' THEN (v #>> '{}')::boolean END %[1]s,
	         id ASC`, order)

	rows, err := s.pool.Query(ctx, query, string(name), field)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanRecords(rows, name, 0)
}

func (s *PostgresStore) Count(ctx context.Context, name dataset.Name) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM dataset_records WHERE dataset_name = $1", string(name),
	).Scan(&n)
	return n, err
}

func (s *PostgresStore) ListDatasetNames(ctx context.Context) ([]dataset.Name, error) {
	rows, err := s.pool.Query(ctx, "SELECT DISTINCT dataset_name FROM dataset_records ORDER BY dataset_name COLLATE \"C\"")
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
