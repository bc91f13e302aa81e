package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stevemurr/dataset-server/dataset"
	"github.com/stevemurr/dataset-server/document"
	"github.com/stevemurr/dataset-server/store"
)

// Service is the single entry point of the query engine. It validates input,
// fetches records from the store and runs the engines over them. It keeps no
// state between calls.
type Service struct {
	store      store.Store
	log        *zap.Logger
	metrics    *Metrics
	sampleSize int
}

type Option func(*Service)

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSampleSize overrides how many records Stats examines. Values below one
// are ignored.
func WithSampleSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sampleSize = n
		}
	}
}

func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:      st,
		log:        zap.NewNop(),
		sampleSize: DefaultSampleSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DatasetInfo is one entry of ListDatasets.
type DatasetInfo struct {
	Name        string `json:"name"`
	RecordCount int64  `json:"recordCount"`
}

func validateField(op, ds, field string) error {
	if strings.TrimSpace(field) == "" {
		return &dataset.ValidationError{Op: op, Dataset: ds, Field: field, Err: dataset.ErrEmptyField}
	}
	return nil
}

func canonicalize(op, raw string) (dataset.Name, error) {
	name, err := dataset.Canonicalize(raw)
	if err != nil {
		var ve *dataset.ValidationError
		if errors.As(err, &ve) {
			ve.Op = op
		}
		return "", err
	}
	return name, nil
}

func (s *Service) storeError(op string, name dataset.Name, field string, err error) error {
	s.log.Error("store operation failed",
		zap.String("operation", op),
		zap.String("dataset", name.String()),
		zap.String("field", field),
		zap.Error(err))
	return &dataset.StoreError{Op: op, Dataset: name.String(), Field: field, Err: err}
}

// Insert validates and persists a single document.
func (s *Service) Insert(ctx context.Context, rawName string, doc document.Document) (rec dataset.Record, err error) {
	const op = "insert"
	defer func(start time.Time) { s.metrics.observe(op, start, err) }(time.Now())

	name, err := canonicalize(op, rawName)
	if err != nil {
		return dataset.Record{}, err
	}
	if doc.Len() == 0 {
		return dataset.Record{}, &dataset.ValidationError{Op: op, Dataset: name.String(), Err: dataset.ErrEmptyDocument}
	}

	s.log.Debug("inserting record", zap.String("dataset", name.String()), zap.Int("fields", doc.Len()))
	rec, err = s.store.Save(ctx, name, doc)
	if err != nil {
		return dataset.Record{}, s.storeError(op, name, "", err)
	}
	s.log.Info("inserted record",
		zap.String("dataset", name.String()),
		zap.Int64("id", rec.ID),
		zap.Int("fields", doc.Len()))
	return rec, nil
}

// InsertBatch validates every document before persisting any of them. The
// store decides whether a failed batch leaves a partial write behind.
func (s *Service) InsertBatch(ctx context.Context, rawName string, docs []document.Document) (recs []dataset.Record, err error) {
	const op = "insertBatch"
	defer func(start time.Time) { s.metrics.observe(op, start, err) }(time.Now())

	name, err := canonicalize(op, rawName)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, &dataset.ValidationError{Op: op, Dataset: name.String(), Err: dataset.ErrEmptyBatch}
	}
	for i, doc := range docs {
		if doc.Len() == 0 {
			return nil, &dataset.ValidationError{
				Op:      op,
				Dataset: name.String(),
				Reason:  fmt.Sprintf("record %d: %v", i, dataset.ErrEmptyDocument),
				Err:     dataset.ErrEmptyDocument,
			}
		}
	}

	s.log.Debug("inserting batch", zap.String("dataset", name.String()), zap.Int("records", len(docs)))
	recs, err = s.store.SaveAll(ctx, name, docs)
	if err != nil {
		return nil, s.storeError(op, name, "", err)
	}
	s.log.Info("inserted batch", zap.String("dataset", name.String()), zap.Int("records", len(recs)))
	return recs, nil
}

// GetAll returns every document of a dataset in retrieval order. An unknown
// dataset yields an empty slice.
func (s *Service) GetAll(ctx context.Context, rawName string) (docs []document.Document, err error) {
	const op = "getAll"
	defer func(start time.Time) { s.metrics.observe(op, start, err) }(time.Now())

	name, err := canonicalize(op, rawName)
	if err != nil {
		return nil, err
	}
	recs, err := s.store.FetchAll(ctx, name)
	if err != nil {
		return nil, s.storeError(op, name, "", err)
	}
	docs = dataset.Documents(recs)
	s.log.Info("retrieved records", zap.String("dataset", name.String()), zap.Int("records", len(docs)))
	return docs, nil
}

// GroupBy buckets the documents of a dataset by field.
func (s *Service) GroupBy(ctx context.Context, rawName, field string) (result *GroupResult, err error) {
	const op = "groupBy"
	defer func(start time.Time) { s.metrics.observe(op, start, err) }(time.Now())

	name, err := canonicalize(op, rawName)
	if err != nil {
		return nil, err
	}
	if err := validateField(op, name.String(), field); err != nil {
		return nil, err
	}
	recs, err := s.store.FetchAll(ctx, name)
	if err != nil {
		return nil, s.storeError(op, name, field, err)
	}
	result = GroupBy(dataset.Documents(recs), field)
	s.log.Info("grouped records",
		zap.String("dataset", name.String()),
		zap.String("field", field),
		zap.Int("records", len(recs)),
		zap.Int("groups", result.Len()))
	return result, nil
}

// SortBy orders the documents of a dataset by field. When the store can
// order by field itself its output is used as the starting point; either way
// the engine comparator decides the final order.
func (s *Service) SortBy(ctx context.Context, rawName, field string, dir dataset.Direction) (docs []document.Document, err error) {
	const op = "sortBy"
	defer func(start time.Time) { s.metrics.observe(op, start, err) }(time.Now())

	name, err := canonicalize(op, rawName)
	if err != nil {
		return nil, err
	}
	if err := validateField(op, name.String(), field); err != nil {
		return nil, err
	}
	recs, err := s.fetchForSort(ctx, name, field, dir)
	if err != nil {
		return nil, s.storeError(op, name, field, err)
	}
	docs = SortBy(dataset.Documents(recs), field, dir)
	s.log.Info("sorted records",
		zap.String("dataset", name.String()),
		zap.String("field", field),
		zap.Stringer("order", dir),
		zap.Int("records", len(docs)))
	return docs, nil
}

func (s *Service) fetchForSort(ctx context.Context, name dataset.Name, field string, dir dataset.Direction) ([]dataset.Record, error) {
	if orderer, ok := s.store.(store.FieldOrderer); ok {
		recs, err := orderer.FetchSortedByField(ctx, name, field, dir)
		if err == nil {
			return recs, nil
		}
		if !errors.Is(err, store.ErrOrderingUnsupported) {
			return nil, err
		}
		s.log.Debug("ordering push-down unavailable, sorting in engine",
			zap.String("dataset", name.String()),
			zap.String("field", field))
	}
	return s.store.FetchAll(ctx, name)
}

// Stats reports the record count of a dataset and, from the first records in
// retrieval order, the fields seen and the kinds of value each held.
func (s *Service) Stats(ctx context.Context, rawName string) (stats *FieldStats, err error) {
	const op = "stats"
	defer func(start time.Time) { s.metrics.observe(op, start, err) }(time.Now())

	name, err := canonicalize(op, rawName)
	if err != nil {
		return nil, err
	}
	total, err := s.store.Count(ctx, name)
	if err != nil {
		return nil, s.storeError(op, name, "", err)
	}
	stats = &FieldStats{
		Dataset:      name.String(),
		TotalRecords: total,
		Exists:       total > 0,
	}
	if total > 0 {
		sample, err := s.store.FetchFirst(ctx, name, s.sampleSize)
		if err != nil {
			return nil, s.storeError(op, name, "", err)
		}
		summarize(stats, sample)
	}
	s.log.Info("generated stats",
		zap.String("dataset", name.String()),
		zap.Int64("records", total),
		zap.Int("fields", stats.FieldCount))
	return stats, nil
}

// ListDatasets returns every dataset holding records, with its live count.
func (s *Service) ListDatasets(ctx context.Context) (infos []DatasetInfo, err error) {
	const op = "listDatasets"
	defer func(start time.Time) { s.metrics.observe(op, start, err) }(time.Now())

	names, err := s.store.ListDatasetNames(ctx)
	if err != nil {
		return nil, s.storeError(op, "", "", err)
	}
	infos = make([]DatasetInfo, 0, len(names))
	for _, name := range names {
		n, err := s.store.Count(ctx, name)
		if err != nil {
			return nil, s.storeError(op, name, "", err)
		}
		if n == 0 {
			continue
		}
		infos = append(infos, DatasetInfo{Name: name.String(), RecordCount: n})
	}
	s.log.Info("listed datasets", zap.Int("datasets", len(infos)))
	return infos, nil
}
