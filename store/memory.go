package store

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/stevemurr/dataset-server/dataset"
	"github.com/stevemurr/dataset-server/document"
)

// MemoryStore keeps everything in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	datasets map[dataset.Name][]storedRecord
	nextID   int64
	log      *zap.Logger
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		datasets: make(map[dataset.Name][]storedRecord),
		log:      zap.NewNop(),
	}
}

// WithLogger sets the logger used to report unreadable records.
func (m *MemoryStore) WithLogger(log *zap.Logger) *MemoryStore {
	m.log = log
	return m
}

func (m *MemoryStore) Save(ctx context.Context, name dataset.Name, doc document.Document) (dataset.Record, error) {
	recs, err := m.SaveAll(ctx, name, []document.Document{doc})
	if err != nil {
		return dataset.Record{}, err
	}
	return recs[0], nil
}

func (m *MemoryStore) SaveAll(ctx context.Context, name dataset.Name, docs []document.Document) ([]dataset.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := nowUTC()
	stored := make([]storedRecord, 0, len(docs))
	for i, doc := range docs {
		s, err := newStoredRecord(m.nextID+int64(i)+1, doc, now)
		if err != nil {
			return nil, err
		}
		stored = append(stored, s)
	}
	m.nextID += int64(len(docs))
	m.datasets[name] = append(m.datasets[name], stored...)
	return decodeAll(m.log, name, stored, 0), nil
}

func (m *MemoryStore) FetchAll(ctx context.Context, name dataset.Name) ([]dataset.Record, error) {
	return m.FetchFirst(ctx, name, 0)
}

func (m *MemoryStore) FetchFirst(ctx context.Context, name dataset.Name, limit int) ([]dataset.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return decodeAll(m.log, name, m.datasets[name], limit), nil
}

func (m *MemoryStore) Count(ctx context.Context, name dataset.Name) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.datasets[name])), nil
}

func (m *MemoryStore) ListDatasetNames(ctx context.Context) ([]dataset.Name, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []dataset.Name
	for name, recs := range m.datasets {
		if len(recs) > 0 {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names, nil
}

func (m *MemoryStore) Close() error { return nil }
