package store

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/stevemurr/dataset-server/dataset"
	"github.com/stevemurr/dataset-server/document"
)

const lockRetryInterval = 10 * time.Millisecond

// JsonFileStore stores each dataset as a separate JSON file on disk. A lock
// file guards the directory so several processes can share it.
//
// Layout:
//
//	data_dir/
//	  .lock               # flock target
//	  _meta.json          # last assigned record id
//	  datasets/
//	    sales.json        # "sales" dataset, records in insertion order
//	    q%2F3.json        # "q/3" dataset (names are path-escaped)
type JsonFileStore struct {
	mu   sync.RWMutex
	dir  string
	lock *flock.Flock
	log  *zap.Logger
}

type fileMeta struct {
	LastID int64 `json:"lastId"`
}

func NewJsonFileStore(dir string, log *zap.Logger) (*JsonFileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "datasets"), 0o755); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &JsonFileStore{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, ".lock")),
		log:  log,
	}, nil
}

func (s *JsonFileStore) datasetPath(name dataset.Name) string {
	return filepath.Join(s.dir, "datasets", url.PathEscape(string(name))+".json")
}

func (s *JsonFileStore) metaPath() string {
	return filepath.Join(s.dir, "_meta.json")
}

// withLock runs fn holding the in-process mutex and the directory lock.
func (s *JsonFileStore) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	var locked bool
	var err error
	if exclusive {
		s.mu.Lock()
		defer s.mu.Unlock()
		locked, err = s.lock.TryLockContext(ctx, lockRetryInterval)
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
		locked, err = s.lock.TryRLockContext(ctx, lockRetryInterval)
	}
	if err != nil {
		return fmt.Errorf("lock data dir: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock data dir: not acquired")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func (s *JsonFileStore) loadFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// saveFile writes through a temp file so readers never see a partial file.
func (s *JsonFileStore) saveFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *JsonFileStore) loadDataset(name dataset.Name) ([]storedRecord, error) {
	var recs []storedRecord
	if err := s.loadFile(s.datasetPath(name), &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *JsonFileStore) Save(ctx context.Context, name dataset.Name, doc document.Document) (dataset.Record, error) {
	recs, err := s.SaveAll(ctx, name, []document.Document{doc})
	if err != nil {
		return dataset.Record{}, err
	}
	return recs[0], nil
}

func (s *JsonFileStore) SaveAll(ctx context.Context, name dataset.Name, docs []document.Document) ([]dataset.Record, error) {
	if len(docs) == 0 {
		return []dataset.Record{}, nil
	}
	var saved []storedRecord
	err := s.withLock(ctx, true, func() error {
		var meta fileMeta
		if err := s.loadFile(s.metaPath(), &meta); err != nil {
			return err
		}
		existing, err := s.loadDataset(name)
		if err != nil {
			return err
		}
		now := nowUTC()
		for _, doc := range docs {
			meta.LastID++
			rec, err := newStoredRecord(meta.LastID, doc, now)
			if err != nil {
				return err
			}
			saved = append(saved, rec)
		}
		if err := s.saveFile(s.datasetPath(name), append(existing, saved...)); err != nil {
			return err
		}
		return s.saveFile(s.metaPath(), meta)
	})
	if err != nil {
		return nil, err
	}
	return decodeAll(s.log, name, saved, 0), nil
}

func (s *JsonFileStore) FetchAll(ctx context.Context, name dataset.Name) ([]dataset.Record, error) {
	return s.FetchFirst(ctx, name, 0)
}

func (s *JsonFileStore) FetchFirst(ctx context.Context, name dataset.Name, limit int) ([]dataset.Record, error) {
	var out []dataset.Record
	err := s.withLock(ctx, false, func() error {
		recs, err := s.loadDataset(name)
		if err != nil {
			return err
		}
		out = decodeAll(s.log, name, recs, limit)
		return nil
	})
	return out, err
}

func (s *JsonFileStore) Count(ctx context.Context, name dataset.Name) (int64, error) {
	var n int64
	err := s.withLock(ctx, false, func() error {
		recs, err := s.loadDataset(name)
		if err != nil {
			return err
		}
		n = int64(len(recs))
		return nil
	})
	return n, err
}

func (s *JsonFileStore) ListDatasetNames(ctx context.Context) ([]dataset.Name, error) {
	var names []dataset.Name
	err := s.withLock(ctx, false, func() error {
		entries, err := os.ReadDir(filepath.Join(s.dir, "datasets"))
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			raw, err := url.PathUnescape(strings.TrimSuffix(e.Name(), ".json"))
			if err != nil {
				continue
			}
			names = append(names, dataset.Name(raw))
		}
		return nil
	})
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names, err
}

func (s *JsonFileStore) Close() error {
	return s.lock.Close()
}
