package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/stevemurr/dataset-server/dataset"
	"github.com/stevemurr/dataset-server/document"
)

// Key layout:
//
//	r/<len:2><name><id:8>   record payload, ids big-endian so scans run in id order
//	c/<name>                record count, big-endian uint64
//	s/records               id sequence
var (
	recordPrefix = []byte("r/")
	countPrefix  = []byte("c/")
	sequenceKey  = []byte("s/records")
)

// BadgerStore keeps datasets in an embedded Badger key-value store. Writes
// are serialized because every insert rewrites the dataset's count key.
type BadgerStore struct {
	mu  sync.Mutex
	db  *badger.DB
	seq *badger.Sequence
	log *zap.Logger
}

// NewBadgerStore opens a store under dir. An empty dir keeps everything in
// memory.
func NewBadgerStore(dir string, log *zap.Logger) (*BadgerStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	seq, err := db.GetSequence(sequenceKey, 100)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BadgerStore{db: db, seq: seq, log: log}, nil
}

func (s *BadgerStore) Close() error {
	return errors.Join(s.seq.Release(), s.db.Close())
}

func datasetPrefix(name dataset.Name) []byte {
	key := make([]byte, 0, len(recordPrefix)+2+len(name))
	key = append(key, recordPrefix...)
	key = binary.BigEndian.AppendUint16(key, uint16(len(name)))
	return append(key, name...)
}

func recordKey(name dataset.Name, id int64) []byte {
	return binary.BigEndian.AppendUint64(datasetPrefix(name), uint64(id))
}

func countKey(name dataset.Name) []byte {
	return append(append([]byte{}, countPrefix...), name...)
}

func readCount(txn *badger.Txn, name dataset.Name) (uint64, error) {
	item, err := txn.Get(countKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt count for dataset %q", name)
		}
		n = binary.BigEndian.Uint64(val)
		return nil
	})
	return n, err
}

func (s *BadgerStore) Save(ctx context.Context, name dataset.Name, doc document.Document) (dataset.Record, error) {
	recs, err := s.SaveAll(ctx, name, []document.Document{doc})
	if err != nil {
		return dataset.Record{}, err
	}
	return recs[0], nil
}

// SaveAll writes the batch and the updated count in one transaction.
func (s *BadgerStore) SaveAll(ctx context.Context, name dataset.Name, docs []document.Document) ([]dataset.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowUTC()
	saved := make([]storedRecord, 0, len(docs))
	for _, doc := range docs {
		next, err := s.seq.Next()
		if err != nil {
			return nil, err
		}
		rec, err := newStoredRecord(int64(next)+1, doc, now)
		if err != nil {
			return nil, err
		}
		saved = append(saved, rec)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, rec := range saved {
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := txn.Set(recordKey(name, rec.ID), data); err != nil {
				return err
			}
		}
		n, err := readCount(txn, name)
		if err != nil {
			return err
		}
		return txn.Set(countKey(name), binary.BigEndian.AppendUint64(nil, n+uint64(len(saved))))
	})
	if err != nil {
		return nil, err
	}
	return decodeAll(s.log, name, saved, 0), nil
}

func (s *BadgerStore) FetchAll(ctx context.Context, name dataset.Name) ([]dataset.Record, error) {
	return s.FetchFirst(ctx, name, 0)
}

func (s *BadgerStore) FetchFirst(ctx context.Context, name dataset.Name, limit int) ([]dataset.Record, error) {
	out := []dataset.Record{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = datasetPrefix(name)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit > 0 && len(out) >= limit {
				return nil
			}
			item := it.Item()
			var rec storedRecord
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				s.log.Warn("skipping unreadable record",
					zap.String("dataset", name.String()),
					zap.ByteString("key", item.KeyCopy(nil)),
					zap.Error(err))
				continue
			}
			if r, ok := rec.decode(s.log, name); ok {
				out = append(out, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Count(ctx context.Context, name dataset.Name) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n uint64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = readCount(txn, name)
		return err
	})
	return int64(n), err
}

func (s *BadgerStore) ListDatasetNames(ctx context.Context) ([]dataset.Name, error) {
	var names []dataset.Name
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = countPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			name := dataset.Name(it.Item().Key()[len(countPrefix):])
			n, err := readCount(txn, name)
			if err != nil {
				return err
			}
			if n > 0 {
				names = append(names, name)
			}
		}
		return nil
	})
	return names, err
}
