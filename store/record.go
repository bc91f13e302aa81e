package store

import (
	"time"

	"go.uber.org/zap"

	"github.com/stevemurr/dataset-server/dataset"
	"github.com/stevemurr/dataset-server/document"
)

// storedRecord is the representation shared by the backends that keep the
// document payload as JSON text next to its metadata.
type storedRecord struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Data      string    `json:"data"`
}

func newStoredRecord(id int64, doc document.Document, now time.Time) (storedRecord, error) {
	b, err := doc.MarshalJSON()
	if err != nil {
		return storedRecord{}, err
	}
	return storedRecord{ID: id, CreatedAt: now, UpdatedAt: now, Data: string(b)}, nil
}

// decode parses the payload. A record that cannot be read is logged and
// reported with ok=false so callers can skip it.
func (s storedRecord) decode(log *zap.Logger, name dataset.Name) (dataset.Record, bool) {
	doc, err := document.Parse([]byte(s.Data))
	if err != nil {
		log.Warn("skipping unreadable record",
			zap.String("dataset", name.String()),
			zap.Int64("id", s.ID),
			zap.Error(err))
		return dataset.Record{}, false
	}
	return dataset.Record{
		ID:        s.ID,
		Dataset:   name,
		Document:  doc,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}, true
}

// decodeAll decodes up to limit readable records; limit <= 0 means no limit.
func decodeAll(log *zap.Logger, name dataset.Name, stored []storedRecord, limit int) []dataset.Record {
	out := make([]dataset.Record, 0, len(stored))
	for _, s := range stored {
		if limit > 0 && len(out) >= limit {
			break
		}
		if r, ok := s.decode(log, name); ok {
			out = append(out, r)
		}
	}
	return out
}

func nowUTC() time.Time { return time.Now().UTC() }
