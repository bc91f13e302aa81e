package query

import (
	"slices"

	"github.com/stevemurr/dataset-server/dataset"
	"github.com/stevemurr/dataset-server/document"
)

// DefaultSampleSize is the number of records examined for field statistics.
const DefaultSampleSize = 100

// FieldStats summarises a dataset: its size and, from a sample, the fields
// present and the kinds of value seen for each.
type FieldStats struct {
	Dataset         string              `json:"dataset"`
	TotalRecords    int64               `json:"totalRecords"`
	Exists          bool                `json:"exists"`
	SampleSize      int                 `json:"sampleSize,omitempty"`
	AvailableFields []string            `json:"availableFields,omitempty"`
	FieldCount      int                 `json:"fieldCount,omitempty"`
	FieldTypes      map[string][]string `json:"fieldTypes,omitempty"`
}

// HasFieldData reports whether field information was collected.
func (s *FieldStats) HasFieldData() bool {
	return s.FieldTypes != nil
}

// summarize fills in field names and kinds from sample. All tallies live for
// this call only.
func summarize(stats *FieldStats, sample []dataset.Record) {
	if len(sample) == 0 {
		return
	}
	kinds := make(map[string]map[document.Kind]struct{})
	for _, rec := range sample {
		for _, f := range rec.Document.Fields() {
			set, ok := kinds[f.Name]
			if !ok {
				set = make(map[document.Kind]struct{})
				kinds[f.Name] = set
			}
			set[document.Classify(f.Value)] = struct{}{}
		}
	}

	stats.SampleSize = len(sample)
	stats.FieldTypes = make(map[string][]string, len(kinds))
	stats.AvailableFields = make([]string, 0, len(kinds))
	for name, set := range kinds {
		stats.AvailableFields = append(stats.AvailableFields, name)
		names := make([]string, 0, len(set))
		for k := range set {
			names = append(names, k.String())
		}
		slices.Sort(names)
		stats.FieldTypes[name] = names
	}
	slices.Sort(stats.AvailableFields)
	stats.FieldCount = len(stats.AvailableFields)
}
