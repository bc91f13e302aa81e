package query

import (
	"slices"

	"github.com/stevemurr/dataset-server/dataset"
	"github.com/stevemurr/dataset-server/document"
)

// SortBy orders documents by field. Documents where the field is absent, null
// or not orderable (objects, arrays) are dropped rather than placed at either
// end. The sort is stable in both directions, so ties keep input order.
func SortBy(docs []document.Document, field string, dir dataset.Direction) []document.Document {
	type keyed struct {
		doc document.Document
		key document.Value
	}
	kept := make([]keyed, 0, len(docs))
	for _, doc := range docs {
		if !document.IsPresentForOrdering(doc, field) {
			continue
		}
		v, _ := document.Get(doc, field)
		if !document.Orderable(v) {
			continue
		}
		kept = append(kept, keyed{doc: doc, key: v})
	}

	slices.SortStableFunc(kept, func(a, b keyed) int {
		c := document.Compare(a.key, b.key)
		if dir == dataset.Descending {
			return -c
		}
		return c
	})

	out := make([]document.Document, len(kept))
	for i, k := range kept {
		out[i] = k.doc
	}
	return out
}
