// Package query implements the schemaless query engine: grouping, sorting and
// statistics over dataset documents, behind the Service facade.
package query

import (
	"bytes"

	"github.com/goccy/go-json"

	"github.com/stevemurr/dataset-server/document"
)

// Group is one bucket of a GroupResult.
type Group struct {
	Key       string
	Documents []document.Document
}

// GroupResult maps group keys to documents. Keys iterate in the order they
// were first seen.
type GroupResult struct {
	groups []Group
	index  map[string]int
}

func (r *GroupResult) add(key string, doc document.Document) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	i, ok := r.index[key]
	if !ok {
		i = len(r.groups)
		r.index[key] = i
		r.groups = append(r.groups, Group{Key: key})
	}
	r.groups[i].Documents = append(r.groups[i].Documents, doc)
}

func (r *GroupResult) Len() int { return len(r.groups) }

// Keys returns the group keys in first-seen order.
func (r *GroupResult) Keys() []string {
	keys := make([]string, len(r.groups))
	for i, g := range r.groups {
		keys[i] = g.Key
	}
	return keys
}

// Get returns the documents bucketed under key.
func (r *GroupResult) Get(key string) ([]document.Document, bool) {
	i, ok := r.index[key]
	if !ok {
		return nil, false
	}
	return r.groups[i].Documents, true
}

// Groups returns the buckets in first-seen order.
func (r *GroupResult) Groups() []Group {
	out := make([]Group, len(r.groups))
	copy(out, r.groups)
	return out
}

// MarshalJSON writes an object whose keys keep first-seen order.
func (r *GroupResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, g := range r.groups {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(g.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		docs, err := json.Marshal(g.Documents)
		if err != nil {
			return nil, err
		}
		buf.Write(docs)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// GroupBy buckets documents by the string form of field. A document holding
// null for the field goes to the "null" group; a document without the field
// is left out.
func GroupBy(docs []document.Document, field string) *GroupResult {
	result := &GroupResult{index: make(map[string]int)}
	for _, doc := range docs {
		if !document.IsPresentForGrouping(doc, field) {
			continue
		}
		v, _ := document.Get(doc, field)
		result.add(document.GroupKey(v), doc)
	}
	return result
}
