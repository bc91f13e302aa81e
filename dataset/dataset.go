// Package dataset holds the identity types shared by the store and the query
// engine: canonical dataset names, persisted records, sort directions and the
// error taxonomy.
package dataset

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/stevemurr/dataset-server/document"
)

// MaxNameLength is the longest accepted dataset name, in characters, after
// trimming.
const MaxNameLength = 100

// Name is a canonical dataset name. Only Canonicalize produces one from user
// input; everything downstream trusts it as is.
type Name string

func (n Name) String() string { return string(n) }

// Canonicalize trims and case-folds a user-supplied dataset name.
func Canonicalize(raw string) (Name, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &ValidationError{Op: "canonicalize", Dataset: raw, Err: ErrInvalidName, Reason: "dataset name cannot be empty"}
	}
	if utf8.RuneCountInString(trimmed) > MaxNameLength {
		return "", &ValidationError{Op: "canonicalize", Dataset: raw, Err: ErrInvalidName, Reason: "dataset name must be at most 100 characters"}
	}
	// A Caser is stateful, so one is built per call.
	return Name(cases.Fold().String(trimmed)), nil
}

// Record is a persisted document plus its identity metadata.
type Record struct {
	ID        int64             `json:"id"`
	Dataset   Name              `json:"dataset"`
	Document  document.Document `json:"document"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Documents strips identity metadata from records, keeping order.
func Documents(records []Record) []document.Document {
	docs := make([]document.Document, len(records))
	for i, r := range records {
		docs[i] = r.Document
	}
	return docs
}

// Direction is a sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// ParseDirection maps a request token to a Direction. "desc" and "descending"
// in any case select Descending; anything else is Ascending.
func ParseDirection(token string) Direction {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "desc", "descending":
		return Descending
	default:
		return Ascending
	}
}
