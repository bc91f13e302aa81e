package dataset

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidName   = errors.New("invalid dataset name")
	ErrEmptyField    = errors.New("field name cannot be empty")
	ErrEmptyDocument = errors.New("record data cannot be null or empty")
	ErrEmptyBatch    = errors.New("records data cannot be null or empty")
)

// ValidationError is a caller-fixable input problem. It is never retried.
type ValidationError struct {
	Op      string
	Dataset string
	Field   string
	Reason  string
	Err     error
}

func (e *ValidationError) Error() string {
	msg := e.Reason
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", describe(e.Op, e.Dataset, e.Field), msg)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// StoreError wraps a persistence or retrieval failure from the record store.
type StoreError struct {
	Op      string
	Dataset string
	Field   string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: store failure: %v", describe(e.Op, e.Dataset, e.Field), e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func describe(op, ds, field string) string {
	parts := []string{op}
	if ds != "" {
		parts = append(parts, fmt.Sprintf("dataset=%q", ds))
	}
	if field != "" {
		parts = append(parts, fmt.Sprintf("field=%q", field))
	}
	return strings.Join(parts, " ")
}
