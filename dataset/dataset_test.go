package dataset_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/dataset-server/dataset"
)

func TestCanonicalize(t *testing.T) {
	for _, raw := range []string{"Sales", " sales ", "SALES", "\tsAlEs\n"} {
		got, err := dataset.Canonicalize(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, dataset.Name("sales"), got, raw)
	}
}

func TestCanonicalizeRejects(t *testing.T) {
	tests := []string{"", "   ", strings.Repeat("x", 101)}
	for _, raw := range tests {
		_, err := dataset.Canonicalize(raw)
		require.Error(t, err)
		assert.ErrorIs(t, err, dataset.ErrInvalidName)
		assert.True(t, dataset.IsValidation(err))
	}
}

func TestCanonicalizeLengthCountsCharacters(t *testing.T) {
	_, err := dataset.Canonicalize(strings.Repeat("x", 100))
	assert.NoError(t, err)

	// 100 two-byte characters is still within the limit.
	_, err = dataset.Canonicalize(strings.Repeat("é", 100))
	assert.NoError(t, err)

	// Surrounding whitespace does not count.
	_, err = dataset.Canonicalize("  " + strings.Repeat("x", 100) + "  ")
	assert.NoError(t, err)
}

func TestParseDirection(t *testing.T) {
	for _, tok := range []string{"DESC", "desc", "descending", "Descending", " desc "} {
		assert.Equal(t, dataset.Descending, dataset.ParseDirection(tok), tok)
	}
	for _, tok := range []string{"", "asc", "ASC", "up", "dsc"} {
		assert.Equal(t, dataset.Ascending, dataset.ParseDirection(tok), tok)
	}
}

func TestErrorsCarryContext(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("wrapped: %w", &dataset.StoreError{Op: "insert", Dataset: "sales", Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.False(t, dataset.IsValidation(err))
	assert.Contains(t, err.Error(), `dataset="sales"`)
	assert.Contains(t, err.Error(), "insert")

	verr := &dataset.ValidationError{Op: "groupBy", Dataset: "sales", Err: dataset.ErrEmptyField}
	assert.Contains(t, verr.Error(), "field name cannot be empty")
	assert.ErrorIs(t, verr, dataset.ErrEmptyField)
}
