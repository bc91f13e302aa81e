package query_test

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/dataset-server/dataset"
	"github.com/stevemurr/dataset-server/document"
	"github.com/stevemurr/dataset-server/query"
)

func docs(t *testing.T, raw ...string) []document.Document {
	t.Helper()
	out := make([]document.Document, len(raw))
	for i, r := range raw {
		d, err := document.Parse([]byte(r))
		require.NoError(t, err)
		out[i] = d
	}
	return out
}

func field(t *testing.T, d document.Document, name string) string {
	t.Helper()
	v, ok := d.Get(name)
	require.True(t, ok, "missing %s", name)
	return document.GroupKey(v)
}

func TestGroupByFirstSeenOrder(t *testing.T) {
	in := docs(t, `{"dept":"Eng"}`, `{"dept":"Eng"}`, `{"dept":"Mktg"}`)
	res := query.GroupBy(in, "dept")

	assert.Equal(t, []string{"Eng", "Mktg"}, res.Keys())
	eng, _ := res.Get("Eng")
	mktg, _ := res.Get("Mktg")
	assert.Len(t, eng, 2)
	assert.Len(t, mktg, 1)
}

func TestGroupByNullAndAbsent(t *testing.T) {
	in := docs(t, `{"dept":null}`, `{"name":"x"}`)
	res := query.GroupBy(in, "dept")

	assert.Equal(t, []string{"null"}, res.Keys())
	group, ok := res.Get("null")
	require.True(t, ok)
	assert.Len(t, group, 1)
}

func TestGroupByKeysAndOrderWithinGroup(t *testing.T) {
	in := docs(t,
		`{"id":1,"v":10}`,
		`{"id":2,"v":true}`,
		`{"id":3,"v":10}`,
		`{"id":4,"v":2.5}`,
		`{"id":5,"v":"10"}`,
		`{"id":6,"v":[1,2]}`,
	)
	res := query.GroupBy(in, "v")

	assert.Equal(t, []string{"10", "true", "2.5", "[1,2]"}, res.Keys())
	tens, _ := res.Get("10")
	require.Len(t, tens, 3)
	assert.Equal(t, "1", field(t, tens[0], "id"))
	assert.Equal(t, "3", field(t, tens[1], "id"))
	assert.Equal(t, "5", field(t, tens[2], "id"))
}

func TestGroupByEmpty(t *testing.T) {
	res := query.GroupBy(nil, "dept")
	assert.Equal(t, 0, res.Len())

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))
}

func TestGroupResultMarshalKeepsOrder(t *testing.T) {
	in := docs(t, `{"k":"z","n":1}`, `{"k":"a","n":2}`, `{"k":"z","n":3}`)
	b, err := json.Marshal(query.GroupBy(in, "k"))
	require.NoError(t, err)
	assert.Equal(t, `{"z":[{"k":"z","n":1},{"k":"z","n":3}],"a":[{"k":"a","n":2}]}`, string(b))
}

func TestSortByExcludesMissing(t *testing.T) {
	in := docs(t, `{"age":30}`, `{"age":25}`, `{"name":"no age"}`)
	out := query.SortBy(in, "age", dataset.Ascending)

	require.Len(t, out, 2)
	assert.Equal(t, "25", field(t, out[0], "age"))
	assert.Equal(t, "30", field(t, out[1], "age"))
}

func TestSortByDescendingTokens(t *testing.T) {
	in := docs(t, `{"age":1}`, `{"age":3}`, `{"age":2}`)
	for _, tok := range []string{"DESC", "desc", "descending"} {
		out := query.SortBy(in, "age", dataset.ParseDirection(tok))
		require.Len(t, out, 3)
		assert.Equal(t, "3", field(t, out[0], "age"), tok)
		assert.Equal(t, "1", field(t, out[2], "age"), tok)
	}

	out := query.SortBy(in, "age", dataset.ParseDirection("sideways"))
	assert.Equal(t, "1", field(t, out[0], "age"))
}

func TestSortByStableAndTypeAware(t *testing.T) {
	in := docs(t,
		`{"id":"a","v":"b"}`,
		`{"id":"b","v":10}`,
		`{"id":"c","v":null}`,
		`{"id":"d","v":9.5}`,
		`{"id":"e","v":{"x":1}}`,
		`{"id":"f","v":10}`,
		`{"id":"g","v":"B"}`,
		`{"id":"h","v":false}`,
		`{"id":"i","v":[]}`,
	)
	ids := func(ds []document.Document) []string {
		out := make([]string, len(ds))
		for i, d := range ds {
			out[i] = field(t, d, "id")
		}
		return out
	}

	assert.Equal(t, []string{"d", "b", "f", "g", "a", "h"}, ids(query.SortBy(in, "v", dataset.Ascending)))
	assert.Equal(t, []string{"h", "a", "g", "b", "f", "d"}, ids(query.SortBy(in, "v", dataset.Descending)))
}

func TestSortByEmpty(t *testing.T) {
	assert.Empty(t, query.SortBy(nil, "x", dataset.Ascending))
}
