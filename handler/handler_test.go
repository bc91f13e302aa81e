package handler_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stevemurr/dataset-server/dataset"
	"github.com/stevemurr/dataset-server/handler"
	"github.com/stevemurr/dataset-server/query"
	"github.com/stevemurr/dataset-server/store"
)

func setup(t *testing.T, opts ...handler.Option) *httptest.Server {
	t.Helper()
	return setupWithStore(t, store.NewMemoryStore(), opts...)
}

func setupWithStore(t *testing.T, s store.Store, opts ...handler.Option) *httptest.Server {
	t.Helper()
	log := zaptest.NewLogger(t)
	svc := query.NewService(s, query.WithLogger(log))
	opts = append([]handler.Option{handler.WithLogger(log)}, opts...)
	ts := httptest.NewServer(handler.New(svc, opts...))
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.NewDecoder(r).Decode(&v))
	return v
}

func TestRootAndHealth(t *testing.T) {
	ts := setup(t)

	resp := get(t, ts.URL+"/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode(t, resp.Body)["status"])

	resp = get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, ts.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInsertAndGetAll(t *testing.T) {
	ts := setup(t)

	resp := post(t, ts.URL+"/api/dataset/People/record", `{"name":"Ada","age":36}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode(t, resp.Body)
	assert.Equal(t, "Record added successfully", body["message"])
	assert.Equal(t, "People", body["dataset"])
	assert.EqualValues(t, 1, body["recordId"])
	assert.NotEmpty(t, body["timestamp"])

	resp = get(t, ts.URL+"/api/dataset/people/query")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"records":[{"name":"Ada","age":36}]`)
	assert.Contains(t, string(raw), `"operation":"getAll"`)
}

func TestInsertRejectsBadInput(t *testing.T) {
	ts := setup(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"blank dataset", "/api/dataset/%20%20/record", `{"a":1}`},
		{"long dataset", "/api/dataset/" + strings.Repeat("x", 101) + "/record", `{"a":1}`},
		{"null body", "/api/dataset/d/record", `null`},
		{"empty object", "/api/dataset/d/record", `{}`},
		{"array body", "/api/dataset/d/record", `[1,2]`},
		{"malformed", "/api/dataset/d/record", `{"a":`},
		{"empty batch", "/api/dataset/d/records", `[]`},
		{"null batch", "/api/dataset/d/records", `null`},
		{"batch with empty record", "/api/dataset/d/records", `[{"a":1},{}]`},
		{"batch of scalars", "/api/dataset/d/records", `[1]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := post(t, ts.URL+tc.path, tc.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decode(t, resp.Body)
			assert.Equal(t, "Validation failed", body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}

	resp := get(t, ts.URL+"/api/dataset/list")
	assert.EqualValues(t, 0, decode(t, resp.Body)["count"])
}

func TestBodySizeLimit(t *testing.T) {
	ts := setup(t, handler.WithMaxBodyBytes(64))

	small := `{"a":1}`
	large := `{"text":"` + strings.Repeat("x", 100) + `"}`

	resp := post(t, ts.URL+"/api/dataset/d/record", small)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	for _, path := range []string{"/api/dataset/d/record", "/api/dataset/d/records"} {
		body := large
		if strings.HasSuffix(path, "records") {
			body = "[" + large + "]"
		}
		resp := post(t, ts.URL+path, body)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		assert.Contains(t, decode(t, resp.Body)["message"], "could not read body", path)
	}

	resp = get(t, ts.URL+"/api/dataset/d/info")
	assert.EqualValues(t, 1, decode(t, resp.Body)["totalRecords"])
}

func TestBatchInsertAndGroupBy(t *testing.T) {
	ts := setup(t)

	resp := post(t, ts.URL+"/api/dataset/staff/records",
		`[{"dept":"Eng"},{"dept":"Eng"},{"dept":"Mktg"},{"dept":null},{"name":"x"}]`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode(t, resp.Body)
	assert.EqualValues(t, 5, body["count"])
	assert.Len(t, body["recordIds"], 5)

	resp = get(t, ts.URL+"/api/dataset/staff/query?groupBy=dept")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := string(raw)
	assert.Contains(t, out, `"groupedRecords":{"Eng":[{"dept":"Eng"},{"dept":"Eng"}],"Mktg":[{"dept":"Mktg"}],"null":[{"dept":null}]}`)
	assert.Contains(t, out, `"operation":"groupBy"`)
	assert.Contains(t, out, `"field":"dept"`)
}

func TestSortBy(t *testing.T) {
	ts := setup(t)
	post(t, ts.URL+"/api/dataset/p/records", `[{"age":30},{"age":25},{"name":"no age"}]`)

	resp := get(t, ts.URL+"/api/dataset/p/query?sortBy=age")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp.Body)
	assert.Equal(t, "asc", body["order"])
	assert.Equal(t, []any{map[string]any{"age": float64(25)}, map[string]any{"age": float64(30)}}, body["sortedRecords"])

	resp = get(t, ts.URL+"/api/dataset/p/query?sortBy=age&order=DESC")
	body = decode(t, resp.Body)
	assert.Equal(t, "DESC", body["order"])
	assert.Equal(t, []any{map[string]any{"age": float64(30)}, map[string]any{"age": float64(25)}}, body["sortedRecords"])

	resp = get(t, ts.URL+"/api/dataset/p/query?sortBy=missing")
	body = decode(t, resp.Body)
	assert.Equal(t, []any{}, body["sortedRecords"])
}

func TestGroupByTakesPrecedence(t *testing.T) {
	ts := setup(t)
	post(t, ts.URL+"/api/dataset/p/record", `{"a":1}`)

	resp := get(t, ts.URL+"/api/dataset/p/query?groupBy=a&sortBy=a")
	assert.Equal(t, "groupBy", decode(t, resp.Body)["operation"])

	resp = get(t, ts.URL+"/api/dataset/p/query?groupBy=%20&sortBy=a")
	assert.Equal(t, "sortBy", decode(t, resp.Body)["operation"])
}

func TestInfoAndList(t *testing.T) {
	ts := setup(t)

	resp := get(t, ts.URL+"/api/dataset/ghost/info")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp.Body)
	assert.Equal(t, false, body["exists"])
	assert.EqualValues(t, 0, body["totalRecords"])
	assert.NotContains(t, body, "availableFields")

	post(t, ts.URL+"/api/dataset/Mixed/records", `[{"a":1,"b":"x"},{"a":1.5}]`)
	post(t, ts.URL+"/api/dataset/other/record", `{"z":true}`)

	resp = get(t, ts.URL+"/api/dataset/mixed/info")
	body = decode(t, resp.Body)
	assert.Equal(t, "mixed", body["dataset"])
	assert.Equal(t, true, body["exists"])
	assert.EqualValues(t, 2, body["fieldCount"])
	assert.Equal(t, []any{"a", "b"}, body["availableFields"])
	assert.Equal(t, map[string]any{
		"a": []any{"float", "integer"},
		"b": []any{"string"},
	}, body["fieldTypes"])

	resp = get(t, ts.URL+"/api/dataset/list")
	body = decode(t, resp.Body)
	assert.EqualValues(t, 2, body["count"])
	assert.Equal(t, []any{
		map[string]any{"name": "mixed", "recordCount": float64(2)},
		map[string]any{"name": "other", "recordCount": float64(1)},
	}, body["datasets"])
}

type brokenStore struct {
	*store.MemoryStore
}

func (brokenStore) FetchAll(context.Context, dataset.Name) ([]dataset.Record, error) {
	return nil, errors.New("disk on fire")
}

func TestStoreFailureIsServerError(t *testing.T) {
	ts := setupWithStore(t, brokenStore{store.NewMemoryStore()})

	resp := get(t, ts.URL+"/api/dataset/d/query")
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decode(t, resp.Body)
	assert.Equal(t, "Failed to query records", body["error"])
	assert.Contains(t, body["message"], "disk on fire")
}

func TestRequestID(t *testing.T) {
	ts := setup(t)

	resp := get(t, ts.URL+"/health")
	assert.NotEmpty(t, resp.Header.Get(handler.RequestIDHeader))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(handler.RequestIDHeader, "abc-123")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(handler.RequestIDHeader))
}

func TestRateLimit(t *testing.T) {
	ts := setup(t, handler.WithRateLimit(0.001, 1))

	resp := get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	ts := setup(t, handler.WithAllowedOrigins([]string{"https://a.example", "https://b.example"}))

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/dataset/d/record", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://b.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://b.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	log := zaptest.NewLogger(t)
	svc := query.NewService(store.NewMemoryStore(), query.WithMetrics(query.NewMetrics(reg)))
	ts := httptest.NewServer(handler.New(svc, handler.WithLogger(log), handler.WithGatherer(reg)))
	defer ts.Close()

	post(t, ts.URL+"/api/dataset/d/record", `{"a":1}`)

	resp := get(t, ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `dataset_operations_total{operation="insert",outcome="ok"} 1`)
}
