// Package handler provides the HTTP gateway for the dataset server.
package handler

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stevemurr/dataset-server/dataset"
	"github.com/stevemurr/dataset-server/document"
	"github.com/stevemurr/dataset-server/query"
)

// DefaultMaxBodyBytes caps request bodies on the insert routes unless
// WithMaxBodyBytes says otherwise.
const DefaultMaxBodyBytes int64 = 32 << 20

// Handler holds the server dependencies and registers routes.
type Handler struct {
	svc      *query.Service
	log      *zap.Logger
	gatherer prometheus.Gatherer
	origins  []string
	limiter  *rateLimiter
	maxBody  int64
	mux      *http.ServeMux
	chain    http.Handler
}

type Option func(*Handler)

func WithLogger(log *zap.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithGatherer exposes the metrics collected by g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) { h.gatherer = g }
}

// WithAllowedOrigins sets the CORS origins. A single "*" allows every origin.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) { h.origins = origins }
}

// WithRateLimit limits each client address to perSecond requests with the
// given burst. A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(h *Handler) {
		if perSecond > 0 {
			h.limiter = newRateLimiter(perSecond, burst)
		}
	}
}

// WithMaxBodyBytes caps the size of insert request bodies. Larger bodies are
// rejected with 400. A non-positive n keeps the default.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// New creates a Handler and wires up all routes.
func New(svc *query.Service, opts ...Option) *Handler {
	h := &Handler{
		svc:     svc,
		log:     zap.NewNop(),
		origins: []string{"*"},
		maxBody: DefaultMaxBodyBytes,
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.routes()

	var next http.Handler = h.mux
	next = corsMiddleware(next, h.origins)
	if h.limiter != nil {
		next = h.limiter.middleware(next)
	}
	next = accessLogMiddleware(next, h.log)
	h.chain = requestIDMiddleware(next)
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.chain.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	// Health / status
	h.mux.HandleFunc("GET /{$}", h.root)
	h.mux.HandleFunc("GET /health", h.health)
	if h.gatherer != nil {
		h.mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	h.mux.HandleFunc("GET /api/dataset/list", h.listDatasets)
	h.mux.HandleFunc("POST /api/dataset/{datasetName}/record", h.insertRecord)
	h.mux.HandleFunc("POST /api/dataset/{datasetName}/records", h.insertRecords)
	h.mux.HandleFunc("GET /api/dataset/{datasetName}/query", h.queryRecords)
	h.mux.HandleFunc("GET /api/dataset/{datasetName}/info", h.datasetInfo)
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps validation failures to 400 and everything else to 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, summary string, err error) {
	status := http.StatusInternalServerError
	if dataset.IsValidation(err) {
		status = http.StatusBadRequest
		summary = "Validation failed"
	}
	h.log.Error(summary,
		zap.String("requestId", requestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err))
	writeJSON(w, status, errorBody{Error: summary, Message: err.Error()})
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "Validation failed", Message: msg})
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
}

// ---------- status ----------

func (h *Handler) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "dataset-server",
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ---------- dataset endpoints ----------

type insertResponse struct {
	Message   string    `json:"message"`
	Dataset   string    `json:"dataset"`
	RecordID  int64     `json:"recordId"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) insertRecord(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("datasetName")
	body, err := h.readBody(w, r)
	if err != nil {
		h.badRequest(w, "could not read body: "+err.Error())
		return
	}
	doc, err := document.Parse(body)
	if err != nil {
		h.badRequest(w, "invalid JSON: "+err.Error())
		return
	}

	rec, err := h.svc.Insert(r.Context(), name, doc)
	if err != nil {
		h.writeError(w, r, "Failed to insert record", err)
		return
	}
	writeJSON(w, http.StatusCreated, insertResponse{
		Message:   "Record added successfully",
		Dataset:   name,
		RecordID:  rec.ID,
		Timestamp: rec.CreatedAt,
	})
}

type batchResponse struct {
	Message   string  `json:"message"`
	Dataset   string  `json:"dataset"`
	Count     int     `json:"count"`
	RecordIDs []int64 `json:"recordIds"`
}

func (h *Handler) insertRecords(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("datasetName")
	body, err := h.readBody(w, r)
	if err != nil {
		h.badRequest(w, "could not read body: "+err.Error())
		return
	}
	var docs []document.Document
	if err := json.Unmarshal(body, &docs); err != nil {
		h.badRequest(w, "invalid JSON: expected an array of objects: "+err.Error())
		return
	}

	recs, err := h.svc.InsertBatch(r.Context(), name, docs)
	if err != nil {
		h.writeError(w, r, "Failed to insert records", err)
		return
	}
	ids := make([]int64, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	writeJSON(w, http.StatusCreated, batchResponse{
		Message:   fmt.Sprintf("%d records added successfully", len(recs)),
		Dataset:   name,
		Count:     len(recs),
		RecordIDs: ids,
	})
}

// queryRecords runs groupBy when given, else sortBy, else returns every
// record.
func (h *Handler) queryRecords(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("datasetName")
	q := r.URL.Query()
	groupBy := q.Get("groupBy")
	sortBy := q.Get("sortBy")
	order := q.Get("order")
	if order == "" {
		order = "asc"
	}

	resp := map[string]any{"dataset": name}
	switch {
	case strings.TrimSpace(groupBy) != "":
		groups, err := h.svc.GroupBy(r.Context(), name, groupBy)
		if err != nil {
			h.writeError(w, r, "Failed to query records", err)
			return
		}
		resp["groupedRecords"] = groups
		resp["operation"] = "groupBy"
		resp["field"] = groupBy

	case strings.TrimSpace(sortBy) != "":
		docs, err := h.svc.SortBy(r.Context(), name, sortBy, dataset.ParseDirection(order))
		if err != nil {
			h.writeError(w, r, "Failed to query records", err)
			return
		}
		resp["sortedRecords"] = nonNil(docs)
		resp["operation"] = "sortBy"
		resp["field"] = sortBy
		resp["order"] = order

	default:
		docs, err := h.svc.GetAll(r.Context(), name)
		if err != nil {
			h.writeError(w, r, "Failed to query records", err)
			return
		}
		resp["records"] = nonNil(docs)
		resp["operation"] = "getAll"
	}
	writeJSON(w, http.StatusOK, resp)
}

// nonNil keeps empty results encoded as [] rather than null.
func nonNil(docs []document.Document) []document.Document {
	if docs == nil {
		return []document.Document{}
	}
	return docs
}

func (h *Handler) datasetInfo(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context(), r.PathValue("datasetName"))
	if err != nil {
		h.writeError(w, r, "Failed to get dataset info", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type listResponse struct {
	Datasets []query.DatasetInfo `json:"datasets"`
	Count    int                 `json:"count"`
}

func (h *Handler) listDatasets(w http.ResponseWriter, r *http.Request) {
	infos, err := h.svc.ListDatasets(r.Context())
	if err != nil {
		h.writeError(w, r, "Failed to get datasets", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Datasets: infos, Count: len(infos)})
}
