package remote

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rtm0/ccicube/internal/cube"
	"github.com/rtm0/ccicube/internal/metrics"
	"github.com/rtm0/ccicube/internal/schema"
	"github.com/rtm0/ccicube/internal/store"
)

// Error codes of the catalog API.
const (
	codeBadRequest    = "bad_request"
	codeInvalidParams = "invalid_params"
	codeNotFound      = "not_found"
	codeInternal      = "internal_error"
)

// maxParamsBytes limits the size of an open-parameters request body.
const maxParamsBytes = 1 << 20

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler serves the catalog API for a DataStore.
type Handler struct {
	logger  *slog.Logger
	store   store.DataStore
	metrics *metrics.Metrics
	mux     *http.ServeMux
}

// NewHandler creates the API handler for st.
func NewHandler(logger *slog.Logger, st store.DataStore, m *metrics.Metrics) *Handler {
	h := &Handler{logger: logger, store: st, metrics: m, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /healthz", h.instrument("healthz", h.handleHealth))
	h.mux.HandleFunc("GET /datasets", h.instrument("list", h.handleList))
	h.mux.HandleFunc("GET /datasets/search", h.instrument("search", h.handleSearch))
	h.mux.HandleFunc("GET /datasets/{id}", h.instrument("describe", h.handleDescribe))
	h.mux.HandleFunc("GET /datasets/{id}/schema", h.instrument("schema", h.handleSchema))
	h.mux.HandleFunc("POST /datasets/{id}/data", h.instrument("data", h.handleData))
	h.mux.Handle("GET /metrics", m.Handler())
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "store": h.store.ID()})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.ListDataIDs(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	refs, err := h.store.SearchData(r.Context(), store.Filter{Variable: q.Get("variable"), ECV: q.Get("ecv")})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if refs == nil {
		refs = []store.DataRef{}
	}
	writeJSON(w, http.StatusOK, refs)
}

func (h *Handler) handleDescribe(w http.ResponseWriter, r *http.Request) {
	d, err := h.store.DescribeData(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) handleSchema(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.GetOpenDataParamsSchema(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) handleData(w http.ResponseWriter, r *http.Request) {
	params := schema.Params{}
	body := http.MaxBytesReader(w, r.Body, maxParamsBytes)
	if err := json.NewDecoder(body).Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse{Code: codeBadRequest, Message: "body must be a JSON object: " + err.Error()})
		return
	}
	ds, err := h.store.OpenData(r.Context(), r.PathValue("id"), params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	dir, err := os.MkdirTemp("", "ccicube-serve-")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "data.nc")
	if err := cube.Write(path, ds); err != nil {
		h.writeError(w, r, err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", netcdfContentType)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Error("Failed to send dataset", "dataID", r.PathValue("id"), "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, schema.ErrInvalidParams) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: codeInvalidParams, Message: err.Error()})
		return
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, cube.ErrEmptySelection), errors.Is(err, cube.ErrUnknownVariable):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, errorResponse{Code: codeForStatus(status), Message: err.Error()})
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusNotFound:
		return codeNotFound
	case status >= http.StatusInternalServerError:
		return codeInternal
	}
	return codeBadRequest
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		h.metrics.ObserveHTTP(route, rec.status, time.Since(start))
		h.logger.Debug("Served request", "route", route, "path", r.URL.Path,
			"status", rec.status, "requestID", r.Header.Get("X-Request-ID"), "in", time.Since(start))
	}
}
