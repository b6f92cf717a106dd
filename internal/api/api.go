// Package api exposes the job runner over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goradar/internal/job"
	"github.com/hyperifyio/goradar/internal/scraper"
)

// DefaultListLimit caps GET /v1/jobs when no limit is given.
const DefaultListLimit = 50

// Handler serves the job API.
type Handler struct {
	runner *job.Runner
}

// NewHandler returns a handler backed by runner.
func NewHandler(runner *job.Runner) *Handler {
	return &Handler{runner: runner}
}

// Router builds the route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/jobs", h.startJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs", h.listJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/batch", h.startBatch).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}", h.getJob).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/results", h.jobResults).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/cancel", h.cancelJob).Methods(http.MethodPost)
	api.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
	api.HandleFunc("/sync", h.sync).Methods(http.MethodPost)
	api.HandleFunc("/extractors", h.extractors).Methods(http.MethodGet)
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.code).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, job.ErrInvalidConfig):
		code = http.StatusBadRequest
	case errors.Is(err, job.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, job.ErrNotRunning):
		code = http.StatusConflict
	case errors.Is(err, job.ErrNoSink):
		code = http.StatusServiceUnavailable
	}
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

func (h *Handler) startJob(w http.ResponseWriter, r *http.Request) {
	var req job.Request
	if !decode(w, r, &req) {
		return
	}
	j, err := h.runner.Start(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, j)
}

// BatchRequest is the body of POST /v1/jobs/batch.
type BatchRequest struct {
	Jobs          []job.Request `json:"jobs"`
	MaxConcurrent int           `json:"max_concurrent,omitempty"`
}

func (h *Handler) startBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Jobs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "jobs must not be empty"})
		return
	}
	jobs, err := h.runner.StartBatch(r.Context(), req.Jobs, req.MaxConcurrent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobs)
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := job.Filter{Limit: DefaultListLimit}
	if s := q.Get("status"); s != "" {
		st, err := job.ParseStatus(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		f.Status = st
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		f.Limit = n
	}
	jobs, err := h.runner.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []job.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.runner.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *Handler) jobResults(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	j, err := h.runner.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	recs, err := h.runner.Results(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":   j.ID,
		"kind":    j.Kind,
		"status":  j.Status,
		"count":   len(recs),
		"results": recs,
	})
}

func (h *Handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.runner.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, j)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.runner.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SyncRequest is the body of POST /v1/sync. Empty ids sync every completed
// job.
type SyncRequest struct {
	JobIDs []string `json:"jobIds,omitempty"`
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	sum, err := h.runner.Sync(r.Context(), req.JobIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) extractors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, scraper.Catalog())
}
