package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/vantaaweather/internal/store"
)

const (
	defaultHistoryLimit = 24
	maxHistoryLimit     = 500
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleAPIWeather(w http.ResponseWriter, r *http.Request) {
	snap, err := s.weather.Snapshot(r.Context())
	if err != nil {
		log.Printf("api: weather: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAPIWeatherHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "history archive disabled")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	recs, err := s.store.RecentSnapshots(limit)
	if err != nil {
		log.Printf("api: history: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []store.SnapshotRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

const healthErrorLimit = 5

type ingestError struct {
	StartedAt  time.Time `json:"started_at"`
	HTTPStatus *int64    `json:"http_status"`
	Error      string    `json:"error"`
}

type healthResponse struct {
	Status          string        `json:"status"`
	CacheAgeSeconds *float64      `json:"cache_age_seconds"`
	IngestRuns24h   *int          `json:"ingest_runs_24h,omitempty"`
	IngestFails24h  *int          `json:"ingest_failures_24h,omitempty"`
	LastSuccess     *time.Time    `json:"last_success,omitempty"`
	RecentErrors    []ingestError `json:"recent_errors,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	if age, ok := s.weather.CacheAge(); ok {
		secs := age.Seconds()
		resp.CacheAgeSeconds = &secs
	}

	if s.store != nil {
		stats, err := s.store.GetIngestStats(time.Now().Add(-24 * time.Hour))
		if err != nil {
			log.Printf("api: health: ingest stats: %v", err)
		} else {
			resp.IngestRuns24h = &stats.TotalRuns
			resp.IngestFails24h = &stats.FailedRuns
			if !stats.LastSuccess.IsZero() {
				resp.LastSuccess = &stats.LastSuccess
			}
		}

		runs, err := s.store.GetRecentIngestErrors(healthErrorLimit)
		if err != nil {
			log.Printf("api: health: recent errors: %v", err)
		}
		for _, run := range runs {
			e := ingestError{StartedAt: run.StartedAt, Error: run.ErrorMessage.String}
			if run.HTTPStatus.Valid {
				e.HTTPStatus = &run.HTTPStatus.Int64
			}
			resp.RecentErrors = append(resp.RecentErrors, e)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
