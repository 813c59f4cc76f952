package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unklstewy/flight-playback/pkg/playback"
	"github.com/unklstewy/flight-playback/pkg/trajectory"
)

// headerPlaybackTime carries the instant, in Unix ms, a positions
// response was computed for.
const headerPlaybackTime = "X-Playback-Time"

// TimeRangeResponse is the body of GET /api/v1/time-range.
type TimeRangeResponse struct {
	MinTime     int64 `json:"minTime"`
	MaxTime     int64 `json:"maxTime"`
	TenMinSteps int   `json:"tenMinSteps"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
	})
}

func (s *Server) handleGetTimeRange(w http.ResponseWriter, r *http.Request) {
	tr, err := s.engine.ComputeTimeRange()
	if errors.Is(err, playback.ErrEmptyDataset) {
		respondError(w, http.StatusNotFound, "No flight data available")
		return
	}
	if err != nil {
		s.log.Error("Failed to compute time range", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "Failed to compute time range")
		return
	}

	respondJSON(w, http.StatusOK, TimeRangeResponse{
		MinTime:     tr.Min.UnixMilli(),
		MaxTime:     tr.Max.UnixMilli(),
		TenMinSteps: tr.TenMinSteps,
	})
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	q, err := parsePositionsQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	frame, ok := s.engine.ComputeFrame(q)
	if ok {
		w.Header().Set(headerPlaybackTime, strconv.FormatInt(frame.Instant.UnixMilli(), 10))
	}
	respondJSON(w, http.StatusOK, playback.FeatureCollection(frame.Positions))
}

// parsePositionsQuery reads the optional step and timeMs parameters.
// Both are validated even though step wins when both are present.
func parsePositionsQuery(r *http.Request) (playback.Query, error) {
	var q playback.Query

	step, ok, err := intParam(r, "step")
	if err != nil {
		return q, err
	}
	if ok {
		n := int(step)
		q.Step = &n
	}

	ms, ok, err := intParam(r, "timeMs")
	if err != nil {
		return q, err
	}
	if ok {
		t := time.UnixMilli(ms).UTC()
		q.Time = &t
	}
	return q, nil
}

func (s *Server) handleGetFlights(w http.ResponseWriter, r *http.Request) {
	flights := s.dataset.Snapshot().Flights

	features := make([]trajectory.Feature, len(flights))
	for i, f := range flights {
		features[i] = f.Feature()
	}
	respondJSON(w, http.StatusOK, trajectory.NewFeatureCollection(features))
}

func (s *Server) handleGetFlight(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "flightNumber")

	// Flight numbers are not unique across a day; the first record wins
	for _, f := range s.dataset.Snapshot().Flights {
		if f.FlightNumber == number {
			respondJSON(w, http.StatusOK, f.Feature())
			return
		}
	}
	respondError(w, http.StatusNotFound, "Flight not found")
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	snap, err := s.dataset.Reload(r.Context())
	if err != nil {
		s.log.Error("Dataset reload failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "Dataset reload failed")
		return
	}

	s.log.Info("Dataset reloaded",
		slog.String("source", snap.Source),
		slog.Int("flights", snap.Len()),
		slog.Uint64("generation", snap.Generation))

	respondJSON(w, http.StatusOK, statusBody(snap))
}

func (s *Server) handleGetSystemStatus(w http.ResponseWriter, r *http.Request) {
	body := statusBody(s.dataset.Snapshot())
	body["uptimeSeconds"] = int64(time.Since(s.started).Seconds())
	respondJSON(w, http.StatusOK, body)
}

func statusBody(snap *trajectory.Snapshot) map[string]interface{} {
	body := map[string]interface{}{
		"flights":    snap.Len(),
		"scheduled":  snap.Scheduled(),
		"generation": snap.Generation,
		"source":     snap.Source,
	}
	if !snap.LoadedAt.IsZero() {
		body["loadedAt"] = snap.LoadedAt.UTC().Format(time.RFC3339)
	}
	return body
}

// intParam parses an optional integer query parameter.
func intParam(r *http.Request, name string) (value int64, ok bool, err error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	value, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an integer", name)
	}
	return value, true, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
