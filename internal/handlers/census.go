package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"animalcensus/internal/logger"
	"animalcensus/internal/models"
	"animalcensus/internal/repository"
	"animalcensus/internal/services/counting"
)

const (
	defaultHistoryMinutes = 60
	maxHistoryMinutes     = 24 * 60
)

type SnapshotProvider interface {
	Snapshot() counting.Snapshot
}

type TotalsResponse struct {
	SessionID   string               `json:"session_id"`
	State       string               `json:"state"`
	Frames      uint64               `json:"frames_processed"`
	Total       int                  `json:"total"`
	Totals      models.SessionTotals `json:"totals"`
	MaxPerFrame map[string]int       `json:"max_per_frame"`
	LastFrame   models.FrameCount    `json:"last_frame"`
}

type HistoryResponse struct {
	From   time.Time               `json:"from"`
	To     time.Time               `json:"to"`
	Totals map[string]int          `json:"totals"`
	Points []models.TelemetryPoint `json:"points"`
}

// TotalsHandler serves the live session totals.
func TotalsHandler(counts SnapshotProvider, sessionID string, state func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		snap := counts.Snapshot()
		writeJSON(w, TotalsResponse{
			SessionID:   sessionID,
			State:       state(),
			Frames:      snap.Frames,
			Total:       snap.Totals.Sum(),
			Totals:      snap.Totals,
			MaxPerFrame: snap.MaxPerFrame,
			LastFrame:   snap.LastFrame,
		})
	}
}

// HistoryHandler serves persisted telemetry for the last ?minutes=N minutes.
func HistoryHandler(querier repository.TelemetryQuerier, measurement string, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if querier == nil {
			http.Error(w, "History requires the sqlite store", http.StatusNotImplemented)
			return
		}

		minutes := defaultHistoryMinutes
		if v := r.URL.Query().Get("minutes"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > maxHistoryMinutes {
				http.Error(w, "minutes must be between 1 and 1440", http.StatusBadRequest)
				return
			}
			minutes = n
		}

		to := time.Now()
		from := to.Add(-time.Duration(minutes) * time.Minute)

		points, err := querier.Range(r.Context(), measurement, from, to)
		if err != nil {
			logger.Error("History query failed: %v", err)
			http.Error(w, "Unable to read history", http.StatusInternalServerError)
			return
		}
		totals, err := querier.ClassTotals(r.Context(), measurement, from, to)
		if err != nil {
			logger.Error("History totals query failed: %v", err)
			http.Error(w, "Unable to read history", http.StatusInternalServerError)
			return
		}

		if points == nil {
			points = []models.TelemetryPoint{}
		}
		writeJSON(w, HistoryResponse{From: from, To: to, Totals: totals, Points: points})
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
