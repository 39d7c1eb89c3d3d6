package routes

import (
	"net/http"

	"animalcensus/internal/handlers"
	"animalcensus/internal/logger"
	"animalcensus/internal/middleware"
	"animalcensus/internal/repository"
	"animalcensus/internal/services/websocket"
)

// Dependencies are the services exposed over HTTP. History and Metrics may be
// nil.
type Dependencies struct {
	Counts      handlers.SnapshotProvider
	State       func() string
	SessionID   string
	Hub         *websocket.HubService
	History     repository.TelemetryQuerier
	Measurement string
	Metrics     http.Handler
	LogDir      string
	Logger      *logger.Logger
}

// SetupRoutes registers the viewer, API, metrics and log endpoints and wraps
// the mux with request logging.
func SetupRoutes(deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("/api/view", handlers.ViewWebsocketHandler(deps.Hub, deps.Logger))
	mux.HandleFunc("/api/totals", handlers.TotalsHandler(deps.Counts, deps.SessionID, deps.State))
	mux.HandleFunc("/api/history", handlers.HistoryHandler(deps.History, deps.Measurement, deps.Logger))

	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}

	// Log endpoints
	mux.HandleFunc("/logs/info", handlers.ShowInfoLogsHandler(deps.LogDir))
	mux.HandleFunc("/logs/warning", handlers.ShowWarningLogsHandler(deps.LogDir))
	mux.HandleFunc("/logs/error", handlers.ShowErrorLogsHandler(deps.LogDir))

	mux.HandleFunc("/logs/info/clear", handlers.ClearLogsHandler(deps.Logger, "info.log"))
	mux.HandleFunc("/logs/warning/clear", handlers.ClearLogsHandler(deps.Logger, "warning.log"))
	mux.HandleFunc("/logs/error/clear", handlers.ClearLogsHandler(deps.Logger, "error.log"))

	return middleware.RequestLogger(deps.Logger, mux)
}
