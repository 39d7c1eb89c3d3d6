package handlers

import (
	"net/http"
	"time"

	"animalcensus/internal/logger"
	"animalcensus/internal/services/websocket"

	gorilla "github.com/gorilla/websocket"
)

const viewerReadTimeout = 60 * time.Second

var Upgrader = gorilla.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ViewWebsocketHandler registers the connection as a live viewer. Viewers
// only receive; anything they send is discarded.
func ViewWebsocketHandler(hub *websocket.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warning("WebSocket upgrade error: %v", err)
			return
		}
		connection.SetReadLimit(512)
		connection.SetReadDeadline(time.Now().Add(viewerReadTimeout))
		connection.SetPongHandler(func(appData string) error {
			connection.SetReadDeadline(time.Now().Add(viewerReadTimeout))
			return nil
		})
		defer connection.Close()

		hub.Register(connection)
		defer hub.Unregister(connection)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				return
			}
			connection.SetReadDeadline(time.Now().Add(viewerReadTimeout))
		}
	}
}
