package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// HandleWebSocket upgrades connections and runs them as Hub clients.
// viewerID names the connecting viewer; originPatterns lists extra hosts
// allowed to connect cross-origin.
func HandleWebSocket(hub *Hub, viewerID func(*http.Request) string, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		id := viewerID(r)
		logger.Debug("websocket connected", "viewer", id)
		NewClient(hub, conn, id).Run(r.Context())
		logger.Debug("websocket disconnected", "viewer", id)
	}
}
