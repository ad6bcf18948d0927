package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"
	"github.com/dukerupert/loyalty/internal/auth"
)

// HandleWebSocket returns an HTTP handler that upgrades connections to WebSocket
// and subscribes them to the authenticated merchant's feed.
func HandleWebSocket(hub *Hub, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		merchantID := auth.MerchantID(r.Context())
		if merchantID == 0 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			hub.logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, merchantID)
		client.Run(r.Context())
	}
}
