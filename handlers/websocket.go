package handlers

import (
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"

	ws "metrowatch-listener/websocket"
)

// WebSocket upgrader
var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for now
		return true
	},
}

// ListenReports handles GET /api/v3/reports/listen: upgrades to a WebSocket
// session that receives the snapshot, live change events and viewport
// commands, and accepts search messages.
func (h *Handlers) ListenReports(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("failed to upgrade connection to WebSocket: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn, h.geocoder, h.qualifier, h.searchDebounce)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()

	client.SendSnapshot(h.store.Snapshot(), h.connectivity())
}
