package hub

import (
	"net/http"

	"fleetvoice-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser dashboards connect cross-origin; auth happens at the route
	// middleware, not via origin checks.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and services the subscriber connection.
func ServeWS(h *Hub, directory CallDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromGin(c)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", "err", err)
			return
		}

		client := NewClient(h, directory, conn, log)
		// Blocks until the connection drops, which keeps the request
		// context alive for subscription lookups.
		client.Run(c.Request.Context())
	}
}
