package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleetvoice-platform/internal/calls"
	"fleetvoice-platform/internal/httpapi"
	"fleetvoice-platform/internal/hub"
	"fleetvoice-platform/internal/schedule"
	"fleetvoice-platform/internal/transcripts"
	"fleetvoice-platform/internal/webhook"
	"fleetvoice-platform/pkg/utils"
)

type routeDeps struct {
	authMW          gin.HandlerFunc
	callStore       *calls.Store
	scheduleStore   *schedule.Store
	transcriptStore *transcripts.Store
	receiver        *webhook.Receiver
	webhookSecret   string
	hub             *hub.Hub
	db              *sql.DB
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), deps.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider completion webhook (public; shared-secret protected).
	webhook.NewHandler(deps.receiver, deps.webhookSecret).Register(r)

	// Websocket subscriptions (public; call ids are unguessable).
	r.GET("/ws", hub.ServeWS(deps.hub, deps.callStore))

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(deps.authMW)
	{
		h := httpapi.Handlers{
			Calls:       deps.callStore,
			Transcripts: deps.transcriptStore,
			Schedules:   deps.scheduleStore,
		}

		v1.GET("/calls", h.ListCalls)
		v1.GET("/calls/:id", h.GetCall)
		v1.GET("/calls/:id/transcript", h.GetTranscript)

		v1.POST("/schedules", h.CreateSchedules)
		v1.GET("/schedules/groups/:group_id", h.GetScheduleGroup)
	}
}
