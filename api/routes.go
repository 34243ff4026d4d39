package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/podflow/server"
	"github.com/kbukum/podflow/server/middleware"
)

// Prefix is the API base path.
const Prefix = "/api/v1"

// EventsPath is the SSE status stream.
const EventsPath = Prefix + "/events"

// RegisterRoutes mounts the REST routes on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/graph", h.GetGraph)
	r.PUT("/graph", h.PutGraph)

	r.POST("/nodes", h.AddNode)
	r.PATCH("/nodes/:id", h.UpdateNode)
	r.DELETE("/nodes/:id", h.RemoveNode)
	r.GET("/nodes/:id/upstream", h.Upstream)
	r.POST("/nodes/:id/run", h.RunNode)
	r.POST("/nodes/:id/abort", h.AbortNode)

	r.POST("/edges", h.AddEdge)
	r.DELETE("/edges/:id", h.RemoveEdge)

	r.POST("/runs", h.StartRun)
	r.GET("/runs/current", h.CurrentRun)
	r.POST("/runs/current/cancel", h.CancelRun)
	r.GET("/runs/:job", h.GetRun)

	r.GET("/status", h.Status)
	r.POST("/schedule", h.Schedule)
	r.GET("/presets", h.Presets)
	r.GET("/templates", h.Templates)
}

// Mount registers the API on srv. events serves the status stream; it is
// mounted on the server mux rather than Gin so the stream writes straight
// to the connection.
func Mount(srv *server.Server, h *Handler, events http.Handler) {
	group := srv.GinEngine().Group(Prefix)
	if limit := srv.Config().RateLimit; limit > 0 {
		group.Use(middleware.RateLimit(middleware.RateLimitConfig{RequestsPerMinute: limit}))
	}
	h.RegisterRoutes(group)
	if events != nil {
		srv.Handle("GET "+EventsPath, events)
	}
}
