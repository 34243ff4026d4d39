// Package sse streams podflow status changes to browsers as Server-Sent
// Events.
//
// A Hub owns the connected clients and fans frames out to every client whose
// id matches a glob pattern. A StatusBroadcaster feeds the hub from a status
// store subscription. ServeSSE is the per-connection loop.
//
//	comp := sse.NewComponent(sse.Config{Path: "/api/v1/events"}, orchestrator)
//	router.GET("/api/v1/events", func(c *gin.Context) {
//		sse.ServeSSE(comp.Hub(), c.Writer, c.Request, sse.StatusClientID())
//	})
package sse
