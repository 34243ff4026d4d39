// Package api exposes the orchestrator over HTTP.
//
// Every success body is the {"data": ...} envelope from package server;
// errors use the errors.ErrorResponse shape with the AppError's HTTP status.
//
//	GET    /api/v1/graph                  current graph
//	PUT    /api/v1/graph                  replace graph (JSON, or YAML with ?format=yaml)
//	POST   /api/v1/nodes                  add node
//	PATCH  /api/v1/nodes/:id              partial node update
//	DELETE /api/v1/nodes/:id              remove node and its edges
//	GET    /api/v1/nodes/:id/upstream     upstream parents and output path
//	POST   /api/v1/nodes/:id/run          single-node run
//	POST   /api/v1/nodes/:id/abort        fail a running node
//	POST   /api/v1/edges                  add edge
//	DELETE /api/v1/edges/:id              remove edge
//	POST   /api/v1/runs                   start a run
//	GET    /api/v1/runs/current           active run or last result
//	POST   /api/v1/runs/current/cancel    cancel the active run
//	GET    /api/v1/runs/:job              stored result by job id
//	GET    /api/v1/status                 status snapshot
//	POST   /api/v1/schedule               schedule intent
//	GET    /api/v1/presets                resource presets
//	GET    /api/v1/templates              graph templates
//	GET    /api/v1/events                 status stream (SSE)
package api
