// Package component defines the lifecycle contract shared by podflow's
// long-lived parts: the orchestrator, the event hub, the Redis status
// mirror and the HTTP server.
//
// Components start in registration order and stop in reverse, so register
// dependencies first.
package component
