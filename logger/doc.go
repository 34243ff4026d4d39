// Package logger provides structured logging for podflow using zerolog.
//
// It supports JSON and console output, level configuration, and
// component-scoped loggers with map-based structured fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("engine")
//	log.Info("run finished", logger.Fields("job_id", id, "outcome", "SUCCEEDED"))
package logger
