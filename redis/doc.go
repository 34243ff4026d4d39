// Package redis mirrors podflow state into Redis for observers outside the
// process.
//
// StatusMirror keeps a hash with one field per node (JSON entry), a version
// key holding the latest store sequence, and publishes every status event
// on a pub/sub channel. ResultStore keeps finished run results as JSON.
//
//	redis:
//	  enabled: true
//	  addr: "localhost:6379"
//	  key_prefix: "podflow"
//
// The mirror is write-only; Redis is never read back into the engine.
package redis
