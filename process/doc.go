// Package process runs node scripts as local subprocesses.
//
// ScriptRunner is an engine.Runner: it starts the node's script, reads
// progress lines from its stdout and maps a non-zero exit to a node
// failure. Cancellation sends SIGTERM to the whole process group and
// SIGKILL after the grace period.
//
// A script reports progress by printing lines such as
//
//	PROGRESS 40
//	progress: 75%
package process
