// Package engine runs podflow pipelines.
//
// A run resets every node to IDLE, then repeatedly launches the IDLE nodes
// whose non-feedback dependencies are all COMPLETED. Each launched node is
// driven by its own Executor through QUEUED, INITIALIZING and PROCESSING to
// a terminal status; the Loop tracks every executor and wakes on their
// completions and on status-store changes, with a poll ticker as backstop.
//
// A run ends with one Outcome:
//
//	SUCCEEDED   every node COMPLETED
//	FAILED      every unfinished node sits downstream of a failed node
//	DEADLOCKED  nothing can make progress (a cycle, a stall, or an iteration cap)
//	CANCELLED   the run was cancelled
//	TIMED_OUT   the run exceeded its wall-clock budget
//
// Orchestrator is the entry point for services: it owns the editable graph,
// the status store and at most one active run.
package engine
