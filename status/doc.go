// Package status is the per-node status table shared by the engine and its
// observers.
//
// Each node's entry has exactly one writer at a time. Between runs the
// store itself writes (Reset); during a run the executor that claimed the
// node's Writer does. A Writer is released when it writes a terminal
// status, and Reset is refused while any Writer is held or any entry is
// active, so a reset can never race an executor.
//
// Observers read Snapshots, or Subscribe to a stream of sequence-numbered
// events.
package status
