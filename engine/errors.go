package engine

import (
	stderrors "errors"
	"net/http"

	"github.com/kbukum/podflow/errors"
)

var (
	// ErrRunInProgress is returned when a run or an edit conflicts with the
	// active run.
	ErrRunInProgress = errors.New(errors.ErrCodeRunInProgress,
		"a run is already in progress", http.StatusConflict)
	// ErrNoActiveRun is returned by run-scoped operations between runs.
	ErrNoActiveRun = errors.New(errors.ErrCodeConflict,
		"no run is in progress", http.StatusConflict)
	// ErrNodeNotRunning is returned when aborting a node without an executor.
	ErrNodeNotRunning = errors.New(errors.ErrCodeConflict,
		"node has no running executor", http.StatusConflict)
	// ErrNodeActive is returned when editing a node an executor owns.
	ErrNodeActive = errors.New(errors.ErrCodeNodeActive,
		"node is being executed", http.StatusConflict)
)

// Cancellation causes. AppError matches by code, so these stay plain errors
// to keep errors.Is precise.
var (
	// ErrRunCancelled ends a run's executors as CANCELLED.
	ErrRunCancelled = stderrors.New("run cancelled")
	// ErrRunTimeout is the cause once the run budget is spent.
	ErrRunTimeout = stderrors.New("run budget exceeded")
	// ErrDeadlocked is the cause for executors still live when the loop
	// gives up.
	ErrDeadlocked = stderrors.New("run deadlocked")
	// ErrAborted is an operator abort; the node ends FAILED.
	ErrAborted = stderrors.New("node aborted")
	// ErrExecutorTimeout fails a node that outlived Config.ExecutorTimeout.
	ErrExecutorTimeout = stderrors.New("node execution timed out")
)
