package engine

import (
	"slices"
	"time"

	"github.com/kbukum/podflow/status"
)

// Outcome is the terminal verdict of a run.
type Outcome string

const (
	OutcomeSucceeded  Outcome = "SUCCEEDED"
	OutcomeFailed     Outcome = "FAILED"
	OutcomeDeadlocked Outcome = "DEADLOCKED"
	OutcomeCancelled  Outcome = "CANCELLED"
	OutcomeTimedOut   Outcome = "TIMED_OUT"
)

// NodeResult describes one node at the end of a run.
type NodeResult struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Status   status.Status `json:"status"`
	Progress int           `json:"progress"`
	Error    string        `json:"error,omitempty"`
	Launched bool          `json:"launched"`
	Started  time.Time     `json:"started,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Result is the outcome of a run.
type Result struct {
	RunID      string                `json:"run_id"`
	JobID      string                `json:"job_id"`
	JobName    string                `json:"job_name"`
	Outcome    Outcome               `json:"outcome"`
	Reason     string                `json:"reason,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Iterations int                   `json:"iterations"`
	Nodes      map[string]NodeResult `json:"nodes"`
	// Blocked maps each node that never launched to the ids of the edges
	// whose sources had not completed.
	Blocked map[string][]string `json:"blocked,omitempty"`
}

// Duration returns the wall-clock time of the run.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether every node completed.
func (r *Result) Succeeded() bool {
	return r.Outcome == OutcomeSucceeded
}

// Failed returns the ids of nodes that ended FAILED.
func (r *Result) Failed() []string {
	return r.withStatus(status.Failed)
}

// Completed returns the ids of nodes that ended COMPLETED.
func (r *Result) Completed() []string {
	return r.withStatus(status.Completed)
}

func (r *Result) withStatus(s status.Status) []string {
	var ids []string
	for id, n := range r.Nodes {
		if n.Status == s {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
