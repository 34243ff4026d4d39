package status

// Status is a node's execution phase.
type Status string

const (
	Idle         Status = "IDLE"
	Queued       Status = "QUEUED"
	Initializing Status = "INITIALIZING"
	Processing   Status = "PROCESSING"
	Completed    Status = "COMPLETED"
	Failed       Status = "FAILED"
	Cancelled    Status = "CANCELLED"
)

// forward lists the non-failure successor of each phase.
var forward = map[Status]Status{
	Idle:         Queued,
	Queued:       Initializing,
	Initializing: Processing,
	Processing:   Completed,
}

// Terminal reports COMPLETED, FAILED and CANCELLED.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// Active reports a phase owned by a running executor.
func (s Status) Active() bool {
	return s == Queued || s == Initializing || s == Processing
}

// Valid reports a known status.
func (s Status) Valid() bool {
	return s == Idle || s.Active() || s.Terminal()
}

// CanTransition reports whether from -> to is allowed: one step forward, or
// from any non-terminal phase into FAILED or CANCELLED.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == Failed || to == Cancelled {
		return true
	}
	return forward[from] == to
}
