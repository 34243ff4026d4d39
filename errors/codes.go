package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Availability errors (retryable)
const (
	// ErrCodeServiceUnavailable indicates a collaborator is temporarily unavailable.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeTimeout indicates an operation ran past its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// Resource errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeAlreadyExists indicates the resource already exists.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	// ErrCodeConflict indicates a conflict with the current state of the resource.
	ErrCodeConflict ErrorCode = "CONFLICT"
)

// Validation errors
const (
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField  ErrorCode = "MISSING_FIELD"
	ErrCodeInvalidFormat ErrorCode = "INVALID_FORMAT"
)

// Engine errors
const (
	// ErrCodeRunInProgress indicates a run was requested while another is active.
	ErrCodeRunInProgress ErrorCode = "RUN_IN_PROGRESS"
	// ErrCodeGraphCycle indicates the non-feedback subgraph contains a cycle.
	ErrCodeGraphCycle ErrorCode = "GRAPH_CYCLE"
	// ErrCodeNodeActive indicates a node is owned by a live executor.
	ErrCodeNodeActive ErrorCode = "NODE_ACTIVE"
	// ErrCodeAmbiguousUpstream indicates a node has more than one upstream parent
	// and no merge policy exists to pick between them.
	ErrCodeAmbiguousUpstream ErrorCode = "AMBIGUOUS_UPSTREAM"
)

// Internal errors
const (
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeServiceUnavailable: true,
	ErrCodeTimeout:            true,
	ErrCodeRunInProgress:      true,
	ErrCodeNodeActive:         true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
