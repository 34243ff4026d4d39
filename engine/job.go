package engine

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewJobID returns an id of the form JOB-XXXXXXXX.
func NewJobID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "JOB-" + strings.ToUpper(raw[:8])
}

// DefaultJobName names a job after the day it was submitted.
func DefaultJobName(at time.Time) string {
	return "Job-" + at.Format("2006-01-02")
}
