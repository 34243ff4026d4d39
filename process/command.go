package process

import (
	"io"
	"time"
)

// Command configures a subprocess.
type Command struct {
	// Binary is the executable path or a name resolved via PATH.
	Binary string
	Args   []string
	// Dir is the working directory; the current one when empty.
	Dir string
	// Env holds extra KEY=value pairs merged over os.Environ.
	Env   []string
	Stdin io.Reader
	// GracePeriod is the wait between SIGTERM and SIGKILL; 5s when zero.
	GracePeriod time.Duration
}

// Result describes a finished subprocess.
type Result struct {
	// Stderr holds the tail of standard error.
	Stderr []byte
	// ExitCode is -1 when the process was killed.
	ExitCode int
	// Lines counts stdout lines.
	Lines    int
	Duration time.Duration
}
