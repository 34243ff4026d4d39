package engine

import (
	"fmt"
	"time"

	"github.com/kbukum/podflow/dag"
)

// Config tunes the loop and the simulated executor timings.
type Config struct {
	PollInterval     time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	QueueDelay       time.Duration `yaml:"queue_delay" mapstructure:"queue_delay"`
	InitDelay        time.Duration `yaml:"init_delay" mapstructure:"init_delay"`
	ProgressStep     int           `yaml:"progress_step" mapstructure:"progress_step"`
	ProgressInterval time.Duration `yaml:"progress_interval" mapstructure:"progress_interval"`

	// MaxParallel caps concurrent executors; 0 means unlimited.
	MaxParallel int `yaml:"max_parallel" mapstructure:"max_parallel"`
	// ExecutorTimeout fails a node that has not finished in time; 0 disables.
	ExecutorTimeout time.Duration `yaml:"executor_timeout" mapstructure:"executor_timeout"`
	// RunBudget ends the run as TIMED_OUT; 0 disables.
	RunBudget time.Duration `yaml:"run_budget" mapstructure:"run_budget"`
	// MaxIterations ends the run as DEADLOCKED after that many loop
	// iterations; 0 disables.
	MaxIterations int `yaml:"max_iterations" mapstructure:"max_iterations"`
	// StallLimit logs a warning after that many consecutive iterations in
	// which executors are live but nothing changed or launched; 0 disables.
	StallLimit int `yaml:"stall_limit" mapstructure:"stall_limit"`
	// PreflightCycleCheck rejects a cyclic non-feedback subgraph before
	// anything launches. Defaults to true.
	PreflightCycleCheck *bool `yaml:"preflight_cycle_check" mapstructure:"preflight_cycle_check"`
	// FeedbackTypes are the node types whose outgoing edges are feedback.
	FeedbackTypes []string `yaml:"feedback_types" mapstructure:"feedback_types"`
}

// Defaults mirror the demo pacing.
const (
	DefaultPollInterval     = 500 * time.Millisecond
	DefaultQueueDelay       = 800 * time.Millisecond
	DefaultInitDelay        = 1500 * time.Millisecond
	DefaultProgressStep     = 10
	DefaultProgressInterval = 200 * time.Millisecond
	DefaultStallLimit       = 1000
)

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.QueueDelay <= 0 {
		c.QueueDelay = DefaultQueueDelay
	}
	if c.InitDelay <= 0 {
		c.InitDelay = DefaultInitDelay
	}
	if c.ProgressStep <= 0 {
		c.ProgressStep = DefaultProgressStep
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = DefaultProgressInterval
	}
	if c.StallLimit == 0 {
		c.StallLimit = DefaultStallLimit
	}
	if c.PreflightCycleCheck == nil {
		on := true
		c.PreflightCycleCheck = &on
	}
	if len(c.FeedbackTypes) == 0 {
		c.FeedbackTypes = []string{string(dag.TypeRetraining)}
	}
}

// Validate checks ranges and feedback types.
func (c *Config) Validate() error {
	if c.ProgressStep > 100 {
		return fmt.Errorf("engine.progress_step must be within 1..100 (got: %d)", c.ProgressStep)
	}
	if c.MaxParallel < 0 || c.MaxIterations < 0 || c.StallLimit < 0 {
		return fmt.Errorf("engine limits must not be negative")
	}
	for _, t := range c.FeedbackTypes {
		if !dag.NodeType(t).Valid() {
			return fmt.Errorf("engine.feedback_types: unknown node type %q", t)
		}
	}
	return nil
}

// Preflight reports whether the acyclicity check runs before launching.
func (c *Config) Preflight() bool {
	return c.PreflightCycleCheck == nil || *c.PreflightCycleCheck
}

// Classifier builds the feedback classifier from FeedbackTypes.
func (c *Config) Classifier() dag.Classifier {
	if len(c.FeedbackTypes) == 0 {
		return dag.DefaultClassifier
	}
	types := make([]dag.NodeType, len(c.FeedbackTypes))
	for i, t := range c.FeedbackTypes {
		types[i] = dag.NodeType(t)
	}
	return dag.TypeClassifier{Types: types}
}
