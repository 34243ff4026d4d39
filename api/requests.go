package api

import (
	"github.com/kbukum/podflow/dag"
	"github.com/kbukum/podflow/engine"
	"github.com/kbukum/podflow/schedule"
)

// AddNodeRequest creates a node from its type defaults.
type AddNodeRequest struct {
	ID     string            `json:"id"`
	Type   dag.NodeType      `json:"type" validate:"required,oneof=prep analysis post-process serving drift retraining"`
	Label  string            `json:"label"`
	Tier   *dag.ResourceTier `json:"tier" validate:"omitempty,oneof=SMALL MEDIUM LARGE GPU_SMALL GPU_LARGE"`
	Config dag.NodeConfig    `json:"config"`
}

func (r AddNodeRequest) node() dag.Node {
	n := dag.NewNode(r.Type)
	if r.ID != "" {
		n.ID = r.ID
	}
	if r.Label != "" {
		n.Label = r.Label
	}
	if r.Tier != nil {
		if p, ok := dag.Preset(*r.Tier); ok {
			n.Resource = p
		}
	}
	n.Config = r.Config
	return n
}

// AddEdgeRequest links two nodes. Feedback is derived from the source
// node's type unless given.
type AddEdgeRequest struct {
	ID       string `json:"id"`
	Source   string `json:"source" validate:"required"`
	Target   string `json:"target" validate:"required"`
	Feedback *bool  `json:"feedback"`
}

func (r AddEdgeRequest) def() dag.EdgeDef {
	return dag.EdgeDef{ID: r.ID, Source: r.Source, Target: r.Target, Feedback: r.Feedback}
}

// AbortRequest carries an optional reason.
type AbortRequest struct {
	Reason string `json:"reason" validate:"max=256"`
}

// StartRunRequest starts a run, optionally replacing the graph first.
type StartRunRequest struct {
	Name  string          `json:"name" validate:"max=128"`
	Graph *dag.Definition `json:"graph"`
}

// ScheduleRequest is a schedule intent plus the run it applies to.
type ScheduleRequest struct {
	schedule.Raw
	Name  string          `json:"name" validate:"max=128"`
	Graph *dag.Definition `json:"graph"`
}

// RunView is the active run with the nodes that have a live executor.
type RunView struct {
	engine.RunInfo
	Active []string `json:"active"`
}

// CurrentRun describes the active run or, when idle, the last result.
type CurrentRun struct {
	Running bool           `json:"running"`
	Run     *RunView       `json:"run,omitempty"`
	Last    *engine.Result `json:"last,omitempty"`
}

// UpstreamView is the configuration panel's view of a node's inputs.
type UpstreamView struct {
	Nodes      []dag.Node `json:"nodes"`
	OutputPath string     `json:"outputPath"`
}
