package dag

import (
	"strings"

	"github.com/google/uuid"
)

// NodeType is the declared role of a node.
type NodeType string

const (
	TypePrep        NodeType = "prep"
	TypeAnalysis    NodeType = "analysis"
	TypePostProcess NodeType = "post-process"
	TypeServing     NodeType = "serving"
	TypeDrift       NodeType = "drift"
	TypeRetraining  NodeType = "retraining"
)

// NodeTypes lists every known type in pipeline order.
func NodeTypes() []NodeType {
	return []NodeType{TypePrep, TypeAnalysis, TypePostProcess, TypeServing, TypeDrift, TypeRetraining}
}

func (t NodeType) Valid() bool {
	_, ok := typeDefaults[t]
	return ok
}

// NodeConfig holds free-form paths. The engine never interprets them.
type NodeConfig struct {
	InputPath  string `json:"inputPath,omitempty" yaml:"input_path,omitempty"`
	OutputPath string `json:"outputPath,omitempty" yaml:"output_path,omitempty"`
	ScriptName string `json:"scriptName,omitempty" yaml:"script_name,omitempty"`
}

// Node is one job in the pipeline. Run status lives in the status store,
// not here.
type Node struct {
	ID       string     `json:"id" yaml:"id" validate:"required"`
	Label    string     `json:"label,omitempty" yaml:"label,omitempty"`
	Type     NodeType   `json:"type" yaml:"type" validate:"required"`
	Resource Resource   `json:"resource" yaml:"resource"`
	Config   NodeConfig `json:"config" yaml:"config"`
}

// NodeUpdate is a partial update; nil fields are left alone.
type NodeUpdate struct {
	Label      *string       `json:"label,omitempty"`
	Type       *NodeType     `json:"type,omitempty"`
	Tier       *ResourceTier `json:"tier,omitempty"`
	InputPath  *string       `json:"inputPath,omitempty"`
	OutputPath *string       `json:"outputPath,omitempty"`
	ScriptName *string       `json:"scriptName,omitempty"`
}

type nodeDefaults struct {
	label string
	tier  ResourceTier
}

var typeDefaults = map[NodeType]nodeDefaults{
	TypePrep:        {"Data Preparation", TierMedium},
	TypeAnalysis:    {"Analysis Model", TierGPUSmall},
	TypePostProcess: {"Post Process", TierMedium},
	TypeServing:     {"Model Serving", TierLarge},
	TypeDrift:       {"Drift Check", TierSmall},
	TypeRetraining:  {"Retrain Trigger", TierGPULarge},
}

// Placeholder paths for freshly added nodes.
const (
	NewOutputPath = "s3://new/output"
	NewInputPath  = "s3://upstream/input"
)

// NewNode returns a node of type t with its default label, resource tier
// and placeholder paths. Prep nodes get an output path, every other type an
// input path.
func NewNode(t NodeType) Node {
	d, ok := typeDefaults[t]
	if !ok {
		d = nodeDefaults{label: "New Node", tier: TierMedium}
	}
	res, _ := Preset(d.tier)
	n := Node{
		ID:       "node-" + strings.ToLower(uuid.NewString()[:8]),
		Label:    d.label,
		Type:     t,
		Resource: res,
	}
	if t == TypePrep {
		n.Config.OutputPath = NewOutputPath
	} else {
		n.Config.InputPath = NewInputPath
	}
	return n
}

// normalize fills the label and resource from type defaults where the
// supplier left them empty.
func (n *Node) normalize() {
	d, ok := typeDefaults[n.Type]
	if n.Label == "" && ok {
		n.Label = d.label
	}
	if n.Resource.Tier == "" && ok {
		n.Resource.Tier = d.tier
	}
	n.Resource = n.Resource.filled()
}

func (n *Node) apply(u NodeUpdate) {
	if u.Label != nil {
		n.Label = *u.Label
	}
	if u.Type != nil {
		n.Type = *u.Type
	}
	if u.Tier != nil {
		if res, ok := Preset(*u.Tier); ok {
			n.Resource = res
		}
	}
	if u.InputPath != nil {
		n.Config.InputPath = *u.InputPath
	}
	if u.OutputPath != nil {
		n.Config.OutputPath = *u.OutputPath
	}
	if u.ScriptName != nil {
		n.Config.ScriptName = *u.ScriptName
	}
}
