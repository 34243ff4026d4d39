package dag

// ResourceTier names a compute preset.
type ResourceTier string

const (
	TierSmall    ResourceTier = "SMALL"
	TierMedium   ResourceTier = "MEDIUM"
	TierLarge    ResourceTier = "LARGE"
	TierGPUSmall ResourceTier = "GPU_SMALL"
	TierGPULarge ResourceTier = "GPU_LARGE"
)

// Resource describes the compute a node asks for. It is carried as data
// only.
type Resource struct {
	Tier        ResourceTier `json:"tier" yaml:"tier"`
	CPU         string       `json:"cpu,omitempty" yaml:"cpu,omitempty"`
	Memory      string       `json:"memory,omitempty" yaml:"memory,omitempty"`
	GPU         string       `json:"gpu,omitempty" yaml:"gpu,omitempty"`
	CostPerHour float64      `json:"costPerHour,omitempty" yaml:"cost_per_hour,omitempty"`
}

var presets = []Resource{
	{Tier: TierSmall, CPU: "2 vCPU", Memory: "4 GB", CostPerHour: 0.05},
	{Tier: TierMedium, CPU: "4 vCPU", Memory: "16 GB", CostPerHour: 0.20},
	{Tier: TierLarge, CPU: "8 vCPU", Memory: "32 GB", CostPerHour: 0.40},
	{Tier: TierGPUSmall, CPU: "4 vCPU", Memory: "16 GB", GPU: "1x NVIDIA T4", CostPerHour: 0.90},
	{Tier: TierGPULarge, CPU: "16 vCPU", Memory: "64 GB", GPU: "1x NVIDIA A100", CostPerHour: 3.50},
}

// Presets returns the catalog from smallest to largest.
func Presets() []Resource {
	return append([]Resource(nil), presets...)
}

// Preset looks up a tier.
func Preset(t ResourceTier) (Resource, bool) {
	for _, p := range presets {
		if p.Tier == t {
			return p, true
		}
	}
	return Resource{}, false
}

// filled completes a tier-only resource from the catalog. Explicit
// figures win.
func (r Resource) filled() Resource {
	p, ok := Preset(r.Tier)
	if !ok {
		return r
	}
	if r.CPU == "" && r.Memory == "" && r.GPU == "" && r.CostPerHour == 0 {
		return p
	}
	return r
}
