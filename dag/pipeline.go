package dag

// Paths used by the demo pipeline.
const (
	RawDataPath       = "s3://bucket/raw/data.csv"
	CleanDataPath     = "s3://bucket/processed/clean_data.parquet"
	ModelPath         = "s3://bucket/models/v1.pt"
	EvalReportPath    = "s3://bucket/reports/eval.json"
	ServingEndpoint   = "endpoint://api.model-mesh.svc"
	DriftAlertPath    = "s3://bucket/alerts/drift.log"
	RetrainTriggerURI = "trigger://pipeline-restart"
)

// DefaultPipeline is the six-stage ML demo: a linear chain from data prep
// to the retraining trigger, closed by a feedback edge back into prep.
func DefaultPipeline() Definition {
	node := func(id string, t NodeType, label string, tier ResourceTier, cfg NodeConfig) NodeDef {
		res, _ := Preset(tier)
		return NodeDef{Node: Node{ID: id, Label: label, Type: t, Resource: res, Config: cfg}}
	}
	edge := func(id, src, tgt string) EdgeDef {
		return EdgeDef{ID: id, Source: src, Target: tgt}
	}

	return Definition{
		Nodes: []NodeDef{
			node("node-prep", TypePrep, "Data Preparation", TierMedium,
				NodeConfig{OutputPath: CleanDataPath, ScriptName: "clean_raw_data.py"}),
			node("node-analysis", TypeAnalysis, "Analysis Model", TierGPUSmall,
				NodeConfig{InputPath: CleanDataPath, OutputPath: ModelPath, ScriptName: "train_model.py"}),
			node("node-post-process", TypePostProcess, "Data Post Process", TierMedium,
				NodeConfig{InputPath: ModelPath, OutputPath: EvalReportPath, ScriptName: "evaluate_model.py"}),
			node("node-serving", TypeServing, "Serving", TierLarge,
				NodeConfig{InputPath: EvalReportPath, OutputPath: ServingEndpoint, ScriptName: "deploy_service.py"}),
			node("node-drift", TypeDrift, "Drift Detection", TierSmall,
				NodeConfig{InputPath: ServingEndpoint, OutputPath: DriftAlertPath, ScriptName: "monitor_drift.py"}),
			node("node-retraining", TypeRetraining, "Retraining Trigger", TierGPULarge,
				NodeConfig{InputPath: DriftAlertPath, OutputPath: RetrainTriggerURI, ScriptName: "trigger_retrain.py"}),
		},
		Edges: []EdgeDef{
			edge("e1-2", "node-prep", "node-analysis"),
			edge("e2-3", "node-analysis", "node-post-process"),
			edge("e3-4", "node-post-process", "node-serving"),
			edge("e4-5", "node-serving", "node-drift"),
			edge("e5-6", "node-drift", "node-retraining"),
			edge("e-retrain-prep", "node-retraining", "node-prep"),
		},
	}
}
