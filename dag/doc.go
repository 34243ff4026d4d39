// Package dag models a podflow pipeline: typed job nodes joined by directed
// edges, some of which are feedback edges.
//
// Feedback edges express intentional loops (retraining back into data
// preparation). They are kept in the graph but excluded from readiness and
// from the acyclicity check. Whether an edge is feedback is an attribute of
// the edge, decided when the edge enters the graph: either the supplier sets
// it, or a Classifier derives it from the source node.
//
//	g, err := dag.Build(def)
//	if err := dag.CheckAcyclic(g); err != nil { ... }
//	levels, _ := dag.Levels(g)
package dag
