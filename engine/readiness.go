package engine

import (
	"github.com/kbukum/podflow/dag"
	"github.com/kbukum/podflow/status"
)

// UnfinishedDependencies returns the non-feedback edges into id whose source
// is not COMPLETED in snap. Feedback edges never gate launch.
func UnfinishedDependencies(g *dag.Graph, id string, snap status.Snapshot) []dag.Edge {
	var out []dag.Edge
	for _, e := range g.Incoming(id) {
		if e.Feedback {
			continue
		}
		if snap.Status(e.Source) != status.Completed {
			out = append(out, e)
		}
	}
	return out
}

// Eligible reports whether id may launch: it is IDLE, has no executor in
// launched, and all its dependencies are met.
func Eligible(g *dag.Graph, id string, snap status.Snapshot, launched map[string]bool) bool {
	if launched[id] || snap.Status(id) != status.Idle {
		return false
	}
	return len(UnfinishedDependencies(g, id, snap)) == 0
}

// downstreamOfFailure returns every node reachable over non-feedback edges
// from a FAILED or CANCELLED node, the failed nodes included.
func downstreamOfFailure(g *dag.Graph, snap status.Snapshot) map[string]bool {
	doomed := make(map[string]bool)
	var queue []string
	for _, id := range g.NodeIDs() {
		if s := snap.Status(id); s == status.Failed || s == status.Cancelled {
			doomed[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.Outgoing(id) {
			if e.Feedback || doomed[e.Target] {
				continue
			}
			doomed[e.Target] = true
			queue = append(queue, e.Target)
		}
	}
	return doomed
}
