package dag

import (
	"net/http"

	"github.com/kbukum/podflow/errors"
)

// ErrCycle reports a cycle among non-feedback edges. The "nodes" detail
// lists the nodes that could not be ordered.
var ErrCycle = errors.New(errors.ErrCodeGraphCycle,
	"non-feedback edges form a cycle", http.StatusUnprocessableEntity)

// Levels groups nodes by dependency depth using Kahn's algorithm over the
// non-feedback edges. Nodes in one level do not depend on each other. Order
// within a level follows insertion order.
func Levels(g *Graph) ([][]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string)
	for _, e := range g.edges {
		if e.Feedback {
			continue
		}
		inDegree[e.Target]++
		dependents[e.Source] = append(dependents[e.Source], e.Target)
	}

	var queue []string
	for _, n := range g.nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	var levels [][]string
	visited := 0
	for len(queue) > 0 {
		levels = append(levels, queue)
		visited += len(queue)

		var next []string
		for _, id := range queue {
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = g.inOrder(next)
	}

	if visited != len(g.nodes) {
		var stuck []string
		for _, n := range g.nodes {
			if inDegree[n.ID] > 0 {
				stuck = append(stuck, n.ID)
			}
		}
		return nil, ErrCycle.WithDetail("nodes", stuck)
	}
	return levels, nil
}

// inOrder sorts ids by node insertion order.
func (g *Graph) inOrder(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	pos := make(map[string]bool, len(ids))
	for _, id := range ids {
		pos[id] = true
	}
	out := make([]string, 0, len(ids))
	for _, n := range g.nodes {
		if pos[n.ID] {
			out = append(out, n.ID)
		}
	}
	return out
}

// CheckAcyclic returns ErrCycle when the non-feedback subgraph has a cycle.
func CheckAcyclic(g *Graph) error {
	_, err := Levels(g)
	return err
}

// TopologicalOrder flattens Levels.
func TopologicalOrder(g *Graph) ([]string, error) {
	levels, err := Levels(g)
	if err != nil {
		return nil, err
	}
	order := make([]string, 0, len(g.nodes))
	for _, l := range levels {
		order = append(order, l...)
	}
	return order, nil
}
