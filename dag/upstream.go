package dag

import (
	"net/http"

	"github.com/kbukum/podflow/errors"
)

// ErrAmbiguousUpstream is returned when a node has several upstream
// parents. No merge policy is defined for their outputs.
var ErrAmbiguousUpstream = errors.New(errors.ErrCodeAmbiguousUpstream,
	"node has more than one upstream parent", http.StatusUnprocessableEntity)

// Upstream returns the distinct sources of id's non-feedback incoming
// edges, in edge order.
func Upstream(g *Graph, id string) []Node {
	var out []Node
	seen := make(map[string]bool)
	for _, e := range g.Incoming(id) {
		if e.Feedback || seen[e.Source] {
			continue
		}
		seen[e.Source] = true
		if n, ok := g.Node(e.Source); ok {
			out = append(out, n)
		}
	}
	return out
}

// UpstreamOutputPath returns the output path of id's single upstream
// parent, or "" when it has none.
func UpstreamOutputPath(g *Graph, id string) (string, error) {
	if _, ok := g.Node(id); !ok {
		return "", errors.NotFound("node", id)
	}
	parents := Upstream(g, id)
	switch len(parents) {
	case 0:
		return "", nil
	case 1:
		return parents[0].Config.OutputPath, nil
	default:
		ids := make([]string, len(parents))
		for i, p := range parents {
			ids[i] = p.ID
		}
		return "", ErrAmbiguousUpstream.WithDetail("node_id", id).WithDetail("parents", ids)
	}
}
