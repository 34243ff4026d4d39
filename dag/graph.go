package dag

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/kbukum/podflow/errors"
	"github.com/kbukum/podflow/validation"
)

// Edge is a directed dependency: Target waits for Source to complete unless
// the edge is a feedback edge.
type Edge struct {
	ID       string `json:"id" yaml:"id"`
	Source   string `json:"source" yaml:"source"`
	Target   string `json:"target" yaml:"target"`
	Feedback bool   `json:"feedback" yaml:"feedback"`

	// explicit is set when the supplier decided Feedback; derived edges are
	// re-classified when their source changes type.
	explicit bool
}

// Classifier decides whether edges leaving a node are feedback edges.
type Classifier interface {
	IsFeedbackSource(n Node) bool
}

// TypeClassifier treats every node of one of Types as a feedback source.
type TypeClassifier struct {
	Types []NodeType
}

func (c TypeClassifier) IsFeedbackSource(n Node) bool {
	return slices.Contains(c.Types, n.Type)
}

// DefaultClassifier marks edges leaving retraining nodes as feedback.
var DefaultClassifier Classifier = TypeClassifier{Types: []NodeType{TypeRetraining}}

// Option configures a Graph.
type Option func(*Graph)

// WithClassifier replaces DefaultClassifier.
func WithClassifier(c Classifier) Option {
	return func(g *Graph) {
		if c != nil {
			g.classifier = c
		}
	}
}

// Graph holds nodes and edges in insertion order. It is not safe for
// concurrent use; callers that share one guard it and hand runs a Clone.
type Graph struct {
	nodes      []Node
	index      map[string]int
	edges      []Edge
	classifier Classifier
}

// New returns an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{index: make(map[string]int), classifier: DefaultClassifier}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Definition is the supplied shape of a graph.
type Definition struct {
	Nodes []NodeDef `json:"nodes" yaml:"nodes" validate:"dive"`
	Edges []EdgeDef `json:"edges" yaml:"edges" validate:"dive"`
}

// NodeDef is a supplied node. Status and progress are accepted for
// compatibility with editor payloads and ignored: every run starts from IDLE.
type NodeDef struct {
	Node     `yaml:",inline"`
	Status   string `json:"status,omitempty" yaml:"status,omitempty"`
	Progress int    `json:"progress,omitempty" yaml:"progress,omitempty"`
}

// EdgeDef is a supplied edge. A nil Feedback lets the classifier decide.
type EdgeDef struct {
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	Source   string `json:"source" yaml:"source" validate:"required"`
	Target   string `json:"target" yaml:"target" validate:"required"`
	Feedback *bool  `json:"feedback,omitempty" yaml:"feedback,omitempty"`
}

func (e EdgeDef) edgeID() string {
	if e.ID != "" {
		return e.ID
	}
	return fmt.Sprintf("e-%s-%s", e.Source, e.Target)
}

// Build validates def and returns the graph it describes. Every structural
// problem is reported at once. Cycles are not rejected here; see
// CheckAcyclic.
func Build(def Definition, opts ...Option) (*Graph, error) {
	g := New(opts...)

	v := validation.New()
	byID := make(map[string]Node, len(def.Nodes))
	seen := make(map[string]bool, len(def.Nodes))
	for i, nd := range def.Nodes {
		field := fmt.Sprintf("nodes[%d]", i)
		v.Required(field+".id", nd.ID).Unique(field+".id", nd.ID, seen)
		v.Custom(nd.Type.Valid(), field+".type", fmt.Sprintf("unknown node type %q", nd.Type))
		byID[nd.ID] = nd.Node
	}

	edgeIDs := make(map[string]bool, len(def.Edges))
	for i, ed := range def.Edges {
		field := fmt.Sprintf("edges[%d]", i)
		v.Required(field+".source", ed.Source).Required(field+".target", ed.Target)
		if ed.Source == "" || ed.Target == "" {
			continue
		}
		src, okSrc := byID[ed.Source]
		_, okTgt := byID[ed.Target]
		v.Custom(okSrc, field+".source", fmt.Sprintf("unknown node %q", ed.Source))
		v.Custom(okTgt, field+".target", fmt.Sprintf("unknown node %q", ed.Target))
		v.Unique(field+".id", ed.edgeID(), edgeIDs)
		if okSrc && ed.Source == ed.Target {
			v.Custom(g.feedback(src, ed.Feedback), field, "self-loop must be a feedback edge")
		}
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}

	for _, nd := range def.Nodes {
		g.insertNode(nd.Node)
	}
	for _, ed := range def.Edges {
		g.insertEdge(ed)
	}
	return g, nil
}

func (g *Graph) feedback(src Node, explicit *bool) bool {
	if explicit != nil {
		return *explicit
	}
	return g.classifier.IsFeedbackSource(src)
}

func (g *Graph) insertNode(n Node) Node {
	n.normalize()
	g.index[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return n
}

func (g *Graph) insertEdge(ed EdgeDef) Edge {
	src := g.nodes[g.index[ed.Source]]
	e := Edge{
		ID:       ed.edgeID(),
		Source:   ed.Source,
		Target:   ed.Target,
		Feedback: g.feedback(src, ed.Feedback),
		explicit: ed.Feedback != nil,
	}
	g.edges = append(g.edges, e)
	return e
}

// Len returns the node count.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns a copy of the nodes in insertion order.
func (g *Graph) Nodes() []Node { return slices.Clone(g.nodes) }

// NodeIDs returns node ids in insertion order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		ids[i] = n.ID
	}
	return ids
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Edges returns a copy of the edges in insertion order.
func (g *Graph) Edges() []Edge { return slices.Clone(g.edges) }

// Edge looks up an edge by id.
func (g *Graph) Edge(id string) (Edge, bool) {
	for _, e := range g.edges {
		if e.ID == id {
			return e, true
		}
	}
	return Edge{}, false
}

// Incoming returns the edges ending at id, in insertion order.
func (g *Graph) Incoming(id string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Target == id {
			out = append(out, e)
		}
	}
	return out
}

// Outgoing returns the edges starting at id, in insertion order.
func (g *Graph) Outgoing(id string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns an independent copy sharing only the classifier.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		nodes:      slices.Clone(g.nodes),
		edges:      slices.Clone(g.edges),
		index:      make(map[string]int, len(g.index)),
		classifier: g.classifier,
	}
	for k, v := range g.index {
		c.index[k] = v
	}
	return c
}

// Definition exports the graph. Only explicitly supplied feedback flags are
// carried so that rebuilding re-derives the rest.
func (g *Graph) Definition() Definition {
	def := Definition{
		Nodes: make([]NodeDef, len(g.nodes)),
		Edges: make([]EdgeDef, len(g.edges)),
	}
	for i, n := range g.nodes {
		def.Nodes[i] = NodeDef{Node: n}
	}
	for i, e := range g.edges {
		ed := EdgeDef{ID: e.ID, Source: e.Source, Target: e.Target}
		if e.explicit {
			fb := e.Feedback
			ed.Feedback = &fb
		}
		def.Edges[i] = ed
	}
	return def
}

// MarshalJSON renders nodes and edges with the effective feedback flag.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Nodes []Node `json:"nodes"`
		Edges []Edge `json:"edges"`
	}{Nodes: g.nodes, Edges: g.edges})
}

// AddNode inserts n, filling defaults from its type.
func (g *Graph) AddNode(n Node) (Node, error) {
	if n.ID == "" {
		return Node{}, errors.MissingField("id")
	}
	if !n.Type.Valid() {
		return Node{}, errors.InvalidInput("type", fmt.Sprintf("unknown node type %q", n.Type))
	}
	if _, exists := g.index[n.ID]; exists {
		return Node{}, errors.AlreadyExists("node", n.ID)
	}
	return g.insertNode(n), nil
}

// UpdateNode applies u to node id. A type change re-classifies the node's
// outgoing edges unless their feedback flag was supplied explicitly.
func (g *Graph) UpdateNode(id string, u NodeUpdate) (Node, error) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, errors.NotFound("node", id)
	}
	if u.Type != nil && !u.Type.Valid() {
		return Node{}, errors.InvalidInput("type", fmt.Sprintf("unknown node type %q", *u.Type))
	}
	if u.Tier != nil {
		if _, ok := Preset(*u.Tier); !ok {
			return Node{}, errors.InvalidInput("tier", fmt.Sprintf("unknown resource tier %q", *u.Tier))
		}
	}

	n := g.nodes[i]
	n.apply(u)
	g.nodes[i] = n

	if u.Type != nil {
		for j, e := range g.edges {
			if e.Source == id && !e.explicit {
				g.edges[j].Feedback = g.classifier.IsFeedbackSource(n)
			}
		}
	}
	return n, nil
}

// RemoveNode deletes node id and every edge touching it.
func (g *Graph) RemoveNode(id string) error {
	i, ok := g.index[id]
	if !ok {
		return errors.NotFound("node", id)
	}
	g.nodes = slices.Delete(g.nodes, i, i+1)
	g.edges = slices.DeleteFunc(g.edges, func(e Edge) bool {
		return e.Source == id || e.Target == id
	})
	g.index = make(map[string]int, len(g.nodes))
	for j, n := range g.nodes {
		g.index[n.ID] = j
	}
	return nil
}

// AddEdge inserts an edge between existing nodes.
func (g *Graph) AddEdge(ed EdgeDef) (Edge, error) {
	if ed.Source == "" {
		return Edge{}, errors.MissingField("source")
	}
	if ed.Target == "" {
		return Edge{}, errors.MissingField("target")
	}
	src, ok := g.Node(ed.Source)
	if !ok {
		return Edge{}, errors.InvalidInput("source", fmt.Sprintf("unknown node %q", ed.Source))
	}
	if _, ok := g.index[ed.Target]; !ok {
		return Edge{}, errors.InvalidInput("target", fmt.Sprintf("unknown node %q", ed.Target))
	}
	if _, exists := g.Edge(ed.edgeID()); exists {
		return Edge{}, errors.AlreadyExists("edge", ed.edgeID())
	}
	if ed.Source == ed.Target && !g.feedback(src, ed.Feedback) {
		return Edge{}, errors.InvalidInput("target", "self-loop must be a feedback edge")
	}
	return g.insertEdge(ed), nil
}

// RemoveEdge deletes edge id.
func (g *Graph) RemoveEdge(id string) error {
	n := len(g.edges)
	g.edges = slices.DeleteFunc(g.edges, func(e Edge) bool { return e.ID == id })
	if len(g.edges) == n {
		return errors.NotFound("edge", id)
	}
	return nil
}
