package api

import (
	"context"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/podflow/dag"
	"github.com/kbukum/podflow/engine"
	"github.com/kbukum/podflow/errors"
	"github.com/kbukum/podflow/logger"
	"github.com/kbukum/podflow/schedule"
	"github.com/kbukum/podflow/server"
	"github.com/kbukum/podflow/validation"
)

// ResultReader looks up finished runs by job id.
type ResultReader interface {
	Load(ctx context.Context, jobID string) (*engine.Result, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithResults serves GET /runs/:job from r in addition to the last result.
func WithResults(r ResultReader) Option {
	return func(h *Handler) { h.results = r }
}

// WithTemplates sets the template registry listed by GET /templates.
func WithTemplates(reg *dag.Registry) Option {
	return func(h *Handler) { h.templates = reg }
}

// WithLogger sets the handler's logger.
func WithLogger(l *logger.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// Handler serves the podflow REST API.
type Handler struct {
	orch      *engine.Orchestrator
	results   ResultReader
	templates *dag.Registry
	log       *logger.Logger
}

// NewHandler returns a handler over orch.
func NewHandler(orch *engine.Orchestrator, opts ...Option) *Handler {
	h := &Handler{orch: orch}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logger.WithComponent("api")
	}
	if h.templates == nil {
		h.templates = dag.NewRegistry()
	}
	return h
}

// bind decodes a JSON body into v and validates it. An empty body leaves v
// at its zero value.
func bind(c *gin.Context, v any) error {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return errors.InvalidInput("body", err.Error())
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, v); err != nil {
			return errors.InvalidInput("body", err.Error())
		}
	}
	return validation.Validate(v)
}

// GetGraph returns the current graph.
func (h *Handler) GetGraph(c *gin.Context) {
	server.RespondOK(c, h.orch.Graph())
}

// PutGraph replaces the graph. YAML bodies are accepted with ?format=yaml
// or a YAML content type.
func (h *Handler) PutGraph(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		server.RespondWithError(c, errors.InvalidInput("body", err.Error()))
		return
	}
	format := dag.FormatJSON
	if c.Query("format") == "yaml" || c.ContentType() == "application/yaml" || c.ContentType() == "application/x-yaml" {
		format = dag.FormatYAML
	}
	def, err := dag.Parse(body, format)
	if err != nil {
		server.RespondWithError(c, errors.InvalidInput("body", err.Error()))
		return
	}
	g, err := h.orch.ReplaceGraph(def)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	h.log.Info("graph replaced", logger.Fields("nodes", g.Len(), "edges", len(g.Edges())))
	server.RespondOK(c, g)
}

// AddNode creates a node from its type defaults.
func (h *Handler) AddNode(c *gin.Context) {
	var req AddNodeRequest
	if err := bind(c, &req); err != nil {
		server.RespondWithError(c, err)
		return
	}
	n, err := h.orch.AddNode(req.node())
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondCreated(c, n)
}

// UpdateNode applies a partial update.
func (h *Handler) UpdateNode(c *gin.Context) {
	var u dag.NodeUpdate
	if err := bind(c, &u); err != nil {
		server.RespondWithError(c, err)
		return
	}
	n, err := h.orch.UpdateNode(c.Param("id"), u)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, n)
}

// RemoveNode deletes a node and its edges.
func (h *Handler) RemoveNode(c *gin.Context) {
	if err := h.orch.RemoveNode(c.Param("id")); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondNoContent(c)
}

// Upstream returns a node's parents and the output path it would read.
func (h *Handler) Upstream(c *gin.Context) {
	g := h.orch.Graph()
	id := c.Param("id")
	path, err := dag.UpstreamOutputPath(g, id)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	nodes := dag.Upstream(g, id)
	if nodes == nil {
		nodes = []dag.Node{}
	}
	server.RespondOK(c, UpstreamView{Nodes: nodes, OutputPath: path})
}

// RunNode starts a single-node run.
func (h *Handler) RunNode(c *gin.Context) {
	info, err := h.orch.RunNode(c.Request.Context(), c.Param("id"))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondAccepted(c, info)
}

// AbortNode fails a running node.
func (h *Handler) AbortNode(c *gin.Context) {
	var req AbortRequest
	if err := bind(c, &req); err != nil {
		server.RespondWithError(c, err)
		return
	}
	if err := h.orch.AbortNode(c.Param("id"), req.Reason); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondAccepted(c, gin.H{"node_id": c.Param("id")})
}

// AddEdge links two nodes.
func (h *Handler) AddEdge(c *gin.Context) {
	var req AddEdgeRequest
	if err := bind(c, &req); err != nil {
		server.RespondWithError(c, err)
		return
	}
	e, err := h.orch.AddEdge(req.def())
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondCreated(c, e)
}

// RemoveEdge deletes an edge.
func (h *Handler) RemoveEdge(c *gin.Context) {
	if err := h.orch.RemoveEdge(c.Param("id")); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondNoContent(c)
}

// StartRun starts a run, replacing the graph first when one is supplied.
func (h *Handler) StartRun(c *gin.Context) {
	var req StartRunRequest
	if err := bind(c, &req); err != nil {
		server.RespondWithError(c, err)
		return
	}
	if err := h.supplyGraph(req.Graph); err != nil {
		server.RespondWithError(c, err)
		return
	}
	info, err := h.orch.StartRun(c.Request.Context(), req.Name)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondAccepted(c, info)
}

func (h *Handler) supplyGraph(def *dag.Definition) error {
	if def == nil {
		return nil
	}
	_, err := h.orch.ReplaceGraph(*def)
	return err
}

// CurrentRun reports the active run or the last result.
func (h *Handler) CurrentRun(c *gin.Context) {
	var out CurrentRun
	if info, ok := h.orch.CurrentRun(); ok {
		out.Running = true
		out.Run = &RunView{RunInfo: info, Active: h.orch.Running()}
	} else if last, ok := h.orch.LastResult(); ok {
		out.Last = last
	}
	server.RespondOK(c, out)
}

// CancelRun cancels the active run.
func (h *Handler) CancelRun(c *gin.Context) {
	info, _ := h.orch.CurrentRun()
	if err := h.orch.Cancel(); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondAccepted(c, info)
}

// GetRun returns a finished run by job id: the last result, or one from
// the result store.
func (h *Handler) GetRun(c *gin.Context) {
	job := c.Param("job")
	if last, ok := h.orch.LastResult(); ok && last.JobID == job {
		server.RespondOK(c, last)
		return
	}
	if h.results != nil {
		res, err := h.results.Load(c.Request.Context(), job)
		if err != nil {
			server.RespondWithError(c, errors.ServiceUnavailable("results").WithCause(err))
			return
		}
		if res != nil {
			server.RespondOK(c, res)
			return
		}
	}
	server.RespondWithError(c, errors.NotFound("run", job))
}

// Status returns the status snapshot.
func (h *Handler) Status(c *gin.Context) {
	snap := h.orch.Status()
	server.RespondOKWithMeta(c, snap.Entries, &server.Meta{Total: len(snap.Entries), Version: snap.Version})
}

// Schedule submits a schedule intent. Only inactive or IMMEDIATE intents
// start a run; the others are acknowledged without arming anything.
func (h *Handler) Schedule(c *gin.Context) {
	var req ScheduleRequest
	if err := bind(c, &req); err != nil {
		server.RespondWithError(c, err)
		return
	}
	cfg := schedule.Parse(req.Raw)
	if err := h.supplyGraph(req.Graph); err != nil {
		server.RespondWithError(c, err)
		return
	}
	sub, err := schedule.Submit(c.Request.Context(), cfg, h.orch, req.Name)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	if sub.Scheduled {
		h.log.Info("schedule intent recorded", logger.Fields("mode", string(sub.Mode)))
		server.RespondOK(c, sub)
		return
	}
	server.RespondAccepted(c, sub)
}

// Presets lists the resource presets.
func (h *Handler) Presets(c *gin.Context) {
	server.RespondOK(c, dag.Presets())
}

// Templates lists the graph template names.
func (h *Handler) Templates(c *gin.Context) {
	server.RespondOK(c, h.templates.List())
}
