package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/podflow/component"
	"github.com/kbukum/podflow/engine"
	"github.com/kbukum/podflow/logger"
	"github.com/kbukum/podflow/resilience"
)

// Component owns the client, the status mirror and the result store.
type Component struct {
	cfg    Config
	src    Source
	log    *logger.Logger
	client *Client
	mirror *StatusMirror
	result *ResultStore

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ component.Component = (*Component)(nil)

// NewComponent creates a Redis component mirroring src.
func NewComponent(cfg Config, src Source) *Component {
	cfg.ApplyDefaults()
	return &Component{
		cfg: cfg,
		src: src,
		log: logger.WithComponent("redis"),
	}
}

// Client returns the client, or nil if not started.
func (c *Component) Client() *Client { return c.client }

// Mirror returns the status mirror, or nil if not started.
func (c *Component) Mirror() *StatusMirror { return c.mirror }

// Results returns the result store, or nil if not started.
func (c *Component) Results() *ResultStore { return c.result }

// Name returns the component name.
func (c *Component) Name() string { return "redis" }

// Start connects, verifies connectivity and starts mirroring.
func (c *Component) Start(ctx context.Context) error {
	client, err := New(c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("redis start: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis start ping: %w", err)
	}
	c.client = client
	c.result = NewResultStore(client)

	if c.src != nil {
		c.mirror = NewStatusMirror(client, c.src, c.log)
		events, unsubscribe := c.src.Subscribe(c.cfg.Buffer)
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c.cancel = cancel
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer unsubscribe()
			_ = c.mirror.Forward(runCtx, events)
		}()
	}
	c.log.Info("redis component started", logger.Fields("status_key", c.cfg.StatusKey()))
	return nil
}

// SaveResult stores a finished run. Errors are logged, not returned, so it
// can be used directly as an engine result hook.
func (c *Component) SaveResult(res *engine.Result) {
	if c.result == nil || res == nil {
		return
	}
	if err := c.result.Save(context.Background(), res); err != nil {
		c.log.Warn("saving run result failed", logger.Fields(logger.FieldJobID, res.JobID, "error", err.Error()))
	}
}

// Load reads a stored run result. It returns nil before Start or when
// jobID is unknown.
func (c *Component) Load(ctx context.Context, jobID string) (*engine.Result, error) {
	if c.result == nil {
		return nil, nil
	}
	return c.result.Load(ctx, jobID)
}

// Stop halts mirroring and closes the connection.
func (c *Component) Stop(_ context.Context) error {
	if c.cancel != nil {
		c.cancel()
		c.wg.Wait()
	}
	if c.client == nil {
		return nil
	}
	c.log.Info("redis component stopping")
	return c.client.Close()
}

// Health pings Redis and reports mirror write failures as degraded.
func (c *Component) Health(ctx context.Context) component.Health {
	h := component.Health{Name: c.Name()}
	if c.client == nil {
		h.Status = component.StatusUnhealthy
		h.Message = "redis not initialized"
		return h
	}
	if err := c.client.Ping(ctx); err != nil {
		h.Status = component.StatusUnhealthy
		h.Message = fmt.Sprintf("ping failed: %v", err)
		return h
	}
	h.Status = component.StatusHealthy
	if c.mirror != nil {
		if st := c.mirror.CircuitState(); st != resilience.StateClosed {
			h.Status = component.StatusDegraded
			h.Message = "mirror circuit " + st.String()
		} else if n, err := c.mirror.Errors(); n > 0 {
			h.Status = component.StatusDegraded
			h.Message = fmt.Sprintf("%d mirror writes failed, last: %v", n, err)
		}
	}
	return h
}

// Describe returns infrastructure summary info for the bootstrap display.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Redis",
		Type:    "redis",
		Details: fmt.Sprintf("%s db=%d prefix=%s", c.cfg.Addr, c.cfg.DB, c.cfg.KeyPrefix),
	}
}
