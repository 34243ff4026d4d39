package sse

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kbukum/podflow/component"
)

// Config configures the status stream.
type Config struct {
	Path         string        `yaml:"path" mapstructure:"path"`
	KeepAlive    time.Duration `yaml:"keep_alive" mapstructure:"keep_alive"`
	ClientBuffer int           `yaml:"client_buffer" mapstructure:"client_buffer"`
	// SourceBuffer is the status subscription buffer of the broadcaster.
	SourceBuffer int `yaml:"source_buffer" mapstructure:"source_buffer"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "/api/v1/events"
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.ClientBuffer <= 0 {
		c.ClientBuffer = DefaultClientBuffer
	}
	if c.SourceBuffer <= 0 {
		c.SourceBuffer = 1024
	}
}

// Component runs a Hub and the status broadcaster feeding it.
type Component struct {
	cfg  Config
	hub  *Hub
	src  Source
	stop context.CancelFunc
	wg   sync.WaitGroup
	mu   sync.Mutex
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent returns a stream component over src.
func NewComponent(cfg Config, src Source) *Component {
	cfg.ApplyDefaults()
	return &Component{cfg: cfg, hub: NewHub(), src: src}
}

// Hub returns the hub.
func (c *Component) Hub() *Hub { return c.hub }

// Config returns the effective configuration.
func (c *Component) Config() Config { return c.cfg }

func (c *Component) Name() string { return "sse" }

// Start runs the hub and, with a source, the broadcaster.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.stop = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.hub.Run()
	}()
	if c.src != nil {
		b := NewStatusBroadcaster(c.hub, c.src, c.cfg.SourceBuffer)
		events, unsubscribe := c.src.Subscribe(c.cfg.SourceBuffer)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer unsubscribe()
			b.Forward(runCtx, events)
		}()
	}
	return nil
}

// Stop ends the broadcaster, closes every client and waits.
func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		c.stop()
	}
	c.hub.Stop()
	c.wg.Wait()
	return nil
}

func (c *Component) Health(_ context.Context) component.Health {
	return component.Health{
		Name:    c.Name(),
		Status:  component.StatusHealthy,
		Message: fmt.Sprintf("%d clients connected", c.hub.ClientCount()),
	}
}

func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Status stream",
		Type:    "sse",
		Details: "Path: " + c.cfg.Path,
	}
}

// ServeStatus streams status to one client, starting with a snapshot.
func (c *Component) ServeStatus(w http.ResponseWriter, r *http.Request) {
	opts := ServeOptions{
		KeepAlive: c.cfg.KeepAlive,
		Client:    []ClientOption{WithBuffer(c.cfg.ClientBuffer)},
	}
	if c.src != nil {
		// Status frames with an id at or below the snapshot's are stale.
		opts.Initial = func() []Event {
			snap, err := SnapshotEvent(c.src.Status())
			if err != nil {
				return nil
			}
			return []Event{snap}
		}
	}
	ServeSSE(c.hub, w, r, StatusClientID(), opts)
}
