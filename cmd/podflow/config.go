package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/podflow/config"
	"github.com/kbukum/podflow/dag"
	"github.com/kbukum/podflow/engine"
	"github.com/kbukum/podflow/observability"
	"github.com/kbukum/podflow/process"
	"github.com/kbukum/podflow/redis"
	"github.com/kbukum/podflow/server"
	"github.com/kbukum/podflow/sse"
)

// Config is the podflow binary configuration.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	// Graph is a template name or a graph file; empty means the default
	// pipeline.
	Graph string `yaml:"graph" mapstructure:"graph"`

	Engine        engine.Config        `yaml:"engine" mapstructure:"engine"`
	Scripts       process.Config       `yaml:"scripts" mapstructure:"scripts"`
	Server        server.Config        `yaml:"server" mapstructure:"server"`
	SSE           sse.Config           `yaml:"sse" mapstructure:"sse"`
	Redis         redis.Config         `yaml:"redis" mapstructure:"redis"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = serviceName
	}
	c.ServiceConfig.ApplyDefaults()
	c.Engine.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.SSE.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.Observability.ApplyDefaults()
}

func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("config.engine: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("config.server: %w", err)
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("config.redis: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("config.observability: %w", err)
	}
	return nil
}

// loadConfig reads the config named by the persistent flags.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	var opts []config.LoaderOption
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	if path, _ := cmd.Flags().GetString("env-file"); path != "" {
		opts = append(opts, config.WithEnvFile(path))
	}
	cfg := &Config{}
	if err := config.LoadConfig(serviceName, cfg, opts...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newRunner returns the script runner when enabled, otherwise the
// simulated runner failing the nodes in failAt.
func newRunner(cfg *Config, failAt map[string]int) engine.Runner {
	if cfg.Scripts.Enabled {
		return process.NewScriptRunner(cfg.Scripts)
	}
	sim := engine.NewSimulatedRunner(cfg.Engine)
	sim.FailAt = failAt
	return sim
}

// loadGraph resolves ref against the template registry and builds it with
// the engine's feedback classifier.
func loadGraph(reg *dag.Registry, ref string, ecfg engine.Config) (*dag.Graph, error) {
	def, err := dag.Resolve(reg, ref)
	if err != nil {
		return nil, err
	}
	return dag.Build(def, dag.WithClassifier(ecfg.Classifier()))
}
