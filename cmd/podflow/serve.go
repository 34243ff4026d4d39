package main

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/kbukum/podflow/api"
	"github.com/kbukum/podflow/bootstrap"
	"github.com/kbukum/podflow/dag"
	"github.com/kbukum/podflow/engine"
	"github.com/kbukum/podflow/logger"
	"github.com/kbukum/podflow/observability"
	"github.com/kbukum/podflow/redis"
	"github.com/kbukum/podflow/server"
	"github.com/kbukum/podflow/sse"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and status stream",
		Long:  `Serves the graph editing and run API, streams node status over SSE and optionally mirrors it into Redis.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if port, _ := cmd.Flags().GetInt("port"); port > 0 {
				cfg.Server.Port = port
			}
			app, err := newServeApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
	cmd.Flags().IntP("port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

// newServeApp wires the orchestrator, the status stream, the optional Redis
// mirror and the HTTP server, in start order.
func newServeApp(ctx context.Context, cfg *Config, opts ...bootstrap.Option) (*bootstrap.App[*Config], error) {
	app, err := bootstrap.NewApp(cfg, opts...)
	if err != nil {
		return nil, err
	}
	metrics, err := setupObservability(ctx, app)
	if err != nil {
		return nil, err
	}

	reg := dag.NewRegistry()
	graph, err := loadGraph(reg, cfg.Graph, cfg.Engine)
	if err != nil {
		return nil, err
	}

	var mirror *redis.Component
	orch, err := engine.New(cfg.Engine,
		engine.WithGraph(graph),
		engine.WithRunner(newRunner(cfg, nil)),
		engine.WithInstruments(metrics),
		engine.WithLogger(app.Logger.WithComponent("engine")),
		engine.WithResultHook(func(res *engine.Result) {
			if mirror != nil {
				mirror.SaveResult(res)
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	stream := sse.NewComponent(cfg.SSE, orch)

	handlerOpts := []api.Option{api.WithTemplates(reg), api.WithLogger(app.Logger.WithComponent("api"))}
	if cfg.Redis.Enabled {
		mirror = redis.NewComponent(cfg.Redis, orch)
		handlerOpts = append(handlerOpts, api.WithResults(mirror))
	}

	srv := server.New(cfg.Server, app.Logger.WithComponent("server"))
	srv.ApplyDefaults(app.Name, app.Components.HealthAll)
	api.Mount(srv, api.NewHandler(orch, handlerOpts...), nil)
	srv.Handle("GET "+cfg.SSE.Path, http.HandlerFunc(stream.ServeStatus))

	if err := app.RegisterComponent(orch); err != nil {
		return nil, err
	}
	if err := app.RegisterComponent(stream); err != nil {
		return nil, err
	}
	if mirror != nil {
		if err := app.RegisterComponent(mirror); err != nil {
			return nil, err
		}
	}
	if err := app.RegisterComponent(server.NewComponent(srv)); err != nil {
		return nil, err
	}
	return app, nil
}

// setupObservability installs exporters when enabled and returns the
// engine instruments. Exporters are flushed on stop.
func setupObservability(ctx context.Context, app *bootstrap.App[*Config]) (*observability.Metrics, error) {
	shutdown, err := observability.Init(ctx, app.Cfg.Observability, app.Name, app.Version)
	if err != nil {
		return nil, err
	}
	app.OnStop(func(ctx context.Context) error { return shutdown(ctx) })

	metrics, err := observability.NewMetrics(observability.Meter(serviceName))
	if err != nil {
		app.Logger.Warn("engine instruments unavailable", logger.ErrorFields("metrics", err))
		return nil, nil
	}
	return metrics, nil
}
