package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbukum/podflow/bootstrap"
	"github.com/kbukum/podflow/dag"
	"github.com/kbukum/podflow/engine"
	"github.com/kbukum/podflow/redis"
)

// Exit codes of the run command by outcome. Only SUCCEEDED exits 0.
var outcomeExitCodes = map[engine.Outcome]int{
	engine.OutcomeSucceeded:  0,
	engine.OutcomeFailed:     1,
	engine.OutcomeDeadlocked: 2,
	engine.OutcomeTimedOut:   3,
	engine.OutcomeCancelled:  130,
}

type runOptions struct {
	graph  string
	name   string
	failAt map[string]int
	json   bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a graph once and report per-node results",
		Long: `Runs the graph (a template name or a YAML/JSON file) to a terminal outcome and prints every node's result.
The exit code is 0 only when the run SUCCEEDED.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if opts.graph != "" {
				cfg.Graph = opts.graph
			}
			res, err := runOnce(cmd.Context(), cfg, opts, bootstrap.WithSummaryWriter(io.Discard))
			if err != nil {
				return err
			}
			if err := printResult(cmd.OutOrStdout(), res, opts.json); err != nil {
				return err
			}
			if res.Outcome != engine.OutcomeSucceeded {
				code, ok := outcomeExitCodes[res.Outcome]
				if !ok || code == 0 {
					code = 1
				}
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.graph, "graph", "g", "", "template name or graph file (default: config graph, then the default pipeline)")
	cmd.Flags().StringVar(&opts.name, "name", "", "job name (default: Job-YYYY-MM-DD)")
	cmd.Flags().StringToIntVar(&opts.failAt, "fail", nil, "make node fail at a progress value, e.g. --fail node-drift=50 (simulated runner only)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the result as JSON")
	return cmd
}

// runOnce starts an app around the orchestrator, runs the graph and
// returns the result. SIGINT/SIGTERM cancel the run.
func runOnce(ctx context.Context, cfg *Config, opts runOptions, appOpts ...bootstrap.Option) (*engine.Result, error) {
	app, err := bootstrap.NewApp(cfg, appOpts...)
	if err != nil {
		return nil, err
	}
	metrics, err := setupObservability(ctx, app)
	if err != nil {
		return nil, err
	}
	graph, err := loadGraph(dag.NewRegistry(), cfg.Graph, cfg.Engine)
	if err != nil {
		return nil, err
	}

	var mirror *redis.Component
	orch, err := engine.New(cfg.Engine,
		engine.WithGraph(graph),
		engine.WithRunner(newRunner(cfg, opts.failAt)),
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
	if err := app.RegisterComponent(orch); err != nil {
		return nil, err
	}
	if cfg.Redis.Enabled {
		mirror = redis.NewComponent(cfg.Redis, orch)
		if err := app.RegisterComponent(mirror); err != nil {
			return nil, err
		}
	}

	var res *engine.Result
	err = app.RunTask(ctx, func(ctx context.Context) error {
		if _, err := orch.StartRun(ctx, opts.name); err != nil {
			return err
		}
		stop := context.AfterFunc(ctx, func() { _ = orch.Cancel() })
		defer stop()
		res, err = orch.Wait(context.Background())
		return err
	})
	return res, err
}

func printResult(w io.Writer, res *engine.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(w, "%s %s: %s in %s (%d iterations)\n", res.JobID, res.JobName, res.Outcome, res.Duration().Round(time.Millisecond), res.Iterations)
	if res.Reason != "" {
		fmt.Fprintf(w, "reason: %s\n", res.Reason)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tTYPE\tSTATUS\tPROGRESS\tDETAIL")
	for _, id := range resultOrder(res) {
		n := res.Nodes[id]
		detail := n.Error
		if blocked := res.Blocked[id]; len(blocked) > 0 {
			detail = "blocked by " + strings.Join(blocked, ", ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\n", id, n.Type, n.Status, n.Progress, detail)
	}
	return tw.Flush()
}

// resultOrder lists launched nodes by start time, then the rest by id.
func resultOrder(res *engine.Result) []string {
	ids := make([]string, 0, len(res.Nodes))
	for id := range res.Nodes {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		na, nb := res.Nodes[a], res.Nodes[b]
		if na.Launched != nb.Launched {
			if na.Launched {
				return -1
			}
			return 1
		}
		if c := na.Started.Compare(nb.Started); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return ids
}
