package process

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/kbukum/podflow/dag"
	"github.com/kbukum/podflow/engine"
)

// Config selects and configures script execution.
type Config struct {
	// Enabled swaps the simulated runner for ScriptRunner.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Dir resolves relative script names and is the working directory.
	Dir string `yaml:"dir" mapstructure:"dir"`
	// Interpreter runs the script, e.g. "python3"; empty executes it
	// directly.
	Interpreter string        `yaml:"interpreter" mapstructure:"interpreter"`
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period"`
	// Env holds extra KEY=value pairs for every script.
	Env []string `yaml:"env" mapstructure:"env"`
}

// ScriptRunner runs node.Config.ScriptName for each node.
type ScriptRunner struct {
	cfg Config
}

var _ engine.Runner = (*ScriptRunner)(nil)

// NewScriptRunner returns a runner over cfg.
func NewScriptRunner(cfg Config) *ScriptRunner {
	return &ScriptRunner{cfg: cfg}
}

// Run implements engine.Runner. Progress lines are reported as they
// arrive; values that do not increase are ignored.
func (r *ScriptRunner) Run(ctx context.Context, node dag.Node, report engine.ProgressFunc) error {
	if node.Config.ScriptName == "" {
		return fmt.Errorf("node %s has no script", node.ID)
	}
	script := node.Config.ScriptName
	if !filepath.IsAbs(script) && r.cfg.Dir != "" {
		script = filepath.Join(r.cfg.Dir, script)
	}
	cmd := Command{
		Binary:      script,
		Dir:         r.cfg.Dir,
		GracePeriod: r.cfg.GracePeriod,
		Env: append([]string{
			"PODFLOW_NODE_ID=" + node.ID,
			"PODFLOW_NODE_TYPE=" + string(node.Type),
			"PODFLOW_INPUT_PATH=" + node.Config.InputPath,
			"PODFLOW_OUTPUT_PATH=" + node.Config.OutputPath,
			"PODFLOW_RESOURCE_TIER=" + string(node.Resource.Tier),
		}, r.cfg.Env...),
	}
	if r.cfg.Interpreter != "" {
		cmd.Binary, cmd.Args = r.cfg.Interpreter, []string{script}
	}

	last := 0
	var reportErr error
	res, err := Run(ctx, cmd, func(line string) {
		p, ok := ParseProgress(line)
		if !ok || p <= last || reportErr != nil {
			return
		}
		if reportErr = report(p); reportErr == nil {
			last = p
		}
	})
	if err != nil {
		if res != nil && len(res.Stderr) > 0 {
			return fmt.Errorf("%w: %s", err, lastLine(res.Stderr))
		}
		return err
	}
	return reportErr
}

var progressLine = regexp.MustCompile(`(?i)^\s*progress[\s:=]+(\d{1,3})\s*%?\s*$`)

// ParseProgress extracts a 0..100 value from a progress line.
func ParseProgress(line string) (int, bool) {
	m := progressLine.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	p, err := strconv.Atoi(m[1])
	if err != nil || p > 100 {
		return 0, false
	}
	return p, true
}

func lastLine(b []byte) string {
	b = bytes.TrimRight(b, "\n")
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	return string(b)
}
