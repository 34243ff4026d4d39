package process

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// stderrTail bounds the stderr kept in Result.
const stderrTail = 4096

// Run starts cmd, hands every stdout line to onLine and waits for exit. On
// ctx cancellation the process group gets SIGTERM, then SIGKILL after the
// grace period.
func Run(ctx context.Context, cmd Command, onLine func(line string)) (*Result, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("process: binary is required")
	}
	grace := cmd.GracePeriod
	if grace == 0 {
		grace = 5 * time.Second
	}

	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...) //nolint:gosec // running configured scripts is the point
	c.Dir = cmd.Dir
	c.Env = mergeEnv(cmd.Env)
	c.Stdin = cmd.Stdin
	stderr := &tailBuffer{max: stderrTail}
	c.Stderr = stderr
	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("process: stdout pipe: %w", err)
	}

	// Own process group so cancellation reaches children too.
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
	c.WaitDelay = grace

	start := time.Now()
	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("process: start %s: %w", cmd.Binary, err)
	}
	res := &Result{}
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		res.Lines++
		if onLine != nil {
			onLine(scanner.Text())
		}
	}
	err = c.Wait()
	res.Duration = time.Since(start)
	res.Stderr = stderr.Bytes()
	res.ExitCode = c.ProcessState.ExitCode()

	if err != nil {
		if ctx.Err() != nil {
			return res, fmt.Errorf("process: killed: %w", context.Cause(ctx))
		}
		return res, fmt.Errorf("process: exit code %d: %w", res.ExitCode, err)
	}
	return res, nil
}

func mergeEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil
	}
	return append(os.Environ(), extra...)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) Bytes() []byte { return t.buf }
