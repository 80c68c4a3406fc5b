package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cocov-ci/pluginkit/internal/report"
	"github.com/cocov-ci/pluginkit/internal/runner"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type execParams struct {
	Command []string          `json:"command,omitempty" jsonschema:"program followed by its arguments, run without a shell"`
	Script  string            `json:"script,omitempty" jsonschema:"shell script run with /bin/sh -c; used when command is empty"`
	Dir     string            `json:"dir,omitempty" jsonschema:"working directory; relative paths resolve against the workspace. Defaults to the server's working directory."`
	Env     map[string]string `json:"env,omitempty" jsonschema:"environment variables applied on top of the inherited environment"`
	Isolate bool              `json:"isolate,omitempty" jsonschema:"when true the child sees only env, not the inherited environment"`
}

func (p execParams) command() (runner.Command, error) {
	var c runner.Command
	switch {
	case len(p.Command) > 0:
		c = runner.Cmd(p.Command[0], p.Command[1:]...)
	case p.Script != "":
		c = runner.Shell(p.Script)
	default:
		return c, fmt.Errorf("command or script is required")
	}
	c = c.WithDir(p.Dir).WithEnv(p.Env)
	if p.Isolate {
		c = c.Isolated()
	}
	return c, nil
}

func (h *handler) execHandler(ctx context.Context, req *mcp.CallToolRequest, params execParams) (*mcp.CallToolResult, any, error) {
	c, err := params.command()
	if err != nil {
		return errorResult(err.Error())
	}

	_, r, _ := h.snapshot()
	started := time.Now()
	res, err := r.Exec(ctx, c)
	rec := report.NewRecord(c, res, err, started)

	// Save results for plugin_inspect.
	if err := h.store.Save(rec); err != nil {
		h.log.Warn().Err(err).Str("run", rec.ID).Msg("storing run")
	}

	if rec.Outcome == report.NotStarted {
		return errorResult(formatExec(rec))
	}
	return textResult(formatExec(rec))
}

func formatExec(rec *report.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s\n", rec.ID)
	fmt.Fprintf(&b, "Command: %s\n", rec.Command)
	switch {
	case rec.Outcome == report.Succeeded:
		fmt.Fprintln(&b, "Status: succeeded (exit 0)")
	case rec.Outcome == report.NotStarted:
		fmt.Fprintf(&b, "Status: not started (%s)\n", rec.Error)
		return b.String()
	case rec.Signal != "":
		fmt.Fprintf(&b, "Status: failed (%s)\n", rec.Signal)
	default:
		fmt.Fprintf(&b, "Status: failed (exit %d)\n", rec.Status)
	}
	fmt.Fprintf(&b, "Duration: %s\n", rec.Duration.Round(time.Millisecond))

	for _, stream := range []struct {
		name string
		data string
	}{{"stdout", rec.Stdout}, {"stderr", rec.Stderr}} {
		fmt.Fprintln(&b)
		if stream.data == "" {
			fmt.Fprintf(&b, "%s: (empty)\n", stream.name)
			continue
		}
		fmt.Fprintf(&b, "%s (%d bytes):\n", stream.name, len(stream.data))
		for _, line := range strings.Split(truncateLines(stream.data, 40), "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}

	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Inspect with plugin_inspect(run_id=%q, stream=\"stdout\").\n", rec.ID)
	return b.String()
}
