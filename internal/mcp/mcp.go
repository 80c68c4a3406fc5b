// Package mcp provides the pluginkit MCP server. It exposes the process
// executor, issue emission and the execution record store as tools so an
// assistant can drive a plugin's analysers interactively.
package mcp

import (
	"context"
	_ "embed"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cocov-ci/pluginkit"
	"github.com/cocov-ci/pluginkit/internal/config"
	"github.com/cocov-ci/pluginkit/internal/report"
	"github.com/cocov-ci/pluginkit/internal/runner"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	store   report.Store
	emitter *report.Emitter // nil when issues are only recorded
	log     zerolog.Logger

	mu sync.Mutex // guards read-modify-write of stored records

	// The workspace state is replaced, never modified, when a client
	// declares roots. Tool handlers take a snapshot per call.
	stateMu   sync.RWMutex
	cfg       *config.File
	runner    *runner.Runner
	workspace string
}

// snapshot returns the current configuration, runner and workspace.
// The returned values must not be modified.
func (h *handler) snapshot() (*config.File, *runner.Runner, string) {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.cfg, h.runner, h.workspace
}

// NewServer creates an MCP server with all pluginkit tools registered.
func NewServer(cfg *config.File, r *runner.Runner, store report.Store, workspace string, opts ...ServerOption) *mcp.Server {
	so := serverOptions{log: zerolog.Nop()}
	for _, o := range opts {
		o(&so)
	}

	rc := *r
	h := &handler{
		cfg:       cfg,
		runner:    &rc,
		store:     store,
		workspace: workspace,
		emitter:   so.emitter,
		log:       so.log,
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "pluginkit", Version: pluginkit.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "plugin_exec",
		Description: `Run a command in the workspace and capture its stdout and stderr to completion.

Pass either command (program and arguments, no shell) or script (run with /bin/sh -c).
The run is stored; drill into its full output or attach issues with the returned run ID.`,
	}, h.execHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "plugin_emit",
		Description: `Validate and emit an issue (a finding at a file and line range).

kind is one of style, performance, security, bug, complexity, duplication, convention, quality.
The uid is derived from the other fields when omitted. Pass run_id to attach the issue to a
stored run.`,
	}, h.emitHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "plugin_inspect",
		Description: `Drill into a stored run from plugin_exec or plugin_lint.

With stream ("stdout" or "stderr") the full captured output is returned. Otherwise the run's
issues are listed, optionally filtered by file (a trailing "/" selects a directory) and kind.`,
	}, h.inspectHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "plugin_lint",
		Description: `Run the built-in Go analysers (staticcheck, golangci-lint, gocognit, dupl) and
emit their findings as issues. Analysers that are not installed are skipped.
Results are stored for drill-down via plugin_inspect.`,
	}, h.lintHandler)

	return s
}

// ServerOption configures the pluginkit MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	emitter *report.Emitter
	log     zerolog.Logger
}

// WithEmitter also writes every emitted issue to e.
func WithEmitter(e *report.Emitter) ServerOption {
	return func(o *serverOptions) {
		o.emitter = e
	}
}

// WithLogger sets the server's logger.
func WithLogger(log zerolog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.log = log
	}
}

// updateWorkspaceFromRoots queries the client for MCP roots and points the
// runner at the first file root, reloading its configuration. This is
// called during session initialization. Sessions already running tools
// keep the runner they started with.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	cfg, err := config.Load(workspace)
	if err != nil {
		h.log.Warn().Err(err).Str("workspace", workspace).Msg("ignoring client root")
		return
	}

	h.stateMu.Lock()
	r := *h.runner
	r.Workspace = workspace
	r.Timeout = cfg.Timeout()
	r.WaitDelay = cfg.WaitDelay()
	r.Env = cfg.Env
	h.runner = &r
	h.cfg = cfg
	h.workspace = workspace
	h.stateMu.Unlock()

	h.log.Info().Str("workspace", workspace).Msg("workspace set from client roots")
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}

func truncateLines(s string, maxLines int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:maxLines], "\n") + fmt.Sprintf("\n... (%d more lines)", len(lines)-maxLines)
}
