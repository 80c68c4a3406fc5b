package mcp

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cocov-ci/pluginkit/internal/config"
	"github.com/cocov-ci/pluginkit/internal/report"
	"github.com/cocov-ci/pluginkit/internal/runner"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// setup creates a full pluginkit MCP server + client over in-memory
// transports, rooted at a fresh workspace.
func setup(t *testing.T, cfg *config.File, opts ...ServerOption) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	if cfg == nil {
		cfg = &config.File{}
	}
	workspace := t.TempDir()
	store := report.NewLRUStore(5, report.NewDiskStore(t.TempDir()))
	r := &runner.Runner{
		Workspace: workspace,
		Timeout:   30 * time.Second,
	}

	server := NewServer(cfg, r, store, workspace, opts...)

	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}

	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})

	return cs
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func resultText(r *mcp.CallToolResult) string {
	var parts []string
	for _, c := range r.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// runID extracts the ID from a "Run: <id>" line.
func runID(t *testing.T, text string) string {
	t.Helper()
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "Run: ") {
			return strings.TrimPrefix(line, "Run: ")
		}
	}
	t.Fatalf("no Run ID found in output:\n%s", text)
	return ""
}

// connect attaches a new client session to server. The client declares
// roots when any are given.
func connect(t *testing.T, server *mcp.Server, roots ...string) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	if err != nil {
		t.Errorf("server.Connect: %v", err)
		return nil
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	for _, root := range roots {
		client.AddRoots(&mcp.Root{URI: "file://" + root})
	}
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Errorf("client.Connect: %v", err)
		return nil
	}

	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})
	return cs
}

// --- plugin_exec ---

func TestPluginExec_Success(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "plugin_exec", map[string]any{
		"command": []string{"echo", "hello"},
	})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "Status: succeeded (exit 0)") {
		t.Errorf("expected success status, got:\n%s", text)
	}
	if !strings.Contains(text, "    hello") {
		t.Errorf("expected stdout in output, got:\n%s", text)
	}
}

func TestPluginExec_Failure(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "plugin_exec", map[string]any{
		"script": "echo oops >&2; exit 3",
	})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("a failing command is not a tool error: %s", text)
	}
	if !strings.Contains(text, "Status: failed (exit 3)") {
		t.Errorf("expected exit 3, got:\n%s", text)
	}
	if !strings.Contains(text, "stdout: (empty)") {
		t.Errorf("expected empty stdout, got:\n%s", text)
	}
}

func TestPluginExec_NotStarted(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "plugin_exec", map[string]any{
		"command": []string{"pluginkit-definitely-missing"},
	})
	if !res.IsError {
		t.Errorf("expected IsError, got:\n%s", resultText(res))
	}
	if !strings.Contains(resultText(res), "not started") {
		t.Errorf("expected not started status, got:\n%s", resultText(res))
	}
}

func TestPluginExec_NothingToRun(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "plugin_exec", map[string]any{})
	if !res.IsError {
		t.Error("expected IsError when neither command nor script is given")
	}
}

func TestPluginExec_IsolatedEnv(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "plugin_exec", map[string]any{
		"command": []string{"/usr/bin/env"},
		"env":     map[string]string{"ONLY": "this"},
		"isolate": true,
	})
	text := resultText(res)
	if !strings.Contains(text, "stdout (10 bytes):\n    ONLY=this") {
		t.Errorf("expected only ONLY=this, got:\n%s", text)
	}
}

func TestPluginExec_RootsDuringCalls(t *testing.T) {
	workspace := t.TempDir()
	root := t.TempDir()
	r := &runner.Runner{Workspace: workspace, Timeout: 30 * time.Second}
	server := NewServer(&config.File{}, r, report.NewLRUStore(50, report.NewDiskStore(t.TempDir())), workspace)

	busy := connect(t, server)
	if busy == nil {
		t.FailNow()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			res, err := busy.CallTool(context.Background(), &mcp.CallToolParams{
				Name:      "plugin_exec",
				Arguments: map[string]any{"script": "pwd", "dir": "."},
			})
			if err != nil {
				t.Errorf("CallTool(plugin_exec): %v", err)
				return
			}
			if res.IsError {
				t.Errorf("unexpected error: %s", resultText(res))
				return
			}
		}
	}()

	var rooted []*mcp.ClientSession
	for i := 0; i < 5; i++ {
		if cs := connect(t, server, root); cs != nil {
			rooted = append(rooted, cs)
		}
	}
	wg.Wait()
	if len(rooted) == 0 {
		t.FailNow()
	}

	// Roots are fetched after initialization, so the switch is not
	// immediate.
	deadline := time.Now().Add(5 * time.Second)
	for {
		text := resultText(callTool(t, rooted[0], "plugin_exec", map[string]any{"script": "pwd", "dir": "."}))
		if strings.Contains(text, "    "+root+"\n") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("workspace never switched to %s, got:\n%s", root, text)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// --- plugin_inspect ---

func TestPluginInspect_Stream(t *testing.T) {
	cs := setup(t, nil)
	text := resultText(callTool(t, cs, "plugin_exec", map[string]any{
		"script": "seq 1 100; echo warn >&2",
	}))
	id := runID(t, text)
	if !strings.Contains(text, "... (60 more lines)") {
		t.Errorf("expected truncated stdout, got:\n%s", text)
	}

	res := callTool(t, cs, "plugin_inspect", map[string]any{"run_id": id, "stream": "stdout"})
	out := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", out)
	}
	if !strings.HasSuffix(out, "99\n100\n") {
		t.Errorf("expected full stdout, got:\n%s", out)
	}

	res = callTool(t, cs, "plugin_inspect", map[string]any{"run_id": id, "stream": "stderr"})
	if got := resultText(res); got != "warn\n" {
		t.Errorf("stderr = %q, want %q", got, "warn\n")
	}

	res = callTool(t, cs, "plugin_inspect", map[string]any{"run_id": id, "stream": "stdin"})
	if !res.IsError {
		t.Error("expected IsError for unknown stream")
	}
}

func TestPluginInspect_MissingRunID(t *testing.T) {
	cs := setup(t, nil)
	_, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "plugin_inspect",
		Arguments: map[string]any{"stream": "stdout"},
	})
	if err == nil {
		t.Error("expected error for missing run_id")
	}
}

func TestPluginInspect_InvalidRunID(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "plugin_inspect", map[string]any{"run_id": "nonexistent-id"})
	if !res.IsError {
		t.Error("expected IsError for invalid run_id")
	}
}

// --- plugin_emit ---

func TestPluginEmit_WritesToEmitter(t *testing.T) {
	var buf bytes.Buffer
	cs := setup(t, nil, WithEmitter(report.NewEmitter(&buf)))

	res := callTool(t, cs, "plugin_emit", map[string]any{
		"kind":       "bug",
		"file":       "f",
		"line_start": 1,
		"message":    "foo",
	})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "3f8f97ddda0b4388bd278778f9ef07296af52c6e") {
		t.Errorf("expected derived uid, got:\n%s", text)
	}
	want := `{"kind":"bug","file":"f","line_start":1,"line_end":1,"message":"foo","uid":"3f8f97ddda0b4388bd278778f9ef07296af52c6e"}` + "\x00"
	if buf.String() != want {
		t.Errorf("emitted = %q, want %q", buf.String(), want)
	}
}

func TestPluginEmit_InvalidKind(t *testing.T) {
	var buf bytes.Buffer
	cs := setup(t, nil, WithEmitter(report.NewEmitter(&buf)))

	res := callTool(t, cs, "plugin_emit", map[string]any{
		"kind":       "nope",
		"file":       "f",
		"line_start": 1,
		"message":    "foo",
	})
	if !res.IsError {
		t.Fatal("expected IsError for invalid kind")
	}
	if !strings.Contains(resultText(res), "valid options are style, performance") {
		t.Errorf("expected kind list, got:\n%s", resultText(res))
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be emitted, got %q", buf.String())
	}
}

func TestPluginEmit_MissingRequired(t *testing.T) {
	cs := setup(t, nil)
	_, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "plugin_emit",
		Arguments: map[string]any{"kind": "bug", "file": "f"},
	})
	if err == nil {
		t.Error("expected error for missing line_start and message")
	}
}

func TestPluginEmit_AttachToRun(t *testing.T) {
	cs := setup(t, nil)
	id := runID(t, resultText(callTool(t, cs, "plugin_exec", map[string]any{
		"command": []string{"true"},
	})))

	for _, args := range []map[string]any{
		{"kind": "style", "file": "a/x.go", "line_start": 3, "message": "naming", "run_id": id},
		{"kind": "bug", "file": "a/y.go", "line_start": 7, "line_end": 9, "message": "nil deref", "run_id": id},
		{"kind": "bug", "file": "b/z.go", "line_start": 1, "message": "leak", "run_id": id},
	} {
		if res := callTool(t, cs, "plugin_emit", args); res.IsError {
			t.Fatalf("plugin_emit: %s", resultText(res))
		}
	}

	text := resultText(callTool(t, cs, "plugin_inspect", map[string]any{"run_id": id}))
	if !strings.Contains(text, "Issues: 1 style, 2 bug") {
		t.Errorf("expected issue counts, got:\n%s", text)
	}

	text = resultText(callTool(t, cs, "plugin_inspect", map[string]any{"run_id": id, "file": "a/", "kind": "bug"}))
	if !strings.Contains(text, "a/y.go:7-9: [bug] nil deref") {
		t.Errorf("expected a/y.go issue, got:\n%s", text)
	}
	if strings.Contains(text, "b/z.go") || strings.Contains(text, "a/x.go") {
		t.Errorf("filters not applied:\n%s", text)
	}

	res := callTool(t, cs, "plugin_emit", map[string]any{
		"kind": "bug", "file": "f", "line_start": 1, "message": "m", "run_id": "nonexistent-id",
	})
	if !res.IsError {
		t.Error("expected IsError for unknown run_id")
	}
}

// --- plugin_lint ---

func TestPluginLint_UnknownLinter(t *testing.T) {
	cs := setup(t, nil)
	res := callTool(t, cs, "plugin_lint", map[string]any{"linters": []string{"bogus"}})
	text := resultText(res)
	if !res.IsError {
		t.Fatalf("expected IsError, got:\n%s", text)
	}
	if !strings.Contains(text, `unknown linter "bogus"`) {
		t.Errorf("expected unknown linter error, got:\n%s", text)
	}

	id := runID(t, text)
	res = callTool(t, cs, "plugin_inspect", map[string]any{"run_id": id})
	if !strings.Contains(resultText(res), "(failed)") {
		t.Errorf("expected failed lint run, got:\n%s", resultText(res))
	}
}

func TestTruncateLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"under limit", "a\nb\nc", 5, "a\nb\nc"},
		{"at limit", "a\nb\nc\n", 3, "a\nb\nc"},
		{"over limit", "a\nb\nc\nd\ne", 2, "a\nb\n... (3 more lines)"},
		{"empty", "", 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateLines(tt.input, tt.max); got != tt.want {
				t.Errorf("truncateLines(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
			}
		})
	}
}
