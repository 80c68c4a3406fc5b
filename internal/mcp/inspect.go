package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/cocov-ci/pluginkit/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type inspectParams struct {
	RunID  string `json:"run_id" jsonschema:"the run ID from a plugin_exec or plugin_lint result"`
	Stream string `json:"stream,omitempty" jsonschema:"stdout or stderr to return the full captured output"`
	File   string `json:"file,omitempty" jsonschema:"only list issues reported against this file; a trailing / selects a directory"`
	Kind   string `json:"kind,omitempty" jsonschema:"only list issues of this kind"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}

	h.mu.Lock()
	rec, err := h.store.Load(params.RunID)
	var issues []report.Issue
	if err == nil {
		issues = report.ByFile(rec, params.File)
	}
	h.mu.Unlock()
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	if params.Stream != "" {
		out, err := rec.Stream(params.Stream)
		if err != nil {
			return errorResult(err.Error())
		}
		if out == "" {
			return textResult(fmt.Sprintf("Run %s wrote nothing to %s.", rec.ID, params.Stream))
		}
		return textResult(out)
	}

	if params.Kind != "" {
		kind, err := report.ParseKind(params.Kind)
		if err != nil {
			return errorResult(err.Error())
		}
		issues = report.ByKind(&report.Record{Issues: issues}, kind)
	}

	return textResult(formatInspectOutput(rec, issues))
}

func formatInspectOutput(rec *report.Record, issues []report.Issue) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s (%s)\n", rec.ID, rec.Outcome)
	fmt.Fprintf(&b, "Command: %s\n", rec.Command)
	if rec.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", rec.Error)
	}
	fmt.Fprintln(&b)

	if len(issues) == 0 {
		fmt.Fprintln(&b, "No issues.")
		return b.String()
	}

	// Group by kind for the header.
	counts := make(map[report.Kind]int)
	for _, i := range issues {
		counts[i.Kind]++
	}
	var parts []string
	for _, k := range report.Kinds {
		if counts[k] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[k], k))
		}
	}
	fmt.Fprintf(&b, "Issues: %s\n\n", strings.Join(parts, ", "))

	for _, i := range issues {
		if i.LineEnd > i.LineStart {
			fmt.Fprintf(&b, "%s:%d-%d: ", i.File, i.LineStart, i.LineEnd)
		} else {
			fmt.Fprintf(&b, "%s:%d: ", i.File, i.LineStart)
		}
		fmt.Fprintf(&b, "[%s] %s\n", i.Kind, i.Message)
	}
	return b.String()
}
