package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/cocov-ci/pluginkit/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type emitParams struct {
	Kind      string `json:"kind" jsonschema:"one of style, performance, security, bug, complexity, duplication, convention, quality"`
	File      string `json:"file" jsonschema:"path of the file relative to the repository root"`
	LineStart int    `json:"line_start" jsonschema:"first line of the finding, starting at 1"`
	LineEnd   int    `json:"line_end,omitempty" jsonschema:"last line of the finding. Defaults to line_start."`
	Message   string `json:"message" jsonschema:"human-readable description of the finding"`
	UID       string `json:"uid,omitempty" jsonschema:"stable identifier; derived from the other fields when omitted"`
	RunID     string `json:"run_id,omitempty" jsonschema:"attach the issue to this stored run"`
}

func (h *handler) emitHandler(ctx context.Context, req *mcp.CallToolRequest, params emitParams) (*mcp.CallToolResult, any, error) {
	issue := report.Issue{
		Kind:      report.Kind(params.Kind),
		File:      params.File,
		LineStart: params.LineStart,
		LineEnd:   params.LineEnd,
		Message:   params.Message,
		UID:       params.UID,
	}
	if issue.LineEnd == 0 {
		issue.LineEnd = issue.LineStart
	}
	if err := issue.Validate(); err != nil {
		return errorResult(err.Error())
	}
	issue = issue.WithUID()

	if params.RunID != "" {
		if err := h.attach(params.RunID, issue); err != nil {
			return errorResult(fmt.Sprintf("Failed to attach issue to run %s: %v", params.RunID, err))
		}
	}

	if h.emitter != nil {
		if _, err := h.emitter.Emit(issue); err != nil {
			return errorResult(fmt.Sprintf("Failed to emit issue: %v", err))
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(issue); err != nil {
		return errorResult(err.Error())
	}
	return textResult("Emitted: " + buf.String())
}

// attach appends issue to the stored run id.
func (h *handler) attach(id string, issue report.Issue) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, err := h.store.Load(id)
	if err != nil {
		return err
	}
	rec.Issues = append(rec.Issues, issue)
	return h.store.Save(rec)
}
