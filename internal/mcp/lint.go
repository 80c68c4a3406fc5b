package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cocov-ci/pluginkit/internal/linter"
	"github.com/cocov-ci/pluginkit/internal/report"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type lintParams struct {
	Packages []string `json:"packages,omitempty" jsonschema:"Go import paths of packages to analyse (e.g. example.com/foo/bar/...) or absolute directory paths. Defaults to all packages in the workspace."`
	Linters  []string `json:"linters,omitempty" jsonschema:"analysers to run: staticcheck, golangci-lint, gocognit, dupl. Defaults to the configured set."`
}

// recordingSink validates issues, forwards them to the server's emitter
// when one is set and keeps them for the stored run.
type recordingSink struct {
	next   *report.Emitter
	issues []report.Issue
}

func (s *recordingSink) Emit(issue report.Issue) (report.Issue, error) {
	var err error
	if s.next != nil {
		issue, err = s.next.Emit(issue)
	} else if err = issue.Validate(); err == nil {
		issue = issue.WithUID()
	}
	if err != nil {
		return report.Issue{}, err
	}
	s.issues = append(s.issues, issue)
	return issue, nil
}

func (h *handler) lintHandler(ctx context.Context, req *mcp.CallToolRequest, params lintParams) (*mcp.CallToolResult, any, error) {
	base, r, workspace := h.snapshot()
	cfg := *base
	if len(params.Linters) > 0 {
		cfg.Linters.Enabled = params.Linters
	}

	sink := &recordingSink{next: h.emitter}
	eng := &linter.Engine{
		Config:  &cfg,
		Runner:  r,
		Sink:    sink,
		Workdir: workspace,
		Logger:  h.log,
	}

	started := time.Now()
	sum, err := eng.Run(ctx, params.Packages)

	rec := &report.Record{
		ID:        uuid.New().String(),
		Command:   strings.TrimSpace("lint " + strings.Join(params.Packages, " ")),
		Dir:       workspace,
		Outcome:   report.Succeeded,
		Issues:    sink.issues,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	if sum != nil {
		rec.Stdout = sum.String()
	}
	if err != nil {
		rec.Outcome = report.Failed
		rec.Error = err.Error()
	}

	// Save results for plugin_inspect.
	if err := h.store.Save(rec); err != nil {
		h.log.Warn().Err(err).Str("run", rec.ID).Msg("storing run")
	}

	text := formatLint(rec)
	if err != nil {
		return errorResult(text)
	}
	return textResult(text)
}

func formatLint(rec *report.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lint: %d issues\n", len(rec.Issues))
	fmt.Fprintf(&b, "Run: %s\n", rec.ID)
	fmt.Fprintln(&b)
	fmt.Fprint(&b, rec.Stdout)
	if rec.Error != "" {
		fmt.Fprintf(&b, "\nErrors:\n%s\n", rec.Error)
	}
	fmt.Fprintf(&b, "\nInspect with plugin_inspect(run_id=%q, file=\"<path>\", kind=\"<kind>\").\n", rec.ID)
	return b.String()
}
