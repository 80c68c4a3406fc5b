package linter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cocov-ci/pluginkit/internal/report"
)

func (e *Engine) runGolangciLint(ctx context.Context, pkgs []string) ([]report.Issue, error) {
	argv, err := e.tool(GolangciLint)
	if err != nil {
		return nil, err
	}

	cfg := e.Config.Linters.GolangciLint
	argv = append(argv, "run", "--out-format", "json")
	if cfg.Config != "" {
		argv = append(argv, "--config", cfg.Config)
	}
	argv = append(argv, cfg.Args...)
	argv = append(argv, pkgs...)

	out, err := e.output(ctx, GolangciLint, argv)
	if err != nil {
		return nil, err
	}
	return parseGolangciOutput(out), nil
}

// golangciOutput is the top-level JSON output from golangci-lint.
type golangciOutput struct {
	Issues []golangciIssue `json:"Issues"`
}

type golangciIssue struct {
	FromLinter string      `json:"FromLinter"`
	Text       string      `json:"Text"`
	Pos        golangciPos `json:"Pos"`
	LineRange  *struct {
		From int `json:"From"`
		To   int `json:"To"`
	} `json:"LineRange,omitempty"`
}

type golangciPos struct {
	Filename string `json:"Filename"`
	Line     int    `json:"Line"`
	Column   int    `json:"Column"`
}

func parseGolangciOutput(stdout []byte) []report.Issue {
	var out golangciOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		return nil
	}

	var issues []report.Issue
	for _, gi := range out.Issues {
		start, end := gi.Pos.Line, gi.Pos.Line
		if gi.LineRange != nil && gi.LineRange.From > 0 && gi.LineRange.To >= gi.LineRange.From {
			start, end = gi.LineRange.From, gi.LineRange.To
		}
		issues = append(issues, report.Issue{
			Kind:      golangciKind(gi.FromLinter),
			File:      gi.Pos.Filename,
			LineStart: start,
			LineEnd:   end,
			Message:   fmt.Sprintf("%s (%s)", gi.Text, gi.FromLinter),
		})
	}
	return issues
}

func golangciKind(linter string) report.Kind {
	switch linter {
	case "gosec":
		return report.Security
	case "prealloc":
		return report.Performance
	case "gocyclo", "gocognit", "cyclop":
		return report.Complexity
	case "dupl":
		return report.Duplication
	case "errcheck", "govet", "staticcheck":
		return report.Bug
	default:
		return report.Style
	}
}
