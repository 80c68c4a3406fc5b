package linter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cocov-ci/pluginkit/internal/report"
)

func (e *Engine) runStaticcheck(ctx context.Context, pkgs []string) ([]report.Issue, error) {
	argv, err := e.tool(Staticcheck)
	if err != nil {
		return nil, err
	}

	argv = append(argv, "-f", "json")
	cfg := e.Config.Linters.Staticcheck
	if len(cfg.Checks) > 0 {
		argv = append(argv, "-checks", strings.Join(cfg.Checks, ","))
	}
	argv = append(argv, cfg.Args...)
	argv = append(argv, pkgs...)

	out, err := e.output(ctx, Staticcheck, argv)
	if err != nil {
		return nil, err
	}
	return parseStaticcheckOutput(out), nil
}

// staticcheckEvent represents a single JSON line from `staticcheck -f json`.
type staticcheckEvent struct {
	Code     string              `json:"code"`
	Severity string              `json:"severity"`
	Message  string              `json:"message"`
	Location staticcheckLocation `json:"location"`
	End      staticcheckLocation `json:"end"`
}

type staticcheckLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

func parseStaticcheckOutput(data []byte) []report.Issue {
	var issues []report.Issue
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var ev staticcheckEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		// Compiler errors carry the "compile" code and no useful position.
		if ev.Code == "" || ev.Code == "compile" {
			continue
		}

		end := ev.End.Line
		if end < ev.Location.Line {
			end = ev.Location.Line
		}
		issues = append(issues, report.Issue{
			Kind:      staticcheckKind(ev.Code),
			File:      ev.Location.File,
			LineStart: ev.Location.Line,
			LineEnd:   end,
			Message:   fmt.Sprintf("%s (%s)", ev.Message, ev.Code),
		})
	}
	return issues
}

// staticcheckKind maps a check code to an issue kind by its family prefix.
func staticcheckKind(code string) report.Kind {
	switch {
	case strings.HasPrefix(code, "SA"):
		return report.Bug
	case strings.HasPrefix(code, "ST"):
		return report.Convention
	case strings.HasPrefix(code, "QF"), strings.HasPrefix(code, "S"):
		return report.Style
	case strings.HasPrefix(code, "U"):
		return report.Quality
	default:
		return report.Style
	}
}
