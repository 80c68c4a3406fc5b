package linter

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cocov-ci/pluginkit/internal/report"
)

func (e *Engine) runDupl(ctx context.Context) ([]report.Issue, error) {
	argv, err := e.tool(Dupl)
	if err != nil {
		return nil, err
	}

	threshold := e.Config.DuplThreshold()
	argv = append(argv, "-plumbing", "-t", strconv.Itoa(threshold))
	argv = append(argv, e.Config.Linters.Dupl.Args...)
	// dupl operates on file paths, not import paths.
	argv = append(argv, ".")

	out, err := e.output(ctx, Dupl, argv)
	if err != nil {
		return nil, err
	}
	return parseDuplOutput(out, threshold), nil
}

var duplLine = regexp.MustCompile(`^(.+):(\d+)-(\d+)$`)

type duplEntry struct {
	File      string
	StartLine int
	EndLine   int
}

func (d duplEntry) String() string {
	return fmt.Sprintf("%s:%d-%d", d.File, d.StartLine, d.EndLine)
}

// parseDuplOutput parses dupl -plumbing output: blank-line separated groups
// of "file:start-end" clones. Every clone in a group is reported, pointing at
// another member of the group.
func parseDuplOutput(data []byte, threshold int) []report.Issue {
	var issues []report.Issue
	var group []duplEntry

	flush := func() {
		if len(group) >= 2 {
			issues = append(issues, groupToIssues(group, threshold)...)
		}
		group = nil
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		m := duplLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		start, _ := strconv.Atoi(m[2])
		end, _ := strconv.Atoi(m[3])
		group = append(group, duplEntry{File: m[1], StartLine: start, EndLine: end})
	}
	flush()

	return issues
}

func groupToIssues(group []duplEntry, tokens int) []report.Issue {
	out := make([]report.Issue, 0, len(group))
	for i, d := range group {
		other := group[0]
		if i == 0 {
			other = group[1]
		}
		out = append(out, report.Issue{
			Kind:      report.Duplication,
			File:      d.File,
			LineStart: d.StartLine,
			LineEnd:   d.EndLine,
			Message:   fmt.Sprintf("block of at least %d tokens duplicated in %s (%d clones)", tokens, other, len(group)),
		})
	}
	return out
}
