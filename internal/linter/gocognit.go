package linter

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cocov-ci/pluginkit/internal/report"
)

func (e *Engine) runGocognit(ctx context.Context, pkgs []string) ([]report.Issue, error) {
	argv, err := e.tool(Gocognit)
	if err != nil {
		return nil, err
	}

	over := e.Config.GocognitOver()
	argv = append(argv, "-over", strconv.Itoa(over))
	argv = append(argv, e.Config.Linters.Gocognit.Args...)
	// gocognit walks directories, not package patterns.
	argv = append(argv, patternDirs(pkgs)...)

	out, err := e.output(ctx, Gocognit, argv)
	if err != nil {
		return nil, err
	}
	return parseGocognitOutput(out, over), nil
}

// parseGocognitOutput parses the default gocognit output format:
//
//	<complexity> <package> <function> <file>:<line>:<col>
func parseGocognitOutput(data []byte, over int) []report.Issue {
	var issues []report.Issue
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		complexity, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}

		pkg := fields[1]
		funcName := strings.Join(fields[2:len(fields)-1], " ")
		file, lineNum := parsePosition(fields[len(fields)-1])

		issues = append(issues, report.Issue{
			Kind:      report.Complexity,
			File:      file,
			LineStart: lineNum,
			LineEnd:   lineNum,
			Message:   fmt.Sprintf("cognitive complexity %d of func %s.%s is high (> %d)", complexity, pkg, funcName, over),
		})
	}
	return issues
}

// parsePosition extracts file and line from "file:line:col".
func parsePosition(pos string) (string, int) {
	parts := strings.Split(pos, ":")
	switch len(parts) {
	case 0, 1:
		return pos, 0
	case 2:
		lineNum, _ := strconv.Atoi(parts[1])
		return parts[0], lineNum
	}
	lineNum, _ := strconv.Atoi(parts[len(parts)-2])
	return strings.Join(parts[:len(parts)-2], ":"), lineNum
}

// patternDirs turns "./x/..." patterns into directories. Import paths
// cannot be mapped without the go tool and are replaced by ".".
func patternDirs(pkgs []string) []string {
	var dirs []string
	seen := map[string]bool{}
	for _, p := range pkgs {
		d := strings.TrimSuffix(strings.TrimSuffix(p, "..."), "/")
		if d == "" || !strings.HasPrefix(d, ".") {
			d = "."
		}
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	return dirs
}
