package linter

import (
	"strings"
	"testing"

	"github.com/cocov-ci/pluginkit/internal/report"
)

func lines(ss ...string) string {
	return strings.Join(ss, "\n") + "\n"
}

// --- staticcheck ---

func TestParseStaticcheckOutput(t *testing.T) {
	input := lines(
		`{"code":"SA1019","severity":"error","location":{"file":"a.go","line":5,"column":1},"end":{"file":"a.go","line":7,"column":2},"message":"deprecated"}`,
		`{"code":"compile","severity":"error","location":{"file":"","line":0,"column":0},"message":"broken"}`,
		`not json`,
		``,
	)
	issues := parseStaticcheckOutput([]byte(input))
	if len(issues) != 1 {
		t.Fatalf("len(issues) = %d, want 1", len(issues))
	}
	got := issues[0]
	if got.LineStart != 5 || got.LineEnd != 7 {
		t.Errorf("lines = %d-%d, want 5-7", got.LineStart, got.LineEnd)
	}
	if got.Message != "deprecated (SA1019)" {
		t.Errorf("Message = %q, want 'deprecated (SA1019)'", got.Message)
	}
}

func TestParseStaticcheckOutput_MissingEnd(t *testing.T) {
	input := `{"code":"S1000","location":{"file":"a.go","line":9,"column":1},"message":"use plain channel send"}`
	issues := parseStaticcheckOutput([]byte(input))
	if len(issues) != 1 {
		t.Fatalf("len(issues) = %d, want 1", len(issues))
	}
	if issues[0].LineEnd != 9 {
		t.Errorf("LineEnd = %d, want 9", issues[0].LineEnd)
	}
}

func TestStaticcheckKind(t *testing.T) {
	tests := map[string]report.Kind{
		"SA4006": report.Bug,
		"S1000":  report.Style,
		"ST1003": report.Convention,
		"QF1001": report.Style,
		"U1000":  report.Quality,
		"X9999":  report.Style,
	}
	for code, want := range tests {
		if got := staticcheckKind(code); got != want {
			t.Errorf("staticcheckKind(%q) = %q, want %q", code, got, want)
		}
	}
}

// --- golangci-lint ---

func TestParseGolangciOutput_WithIssues(t *testing.T) {
	input := `{"Issues":[{"FromLinter":"errcheck","Text":"unchecked error","Pos":{"Filename":"foo.go","Line":10,"Column":5}}]}`
	issues := parseGolangciOutput([]byte(input))
	if len(issues) != 1 {
		t.Fatalf("len(issues) = %d, want 1", len(issues))
	}
	if issues[0].File != "foo.go" {
		t.Errorf("File = %q, want foo.go", issues[0].File)
	}
	if issues[0].LineStart != 10 || issues[0].LineEnd != 10 {
		t.Errorf("lines = %d-%d, want 10-10", issues[0].LineStart, issues[0].LineEnd)
	}
	if issues[0].Kind != report.Bug {
		t.Errorf("Kind = %q, want bug", issues[0].Kind)
	}
	if issues[0].Message != "unchecked error (errcheck)" {
		t.Errorf("Message = %q, want 'unchecked error (errcheck)'", issues[0].Message)
	}
}

func TestParseGolangciOutput_LineRange(t *testing.T) {
	input := `{"Issues":[{"FromLinter":"dupl","Text":"lines 3-9 are duplicate","Pos":{"Filename":"foo.go","Line":3},"LineRange":{"From":3,"To":9}}]}`
	issues := parseGolangciOutput([]byte(input))
	if len(issues) != 1 {
		t.Fatalf("len(issues) = %d, want 1", len(issues))
	}
	if issues[0].LineEnd != 9 {
		t.Errorf("LineEnd = %d, want 9", issues[0].LineEnd)
	}
	if issues[0].Kind != report.Duplication {
		t.Errorf("Kind = %q, want duplication", issues[0].Kind)
	}
}

func TestParseGolangciOutput_NoIssues(t *testing.T) {
	if issues := parseGolangciOutput([]byte(`{"Issues":[]}`)); len(issues) != 0 {
		t.Errorf("len(issues) = %d, want 0", len(issues))
	}
}

func TestParseGolangciOutput_InvalidJSON(t *testing.T) {
	if issues := parseGolangciOutput([]byte("{broken")); len(issues) != 0 {
		t.Errorf("len(issues) = %d, want 0 for invalid JSON", len(issues))
	}
}

func TestParseGolangciOutput_Empty(t *testing.T) {
	if issues := parseGolangciOutput(nil); len(issues) != 0 {
		t.Errorf("len(issues) = %d, want 0 for empty input", len(issues))
	}
}

func TestGolangciKind(t *testing.T) {
	tests := map[string]report.Kind{
		"gosec":       report.Security,
		"prealloc":    report.Performance,
		"gocyclo":     report.Complexity,
		"gocognit":    report.Complexity,
		"dupl":        report.Duplication,
		"errcheck":    report.Bug,
		"govet":       report.Bug,
		"staticcheck": report.Bug,
		"revive":      report.Style,
	}
	for linter, want := range tests {
		if got := golangciKind(linter); got != want {
			t.Errorf("golangciKind(%q) = %q, want %q", linter, got, want)
		}
	}
}

// --- gocognit ---

func TestParseGocognitOutput(t *testing.T) {
	input := lines(
		`21 runner (*Runner).Exec internal/runner/runner.go:54:1`,
		`17 main main cmd/pluginkit/main.go:20:1`,
		`garbage`,
		`x pkg fn file.go:1:1`,
	)
	issues := parseGocognitOutput([]byte(input), 15)
	if len(issues) != 2 {
		t.Fatalf("len(issues) = %d, want 2", len(issues))
	}
	got := issues[0]
	if got.File != "internal/runner/runner.go" {
		t.Errorf("File = %q, want internal/runner/runner.go", got.File)
	}
	if got.LineStart != 54 || got.LineEnd != 54 {
		t.Errorf("lines = %d-%d, want 54-54", got.LineStart, got.LineEnd)
	}
	if got.Kind != report.Complexity {
		t.Errorf("Kind = %q, want complexity", got.Kind)
	}
	want := "cognitive complexity 21 of func runner.(*Runner).Exec is high (> 15)"
	if got.Message != want {
		t.Errorf("Message = %q, want %q", got.Message, want)
	}
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in   string
		file string
		line int
	}{
		{"a.go:12:3", "a.go", 12},
		{"a.go:12", "a.go", 12},
		{"a.go", "a.go", 0},
		{`C:\src\a.go:4:1`, `C:\src\a.go`, 4},
	}
	for _, tt := range tests {
		file, line := parsePosition(tt.in)
		if file != tt.file || line != tt.line {
			t.Errorf("parsePosition(%q) = (%q, %d), want (%q, %d)", tt.in, file, line, tt.file, tt.line)
		}
	}
}

func TestPatternDirs(t *testing.T) {
	got := patternDirs([]string{"./...", "./pkg/...", "example.com/x", "./pkg"})
	want := []string{".", "./pkg"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("patternDirs = %v, want %v", got, want)
	}
}

// --- dupl ---

func TestParseDuplOutput(t *testing.T) {
	input := lines(
		`a.go:10-20`,
		`b.go:30-40`,
		`c.go:1-11`,
		``,
		`d.go:5-9`,
		``,
		`e.go:1-3`,
		`f.go:7-9`,
	)
	issues := parseDuplOutput([]byte(input), 50)
	// First group has three clones, the lone d.go entry is ignored.
	if len(issues) != 5 {
		t.Fatalf("len(issues) = %d, want 5", len(issues))
	}
	if issues[0].File != "a.go" || !strings.Contains(issues[0].Message, "b.go:30-40") {
		t.Errorf("issues[0] = %+v, want a.go pointing at b.go", issues[0])
	}
	if issues[2].File != "c.go" || !strings.Contains(issues[2].Message, "a.go:10-20") {
		t.Errorf("issues[2] = %+v, want c.go pointing at a.go", issues[2])
	}
	if issues[4].File != "f.go" || issues[4].LineStart != 7 || issues[4].LineEnd != 9 {
		t.Errorf("issues[4] = %+v, want f.go:7-9", issues[4])
	}
	for _, issue := range issues {
		if issue.Kind != report.Duplication {
			t.Errorf("Kind = %q, want duplication", issue.Kind)
		}
	}
}

func TestParseDuplOutput_Empty(t *testing.T) {
	if issues := parseDuplOutput(nil, 50); len(issues) != 0 {
		t.Errorf("len(issues) = %d, want 0", len(issues))
	}
}
