// Package linter runs Go analysers against the checked-out repository and
// turns their findings into issues. It is consumed by the `lint` command and
// by plugins that want the built-in analysers.
package linter

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cocov-ci/pluginkit/internal/config"
	"github.com/cocov-ci/pluginkit/internal/report"
	"github.com/cocov-ci/pluginkit/internal/runner"
	"github.com/rs/zerolog"
)

// Linter names accepted in the `linters.enabled` configuration.
const (
	Staticcheck  = "staticcheck"
	GolangciLint = "golangci-lint"
	Gocognit     = "gocognit"
	Dupl         = "dupl"
)

// Executor runs commands. Implemented by runner.Runner.
type Executor interface {
	Exec(ctx context.Context, c runner.Command) (*runner.Result, error)
}

// Sink receives issues. Implemented by report.Emitter.
type Sink interface {
	Emit(issue report.Issue) (report.Issue, error)
}

// Engine holds shared dependencies for all linter adapters.
type Engine struct {
	Config  *config.File
	Runner  Executor
	Sink    Sink
	Workdir string // repository root; emitted paths are relative to it
	Logger  zerolog.Logger
	// Resolve locates a tool binary. Defaults to ResolveTool.
	Resolve func(name string) []string
}

// Summary reports what a Run emitted.
type Summary struct {
	Counts  map[string]int // issues emitted per linter
	Skipped []string       // linters whose tool is not installed
	Invalid int            // findings dropped because they failed validation
}

// Total returns the number of issues emitted.
func (s *Summary) Total() int {
	n := 0
	for _, c := range s.Counts {
		n += c
	}
	return n
}

func (s *Summary) String() string {
	var b strings.Builder
	if s.Total() == 0 {
		fmt.Fprintln(&b, "No issues found.")
	} else {
		fmt.Fprintf(&b, "%d issues emitted\n", s.Total())
	}
	names := make([]string, 0, len(s.Counts))
	for name := range s.Counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "  %s: %d\n", name, s.Counts[name])
	}
	for _, name := range s.Skipped {
		fmt.Fprintf(&b, "  %s: skipped (not installed)\n", name)
	}
	if s.Invalid > 0 {
		fmt.Fprintf(&b, "  dropped %d invalid findings\n", s.Invalid)
	}
	return b.String()
}

// Run executes the enabled linters over packages and emits every finding.
// A linter whose tool is not installed is skipped. Every linter runs even
// when an earlier one fails; failures are joined into the returned error.
func (e *Engine) Run(ctx context.Context, packages []string) (*Summary, error) {
	sum := &Summary{Counts: map[string]int{}}
	pkgs := e.ResolvePackages(packages)

	var errs []error
	for _, name := range e.Config.EnabledLinters() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		issues, err := e.runLinter(ctx, name, pkgs)
		var unavailable ErrToolUnavailable
		if errors.As(err, &unavailable) {
			e.Logger.Warn().Str("linter", name).Msg("tool not installed, skipping")
			sum.Skipped = append(sum.Skipped, name)
			continue
		}
		if err != nil {
			e.Logger.Error().Err(err).Str("linter", name).Msg("linter failed")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}

		for _, issue := range issues {
			issue.File = e.relPath(issue.File)
			if _, err := e.Sink.Emit(issue); err != nil {
				var invalid *report.ValidationError
				if errors.As(err, &invalid) {
					e.Logger.Debug().Err(err).Str("linter", name).Str("file", issue.File).Msg("dropping finding")
					sum.Invalid++
					continue
				}
				return sum, fmt.Errorf("emitting %s finding: %w", name, err)
			}
			sum.Counts[name]++
		}
		e.Logger.Info().Str("linter", name).Int("issues", sum.Counts[name]).Msg("linter finished")
	}
	return sum, errors.Join(errs...)
}

func (e *Engine) runLinter(ctx context.Context, name string, pkgs []string) ([]report.Issue, error) {
	switch name {
	case Staticcheck:
		return e.runStaticcheck(ctx, pkgs)
	case GolangciLint:
		return e.runGolangciLint(ctx, pkgs)
	case Gocognit:
		return e.runGocognit(ctx, pkgs)
	case Dupl:
		return e.runDupl(ctx)
	default:
		return nil, fmt.Errorf("unknown linter %q", name)
	}
}

// output runs argv and returns its stdout. Analysers exit non-zero when
// they report findings, so a non-zero exit that produced output is parsed
// like a successful one.
func (e *Engine) output(ctx context.Context, name string, argv []string) ([]byte, error) {
	res, err := e.Runner.Exec(ctx, runner.Cmd(argv[0], argv[1:]...))
	if err == nil {
		return res.Stdout, nil
	}
	var exit *runner.ExitError
	if errors.As(err, &exit) && exit.Signal == "" && exit.Err == nil && len(exit.Stdout) > 0 {
		return exit.Stdout, nil
	}
	return nil, fmt.Errorf("executing %s: %w", name, err)
}

func (e *Engine) tool(name string) ([]string, error) {
	resolve := e.Resolve
	if resolve == nil {
		resolve = ResolveTool
	}
	argv := resolve(name)
	if argv == nil {
		return nil, NewErrToolUnavailable(name)
	}
	return argv, nil
}

// relPath rewrites absolute paths under Workdir to slash-separated relative
// paths. Paths outside Workdir are left untouched.
func (e *Engine) relPath(file string) string {
	if !filepath.IsAbs(file) || e.Workdir == "" {
		return filepath.ToSlash(file)
	}
	rel, err := filepath.Rel(e.Workdir, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(file)
	}
	return filepath.ToSlash(rel)
}

// ResolvePackages normalises package arguments. Import paths and relative
// patterns pass through; absolute directories under Workdir become "./…"
// patterns and are dropped otherwise. An empty list means "./...".
func (e *Engine) ResolvePackages(packages []string) []string {
	if len(packages) == 0 {
		return []string{"./..."}
	}

	resolved := make([]string, 0, len(packages))
	for _, p := range packages {
		if !filepath.IsAbs(p) {
			resolved = append(resolved, p)
			continue
		}
		rel, err := filepath.Rel(e.Workdir, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		pattern := "./" + filepath.ToSlash(rel)
		if !strings.HasSuffix(pattern, "...") {
			pattern += "/..."
		}
		resolved = append(resolved, pattern)
	}

	if len(resolved) == 0 {
		return []string{"./..."}
	}
	return resolved
}

// ResolveTool returns the argv prefix for invoking a named tool.
// It checks "go tool <name>" first (tool directive in go.mod), then falls
// back to the system PATH. Returns nil if the tool is not available.
func ResolveTool(name string) []string {
	if goPath, err := exec.LookPath("go"); err == nil {
		// -n prints the tool's location without running it and fails for
		// unknown tools.
		if err := exec.Command(goPath, "tool", "-n", name).Run(); err == nil {
			return []string{goPath, "tool", name}
		}
	}

	if toolPath, err := exec.LookPath(name); err == nil {
		return []string{toolPath}
	}
	return nil
}

type toolInfo struct {
	ImportPath  string // for go get -tool / go install
	AltInstall  string
	NoGoInstall bool
}

var knownTools = map[string]toolInfo{
	Staticcheck:  {ImportPath: "honnef.co/go/tools/cmd/staticcheck@latest"},
	Gocognit:     {ImportPath: "github.com/uudashr/gocognit/cmd/gocognit@latest"},
	Dupl:         {ImportPath: "github.com/mibk/dupl@latest"},
	GolangciLint: {AltInstall: "https://golangci-lint.run/welcome/install/", NoGoInstall: true},
}

// ErrToolUnavailable is returned when a required tool is not installed.
// It includes install instructions when the tool is known.
type ErrToolUnavailable struct {
	Name string
	Info *toolInfo
}

func NewErrToolUnavailable(name string) ErrToolUnavailable {
	e := ErrToolUnavailable{Name: name}
	if info, ok := knownTools[name]; ok {
		e.Info = &info
	}
	return e
}

func (e ErrToolUnavailable) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is required but not installed.", e.Name)
	if e.Info == nil {
		return b.String()
	}

	if e.Info.NoGoInstall {
		fmt.Fprintf(&b, " Install: %s", e.Info.AltInstall)
	} else {
		fmt.Fprintf(&b, " Install: go get -tool %s", strings.TrimSuffix(e.Info.ImportPath, "@latest"))
	}
	return b.String()
}
