// Package pluginkit is the toolkit used by cocov analysis plugins to run
// external analysers and report their findings.
//
// A plugin hands its body to Run, which prepares the runtime from the
// COCOV_* environment and exits with the body's status:
//
//	func main() {
//		pluginkit.Run(func(ctx context.Context, p *pluginkit.Plugin) error {
//			out, err := p.Output(ctx, pluginkit.Cmd("staticcheck", "-f", "json", "./..."))
//			...
//		})
//	}
//
// Exec and Exec2 run commands outside a plugin body.
package pluginkit

import (
	"context"
	"io"

	"github.com/cocov-ci/pluginkit/internal/plugin"
	"github.com/cocov-ci/pluginkit/internal/report"
	"github.com/cocov-ci/pluginkit/internal/runner"
)

// Version is the pluginkit release.
const Version = "0.4.0"

type (
	// Command describes a process to spawn.
	Command = runner.Command
	// Result holds the output of a command that exited with status 0.
	Result = runner.Result
	// ExecutionError is returned when a command exits non-zero or is
	// terminated by a signal.
	ExecutionError = runner.ExitError
	// InvocationError is returned when a command could not be spawned.
	InvocationError = runner.StartError
	// ReadError is returned when draining a command's output failed.
	ReadError = runner.ReadError

	// Issue is a single finding.
	Issue = report.Issue
	// Kind classifies an Issue.
	Kind = report.Kind

	// Plugin is handed to the body passed to Run.
	Plugin = plugin.Plugin
	// Func is a plugin body.
	Func = plugin.Func
	// ExitCode ends the plugin with a specific status.
	ExitCode = plugin.ExitCode
)

const (
	KindStyle       = report.Style
	KindPerformance = report.Performance
	KindSecurity    = report.Security
	KindBug         = report.Bug
	KindComplexity  = report.Complexity
	KindDuplication = report.Duplication
	KindConvention  = report.Convention
	KindQuality     = report.Quality
)

// Cmd returns a Command running name with args.
func Cmd(name string, args ...string) Command {
	return runner.Cmd(name, args...)
}

// Shell returns a Command running script through /bin/sh -c.
func Shell(script string) Command {
	return runner.Shell(script)
}

var defaultRunner runner.Runner

// Exec2 runs c to completion and returns its stdout and stderr.
func Exec2(ctx context.Context, c Command) (stdout, stderr []byte, err error) {
	res, err := defaultRunner.Exec(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	return res.Stdout, res.Stderr, nil
}

// Exec runs c to completion and returns its stdout.
func Exec(ctx context.Context, c Command) ([]byte, error) {
	stdout, _, err := Exec2(ctx, c)
	return stdout, err
}

// EmitIssue validates issue, derives its UID when missing and writes it to w
// as a NUL-terminated JSON object.
func EmitIssue(w io.Writer, issue Issue) (Issue, error) {
	return report.NewEmitter(w).Emit(issue)
}

// SHA1 returns the hex SHA-1 digest of data.
func SHA1(data []byte) string {
	return report.SHA1(data)
}

// Run executes fn with a Plugin prepared from the COCOV_* environment and
// exits the process. SIGINT and SIGTERM cancel the context passed to fn.
func Run(fn Func) {
	plugin.Run(context.Background(), fn)
}
