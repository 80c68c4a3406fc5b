// Package plugin prepares the runtime of an analysis plugin: it reads the
// host-provided environment, mounts secrets, opens the issue sink, changes
// into the repository and runs the plugin body.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/cocov-ci/pluginkit/internal/config"
	"github.com/cocov-ci/pluginkit/internal/logging"
	"github.com/cocov-ci/pluginkit/internal/report"
	"github.com/cocov-ci/pluginkit/internal/runner"
	"github.com/cocov-ci/pluginkit/internal/secrets"
	"github.com/rs/zerolog"
)

// Plugin is handed to the plugin body. Commands run through Runner start in
// Workdir; issues go to the host's output file.
type Plugin struct {
	Workdir   string
	RepoName  string
	CommitSHA string
	Config    *config.File
	Runner    *runner.Runner
	Emitter   *report.Emitter
	Logger    zerolog.Logger
}

// Func is a plugin body.
type Func func(ctx context.Context, p *Plugin) error

// Exec runs c and returns its stdout and stderr.
func (p *Plugin) Exec(ctx context.Context, c runner.Command) (*runner.Result, error) {
	return p.Runner.Exec(ctx, c)
}

// Output runs c and returns its stdout.
func (p *Plugin) Output(ctx context.Context, c runner.Command) ([]byte, error) {
	return p.Runner.Output(ctx, c)
}

// EmitIssue validates issue and appends it to the output file.
func (p *Plugin) EmitIssue(issue report.Issue) (report.Issue, error) {
	return p.Emitter.Emit(issue)
}

// SHA1 returns the hex SHA-1 digest of data.
func (p *Plugin) SHA1(data []byte) string {
	return report.SHA1(data)
}

// ExitCode is returned by a plugin body to end the process with a specific
// status without it being logged as a failure.
type ExitCode int

func (c ExitCode) Error() string {
	return fmt.Sprintf("exit status %d", int(c))
}

// Options overrides the process-wide inputs of Main. The zero value reads
// the real environment and logs to stderr.
type Options struct {
	Environ map[string]string
	Stderr  io.Writer
}

var osExit = os.Exit

// Run executes fn with a prepared Plugin and exits the process with the
// resulting status. SIGINT and SIGTERM cancel the context passed to fn.
func Run(ctx context.Context, fn Func) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	code := Main(ctx, Options{}, fn)
	stop()
	osExit(code)
}

// Main executes fn with a prepared Plugin and returns the process exit
// status: 0 on success, the value of an ExitCode error, or 1 on any other
// error or panic.
func Main(ctx context.Context, opts Options, fn Func) int {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	var (
		env *config.Env
		err error
	)
	if opts.Environ != nil {
		env, err = config.ParseEnvFrom(opts.Environ)
	} else {
		env, err = config.ParseEnv()
	}
	if err != nil {
		log := logging.New("pluginkit", "info", stderr)
		log.Error().Err(err).Msg("invalid plugin environment")
		return 1
	}
	log := logging.New("pluginkit", env.LogLevel, stderr).With().
		Str("repo", env.RepoName).
		Str("commit", env.CommitSHA).
		Logger()

	out, err := os.Create(env.OutputFile)
	if err != nil {
		log.Error().Err(err).Msg("opening output file")
		return 1
	}

	code := run(ctx, env, out, log, fn)

	if err := out.Sync(); err != nil && code == 0 {
		log.Error().Err(err).Msg("flushing output file")
		code = 1
	}
	if err := out.Close(); err != nil && code == 0 {
		log.Error().Err(err).Msg("closing output file")
		code = 1
	}
	return code
}

func run(ctx context.Context, env *config.Env, out io.Writer, log zerolog.Logger, fn Func) (code int) {
	if _, err := secrets.Mount(env.SecretsPath, log); err != nil {
		log.Error().Err(err).Msg("mounting secrets")
		return 1
	}

	cfg, err := config.Load(env.Workdir)
	if err != nil {
		log.Error().Err(err).Msg("loading configuration")
		return 1
	}

	prev, err := os.Getwd()
	if err != nil {
		log.Error().Err(err).Msg("determining working directory")
		return 1
	}
	if err := os.Chdir(env.Workdir); err != nil {
		log.Error().Err(err).Msg("entering workdir")
		return 1
	}
	defer func() {
		if err := os.Chdir(prev); err != nil {
			log.Warn().Err(err).Msg("restoring working directory")
		}
	}()

	p := &Plugin{
		Workdir:   env.Workdir,
		RepoName:  env.RepoName,
		CommitSHA: env.CommitSHA,
		Config:    cfg,
		Runner: &runner.Runner{
			Workspace: env.Workdir,
			Timeout:   cfg.Timeout(),
			WaitDelay: cfg.WaitDelay(),
			Env:       cfg.Env,
			Logger:    &log,
		},
		Emitter: report.NewEmitter(out),
		Logger:  log,
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("failed processing")
			code = 1
		}
	}()

	err = fn(ctx, p)
	var exit ExitCode
	switch {
	case err == nil:
		log.Info().Int("issues", p.Emitter.Count()).Msg("done")
		return 0
	case errors.As(err, &exit):
		return int(exit)
	default:
		log.Error().Err(err).Msg("failed processing")
		return 1
	}
}
