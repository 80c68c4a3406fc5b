// Command pluginkit runs commands the way cocov plugins do, emits issues,
// and serves the pluginkit tools over MCP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cocov-ci/pluginkit"
	"github.com/cocov-ci/pluginkit/internal/config"
	"github.com/cocov-ci/pluginkit/internal/linter"
	"github.com/cocov-ci/pluginkit/internal/logging"
	pkmcp "github.com/cocov-ci/pluginkit/internal/mcp"
	"github.com/cocov-ci/pluginkit/internal/plugin"
	"github.com/cocov-ci/pluginkit/internal/report"
	"github.com/cocov-ci/pluginkit/internal/runner"
	"github.com/cocov-ci/pluginkit/internal/secrets"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	tool, err := config.ParseTool()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pluginkit: %v\n", err)
		os.Exit(2)
	}
	log := logging.New("pluginkit", tool.LogLevel, os.Stderr)

	switch cmd {
	case "exec":
		os.Exit(execMain(args, log))
	case "emit":
		err = emitMain(args, tool)
	case "realloc":
		err = reallocMain(args, tool, log)
	case "run":
		os.Exit(runMain(args))
	case "lint":
		os.Exit(lintMain(args))
	case "mcp":
		err = mcpMain(args, tool, log)
	case "version":
		fmt.Println(pluginkit.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "pluginkit: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("failed")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: pluginkit <command> [flags] [args]

Commands:
  exec        Run a command and capture its output (exit status mirrors the child)
  emit        Validate an issue and append it to COCOV_OUTPUT_FILE
  realloc     Copy secrets to the locations listed in the bindings manifest
  run         Run a command inside the plugin runtime
  lint        Run the built-in Go analysers inside the plugin runtime
  mcp         Start the MCP server
  version     Print the version
  help        Show this help

Use "pluginkit <command> -h" for command-specific flags.`)
}

func notifyContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// --- exec ---

// envFlag collects repeated -e K=V flags.
type envFlag map[string]string

func (e envFlag) String() string {
	pairs := make([]string, 0, len(e))
	for k, v := range e {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (e envFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected K=V, got %q", s)
	}
	e[k] = v
	return nil
}

func execMain(args []string, log zerolog.Logger) int {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	isolate := fs.Bool("isolate", false, "do not inherit the environment; the child sees only -e variables")
	dir := fs.String("C", "", "run the command in this directory")
	env := envFlag{}
	fs.Var(env, "e", "set K=V in the child's environment (repeatable)")
	jsonFlag := fs.Bool("json", false, "print a JSON record instead of the child's output")
	timeout := fs.Duration("timeout", 0, "kill the command after this long (e.g. 5m)")
	_ = fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "pluginkit exec: missing command")
		return 2
	}

	c := runner.Cmd(argv[0], argv[1:]...).WithDir(*dir)
	if len(env) > 0 {
		c = c.WithEnv(env)
	}
	if *isolate {
		c = c.Isolated()
	}

	ctx, stop := notifyContext()
	defer stop()

	r := &runner.Runner{Timeout: *timeout, Logger: &log}
	started := time.Now()
	res, err := r.Exec(ctx, c)

	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report.NewRecord(c, res, err, started)); encErr != nil {
			fmt.Fprintf(os.Stderr, "pluginkit exec: %v\n", encErr)
			return 1
		}
		return exitCode(err)
	}

	forward(res, err)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pluginkit exec: %v\n", err)
	}
	return exitCode(err)
}

// forward copies whatever the child wrote to our own stdout and stderr.
func forward(res *runner.Result, err error) {
	var stdout, stderr []byte
	var exit *runner.ExitError
	switch {
	case err == nil:
		stdout, stderr = res.Stdout, res.Stderr
	case errors.As(err, &exit):
		stdout, stderr = exit.Stdout, exit.Stderr
	}
	_, _ = os.Stdout.Write(stdout)
	_, _ = os.Stderr.Write(stderr)
}

// exitCode maps an Exec error to a process exit status, following the
// shell's conventions for signals (128+n) and missing programs (127).
func exitCode(err error) int {
	var (
		exit  *runner.ExitError
		start *runner.StartError
	)
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exit):
		if exit.Status < 0 {
			return 128 - exit.Status
		}
		return exit.Status
	case errors.As(err, &start):
		return 127
	default:
		return 1
	}
}

// --- emit ---

func emitMain(args []string, tool *config.Tool) error {
	fs := flag.NewFlagSet("emit", flag.ExitOnError)
	kind := fs.String("kind", "", "issue kind: "+kindList())
	file := fs.String("file", "", "path relative to the repository root")
	lineStart := fs.Int("line-start", 0, "first line, starting at 1")
	lineEnd := fs.Int("line-end", 0, "last line (default: line-start)")
	message := fs.String("message", "", "description of the finding")
	uid := fs.String("uid", "", "stable identifier (default: derived from the other fields)")
	_ = fs.Parse(args)

	issue := report.Issue{
		Kind:      report.Kind(*kind),
		File:      *file,
		LineStart: *lineStart,
		LineEnd:   *lineEnd,
		Message:   *message,
		UID:       *uid,
	}
	if issue.LineEnd == 0 {
		issue.LineEnd = issue.LineStart
	}

	var w io.Writer = os.Stdout
	if tool.OutputFile != "" {
		f, err := os.OpenFile(tool.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	emitted, err := report.NewEmitter(w).Emit(issue)
	if err != nil {
		return err
	}
	if tool.OutputFile != "" {
		fmt.Println(emitted.UID)
	}
	return nil
}

func kindList() string {
	names := make([]string, len(report.Kinds))
	for i, k := range report.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// --- realloc ---

func reallocMain(args []string, tool *config.Tool, log zerolog.Logger) error {
	fs := flag.NewFlagSet("realloc", flag.ExitOnError)
	root := fs.String("secrets", tool.SecretsPath, "directory holding the secrets and the bindings manifest")
	_ = fs.Parse(args)

	mounted, err := secrets.Mount(*root, log)
	if err != nil {
		return err
	}
	for _, b := range mounted {
		fmt.Printf("%s -> %s\n", b.From, b.To)
	}
	return nil
}

// --- run ---

func runMain(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	_ = fs.Parse(args)

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "pluginkit run: missing command")
		return 2
	}

	ctx, stop := notifyContext()
	defer stop()

	return plugin.Main(ctx, plugin.Options{}, func(ctx context.Context, p *plugin.Plugin) error {
		res, err := p.Exec(ctx, runner.Cmd(argv[0], argv[1:]...))
		forward(res, err)
		var exit *runner.ExitError
		if errors.As(err, &exit) {
			p.Logger.Error().Err(err).Msg("command failed")
			return plugin.ExitCode(exitCode(err))
		}
		return err
	})
}

// --- lint ---

func lintMain(args []string) int {
	fs := flag.NewFlagSet("lint", flag.ExitOnError)
	linters := fs.String("linters", "", "comma-separated analysers to run (default: configured set)")
	_ = fs.Parse(args)

	packages := fs.Args()

	ctx, stop := notifyContext()
	defer stop()

	return plugin.Main(ctx, plugin.Options{}, func(ctx context.Context, p *plugin.Plugin) error {
		cfg := *p.Config
		if *linters != "" {
			cfg.Linters.Enabled = strings.Split(*linters, ",")
		}

		eng := &linter.Engine{
			Config:  &cfg,
			Runner:  p.Runner,
			Sink:    p.Emitter,
			Workdir: p.Workdir,
			Logger:  p.Logger,
		}
		sum, err := eng.Run(ctx, packages)
		if sum != nil {
			fmt.Fprint(os.Stderr, sum)
		}
		return err
	})
}

// --- mcp ---

func mcpMain(args []string, tool *config.Tool, log zerolog.Logger) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(pkmcp.Instructions)
		return nil
	}

	ctx, stop := notifyContext()
	defer stop()

	return serve(ctx, tool, log, *httpAddr)
}

func serve(ctx context.Context, tool *config.Tool, log zerolog.Logger, httpAddr string) error {
	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}

	cfg, err := config.Load(workspace)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	disk := report.NewDiskStore(tool.StoreDir)
	store := report.NewLRUStore(5, disk)

	r := &runner.Runner{
		Workspace: workspace,
		Timeout:   cfg.Timeout(),
		WaitDelay: cfg.WaitDelay(),
		Env:       cfg.Env,
		Logger:    &log,
	}

	opts := []pkmcp.ServerOption{pkmcp.WithLogger(log)}
	if tool.OutputFile != "" {
		f, err := os.OpenFile(tool.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening output file: %w", err)
		}
		defer f.Close()
		opts = append(opts, pkmcp.WithEmitter(report.NewEmitter(f)))
	}

	server := pkmcp.NewServer(cfg, r, store, workspace, opts...)

	if httpAddr != "" {
		return serveHTTP(ctx, server, httpAddr, log)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string, log zerolog.Logger) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	log.Info().Str("addr", addr).Msg("listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
