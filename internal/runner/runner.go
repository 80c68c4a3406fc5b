// Package runner spawns child processes and captures their standard output
// and standard error to completion.
//
// Both streams are drained concurrently with waiting on the child, so a
// process that fills one pipe before exiting never deadlocks the caller.
// Failures are reported as one of three distinct error types: StartError,
// ExitError and ReadError. A child whose exit status could not be collected
// is reported as a StartError.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultWaitDelay bounds how long output is drained after a cancelled
// child has been killed.
const DefaultWaitDelay = 2 * time.Second

// Runner executes commands. The zero value is ready to use. A Runner holds
// only configuration and may be shared by concurrent callers.
type Runner struct {
	// Workspace resolves relative Command.Dir values. When empty, relative
	// directories resolve against the caller's working directory.
	Workspace string
	// Timeout bounds each execution. Zero means no timeout.
	Timeout time.Duration
	// WaitDelay bounds draining after cancellation. Defaults to DefaultWaitDelay.
	WaitDelay time.Duration
	// Environ supplies the inherited environment. Defaults to os.Environ.
	Environ func() []string
	// Env is merged under every Command.Env.
	Env    map[string]string
	Logger *zerolog.Logger
}

// Exec runs c to completion and returns its captured output.
//
// A non-zero exit yields an *ExitError carrying the output, a spawn failure
// yields a *StartError, and a failure draining either stream yields a
// *ReadError. Exec returns only after both streams reached EOF and the child
// has been reaped.
func (r *Runner) Exec(ctx context.Context, c Command) (*Result, error) {
	display := c.String()
	if c.Program() == "" {
		return nil, &StartError{Command: display, Err: ErrEmptyCommand}
	}

	dir, err := r.resolveDir(c.Dir)
	if err != nil {
		return nil, &StartError{Command: display, Err: err}
	}

	supplied := r.suppliedEnv(c.Env)
	env := environ(r.environ(), supplied, c.IsolateEnv)

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	runID := uuid.New().String()
	log := r.logger().With().Str("run_id", runID).Str("cmd", display).Logger()

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, &StartError{Command: display, Err: fmt.Errorf("creating stdout pipe: %w", err)}
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll(outR, outW)
		return nil, &StartError{Command: display, Err: fmt.Errorf("creating stderr pipe: %w", err)}
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdout = outW
	cmd.Stderr = errW

	start := time.Now()
	startErr := cmd.Start()

	// The child holds its own copies of the write ends. Closing ours makes
	// EOF observable once the child exits.
	closeAll(outW, errW)

	if startErr != nil {
		closeAll(outR, errR)
		log.Debug().Err(startErr).Msg("start failed")
		return nil, &StartError{Command: display, Err: startErr}
	}
	log.Debug().Int("pid", cmd.Process.Pid).Msg("started")

	var (
		wg             sync.WaitGroup
		stdout, stderr bytes.Buffer
		outErr, errErr error
		waitErr        error
	)
	exited := make(chan struct{})
	wg.Add(3)
	go func() {
		defer wg.Done()
		outErr = drain(&stdout, outR)
	}()
	go func() {
		defer wg.Done()
		errErr = drain(&stderr, errR)
	}()
	go func() {
		defer wg.Done()
		waitErr = cmd.Wait()
		close(exited)
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// The child is killed by the context. A grandchild may still hold a
		// write end open, so bound the remaining drain.
		<-exited
		deadline := time.Now().Add(r.waitDelay())
		_ = outR.SetReadDeadline(deadline)
		_ = errR.SetReadDeadline(deadline)
		<-done
	}

	duration := time.Since(start)
	cancelled := ctx.Err()
	state := cmd.ProcessState

	for _, s := range []struct {
		name string
		err  error
	}{{"stdout", outErr}, {"stderr", errErr}} {
		if s.err == nil {
			continue
		}
		if cancelled != nil && errors.Is(s.err, os.ErrDeadlineExceeded) {
			if state != nil && !state.Success() {
				continue
			}
			s.err = errors.Join(cancelled, s.err)
		}
		log.Debug().Err(s.err).Str("stream", s.name).Msg("drain failed")
		return nil, &ReadError{Command: display, Stream: s.name, Err: s.err}
	}

	if state == nil {
		return nil, lostStatus(display, waitErr)
	}

	status, signal := exitStatus(state)
	log.Debug().
		Int("status", status).
		Str("signal", signal).
		Dur("duration", duration).
		Int("stdout_bytes", stdout.Len()).
		Int("stderr_bytes", stderr.Len()).
		Msg("exited")

	if !state.Success() {
		return nil, &ExitError{
			RunID:   runID,
			Command: display,
			Status:  status,
			Signal:  signal,
			Stdout:  stdout.Bytes(),
			Stderr:  stderr.Bytes(),
			Env:     supplied,
			Environ: env,
			Err:     cancelled,
		}
	}

	return &Result{
		RunID:    runID,
		Command:  display,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: duration,
	}, nil
}

// Output runs c and returns only its stdout.
func (r *Runner) Output(ctx context.Context, c Command) ([]byte, error) {
	res, err := r.Exec(ctx, c)
	if err != nil {
		return nil, err
	}
	return res.Stdout, nil
}

// drain reads f to EOF into buf and closes f. Closing on error as well lets a
// child blocked writing to a full pipe receive EPIPE and exit.
func drain(buf *bytes.Buffer, f *os.File) error {
	_, err := io.Copy(buf, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	return err
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// resolveDir resolves a relative dir against the workspace. An empty dir is
// returned unchanged so the child inherits the caller's working directory.
func (r *Runner) resolveDir(dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir), nil
	}
	if r.Workspace == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", fmt.Errorf("resolving dir: %w", err)
		}
		return abs, nil
	}
	return filepath.Join(r.Workspace, dir), nil
}

func (r *Runner) suppliedEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(r.Env)+len(env))
	maps.Copy(out, r.Env)
	maps.Copy(out, env)
	return out
}

func (r *Runner) environ() []string {
	if r.Environ != nil {
		return r.Environ()
	}
	return defaultEnviron()
}

func (r *Runner) waitDelay() time.Duration {
	if r.WaitDelay > 0 {
		return r.WaitDelay
	}
	return DefaultWaitDelay
}

func (r *Runner) logger() *zerolog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
