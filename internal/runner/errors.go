package runner

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCommand is wrapped by a StartError when Argv names no program.
var ErrEmptyCommand = errors.New("empty command")

// StartError is returned when the child process could not be spawned at all:
// the program is missing or not executable, or the working directory is
// invalid. It is also returned when the kernel never reported an exit
// status for the child. No output exists for a StartError.
type StartError struct {
	Command string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("starting %s: %v", e.Command, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// lostStatus reports a child whose wait returned without a process state.
func lostStatus(command string, waitErr error) error {
	if waitErr == nil {
		waitErr = errors.New("no process state")
	}
	return &StartError{Command: command, Err: fmt.Errorf("waiting: %w", waitErr)}
}

// ExitError is returned when the child ran to completion but its exit status
// was non-zero or it was terminated by a signal. It carries everything the
// child wrote before exiting.
type ExitError struct {
	RunID   string
	Command string
	// Status is the exit code, or the negated signal number when the
	// child was terminated by a signal.
	Status int
	Signal string // signal name, empty for a normal exit
	Stdout []byte
	Stderr []byte
	// Env holds the caller-supplied variables applied to the child.
	Env map[string]string
	// Environ is the complete environment passed to the child.
	Environ []string
	// Err is set when the run was cut short by context cancellation.
	Err error
}

func (e *ExitError) Error() string {
	var b strings.Builder
	if e.Signal != "" {
		fmt.Fprintf(&b, "%s terminated by %s", e.Command, e.Signal)
	} else {
		fmt.Fprintf(&b, "%s exited with status %d", e.Command, e.Status)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, " (%v)", e.Err)
	}
	if line := lastLine(e.Stderr); line != "" {
		fmt.Fprintf(&b, ": %s", line)
	}
	return b.String()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ReadError is returned when draining one of the child's output streams
// failed. The child has been reaped and all descriptors closed by the time a
// ReadError is returned.
type ReadError struct {
	Command string
	Stream  string // "stdout" or "stderr"
	Err     error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading %s of %s: %v", e.Stream, e.Command, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// lastLine returns the last non-empty line of b, trimmed.
func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
