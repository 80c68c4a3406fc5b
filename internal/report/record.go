package report

import (
	"errors"
	"time"

	"github.com/cocov-ci/pluginkit/internal/runner"
	"github.com/google/uuid"
)

// NewRecord builds a Record from the outcome of runner.Exec. res is nil
// whenever err is non-nil.
func NewRecord(c runner.Command, res *runner.Result, err error, started time.Time) *Record {
	rec := &Record{
		Command:   c.String(),
		Dir:       c.Dir,
		Env:       c.Env,
		StartedAt: started,
		Duration:  time.Since(started),
	}

	var (
		exitErr *runner.ExitError
		readErr *runner.ReadError
	)
	switch {
	case err == nil:
		rec.ID = res.RunID
		rec.Outcome = Succeeded
		rec.Stdout = string(res.Stdout)
		rec.Stderr = string(res.Stderr)
		rec.Duration = res.Duration
	case errors.As(err, &exitErr):
		rec.ID = exitErr.RunID
		rec.Outcome = Failed
		rec.Status = exitErr.Status
		rec.Signal = exitErr.Signal
		rec.Stdout = string(exitErr.Stdout)
		rec.Stderr = string(exitErr.Stderr)
		rec.Error = err.Error()
	case errors.As(err, &readErr):
		rec.Outcome = Failed
		rec.Status = -1
		rec.Error = err.Error()
	default:
		rec.Outcome = NotStarted
		rec.Status = -1
		rec.Error = err.Error()
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	return rec
}
