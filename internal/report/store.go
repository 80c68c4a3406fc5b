// Package report defines the issues plugins emit and persists execution
// records so they can be inspected after the fact.
package report

import (
	"fmt"
	"strings"
	"time"
)

// Outcome identifies how a recorded execution ended.
type Outcome string

const (
	// Succeeded is a run that exited with status 0.
	Succeeded Outcome = "succeeded"
	// Failed is a run that exited non-zero or was killed by a signal.
	Failed Outcome = "failed"
	// NotStarted is a run whose program could not be spawned.
	NotStarted Outcome = "not_started"
)

// Store persists and retrieves execution records.
type Store interface {
	Save(record *Record) error
	Load(id string) (*Record, error)
}

// Record holds everything known about one command execution.
type Record struct {
	ID        string            `json:"id"`
	Command   string            `json:"command"`
	Dir       string            `json:"dir,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Outcome   Outcome           `json:"outcome"`
	Status    int               `json:"status"`
	Signal    string            `json:"signal,omitempty"`
	Error     string            `json:"error,omitempty"`
	Stdout    string            `json:"stdout,omitempty"`
	Stderr    string            `json:"stderr,omitempty"`
	Issues    []Issue           `json:"issues,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
}

// Expect returns an error if the record's Outcome does not match want.
func (r *Record) Expect(want Outcome) error {
	if r.Outcome != want {
		return fmt.Errorf("run %s %s, not %s", r.ID, r.Outcome, want)
	}
	return nil
}

// Stream returns the captured output named by stream ("stdout" or "stderr").
func (r *Record) Stream(stream string) (string, error) {
	switch stream {
	case "stdout", "":
		return r.Stdout, nil
	case "stderr":
		return r.Stderr, nil
	default:
		return "", fmt.Errorf("unknown stream %q", stream)
	}
}

// ByFile returns the issues of r reported against file. A trailing "/"
// selects every file under that directory; an empty file selects all.
func ByFile(r *Record, file string) []Issue {
	if file == "" {
		return r.Issues
	}
	var out []Issue
	for _, i := range r.Issues {
		if i.File == file || (strings.HasSuffix(file, "/") && strings.HasPrefix(i.File, file)) {
			out = append(out, i)
		}
	}
	return out
}

// ByKind returns the issues of r of the given kind.
func ByKind(r *Record, kind Kind) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Kind == kind {
			out = append(out, i)
		}
	}
	return out
}
