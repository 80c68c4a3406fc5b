package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Emitter writes issues to a sink as JSON objects, each terminated by a
// single NUL byte. It is safe for concurrent use.
type Emitter struct {
	mu    sync.Mutex
	w     io.Writer
	count int
}

// NewEmitter returns an Emitter writing to w.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Emit validates issue, derives its UID when missing and appends it to the
// sink. It returns the issue as written.
func (e *Emitter) Emit(issue Issue) (Issue, error) {
	if err := issue.Validate(); err != nil {
		return Issue{}, err
	}
	issue = issue.WithUID()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(issue); err != nil {
		return Issue{}, fmt.Errorf("marshalling issue: %w", err)
	}
	data := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	data = append(data, 0)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(data); err != nil {
		return Issue{}, fmt.Errorf("writing issue: %w", err)
	}
	e.count++
	return issue, nil
}

// Count returns the number of issues written so far.
func (e *Emitter) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}
