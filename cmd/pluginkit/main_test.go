package main

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/cocov-ci/pluginkit/internal/runner"
)

func TestEnvFlag(t *testing.T) {
	e := envFlag{}
	if err := e.Set("A=1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := e.Set("B=x=y"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if e["A"] != "1" || e["B"] != "x=y" {
		t.Errorf("envFlag = %v, want A=1 B=x=y", map[string]string(e))
	}
	if err := e.Set("novalue"); err == nil {
		t.Error("Set(novalue): expected error")
	}
	if err := e.Set("=v"); err == nil {
		t.Error("Set(=v): expected error")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"exit status", &runner.ExitError{Status: 3}, 3},
		{"signal", &runner.ExitError{Status: -15, Signal: "SIGTERM"}, 143},
		{"not found", &runner.StartError{Err: exec.ErrNotFound}, 127},
		{"read error", &runner.ReadError{Stream: "stdout", Err: errors.New("boom")}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestExitCode_FromRunner(t *testing.T) {
	var r runner.Runner
	_, err := r.Exec(context.Background(), runner.Shell("exit 7"))
	if got := exitCode(err); got != 7 {
		t.Errorf("exitCode = %d, want 7", got)
	}
}
