package runner

import "time"

// Result holds the output of a successful command execution.
type Result struct {
	RunID    string        // unique identifier for this run
	Command  string        // display form of the command
	Stdout   []byte        // captured stdout
	Stderr   []byte        // captured stderr
	Duration time.Duration // wall time from start to exit
}
