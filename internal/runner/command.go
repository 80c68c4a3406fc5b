package runner

import (
	"maps"
	"os"
	"slices"
	"sort"
	"strings"
)

// Command describes one child process invocation.
type Command struct {
	Argv       []string          // program followed by its arguments
	Dir        string            // working directory; empty inherits the caller's
	Env        map[string]string // variables applied to the child environment
	IsolateEnv bool              // when true the child sees only Env

	script string // set by Shell; used as the display form
}

// Cmd builds a Command from a program name and its arguments.
func Cmd(name string, args ...string) Command {
	return Command{Argv: append([]string{name}, args...)}
}

// Shell builds a Command that runs script through /bin/sh -c.
func Shell(script string) Command {
	return Command{Argv: []string{"/bin/sh", "-c", script}, script: script}
}

// WithDir returns a copy of c that runs in dir.
func (c Command) WithDir(dir string) Command {
	c.Dir = dir
	return c
}

// WithEnv returns a copy of c with env merged over its existing Env.
func (c Command) WithEnv(env map[string]string) Command {
	merged := maps.Clone(c.Env)
	if merged == nil {
		merged = make(map[string]string, len(env))
	}
	maps.Copy(merged, env)
	c.Env = merged
	return c
}

// Isolated returns a copy of c whose child receives only c.Env.
func (c Command) Isolated() Command {
	c.IsolateEnv = true
	return c
}

// String returns the display form of the command.
func (c Command) String() string {
	if c.script != "" {
		return c.script
	}
	parts := make([]string, len(c.Argv))
	for i, a := range c.Argv {
		if a == "" || strings.ContainsAny(a, " \t\n\"'") {
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}

// Program returns the first element of Argv, or "" for an empty command.
func (c Command) Program() string {
	if len(c.Argv) == 0 {
		return ""
	}
	return c.Argv[0]
}

// environ builds the child environment from the inherited list and overrides.
// Keys in overrides replace inherited ones; the result holds one entry per key.
// The returned slice is never nil so an isolated child never falls back to
// inheriting the parent environment.
func environ(inherited []string, overrides map[string]string, isolate bool) []string {
	out := make([]string, 0, len(inherited)+len(overrides))
	if !isolate {
		for _, kv := range inherited {
			k, _, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			if _, overridden := overrides[k]; overridden {
				continue
			}
			out = append(out, kv)
		}
	}
	keys := slices.Collect(maps.Keys(overrides))
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}

// defaultEnviron is used when Runner.Environ is nil.
func defaultEnviron() []string {
	return os.Environ()
}
