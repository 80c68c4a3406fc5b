// Package config reads the plugin runtime environment and the optional
// .pluginkit configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Env holds the variables the plugin host sets before starting a plugin.
type Env struct {
	// Workdir is the root of the repository being checked.
	Workdir string `env:"COCOV_WORKDIR,required"`
	// RepoName is the name of the repository being checked.
	RepoName string `env:"COCOV_REPO_NAME,required"`
	// CommitSHA is the commit being checked.
	CommitSHA string `env:"COCOV_COMMIT_SHA,required"`
	// OutputFile receives the emitted issues.
	OutputFile string `env:"COCOV_OUTPUT_FILE,required"`
	// SecretsPath holds mounted secrets and the bindings manifest.
	SecretsPath string `env:"COCOV_SECRETS_PATH" envDefault:"/secrets"`
	LogLevel    string `env:"PLUGINKIT_LOG_LEVEL" envDefault:"info"`
}

// Tool holds the variables read by the standalone commands, none of which
// are required.
type Tool struct {
	LogLevel    string `env:"PLUGINKIT_LOG_LEVEL" envDefault:"info"`
	OutputFile  string `env:"COCOV_OUTPUT_FILE"`
	SecretsPath string `env:"COCOV_SECRETS_PATH" envDefault:"/secrets"`
	// StoreDir receives execution records written by the MCP server.
	// Empty means a fresh temporary directory.
	StoreDir string `env:"PLUGINKIT_STORE_DIR"`
}

// ParseTool reads Tool from the process environment.
func ParseTool() (*Tool, error) {
	var t Tool
	if err := env.Parse(&t); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return &t, nil
}

// ParseEnv reads Env from the process environment.
func ParseEnv() (*Env, error) {
	return parseEnv(env.Options{})
}

// ParseEnvFrom reads Env from vars instead of the process environment.
func ParseEnvFrom(vars map[string]string) (*Env, error) {
	return parseEnv(env.Options{Environment: vars})
}

func parseEnv(opts env.Options) (*Env, error) {
	var e Env
	if err := env.ParseWithOptions(&e, opts); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return &e, nil
}

// FileNames lists the configuration files Load looks for, in order.
var FileNames = []string{".pluginkit.yaml", ".pluginkit.yml", ".pluginkit.toml"}

// File holds the parsed .pluginkit configuration.
// All fields are optional; zero values represent defaults.
type File struct {
	Version      int               `yaml:"version" toml:"version"`
	RawTimeout   string            `yaml:"timeout" toml:"timeout"`       // e.g. "5m", "30s"
	RawWaitDelay string            `yaml:"wait_delay" toml:"wait_delay"` // drain bound after cancellation
	Env          map[string]string `yaml:"env" toml:"env"`               // applied to every command
	Linters      LintersConfig     `yaml:"linters" toml:"linters"`

	path string
}

// Path returns the file the configuration was read from, or "" for defaults.
func (f *File) Path() string {
	return f.path
}

// Timeout returns the per-command timeout. Zero means commands run until
// they exit.
func (f *File) Timeout() time.Duration {
	return parsePositive(f.RawTimeout)
}

// WaitDelay returns the configured drain bound, or zero for the default.
func (f *File) WaitDelay() time.Duration {
	return parsePositive(f.RawWaitDelay)
}

func parsePositive(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// LintersConfig controls the built-in linter adapters.
type LintersConfig struct {
	Enabled      []string           `yaml:"enabled" toml:"enabled"` // default: all available
	Staticcheck  StaticcheckConfig  `yaml:"staticcheck" toml:"staticcheck"`
	GolangciLint GolangciLintConfig `yaml:"golangci_lint" toml:"golangci_lint"`
	Gocognit     GocognitConfig     `yaml:"gocognit" toml:"gocognit"`
	Dupl         DuplConfig         `yaml:"dupl" toml:"dupl"`
}

// StaticcheckConfig controls how staticcheck is executed.
type StaticcheckConfig struct {
	Checks []string `yaml:"checks" toml:"checks"` // e.g. ["all", "-ST1000"]
	Args   []string `yaml:"args" toml:"args"`
}

// GolangciLintConfig controls how golangci-lint is executed.
type GolangciLintConfig struct {
	Config string   `yaml:"config" toml:"config"` // path to golangci-lint config file
	Args   []string `yaml:"args" toml:"args"`
}

// GocognitConfig controls how cognitive complexity is measured.
type GocognitConfig struct {
	Over int      `yaml:"over" toml:"over"` // report functions above this score (default: 15)
	Args []string `yaml:"args" toml:"args"`
}

// DuplConfig controls how duplicate code detection is run.
type DuplConfig struct {
	Threshold int      `yaml:"threshold" toml:"threshold"` // minimum token length (default: 50)
	Args      []string `yaml:"args" toml:"args"`
}

// DefaultLinters are run when none are configured.
var DefaultLinters = []string{"staticcheck", "golangci-lint", "gocognit", "dupl"}

// EnabledLinters returns the configured linters, falling back to defaults.
func (f *File) EnabledLinters() []string {
	if len(f.Linters.Enabled) > 0 {
		return f.Linters.Enabled
	}
	return DefaultLinters
}

// GocognitOver returns the configured complexity threshold, falling back to 15.
func (f *File) GocognitOver() int {
	if f.Linters.Gocognit.Over > 0 {
		return f.Linters.Gocognit.Over
	}
	return 15
}

// DuplThreshold returns the configured dupl token threshold, falling back to 50.
func (f *File) DuplThreshold() int {
	if f.Linters.Dupl.Threshold > 0 {
		return f.Linters.Dupl.Threshold
	}
	return 50
}

// Load reads the first of FileNames present in dir. YAML and TOML are
// accepted. If no file exists, a default File is returned.
func Load(dir string) (*File, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}

		cfg := &File{path: path}
		if filepath.Ext(name) == ".toml" {
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", name, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		return cfg, nil
	}
	return &File{}, nil
}
