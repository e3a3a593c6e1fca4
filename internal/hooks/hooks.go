// Package hooks implements the optional .loom/hooks.yaml pipeline: an
// ordered list of shell hooks a workspace can run around an agent
// session (e.g. before spawning, after a merge), plus the permission
// block the hook runner writes into a worktree's .claude/settings.json
// before each hook runs there. Narrowed from a full CI-gate DSL to a session
// lifecycle hook list.
package hooks

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the parsed contents of .loom/hooks.yaml.
type Config struct {
	Settings    Settings     `yaml:"settings"`
	Hooks       []Hook       `yaml:"hooks"`
	Gates       []Gate       `yaml:"gates,omitempty"`
	Permissions *Permissions `yaml:"permissions,omitempty"`
	Preamble    string       `yaml:"preamble,omitempty"`
}

// Gate is a pre-merge quality check (linter, formatter, type checker).
type Gate struct {
	Name string `yaml:"name"`
	Run  string `yaml:"run"`
}

// Permissions mirrors the Claude Code .claude/settings.json permissions
// block. When set, the hook runner writes it into the worktree's
// .claude/settings.json before running each hook; workspace creation
// does not write it.
type Permissions struct {
	Allow []string `yaml:"allow" json:"allow"`
	Deny  []string `yaml:"deny,omitempty" json:"deny,omitempty"`
}

type Settings struct {
	Timeout      Duration `yaml:"timeout"`
	BranchPrefix string   `yaml:"branch_prefix"`
	After        string   `yaml:"after"`
}

// Duration wraps time.Duration for YAML unmarshaling from strings like "10s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Hook is one step of the session lifecycle pipeline: it runs After the
// named hook. When After is empty, parsing sets it to the previous hook's
// name, or to Settings.After (the pipeline's root trigger) for the first hook.
type Hook struct {
	Name     string   `yaml:"name"`
	After    string   `yaml:"after"`
	Command  string   `yaml:"command"`
	Args     []string `yaml:"args,omitempty"`
	Preamble string   `yaml:"preamble,omitempty"`
}

// DefaultPreamble is prepended to a hook's effective prompt/preamble
// when no repo- or hook-level preamble is configured.
const DefaultPreamble = "You are running non-interactively inside an isolated worktree. Do not ask questions or wait for confirmation."

// ResolvePreamble returns the effective preamble for a hook.
func (cfg *Config) ResolvePreamble(h Hook) string {
	if h.Preamble != "" {
		return h.Preamble
	}
	if cfg.Preamble != "" {
		return cfg.Preamble
	}
	return DefaultPreamble
}

// Load reads and parses a hooks.yaml file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hooks config: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing hooks YAML: %w", err)
	}

	if cfg.Settings.BranchPrefix == "" {
		cfg.Settings.BranchPrefix = "loom/"
	}
	if cfg.Settings.Timeout == 0 {
		cfg.Settings.Timeout = Duration(30 * time.Second)
	}
	if cfg.Settings.After == "" {
		cfg.Settings.After = "spawn"
	}

	for i := range cfg.Hooks {
		if cfg.Hooks[i].After == "" {
			if i == 0 {
				cfg.Hooks[i].After = cfg.Settings.After
			} else {
				cfg.Hooks[i].After = cfg.Hooks[i-1].Name
			}
		}
	}

	return &cfg, nil
}

// Validate checks required fields, duplicate names, and pipeline cycles.
func Validate(cfg *Config) []error {
	var errs []error

	if len(cfg.Hooks) == 0 {
		errs = append(errs, fmt.Errorf("at least one hook is required"))
	}

	names := make(map[string]bool)
	for i, h := range cfg.Hooks {
		if h.Name == "" {
			errs = append(errs, fmt.Errorf("hooks[%d]: name is required", i))
		} else if names[h.Name] {
			errs = append(errs, fmt.Errorf("hooks[%d]: duplicate name %q", i, h.Name))
		} else {
			names[h.Name] = true
		}

		if h.Command == "" {
			errs = append(errs, fmt.Errorf("hooks[%d] (%s): command is required", i, h.Name))
		}
	}

	if cycleErr := detectCycles(cfg.Hooks); cycleErr != nil {
		errs = append(errs, cycleErr)
	}

	errs = append(errs, ValidateGates(cfg.Gates)...)

	return errs
}

// ValidateGates checks that all gates have non-empty names and run
// commands, and that gate names are unique.
func ValidateGates(gates []Gate) []error {
	var errs []error
	names := make(map[string]bool)
	for i, g := range gates {
		if g.Name == "" {
			errs = append(errs, fmt.Errorf("gates[%d]: name is required", i))
		} else if names[g.Name] {
			errs = append(errs, fmt.Errorf("gates[%d]: duplicate name %q", i, g.Name))
		} else {
			names[g.Name] = true
		}
		if g.Run == "" {
			errs = append(errs, fmt.Errorf("gates[%d]: run is required", i))
		}
	}
	return errs
}

func detectCycles(hooks []Hook) error {
	nameSet := make(map[string]bool)
	for _, h := range hooks {
		nameSet[h.Name] = true
	}

	adj := make(map[string][]string)
	for _, h := range hooks {
		if nameSet[h.After] {
			adj[h.Name] = append(adj[h.Name], h.After)
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)

	var visit func(node string) error
	visit = func(node string) error {
		color[node] = gray
		for _, dep := range adj[node] {
			if color[dep] == gray {
				return fmt.Errorf("cycle detected: %s -> %s", node, dep)
			}
			if color[dep] == white {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[node] = black
		return nil
	}

	for _, h := range hooks {
		if color[h.Name] == white {
			if err := visit(h.Name); err != nil {
				return err
			}
		}
	}

	return nil
}

// HasHook returns true if a hook with the given name exists.
func (cfg *Config) HasHook(name string) bool {
	for _, h := range cfg.Hooks {
		if h.Name == name {
			return true
		}
	}
	return false
}

// BuildDownstreamMap builds an adjacency map: watched-hook -> []dependents.
func (cfg *Config) BuildDownstreamMap() map[string][]string {
	nameSet := make(map[string]bool, len(cfg.Hooks))
	for _, h := range cfg.Hooks {
		nameSet[h.Name] = true
	}
	downstream := make(map[string][]string)
	for _, h := range cfg.Hooks {
		if nameSet[h.After] {
			downstream[h.After] = append(downstream[h.After], h.Name)
		}
	}
	return downstream
}

// FindRoots returns the names of hooks that run directly off the
// pipeline's external trigger rather than after another hook.
func (cfg *Config) FindRoots() []string {
	nameSet := make(map[string]bool, len(cfg.Hooks))
	for _, h := range cfg.Hooks {
		nameSet[h.Name] = true
	}
	var roots []string
	for _, h := range cfg.Hooks {
		if !nameSet[h.After] {
			roots = append(roots, h.Name)
		}
	}
	return roots
}
