// Package config handles Steward configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./steward.yaml, ~/.config/steward/config.yaml, /etc/steward/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"steward.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "steward", "config.yaml"))
	}

	paths = append(paths, "/etc/steward/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Steward configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Models    ModelsConfig    `yaml:"models"`
	Agent     AgentConfig     `yaml:"agent"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	ShellExec ShellExecConfig `yaml:"shell_exec"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the web server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelsConfig defines model backend settings.
type ModelsConfig struct {
	Default     string  `yaml:"default"`
	OllamaURL   string  `yaml:"ollama_url"`
	Temperature float64 `yaml:"temperature"`
}

// AgentConfig bounds the context builder and the ReAct loop.
type AgentConfig struct {
	// MaxContextTokens is the estimated token budget for one prompt.
	MaxContextTokens int `yaml:"max_context_tokens"`
	// ReserveRatio is the fraction of the budget held back for the user
	// query and trailing conversation turns. Packets fill the rest.
	ReserveRatio float64 `yaml:"reserve_ratio"`
	// MaxHistory is the number of conversation messages retained per
	// session; oldest are dropped first.
	MaxHistory int `yaml:"max_history"`
	// MaxSteps is the ReAct loop step budget.
	MaxSteps int `yaml:"max_steps"`
}

// WorkspaceConfig defines the codebase the agent maintains.
type WorkspaceConfig struct {
	// Path is the root directory of the project under maintenance.
	// Shell commands run relative to this directory.
	Path string `yaml:"path"`
	// Name is the human-readable project name used in prompts and notes.
	Name string `yaml:"name"`
}

// ShellExecConfig defines command runner capabilities.
type ShellExecConfig struct {
	// Enabled allows shell command execution. Disabled by default for safety.
	Enabled bool `yaml:"enabled"`
	// DeniedPatterns are command patterns to block (e.g., "rm -rf /").
	DeniedPatterns []string `yaml:"denied_patterns"`
	// DefaultTimeoutSec is the per-command timeout in seconds (default 30).
	DefaultTimeoutSec int `yaml:"default_timeout_sec"`
	// MaxOutputBytes caps captured output; longer output is truncated
	// by the runner (default 100KB).
	MaxOutputBytes int `yaml:"max_output_bytes"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Models: ModelsConfig{
			Default:     "qwen3:4b",
			OllamaURL:   "http://localhost:11434",
			Temperature: 0.7,
		},
		Agent: AgentConfig{
			MaxContextTokens: 8192,
			ReserveRatio:     0.25,
			MaxHistory:       20,
			MaxSteps:         5,
		},
		Workspace: WorkspaceConfig{
			Path: ".",
			Name: "workspace",
		},
		ShellExec: ShellExecConfig{
			DefaultTimeoutSec: 30,
			MaxOutputBytes:    100 * 1024,
		},
		DataDir: ".",
	}
}
