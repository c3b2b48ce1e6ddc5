package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes shell commands on behalf of the agent, bounded by a
// timeout and an output cap. Output is raw captured text, stdout and
// stderr combined; truncation happens here, not in the caller.
type Runner struct {
	enabled        bool
	workingDir     string
	deniedCmds     []string // Patterns to block (e.g., "rm -rf", "sudo")
	defaultTimeout time.Duration
	maxOutputBytes int
}

// RunnerConfig configures the command runner.
type RunnerConfig struct {
	Enabled        bool
	WorkingDir     string
	DeniedCmds     []string
	DefaultTimeout time.Duration
	MaxOutputBytes int
}

// DefaultRunnerConfig returns safe defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Enabled:    false, // Disabled by default for safety
		WorkingDir: "",
		DeniedCmds: []string{
			"rm -rf /",
			"rm -rf /*",
			"mkfs",
			"dd if=",
			"> /dev/sd",
			"chmod -R 777 /",
			":(){ :|:& };:", // Fork bomb
		},
		DefaultTimeout: 30 * time.Second,
		MaxOutputBytes: 100 * 1024, // 100KB
	}
}

// NewRunner creates a new command runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.MaxOutputBytes == 0 {
		cfg.MaxOutputBytes = 100 * 1024
	}
	denied := cfg.DeniedCmds
	if denied == nil {
		denied = DefaultRunnerConfig().DeniedCmds
	}
	return &Runner{
		enabled:        cfg.Enabled,
		workingDir:     cfg.WorkingDir,
		deniedCmds:     denied,
		defaultTimeout: cfg.DefaultTimeout,
		maxOutputBytes: cfg.MaxOutputBytes,
	}
}

// Enabled reports whether command execution is available.
func (r *Runner) Enabled() bool {
	return r.enabled
}

// Run executes a shell command and returns its combined output.
// A non-zero exit status is not an error: the captured output plus an
// exit annotation is the observation the agent asked for. Errors are
// reserved for commands that could not run at all (disabled runner,
// denied pattern, spawn failure).
func (r *Runner) Run(ctx context.Context, command string) (string, error) {
	if !r.enabled {
		return "", fmt.Errorf("shell execution is disabled")
	}

	cmdLower := strings.ToLower(command)
	for _, denied := range r.deniedCmds {
		if strings.Contains(cmdLower, strings.ToLower(denied)) {
			return "", fmt.Errorf("command blocked by security policy: matches denied pattern %q", denied)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if r.workingDir != "" {
		cmd.Dir = r.workingDir
	}

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	err := cmd.Run()
	out := truncateOutput(combined.String(), r.maxOutputBytes)

	if ctx.Err() == context.DeadlineExceeded {
		return out + "\n[command timed out]", nil
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return out + fmt.Sprintf("\n[exit status %d]", exitErr.ExitCode()), nil
		}
		return "", fmt.Errorf("run command: %w", err)
	}

	return out, nil
}

// truncateOutput truncates output to maxBytes, adding a note if truncated.
func truncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "\n\n[... output truncated ...]"
}

// TerminalTool wraps the runner as an agent tool. The command comes
// from the "command" argument, or from "input" when the model supplies
// a bare string (the ReAct path).
func TerminalTool(r *Runner) *Tool {
	return &Tool{
		Name:        "Terminal",
		Description: "Run a shell command in the project workspace and return its output. Use for exploring files, counting lines, running greps.",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			command := stringArg(args, "command")
			if command == "" {
				command = stringArg(args, "input")
			}
			if command == "" {
				return "", fmt.Errorf("command is required")
			}
			return r.Run(ctx, command)
		},
	}
}

// stringArg extracts a string argument, tolerating absent keys and
// non-string values.
func stringArg(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
