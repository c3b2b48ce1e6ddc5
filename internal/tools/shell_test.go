package tools

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunnerDisabledByDefault(t *testing.T) {
	r := NewRunner(DefaultRunnerConfig())
	if r.Enabled() {
		t.Error("runner should be disabled by default")
	}
	if _, err := r.Run(context.Background(), "echo hi"); err == nil {
		t.Error("expected error when disabled")
	}
}

func TestRunnerCapturesCombinedOutput(t *testing.T) {
	r := NewRunner(RunnerConfig{Enabled: true})

	out, err := r.Run(context.Background(), "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, "out") || !strings.Contains(out, "err") {
		t.Errorf("combined output missing streams: %q", out)
	}
}

func TestRunnerNonZeroExitIsObservation(t *testing.T) {
	r := NewRunner(RunnerConfig{Enabled: true})

	out, err := r.Run(context.Background(), "echo partial; exit 3")
	if err != nil {
		t.Fatalf("non-zero exit should not be an error: %v", err)
	}
	if !strings.Contains(out, "partial") {
		t.Errorf("output before failure lost: %q", out)
	}
	if !strings.Contains(out, "exit status 3") {
		t.Errorf("exit annotation missing: %q", out)
	}
}

func TestRunnerDeniedPattern(t *testing.T) {
	r := NewRunner(RunnerConfig{Enabled: true})

	if _, err := r.Run(context.Background(), "rm -rf / --no-preserve-root"); err == nil {
		t.Error("expected denied-pattern error")
	}
}

func TestRunnerTimeout(t *testing.T) {
	r := NewRunner(RunnerConfig{Enabled: true, DefaultTimeout: 100 * time.Millisecond})

	out, err := r.Run(context.Background(), "sleep 5")
	if err != nil {
		t.Fatalf("timeout should degrade to observation: %v", err)
	}
	if !strings.Contains(out, "timed out") {
		t.Errorf("timeout annotation missing: %q", out)
	}
}

func TestRunnerTruncatesOutput(t *testing.T) {
	r := NewRunner(RunnerConfig{Enabled: true, MaxOutputBytes: 64})

	out, err := r.Run(context.Background(), "yes x | head -100")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, "output truncated") {
		t.Errorf("expected truncation marker: %q", out)
	}
}

func TestTerminalToolArgFallback(t *testing.T) {
	r := NewRunner(RunnerConfig{Enabled: true})
	tool := TerminalTool(r)

	out, err := tool.Handler(context.Background(), map[string]any{"input": "echo react-path"})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if !strings.Contains(out, "react-path") {
		t.Errorf("output = %q", out)
	}

	if _, err := tool.Handler(context.Background(), map[string]any{}); err == nil {
		t.Error("expected error for missing command")
	}
}
