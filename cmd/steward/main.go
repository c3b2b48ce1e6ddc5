// Steward is a codebase maintenance agent.
//
// It runs sessions that explore, analyze, and plan work on a project
// workspace, persisting findings as notes between sessions. A session
// can be driven over the HTTP API or one-shot from the CLI.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	steward serve                Start the API server
//	steward ask <question>       Run one session turn and print the answer
//	steward react <question>     Run the multi-step reasoning loop
//	steward version              Print version and build information
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/steward-agent/steward/internal/buildinfo"
	"github.com/steward-agent/steward/internal/config"
	"github.com/steward-agent/steward/internal/contextpack"
	"github.com/steward-agent/steward/internal/events"
	"github.com/steward-agent/steward/internal/llm"
	"github.com/steward-agent/steward/internal/notes"
	"github.com/steward-agent/steward/internal/prompts"
	"github.com/steward-agent/steward/internal/react"
	"github.com/steward-agent/steward/internal/session"
	"github.com/steward-agent/steward/internal/tools"
	"github.com/steward-agent/steward/internal/web"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run], keeping
// os.Exit and os.Args out of the application logic so the lifecycle can
// be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the steward command. Arguments are
// parsed by hand: the flag package relies on package-level globals,
// which makes it impossible to call run() concurrently from tests, and
// the argument surface here is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var mode string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-mode" && i+1 < len(args):
			mode = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-mode="):
			mode = strings.TrimPrefix(args[i], "-mode=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if mode == "" {
		mode = prompts.ModeAuto
	}
	if !prompts.ValidMode(mode) {
		return fmt.Errorf("unknown mode: %q (expected explore, analyze, plan, or auto)", mode)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: steward ask <question>")
		}
		return runAsk(ctx, stdout, configPath, mode, strings.Join(cmdArgs, " "))
	case "react":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: steward react <question>")
		}
		return runReact(ctx, stdout, configPath, strings.Join(cmdArgs, " "))
	case "version":
		return runVersion(stdout)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Steward - Codebase Maintenance Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: steward [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  ask          Run one session turn and print the answer")
	fmt.Fprintln(w, "  react        Run the multi-step reasoning loop on a question")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>  Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -mode <mode>    Session mode for ask: explore, analyze, plan, auto")
	return nil
}

func runVersion(w io.Writer) error {
	fmt.Fprintln(w, buildinfo.String())
	info := buildinfo.Info()
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// deps is the shared collaborator set behind every subcommand.
type deps struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   llm.Client
	store    *notes.Store
	noteTool *tools.NoteTool
	runner   *tools.Runner
	registry *tools.Registry
	builder  *contextpack.Builder
}

// buildDeps loads configuration and constructs the collaborator set.
// The caller closes the note store.
func buildDeps(w io.Writer, configPath string) (*deps, error) {
	cfgPath, err := config.FindConfig(configPath)
	var cfg *config.Config
	if err != nil {
		if configPath != "" {
			// An explicitly named config file must exist.
			return nil, err
		}
		// No discovered config file is fine; defaults apply.
		cfg = config.Default()
	} else {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
		}
	}

	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		level, err = config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
	if cfgPath != "" {
		logger.Info("config loaded", "path", cfgPath)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := notes.NewStore(filepath.Join(cfg.DataDir, "notes.db"))
	if err != nil {
		return nil, fmt.Errorf("open note store: %w", err)
	}

	runner := tools.NewRunner(tools.RunnerConfig{
		Enabled:        cfg.ShellExec.Enabled,
		WorkingDir:     cfg.Workspace.Path,
		DeniedCmds:     cfg.ShellExec.DeniedPatterns,
		DefaultTimeout: time.Duration(cfg.ShellExec.DefaultTimeoutSec) * time.Second,
		MaxOutputBytes: cfg.ShellExec.MaxOutputBytes,
	})
	noteTool := tools.NewNoteTool(store)

	registry := tools.NewRegistry()
	registry.Register(tools.TerminalTool(runner))
	registry.Register(tools.NotesTool(noteTool))

	return &deps{
		cfg:      cfg,
		logger:   logger,
		client:   llm.NewOllamaClient(cfg.Models.OllamaURL),
		store:    store,
		noteTool: noteTool,
		runner:   runner,
		registry: registry,
		builder:  contextpack.NewBuilder(cfg.Agent.MaxContextTokens, cfg.Agent.ReserveRatio),
	}, nil
}

// sessionFactory returns the orchestrator factory used by the session
// registry.
func (d *deps) sessionFactory() session.Factory {
	return func(sessionID string, bus *events.Bus) *session.Orchestrator {
		return session.New(session.Config{
			Logger:     d.logger,
			Client:     d.client,
			Model:      d.cfg.Models.Default,
			Options:    &llm.Options{Temperature: d.cfg.Models.Temperature},
			Builder:    d.builder,
			Registry:   d.registry,
			NoteTool:   d.noteTool,
			Runner:     d.runner,
			Bus:        bus,
			Project:    d.cfg.Workspace.Name,
			SessionID:  sessionID,
			MaxHistory: d.cfg.Agent.MaxHistory,
		})
	}
}

// runServe starts the web server and blocks until the context is
// cancelled or the server fails.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	d, err := buildDeps(stdout, configPath)
	if err != nil {
		return err
	}
	defer d.store.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := session.NewManager(d.sessionFactory())
	defer manager.Close()

	addr := fmt.Sprintf("%s:%d", d.cfg.Listen.Address, d.cfg.Listen.Port)
	srv := web.NewServer(addr, d.logger, manager, d.store)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		d.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
}

// runAsk processes a single session turn and prints the response.
func runAsk(ctx context.Context, stdout io.Writer, configPath, mode, question string) error {
	d, err := buildDeps(stdout, configPath)
	if err != nil {
		return err
	}
	defer d.store.Close()

	orch := d.sessionFactory()("cli", nil)
	fmt.Fprintln(stdout, orch.HandleTurn(ctx, question, mode))
	return nil
}

// runReact answers a question with the multi-step reasoning loop
// instead of a session turn.
func runReact(ctx context.Context, stdout io.Writer, configPath, question string) error {
	d, err := buildDeps(stdout, configPath)
	if err != nil {
		return err
	}
	defer d.store.Close()

	loop := react.NewLoop(d.logger, d.client, d.cfg.Models.Default, d.registry, d.cfg.Agent.MaxSteps)
	loop.SetOptions(&llm.Options{Temperature: d.cfg.Models.Temperature})

	res := loop.Run(ctx, question)
	for i, step := range res.Steps {
		fmt.Fprintf(stdout, "step %d:\n  thought: %s\n  action: %s\n  observation: %s\n",
			i+1, step.Thought, step.Action, step.Observation)
	}
	if !res.Finished() {
		return fmt.Errorf("no answer: %s", res.Reason)
	}
	fmt.Fprintln(stdout, res.Answer)
	return nil
}
