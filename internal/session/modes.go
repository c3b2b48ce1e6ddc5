package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/steward-agent/steward/internal/contextpack"
	"github.com/steward-agent/steward/internal/events"
	"github.com/steward-agent/steward/internal/prompts"
	"github.com/steward-agent/steward/internal/tools"
)

// Pre-processing commands. Hidden directories are excluded so .git
// noise never eats prompt budget.
const (
	exploreCmd = `find . -type f -not -path '*/.*' | head -n 40`
	locCmd     = `find . -type f -not -path '*/.*' -exec wc -l {} + | tail -n 1`
	todoCmd    = `grep -rn 'TODO\|FIXME' --exclude-dir=.git . | head -n 10`
)

// Relevance assigned to pre-processing packets. A failed step still
// yields a packet, at low relevance, so the turn proceeds degraded
// instead of aborting.
const (
	exploreRelevance = 0.6
	analyzeRelevance = 0.7
	planRelevance    = 0.8
	failureRelevance = 0.3
)

// preprocess gathers mode-specific context before the model call.
// Explore and auto list the source tree; analyze adds line counts and
// open TODO markers; plan pulls current task state notes. Every failure
// is converted into a low-relevance packet describing it.
func (o *Orchestrator) preprocess(ctx context.Context, mode string) []contextpack.Packet {
	var packets []contextpack.Packet

	if mode == prompts.ModeExplore || mode == prompts.ModeAuto {
		o.bus.Publish(events.KindPreprocess, "exploring codebase structure", nil)
		structure, err := o.runCommand(ctx, exploreCmd)
		if err != nil {
			packets = append(packets, failurePacket("[Codebase structure]", err))
		} else {
			packets = append(packets, contextpack.NewPacket(
				"[Codebase structure]\n"+structure,
				time.Now(), exploreRelevance,
				map[string]any{"type": "code_structure", "source": "terminal"},
			))
		}
	}

	if mode == prompts.ModeAnalyze {
		o.bus.Publish(events.KindPreprocess, "collecting code statistics", nil)
		loc, locErr := o.runCommand(ctx, locCmd)
		todos, todoErr := o.runCommand(ctx, todoCmd)
		if locErr != nil && todoErr != nil {
			packets = append(packets, failurePacket("[Code statistics]", locErr))
		} else {
			if locErr != nil {
				loc = "unavailable: " + locErr.Error()
			}
			if todoErr != nil {
				todos = "unavailable: " + todoErr.Error()
			}
			packets = append(packets, contextpack.NewPacket(
				fmt.Sprintf("[Code statistics]\n%s\n\n[Open items]\n%s", loc, todos),
				time.Now(), analyzeRelevance,
				map[string]any{"type": "code_analysis", "source": "terminal"},
			))
		}
	}

	if mode == prompts.ModePlan {
		o.bus.Publish(events.KindPreprocess, "loading task state notes", nil)
		res, err := o.noteTool.Run(tools.NoteAction{Action: "list", NoteType: "task_state", Limit: 3})
		if err != nil {
			packets = append(packets, failurePacket("[Current tasks]", err))
		} else if len(res.Notes) > 0 {
			var lines []string
			for _, n := range res.Notes {
				lines = append(lines, "- "+n.Title)
			}
			packets = append(packets, contextpack.NewPacket(
				"[Current tasks]\n"+strings.Join(lines, "\n"),
				time.Now(), planRelevance,
				map[string]any{"type": "task_plan", "source": "notes"},
			))
		}
	}

	return packets
}

// runCommand executes one pre-processing command and counts it.
func (o *Orchestrator) runCommand(ctx context.Context, command string) (string, error) {
	out, err := o.runner.Run(ctx, command)
	if err != nil {
		o.logger.Warn("pre-processing command failed", "command", command, "error", err)
		return "", err
	}
	o.stats.CommandsExecuted++
	o.bus.Publish(events.KindCommand, command, nil)
	return out, nil
}

// failurePacket wraps a pre-processing error as context. The model is
// told that gathering failed rather than being left to guess.
func failurePacket(section string, err error) contextpack.Packet {
	return contextpack.NewPacket(
		fmt.Sprintf("%s\ngathering failed: %v", section, err),
		time.Now(), failureRelevance,
		map[string]any{"source": "terminal", "error": err.Error()},
	)
}
