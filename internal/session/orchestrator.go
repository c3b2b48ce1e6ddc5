// Package session owns the per-session turn pipeline: mode
// pre-processing, note retrieval and ranking, context assembly, the
// single-shot model call, embedded tool-call expansion, and keyword
// auto-notes. A session never crashes on a degraded step; every failure
// either becomes context or a canned reply.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steward-agent/steward/internal/contextpack"
	"github.com/steward-agent/steward/internal/events"
	"github.com/steward-agent/steward/internal/llm"
	"github.com/steward-agent/steward/internal/notes"
	"github.com/steward-agent/steward/internal/prompts"
	"github.com/steward-agent/steward/internal/tools"
)

// cannedResponse replaces the model's answer when the backend fails or
// returns nothing. The turn still completes and the user receives text.
const cannedResponse = `The model backend did not return a response for this turn.

What you can do:
- Retry the question; transient backend failures are common.
- Run an explore turn to refresh the gathered context.
- Check the collected notes for earlier findings on this topic.`

// Stats tracks activity over the lifetime of one orchestrator.
type Stats struct {
	CommandsExecuted int       `json:"commands_executed"`
	NotesCreated     int       `json:"notes_created"`
	IssuesFound      int       `json:"issues_found"`
	SessionStart     time.Time `json:"session_start"`
}

// Report is the session summary returned to callers.
type Report struct {
	SessionInfo ReportInfo     `json:"session_info"`
	Activity    Stats          `json:"activity"`
	Notes       *notes.Summary `json:"notes,omitempty"`
}

// ReportInfo identifies the session a report describes.
type ReportInfo struct {
	SessionID       string  `json:"session_id"`
	Project         string  `json:"project"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Config wires an orchestrator's collaborators. Zero values get
// defaults where safe; Client, Registry, NoteTool, and Runner are
// required.
type Config struct {
	Logger    *slog.Logger
	Client    llm.Client
	Model     string
	Options   *llm.Options
	Builder   *contextpack.Builder
	Registry  *tools.Registry
	NoteTool  *tools.NoteTool
	Runner    *tools.Runner
	Bus       *events.Bus
	Project   string
	SessionID string
	// MaxHistory caps conversation history in messages, not turns.
	MaxHistory int
}

// Orchestrator composes one session's turn pipeline. All turn
// processing is serialized: a turn reads and mutates history and stats,
// so concurrent HandleTurn calls queue on the session mutex.
type Orchestrator struct {
	mu sync.Mutex

	logger     *slog.Logger
	client     llm.Client
	model      string
	opts       *llm.Options
	builder    *contextpack.Builder
	registry   *tools.Registry
	noteTool   *tools.NoteTool
	runner     *tools.Runner
	bus        *events.Bus
	project    string
	sessionID  string
	maxHistory int

	history []llm.Message
	stats   Stats
}

// New creates a session orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Builder == nil {
		cfg.Builder = contextpack.NewBuilder(0, 0)
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 20
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.Project == "" {
		cfg.Project = "workspace"
	}
	return &Orchestrator{
		logger:     cfg.Logger.With("session", cfg.SessionID),
		client:     cfg.Client,
		model:      cfg.Model,
		opts:       cfg.Options,
		builder:    cfg.Builder,
		registry:   cfg.Registry,
		noteTool:   cfg.NoteTool,
		runner:     cfg.Runner,
		bus:        cfg.Bus,
		project:    cfg.Project,
		sessionID:  cfg.SessionID,
		maxHistory: cfg.MaxHistory,
		stats:      Stats{SessionStart: time.Now()},
	}
}

// ID returns the session identifier.
func (o *Orchestrator) ID() string {
	return o.sessionID
}

// HandleTurn processes one user turn in the given mode and always
// returns text. A failure escaping the turn pipeline is converted to a
// user-visible error string and recorded, best effort, as a blocker
// note; a failure while recording is swallowed.
func (o *Orchestrator) HandleTurn(ctx context.Context, input, mode string) string {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !prompts.ValidMode(mode) {
		mode = prompts.ModeAuto
	}
	o.bus.Publish(events.KindTurnStart, input, map[string]any{"mode": mode})

	response, err := o.turn(ctx, input, mode)
	if err != nil {
		o.logger.Error("turn failed", "error", err)
		o.bus.Publish(events.KindError, err.Error(), nil)
		o.recordTurnFailure(input, err)
		return fmt.Sprintf("turn failed: %v", err)
	}

	o.bus.Publish(events.KindTurnComplete, "", nil)
	return response
}

// turn runs the per-turn pipeline. Degraded steps (pre-processing,
// retrieval, context build, model call) recover inline; only a dead
// context or an unusable session escapes as an error.
func (o *Orchestrator) turn(ctx context.Context, input, mode string) (string, error) {
	if o.client == nil {
		return "", fmt.Errorf("no model client configured")
	}

	pre := o.preprocess(ctx, mode)
	retrieved := o.retrieveNotes(input)
	packets := append(contextpack.RankNotes(retrieved), pre...)

	system := prompts.SystemInstructions(o.project, o.sessionID, mode)
	contextText, err := o.builder.Build(input, o.history, system, packets)
	if err != nil {
		o.logger.Warn("context build failed, using system instructions only", "error", err)
		contextText = system
	}
	o.bus.Publish(events.KindContextBuilt, "", map[string]any{
		"packets": len(packets),
		"tokens":  contextpack.EstimateTokens(contextText),
	})

	o.bus.Publish(events.KindModelCall, o.model, nil)
	response := o.think(ctx, contextText, input)
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("turn context: %w", err)
	}

	response, executed := expandToolCalls(ctx, o.registry, response, func(name, result string) {
		o.bus.Publish(events.KindToolCall, name, map[string]any{"result_bytes": len(result)})
	})
	if executed > 0 {
		o.logger.Debug("expanded embedded tool calls", "count", executed)
	}

	o.autoNote(input, response)

	o.history = append(o.history,
		llm.Message{Role: "user", Content: input},
		llm.Message{Role: "assistant", Content: response},
	)
	if len(o.history) > o.maxHistory {
		o.history = o.history[len(o.history)-o.maxHistory:]
	}

	return response, nil
}

// think makes the single-shot model call. This is distinct from the
// multi-step control loop: the session asks once and post-processes the
// answer. Any failure or empty result degrades to the canned response.
func (o *Orchestrator) think(ctx context.Context, system, input string) string {
	resp, err := o.client.Chat(ctx, o.model, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: input},
	}, o.opts)
	if err != nil || resp == nil || strings.TrimSpace(resp.Message.Content) == "" {
		o.logger.Warn("model call failed, substituting canned response", "error", err)
		o.bus.Publish(events.KindError, "model call failed", nil)
		return cannedResponse
	}
	return resp.Message.Content
}

// retrieveNotes gathers notes for the turn: open blockers first, then a
// content search for the input, merged with blockers prioritized and
// capped at three notes total. Retrieval failure yields no notes, never
// an aborted turn.
func (o *Orchestrator) retrieveNotes(input string) []*notes.Note {
	blockers, err := o.noteTool.Run(tools.NoteAction{Action: "list", NoteType: "blocker", Limit: 2})
	if err != nil {
		o.logger.Warn("blocker retrieval failed", "error", err)
		blockers = &tools.NoteResult{}
	}
	searched, err := o.noteTool.Run(tools.NoteAction{Action: "search", Query: input, Limit: 3})
	if err != nil {
		o.logger.Warn("note search failed", "error", err)
		searched = &tools.NoteResult{}
	}
	return contextpack.MergeNotes(blockers.Notes, searched.Notes, 3)
}

// Keyword sets driving post-turn auto-notes. Problem keywords are
// matched against the response, planning keywords against the input.
var (
	problemKeywords  = []string{"problem", "bug", "error", "blocker", "issue"}
	planningKeywords = []string{"plan", "next step", "task", "todo"}
)

// autoNote persists a note when the finished turn looks like a problem
// report or a planning discussion. Write failures are logged and
// dropped; the response is already determined.
func (o *Orchestrator) autoNote(input, response string) {
	switch {
	case containsAny(strings.ToLower(response), problemKeywords):
		_, err := o.noteTool.Run(tools.NoteAction{
			Action:   "create",
			Title:    "Problem found: " + clip(input, 30),
			Content:  fmt.Sprintf("## User input\n%s\n\n## Analysis\n%s", input, clip(response, 500)),
			NoteType: string(notes.TypeBlocker),
			Tags:     []string{o.project, "auto_detected", o.sessionID},
		})
		if err != nil {
			o.logger.Warn("auto blocker note failed", "error", err)
			return
		}
		o.stats.NotesCreated++
		o.stats.IssuesFound++
		o.bus.Publish(events.KindNoteCreated, "auto blocker note", nil)

	case containsAny(strings.ToLower(input), planningKeywords):
		_, err := o.noteTool.Run(tools.NoteAction{
			Action:   "create",
			Title:    "Task planning: " + clip(input, 30),
			Content:  fmt.Sprintf("## Discussion\n%s\n\n## Action plan\n%s", input, clip(response, 500)),
			NoteType: string(notes.TypeAction),
			Tags:     []string{o.project, "planning", o.sessionID},
		})
		if err != nil {
			o.logger.Warn("auto planning note failed", "error", err)
			return
		}
		o.stats.NotesCreated++
		o.bus.Publish(events.KindNoteCreated, "auto planning note", nil)
	}
}

// recordTurnFailure writes a best-effort audit note for a failed turn.
func (o *Orchestrator) recordTurnFailure(input string, turnErr error) {
	_, err := o.noteTool.Run(tools.NoteAction{
		Action:   "create",
		Title:    "Turn failure: " + clip(input, 30),
		Content:  fmt.Sprintf("## User input\n%s\n\n## Error\n%v", input, turnErr),
		NoteType: string(notes.TypeBlocker),
		Tags:     []string{o.project, "error", o.sessionID},
	})
	if err != nil {
		o.logger.Warn("failure audit note not recorded", "error", err)
	}
}

// Report summarizes the session: identity, activity counters, and the
// note store summary. A summary failure leaves Notes nil.
func (o *Orchestrator) Report() *Report {
	o.mu.Lock()
	defer o.mu.Unlock()

	r := &Report{
		SessionInfo: ReportInfo{
			SessionID:       o.sessionID,
			Project:         o.project,
			DurationSeconds: time.Since(o.stats.SessionStart).Seconds(),
		},
		Activity: o.stats,
	}
	if res, err := o.noteTool.Run(tools.NoteAction{Action: "summary"}); err == nil {
		r.Notes = res.Summary
	} else {
		o.logger.Warn("note summary failed", "error", err)
	}
	return r
}

// History returns a copy of the conversation history.
func (o *Orchestrator) History() []llm.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]llm.Message, len(o.history))
	copy(out, o.history)
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// clip shortens s to at most n runes, marking the cut.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
