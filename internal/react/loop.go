package react

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/steward-agent/steward/internal/llm"
	"github.com/steward-agent/steward/internal/tools"
)

// Status is the terminal state of one loop run.
type Status int

const (
	// StatusFinished means the model emitted Finish and Answer is usable.
	StatusFinished Status = iota
	// StatusAborted means the loop stopped without an answer; Reason says why.
	StatusAborted
)

// Abort reasons.
const (
	AbortNoResponse = "no response"
	AbortParse      = "parse failure"
	AbortStepBudget = "step budget exhausted"
)

// Step records one completed (thought, action, observation) triple.
type Step struct {
	Thought     string
	Action      string
	Observation string
}

// Result is the outcome of one loop run. Only StatusFinished carries a
// usable answer; callers must degrade gracefully on abort.
type Result struct {
	Status Status
	Reason string // abort reason, empty when finished
	Answer string // final answer, empty when aborted
	Steps  []Step
}

// Finished reports whether the run produced a usable answer.
func (r *Result) Finished() bool {
	return r.Status == StatusFinished
}

// Loop drives the think → act → observe cycle, bounded by a step
// budget. Each run is strictly sequential: no step begins before the
// previous observation is recorded, because every prompt embeds the
// full prior history.
type Loop struct {
	logger   *slog.Logger
	client   llm.Client
	model    string
	opts     *llm.Options
	registry *tools.Registry
	maxSteps int
}

// NewLoop creates a control loop.
func NewLoop(logger *slog.Logger, client llm.Client, model string, registry *tools.Registry, maxSteps int) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if maxSteps <= 0 {
		maxSteps = 5
	}
	return &Loop{
		logger:   logger,
		client:   client,
		model:    model,
		registry: registry,
		maxSteps: maxSteps,
	}
}

// SetOptions sets sampling options passed to the model.
func (l *Loop) SetOptions(opts *llm.Options) {
	l.opts = opts
}

// Run executes the loop for one question. State is owned entirely by
// this invocation; a Loop can be reused for subsequent questions.
func (l *Loop) Run(ctx context.Context, question string) *Result {
	res := &Result{}

	for step := 0; step < l.maxSteps; step++ {
		prompt := l.renderPrompt(question, res.Steps)

		resp, err := l.client.Chat(ctx, l.model, []llm.Message{
			{Role: "user", Content: prompt},
		}, l.opts)
		if err != nil || resp == nil || strings.TrimSpace(resp.Message.Content) == "" {
			l.logger.Warn("loop aborted: model returned nothing", "step", step, "error", err)
			res.Status = StatusAborted
			res.Reason = AbortNoResponse
			return res
		}

		parsed, err := Parse(resp.Message.Content)
		if err != nil {
			l.logger.Warn("loop aborted: unparseable response", "step", step, "error", err)
			res.Status = StatusAborted
			res.Reason = AbortParse
			return res
		}

		if parsed.Action.Kind == KindFinish {
			l.logger.Info("loop finished", "steps", step+1)
			res.Status = StatusFinished
			res.Answer = parsed.Action.FinalAnswer
			return res
		}

		observation := l.observe(ctx, parsed.Action)
		res.Steps = append(res.Steps, Step{
			Thought:     parsed.Thought,
			Action:      parsed.Action.Raw,
			Observation: observation,
		})
		l.logger.Debug("loop step recorded", "step", step, "action", parsed.Action.Raw)
	}

	l.logger.Warn("loop aborted: step budget exhausted", "steps", l.maxSteps)
	res.Status = StatusAborted
	res.Reason = AbortStepBudget
	return res
}

// observe executes a single action and returns the observation text.
// Malformed actions and unknown tools become observations so the model
// can correct itself on the next step.
func (l *Loop) observe(ctx context.Context, a Action) string {
	if a.Kind == KindMalformed {
		return fmt.Sprintf("invalid action format %q: expected ToolName[argument] or Finish[answer]", a.Raw)
	}
	return l.registry.Execute(ctx, a.Tool, map[string]any{"input": a.Argument})
}

// renderPrompt assembles the loop prompt: tool descriptions, the format
// contract, the question, and the running history of completed steps.
func (l *Loop) renderPrompt(question string, steps []Step) string {
	var sb strings.Builder

	sb.WriteString("Answer the question by interleaving Thought and Action steps.\n\n")
	sb.WriteString("Available tools:\n")
	sb.WriteString(l.registry.Describe())
	sb.WriteString("\nRespond with exactly one Thought and one Action per turn:\n\n")
	sb.WriteString("Thought: your reasoning about what to do next\n")
	sb.WriteString("Action: ToolName[argument]\n\n")
	sb.WriteString("When you know the final answer:\n\n")
	sb.WriteString("Thought: your final reasoning\n")
	sb.WriteString("Action: Finish[the answer]\n\n")
	fmt.Fprintf(&sb, "Question: %s\n", question)

	for _, s := range steps {
		fmt.Fprintf(&sb, "\nThought: %s\nAction: %s\nObservation: %s\n", s.Thought, s.Action, s.Observation)
	}

	return sb.String()
}
