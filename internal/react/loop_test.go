package react

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/steward-agent/steward/internal/llm"
	"github.com/steward-agent/steward/internal/tools"
)

// scriptedClient returns canned responses in order, then repeats the last.
type scriptedClient struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (c *scriptedClient) Chat(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (*llm.ChatResponse, error) {
	c.calls++
	if len(messages) > 0 {
		c.prompts = append(c.prompts, messages[len(messages)-1].Content)
	}
	if c.err != nil {
		return nil, c.err
	}
	idx := c.calls - 1
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: c.responses[idx]}}, nil
}

func (c *scriptedClient) Ping(ctx context.Context) error { return nil }

func stockRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	r.Register(&tools.Tool{
		Name:        "CheckStock",
		Description: "Check stock for a SKU.",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return "in stock: 3", nil
		},
	})
	return r
}

func TestLoopFinishImmediately(t *testing.T) {
	client := &scriptedClient{responses: []string{"Thought: done\nAction: Finish[42]"}}
	loop := NewLoop(nil, client, "m", stockRegistry(t), 5)

	res := loop.Run(context.Background(), "what is the answer?")
	if !res.Finished() {
		t.Fatalf("Status = %v (%s), want finished", res.Status, res.Reason)
	}
	if res.Answer != "42" {
		t.Errorf("Answer = %q, want 42", res.Answer)
	}
	if len(res.Steps) != 0 {
		t.Errorf("Steps = %d, want 0", len(res.Steps))
	}
	if client.calls != 1 {
		t.Errorf("model called %d times, want 1", client.calls)
	}
}

func TestLoopToolThenFinish(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"Thought: check stock\nAction: CheckStock[sku-42]",
		"Thought: found it\nAction: Finish[in stock: 3]",
	}}
	loop := NewLoop(nil, client, "m", stockRegistry(t), 5)

	res := loop.Run(context.Background(), "is sku-42 in stock?")
	if !res.Finished() {
		t.Fatalf("Status = %v (%s), want finished", res.Status, res.Reason)
	}
	if len(res.Steps) != 1 {
		t.Fatalf("Steps = %d, want 1", len(res.Steps))
	}
	step := res.Steps[0]
	if step.Thought != "check stock" {
		t.Errorf("Thought = %q", step.Thought)
	}
	if step.Observation != "in stock: 3" {
		t.Errorf("Observation = %q", step.Observation)
	}
	if client.calls != 2 {
		t.Errorf("model called %d times, want 2", client.calls)
	}

	// The second prompt must carry the recorded triple.
	second := client.prompts[1]
	for _, want := range []string{"check stock", "CheckStock[sku-42]", "Observation: in stock: 3"} {
		if !strings.Contains(second, want) {
			t.Errorf("second prompt missing %q", want)
		}
	}
}

func TestLoopAbortsOnEmptyResponse(t *testing.T) {
	client := &scriptedClient{responses: []string{"   "}}
	loop := NewLoop(nil, client, "m", stockRegistry(t), 5)

	res := loop.Run(context.Background(), "q")
	if res.Finished() {
		t.Fatal("expected abort")
	}
	if res.Reason != AbortNoResponse {
		t.Errorf("Reason = %q, want %q", res.Reason, AbortNoResponse)
	}
	if client.calls != 1 {
		t.Errorf("model called %d times, want 1", client.calls)
	}
}

func TestLoopAbortsOnModelError(t *testing.T) {
	client := &scriptedClient{err: errors.New("backend down")}
	loop := NewLoop(nil, client, "m", stockRegistry(t), 5)

	res := loop.Run(context.Background(), "q")
	if res.Finished() || res.Reason != AbortNoResponse {
		t.Errorf("Result = %+v, want abort %q", res, AbortNoResponse)
	}
}

func TestLoopAbortsOnParseFailure(t *testing.T) {
	client := &scriptedClient{responses: []string{"I'm not following the format at all."}}
	loop := NewLoop(nil, client, "m", stockRegistry(t), 5)

	res := loop.Run(context.Background(), "q")
	if res.Finished() {
		t.Fatal("expected abort")
	}
	if res.Reason != AbortParse {
		t.Errorf("Reason = %q, want %q", res.Reason, AbortParse)
	}
	if client.calls != 1 {
		t.Errorf("aborted within one step, got %d calls", client.calls)
	}
}

func TestLoopStepBudgetExhausted(t *testing.T) {
	client := &scriptedClient{responses: []string{"Thought: again\nAction: CheckStock[sku-42]"}}
	loop := NewLoop(nil, client, "m", stockRegistry(t), 3)

	res := loop.Run(context.Background(), "q")
	if res.Finished() {
		t.Fatal("expected abort")
	}
	if res.Reason != AbortStepBudget {
		t.Errorf("Reason = %q, want %q", res.Reason, AbortStepBudget)
	}
	if len(res.Steps) != 3 {
		t.Errorf("Steps = %d, want exactly 3", len(res.Steps))
	}
	if res.Answer != "" {
		t.Errorf("Answer = %q, want empty", res.Answer)
	}
}

func TestLoopUnknownToolContinues(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"Thought: try something\nAction: Nonexistent[x]",
		"Thought: ok then\nAction: Finish[done]",
	}}
	loop := NewLoop(nil, client, "m", stockRegistry(t), 5)

	res := loop.Run(context.Background(), "q")
	if !res.Finished() {
		t.Fatalf("Status = %v (%s), want finished", res.Status, res.Reason)
	}
	if len(res.Steps) != 1 {
		t.Fatalf("Steps = %d, want 1", len(res.Steps))
	}
	if !strings.Contains(res.Steps[0].Observation, "unknown tool") {
		t.Errorf("Observation = %q, want unknown-tool text", res.Steps[0].Observation)
	}
}

func TestLoopMalformedActionContinues(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"Thought: hmm\nAction: do it without brackets",
		"Thought: right\nAction: Finish[ok]",
	}}
	loop := NewLoop(nil, client, "m", stockRegistry(t), 5)

	res := loop.Run(context.Background(), "q")
	if !res.Finished() {
		t.Fatalf("Status = %v (%s), want finished", res.Status, res.Reason)
	}
	if len(res.Steps) != 1 {
		t.Fatalf("Steps = %d, want 1", len(res.Steps))
	}
	if !strings.Contains(res.Steps[0].Observation, "invalid action format") {
		t.Errorf("Observation = %q", res.Steps[0].Observation)
	}
}

func TestLoopFinishIgnoresRemainingBudget(t *testing.T) {
	client := &scriptedClient{responses: []string{"Thought: t\nAction: Finish[  answer  ]"}}
	loop := NewLoop(nil, client, "m", stockRegistry(t), 100)

	res := loop.Run(context.Background(), "q")
	if !res.Finished() || res.Answer != "answer" {
		t.Errorf("Result = %+v, want trimmed answer at step 1", res)
	}
	if client.calls != 1 {
		t.Errorf("model called %d times, want 1", client.calls)
	}
}
