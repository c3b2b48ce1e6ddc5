package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/steward-agent/steward/internal/notes"
)

// NoteAction describes one note-store operation. Unknown extra fields
// in incoming payloads are ignored during decoding.
type NoteAction struct {
	Action   string   `json:"action"` // create, list, search, summary
	Title    string   `json:"title,omitempty"`
	Content  string   `json:"content,omitempty"`
	NoteType string   `json:"note_type,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Query    string   `json:"query,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

// NoteResult is the polymorphic outcome of a note action. Exactly one
// of Text, Notes, or Summary is populated, selected by the action.
type NoteResult struct {
	Text    string
	Notes   []*notes.Note
	Summary *notes.Summary
}

// NoteTool exposes the note store behind a single action-descriptor
// entry point.
type NoteTool struct {
	store *notes.Store
}

// NewNoteTool creates a note tool over the given store.
func NewNoteTool(store *notes.Store) *NoteTool {
	return &NoteTool{store: store}
}

// Run executes a note action.
func (t *NoteTool) Run(a NoteAction) (*NoteResult, error) {
	switch a.Action {
	case "create":
		n, err := t.store.Create(a.Title, a.Content, notes.Type(a.NoteType), a.Tags)
		if err != nil {
			return nil, fmt.Errorf("create note: %w", err)
		}
		return &NoteResult{Text: fmt.Sprintf("note created: %s [%s] %s", n.ID, n.Type, n.Title)}, nil

	case "list":
		ns, err := t.store.List(notes.Type(a.NoteType), a.Limit)
		if err != nil {
			return nil, fmt.Errorf("list notes: %w", err)
		}
		return &NoteResult{Notes: ns}, nil

	case "search":
		ns, err := t.store.Search(a.Query, notes.Type(a.NoteType), a.Limit)
		if err != nil {
			return nil, fmt.Errorf("search notes: %w", err)
		}
		return &NoteResult{Notes: ns}, nil

	case "summary":
		sum, err := t.store.Summarize()
		if err != nil {
			return nil, fmt.Errorf("summarize notes: %w", err)
		}
		return &NoteResult{Summary: sum}, nil

	default:
		return nil, fmt.Errorf("unknown note action %q (valid: create, list, search, summary)", a.Action)
	}
}

// RenderText flattens a result into observation text for the agent.
func (r *NoteResult) RenderText() string {
	switch {
	case r.Text != "":
		return r.Text
	case r.Summary != nil:
		var sb strings.Builder
		fmt.Fprintf(&sb, "total notes: %d\n", r.Summary.TotalNotes)
		for nt, count := range r.Summary.TypeDistribution {
			fmt.Fprintf(&sb, "- %s: %d\n", nt, count)
		}
		return sb.String()
	case len(r.Notes) > 0:
		var sb strings.Builder
		for _, n := range r.Notes {
			fmt.Fprintf(&sb, "[%s] %s: %s\n", n.Type, n.Title, n.Content)
		}
		return sb.String()
	default:
		return "no notes found"
	}
}

// NotesTool wraps the note tool as an agent tool. Structured callers
// pass descriptor fields directly; the ReAct path passes a bare string
// under "input", which is decoded as JSON when it looks like JSON and
// treated as a search query otherwise.
func NotesTool(t *NoteTool) *Tool {
	return &Tool{
		Name:        "Notes",
		Description: `Persist and retrieve project notes. Argument is a JSON object: {"action": "create|list|search|summary", "title", "content", "note_type", "tags", "query", "limit"}. A plain string argument searches notes.`,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			action, err := decodeNoteAction(args)
			if err != nil {
				return "", err
			}
			res, err := t.Run(action)
			if err != nil {
				return "", err
			}
			return res.RenderText(), nil
		},
	}
}

// decodeNoteAction maps loosely-typed tool arguments onto a NoteAction.
func decodeNoteAction(args map[string]any) (NoteAction, error) {
	var a NoteAction

	if _, ok := args["action"]; ok {
		raw, err := json.Marshal(args)
		if err != nil {
			return a, fmt.Errorf("encode args: %w", err)
		}
		if err := json.Unmarshal(raw, &a); err != nil {
			return a, fmt.Errorf("decode args: %w", err)
		}
		return a, nil
	}

	input := strings.TrimSpace(stringArg(args, "input"))
	if input == "" {
		return a, fmt.Errorf("note action is required")
	}
	if strings.HasPrefix(input, "{") {
		if err := json.Unmarshal([]byte(input), &a); err != nil {
			return a, fmt.Errorf("decode note action: %w", err)
		}
		return a, nil
	}

	// Bare string: search.
	return NoteAction{Action: "search", Query: input, Limit: 5}, nil
}
