package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/steward-agent/steward/internal/tools"
)

// Markers delimiting an embedded tool-call block in model output. The
// payload between them is a JSON array of calls.
const (
	toolCallBegin = "<|FunctionCallBegin|>"
	toolCallEnd   = "<|FunctionCallEnd|>"
)

// toolCall is one entry of an embedded tool-call block. Extra fields in
// the payload are ignored.
type toolCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// expandToolCalls replaces every embedded tool-call block in response
// with the textual results of executing its calls against the registry.
// A block whose payload does not decode is replaced with an annotation
// rather than failing the turn. Returns the expanded text and the
// number of calls executed; observer (optional) is invoked per call.
func expandToolCalls(ctx context.Context, reg *tools.Registry, response string, observer func(name, result string)) (string, int) {
	if !strings.Contains(response, toolCallBegin) {
		return response, 0
	}

	var out strings.Builder
	executed := 0
	rest := response

	for {
		begin := strings.Index(rest, toolCallBegin)
		if begin < 0 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:begin])
		rest = rest[begin+len(toolCallBegin):]

		end := strings.Index(rest, toolCallEnd)
		if end < 0 {
			// Unterminated block: keep the remainder verbatim.
			out.WriteString(toolCallBegin)
			out.WriteString(rest)
			break
		}
		payload := rest[:end]
		rest = rest[end+len(toolCallEnd):]

		var calls []toolCall
		if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &calls); err != nil {
			out.WriteString("[unparseable tool call block]")
			continue
		}

		var results []string
		for _, c := range calls {
			if c.Name == "" {
				continue
			}
			result := reg.Execute(ctx, c.Name, c.Parameters)
			executed++
			if observer != nil {
				observer(c.Name, result)
			}
			results = append(results, fmt.Sprintf("Tool result (%s):\n```\n%s\n```", c.Name, result))
		}
		out.WriteString(strings.Join(results, "\n\n"))
	}

	return out.String(), executed
}
