// Package react implements the think → act → observe control loop and
// the parser that turns raw model output into discrete actions.
package react

import (
	"errors"
	"strings"
)

// NoValidAnswer is the sentinel returned when a Finish action carries
// malformed brackets.
const NoValidAnswer = "no valid answer"

// ErrNoAction reports model output missing the Thought/Action structure
// entirely. This is loop-fatal: the loop terminates rather than guess.
var ErrNoAction = errors.New("response contains no Thought/Action sections")

// ActionKind tags the parsed action variant.
type ActionKind int

const (
	// KindToolCall invokes a named tool with a verbatim argument.
	KindToolCall ActionKind = iota
	// KindFinish terminates the loop with a final answer.
	KindFinish
	// KindMalformed is an action section that matched neither form.
	// It becomes a synthetic observation, not an abort.
	KindMalformed
)

// Action is the structured result of parsing one round of model output.
type Action struct {
	Kind        ActionKind
	Tool        string // set for KindToolCall
	Argument    string // set for KindToolCall, taken verbatim
	FinalAnswer string // set for KindFinish, trimmed
	Raw         string // the action section as written, for diagnostics
}

// Parsed pairs the extracted thought with its action.
type Parsed struct {
	Thought string
	Action  Action
}

const (
	thoughtMarker = "Thought:"
	actionMarker  = "Action:"
	finishToken   = "Finish"
)

// Parse extracts a thought and an action from raw model text. Both the
// Thought: and Action: markers must be present; missing either returns
// ErrNoAction. The action section runs to the end of the response, so
// arguments may span multiple lines.
func Parse(raw string) (*Parsed, error) {
	ti := strings.Index(raw, thoughtMarker)
	if ti < 0 {
		return nil, ErrNoAction
	}
	rest := raw[ti+len(thoughtMarker):]

	ai := strings.Index(rest, actionMarker)
	if ai < 0 {
		return nil, ErrNoAction
	}

	thought := strings.TrimSpace(rest[:ai])
	actionText := strings.TrimSpace(rest[ai+len(actionMarker):])

	return &Parsed{
		Thought: thought,
		Action:  parseAction(actionText),
	}, nil
}

// parseAction classifies the action section. Grammar:
//
//	action  = "Finish" bracket | identifier bracket
//	bracket = "[" payload "]"        (payload runs to the LAST "]")
//
// Finish with malformed brackets degrades to the NoValidAnswer
// sentinel; a tool call with any other malformation is Malformed.
func parseAction(text string) Action {
	if rest, ok := cutToken(text, finishToken); ok {
		payload, ok := bracketPayload(rest)
		if !ok {
			return Action{Kind: KindFinish, FinalAnswer: NoValidAnswer, Raw: text}
		}
		return Action{Kind: KindFinish, FinalAnswer: strings.TrimSpace(payload), Raw: text}
	}

	name, rest, ok := scanIdentifier(text)
	if !ok {
		return Action{Kind: KindMalformed, Raw: text}
	}
	payload, ok := bracketPayload(rest)
	if !ok {
		return Action{Kind: KindMalformed, Raw: text}
	}
	return Action{Kind: KindToolCall, Tool: name, Argument: payload, Raw: text}
}

// cutToken strips a leading token when it is not part of a longer
// identifier ("Finish[" matches, "Finisher[" does not).
func cutToken(text, token string) (string, bool) {
	if !strings.HasPrefix(text, token) {
		return "", false
	}
	rest := text[len(token):]
	if rest != "" && isIdentRune(rune(rest[0])) {
		return "", false
	}
	return rest, true
}

// scanIdentifier consumes a leading tool identifier: a letter or
// underscore followed by letters, digits, or underscores.
func scanIdentifier(text string) (name, rest string, ok bool) {
	i := 0
	for i < len(text) && isIdentRune(rune(text[i])) {
		i++
	}
	if i == 0 {
		return "", "", false
	}
	if r := rune(text[0]); r >= '0' && r <= '9' {
		return "", "", false
	}
	return text[:i], text[i:], true
}

func isIdentRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

// bracketPayload extracts the payload of a bracketed argument. The
// payload is everything between the first "[" and the last "]", taken
// verbatim; embedded newlines and nested brackets survive.
func bracketPayload(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "[") {
		return "", false
	}
	end := strings.LastIndex(text, "]")
	if end <= 0 {
		return "", false
	}
	return text[1:end], true
}
