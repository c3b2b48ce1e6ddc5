// Package prompts contains the LLM prompt templates used by the session
// orchestrator.
//
// Prompt text is Go code rather than config files because it is program
// logic: templates use fmt.Sprintf interpolation, benefit from
// compile-time embedding, and can be validated by tests. Each exported
// function accepts the dynamic parts and returns the fully interpolated
// prompt string.
package prompts

import "fmt"

// Mode names accepted by SystemInstructions. Unrecognized modes fall
// back to ModeAuto.
const (
	ModeExplore = "explore"
	ModeAnalyze = "analyze"
	ModePlan    = "plan"
	ModeAuto    = "auto"
)

const baseTemplate = `You are the codebase maintenance assistant for the %s project.

Your core capabilities:
1. Use the Terminal tool to explore the codebase (ls, cat, grep, find).
2. Use the Notes tool to record findings and tasks.
3. Build on prior notes so advice stays consistent across sessions.

Current session: %s
`

var modeTemplates = map[string]string{
	ModeExplore: `
Current mode: explore the codebase

You should:
- Proactively run terminal commands to understand the code structure.
- Identify the key modules and files.
- Record the project architecture in notes.
`,
	ModeAnalyze: `
Current mode: analyze code quality

You should:
- Look for code problems (duplication, complexity, TODOs).
- Assess overall code quality.
- Record findings as blocker or action notes.
`,
	ModePlan: `
Current mode: task planning

You should:
- Review prior notes and tasks.
- Lay out a concrete plan for the next steps.
- Update task state notes accordingly.
`,
	ModeAuto: `
Current mode: automatic

You should:
- Pick a strategy based on what the user asks for.
- Use tools when they help.
- Keep answers practical and to the point.
`,
}

// SystemInstructions returns the system prompt for one session turn:
// base capabilities plus the mode-specific addendum. An unrecognized
// mode gets the automatic addendum.
func SystemInstructions(project, sessionID, mode string) string {
	addendum, ok := modeTemplates[mode]
	if !ok {
		addendum = modeTemplates[ModeAuto]
	}
	return fmt.Sprintf(baseTemplate, project, sessionID) + addendum
}

// ValidMode reports whether mode is one of the recognized mode names.
func ValidMode(mode string) bool {
	_, ok := modeTemplates[mode]
	return ok
}
