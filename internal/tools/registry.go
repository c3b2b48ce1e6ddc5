// Package tools defines the tools available to the agent and the
// sandboxed command runner behind them.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string                                                         `json:"name"`
	Description string                                                         `json:"description"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds available tools.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. A tool registered under an existing name
// replaces the previous one.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe enumerates all registered tools and their descriptions for
// inclusion in prompts.
func (r *Registry) Describe() string {
	var sb strings.Builder
	for _, name := range r.Names() {
		fmt.Fprintf(&sb, "- %s: %s\n", name, r.tools[name].Description)
	}
	return sb.String()
}

// Execute runs the named tool and returns its output as an observation.
// An unknown tool or a failing handler becomes observation text rather
// than an error: the loop must be able to feed the problem back to the
// model and continue.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	t, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("unknown tool %q (available: %s)", name, strings.Join(r.Names(), ", "))
	}

	out, err := t.Handler(ctx, args)
	if err != nil {
		return fmt.Sprintf("tool %s failed: %v", name, err)
	}
	return out
}
