package contextpack

import (
	"fmt"
	"sort"
	"strings"

	"github.com/steward-agent/steward/internal/llm"
)

// Default budget parameters, applied when the caller passes zeroes.
const (
	DefaultMaxTokens    = 8192
	DefaultReserveRatio = 0.25
)

// sectionSep joins the assembled context sections.
const sectionSep = "\n\n"

// Builder merges system instructions, ranked packets, and trailing
// conversation history into one context block under a token budget.
//
// The returned text never embeds the user query itself (the query is
// sent as its own message), but its estimated tokens are charged
// against the reserved share of the budget so that context plus query
// together stay under MaxTokens.
type Builder struct {
	// MaxTokens is the estimated token ceiling for context plus query.
	MaxTokens int
	// ReserveRatio is the fraction of MaxTokens held back for the user
	// query and trailing conversation turns.
	ReserveRatio float64
}

// NewBuilder creates a builder, substituting defaults for zero values.
func NewBuilder(maxTokens int, reserveRatio float64) *Builder {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if reserveRatio <= 0 || reserveRatio >= 1 {
		reserveRatio = DefaultReserveRatio
	}
	return &Builder{MaxTokens: maxTokens, ReserveRatio: reserveRatio}
}

// Build assembles the context text. System instructions are included
// unconditionally; they carry authority over everything else. Packets
// are admitted in descending relevance order (ties broken by recency)
// until the next packet would push the estimate past the packet share
// of the budget; a packet that does not fit is dropped whole, never
// truncated. The reserved share then admits conversation history most
// recent first, after charging the query's own tokens.
func (b *Builder) Build(query string, history []llm.Message, system string, packets []Packet) (string, error) {
	if system == "" {
		return "", fmt.Errorf("system instructions are required")
	}

	packetBudget := int(float64(b.MaxTokens) * (1 - b.ReserveRatio))

	sections := []string{system}
	total := EstimateTokens(system)

	// Highest relevance first; recency breaks ties.
	ordered := make([]Packet, len(packets))
	copy(ordered, packets)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Relevance != ordered[j].Relevance {
			return ordered[i].Relevance > ordered[j].Relevance
		}
		return ordered[i].Timestamp.After(ordered[j].Timestamp)
	})

	packetHeader := "## Relevant Context"
	var admitted []string
	for _, p := range ordered {
		cost := p.TokenCount + EstimateTokens(sectionSep)
		if len(admitted) == 0 {
			// First packet also pays for the section header.
			cost += EstimateTokens(packetHeader + sectionSep + sectionSep)
		}
		if total+cost > packetBudget {
			break
		}
		admitted = append(admitted, p.Content)
		total += cost
	}
	if len(admitted) > 0 {
		sections = append(sections, packetHeader+sectionSep+strings.Join(admitted, sectionSep))
	}

	// The query itself is charged against the reserve before history.
	total += EstimateTokens(query)

	historyHeader := "## Conversation"
	var turns []string
	for i := len(history) - 1; i >= 0; i-- {
		line := fmt.Sprintf("%s: %s", history[i].Role, history[i].Content)
		cost := EstimateTokens(line) + EstimateTokens("\n")
		if len(turns) == 0 {
			cost += EstimateTokens(historyHeader + sectionSep + sectionSep)
		}
		if total+cost > b.MaxTokens {
			break
		}
		turns = append(turns, line)
		total += cost
	}
	if len(turns) > 0 {
		// turns were collected newest-first; restore chronological order.
		for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
			turns[i], turns[j] = turns[j], turns[i]
		}
		sections = append(sections, historyHeader+sectionSep+strings.Join(turns, "\n"))
	}

	return strings.Join(sections, sectionSep), nil
}
