// Package contextpack scores and assembles heterogeneous text fragments
// into a bounded model context. Notes, command output, and degradation
// placeholders all become uniform packets that the builder can weigh
// against a single token budget.
package contextpack

import (
	"fmt"
	"time"

	"github.com/steward-agent/steward/internal/notes"
)

// Packet is a scored, timestamped unit of text eligible for inclusion
// in a model prompt. Packets are immutable once created and are
// consumed exactly once by the builder.
type Packet struct {
	Content    string
	Timestamp  time.Time
	TokenCount int
	Relevance  float64
	Metadata   map[string]any
}

// NewPacket creates a packet for the given content. The token count is
// derived from content length; a zero timestamp falls back to now so
// that ranking always has something to order by.
func NewPacket(content string, ts time.Time, relevance float64, metadata map[string]any) Packet {
	if ts.IsZero() {
		ts = time.Now()
	}
	if relevance < 0 {
		relevance = 0
	}
	if relevance > 1 {
		relevance = 1
	}
	return Packet{
		Content:    content,
		Timestamp:  ts,
		TokenCount: EstimateTokens(content),
		Relevance:  relevance,
		Metadata:   metadata,
	}
}

// EstimateTokens approximates the token count of s. The estimate is a
// deterministic, monotonic function of content length (roughly four
// bytes per token). It is used only for budget accounting, never for
// correctness decisions.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// Fixed relevance by note type. Blockers outrank everything: a problem
// that stops work is worth more prompt space than a settled conclusion.
var typeRelevance = map[notes.Type]float64{
	notes.TypeBlocker:    0.9,
	notes.TypeAction:     0.8,
	notes.TypeTaskState:  0.7,
	notes.TypeConclusion: 0.6,
	notes.TypeGeneral:    0.5,
}

// neutralRelevance is assigned to unrecognized note types.
const neutralRelevance = 0.5

// RelevanceFor returns the fixed relevance score for a note type.
func RelevanceFor(t notes.Type) float64 {
	if r, ok := typeRelevance[t]; ok {
		return r
	}
	return neutralRelevance
}

// RankNotes converts notes into scored packets. Scores come from the
// fixed per-type table; timestamps come from each note's UpdatedAt.
// A note with a broken timestamp is still ranked: NewPacket falls
// back to the current instant, trading ranking quality for progress.
func RankNotes(ns []*notes.Note) []Packet {
	out := make([]Packet, 0, len(ns))
	for _, n := range ns {
		content := fmt.Sprintf("### Note: %s [%s]\n%s", n.Title, n.Type, n.Content)
		out = append(out, NewPacket(content, n.UpdatedAt, RelevanceFor(n.Type), map[string]any{
			"note_id":   n.ID,
			"note_type": string(n.Type),
			"title":     n.Title,
		}))
	}
	return out
}

// MergeNotes combines two candidate sets sourced by different queries.
// A note is kept once, keyed by ID, first seen wins, and the merged
// result is truncated to limit after merging so the limit applies to
// final diversity rather than to each source independently. A limit
// <= 0 means unlimited.
func MergeNotes(prioritized, searched []*notes.Note, limit int) []*notes.Note {
	seen := make(map[string]bool, len(prioritized)+len(searched))
	var merged []*notes.Note

	for _, set := range [][]*notes.Note{prioritized, searched} {
		for _, n := range set {
			if n == nil || seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			merged = append(merged, n)
		}
	}

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
