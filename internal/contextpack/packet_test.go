package contextpack

import (
	"testing"
	"time"

	"github.com/steward-agent/steward/internal/notes"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"12345678", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEstimateTokensMonotonic(t *testing.T) {
	prev := 0
	s := ""
	for i := 0; i < 64; i++ {
		s += "x"
		got := EstimateTokens(s)
		if got < prev {
			t.Fatalf("estimate decreased at length %d: %d < %d", i+1, got, prev)
		}
		prev = got
	}
}

func TestRelevanceTable(t *testing.T) {
	tests := []struct {
		typ  notes.Type
		want float64
	}{
		{notes.TypeBlocker, 0.9},
		{notes.TypeAction, 0.8},
		{notes.TypeTaskState, 0.7},
		{notes.TypeConclusion, 0.6},
		{notes.TypeGeneral, 0.5},
		{notes.Type("mystery"), 0.5},
	}
	for _, tt := range tests {
		if got := RelevanceFor(tt.typ); got != tt.want {
			t.Errorf("RelevanceFor(%q) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestRankNotesDeterministic(t *testing.T) {
	n := &notes.Note{
		ID:        "n1",
		Title:     "stock race",
		Content:   "concurrent order processing corrupts stock counts",
		Type:      notes.TypeBlocker,
		UpdatedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}

	first := RankNotes([]*notes.Note{n})
	second := RankNotes([]*notes.Note{n})

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one packet per call")
	}
	if first[0].Relevance != 0.9 {
		t.Errorf("blocker relevance = %v, want 0.9", first[0].Relevance)
	}
	if first[0].Relevance != second[0].Relevance {
		t.Errorf("reranking changed score: %v vs %v", first[0].Relevance, second[0].Relevance)
	}
	if !first[0].Timestamp.Equal(n.UpdatedAt) {
		t.Errorf("timestamp = %v, want note UpdatedAt", first[0].Timestamp)
	}
	if first[0].Metadata["note_id"] != "n1" {
		t.Errorf("metadata note_id = %v", first[0].Metadata["note_id"])
	}
}

func TestRankNotesZeroTimestampFallsBack(t *testing.T) {
	before := time.Now()
	pkts := RankNotes([]*notes.Note{{ID: "n1", Title: "t", Content: "c", Type: notes.TypeGeneral}})
	if len(pkts) != 1 {
		t.Fatal("expected one packet")
	}
	if pkts[0].Timestamp.Before(before) {
		t.Errorf("zero timestamp should fall back to now, got %v", pkts[0].Timestamp)
	}
}

func TestMergeNotesDeduplicates(t *testing.T) {
	a := &notes.Note{ID: "1", Title: "first"}
	b := &notes.Note{ID: "2", Title: "second"}
	aDup := &notes.Note{ID: "1", Title: "first again"}
	c := &notes.Note{ID: "3", Title: "third"}

	merged := MergeNotes([]*notes.Note{a, b}, []*notes.Note{aDup, c}, 0)

	if len(merged) != 3 {
		t.Fatalf("got %d notes, want 3", len(merged))
	}
	seen := make(map[string]int)
	for _, n := range merged {
		seen[n.ID]++
	}
	for id, count := range seen {
		if count > 1 {
			t.Errorf("note %s appears %d times", id, count)
		}
	}
	// First-seen wins: the prioritized copy of ID 1 survives.
	if merged[0].Title != "first" {
		t.Errorf("merged[0].Title = %q, want prioritized copy", merged[0].Title)
	}
}

func TestMergeNotesLimitAppliesAfterMerge(t *testing.T) {
	prioritized := []*notes.Note{{ID: "1"}, {ID: "2"}}
	searched := []*notes.Note{{ID: "2"}, {ID: "3"}, {ID: "4"}}

	merged := MergeNotes(prioritized, searched, 3)
	if len(merged) != 3 {
		t.Fatalf("got %d notes, want limit 3", len(merged))
	}
	// The duplicate must not consume a slot: IDs 1, 2, 3 survive.
	wantIDs := []string{"1", "2", "3"}
	for i, want := range wantIDs {
		if merged[i].ID != want {
			t.Errorf("merged[%d].ID = %s, want %s", i, merged[i].ID, want)
		}
	}
}

func TestNewPacketClampsRelevance(t *testing.T) {
	if p := NewPacket("x", time.Now(), 1.5, nil); p.Relevance != 1 {
		t.Errorf("relevance = %v, want clamp to 1", p.Relevance)
	}
	if p := NewPacket("x", time.Now(), -0.5, nil); p.Relevance != 0 {
		t.Errorf("relevance = %v, want clamp to 0", p.Relevance)
	}
}
