package contextpack

import (
	"strings"
	"testing"
	"time"

	"github.com/steward-agent/steward/internal/llm"
)

func TestBuildSystemOnly(t *testing.T) {
	b := NewBuilder(100, 0.25)

	// Packets far over budget: none fit, history empty.
	huge := NewPacket(strings.Repeat("x", 4000), time.Now(), 0.9, nil)

	out, err := b.Build("", nil, "You are a careful maintainer.", []Packet{huge})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if out != "You are a careful maintainer." {
		t.Errorf("output = %q, want exactly the system instructions", out)
	}
}

func TestBuildRequiresSystem(t *testing.T) {
	b := NewBuilder(100, 0.25)
	if _, err := b.Build("q", nil, "", nil); err == nil {
		t.Error("expected error for empty system instructions")
	}
}

func TestBuildNeverExceedsBudget(t *testing.T) {
	b := NewBuilder(200, 0.25)

	var packets []Packet
	for i := 0; i < 20; i++ {
		packets = append(packets, NewPacket(strings.Repeat("p", 100), time.Now(), 0.5, nil))
	}
	history := []llm.Message{
		{Role: "user", Content: strings.Repeat("h", 120)},
		{Role: "assistant", Content: strings.Repeat("h", 120)},
	}
	query := strings.Repeat("q", 80)

	out, err := b.Build(query, history, "system", packets)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := EstimateTokens(out) + EstimateTokens(query); got > b.MaxTokens {
		t.Errorf("context+query estimate %d exceeds budget %d", got, b.MaxTokens)
	}
}

func TestBuildAdmitsByRelevanceThenRecency(t *testing.T) {
	b := NewBuilder(10000, 0.25)

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	packets := []Packet{
		NewPacket("LOW", recent, 0.4, nil),
		NewPacket("OLD-HIGH", old, 0.9, nil),
		NewPacket("NEW-HIGH", recent, 0.9, nil),
	}

	out, err := b.Build("q", nil, "sys", packets)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	iNew := strings.Index(out, "NEW-HIGH")
	iOld := strings.Index(out, "OLD-HIGH")
	iLow := strings.Index(out, "LOW")
	if iNew == -1 || iOld == -1 || iLow == -1 {
		t.Fatalf("all packets should fit: %q", out)
	}
	if !(iNew < iOld && iOld < iLow) {
		t.Errorf("order wrong: NEW-HIGH=%d OLD-HIGH=%d LOW=%d", iNew, iOld, iLow)
	}
}

func TestBuildDropsWholePackets(t *testing.T) {
	// Budget admits the first packet but not the second; the second
	// must be absent entirely, not truncated.
	b := NewBuilder(60, 0.25) // packet share = 45 tokens

	first := NewPacket(strings.Repeat("a", 80), time.Now(), 0.9, nil)  // ~20 tokens
	second := NewPacket(strings.Repeat("b", 80), time.Now(), 0.8, nil) // ~20 tokens

	out, err := b.Build("", nil, "sys", []Packet{first, second})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !strings.Contains(out, strings.Repeat("a", 80)) {
		t.Error("first packet should be admitted intact")
	}
	if strings.Contains(out, "b") {
		t.Error("second packet should be dropped entirely")
	}
}

func TestBuildHistoryMostRecentFirst(t *testing.T) {
	// Budget only has room for the trailing turn.
	b := NewBuilder(40, 0.5)

	history := []llm.Message{
		{Role: "user", Content: strings.Repeat("old", 40)},
		{Role: "assistant", Content: "fine"},
		{Role: "user", Content: "latest"},
	}

	out, err := b.Build("", history, "sys", nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !strings.Contains(out, "latest") {
		t.Errorf("most recent turn missing: %q", out)
	}
	if strings.Contains(out, "old") {
		t.Errorf("oldest turn should be dropped: %q", out)
	}
}

func TestBuildHistoryChronologicalOrder(t *testing.T) {
	b := NewBuilder(10000, 0.25)

	history := []llm.Message{
		{Role: "user", Content: "FIRST"},
		{Role: "assistant", Content: "SECOND"},
	}

	out, err := b.Build("q", history, "sys", nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if strings.Index(out, "FIRST") > strings.Index(out, "SECOND") {
		t.Errorf("admitted history should render oldest first: %q", out)
	}
}

func TestNewBuilderDefaults(t *testing.T) {
	b := NewBuilder(0, 0)
	if b.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d", b.MaxTokens)
	}
	if b.ReserveRatio != DefaultReserveRatio {
		t.Errorf("ReserveRatio = %v", b.ReserveRatio)
	}
}
