package compress

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/vibe-flow/cmc/layout"
)

func newTestArchiver(t *testing.T, cfg Config) *Archiver {
	t.Helper()
	l := layout.New(t.TempDir(), t.TempDir())
	return NewArchiver(l, nil, cfg, nil)
}

func buildMessages(n int, contentPrefix string) []Message {
	out := make([]Message, n)
	for i := 0; i < n; i++ {
		out[i] = Message{Role: "user", Content: contentPrefix + strconv.Itoa(i), Timestamp: int64(i)}
	}
	return out
}

func TestCompactBelowThresholdPassesThrough(t *testing.T) {
	a := newTestArchiver(t, Config{ThresholdPercentage: 0.8, TokenLimit: 100000, PreserveRecentMessages: 5, ChunkSize: 10})
	msgs := buildMessages(3, "short")

	res, err := a.Compact(msgs)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if len(res.PointerIDs) != 0 {
		t.Fatalf("expected no archival below threshold, got %d pointers", len(res.PointerIDs))
	}
	if len(res.Messages) != len(msgs) {
		t.Fatalf("expected untouched message count, got %d", len(res.Messages))
	}
}

func TestCompactArchivesAndExpandsRoundTrip(t *testing.T) {
	a := newTestArchiver(t, Config{ThresholdPercentage: 0.01, TokenLimit: 100, PreserveRecentMessages: 2, ChunkSize: 5})
	msgs := buildMessages(23, "we decided to use foo.go for this, message number ")

	res, err := a.Compact(msgs)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if len(res.PointerIDs) == 0 {
		t.Fatal("expected archival to trigger")
	}
	// 21 archived messages / chunk size 5 = 5 chunks (last partial).
	if res.ArchivedCount != 21 {
		t.Fatalf("expected 21 archived messages, got %d", res.ArchivedCount)
	}
	// live window = pointer messages + 2 preserved tail messages
	if len(res.Messages) != len(res.PointerIDs)+2 {
		t.Fatalf("expected live window = pointers + tail, got %d", len(res.Messages))
	}

	expanded, err := a.Expand(res.PointerIDs[0])
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(expanded) != 5 {
		t.Fatalf("expected first chunk of 5 messages, got %d", len(expanded))
	}
	if expanded[0].Content != msgs[0].Content {
		t.Fatalf("expected round-tripped content to match original, got %q", expanded[0].Content)
	}
}

func TestCompactClassifiesDecisionsAndFileRefs(t *testing.T) {
	a := newTestArchiver(t, Config{ThresholdPercentage: 0.001, TokenLimit: 10, PreserveRecentMessages: 1, ChunkSize: 10})
	msgs := []Message{
		{Role: "user", Content: "we decided to refactor main.go today", Timestamp: 1},
		{Role: "assistant", Content: "sounds good, updating helper.go next", Timestamp: 2},
		{Role: "user", Content: "just some filler text with nothing notable", Timestamp: 3},
		{Role: "assistant", Content: "tail message, kept live", Timestamp: 4},
	}

	res, err := a.Compact(msgs)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if len(res.PointerIDs) != 1 {
		t.Fatalf("expected one archive chunk, got %d", len(res.PointerIDs))
	}
	if !strings.Contains(res.Messages[0].Content, "decisions") {
		t.Fatalf("expected pointer reasoning to mention decisions: %q", res.Messages[0].Content)
	}
}

type fakeLLM struct {
	response string
	err      error
}

func (f fakeLLM) Summarize(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestEscalatedSummarizeNoneWhenUnderTarget(t *testing.T) {
	msgs := []Message{{Role: "user", Content: "short message"}}
	res := EscalatedSummarize(context.Background(), msgs, 10000, Options{})
	if res.AchievedLevel != LevelNone || !res.Success {
		t.Fatalf("expected level none, got %+v", res)
	}
}

func TestEscalatedSummarizeL1Succeeds(t *testing.T) {
	msgs := buildMessages(50, strings.Repeat("x", 1000))
	caller := fakeLLM{response: "a short preserved-details summary"}
	res := EscalatedSummarize(context.Background(), msgs, 200, Options{LLMCaller: caller})
	if !res.Success || res.AchievedLevel != LevelPreserveDetails {
		t.Fatalf("expected L1 success, got %+v", res)
	}
}

func TestEscalatedSummarizeFallsThroughToL3(t *testing.T) {
	msgs := buildMessages(50, strings.Repeat("x", 1000))
	caller := fakeLLM{err: errors.New("llm unavailable")}
	res := EscalatedSummarize(context.Background(), msgs, 200, Options{LLMCaller: caller})
	if !res.Success || res.AchievedLevel != LevelTruncated {
		t.Fatalf("expected fallback to L3, got %+v", res)
	}
}

// S3: 50 entries x 1000 chars, target=200 tokens, no llm-caller.
func TestEscalatedSummarizeDeterministicScenarioS3(t *testing.T) {
	msgs := buildMessages(50, strings.Repeat("y", 1000))
	res := EscalatedSummarize(context.Background(), msgs, 200, Options{})

	if !res.Success {
		t.Fatal("expected success")
	}
	if res.AchievedLevel != LevelTruncated {
		t.Fatalf("expected achieved level 3, got %d", res.AchievedLevel)
	}
	if !strings.HasPrefix(res.Content, "# Context Summary (Truncated)") {
		t.Fatalf("expected truncation header, got prefix %q", res.Content[:40])
	}
	if !strings.Contains(res.Content, "Original message count: 50") {
		t.Fatal("expected original message count line")
	}
	maxLen := 200*4 + 200 // header allowance
	if len(res.Content) > maxLen {
		t.Fatalf("expected content length <= %d, got %d", maxLen, len(res.Content))
	}
}

func TestIsResultSmallerRejectsInsufficientReduction(t *testing.T) {
	original := strings.Repeat("a", 100)
	barelyShorter := strings.Repeat("a", 95) // only 5% shorter
	if isResultSmaller(original, barelyShorter) {
		t.Fatal("expected 5% reduction to be rejected")
	}
	sufficientlyShorter := strings.Repeat("a", 80)
	if !isResultSmaller(original, sufficientlyShorter) {
		t.Fatal("expected 20% reduction to be accepted")
	}
}
