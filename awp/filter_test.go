package awp

import (
	"strings"
	"testing"
)

func TestLightCleaningStripsThoughtsExceptLastTurn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTokens = 1000000 // keep well under stale threshold
	mw := New(cfg, nil)

	payload := Payload{Messages: []PayloadEntry{
		{Kind: KindThought, Content: "old reasoning"},
		{Kind: KindUserPrompt, Content: "hi"},
		{Kind: KindThought, Content: "latest reasoning"},
	}}

	out := mw.Filter(payload)
	if len(out.Messages) != 2 {
		t.Fatalf("expected old thought stripped, got %d messages", len(out.Messages))
	}
	if out.Messages[len(out.Messages)-1].Kind != KindThought {
		t.Fatal("expected most recent thought preserved")
	}

	res, ok := mw.LastResult()
	if !ok || res.Mode != ModeLight {
		t.Fatalf("expected light mode recorded, got %+v", res)
	}
}

func TestAggressiveCleaningRemovesOldestToolResults(t *testing.T) {
	cfg := Config{MaxTokens: 100, StaleToolRemovalThreshold: 0.1, StaleToolRemovalPercentage: 0.5, WarningThreshold: 0.8}
	mw := New(cfg, nil)

	big := strings.Repeat("x", 200)
	payload := Payload{Messages: []PayloadEntry{
		{Kind: KindToolResult, Content: big},
		{Kind: KindToolResult, Content: big},
		{Kind: KindToolResult, Content: big},
		{Kind: KindToolResult, Content: big},
		{Kind: KindUserPrompt, Content: "recent"},
	}}

	out := mw.Filter(payload)
	res, _ := mw.LastResult()
	if res.Mode != ModeAggressive {
		t.Fatalf("expected aggressive mode, got %s", res.Mode)
	}
	if res.ToolResultsRemoved != 2 {
		t.Fatalf("expected 2 of 4 tool results removed (50%%), got %d", res.ToolResultsRemoved)
	}
	remainingTool := 0
	for _, e := range out.Messages {
		if e.Kind == KindToolResult {
			remainingTool++
		}
	}
	if remainingTool != 2 {
		t.Fatalf("expected 2 tool results remaining, got %d", remainingTool)
	}
}

func TestCriticalPriorityEntriesSurviveBothCleaningModes(t *testing.T) {
	cfg := Config{MaxTokens: 100, StaleToolRemovalThreshold: 0.1, StaleToolRemovalPercentage: 1.0, WarningThreshold: 0.8}
	mw := New(cfg, nil)

	big := strings.Repeat("x", 200)
	payload := Payload{Messages: []PayloadEntry{
		{Kind: KindThought, Content: "old reasoning", Priority: PriorityCritical},
		{Kind: KindToolResult, Content: big, Priority: PriorityCritical},
		{Kind: KindToolResult, Content: big},
		{Kind: KindUserPrompt, Content: "recent"},
	}}

	out := mw.Filter(payload)

	var sawCriticalThought, sawCriticalTool bool
	for _, e := range out.Messages {
		if e.Kind == KindThought && e.Priority == PriorityCritical {
			sawCriticalThought = true
		}
		if e.Kind == KindToolResult && e.Priority == PriorityCritical {
			sawCriticalTool = true
		}
	}
	if !sawCriticalThought {
		t.Fatal("expected critical-priority thought to survive light cleaning")
	}
	if !sawCriticalTool {
		t.Fatal("expected critical-priority tool result to survive aggressive cleaning")
	}
}

func TestHistoryIsBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHistory = 3
	mw := New(cfg, nil)

	for i := 0; i < 10; i++ {
		mw.Filter(Payload{Messages: []PayloadEntry{{Kind: KindUserPrompt, Content: "x"}}})
	}
	if len(mw.History()) != 3 {
		t.Fatalf("expected history bounded to 3, got %d", len(mw.History()))
	}
}
