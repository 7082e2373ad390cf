package cmc

import (
	"context"
	"testing"

	"github.com/vibe-flow/cmc/awp"
	"github.com/vibe-flow/cmc/permission"
	"github.com/vibe-flow/cmc/taskgraph"
	"github.com/vibe-flow/cmc/txstore"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		ProjectRoot: dir,
		StorageDir:  dir,
		Caller:      "test",
		Permission:  permission.Policy{DefaultAction: permission.ActionAllow},
	}
	primary := func(ctx context.Context, task any) (any, error) { return "ok", nil }
	fallback := func(ctx context.Context, task any) (any, error) { return "fallback-ok", nil }

	core, err := New(cfg, primary, fallback)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return core
}

func TestRecordAndBuildRequest(t *testing.T) {
	core := newTestCore(t)

	if _, err := core.Record(context.Background(), txstore.VariantUserPrompt, "hello", nil); err != nil {
		t.Fatalf("Record: %v", err)
	}

	payload := awp.Payload{Messages: []awp.PayloadEntry{
		{Kind: awp.KindUserPrompt, Content: "hello"},
	}}
	out, err := core.BuildRequest(payload)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if len(out.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out.Messages))
	}
}

func TestCheckpointPersists(t *testing.T) {
	core := newTestCore(t)
	id, err := core.Checkpoint(map[string]any{"step": "one"})
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty frame file name")
	}
}

func TestDispatchSubAgentAllowed(t *testing.T) {
	core := newTestCore(t)
	node := &taskgraph.Node{ID: "n1", Command: "echo hi"}

	outcome, err := core.DispatchSubAgent(context.Background(), node, nil, taskgraph.CreateContextOptions{MaxTokens: 1000})
	if err != nil {
		t.Fatalf("DispatchSubAgent: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
}

func TestDispatchSubAgentDenied(t *testing.T) {
	core := newTestCore(t)
	core.Permission = permission.New(permission.Policy{DefaultAction: permission.ActionDeny}, nil, nil, "test")
	node := &taskgraph.Node{ID: "n1", Command: "echo hi"}

	outcome, err := core.DispatchSubAgent(context.Background(), node, nil, taskgraph.CreateContextOptions{MaxTokens: 1000})
	if err != nil {
		t.Fatalf("DispatchSubAgent: %v", err)
	}
	if outcome.Success {
		t.Fatal("expected denial to short-circuit execution")
	}
}
