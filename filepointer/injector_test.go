package filepointer

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/vibe-flow/cmc/fileanalyzer"
	"github.com/vibe-flow/cmc/layout"
	"github.com/vibe-flow/cmc/token"
)

func newTestStore(t *testing.T, softLimit int) *Store {
	t.Helper()
	l := layout.New(t.TempDir(), t.TempDir())
	return NewStore(l, softLimit, token.NewSimpleCounter(), nil)
}

func TestInjectPassesThroughSmallContent(t *testing.T) {
	s := newTestStore(t, 20000)
	content := strings.Repeat("a", 10*1024) // 10kB, well under default limit

	res, err := s.Inject("notes.txt", content)
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if res.WasConverted {
		t.Fatal("expected small content to pass through untouched")
	}
	if res.Payload.(string) != content {
		t.Fatal("expected payload to equal original content")
	}
}

func TestInjectConvertsOversizeContentAndRoundTrips(t *testing.T) {
	s := newTestStore(t, 100) // tiny limit to force conversion
	content := strings.Repeat("package main\nfunc helper() {}\n", 2000)

	res, err := s.Inject("big.go", content)
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if !res.WasConverted {
		t.Fatal("expected oversize content to be converted")
	}
	summary, ok := res.Payload.(ExplorationSummary)
	if !ok {
		t.Fatalf("expected ExplorationSummary payload, got %T", res.Payload)
	}
	if summary.FileID == "" {
		t.Fatal("expected non-empty file id")
	}
	if len(summary.Signature.Functions) == 0 {
		t.Fatal("expected signature to detect functions in go source")
	}

	loaded, err := s.LoadFromPointer(summary.FileID)
	if err != nil {
		t.Fatalf("LoadFromPointer: %v", err)
	}
	if string(loaded) != content {
		t.Fatal("expected loaded content to match original byte-for-byte")
	}
}

func TestLoadFromPointerMissingIDErrors(t *testing.T) {
	s := newTestStore(t, 20000)
	if _, err := s.LoadFromPointer("does-not-exist"); err == nil {
		t.Fatal("expected error loading missing pointer")
	}
}

func TestInjectRoutesSignatureExtractionThroughCache(t *testing.T) {
	dir := t.TempDir()
	cache, err := fileanalyzer.NewCache(filepath.Join(dir, "signatures.sqlite3"))
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	l := layout.New(t.TempDir(), t.TempDir())
	s := NewStore(l, 100, token.NewSimpleCounter(), cache)
	content := strings.Repeat("package main\nfunc helper() {}\n", 2000)

	res, err := s.Inject("big.go", content)
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	summary := res.Payload.(ExplorationSummary)
	if len(summary.Signature.Functions) == 0 {
		t.Fatal("expected cached signature to detect functions in go source")
	}

	cached, err := cache.Get(content)
	if err != nil {
		t.Fatalf("cache.Get: %v", err)
	}
	if len(cached.Functions) != len(summary.Signature.Functions) {
		t.Fatal("expected cache hit to return the same signature Inject computed")
	}
}
