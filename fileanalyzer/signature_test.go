package fileanalyzer

import (
	"path/filepath"
	"testing"
)

func TestExtractGoSource(t *testing.T) {
	src := `package main

import (
	"fmt"
	"os"
)

type Widget struct{}

func main() {
	fmt.Println("hi")
}

func helper(x int) int {
	return x
}
`
	sig := Extract(src)
	if len(sig.Imports) != 2 {
		t.Fatalf("expected 2 imports, got %v", sig.Imports)
	}
	if len(sig.Functions) < 2 {
		t.Fatalf("expected at least 2 functions, got %v", sig.Functions)
	}
}

func TestExtractPlainTextUsesPreview(t *testing.T) {
	text := "just a plain prose document with no code markers at all, repeated many times over to exceed the preview length threshold so truncation kicks in. "
	long := ""
	for i := 0; i < 10; i++ {
		long += text
	}
	sig := Extract(long)
	if sig.Preview == "" {
		t.Fatal("expected preview for non-source content")
	}
	if len(sig.Preview) > previewLength+3 {
		t.Fatalf("expected preview truncated near %d chars, got %d", previewLength, len(sig.Preview))
	}
}

func TestCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewCache(filepath.Join(dir, "sig.db"))
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	src := "function hello() { return 1; }"
	sig1, err := cache.Get(src)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	sig2, err := cache.Get(src)
	if err != nil {
		t.Fatalf("Get (cached): %v", err)
	}
	if len(sig1.Functions) != len(sig2.Functions) {
		t.Fatalf("expected cached signature to match recomputed: %v vs %v", sig1, sig2)
	}
}
