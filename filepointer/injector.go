// Package filepointer implements C8: substitution of oversize inbound
// content with a compact Exploration Summary, persisting the original
// under a content-addressed archive path.
package filepointer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vibe-flow/cmc/fileanalyzer"
	"github.com/vibe-flow/cmc/layout"
	"github.com/vibe-flow/cmc/pathutil"
	"github.com/vibe-flow/cmc/token"
)

// DefaultSoftLimitTokens is the threshold above which content is
// converted to a pointer.
const DefaultSoftLimitTokens = 20000

// ExplorationSummary replaces oversize content in a live payload.
type ExplorationSummary struct {
	FileID       string
	OriginalPath string
	SizeBytes    int
	TokenCount   int
	Signature    fileanalyzer.Signature
}

// InjectResult reports whether conversion happened.
type InjectResult struct {
	WasConverted bool
	Payload      any // either the original string or an ExplorationSummary
}

// Store persists and resurfaces oversize file content.
type Store struct {
	layout    *layout.Layout
	softLimit int
	counter   token.Counter
	cache     *fileanalyzer.Cache // optional; nil falls back to uncached Extract
}

// NewStore builds a Store rooted at the given layout. cache may be nil,
// in which case every conversion recomputes its Signature directly
// instead of reusing the gorm/sqlite-backed signature cache.
func NewStore(l *layout.Layout, softLimitTokens int, counter token.Counter, cache *fileanalyzer.Cache) *Store {
	if softLimitTokens <= 0 {
		softLimitTokens = DefaultSoftLimitTokens
	}
	if counter == nil {
		counter = token.NewSimpleCounter()
	}
	return &Store{layout: l, softLimit: softLimitTokens, counter: counter, cache: cache}
}

// Inject converts content to an ExplorationSummary when it exceeds the
// soft token limit; content at or below the limit passes through untouched.
func (s *Store) Inject(originalPath, content string) (InjectResult, error) {
	tokens := s.counter.Count(content)
	if tokens <= s.softLimit {
		return InjectResult{WasConverted: false, Payload: content}, nil
	}

	sum := sha256.Sum256([]byte(content))
	id := hex.EncodeToString(sum[:])
	path := s.layout.FileArchive(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return InjectResult{}, fmt.Errorf("filepointer: create archive dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return InjectResult{}, fmt.Errorf("filepointer: write archive: %w", err)
	}

	sig, err := s.extractSignature(content)
	if err != nil {
		return InjectResult{}, fmt.Errorf("filepointer: extract signature: %w", err)
	}
	summary := ExplorationSummary{
		FileID:       id,
		OriginalPath: originalPath,
		SizeBytes:    len(content),
		TokenCount:   tokens,
		Signature:    sig,
	}
	return InjectResult{WasConverted: true, Payload: summary}, nil
}

// extractSignature routes through the signature cache when one is
// configured, so repeated conversions of identical content (the same
// file re-injected across requests) skip the regex walk.
func (s *Store) extractSignature(content string) (fileanalyzer.Signature, error) {
	if s.cache != nil {
		return s.cache.Get(content)
	}
	return fileanalyzer.Extract(content), nil
}

// LoadFromPointer resurfaces the original bytes for a file id.
func (s *Store) LoadFromPointer(fileID string) ([]byte, error) {
	path, err := pathutil.ResolveSafePath(s.layout.FileArchiveDir(), "file_"+fileID+".txt")
	if err != nil {
		return nil, fmt.Errorf("filepointer: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("filepointer: load %s: %w", fileID, err)
	}
	return data, nil
}
