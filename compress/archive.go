package compress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/vibe-flow/cmc/layout"
	"github.com/vibe-flow/cmc/pathutil"
	"github.com/vibe-flow/cmc/token"
)

// LogPointerRole marks the synthetic system message inserted in place
// of an archived chunk.
const LogPointerRole = "system"

// ClassificationRule scores a line of message content toward a metadata
// kind. Rules are evaluated in order; a line may match more than one.
type ClassificationRule struct {
	Pattern  *regexp.Regexp
	Kind     string // "decision" or "file_reference"
	Priority int
	Score    float64
}

// DefaultClassificationRules recognises decision language and file
// paths via regex heuristics, scored and ordered by specificity.
var DefaultClassificationRules = []ClassificationRule{
	{Pattern: regexp.MustCompile(`(?i)\b(decided|decision|we will|we'll|going with|chose to|agreed to)\b`), Kind: "decision", Priority: 1, Score: 0.9},
	{Pattern: regexp.MustCompile(`(?i)\b(let's|plan is|next step)\b`), Kind: "decision", Priority: 2, Score: 0.6},
	{Pattern: regexp.MustCompile(`\b[\w./-]+\.(go|ts|tsx|js|jsx|py|md|json|yaml|yml)\b`), Kind: "file_reference", Priority: 1, Score: 0.8},
}

// ChunkMetadata summarises an archived chunk without requiring a
// caller to reload it from disk.
type ChunkMetadata struct {
	RoleCounts     map[string]int
	FirstTimestamp int64
	LastTimestamp  int64
	Decisions      []string
	FileReferences []string
	StartIndex     int
	EndIndex       int
	TotalMessages  int
}

// archiveChunk is the on-disk shape at .vibe-flow/context-archives/archive_<id>.json.
type archiveChunk struct {
	ArchivedAt int64         `json:"archivedAt"`
	PointerID  string        `json:"pointerId"`
	Metadata   ChunkMetadata `json:"metadata"`
	Messages   []Message     `json:"messages"`
}

// Config controls when and how archival triggers.
type Config struct {
	ThresholdPercentage    float64
	TokenLimit             int
	PreserveRecentMessages int
	ChunkSize              int
}

// DefaultConfig matches spec.md's stated archival defaults.
func DefaultConfig() Config {
	return Config{
		ThresholdPercentage:    0.8,
		TokenLimit:             100000,
		PreserveRecentMessages: 10,
		ChunkSize:              10,
	}
}

// ArchiveResult reports the outcome of a Compact call.
type ArchiveResult struct {
	ArchivedCount int
	PointerIDs    []string
	BytesReduced  int
	Messages      []Message // live window after substitution
}

// Archiver performs chunked archival of old messages to disk, replacing
// them in the live window with synthetic log-pointer messages.
type Archiver struct {
	layout  *layout.Layout
	counter token.Counter
	cfg     Config
	rules   []ClassificationRule
}

// NewArchiver builds an Archiver. A nil rules slice uses DefaultClassificationRules.
func NewArchiver(l *layout.Layout, counter token.Counter, cfg Config, rules []ClassificationRule) *Archiver {
	if counter == nil {
		counter = token.NewSimpleCounter()
	}
	if rules == nil {
		rules = DefaultClassificationRules
	}
	return &Archiver{layout: l, counter: counter, cfg: cfg, rules: rules}
}

// Compact archives the oldest messages into chunked pointer files when
// the sequence exceeds thresholdPercentage × tokenLimit, leaving
// PreserveRecentMessages untouched at the tail.
func (a *Archiver) Compact(messages []Message) (ArchiveResult, error) {
	contents := make([]string, len(messages))
	for i, m := range messages {
		contents[i] = m.Content
	}
	totalTokens := a.counter.Count(contents...)
	threshold := a.cfg.ThresholdPercentage * float64(a.cfg.TokenLimit)
	if float64(totalTokens) <= threshold || len(messages) <= a.cfg.PreserveRecentMessages {
		return ArchiveResult{Messages: messages}, nil
	}

	keep := a.cfg.PreserveRecentMessages
	toArchive := messages[:len(messages)-keep]
	tail := messages[len(messages)-keep:]

	chunkSize := a.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 10
	}

	var result ArchiveResult
	var pointers []Message
	bytesBefore := totalBytes(toArchive)

	for start := 0; start < len(toArchive); start += chunkSize {
		end := start + chunkSize
		if end > len(toArchive) {
			end = len(toArchive)
		}
		chunk := toArchive[start:end]

		meta := a.classify(chunk, start, end, len(toArchive))
		id := uuid.NewString()
		if err := a.persist(id, meta, chunk); err != nil {
			return ArchiveResult{}, err
		}

		pointers = append(pointers, Message{
			Role:      LogPointerRole,
			Content:   formatPointerReasoning(id, meta),
			Timestamp: meta.LastTimestamp,
		})
		result.PointerIDs = append(result.PointerIDs, id)
		result.ArchivedCount += len(chunk)
	}

	live := make([]Message, 0, len(pointers)+len(tail))
	live = append(live, pointers...)
	live = append(live, tail...)

	result.Messages = live
	result.BytesReduced = bytesBefore - totalBytes(pointers)
	return result, nil
}

// Expand loads an archived chunk's original messages back from disk.
func (a *Archiver) Expand(pointerID string) ([]Message, error) {
	path, err := pathutil.ResolveSafePath(a.layout.ContextArchiveDir(), "archive_"+pointerID+".json")
	if err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("compress: expand %s: %w", pointerID, err)
	}
	var chunk archiveChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("compress: corrupted archive %s: %w", pointerID, err)
	}
	return chunk.Messages, nil
}

func (a *Archiver) persist(id string, meta ChunkMetadata, messages []Message) error {
	path := a.layout.ContextArchive(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("compress: create archive dir: %w", err)
	}
	chunk := archiveChunk{
		ArchivedAt: meta.LastTimestamp,
		PointerID:  id,
		Metadata:   meta,
		Messages:   messages,
	}
	data, err := json.MarshalIndent(chunk, "", "  ")
	if err != nil {
		return fmt.Errorf("compress: encode archive: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("compress: write archive: %w", err)
	}
	return nil
}

func (a *Archiver) classify(chunk []Message, start, end, total int) ChunkMetadata {
	meta := ChunkMetadata{
		RoleCounts:    map[string]int{},
		StartIndex:    start,
		EndIndex:      end,
		TotalMessages: total,
	}
	// Messages without a timestamp are stamped with this chunk's archival time.
	archivedAt := time.Now().UnixMilli()
	for i, m := range chunk {
		meta.RoleCounts[m.Role]++
		ts := m.Timestamp
		if ts == 0 {
			ts = archivedAt
		}
		if i == 0 {
			meta.FirstTimestamp = ts
		}
		meta.LastTimestamp = ts

		best := map[string]float64{}
		for _, rule := range a.rules {
			if !rule.Pattern.MatchString(m.Content) {
				continue
			}
			if rule.Score > best[rule.Kind] {
				best[rule.Kind] = rule.Score
			}
		}
		if best["decision"] > 0 {
			meta.Decisions = append(meta.Decisions, truncate(m.Content, 160))
		}
		if best["file_reference"] > 0 {
			for _, ref := range extractFileRefs(m.Content) {
				meta.FileReferences = append(meta.FileReferences, ref)
			}
		}
	}
	return meta
}

var fileRefPattern = regexp.MustCompile(`\b[\w./-]+\.(?:go|ts|tsx|js|jsx|py|md|json|yaml|yml)\b`)

func extractFileRefs(content string) []string {
	return fileRefPattern.FindAllString(content, -1)
}

func formatPointerReasoning(id string, meta ChunkMetadata) string {
	return fmt.Sprintf(
		"log-pointer %s: archived %d messages (%s) spanning %d decisions, %d file references",
		id, meta.EndIndex-meta.StartIndex, rolesSummary(meta.RoleCounts), len(meta.Decisions), len(meta.FileReferences),
	)
}

func rolesSummary(counts map[string]int) string {
	out := ""
	for role, n := range counts {
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("%d %s", n, role)
	}
	return out
}

func totalBytes(messages []Message) int {
	n := 0
	for _, m := range messages {
		n += len(m.Content)
	}
	return n
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
