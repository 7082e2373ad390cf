// Package txstore implements the Immutable Transaction Store: an
// append-only JSONL log of conversation transactions with an on-disk
// secondary index, rebuildable by full scan when the index is absent
// or disagrees with the log.
package txstore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vibe-flow/cmc/logger"
	"github.com/vibe-flow/cmc/telemetry"
	"github.com/vibe-flow/cmc/token"
)

// Variant classifies a transaction's origin.
type Variant string

const (
	VariantUserPrompt    Variant = "user_prompt"
	VariantToolResult    Variant = "tool_result"
	VariantAssistantReply Variant = "assistant_reply"
)

// Transaction is a single immutable ITS entry.
type Transaction struct {
	ID             string         `json:"id"`
	Timestamp      int64          `json:"timestamp"`
	Variant        Variant        `json:"variant"`
	Content        string         `json:"content"`
	EstimatedTokens int           `json:"estimatedTokens"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// AppendResult is returned by Append.
type AppendResult struct {
	ID         string
	ByteOffset int64
	LineNumber int
}

// indexEntry is the persisted secondary-index row.
type indexEntry struct {
	ID        string  `json:"id"`
	Line      int     `json:"line"`
	Variant   Variant `json:"variant"`
	Timestamp int64   `json:"timestamp"`
}

// SearchQuery filters a search over the log.
type SearchQuery struct {
	Variant  Variant
	StartTS  int64
	EndTS    int64
	Limit    int
	Offset   int
}

// SearchResult is the paginated response to Search.
type SearchResult struct {
	Entries []Transaction
	Total   int
	HasMore bool
}

// Stats summarises the store's contents.
type Stats struct {
	TotalTransactions int
	ByVariant         map[Variant]int
	OldestTimestamp   int64
	NewestTimestamp   int64
	FileSizeBytes     int64
}

// Store is the Immutable Transaction Store. A Store must not be shared
// across processes; concurrent Append calls within one process are
// serialized by an internal mutex, satisfying the single-writer ordering
// guarantee.
type Store struct {
	logPath   string
	indexPath string
	tempPath  string
	counter   token.Counter

	mu    sync.Mutex
	index []indexEntry
	// idToLine speeds up GetByID without a linear scan.
	idToLine map[string]int
}

// Open loads (or initialises) a store backed by logPath/indexPath. On
// startup it verifies the index against the log by comparing line count
// and the last entry's id; on disagreement, the index is rebuilt by
// scanning the log.
func Open(logPath, indexPath string, counter token.Counter) (*Store, error) {
	if counter == nil {
		counter = token.NewSimpleCounter()
	}
	s := &Store{
		logPath:   logPath,
		indexPath: indexPath,
		tempPath:  indexPath + ".tmp",
		counter:   counter,
		idToLine:  make(map[string]int),
	}
	if err := s.reconcile(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) reconcile() error {
	logLines, lastID, err := scanLastLine(s.logPath)
	if err != nil {
		return fmt.Errorf("txstore: scan log: %w", err)
	}

	idx, err := loadIndex(s.indexPath)
	if err == nil && len(idx) == logLines && (logLines == 0 || idx[len(idx)-1].ID == lastID) {
		s.index = idx
		s.rebuildIDMap()
		return nil
	}

	logger.L().Warn("txstore: index disagrees with log, rebuilding", "indexLines", len(idx), "logLines", logLines)
	return s.rebuildIndex()
}

func (s *Store) rebuildIDMap() {
	s.idToLine = make(map[string]int, len(s.index))
	for i, e := range s.index {
		s.idToLine[e.ID] = i
	}
}

// rebuildIndex performs a full scan of the log and regenerates the index.
func (s *Store) rebuildIndex() error {
	f, err := os.Open(s.logPath)
	if os.IsNotExist(err) {
		s.index = nil
		s.idToLine = make(map[string]int)
		return s.persistIndex()
	}
	if err != nil {
		return err
	}
	defer f.Close()

	var idx []indexEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		var tx Transaction
		if err := json.Unmarshal(scanner.Bytes(), &tx); err != nil {
			// Malformed lines are skipped defensively, not fatal.
			line++
			continue
		}
		idx = append(idx, indexEntry{ID: tx.ID, Line: line, Variant: tx.Variant, Timestamp: tx.Timestamp})
		line++
	}
	s.index = idx
	s.rebuildIDMap()
	return s.persistIndex()
}

// Append writes a new transaction and durably updates the index.
func (s *Store) Append(ctx context.Context, variant Variant, content string, metadata map[string]any) (AppendResult, error) {
	_, span := telemetry.StartSpan(ctx, "txstore.append", telemetry.WithAttributes(map[string]any{"variant": string(variant)}))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := Transaction{
		ID:              uuid.NewString(),
		Timestamp:       time.Now().UnixMilli(),
		Variant:         variant,
		Content:         content,
		EstimatedTokens: s.counter.Count(content),
		Metadata:        metadata,
	}

	line, err := json.Marshal(tx)
	if err != nil {
		return AppendResult{}, fmt.Errorf("txstore: marshal transaction: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(s.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return AppendResult{}, fmt.Errorf("txstore: open log: %w", err)
	}
	defer f.Close()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return AppendResult{}, fmt.Errorf("txstore: seek log: %w", err)
	}
	// A single bounded Write call is relied upon for atomicity of the append.
	if _, err := f.Write(line); err != nil {
		return AppendResult{}, fmt.Errorf("txstore: append log: %w", err)
	}
	if err := f.Sync(); err != nil {
		return AppendResult{}, fmt.Errorf("txstore: sync log: %w", err)
	}

	lineNumber := len(s.index)
	s.index = append(s.index, indexEntry{ID: tx.ID, Line: lineNumber, Variant: tx.Variant, Timestamp: tx.Timestamp})
	s.idToLine[tx.ID] = lineNumber

	if err := s.persistIndex(); err != nil {
		return AppendResult{}, err
	}

	return AppendResult{ID: tx.ID, ByteOffset: offset, LineNumber: lineNumber}, nil
}

// persistIndex writes the index atomically via temp-then-rename.
func (s *Store) persistIndex() error {
	data, err := json.Marshal(s.index)
	if err != nil {
		return fmt.Errorf("txstore: marshal index: %w", err)
	}
	if err := os.WriteFile(s.tempPath, data, 0o644); err != nil {
		return fmt.Errorf("txstore: write temp index: %w", err)
	}
	if err := os.Rename(s.tempPath, s.indexPath); err != nil {
		return fmt.Errorf("txstore: rename index: %w", err)
	}
	return nil
}

// GetByID returns the transaction with the given id, if present.
func (s *Store) GetByID(id string) (Transaction, bool, error) {
	s.mu.Lock()
	line, ok := s.idToLine[id]
	s.mu.Unlock()
	if !ok {
		return Transaction{}, false, nil
	}
	tx, err := readLine(s.logPath, line)
	if err != nil {
		return Transaction{}, false, err
	}
	return tx, true, nil
}

// Search filters the in-memory index and paginates, reading the log only
// for the rows on the requested page. It has no full-scan path of its
// own; the index is rebuilt by scanning only when Open finds it absent
// or disagreeing with the log.
func (s *Store) Search(q SearchQuery) (SearchResult, error) {
	s.mu.Lock()
	idx := s.index
	s.mu.Unlock()

	var matches []indexEntry
	for _, e := range idx {
		if q.Variant != "" && e.Variant != q.Variant {
			continue
		}
		if q.StartTS != 0 && e.Timestamp < q.StartTS {
			continue
		}
		if q.EndTS != 0 && e.Timestamp > q.EndTS {
			continue
		}
		matches = append(matches, e)
	}

	total := len(matches)
	limit := q.Limit
	if limit <= 0 {
		limit = total
	}
	start := q.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	entries := make([]Transaction, 0, end-start)
	for _, e := range matches[start:end] {
		tx, err := readLine(s.logPath, e.Line)
		if err != nil {
			continue // defensive: skip malformed lines on the read path too.
		}
		entries = append(entries, tx)
	}

	return SearchResult{Entries: entries, Total: total, HasMore: end < total}, nil
}

// Stats summarises the store.
func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	idx := append([]indexEntry(nil), s.index...)
	s.mu.Unlock()

	st := Stats{ByVariant: make(map[Variant]int)}
	for _, e := range idx {
		st.TotalTransactions++
		st.ByVariant[e.Variant]++
		if st.OldestTimestamp == 0 || e.Timestamp < st.OldestTimestamp {
			st.OldestTimestamp = e.Timestamp
		}
		if e.Timestamp > st.NewestTimestamp {
			st.NewestTimestamp = e.Timestamp
		}
	}
	if fi, err := os.Stat(s.logPath); err == nil {
		st.FileSizeBytes = fi.Size()
	}
	return st, nil
}

func loadIndex(path string) ([]indexEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var idx []indexEntry
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// scanLastLine counts complete lines in the log and returns the last
// transaction's id, tolerating a truncated trailing line.
func scanLastLine(path string) (int, string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	count := 0
	lastID := ""
	for scanner.Scan() {
		var tx Transaction
		if err := json.Unmarshal(scanner.Bytes(), &tx); err != nil {
			continue
		}
		lastID = tx.ID
		count++
	}
	return count, lastID, nil
}

// readLine reads and parses the Nth JSONL line (0-indexed).
func readLine(path string, n int) (Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return Transaction{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	i := 0
	for scanner.Scan() {
		if i == n {
			var tx Transaction
			if err := json.Unmarshal(scanner.Bytes(), &tx); err != nil {
				return Transaction{}, fmt.Errorf("txstore: malformed line %d: %w", n, err)
			}
			return tx, nil
		}
		i++
	}
	return Transaction{}, fmt.Errorf("txstore: line %d not found", n)
}
