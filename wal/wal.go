// Package wal implements Write-Ahead Recovery: one checksummed state
// frame per file, tolerant of mid-write crashes of any single frame.
package wal

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vibe-flow/cmc/logger"
)

// Frame is a single WAL state snapshot.
type Frame struct {
	ID        string         `json:"id"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Checksum  uint32         `json:"checksum"`
}

// RecoverResult reports the outcome of a recovery scan.
type RecoverResult struct {
	Success         bool
	State           map[string]any
	LogsProcessed   int
	CorruptedSkipped int
}

// WAL writes and recovers state frames under a single directory.
type WAL struct {
	dir string
}

// New returns a WAL rooted at dir, creating it if necessary.
func New(dir string) (*WAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}
	return &WAL{dir: dir}, nil
}

// Append persists a new state frame and returns its file name.
func (w *WAL) Append(data map[string]any) (string, error) {
	ts := time.Now().UnixNano()
	frame := Frame{
		ID:        fmt.Sprintf("wal_%d", ts),
		Timestamp: ts,
		Data:      data,
	}

	canon, err := canonicalize(data)
	if err != nil {
		return "", fmt.Errorf("wal: canonicalize data: %w", err)
	}
	frame.Checksum = crc32.ChecksumIEEE(canon)

	name := fmt.Sprintf("state_%d.json", ts)
	path := filepath.Join(w.dir, name)

	out, err := json.Marshal(frame)
	if err != nil {
		return "", fmt.Errorf("wal: marshal frame: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", fmt.Errorf("wal: write frame: %w", err)
	}
	return name, nil
}

// RecoverLastValid replays frames in timestamp order and returns the
// most recent one that passes structural and checksum validation.
// Corruption of individual frames is counted, never fatal.
func (w *WAL) RecoverLastValid() (RecoverResult, error) {
	files, err := w.list()
	if err != nil {
		return RecoverResult{}, fmt.Errorf("wal: list frames: %w", err)
	}

	var best *Frame
	processed, corrupted := 0, 0
	for _, name := range files {
		frame, err := readFrame(filepath.Join(w.dir, name))
		if err != nil {
			corrupted++
			logger.L().Warn("wal: skipping corrupted frame", "file", name, "error", err)
			continue
		}
		processed++
		if best == nil || frame.Timestamp > best.Timestamp {
			best = frame
		}
	}

	if best == nil {
		return RecoverResult{Success: false, LogsProcessed: processed, CorruptedSkipped: corrupted}, nil
	}
	return RecoverResult{
		Success:          true,
		State:            best.Data,
		LogsProcessed:    processed,
		CorruptedSkipped: corrupted,
	}, nil
}

// Prune removes all but the keepN most recent frames by timestamp.
func (w *WAL) Prune(keepN int) (int, error) {
	files, err := w.list()
	if err != nil {
		return 0, fmt.Errorf("wal: list frames: %w", err)
	}
	if len(files) <= keepN {
		return 0, nil
	}
	toRemove := files[:len(files)-keepN]
	removed := 0
	for _, name := range toRemove {
		if err := os.Remove(filepath.Join(w.dir, name)); err == nil {
			removed++
		}
	}
	return removed, nil
}

// List returns all frame file names, sorted by ascending timestamp.
func (w *WAL) List() ([]string, error) {
	return w.list()
}

func (w *WAL) list() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "state_") || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, e.Name())
	}

	sort.Slice(files, func(i, j int) bool {
		return extractTimestamp(files[i]) < extractTimestamp(files[j])
	})
	return files, nil
}

func extractTimestamp(name string) int64 {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, "state_"), ".json")
	ts, _ := strconv.ParseInt(trimmed, 10, 64)
	return ts
}

func readFrame(path string) (*Frame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if frame.Data == nil {
		return nil, fmt.Errorf("missing data field")
	}

	canon, err := canonicalize(frame.Data)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	if crc32.ChecksumIEEE(canon) != frame.Checksum {
		return nil, fmt.Errorf("checksum mismatch")
	}
	return &frame, nil
}

// canonicalize produces a deterministic JSON encoding of data by
// re-marshaling through a sorted-key representation so checksum
// computation doesn't depend on Go map iteration order.
func canonicalize(data map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(data[k])
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}
