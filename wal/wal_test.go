package wal

import (
	"encoding/json"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendAndRecover(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := w.Append(map[string]any{"step": 1}); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if _, err := w.Append(map[string]any{"step": 2}); err != nil {
		t.Fatalf("append 2: %v", err)
	}

	result, err := w.RecoverLastValid()
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !result.Success {
		t.Fatal("expected successful recovery")
	}
	if result.State["step"].(float64) != 2 {
		t.Fatalf("expected latest frame step=2, got %v", result.State["step"])
	}
	if result.CorruptedSkipped != 0 {
		t.Fatalf("expected 0 corrupted, got %d", result.CorruptedSkipped)
	}
}

func TestRecoverSkipsCorruptedFrames(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	writeFrameFile(t, dir, "state_1.json", Frame{ID: "f1", Timestamp: 1, Data: map[string]any{"v": 1}}, true)
	writeFrameFile(t, dir, "state_2.json", Frame{ID: "f2", Timestamp: 2, Data: map[string]any{"v": 2}}, false) // bad checksum
	writeFrameFile(t, dir, "state_3.json", Frame{ID: "f3", Timestamp: 3, Data: map[string]any{"v": 3}}, true)

	result, err := w.RecoverLastValid()
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success")
	}
	if result.State["v"].(float64) != 3 {
		t.Fatalf("expected frame 3 to win, got %v", result.State["v"])
	}
	if result.LogsProcessed != 2 {
		t.Fatalf("expected 2 valid frames processed, got %d", result.LogsProcessed)
	}
	if result.CorruptedSkipped != 1 {
		t.Fatalf("expected 1 corrupted frame, got %d", result.CorruptedSkipped)
	}
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := w.Append(map[string]any{"i": i}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	removed, err := w.Prune(2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	files, err := w.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 remaining frames, got %d", len(files))
	}
}

// writeFrameFile writes a frame file directly, optionally computing a
// valid checksum (validChecksum=false writes a deliberately wrong one).
func writeFrameFile(t *testing.T, dir, name string, frame Frame, validChecksum bool) {
	t.Helper()
	canon, err := canonicalize(frame.Data)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if validChecksum {
		frame.Checksum = crc32.ChecksumIEEE(canon)
	} else {
		frame.Checksum = 0xDEADBEEF
	}
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}
