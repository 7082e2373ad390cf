// Package layout centralises the on-disk path scheme every CMC writer
// agrees on, so archive, WAL and index files always land in the same
// place regardless of which component created them.
package layout

import (
	"path/filepath"
	"strconv"
)

const (
	rootDir          = ".vibe-flow"
	contextArchives  = "context-archives"
	fileArchives     = "file-archives"
	compressedArchiv = "compressed-archives"
	walDir           = "wal"
)

// Layout resolves every path CMC components read or write, rooted at a
// single project directory.
type Layout struct {
	root       string
	storageDir string
}

// New builds a Layout rooted at projectRoot, with the ITS storage
// directory at storageDir (often the same as projectRoot, kept distinct
// because spec.md addresses them separately).
func New(projectRoot, storageDir string) *Layout {
	return &Layout{root: projectRoot, storageDir: storageDir}
}

// ContextArchive returns the path for an old-log archive chunk.
func (l *Layout) ContextArchive(id string) string {
	return filepath.Join(l.root, rootDir, contextArchives, "archive_"+id+".json")
}

// FileArchive returns the path for a raw oversize file's persisted content.
func (l *Layout) FileArchive(id string) string {
	return filepath.Join(l.root, rootDir, fileArchives, "file_"+id+".txt")
}

// CompressedArchive returns the path for an escalation archive.
func (l *Layout) CompressedArchive(id string) string {
	return filepath.Join(l.root, rootDir, compressedArchiv, "log_"+id+".json")
}

// WALFrame returns the path for a WAL frame file, keyed by its timestamp.
func (l *Layout) WALFrame(timestamp int64) string {
	return filepath.Join(l.root, rootDir, walDir, "state_"+strconv.FormatInt(timestamp, 10)+".json")
}

// WALDir returns the WAL frame directory.
func (l *Layout) WALDir() string {
	return filepath.Join(l.root, rootDir, walDir)
}

// ContextArchiveDir, FileArchiveDir, CompressedArchiveDir return their
// respective containing directories, for listing and directory creation.
func (l *Layout) ContextArchiveDir() string {
	return filepath.Join(l.root, rootDir, contextArchives)
}

func (l *Layout) FileArchiveDir() string {
	return filepath.Join(l.root, rootDir, fileArchives)
}

func (l *Layout) CompressedArchiveDir() string {
	return filepath.Join(l.root, rootDir, compressedArchiv)
}

// TransactionLog returns the ITS JSONL body path.
func (l *Layout) TransactionLog() string {
	return filepath.Join(l.storageDir, "transactions.jsonl")
}

// TransactionIndex returns the ITS secondary index path.
func (l *Layout) TransactionIndex() string {
	return filepath.Join(l.storageDir, "index.json")
}

// TransactionIndexTemp returns the temp file used for atomic index rename.
func (l *Layout) TransactionIndexTemp() string {
	return filepath.Join(l.storageDir, "index.json.tmp")
}

// ImmutableLog returns the auxiliary audit log path.
func (l *Layout) ImmutableLog() string {
	return filepath.Join(l.storageDir, "immutable-logs.jsonl")
}

// SignatureCache returns the sqlite database path backing the file
// analyzer's content-addressed signature cache.
func (l *Layout) SignatureCache() string {
	return filepath.Join(l.storageDir, "signature-cache.sqlite3")
}

// StorageDir returns the root storage directory for ITS artifacts.
func (l *Layout) StorageDir() string { return l.storageDir }

// Root returns the project root directory.
func (l *Layout) Root() string { return l.root }
