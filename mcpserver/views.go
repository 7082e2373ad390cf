// Package mcpserver exposes the three read-only collaborator operations
// named in spec.md §6 (describe, expand, grep) as a real MCP server.
// It never mutates core state — every handler is a pure read view over
// the transaction store, file-pointer archive, and context archives.
package mcpserver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vibe-flow/cmc/compress"
	"github.com/vibe-flow/cmc/filepointer"
	"github.com/vibe-flow/cmc/txstore"
)

// DescribeResult reports what describe(id) found, tagging which store
// the id resolved against.
type DescribeResult struct {
	Found       bool
	Source      string // "transaction", "file-pointer", or "not-found"
	Transaction *txstore.Transaction
	FileSummary *filepointer.ExplorationSummary
}

// ExpandResult carries the original content an id's pointer refers to.
type ExpandResult struct {
	Found   bool
	Source  string // "file-pointer" or "log-pointer"
	Content string
	Entries []compress.Message
}

// GrepOptions configures a grep call.
type GrepOptions struct {
	CaseSensitive  bool
	MaxResults     int
	IncludeContent bool
}

// GrepMatch is one hit from a grep call.
type GrepMatch struct {
	TransactionID string
	LineNumber    int
	Content       string // populated only when IncludeContent is set
}

// GrepResult reports all matches found, capped at MaxResults.
type GrepResult struct {
	Matches    []GrepMatch
	TotalFound int
	Truncated  bool
}

// Views wraps the archive-backed stores as pure-read operations for the
// MCP tool handlers.
type Views struct {
	store    *txstore.Store
	filePtrs *filepointer.Store
	archiver *compress.Archiver
}

// NewViews builds a Views. archiver may be nil if log-pointer expansion
// is not wired for this deployment.
func NewViews(store *txstore.Store, filePtrs *filepointer.Store, archiver *compress.Archiver) *Views {
	return &Views{store: store, filePtrs: filePtrs, archiver: archiver}
}

// Describe resolves id against the transaction store first, then treats
// it as a file-pointer id.
func (v *Views) Describe(id string) DescribeResult {
	if tx, ok, err := v.store.GetByID(id); err == nil && ok {
		return DescribeResult{Found: true, Source: "transaction", Transaction: &tx}
	}

	if v.filePtrs != nil {
		if data, err := v.filePtrs.LoadFromPointer(id); err == nil {
			return DescribeResult{
				Found:  true,
				Source: "file-pointer",
				FileSummary: &filepointer.ExplorationSummary{
					FileID:    id,
					SizeBytes: len(data),
				},
			}
		}
	}

	return DescribeResult{Found: false, Source: "not-found"}
}

// Expand resurfaces a pointer's original content, trying a file-pointer
// id first, then a log-pointer (archived chunk) id.
func (v *Views) Expand(pointerID string) (ExpandResult, error) {
	if v.filePtrs != nil {
		if data, err := v.filePtrs.LoadFromPointer(pointerID); err == nil {
			return ExpandResult{Found: true, Source: "file-pointer", Content: string(data)}, nil
		}
	}

	if v.archiver != nil {
		entries, err := v.archiver.Expand(pointerID)
		if err == nil {
			return ExpandResult{Found: true, Source: "log-pointer", Entries: entries}, nil
		}
	}

	return ExpandResult{}, fmt.Errorf("mcpserver: no pointer found for id %q", pointerID)
}

// Grep searches transaction content for pattern, a plain regular
// expression evaluated over each stored transaction's full text.
func (v *Views) Grep(pattern string, opts GrepOptions) (GrepResult, error) {
	expr := pattern
	if !opts.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return GrepResult{}, fmt.Errorf("mcpserver: invalid pattern: %w", err)
	}

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}

	res, err := v.store.Search(txstore.SearchQuery{Limit: 0})
	if err != nil {
		return GrepResult{}, fmt.Errorf("mcpserver: search: %w", err)
	}

	var matches []GrepMatch
	total := 0
	for _, entry := range res.Entries {
		tx, ok, err := v.store.GetByID(entry.ID)
		if err != nil || !ok {
			continue
		}
		for lineNum, line := range strings.Split(tx.Content, "\n") {
			if !re.MatchString(line) {
				continue
			}
			total++
			if len(matches) >= maxResults {
				continue
			}
			m := GrepMatch{TransactionID: tx.ID, LineNumber: lineNum + 1}
			if opts.IncludeContent {
				m.Content = line
			}
			matches = append(matches, m)
		}
	}

	return GrepResult{
		Matches:    matches,
		TotalFound: total,
		Truncated:  total > len(matches),
	}, nil
}
