package taskgraph

import (
	"fmt"
	"strings"

	"github.com/vibe-flow/cmc/token"
)

// IsolationLevel is advisory guidance for downstream consumers about how
// strictly a task's context should be kept separate from its siblings.
type IsolationLevel string

const (
	IsolationStrict   IsolationLevel = "strict"
	IsolationModerate IsolationLevel = "moderate"
	IsolationLoose    IsolationLevel = "loose"
)

// intrinsicOverheadTokens approximates the fixed cost of framing a task
// invocation (role markers, field labels) before counting its content.
const intrinsicOverheadTokens = 1000

// Snapshot is a read-only, per-task isolated context. Once created it is
// never mutated; a new task dispatch gets a new Snapshot.
type Snapshot struct {
	ContextID      string
	TaskID         string
	BaseTokens     int
	MaxTokens      int
	Truncated      bool
	DependencyIDs  []string
	Summary        string // set iff Truncated
	IsolationLevel IsolationLevel
}

// DependencyResult is a prior task's outcome, made available to a
// dependent task's isolated snapshot.
type DependencyResult struct {
	TaskID  string
	Success bool
	Output  string
}

// CreateContextOptions configures CreateContext.
type CreateContextOptions struct {
	MaxTokens       int
	IncludeErrors   bool // include failed dependency results, not just successful ones
	HistoryWindow   []string
	ContextIDPrefix string
}

// CreateContext estimates base tokens from the task's command/env/cwd plus
// an intrinsic overhead, and assembles a read-only snapshot. When base plus
// included dependency tokens exceed MaxTokens, the snapshot is marked
// Truncated and its Summary reports the overage; no content is cut.
func CreateContext(node *Node, depResults []DependencyResult, opts CreateContextOptions) Snapshot {
	counter := token.NewSimpleCounter()

	var b strings.Builder
	b.WriteString(node.Command)
	b.WriteString(node.WorkingDir)
	for k, v := range node.Env {
		b.WriteString(k)
		b.WriteString(v)
	}

	baseTokens := counter.Count(b.String()) + intrinsicOverheadTokens

	var included []DependencyResult
	for _, dr := range depResults {
		if dr.Success || opts.IncludeErrors {
			included = append(included, dr)
		}
	}

	var depTokens int
	for _, dr := range included {
		depTokens += counter.Count(dr.Output)
	}

	truncated := false
	summary := ""
	totalTokens := baseTokens + depTokens
	if opts.MaxTokens > 0 && totalTokens > opts.MaxTokens {
		truncated = true
		summary = fmt.Sprintf("context truncated: %d dependency result(s), %d tokens over budget",
			len(included), totalTokens-opts.MaxTokens)
	}

	level := isolationLevel(node, depResultFanIn(depResults))

	depIDs := make([]string, 0, len(included))
	for _, dr := range included {
		depIDs = append(depIDs, dr.TaskID)
	}

	return Snapshot{
		ContextID:      opts.ContextIDPrefix + node.ID,
		TaskID:         node.ID,
		BaseTokens:     baseTokens,
		MaxTokens:      opts.MaxTokens,
		Truncated:      truncated,
		DependencyIDs:  depIDs,
		Summary:        summary,
		IsolationLevel: level,
	}
}

func depResultFanIn(depResults []DependencyResult) int {
	return len(depResults)
}

// isolationLevel derives advisory isolation strictness: high-priority
// tasks get strict isolation, tasks with many inbound dependencies get
// loose isolation (their context is already heavily shared), else moderate.
func isolationLevel(node *Node, fanIn int) IsolationLevel {
	switch {
	case node.Priority >= 10:
		return IsolationStrict
	case fanIn > 3:
		return IsolationLoose
	default:
		return IsolationModerate
	}
}
