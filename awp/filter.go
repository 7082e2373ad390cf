package awp

import (
	"sync"

	"github.com/vibe-flow/cmc/token"
)

// Config enumerates the thresholds that drive AWP's cleaning decisions.
type Config struct {
	MaxTokens                  int
	WarningThreshold           float64
	StaleToolRemovalThreshold  float64
	StaleToolRemovalPercentage float64
	MaxHistory                 int
}

// DefaultConfig matches spec.md's stated AWP defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:                  100000,
		WarningThreshold:           0.8,
		StaleToolRemovalThreshold:  0.6,
		StaleToolRemovalPercentage: 0.5,
		MaxHistory:                 20,
	}
}

// CleaningMode records which cleaning path a Filter call took.
type CleaningMode string

const (
	ModeLight      CleaningMode = "light"
	ModeAggressive CleaningMode = "aggressive"
)

// CleaningResult is a diagnostic record of one Filter invocation.
type CleaningResult struct {
	Mode               CleaningMode
	EstimatedTokens    int
	MessagesBefore     int
	MessagesAfter      int
	ToolResultsRemoved int
}

// Middleware applies light or aggressive cleaning to a Payload based on
// estimated token usage against configured thresholds.
type Middleware struct {
	cfg     Config
	counter token.Counter

	mu      sync.Mutex
	history []CleaningResult
}

// New builds a Middleware. A nil counter defaults to token.SimpleCounter.
func New(cfg Config, counter token.Counter) *Middleware {
	if counter == nil {
		counter = token.NewSimpleCounter()
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 20
	}
	return &Middleware{cfg: cfg, counter: counter}
}

// Filter returns payload with noise cleaned from its message window (the
// caller's message slice is not modified), choosing aggressive cleaning once the estimated token total
// crosses staleToolRemovalThreshold × maxTokens.
func (m *Middleware) Filter(payload Payload) Payload {
	before := len(payload.Messages)
	estimated := m.estimate(payload)

	cleaned := lightClean(payload.Messages)
	mode := ModeLight
	removed := 0

	if float64(estimated) >= m.cfg.StaleToolRemovalThreshold*float64(m.cfg.MaxTokens) {
		mode = ModeAggressive
		cleaned, removed = aggressiveClean(cleaned, m.cfg.StaleToolRemovalPercentage)
	}

	payload.Messages = cleaned
	m.record(CleaningResult{
		Mode:               mode,
		EstimatedTokens:    estimated,
		MessagesBefore:     before,
		MessagesAfter:      len(cleaned),
		ToolResultsRemoved: removed,
	})
	return payload
}

// History returns a snapshot of recorded cleaning results, oldest first.
func (m *Middleware) History() []CleaningResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CleaningResult, len(m.history))
	copy(out, m.history)
	return out
}

// LastResult returns the most recent cleaning result, if any.
func (m *Middleware) LastResult() (CleaningResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return CleaningResult{}, false
	}
	return m.history[len(m.history)-1], true
}

func (m *Middleware) record(r CleaningResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, r)
	if len(m.history) > m.cfg.MaxHistory {
		m.history = m.history[len(m.history)-m.cfg.MaxHistory:]
	}
}

func (m *Middleware) estimate(payload Payload) int {
	contents := make([]string, len(payload.Messages))
	for i, e := range payload.Messages {
		contents[i] = e.Content
	}
	return m.counter.Count(contents...)
}

// lightClean strips thought-kind entries from every turn except the
// most recent one, preserving assistant reasoning only for the active
// turn. Entries marked PriorityCritical are never stripped.
func lightClean(entries []PayloadEntry) []PayloadEntry {
	if len(entries) == 0 {
		return entries
	}
	lastIdx := len(entries) - 1
	out := make([]PayloadEntry, 0, len(entries))
	for i, e := range entries {
		if e.Kind == KindThought && i != lastIdx && e.Priority != PriorityCritical {
			continue
		}
		out = append(out, e)
	}
	return out
}

// aggressiveClean applies lightClean's effect (entries are assumed
// already light-cleaned) plus removal of the oldest pct fraction of
// tool-result entries. Entries marked PriorityCritical are excluded
// from the removal candidate pool entirely.
func aggressiveClean(entries []PayloadEntry, pct float64) ([]PayloadEntry, int) {
	var toolIdx []int
	for i, e := range entries {
		if e.Kind == KindToolResult && e.Priority != PriorityCritical {
			toolIdx = append(toolIdx, i)
		}
	}
	removeCount := int(float64(len(toolIdx)) * pct)
	if removeCount <= 0 {
		return entries, 0
	}

	remove := make(map[int]bool, removeCount)
	for _, idx := range toolIdx[:removeCount] {
		remove[idx] = true
	}

	out := make([]PayloadEntry, 0, len(entries)-removeCount)
	for i, e := range entries {
		if remove[i] {
			continue
		}
		out = append(out, e)
	}
	return out, removeCount
}
