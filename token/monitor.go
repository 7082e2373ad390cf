package token

import (
	"sync"
	"time"
)

// Usage represents token usage for a single request/response cycle.
type Usage struct {
	TurnNumber       int           `json:"turnNumber"`
	PromptTokens     int           `json:"promptTokens"`
	CompletionTokens int           `json:"completionTokens"`
	TotalTokens      int           `json:"totalTokens"`
	Timestamp        time.Time     `json:"timestamp"`
	Duration         time.Duration `json:"duration,omitempty"`
}

const maxUsageHistory = 1000

// Monitor tracks cumulative token usage across a conversation; callers
// report compression savings to it through OnCompression.
type Monitor struct {
	mu                    sync.RWMutex
	maxTokens             int
	totalPromptTokens     int
	totalCompletionTokens int
	totalTokens           int
	turnCount             int
	usageHistory          []Usage
	warningThreshold      float64
	pendingUpdate         bool
}

// NewMonitor creates a monitor bounded by the given context-window size.
func NewMonitor(maxTokens int) *Monitor {
	return &Monitor{
		maxTokens:        maxTokens,
		usageHistory:     make([]Usage, 0),
		warningThreshold: 0.8,
	}
}

// RecordUsage adds a single-turn usage record.
func (m *Monitor) RecordUsage(usage Usage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalPromptTokens += usage.PromptTokens
	m.totalCompletionTokens += usage.CompletionTokens
	m.totalTokens += usage.TotalTokens
	m.turnCount++
	usage.TurnNumber = m.turnCount
	m.usageHistory = append(m.usageHistory, usage)

	if len(m.usageHistory) > maxUsageHistory {
		m.usageHistory = m.usageHistory[len(m.usageHistory)-maxUsageHistory:]
	}
}

// Stats returns a snapshot of cumulative statistics.
func (m *Monitor) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	remaining := m.maxTokens - m.totalTokens
	usagePercent := 0.0
	if m.maxTokens > 0 {
		usagePercent = float64(m.totalTokens) / float64(m.maxTokens) * 100
	}

	stats := map[string]any{
		"maxTokens":             m.maxTokens,
		"totalPromptTokens":     m.totalPromptTokens,
		"totalCompletionTokens": m.totalCompletionTokens,
		"totalTokens":           m.totalTokens,
		"remainingTokens":       remaining,
		"usagePercent":          usagePercent,
		"turnCount":             m.turnCount,
	}

	if m.turnCount > 0 {
		avgTotal := m.totalTokens / m.turnCount
		stats["avgPromptTokens"] = m.totalPromptTokens / m.turnCount
		stats["avgCompletionTokens"] = m.totalCompletionTokens / m.turnCount
		stats["avgTotalTokens"] = avgTotal
		if avgTotal > 0 {
			stats["estimatedRemainingTurns"] = remaining / avgTotal
		}
	}

	return stats
}

// IsWarning reports whether cumulative usage has crossed the warning threshold (80%).
func (m *Monitor) IsWarning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.maxTokens <= 0 {
		return false
	}
	return float64(m.totalTokens)/float64(m.maxTokens) >= m.warningThreshold
}

// IsCritical reports whether cumulative usage has crossed 95%.
func (m *Monitor) IsCritical() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.maxTokens <= 0 {
		return false
	}
	return float64(m.totalTokens)/float64(m.maxTokens) >= 0.95
}

// OnCompression adjusts cumulative counts down to reflect the tokens a
// compression step saved, and sets the pending-update flag.
func (m *Monitor) OnCompression(beforeTokens, afterTokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := beforeTokens - afterTokens
	if saved <= 0 {
		return
	}

	m.totalPromptTokens -= saved
	if m.totalPromptTokens < 0 {
		m.totalPromptTokens = 0
	}
	m.totalTokens -= saved
	if m.totalTokens < 0 {
		m.totalTokens = 0
	}
	m.pendingUpdate = true
}

// DrainPendingUpdate atomically checks and clears the pending-update flag.
func (m *Monitor) DrainPendingUpdate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.pendingUpdate {
		return false
	}
	m.pendingUpdate = false
	return true
}

// Reset clears all tracked data.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalPromptTokens = 0
	m.totalCompletionTokens = 0
	m.totalTokens = 0
	m.turnCount = 0
	m.usageHistory = make([]Usage, 0)
	m.pendingUpdate = false
}
