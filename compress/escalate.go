package compress

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vibe-flow/cmc/logger"
	"github.com/vibe-flow/cmc/token"
)

// MinReductionRatio is the acceptance bar for a summarization result:
// a level is accepted only when it shrinks the original content by at
// least this fraction in characters (isResultSmaller).
const MinReductionRatio = 0.10

// llmCallTimeout bounds L1/L2 calls per the escalation ladder's default.
const llmCallTimeout = 30 * time.Second

// Level identifies a stage in the reduction ladder.
type Level int

const (
	LevelNone Level = iota
	LevelPreserveDetails
	LevelBulletPoints
	LevelTruncated
)

// LLMCaller performs the actual summarization call for L1/L2. CMC
// defines this interface itself and never depends on a concrete model
// client (see Non-goals).
type LLMCaller interface {
	Summarize(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Callbacks receives level-transition notifications, useful for
// diagnostics and tests; all fields optional.
type Callbacks struct {
	OnLevelAttempt func(level Level)
	OnLevelResult  func(level Level, accepted bool)
}

// Options configures an EscalatedSummarize call.
type Options struct {
	LLMCaller LLMCaller
	Callbacks Callbacks
}

// SummarizeResult reports the outcome of the escalation ladder.
type SummarizeResult struct {
	Success            bool
	Content            string
	TokenCount         int
	AchievedLevel      Level
	LevelsAttempted    []Level
	OriginalTokenCount int
	ReductionRatio     float64
	Strategy           string
}

// EscalatedSummarize reduces messages toward target tokens, trying
// L1 (preserve details) then L2 (bullet points) via the caller-supplied
// LLMCaller, falling back to L3 deterministic truncation which always
// succeeds. An L1/L2 result is accepted when isResultSmaller holds; its
// token count is not checked against target. Level 0 is returned
// untouched when no reduction is needed.
func EscalatedSummarize(ctx context.Context, messages []Message, target int, opts Options) SummarizeResult {
	counter := token.NewSimpleCounter()
	original := joinMessages(messages)
	originalTokens := counter.Count(original)

	if originalTokens <= target {
		return SummarizeResult{
			Success:            true,
			Content:            original,
			TokenCount:         originalTokens,
			AchievedLevel:      LevelNone,
			OriginalTokenCount: originalTokens,
			ReductionRatio:     0,
			Strategy:           "none",
		}
	}

	var attempted []Level

	if opts.LLMCaller != nil {
		for _, stage := range []struct {
			level    Level
			ratio    float64
			strategy string
			prompt   func(string, int) string
		}{
			{LevelPreserveDetails, 1.0, "l1-preserve-details", buildPreserveDetailsPrompt},
			{LevelBulletPoints, 0.5, "l2-bullet-points", buildBulletPointsPrompt},
		} {
			attempted = append(attempted, stage.level)
			notify(opts.Callbacks.OnLevelAttempt, stage.level)

			levelTarget := int(float64(target) * stage.ratio)
			callCtx, cancel := context.WithTimeout(ctx, llmCallTimeout)
			content, err := opts.LLMCaller.Summarize(callCtx, stage.prompt(original, levelTarget), levelTarget)
			cancel()

			if err != nil {
				logger.L().Warn("compress: escalation level failed", "level", stage.level, "error", err)
				notifyResult(opts.Callbacks.OnLevelResult, stage.level, false)
				continue
			}
			if !isResultSmaller(original, content) {
				notifyResult(opts.Callbacks.OnLevelResult, stage.level, false)
				continue
			}

			notifyResult(opts.Callbacks.OnLevelResult, stage.level, true)
			tokens := counter.Count(content)
			return SummarizeResult{
				Success:            true,
				Content:            content,
				TokenCount:         tokens,
				AchievedLevel:      stage.level,
				LevelsAttempted:    attempted,
				OriginalTokenCount: originalTokens,
				ReductionRatio:     reductionRatio(len(original), len(content)),
				Strategy:           stage.strategy,
			}
		}
	}

	attempted = append(attempted, LevelTruncated)
	notify(opts.Callbacks.OnLevelAttempt, LevelTruncated)
	content := truncateDeterministic(messages, int(float64(target)*0.25))
	notifyResult(opts.Callbacks.OnLevelResult, LevelTruncated, true)

	tokens := counter.Count(content)
	return SummarizeResult{
		Success:            true,
		Content:            content,
		TokenCount:         tokens,
		AchievedLevel:      LevelTruncated,
		LevelsAttempted:    attempted,
		OriginalTokenCount: originalTokens,
		ReductionRatio:     reductionRatio(len(original), len(content)),
		Strategy:           "l3-deterministic-truncation",
	}
}

// isResultSmaller accepts a candidate only when it is at least
// MinReductionRatio shorter than the original, measured in characters.
func isResultSmaller(original, candidate string) bool {
	if len(original) == 0 {
		return false
	}
	return float64(len(candidate)) <= float64(len(original))*(1-MinReductionRatio)
}

func buildPreserveDetailsPrompt(conversation string, targetTokens int) string {
	return fmt.Sprintf(
		"Summarize the following conversation history, preserving all key facts, decisions, and file paths. Target length: roughly %d tokens.\n\n%s",
		targetTokens, conversation,
	)
}

func buildBulletPointsPrompt(conversation string, targetTokens int) string {
	return fmt.Sprintf(
		"Aggressively condense the following conversation into short bullet points, dropping all but the essential decisions and outcomes. Target length: roughly %d tokens.\n\n%s",
		targetTokens, conversation,
	)
}

// truncateDeterministic is the guaranteed-terminating L3 strategy: a
// header, a per-message character budget split evenly across entries,
// and a trailing count of anything dropped entirely.
func truncateDeterministic(messages []Message, targetTokens int) string {
	if targetTokens < 1 {
		targetTokens = 1
	}
	budgetChars := targetTokens * int(token.CharsPerToken)

	var b strings.Builder
	b.WriteString("# Context Summary (Truncated)\n\n")
	fmt.Fprintf(&b, "Original message count: %d\n\n", len(messages))

	if len(messages) == 0 {
		return b.String()
	}

	perMessage := budgetChars / len(messages)
	if perMessage < 20 {
		perMessage = 20
	}

	included := 0
	for _, m := range messages {
		entry := fmt.Sprintf("[%s] %s\n", m.Role, truncate(m.Content, perMessage))
		if b.Len()+len(entry) > budgetChars && included > 0 {
			break
		}
		b.WriteString(entry)
		included++
	}

	if remaining := len(messages) - included; remaining > 0 {
		fmt.Fprintf(&b, "\n... %d more truncated\n", remaining)
	}

	return b.String()
}

func reductionRatio(originalLen, newLen int) float64 {
	if originalLen == 0 {
		return 0
	}
	return 1 - float64(newLen)/float64(originalLen)
}

func joinMessages(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s]: %s\n", m.Role, m.Content)
	}
	return b.String()
}

func notify(fn func(Level), level Level) {
	if fn != nil {
		fn(level)
	}
}

func notifyResult(fn func(Level, bool), level Level, accepted bool) {
	if fn != nil {
		fn(level, accepted)
	}
}
