// Package ratelimit implements provider-aware rate-limit detection and
// retry-with-backoff, classifying errors from response bodies and
// headers rather than vendor SDK types.
package ratelimit

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies a detected failure.
type ErrorKind string

const (
	KindRateLimit    ErrorKind = "rate_limit"
	KindTokenLimit   ErrorKind = "token_limit"
	KindContextLimit ErrorKind = "context_window_limit"
	KindOther        ErrorKind = "other"
)

// Provider identifies which error-shape family matched.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGeneric   Provider = "generic_http"
	ProviderUnknown   Provider = "unknown"
)

// Detection is the result of classifying an error.
type Detection struct {
	IsRateLimit  bool
	RetryAfterMS int64
	Provider     Provider
	Type         ErrorKind
}

// ErrorInput carries everything Detect needs: the raw message/body text
// plus any HTTP headers observed alongside it.
type ErrorInput struct {
	Message string
	Headers map[string]string
}

var (
	httpStatusPattern = regexp.MustCompile(`\b429\b`)
	openAIPattern     = regexp.MustCompile(`"type"\s*:\s*"rate_limit_exceeded"`)
	anthropicPattern  = regexp.MustCompile(`"type"\s*:\s*"rate_limit_error"`)
	tokenLimitPattern = regexp.MustCompile(`(?i)token limit|max_tokens exceeded|too many tokens`)
	contextPattern    = regexp.MustCompile(`(?i)context window|context length exceeded|maximum context`)
	retryAfterHeader  = []string{"retry-after", "Retry-After"}
	rateLimitResetHdr = []string{"x-ratelimit-reset", "X-RateLimit-Reset"}
)

// Detect classifies an error by pattern matching over its message/body
// and any HTTP headers present.
func Detect(in ErrorInput) Detection {
	switch {
	case openAIPattern.MatchString(in.Message):
		return Detection{IsRateLimit: true, Provider: ProviderOpenAI, Type: KindRateLimit, RetryAfterMS: retryAfterMS(in.Headers)}
	case anthropicPattern.MatchString(in.Message):
		return Detection{IsRateLimit: true, Provider: ProviderAnthropic, Type: KindRateLimit, RetryAfterMS: retryAfterMS(in.Headers)}
	case tokenLimitPattern.MatchString(in.Message):
		return Detection{IsRateLimit: false, Provider: ProviderUnknown, Type: KindTokenLimit}
	case contextPattern.MatchString(in.Message):
		return Detection{IsRateLimit: false, Provider: ProviderUnknown, Type: KindContextLimit}
	case httpStatusPattern.MatchString(in.Message):
		return Detection{IsRateLimit: true, Provider: ProviderGeneric, Type: KindRateLimit, RetryAfterMS: retryAfterMS(in.Headers)}
	default:
		return Detection{IsRateLimit: false, Provider: ProviderUnknown, Type: KindOther}
	}
}

// retryAfterMS parses retry-after (seconds or HTTP-date) or
// x-ratelimit-reset (unix seconds or milliseconds) into a millisecond delay.
func retryAfterMS(headers map[string]string) int64 {
	if headers == nil {
		return 0
	}
	if v, ok := lookupHeader(headers, retryAfterHeader); ok {
		if secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return int64(secs * 1000)
		}
		if t, err := time.Parse(time.RFC1123, v); err == nil {
			delay := time.Until(t)
			if delay > 0 {
				return delay.Milliseconds()
			}
			return 0
		}
	}
	if v, ok := lookupHeader(headers, rateLimitResetHdr); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return resetToDelayMS(n)
		}
	}
	return 0
}

func resetToDelayMS(n int64) int64 {
	now := time.Now()
	var resetAt time.Time
	if n > 1_000_000_000_000 { // looks like milliseconds since epoch
		resetAt = time.UnixMilli(n)
	} else {
		resetAt = time.Unix(n, 0)
	}
	delay := resetAt.Sub(now)
	if delay < 0 {
		return 0
	}
	return delay.Milliseconds()
}

func lookupHeader(headers map[string]string, candidates []string) (string, bool) {
	for _, c := range candidates {
		if v, ok := headers[c]; ok {
			return v, true
		}
	}
	return "", false
}
