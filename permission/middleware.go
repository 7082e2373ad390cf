package permission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vibe-flow/cmc/telemetry"
)

// AskPrompt is what the middleware emits to the operator when a rule's
// action is "ask".
type AskPrompt struct {
	Tool      string
	Args      any
	Timestamp time.Time
	Caller    string
}

// AskResponder collects the operator's response to an AskPrompt.
type AskResponder func(ctx context.Context, prompt AskPrompt) string

// Decision is the typed, non-throwing gate result.
type Decision struct {
	Allowed bool
	Message string
}

// ExecResult is the outcome of Execute.
type ExecResult struct {
	Success     bool
	Result      any
	Err         error
	ExecutionID string
	Duration    time.Duration
}

// Middleware gates tool calls against a Policy, prompting via AskResponder
// for "ask" rules and caching "always" approvals.
type Middleware struct {
	policy   Policy
	cache    *ApprovalCache
	responder AskResponder
	caller   string
}

// New builds a gating Middleware.
func New(policy Policy, cache *ApprovalCache, responder AskResponder, caller string) *Middleware {
	return &Middleware{policy: policy, cache: cache, responder: responder, caller: caller}
}

// Check resolves whether tool(args) may run, without executing it.
func (m *Middleware) Check(ctx context.Context, tool string, args any) Decision {
	action := m.policy.Resolve(tool)

	switch action {
	case ActionAllow:
		return Decision{Allowed: true}
	case ActionDeny:
		return Decision{Allowed: false, Message: fmt.Sprintf("tool %q denied by policy", tool)}
	case ActionAsk:
		return m.ask(ctx, tool, args)
	default:
		return Decision{Allowed: false, Message: fmt.Sprintf("tool %q: unknown policy action %q", tool, action)}
	}
}

func (m *Middleware) ask(ctx context.Context, tool string, args any) Decision {
	key, err := Key(tool, args)
	if err == nil && m.cache != nil && m.cache.Check(key) {
		return Decision{Allowed: true}
	}

	if m.responder == nil {
		return Decision{Allowed: false, Message: fmt.Sprintf("tool %q requires approval but no responder is configured", tool)}
	}

	resp := strings.ToLower(strings.TrimSpace(m.responder(ctx, AskPrompt{
		Tool:      tool,
		Args:      args,
		Timestamp: time.Now(),
		Caller:    m.caller,
	})))

	switch resp {
	case "y", "yes":
		return Decision{Allowed: true}
	case "a", "always":
		if err == nil && m.cache != nil {
			m.cache.Grant(key)
		}
		return Decision{Allowed: true}
	default:
		return Decision{Allowed: false, Message: fmt.Sprintf("tool %q denied by operator", tool)}
	}
}

// Executor is the wrapped tool invocation.
type Executor func(ctx context.Context) (any, error)

// Execute gates tool(args), then runs executor only if allowed.
func (m *Middleware) Execute(ctx context.Context, tool string, args any, executor Executor) ExecResult {
	ctx, span := telemetry.StartSpan(ctx, "permission.execute", telemetry.WithAttributes(map[string]any{"tool": tool}))
	defer span.End()

	executionID := uuid.NewString()
	decision := m.Check(ctx, tool, args)
	if !decision.Allowed {
		return ExecResult{Success: false, ExecutionID: executionID, Err: fmt.Errorf("%s", decision.Message)}
	}

	start := time.Now()
	result, err := executor(ctx)
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		return ExecResult{Success: false, Err: err, ExecutionID: executionID, Duration: duration}
	}
	return ExecResult{Success: true, Result: result, ExecutionID: executionID, Duration: duration}
}
