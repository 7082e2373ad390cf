package router

import (
	"context"
	"regexp"

	"github.com/vibe-flow/cmc/logger"
	"github.com/vibe-flow/cmc/telemetry"
)

// Driver executes a task against one backend (primary or fallback).
type Driver func(ctx context.Context, task any) (any, error)

// Outcome is the typed, non-throwing result of ExecuteTask.
type Outcome struct {
	Success    bool
	Result     any
	Err        error
	DriverUsed string
}

// fallbackClassPattern matches the rate-limit-shaped error substrings
// that should trigger a silent fallback rather than propagating.
var fallbackClassPattern = regexp.MustCompile(`(?i)429|rate[_ -]?limit|too many requests`)

// Router routes a task to a primary driver, falling back to a secondary
// on rate-limit-class failures or when the circuit is open.
type Router struct {
	primary  Driver
	fallback Driver
	circuit  *Circuit
}

// New builds a Router with its own circuit breaker.
func New(primary, fallback Driver, cfg CircuitConfig) *Router {
	return &Router{primary: primary, fallback: fallback, circuit: NewCircuit(cfg)}
}

// ExecuteTask routes task per spec.md §4.9's algorithm: while closed,
// call primary and classify failures; fallback-class failures go
// silently to the fallback driver without incrementing the failure
// counter; other failures count toward the breaker. While open, every
// call goes directly to fallback. The fallback path is never retried here.
func (r *Router) ExecuteTask(ctx context.Context, task any) Outcome {
	ctx, span := telemetry.StartSpan(ctx, "router.execute_task")
	defer span.End()

	if !r.circuit.Allow() {
		result, err := r.fallback(ctx, task)
		return r.outcomeFrom(result, err, "fallback")
	}

	result, err := r.primary(ctx, task)
	if err == nil {
		r.circuit.RecordSuccess()
		return Outcome{Success: true, Result: result, DriverUsed: "primary"}
	}

	if fallbackClassPattern.MatchString(err.Error()) {
		logger.L().Debug("router: primary failed with fallback-class error, routing to fallback", "error", err)
		fbResult, fbErr := r.fallback(ctx, task)
		return r.outcomeFrom(fbResult, fbErr, "fallback")
	}

	r.circuit.RecordFailure()
	span.RecordError(err)
	return Outcome{Success: false, Err: err, DriverUsed: "primary"}
}

func (r *Router) outcomeFrom(result any, err error, driver string) Outcome {
	if err != nil {
		return Outcome{Success: false, Err: err, DriverUsed: driver}
	}
	return Outcome{Success: true, Result: result, DriverUsed: driver}
}

// Circuit exposes the router's breaker for diagnostics.
func (r *Router) Circuit() *Circuit { return r.circuit }
