// Package cmc is the facade wiring the Context Management Core's
// subsystems together: callers append to the transaction store, build
// provider-bound requests through the active window pipeline, and
// dispatch isolated sub-agent work through the task graph and driver
// router, all gated by the permission middleware.
package cmc

import (
	"context"
	"fmt"

	"github.com/vibe-flow/cmc/awp"
	"github.com/vibe-flow/cmc/compress"
	"github.com/vibe-flow/cmc/fileanalyzer"
	"github.com/vibe-flow/cmc/filepointer"
	"github.com/vibe-flow/cmc/layout"
	"github.com/vibe-flow/cmc/mcpserver"
	"github.com/vibe-flow/cmc/permission"
	"github.com/vibe-flow/cmc/ratelimit"
	"github.com/vibe-flow/cmc/router"
	"github.com/vibe-flow/cmc/taskgraph"
	"github.com/vibe-flow/cmc/token"
	"github.com/vibe-flow/cmc/txstore"
	"github.com/vibe-flow/cmc/wal"
	"github.com/vibe-flow/cmc/workerpool"
)

// Config bundles the construction-time settings for every subsystem.
type Config struct {
	ProjectRoot   string
	StorageDir    string
	TokenCounter  token.Counter
	AWP           awp.Config
	Archive       compress.Config
	Circuit       router.CircuitConfig
	Backoff       ratelimit.BackoffConfig
	MaxRetries    int
	WorkerPool    workerpool.Config
	Permission    permission.Policy
	ApprovalCache *permission.ApprovalCache
	AskResponder  permission.AskResponder
	Caller        string
}

// Core wires every CMC component into a single entry point. Each field
// is also independently constructible and testable; Core exists for
// collaborators that want one object implementing the full data flow
// in spec.md §2.
type Core struct {
	Layout         *layout.Layout
	Store          *txstore.Store
	WAL            *wal.WAL
	AWP            *awp.Middleware
	SignatureCache *fileanalyzer.Cache
	FilePtrs       *filepointer.Store
	Archiver       *compress.Archiver
	TaskGraph      *taskgraph.Graph
	Pool           *workerpool.Pool
	Retry          *ratelimit.Handler
	Router         *router.Router
	Permission     *permission.Middleware
	MCP            *mcpserver.Server
}

// New wires a Core from cfg. primary/fallback are the driver functions
// the router dispatches sub-agent work through.
func New(cfg Config, primary, fallback router.Driver) (*Core, error) {
	counter := cfg.TokenCounter
	if counter == nil {
		counter = token.NewSimpleCounter()
	}

	l := layout.New(cfg.ProjectRoot, cfg.StorageDir)

	store, err := txstore.Open(l.TransactionLog(), l.TransactionIndex(), counter)
	if err != nil {
		return nil, fmt.Errorf("cmc: open transaction store: %w", err)
	}

	w, err := wal.New(l.WALDir())
	if err != nil {
		return nil, fmt.Errorf("cmc: open wal: %w", err)
	}

	sigCache, err := fileanalyzer.NewCache(l.SignatureCache())
	if err != nil {
		return nil, fmt.Errorf("cmc: open signature cache: %w", err)
	}

	filePtrs := filepointer.NewStore(l, filepointer.DefaultSoftLimitTokens, counter, sigCache)
	archiver := compress.NewArchiver(l, counter, cfg.Archive, nil)
	graph := taskgraph.New()
	pool := workerpool.New(cfg.WorkerPool)
	retry := ratelimit.NewHandler(cfg.Backoff, cfg.MaxRetries)
	rt := router.New(primary, fallback, cfg.Circuit)
	permMw := permission.New(cfg.Permission, cfg.ApprovalCache, cfg.AskResponder, cfg.Caller)
	views := mcpserver.NewViews(store, filePtrs, archiver)
	mcp := mcpserver.New(views)

	return &Core{
		Layout:         l,
		Store:          store,
		WAL:            w,
		AWP:            awp.New(cfg.AWP, counter),
		SignatureCache: sigCache,
		FilePtrs:       filePtrs,
		Archiver:       archiver,
		TaskGraph:      graph,
		Pool:           pool,
		Retry:          retry,
		Router:         rt,
		Permission:     permMw,
		MCP:            mcp,
	}, nil
}

// Record appends a transaction to the immutable store, the first step
// of spec.md §2's data flow.
func (c *Core) Record(ctx context.Context, variant txstore.Variant, content string, metadata map[string]any) (txstore.AppendResult, error) {
	return c.Store.Append(ctx, variant, content, metadata)
}

// BuildRequest runs the active window pipeline over payload and
// substitutes oversize entries through the file-pointer injector. It does
// not archive history through the Archiver, however large the cleaned
// payload still is.
func (c *Core) BuildRequest(payload awp.Payload) (awp.Payload, error) {
	cleaned := c.AWP.Filter(payload)

	for i, entry := range cleaned.Messages {
		inject, err := c.FilePtrs.Inject(fmt.Sprintf("entry-%d", i), entry.Content)
		if err != nil {
			return awp.Payload{}, fmt.Errorf("cmc: inject file pointer: %w", err)
		}
		if inject.WasConverted {
			summary := inject.Payload.(filepointer.ExplorationSummary)
			cleaned.Messages[i] = awp.PayloadEntry{
				Kind:    awp.KindPointer,
				Content: fmt.Sprintf("file-pointer:%s", summary.FileID),
				Metadata: map[string]any{
					"fileId":     summary.FileID,
					"sizeBytes":  summary.SizeBytes,
					"tokenCount": summary.TokenCount,
				},
			}
		}
	}

	return cleaned, nil
}

// Checkpoint persists a WAL frame capturing the current orchestration
// state, run in parallel with request building per spec.md §2.
func (c *Core) Checkpoint(state map[string]any) (string, error) {
	return c.WAL.Append(state)
}

// DispatchSubAgent creates an isolated context snapshot for node and
// runs it through the permission-gated driver router.
func (c *Core) DispatchSubAgent(ctx context.Context, node *taskgraph.Node, depResults []taskgraph.DependencyResult, opts taskgraph.CreateContextOptions) (router.Outcome, error) {
	snapshot := taskgraph.CreateContext(node, depResults, opts)

	decision := c.Permission.Check(ctx, node.Command, snapshot)
	if !decision.Allowed {
		return router.Outcome{Success: false, Err: fmt.Errorf("cmc: permission denied: %s", decision.Message)}, nil
	}

	return c.Router.ExecuteTask(ctx, snapshot), nil
}
