// Package resolver drives recursive query resolution: each query is either
// answered directly through the model router or split into ordered
// sub-queries that are resolved concurrently and merged back in original
// order.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rand/fathom/internal/budget"
	"github.com/rand/fathom/internal/decompose"
	"github.com/rand/fathom/internal/memory"
	"github.com/rand/fathom/internal/router"
	"github.com/rand/fathom/internal/telemetry"
	"github.com/rand/fathom/internal/trace"
)

// Tracer receives resolution events. *trace.Store satisfies it; a nil
// tracer disables persistence.
type Tracer interface {
	Record(ctx context.Context, ev trace.Event) error
}

// Options controls one resolution session.
type Options struct {
	// MaxDepth caps recursion depth. Nodes at MaxDepth are always
	// answered directly. Zero keeps the default of 2; negative disables
	// decomposition entirely.
	MaxDepth int

	// BudgetTokens is the session token ceiling. Negative means
	// unlimited. Zero is a real ceiling of zero: no fan-out is ever
	// permitted and every node is answered in direct mode.
	BudgetTokens int64

	// MaxParallel bounds in-flight sub-resolutions across the whole
	// tree. Default 4.
	MaxParallel int

	// ComplexityThreshold gates splitting; queries scoring below it are
	// answered directly. Default decompose.DefaultThreshold.
	ComplexityThreshold int

	// Model optionally pins a concrete model; Tier is used otherwise.
	Model string
	Tier  router.Tier

	// Temperature and Effort are mutually exclusive.
	Temperature *float64
	Effort      router.Effort

	// Scope selects the retrieval corpus passed to the memory store.
	Scope string

	// MaxTokensPerCall caps each model response. Default 1024.
	MaxTokensPerCall int

	// SessionID labels the session; generated when empty.
	SessionID string
}

func (o Options) withDefaults() Options {
	if o.MaxDepth == 0 {
		o.MaxDepth = 2
	}
	if o.MaxParallel <= 0 {
		o.MaxParallel = 4
	}
	if o.ComplexityThreshold <= 0 {
		o.ComplexityThreshold = decompose.DefaultThreshold
	}
	if o.MaxTokensPerCall <= 0 {
		o.MaxTokensPerCall = 1024
	}
	if o.SessionID == "" {
		o.SessionID = uuid.NewString()
	}
	return o
}

func (o Options) validate() error {
	if o.Temperature != nil && o.Effort != router.EffortNone {
		return router.ErrConfigConflict
	}
	if o.Effort != router.EffortNone && !router.ValidEffort(string(o.Effort)) {
		return fmt.Errorf("unknown effort %q", o.Effort)
	}
	return nil
}

// Result is the outcome of one resolution session.
type Result struct {
	SessionID string                   `json:"session_id"`
	Answer    string                   `json:"answer"`
	RootID    string                   `json:"root_id"`
	Nodes     []Node                   `json:"nodes"`
	Budget    budget.State             `json:"budget"`
	Metrics   telemetry.SessionMetrics `json:"metrics"`
}

// Resolver composes the router, the memory store and the telemetry
// aggregator into the recursive decomposition loop.
type Resolver struct {
	router *router.Router
	memory *memory.Store
	telem  *telemetry.Aggregator
	tracer Tracer
}

// New builds a resolver. Memory, telemetry and tracer may be nil;
// router must not be.
func New(rt *router.Router, mem *memory.Store, telem *telemetry.Aggregator, tracer Tracer) *Resolver {
	return &Resolver{router: rt, memory: mem, telem: telem, tracer: tracer}
}

// session is the per-resolution shared state.
type session struct {
	opts    Options
	tracker *budget.Tracker
	tree    *tree

	// sem bounds concurrent model calls across the whole tree, not per
	// fan-out level.
	sem chan struct{}
}

// Resolve answers query, recursively decomposing it when it is complex
// enough and budget and depth allow. Cancellation stops new dispatches;
// in-flight calls run to completion but their results are discarded from
// the merge. Telemetry recorded before cancellation is retained.
func (r *Resolver) Resolve(ctx context.Context, query string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("empty query")
	}

	s := &session{
		opts:    opts,
		tracker: budget.NewTracker(budget.Limits{MaxTotalTokens: opts.BudgetTokens, MaxCalls: -1}),
		tree:    newTree(),
		sem:     make(chan struct{}, opts.MaxParallel),
	}

	rootID := s.tree.add("", query, 0)
	slog.Info("resolution started",
		"session", opts.SessionID, "depth_limit", opts.MaxDepth, "budget", opts.BudgetTokens)

	resolveErr := r.resolveNode(ctx, s, rootID)

	root := s.tree.get(rootID)
	result := &Result{
		SessionID: opts.SessionID,
		Answer:    root.Answer,
		RootID:    rootID,
		Nodes:     s.tree.snapshot(),
		Budget:    s.tracker.State(),
	}
	if r.telem != nil {
		result.Metrics = r.telem.Snapshot()
	}

	if resolveErr != nil {
		return result, resolveErr
	}
	if root.Status == StatusFailed {
		return result, fmt.Errorf("query failed: %s", root.FailReason)
	}
	return result, nil
}

func (r *Resolver) resolveNode(ctx context.Context, s *session, id string) error {
	node := s.tree.get(id)

	if err := ctx.Err(); err != nil {
		s.tree.markFailed(id, "cancelled")
		r.record(ctx, s, trace.Event{
			NodeID: id, ParentID: node.Parent, Depth: node.Depth,
			Kind: trace.KindCancelled,
		})
		return err
	}

	parts := r.planSplit(s, node)
	if len(parts) < 2 {
		return r.answerDirect(ctx, s, id)
	}

	start := time.Now()
	childIDs := make([]string, len(parts))
	for i, part := range parts {
		childIDs[i] = s.tree.add(id, part, node.Depth+1)
	}
	if err := s.tree.markDecomposed(id, childIDs); err != nil {
		return err
	}
	if r.telem != nil {
		r.telem.RecordStage("decompose", time.Since(start))
	}
	r.record(ctx, s, trace.Event{
		NodeID: id, ParentID: node.Parent, Depth: node.Depth,
		Kind:   trace.KindDecomposed,
		Detail: fmt.Sprintf("%d sub-queries", len(parts)),
	})
	slog.Debug("query decomposed",
		"session", s.opts.SessionID, "node", id, "parts", len(parts), "depth", node.Depth)

	// Fan out. Child failures never cancel siblings; the merge prefers
	// whatever partial answers arrive, so goroutines report through the
	// tree rather than the group error.
	var g errgroup.Group
	for _, cid := range childIDs {
		if ctx.Err() != nil {
			s.tree.markFailed(cid, "cancelled")
			continue
		}
		cid := cid
		g.Go(func() error {
			_ = r.resolveNode(ctx, s, cid)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		s.tree.markFailed(id, "cancelled")
		r.record(ctx, s, trace.Event{
			NodeID: id, ParentID: node.Parent, Depth: node.Depth,
			Kind: trace.KindCancelled,
		})
		return err
	}

	return r.merge(ctx, s, id, childIDs)
}

// planSplit returns the ordered sub-queries for node, or nil when the
// node must be answered directly.
func (r *Resolver) planSplit(s *session, node Node) []string {
	if node.Depth >= s.opts.MaxDepth {
		return nil
	}
	if decompose.EstimateComplexity(node.Text) < s.opts.ComplexityThreshold {
		return nil
	}
	parts := decompose.Split(node.Text)
	if len(parts) < 2 {
		return nil
	}
	// Two sub-calls is the floor for a useful split; wider fan-outs may
	// overspend the soft ceiling rather than degrade to direct mode.
	if !s.tracker.PermitsSubCalls(2) {
		slog.Debug("budget forces direct mode",
			"session", s.opts.SessionID, "node", node.ID, "remaining", s.tracker.Remaining())
		return nil
	}
	return parts
}

func (r *Resolver) answerDirect(ctx context.Context, s *session, id string) error {
	node := s.tree.get(id)

	// The semaphore bounds concurrent model calls, not subtree
	// traversal; holding it across recursion would starve descendants.
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		s.tree.markFailed(id, "cancelled")
		return ctx.Err()
	}

	retrieved := r.retrieve(ctx, s, node)

	// In-flight calls run to completion on cancellation; the post-call
	// ctx check decides whether the answer is kept.
	callCtx := context.WithoutCancel(ctx)
	start := time.Now()
	resp, err := r.router.Call(callCtx, router.Request{
		Model:       s.opts.Model,
		Tier:        s.opts.Tier,
		Prompt:      node.Text,
		Context:     retrieved,
		MaxTokens:   s.opts.MaxTokensPerCall,
		Temperature: s.opts.Temperature,
		Effort:      s.opts.Effort,
	})
	if r.telem != nil {
		r.telem.RecordStage("call", time.Since(start))
	}
	if err != nil {
		reason := err.Error()
		s.tree.markFailed(id, reason)
		r.record(ctx, s, trace.Event{
			NodeID: id, ParentID: node.Parent, Depth: node.Depth,
			Kind: trace.KindFailed, Detail: reason,
		})
		slog.Warn("sub-query failed",
			"session", s.opts.SessionID, "node", id, "error", err)
		return nil
	}

	s.tracker.Spend(resp.Record.InputTokens + resp.Record.OutputTokens)

	if ctxErr := ctx.Err(); ctxErr != nil {
		s.tree.markFailed(id, "cancelled")
		r.record(ctx, s, trace.Event{
			NodeID: id, ParentID: node.Parent, Depth: node.Depth,
			Kind: trace.KindCancelled,
		})
		return ctxErr
	}

	if resp.Record.TierShift {
		r.record(ctx, s, trace.Event{
			NodeID: id, ParentID: node.Parent, Depth: node.Depth,
			Kind: trace.KindTierShift,
			Detail: fmt.Sprintf("%s -> %s",
				router.Tier(resp.Record.RequestedTier), router.Tier(resp.Record.ServedTier)),
		})
	}

	if err := s.tree.markAnswered(id, resp.Text); err != nil {
		return err
	}
	r.record(ctx, s, trace.Event{
		NodeID: id, ParentID: node.Parent, Depth: node.Depth,
		Kind:     trace.KindAnswered,
		Tokens:   resp.Record.InputTokens + resp.Record.OutputTokens,
		Duration: resp.Record.Latency,
	})
	return nil
}

// retrieve consults the memory store for node-relevant context. Retrieval
// failures degrade to an empty context rather than failing the node.
func (r *Resolver) retrieve(ctx context.Context, s *session, node Node) string {
	if r.memory == nil {
		return ""
	}
	start := time.Now()
	retrieved, err := r.memory.Retrieve(ctx, node.Text, s.opts.Scope)
	if r.telem != nil {
		r.telem.RecordStage("retrieve", time.Since(start))
	}
	if err != nil {
		slog.Warn("retrieval failed, continuing without context",
			"session", s.opts.SessionID, "node", node.ID, "error", err)
		return ""
	}
	return retrieved
}

// merge combines terminal children back into the parent answer, in the
// original sub-query order. Failed children contribute a placeholder;
// the parent fails only when every child failed.
func (r *Resolver) merge(ctx context.Context, s *session, id string, childIDs []string) error {
	node := s.tree.get(id)
	start := time.Now()

	answered := 0
	var b strings.Builder
	for i, cid := range childIDs {
		child := s.tree.get(cid)
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "### %s\n\n", child.Text)
		if child.Status == StatusAnswered {
			b.WriteString(child.Answer)
			answered++
		} else {
			fmt.Fprintf(&b, "[no answer: %s]", child.FailReason)
		}
	}
	if r.telem != nil {
		r.telem.RecordStage("merge", time.Since(start))
	}

	if answered == 0 {
		reason := "all sub-queries failed"
		s.tree.markFailed(id, reason)
		r.record(ctx, s, trace.Event{
			NodeID: id, ParentID: node.Parent, Depth: node.Depth,
			Kind: trace.KindFailed, Detail: reason,
		})
		return nil
	}

	if err := s.tree.markAnswered(id, b.String()); err != nil {
		return err
	}
	r.record(ctx, s, trace.Event{
		NodeID: id, ParentID: node.Parent, Depth: node.Depth,
		Kind:   trace.KindAnswered,
		Detail: fmt.Sprintf("merged %d/%d", answered, len(childIDs)),
	})
	return nil
}

// record forwards an event to the tracer. Trace failures are logged, not
// surfaced; persistence must never break resolution.
func (r *Resolver) record(ctx context.Context, s *session, ev trace.Event) {
	if r.tracer == nil {
		return
	}
	if err := r.tracer.Record(context.WithoutCancel(ctx), ev); err != nil {
		slog.Warn("trace record failed", "session", s.opts.SessionID, "error", err)
	}
}
