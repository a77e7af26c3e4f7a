package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rand/fathom/internal/resilience"
	"github.com/rand/fathom/internal/telemetry"
)

// Effort is the reasoning-depth control. It is mutually exclusive with
// temperature on any single request.
type Effort string

const (
	EffortNone   Effort = ""
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// ValidEffort reports whether s names a known effort level.
func ValidEffort(s string) bool {
	switch Effort(s) {
	case EffortNone, EffortLow, EffortMedium, EffortHigh:
		return true
	}
	return false
}

// Payload is the content of one model call, handed to the Invoker.
type Payload struct {
	Prompt    string
	Context   string
	MaxTokens int

	// Temperature, when set, excludes Effort.
	Temperature *float64

	// Effort, when set, excludes Temperature.
	Effort Effort
}

// InvokeResult is what the external reasoning collaborator returns.
type InvokeResult struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Invoker is the external reasoning-call collaborator. Implementations tag
// failures with Transient or Fatal so the router can apply its policy.
type Invoker interface {
	Invoke(ctx context.Context, model string, payload Payload) (*InvokeResult, error)
}

// Request is one routed call.
type Request struct {
	// Model optionally names a concrete catalog model; when empty the
	// tier's primary model is used.
	Model string

	// Tier is the requested capability tier.
	Tier Tier

	Prompt    string
	Context   string
	MaxTokens int

	Temperature *float64
	Effort      Effort
}

// Config configures the router.
type Config struct {
	// Catalog is the model catalog (defaults when empty).
	Catalog []ModelSpec

	// MaxRetries is the number of same-tier retries after the first
	// attempt fails transiently. Default 2.
	MaxRetries int

	// RetryDelay is the pause between same-tier retries. Default 200ms.
	RetryDelay time.Duration

	// CallTimeout bounds each invoker call. Default 60s.
	CallTimeout time.Duration

	// Breaker configures the per-family circuit breakers.
	Breaker resilience.BreakerConfig
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  2,
		RetryDelay:  200 * time.Millisecond,
		CallTimeout: 60 * time.Second,
		Breaker:     resilience.DefaultBreakerConfig(),
	}
}

// Router dispatches calls to the invoker with tiered fallback.
type Router struct {
	invoker  Invoker
	catalog  *Catalog
	telem    *telemetry.Aggregator
	breakers *resilience.Set

	maxRetries  int
	retryDelay  time.Duration
	callTimeout time.Duration
}

// New creates a router. The telemetry aggregator may be nil, in which case
// completed calls are not recorded anywhere.
func New(invoker Invoker, telem *telemetry.Aggregator, cfg Config) *Router {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}

	return &Router{
		invoker:     invoker,
		catalog:     NewCatalog(cfg.Catalog),
		telem:       telem,
		breakers:    resilience.NewSet(cfg.Breaker),
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		callTimeout: cfg.CallTimeout,
	}
}

// Catalog returns the router's model catalog.
func (r *Router) Catalog() *Catalog {
	return r.catalog
}

// Response is the outcome of a successful routed call.
type Response struct {
	Text   string
	Record telemetry.CallRecord
}

// Call executes a request at its requested tier, retrying transient
// failures a bounded number of times, then falling back one tier down
// until success or tiers are exhausted. Fatal failures surface
// immediately. The response record carries TierShift when the serving
// tier differs from the requested one; same-tier retries are never
// shifts.
func (r *Router) Call(ctx context.Context, req Request) (*Response, error) {
	if req.Temperature != nil && req.Effort != EffortNone {
		return nil, &CallError{Kind: KindConfigConflict, Err: ErrConfigConflict}
	}

	requested, err := r.requestedSpec(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for tier := requested.Tier; tier >= TierFast; tier-- {
		spec := requested
		if tier != requested.Tier {
			s, ok := r.catalog.ForTier(tier)
			if !ok {
				continue
			}
			spec = s
		}

		breaker := r.breakers.For(string(spec.Family))
		if err := breaker.Allow(); err != nil {
			slog.Debug("family breaker open, skipping tier",
				"family", spec.Family, "tier", tier.String())
			lastErr = err
			continue
		}

		resp, err := r.callTier(ctx, req, spec, requested)
		if err == nil {
			breaker.RecordSuccess()
			if r.telem != nil {
				r.telem.Record(&resp.Record)
			}
			return resp, nil
		}

		if KindOf(err) == KindFatal {
			return nil, err
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, Transient(ctx.Err())
		}
	}

	return nil, Transient(fmt.Errorf("%w: %v", ErrTiersExhausted, lastErr))
}

// callTier runs the bounded same-tier retry loop for one spec.
func (r *Router) callTier(ctx context.Context, req Request, spec, requested ModelSpec) (*Response, error) {
	breaker := r.breakers.For(string(spec.Family))

	payload := Payload{
		Prompt:      req.Prompt,
		Context:     req.Context,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Effort:      req.Effort,
	}

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		start := time.Now()
		res, err := r.invoker.Invoke(callCtx, spec.ID, payload)
		latency := time.Since(start)
		cancel()

		if err == nil {
			return &Response{
				Text: res.Text,
				Record: telemetry.CallRecord{
					RequestedModel: requested.ID,
					Family:         string(spec.Family),
					RequestedTier:  int(requested.Tier),
					ServedTier:     int(spec.Tier),
					TierShift:      spec.Tier != requested.Tier,
					InputTokens:    res.InputTokens,
					OutputTokens:   res.OutputTokens,
					Latency:        latency,
				},
			}, nil
		}

		kind := KindOf(err)
		if kind == KindFatal {
			return nil, err
		}

		breaker.RecordFailure()
		lastErr = err
		slog.Debug("model call failed",
			"model", spec.ID, "attempt", attempt, "kind", kind.String(), "error", err)

		if attempt < r.maxRetries {
			select {
			case <-time.After(r.retryDelay):
			case <-ctx.Done():
				return nil, Transient(ctx.Err())
			}
		}
	}

	return nil, lastErr
}

// requestedSpec resolves the request to a concrete catalog spec.
func (r *Router) requestedSpec(req Request) (ModelSpec, error) {
	if req.Model != "" {
		if s, ok := r.catalog.ByID(req.Model); ok {
			return s, nil
		}
		// Unknown concrete model: dispatch as-is at the requested tier
		// so callers can address models outside the catalog.
		return ModelSpec{
			ID:     req.Model,
			Family: Normalize(req.Model),
			Tier:   req.Tier,
		}, nil
	}

	s, ok := r.catalog.ForTier(req.Tier)
	if !ok {
		return ModelSpec{}, Fatal(fmt.Errorf("no model configured for tier %s", req.Tier))
	}
	return s, nil
}
