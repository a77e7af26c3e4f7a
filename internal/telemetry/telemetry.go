// Package telemetry accumulates token, cost, and timing accounting for a session.
package telemetry

import (
	"sync"
	"time"
)

// Rate holds the per-family pricing and context configuration.
type Rate struct {
	// InputPerMTok is the input cost in USD per million tokens.
	InputPerMTok float64 `json:"input_per_mtok"`

	// OutputPerMTok is the output cost in USD per million tokens.
	OutputPerMTok float64 `json:"output_per_mtok"`

	// ContextWindow is the family's context capacity in tokens.
	// Zero means unknown.
	ContextWindow int `json:"context_window"`
}

// CallRecord describes a single completed model call.
type CallRecord struct {
	// RequestedModel is the logical model name the caller asked for.
	RequestedModel string `json:"requested_model"`

	// Family is the normalized family identity, version suffixes stripped.
	Family string `json:"family"`

	// RequestedTier and ServedTier are ordinal capability ranks.
	RequestedTier int `json:"requested_tier"`
	ServedTier    int `json:"served_tier"`

	// TierShift is true when ServedTier differs from RequestedTier.
	TierShift bool `json:"tier_shift,omitempty"`

	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`

	// CostUSD is derived from the family rates when the record is
	// registered with the aggregator. Never negative.
	CostUSD float64 `json:"cost_usd"`

	// UnknownRate is set when no rate was configured for the family and
	// the cost was recorded as zero.
	UnknownRate bool `json:"unknown_rate,omitempty"`

	// Latency is the wall-clock duration of the call.
	Latency time.Duration `json:"latency"`
}

// FamilyUsage aggregates usage for one normalized family.
type FamilyUsage struct {
	Calls        int64   `json:"calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// StageTiming aggregates elapsed time for one named pipeline stage.
type StageTiming struct {
	Count   int64         `json:"count"`
	Elapsed time.Duration `json:"elapsed"`
}

// Gauge is a normalized context-window usage reading.
// Valid is false when the family capacity is unknown; in that case Value
// carries no meaning and must not be rendered as empty or full.
type Gauge struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// SessionMetrics is a read-only snapshot of cumulative session totals.
type SessionMetrics struct {
	Calls        int64   `json:"calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	TierShifts   int64   `json:"tier_shifts"`
	UnknownRates int64   `json:"unknown_rates"`

	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`

	Families map[string]FamilyUsage `json:"families"`
	Stages   map[string]StageTiming `json:"stages"`

	// ContextGauges holds one gauge per family, measuring the family's
	// input tokens against its context window. Indeterminate when the
	// family's capacity is unknown.
	ContextGauges map[string]Gauge `json:"context_gauges"`

	SessionStart time.Time `json:"session_start"`
}

// CacheStatsFunc reports cache hit/miss counters. The cache exposes these
// read-only; the aggregator pulls them at snapshot time.
type CacheStatsFunc func() (hits, misses int64)

// Aggregator accumulates call records and stage timings for one session.
// All mutation goes through a single mutex; snapshots return copies.
type Aggregator struct {
	mu sync.Mutex

	rates map[string]Rate

	calls        int64
	inputTokens  int64
	outputTokens int64
	costUSD      float64
	tierShifts   int64
	unknownRates int64

	families map[string]FamilyUsage
	stages   map[string]StageTiming

	cacheStats CacheStatsFunc

	// Counter values at the last reset; subtracted at snapshot time so a
	// session reset zeroes the reported cache counters even though the
	// cache's own counters stay monotonic.
	cacheHitsBase   int64
	cacheMissesBase int64

	sessionStart time.Time
}

// NewAggregator creates an aggregator with the given per-family rates.
func NewAggregator(rates map[string]Rate) *Aggregator {
	if rates == nil {
		rates = make(map[string]Rate)
	}
	return &Aggregator{
		rates:        rates,
		families:     make(map[string]FamilyUsage),
		stages:       make(map[string]StageTiming),
		sessionStart: time.Now(),
	}
}

// SetCacheStats attaches the cache counter source consulted by Snapshot.
func (a *Aggregator) SetCacheStats(fn CacheStatsFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cacheStats = fn
}

// Record registers a completed call. It derives the record's cost from the
// family rates; an unknown family records zero cost and sets UnknownRate
// instead of failing the call.
func (a *Aggregator) Record(rec *CallRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rate, ok := a.rates[rec.Family]
	if ok {
		rec.CostUSD = float64(rec.InputTokens)/1e6*rate.InputPerMTok +
			float64(rec.OutputTokens)/1e6*rate.OutputPerMTok
		if rec.CostUSD < 0 {
			rec.CostUSD = 0
		}
	} else {
		rec.CostUSD = 0
		rec.UnknownRate = true
		a.unknownRates++
	}

	a.calls++
	a.inputTokens += rec.InputTokens
	a.outputTokens += rec.OutputTokens
	a.costUSD += rec.CostUSD
	if rec.TierShift {
		a.tierShifts++
	}

	fu := a.families[rec.Family]
	fu.Calls++
	fu.InputTokens += rec.InputTokens
	fu.OutputTokens += rec.OutputTokens
	fu.CostUSD += rec.CostUSD
	a.families[rec.Family] = fu
}

// RecordStage adds elapsed time to a named stage.
func (a *Aggregator) RecordStage(stage string, d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := a.stages[stage]
	st.Count++
	st.Elapsed += d
	a.stages[stage] = st
}

// ContextGauge reports context-window usage for a family as used/capacity
// clamped to [0, 1]. Unknown capacity yields an indeterminate gauge.
func (a *Aggregator) ContextGauge(family string, usedTokens int64) Gauge {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gauge(family, usedTokens)
}

// gauge computes the context gauge with the mutex held.
func (a *Aggregator) gauge(family string, usedTokens int64) Gauge {
	rate, ok := a.rates[family]
	if !ok || rate.ContextWindow <= 0 {
		return Gauge{}
	}

	v := float64(usedTokens) / float64(rate.ContextWindow)
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return Gauge{Value: v, Valid: true}
}

// Snapshot returns a copy of the cumulative totals.
func (a *Aggregator) Snapshot() SessionMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := SessionMetrics{
		Calls:        a.calls,
		InputTokens:  a.inputTokens,
		OutputTokens: a.outputTokens,
		CostUSD:      a.costUSD,
		TierShifts:   a.tierShifts,
		UnknownRates: a.unknownRates,
		Families:      make(map[string]FamilyUsage, len(a.families)),
		Stages:        make(map[string]StageTiming, len(a.stages)),
		ContextGauges: make(map[string]Gauge, len(a.families)),
		SessionStart:  a.sessionStart,
	}
	for k, v := range a.families {
		m.Families[k] = v
		m.ContextGauges[k] = a.gauge(k, v.InputTokens)
	}
	for k, v := range a.stages {
		m.Stages[k] = v
	}

	if a.cacheStats != nil {
		hits, misses := a.cacheStats()
		m.CacheHits = hits - a.cacheHitsBase
		m.CacheMisses = misses - a.cacheMissesBase
	}

	return m
}

// Reset clears all running totals and counters. The reset is atomic: no
// reader can observe a partially cleared state.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls = 0
	a.inputTokens = 0
	a.outputTokens = 0
	a.costUSD = 0
	a.tierShifts = 0
	a.unknownRates = 0
	a.families = make(map[string]FamilyUsage)
	a.stages = make(map[string]StageTiming)
	if a.cacheStats != nil {
		a.cacheHitsBase, a.cacheMissesBase = a.cacheStats()
	}
	a.sessionStart = time.Now()
}
