package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testRates() map[string]Rate {
	return map[string]Rate{
		"claude-sonnet": {InputPerMTok: 3.0, OutputPerMTok: 15.0, ContextWindow: 200_000},
		"gpt":           {InputPerMTok: 2.5, OutputPerMTok: 10.0, ContextWindow: 128_000},
	}
}

func TestRecordDerivesCost(t *testing.T) {
	a := NewAggregator(testRates())

	rec := &CallRecord{Family: "claude-sonnet", InputTokens: 1_000_000, OutputTokens: 200_000}
	a.Record(rec)

	assert.InDelta(t, 3.0+0.2*15.0, rec.CostUSD, 1e-9)
	assert.False(t, rec.UnknownRate)

	m := a.Snapshot()
	assert.Equal(t, int64(1), m.Calls)
	assert.InDelta(t, rec.CostUSD, m.CostUSD, 1e-9)
}

func TestRecordUnknownFamily(t *testing.T) {
	a := NewAggregator(testRates())

	rec := &CallRecord{Family: "mystery", InputTokens: 5000, OutputTokens: 1000}
	a.Record(rec)

	assert.True(t, rec.UnknownRate)
	assert.Equal(t, float64(0), rec.CostUSD)

	m := a.Snapshot()
	assert.Equal(t, int64(1), m.UnknownRates)
	assert.Equal(t, int64(5000), m.InputTokens, "tokens still counted for unknown families")
}

func TestFamilyGrouping(t *testing.T) {
	a := NewAggregator(testRates())

	// Dated or versioned variants are normalized to the same family
	// before recording, so they aggregate into one bucket.
	a.Record(&CallRecord{RequestedModel: "claude-sonnet-4-20250514", Family: "claude-sonnet", InputTokens: 100})
	a.Record(&CallRecord{RequestedModel: "claude-sonnet-4-5", Family: "claude-sonnet", InputTokens: 200})

	m := a.Snapshot()
	require.Len(t, m.Families, 1)
	fam := m.Families["claude-sonnet"]
	assert.Equal(t, int64(2), fam.Calls)
	assert.Equal(t, int64(300), fam.InputTokens)
}

func TestTierShiftCounting(t *testing.T) {
	a := NewAggregator(testRates())

	a.Record(&CallRecord{Family: "gpt", RequestedTier: 2, ServedTier: 2})
	a.Record(&CallRecord{Family: "gpt", RequestedTier: 2, ServedTier: 1, TierShift: true})

	assert.Equal(t, int64(1), a.Snapshot().TierShifts)
}

func TestRecordStage(t *testing.T) {
	a := NewAggregator(nil)

	a.RecordStage("retrieve", 20*time.Millisecond)
	a.RecordStage("retrieve", 30*time.Millisecond)
	a.RecordStage("merge", 5*time.Millisecond)

	m := a.Snapshot()
	assert.Equal(t, int64(2), m.Stages["retrieve"].Count)
	assert.Equal(t, 50*time.Millisecond, m.Stages["retrieve"].Elapsed)
	assert.Equal(t, int64(1), m.Stages["merge"].Count)
}

func TestContextGauge(t *testing.T) {
	a := NewAggregator(testRates())

	g := a.ContextGauge("claude-sonnet", 100_000)
	require.True(t, g.Valid)
	assert.InDelta(t, 0.5, g.Value, 1e-9)

	// Usage beyond capacity clamps rather than overflowing.
	g = a.ContextGauge("claude-sonnet", 300_000)
	assert.Equal(t, 1.0, g.Value)

	// Unknown capacity is indeterminate, not zero or full.
	g = a.ContextGauge("mystery", 100)
	assert.False(t, g.Valid)
}

func TestSnapshotContextGauges(t *testing.T) {
	a := NewAggregator(testRates())

	a.Record(&CallRecord{Family: "claude-sonnet", InputTokens: 100_000, OutputTokens: 200})
	a.Record(&CallRecord{Family: "mystery", InputTokens: 5000})

	m := a.Snapshot()
	g, ok := m.ContextGauges["claude-sonnet"]
	require.True(t, ok)
	require.True(t, g.Valid)
	assert.InDelta(t, 0.5, g.Value, 1e-9)

	g, ok = m.ContextGauges["mystery"]
	require.True(t, ok, "unknown families still carry an indeterminate gauge")
	assert.False(t, g.Valid)
}

func TestCacheCountersAndReset(t *testing.T) {
	a := NewAggregator(testRates())

	var hits, misses int64 = 3, 7
	a.SetCacheStats(func() (int64, int64) { return hits, misses })

	m := a.Snapshot()
	assert.Equal(t, int64(3), m.CacheHits)
	assert.Equal(t, int64(7), m.CacheMisses)

	// Reset re-baselines against the monotonic cache counters.
	a.Reset()
	m = a.Snapshot()
	assert.Equal(t, int64(0), m.CacheHits)
	assert.Equal(t, int64(0), m.CacheMisses)

	hits, misses = 5, 9
	m = a.Snapshot()
	assert.Equal(t, int64(2), m.CacheHits)
	assert.Equal(t, int64(2), m.CacheMisses)
}

func TestResetClearsTotals(t *testing.T) {
	a := NewAggregator(testRates())
	a.Record(&CallRecord{Family: "gpt", InputTokens: 100, OutputTokens: 50, TierShift: true})
	a.RecordStage("call", time.Second)

	a.Reset()

	m := a.Snapshot()
	assert.Equal(t, int64(0), m.Calls)
	assert.Equal(t, int64(0), m.InputTokens)
	assert.Equal(t, float64(0), m.CostUSD)
	assert.Equal(t, int64(0), m.TierShifts)
	assert.Empty(t, m.Families)
	assert.Empty(t, m.Stages)
}

func TestTotalsEqualFamilySums(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := NewAggregator(testRates())

		families := []string{"claude-sonnet", "gpt", "mystery"}
		n := rapid.IntRange(0, 50).Draw(t, "records")
		for i := 0; i < n; i++ {
			a.Record(&CallRecord{
				Family:       rapid.SampledFrom(families).Draw(t, "family"),
				InputTokens:  rapid.Int64Range(0, 100_000).Draw(t, "in"),
				OutputTokens: rapid.Int64Range(0, 100_000).Draw(t, "out"),
			})
		}

		m := a.Snapshot()
		var calls, in, out int64
		var cost float64
		for _, fu := range m.Families {
			calls += fu.Calls
			in += fu.InputTokens
			out += fu.OutputTokens
			cost += fu.CostUSD
		}
		assert.Equal(t, m.Calls, calls)
		assert.Equal(t, m.InputTokens, in)
		assert.Equal(t, m.OutputTokens, out)
		assert.InDelta(t, m.CostUSD, cost, 1e-6)
	})
}
