package router

import (
	"strings"

	"github.com/rand/fathom/internal/telemetry"
)

// Tier is an ordinal capability rank. Fallback walks downward: a call that
// keeps failing transiently at one tier is retried one tier below.
type Tier int

const (
	// TierFast is for quick, simple sub-queries (cheapest, lowest rank).
	TierFast Tier = iota
	// TierBalanced is for moderate complexity.
	TierBalanced
	// TierPowerful is for complex reasoning over large context.
	TierPowerful
	// TierReasoning is for tasks requiring deep deliberate reasoning.
	TierReasoning
)

func (t Tier) String() string {
	switch t {
	case TierFast:
		return "fast"
	case TierBalanced:
		return "balanced"
	case TierPowerful:
		return "powerful"
	case TierReasoning:
		return "reasoning"
	default:
		return "unknown"
	}
}

// ParseTier maps a tier name to its ordinal. Unknown names fall back to
// TierBalanced.
func ParseTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast":
		return TierFast
	case "balanced", "":
		return TierBalanced
	case "powerful":
		return TierPowerful
	case "reasoning":
		return TierReasoning
	default:
		return TierBalanced
	}
}

// ModelSpec defines one catalog model.
type ModelSpec struct {
	// ID is the concrete identifier sent to the provider.
	ID string

	// Name is a human-readable name.
	Name string

	// Family is the normalized identity; filled from ID when empty.
	Family Family

	// Tier is the capability rank used for dispatch and fallback.
	Tier Tier

	// InputCost and OutputCost are USD per million tokens.
	InputCost  float64
	OutputCost float64

	// ContextSize is the context window in tokens.
	ContextSize int
}

// DefaultCatalog returns the default model catalog, one primary model per
// tier plus alternates the selector may use.
func DefaultCatalog() []ModelSpec {
	return []ModelSpec{
		{
			ID:          "anthropic/claude-haiku-4.5",
			Name:        "Claude Haiku 4.5",
			Tier:        TierFast,
			InputCost:   1.00,
			OutputCost:  5.00,
			ContextSize: 200000,
		},
		{
			ID:          "google/gemini-2.5-flash-lite",
			Name:        "Gemini 2.5 Flash Lite",
			Tier:        TierFast,
			InputCost:   0.10,
			OutputCost:  0.40,
			ContextSize: 1050000,
		},
		{
			ID:          "anthropic/claude-sonnet-4.5",
			Name:        "Claude Sonnet 4.5",
			Tier:        TierBalanced,
			InputCost:   3.00,
			OutputCost:  15.00,
			ContextSize: 1000000,
		},
		{
			ID:          "google/gemini-2.5-flash",
			Name:        "Gemini 2.5 Flash",
			Tier:        TierBalanced,
			InputCost:   0.30,
			OutputCost:  2.50,
			ContextSize: 1050000,
		},
		{
			ID:          "anthropic/claude-opus-4.5",
			Name:        "Claude Opus 4.5",
			Tier:        TierPowerful,
			InputCost:   5.00,
			OutputCost:  25.00,
			ContextSize: 200000,
		},
		{
			ID:          "google/gemini-2.5-pro",
			Name:        "Gemini 2.5 Pro",
			Tier:        TierPowerful,
			InputCost:   1.25,
			OutputCost:  10.00,
			ContextSize: 1050000,
		},
		{
			ID:          "deepseek/deepseek-r1-0528",
			Name:        "DeepSeek R1",
			Tier:        TierReasoning,
			InputCost:   0.40,
			OutputCost:  1.75,
			ContextSize: 164000,
		},
		{
			ID:          "qwen/qwq-32b",
			Name:        "QwQ 32B",
			Tier:        TierReasoning,
			InputCost:   0.15,
			OutputCost:  0.40,
			ContextSize: 131000,
		},
	}
}

// Catalog indexes model specs by tier with deterministic ordering.
type Catalog struct {
	specs  []ModelSpec
	byTier map[Tier][]ModelSpec
	byID   map[string]ModelSpec
}

// NewCatalog builds a catalog, normalizing each spec's family from its ID
// when not set explicitly.
func NewCatalog(specs []ModelSpec) *Catalog {
	if len(specs) == 0 {
		specs = DefaultCatalog()
	}

	c := &Catalog{
		byTier: make(map[Tier][]ModelSpec),
		byID:   make(map[string]ModelSpec),
	}
	for _, s := range specs {
		if s.Family == "" {
			s.Family = Normalize(s.ID)
		}
		c.specs = append(c.specs, s)
		c.byTier[s.Tier] = append(c.byTier[s.Tier], s)
		c.byID[s.ID] = s
	}
	return c
}

// ForTier returns the primary spec for a tier.
func (c *Catalog) ForTier(t Tier) (ModelSpec, bool) {
	specs := c.byTier[t]
	if len(specs) == 0 {
		return ModelSpec{}, false
	}
	return specs[0], true
}

// ByID returns the spec for a concrete identifier.
func (c *Catalog) ByID(id string) (ModelSpec, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Specs returns all specs in catalog order.
func (c *Catalog) Specs() []ModelSpec {
	out := make([]ModelSpec, len(c.specs))
	copy(out, c.specs)
	return out
}

// Rates derives the telemetry rate table, keyed by normalized family.
// When several catalog models share a family, the first one wins.
func (c *Catalog) Rates() map[string]telemetry.Rate {
	rates := make(map[string]telemetry.Rate)
	for _, s := range c.specs {
		key := string(s.Family)
		if _, ok := rates[key]; ok {
			continue
		}
		rates[key] = telemetry.Rate{
			InputPerMTok:  s.InputCost,
			OutputPerMTok: s.OutputCost,
			ContextWindow: s.ContextSize,
		}
	}
	return rates
}
