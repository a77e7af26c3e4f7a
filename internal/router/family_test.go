package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		model string
		want  Family
	}{
		{"claude-sonnet-4-20250514", FamilyClaudeSonnet},
		{"anthropic/claude-sonnet-4.5", FamilyClaudeSonnet},
		{"claude-3-5-haiku-latest", FamilyClaudeHaiku},
		{"anthropic/claude-opus-4.5", FamilyClaudeOpus},
		{"openai/gpt-4o-mini", FamilyGPT},
		{"gpt-5.1", FamilyGPT},
		{"google/gemini-2.5-flash-lite", FamilyGeminiFlash},
		{"google/gemini-2.5-pro", FamilyGeminiPro},
		{"deepseek/deepseek-chat-v3.1", FamilyDeepSeek},
		{"qwen/qwq-32b", FamilyQwen},
		{"openrouter:qwen/qwen3-coder", FamilyQwen},
		{"totally-made-up-model", FamilyUnknown},
		{"", FamilyUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.model), "model %q", tt.model)
	}
}

func TestNormalizeDatedVariantsCollapse(t *testing.T) {
	variants := []string{
		"claude-sonnet-4-20250514",
		"claude-sonnet-4-5-20250929",
		"anthropic/claude-sonnet-4.5",
	}
	for _, v := range variants {
		assert.Equal(t, FamilyClaudeSonnet, Normalize(v), "variant %q", v)
	}
}

func TestParseTier(t *testing.T) {
	assert.Equal(t, TierFast, ParseTier("fast"))
	assert.Equal(t, TierReasoning, ParseTier(" Reasoning "))
	assert.Equal(t, TierBalanced, ParseTier(""))
	assert.Equal(t, TierBalanced, ParseTier("no-such-tier"))
}

func TestCatalogForTierPrefersFirstSpec(t *testing.T) {
	c := NewCatalog(DefaultCatalog())

	spec, ok := c.ForTier(TierFast)
	assert.True(t, ok)
	assert.Equal(t, TierFast, spec.Tier)
	assert.Equal(t, "anthropic/claude-haiku-4.5", spec.ID)
}

func TestCatalogFillsFamilies(t *testing.T) {
	c := NewCatalog([]ModelSpec{{ID: "anthropic/claude-opus-4.5", Tier: TierPowerful}})

	spec, ok := c.ByID("anthropic/claude-opus-4.5")
	assert.True(t, ok)
	assert.Equal(t, FamilyClaudeOpus, spec.Family)
}

func TestCatalogRates(t *testing.T) {
	rates := NewCatalog(DefaultCatalog()).Rates()

	r, ok := rates[string(FamilyClaudeSonnet)]
	assert.True(t, ok)
	assert.Equal(t, 3.00, r.InputPerMTok)
	assert.Equal(t, 1000000, r.ContextWindow)
}
