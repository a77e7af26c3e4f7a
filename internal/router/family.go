// Package router selects a model tier for each call and executes it with
// retry and downward fallback, reporting usage to the telemetry aggregator.
package router

import "strings"

// Family is a normalized model identity that ignores version and date
// suffixes. Any dated variant of a base model maps to the same Family.
type Family string

const (
	FamilyClaudeHaiku  Family = "claude-haiku"
	FamilyClaudeSonnet Family = "claude-sonnet"
	FamilyClaudeOpus   Family = "claude-opus"
	FamilyGPT          Family = "gpt"
	FamilyGeminiFlash  Family = "gemini-flash"
	FamilyGeminiPro    Family = "gemini-pro"
	FamilyDeepSeek     Family = "deepseek"
	FamilyQwen         Family = "qwen"
	FamilyUnknown      Family = "unknown"
)

// familyMarkers maps identity substrings to families. Order matters: more
// specific markers are checked first.
var familyMarkers = []struct {
	marker string
	family Family
}{
	{"opus", FamilyClaudeOpus},
	{"sonnet", FamilyClaudeSonnet},
	{"haiku", FamilyClaudeHaiku},
	{"gemini", FamilyGeminiPro}, // refined to flash below
	{"gpt", FamilyGPT},
	{"deepseek", FamilyDeepSeek},
	{"qwq", FamilyQwen},
	{"qwen", FamilyQwen},
}

// Normalize maps any concrete model identifier to its canonical family.
// It is a pure function, used for both dispatch and telemetry grouping, so
// a family is counted once regardless of which dated variant served a call.
func Normalize(model string) Family {
	id := strings.ToLower(strings.TrimSpace(model))

	// Drop a provider prefix like "anthropic/" or "openrouter:".
	if i := strings.LastIndexAny(id, "/:"); i >= 0 {
		id = id[i+1:]
	}

	for _, fm := range familyMarkers {
		if !strings.Contains(id, fm.marker) {
			continue
		}
		if fm.family == FamilyGeminiPro && strings.Contains(id, "flash") {
			return FamilyGeminiFlash
		}
		return fm.family
	}
	return FamilyUnknown
}
