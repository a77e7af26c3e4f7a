// Package decompose breaks compound questions into ordered sub-queries and
// estimates query complexity for the split decision.
package decompose

import (
	"regexp"
	"strings"
)

// DefaultThreshold is the complexity score above which a query is
// considered compound enough to split. A detected two-part split scores
// at least 8, so any compound request clears the default on its own.
const DefaultThreshold = 8

var (
	// enumeratedItem matches numbered or bulleted list items.
	enumeratedItem = regexp.MustCompile(`(?m)^\s*(?:\d+[.)]|[-*])\s+(.+)$`)

	// questionSplit matches sentence-final question marks followed by more text.
	questionSplit = regexp.MustCompile(`\?\s+`)

	// imperativeVerbs are verbs that open an independent request clause.
	imperativeVerbs = []string{
		"compare", "summarize", "summarise", "list", "explain", "describe",
		"analyze", "analyse", "evaluate", "identify", "assess", "outline",
		"contrast", "estimate", "enumerate", "define",
	}
)

// EstimateComplexity scores a query. Length, clause count, and explicit
// multi-part markers all raise the score; the split decision compares the
// score against a threshold.
func EstimateComplexity(query string) int {
	words := strings.Fields(query)
	score := len(words) / 4

	parts := Split(query)
	if len(parts) > 1 {
		score += 8 * (len(parts) - 1)
	}

	if strings.Count(query, "?") > 1 {
		score += 6
	}
	if enumeratedItem.MatchString(query) {
		score += 6
	}

	return score
}

// Split breaks a query into ordered sub-queries. A query that does not
// decompose returns itself as the single element. The order of sub-queries
// always follows their order of appearance.
func Split(query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	// Enumerated lists decompose item by item.
	if items := enumeratedItem.FindAllStringSubmatch(query, -1); len(items) >= 2 {
		parts := make([]string, 0, len(items))
		for _, m := range items {
			if p := strings.TrimSpace(m[1]); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) >= 2 {
			return parts
		}
	}

	// Multiple questions decompose at question boundaries.
	if strings.Count(query, "?") > 1 {
		raw := questionSplit.Split(query, -1)
		var parts []string
		for _, p := range raw {
			p = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(p), "?"))
			if p != "" {
				parts = append(parts, p+"?")
			}
		}
		if len(parts) >= 2 {
			return parts
		}
	}

	// Clause conjunctions: split at "; " always, and at " and "/" then "
	// only when the following word opens an independent request.
	parts := splitClauses(query)
	if len(parts) >= 2 {
		return parts
	}

	return []string{query}
}

func splitClauses(query string) []string {
	segments := []string{query}

	// Semicolons separate clauses unconditionally.
	if strings.Contains(query, ";") {
		segments = nil
		for _, s := range strings.Split(query, ";") {
			if s = strings.TrimSpace(s); s != "" {
				segments = append(segments, s)
			}
		}
	}

	var parts []string
	for _, seg := range segments {
		parts = append(parts, splitConjunctions(seg)...)
	}
	return parts
}

var conjunction = regexp.MustCompile(`(?i),?\s+(?:and(?:\s+also)?|then)\s+`)

// splitConjunctions cuts a clause at "and" / "and also" / "then"
// boundaries where the next word opens an independent request.
// "Compare X and Y" stays whole because "Y" is not a request verb.
func splitConjunctions(clause string) []string {
	var parts []string
	start := 0

	for _, loc := range conjunction.FindAllStringIndex(clause, -1) {
		if loc[0] <= start {
			continue
		}
		after := strings.ToLower(clause[loc[1]:])
		if startsWithRequestVerb(after) {
			parts = append(parts, strings.TrimSpace(clause[start:loc[0]]))
			start = loc[1]
		}
	}

	tail := strings.TrimSpace(clause[start:])
	if tail != "" {
		parts = append(parts, tail)
	}
	return parts
}

func startsWithRequestVerb(s string) bool {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return false
	}
	head := strings.Trim(fields[0], ".,;:!?")
	for _, v := range imperativeVerbs {
		if head == v {
			return true
		}
	}
	return false
}
