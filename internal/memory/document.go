package memory

import (
	"context"
	"os"
	"regexp"
	"sort"
	"strings"
)

// DocumentLookuper is a Lookuper over an in-process document set. It is the
// bundled retrieval collaborator for bounded transcript/document sessions:
// scope selects a document, and lookup returns the paragraphs that best
// overlap the query terms.
type DocumentLookuper struct {
	docs map[string]string

	// MaxParagraphs bounds how many paragraphs a lookup returns.
	MaxParagraphs int
}

// NewDocumentLookuper creates an empty document lookuper.
func NewDocumentLookuper() *DocumentLookuper {
	return &DocumentLookuper{
		docs:          make(map[string]string),
		MaxParagraphs: 5,
	}
}

// AddDocument registers content under a scope name.
func (d *DocumentLookuper) AddDocument(scope, content string) {
	d.docs[scope] = content
}

// AddFile reads a file and registers it under a scope name.
func (d *DocumentLookuper) AddFile(scope, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	d.AddDocument(scope, string(data))
	return nil
}

// Scopes returns the registered scope names.
func (d *DocumentLookuper) Scopes() []string {
	scopes := make([]string, 0, len(d.docs))
	for s := range d.docs {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	return scopes
}

// Lookup implements Lookuper. An empty scope searches every document.
func (d *DocumentLookuper) Lookup(ctx context.Context, query, scope string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var corpus []string
	if scope != "" {
		if doc, ok := d.docs[scope]; ok {
			corpus = append(corpus, doc)
		}
	} else {
		for _, s := range d.Scopes() {
			corpus = append(corpus, d.docs[s])
		}
	}
	if len(corpus) == 0 {
		return "", nil
	}

	terms := queryTerms(query)
	if len(terms) == 0 {
		return "", nil
	}

	type scored struct {
		order int
		score int
		text  string
	}

	var candidates []scored
	order := 0
	for _, doc := range corpus {
		for _, para := range splitParagraphs(doc) {
			lower := strings.ToLower(para)
			score := 0
			for _, t := range terms {
				if strings.Contains(lower, t) {
					score++
				}
			}
			if score > 0 {
				candidates = append(candidates, scored{order: order, score: score, text: para})
			}
			order++
		}
	}
	if len(candidates) == 0 {
		return "", nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	limit := d.MaxParagraphs
	if limit <= 0 {
		limit = 5
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	// Re-order selected paragraphs by document position.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].order < candidates[j].order
	})

	parts := make([]string, len(candidates))
	for i, c := range candidates {
		parts[i] = c.text
	}
	return strings.Join(parts, "\n\n"), nil
}

// queryTerms extracts lowercase search terms, dropping short stop-words.
func queryTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

var paragraphSep = regexp.MustCompile(`\n\s*\n`)

// splitParagraphs splits content on blank lines, dropping empties.
func splitParagraphs(content string) []string {
	parts := paragraphSep.Split(content, -1)
	var paragraphs []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) > 0 {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}
