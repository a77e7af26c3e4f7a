package memory

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rand/fathom/internal/cache"
)

type countingLookuper struct {
	calls  atomic.Int64
	result string
	err    error
}

func (c *countingLookuper) Lookup(ctx context.Context, query, scope string) (string, error) {
	c.calls.Add(1)
	return c.result, c.err
}

func TestFingerprintNormalization(t *testing.T) {
	// Case and surrounding/internal whitespace never change the key.
	a := Fingerprint("What is Raft?", "docs")
	b := Fingerprint("  what   is RAFT? ", "DOCS")
	assert.Equal(t, a, b)

	// Distinct scopes produce distinct keys for the same query.
	c := Fingerprint("What is Raft?", "other")
	assert.NotEqual(t, a, c)
}

func TestRetrieveCachesSecondLookup(t *testing.T) {
	lookup := &countingLookuper{result: "relevant context"}
	store := NewStore(cache.New(8), lookup)
	ctx := context.Background()

	first, err := store.Retrieve(ctx, "what is raft", "docs")
	require.NoError(t, err)
	assert.Equal(t, "relevant context", first)

	second, err := store.Retrieve(ctx, "  What IS raft  ", "docs")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, int64(1), lookup.calls.Load(), "second retrieve must be served from cache")
	hits, misses := store.Cache().Counters()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestRetrieveCachesEmptyResult(t *testing.T) {
	lookup := &countingLookuper{result: ""}
	store := NewStore(cache.New(8), lookup)
	ctx := context.Background()

	_, err := store.Retrieve(ctx, "nothing relevant", "")
	require.NoError(t, err)
	_, err = store.Retrieve(ctx, "nothing relevant", "")
	require.NoError(t, err)

	assert.Equal(t, int64(1), lookup.calls.Load(), "empty results are cached too")
}

func TestRetrieveErrorNotCached(t *testing.T) {
	lookup := &countingLookuper{err: errors.New("index offline")}
	store := NewStore(cache.New(8), lookup)
	ctx := context.Background()

	_, err := store.Retrieve(ctx, "query", "")
	require.Error(t, err)
	_, err = store.Retrieve(ctx, "query", "")
	require.Error(t, err)

	assert.Equal(t, int64(2), lookup.calls.Load(), "failed lookups must not poison the cache")
}

func TestRetrieveNilLookuper(t *testing.T) {
	store := NewStore(cache.New(8), nil)

	got, err := store.Retrieve(context.Background(), "anything", "")

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDocumentLookuperScoring(t *testing.T) {
	docs := NewDocumentLookuper()
	docs.AddDocument("consensus", "Raft is a consensus algorithm.\n\nPaxos predates Raft.\n\nCooking pasta requires boiling water.")

	got, err := docs.Lookup(context.Background(), "raft consensus", "consensus")

	require.NoError(t, err)
	assert.Contains(t, got, "Raft is a consensus algorithm.")
	assert.NotContains(t, got, "pasta")
}

func TestDocumentLookuperPreservesDocumentOrder(t *testing.T) {
	docs := NewDocumentLookuper()
	docs.AddDocument("d", "alpha topic intro.\n\nunrelated filler.\n\nalpha topic details.")

	got, err := docs.Lookup(context.Background(), "alpha topic", "d")

	require.NoError(t, err)
	intro := strings.Index(got, "alpha topic intro.")
	details := strings.Index(got, "alpha topic details.")
	require.GreaterOrEqual(t, intro, 0)
	require.GreaterOrEqual(t, details, 0)
	assert.Less(t, intro, details, "selected paragraphs keep document order")
}

func TestDocumentLookuperUnknownScope(t *testing.T) {
	docs := NewDocumentLookuper()
	docs.AddDocument("known", "some content here")

	got, err := docs.Lookup(context.Background(), "content", "unknown")

	require.NoError(t, err)
	assert.Empty(t, got)
}
