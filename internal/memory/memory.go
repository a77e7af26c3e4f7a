// Package memory answers "what context is relevant to this sub-query",
// backed by the retrieval cache and an external lookup collaborator.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rand/fathom/internal/cache"
)

// Lookuper is the external retrieval collaborator. The concrete mechanism
// (search index, document scan, embedding store) is outside this package;
// an empty result with a nil error means "nothing relevant".
type Lookuper interface {
	Lookup(ctx context.Context, query, scope string) (string, error)
}

// Store resolves context for sub-queries, consulting the cache first.
type Store struct {
	cache  *cache.Store
	lookup Lookuper
}

// NewStore creates a memory store over the given cache and collaborator.
func NewStore(c *cache.Store, lookup Lookuper) *Store {
	if c == nil {
		c = cache.New(0)
	}
	return &Store{cache: c, lookup: lookup}
}

// Fingerprint derives the normalized cache key for a (query, scope) pair:
// case-normalized, whitespace-collapsed, then hashed.
func Fingerprint(query, scope string) string {
	norm := normalize(query) + "|" + normalize(scope)
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Retrieve returns the context relevant to (query, scope). On a cache miss
// the collaborator is consulted and the result stored as a new immutable
// entry. The cache lock is never held across the collaborator call, so a
// lookup in progress for one key does not block lookups for other keys; if
// two callers miss on the same key concurrently, the first Put wins.
func (s *Store) Retrieve(ctx context.Context, query, scope string) (string, error) {
	key := Fingerprint(query, scope)

	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}

	if s.lookup == nil {
		s.cache.Put(key, "")
		return "", nil
	}

	v, err := s.lookup.Lookup(ctx, query, scope)
	if err != nil {
		return "", err
	}

	s.cache.Put(key, v)
	return v, nil
}

// Cache exposes the underlying retrieval cache, read-only use intended
// (stats wiring for telemetry).
func (s *Store) Cache() *cache.Store {
	return s.cache
}
