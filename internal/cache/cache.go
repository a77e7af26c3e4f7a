// Package cache provides the retrieval cache: an LRU-evicting store of
// fingerprint-keyed context payloads with hit/miss accounting.
package cache

import (
	"sync"
	"time"
)

// DefaultCapacity is the entry limit used when none is configured.
const DefaultCapacity = 256

// Entry is a single cached retrieval result. Entries are immutable once
// created; only LastAccessedAt is updated, on hits.
type Entry struct {
	Key            string    `json:"key"`
	Value          string    `json:"value"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// Stats reports cache counters. Hits and Misses are monotonic for the
// lifetime of the store.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Entries int     `json:"entries"`
	HitRate float64 `json:"hit_rate"`
}

// Store is a capacity-bounded key/value store with LRU eviction.
// All mutation is serialized through one mutex; reads share the same lock
// because a read updates recency.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	capacity int

	hits   int64
	misses int64

	now func() time.Time // test hook
}

// New creates a store bounded to capacity entries.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		entries:  make(map[string]*Entry, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// Get returns the cached value for key. A hit refreshes the entry's
// LastAccessedAt; a lookup of an absent key counts as a miss.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return "", false
	}

	e.LastAccessedAt = s.now()
	s.hits++
	return e.Value, true
}

// Put inserts a new entry. If an entry already exists for the key it is
// kept unchanged: entries are immutable, a miss creates and never mutates.
// When the insert pushes the store over capacity, exactly one
// least-recently-used entry is evicted.
func (s *Store) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; ok {
		return
	}

	now := s.now()
	s.entries[key] = &Entry{
		Key:            key,
		Value:          value,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	if len(s.entries) > s.capacity {
		s.evictOne()
	}
}

// evictOne removes the least-recently-used entry, breaking ties by the
// earliest CreatedAt. Must be called with the lock held.
func (s *Store) evictOne() {
	var victim *Entry
	for _, e := range s.entries {
		if victim == nil {
			victim = e
			continue
		}
		if e.LastAccessedAt.Before(victim.LastAccessedAt) {
			victim = e
		} else if e.LastAccessedAt.Equal(victim.LastAccessedAt) && e.CreatedAt.Before(victim.CreatedAt) {
			victim = e
		}
	}
	if victim != nil {
		delete(s.entries, victim.Key)
	}
}

// Len returns the current entry count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats returns the current counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Hits:    s.hits,
		Misses:  s.misses,
		Entries: len(s.entries),
	}
	if total := s.hits + s.misses; total > 0 {
		st.HitRate = float64(s.hits) / float64(total)
	}
	return st
}

// Counters returns the raw hit/miss counters for telemetry wiring.
func (s *Store) Counters() (hits, misses int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits, s.misses
}
