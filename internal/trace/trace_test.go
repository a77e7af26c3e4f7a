package trace

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{
		Path:      filepath.Join(t.TempDir(), "trace.db"),
		SessionID: "session-1",
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, Event{
		NodeID: "n1", Depth: 0, Kind: KindDecomposed, Detail: "2 sub-queries",
	}))
	require.NoError(t, store.Record(ctx, Event{
		NodeID: "n2", ParentID: "n1", Depth: 1, Kind: KindAnswered,
		Tokens: 120, Duration: 900 * time.Millisecond,
	}))
	require.NoError(t, store.Record(ctx, Event{
		NodeID: "n3", ParentID: "n1", Depth: 1, Kind: KindFailed, Detail: "all tiers exhausted",
	}))

	events, err := store.Events(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "n1", events[0].NodeID)
	assert.Equal(t, KindDecomposed, events[0].Kind)
	assert.Equal(t, "", events[0].ParentID)

	assert.Equal(t, "n1", events[1].ParentID)
	assert.Equal(t, int64(120), events[1].Tokens)
	assert.Equal(t, 900*time.Millisecond, events[1].Duration)
}

func TestSessionStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, Event{NodeID: "n1", Kind: KindDecomposed}))
	require.NoError(t, store.Record(ctx, Event{NodeID: "n2", ParentID: "n1", Depth: 1, Kind: KindTierShift, Detail: "powerful -> balanced"}))
	require.NoError(t, store.Record(ctx, Event{NodeID: "n2", ParentID: "n1", Depth: 1, Kind: KindAnswered, Tokens: 200}))
	require.NoError(t, store.Record(ctx, Event{NodeID: "n3", ParentID: "n1", Depth: 1, Kind: KindFailed}))

	stats, err := store.SessionStats(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.TotalEvents)
	assert.Equal(t, int64(200), stats.TotalTokens)
	assert.Equal(t, 1, stats.MaxDepth)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.TierShifts)
}

func TestSessionsAreIsolated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, Event{NodeID: "n1", Kind: KindAnswered, Tokens: 10}))

	store.SetSessionID("session-2")
	require.NoError(t, store.Record(ctx, Event{NodeID: "n1", Kind: KindAnswered, Tokens: 99}))

	first, err := store.SessionStats(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), first.TotalTokens)

	second, err := store.SessionStats(ctx, "session-2")
	require.NoError(t, err)
	assert.Equal(t, int64(99), second.TotalTokens)

	sessions, err := store.Sessions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestEmptySession(t *testing.T) {
	store := newTestStore(t)

	stats, err := store.SessionStats(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalEvents)

	events, err := store.Events(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, events)
}
