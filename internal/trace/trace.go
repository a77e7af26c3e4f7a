// Package trace persists the resolution tree to SQLite for later inspection.
package trace

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

//go:embed schema.sql
var schemaSQL string

// EventKind identifies what happened at a node.
type EventKind string

const (
	KindDecomposed EventKind = "decomposed"
	KindAnswered   EventKind = "answered"
	KindFailed     EventKind = "failed"
	KindTierShift  EventKind = "tier_shift"
	KindCancelled  EventKind = "cancelled"
)

// Event is one recorded step of a resolution.
type Event struct {
	NodeID   string
	ParentID string
	Depth    int
	Kind     EventKind
	Detail   string
	Tokens   int64
	Duration time.Duration
}

// Config configures the trace store.
type Config struct {
	// Path is the database file. Empty uses an in-memory database.
	Path string

	// DB is an existing connection to use instead of opening one.
	DB *sql.DB

	// SessionID links events to a session.
	SessionID string
}

// Store records resolution events.
type Store struct {
	mu        sync.Mutex
	db        *sql.DB
	ownsDB    bool
	sessionID string
}

// New opens (or adopts) a database and ensures the schema exists.
func New(cfg Config) (*Store, error) {
	var db *sql.DB
	var ownsDB bool

	if cfg.DB != nil {
		db = cfg.DB
	} else {
		dsn := cfg.Path
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		var err error
		db, err = sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open trace database: %w", err)
		}
		ownsDB = true
	}

	s := &Store{db: db, ownsDB: ownsDB, sessionID: cfg.SessionID}

	if _, err := db.Exec(schemaSQL); err != nil {
		if ownsDB {
			db.Close()
		}
		return nil, fmt.Errorf("init trace schema: %w", err)
	}

	return s, nil
}

// SetSessionID switches the session new events are linked to.
func (s *Store) SetSessionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = id
}

// Record inserts one event.
func (s *Store) Record(ctx context.Context, ev Event) error {
	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()

	var parentID sql.NullString
	if ev.ParentID != "" {
		parentID = sql.NullString{String: ev.ParentID, Valid: true}
	}
	var detail sql.NullString
	if ev.Detail != "" {
		detail = sql.NullString{String: ev.Detail, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resolution_events (
			session_id, node_id, parent_id, depth, kind, detail,
			tokens, duration_ns, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sessionID,
		ev.NodeID,
		parentID,
		ev.Depth,
		string(ev.Kind),
		detail,
		ev.Tokens,
		ev.Duration.Nanoseconds(),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert resolution event: %w", err)
	}
	return nil
}

// Stats summarizes one session's recorded events.
type Stats struct {
	TotalEvents int64 `json:"total_events"`
	TotalTokens int64 `json:"total_tokens"`
	MaxDepth    int   `json:"max_depth"`
	Failed      int64 `json:"failed"`
	TierShifts  int64 `json:"tier_shifts"`
}

// SessionStats computes totals for a session. An empty id uses the store's
// current session.
func (s *Store) SessionStats(ctx context.Context, sessionID string) (*Stats, error) {
	if sessionID == "" {
		s.mu.Lock()
		sessionID = s.sessionID
		s.mu.Unlock()
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(tokens), 0),
			COALESCE(MAX(depth), 0),
			COALESCE(SUM(CASE WHEN kind = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'tier_shift' THEN 1 ELSE 0 END), 0)
		FROM resolution_events
		WHERE session_id = ?
	`, sessionID)

	var st Stats
	if err := row.Scan(&st.TotalEvents, &st.TotalTokens, &st.MaxDepth, &st.Failed, &st.TierShifts); err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	return &st, nil
}

// Events returns a session's events in insertion order.
func (s *Store) Events(ctx context.Context, sessionID string) ([]Event, error) {
	if sessionID == "" {
		s.mu.Lock()
		sessionID = s.sessionID
		s.mu.Unlock()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, COALESCE(parent_id, ''), depth, kind,
		       COALESCE(detail, ''), tokens, duration_ns
		FROM resolution_events
		WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var kind string
		var durNS int64
		if err := rows.Scan(&ev.NodeID, &ev.ParentID, &ev.Depth, &kind, &ev.Detail, &ev.Tokens, &durNS); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = EventKind(kind)
		ev.Duration = time.Duration(durNS)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SessionSummary is one row of the session listing.
type SessionSummary struct {
	SessionID string `json:"session_id"`
	Events    int64  `json:"events"`
	Tokens    int64  `json:"tokens"`
	StartedAt int64  `json:"started_at"`
}

// Sessions lists recorded sessions, most recent first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, COUNT(*), COALESCE(SUM(tokens), 0), MIN(created_at)
		FROM resolution_events
		GROUP BY session_id
		ORDER BY MIN(created_at) DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(&s.SessionID, &s.Events, &s.Tokens, &s.StartedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database if this store opened it.
func (s *Store) Close() error {
	if s.ownsDB && s.db != nil {
		return s.db.Close()
	}
	return nil
}
